// Package ergodictest provides test utilities for ergodic.
package ergodictest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/ergodic"
)

// ErrScripted is returned by a ScriptedSensor step scripted to fail.
var ErrScripted = errors.New("scripted sensor failure")

// Step is one scripted sensor outcome: a distance, or a failure.
type Step struct {
	Distance float64
	Fail     bool
	Delay    time.Duration
}

// Distance scripts a successful reading at distance d.
func Distance(d float64) Step {
	return Step{Distance: d}
}

// Fail scripts a measurement failure.
func Fail() Step {
	return Step{Fail: true}
}

// Slow scripts a reading that blocks for delay or until the context ends.
func Slow(d float64, delay time.Duration) Step {
	return Step{Distance: d, Delay: delay}
}

// ScriptedSensor implements ergodic.Sensor by replaying a fixed script.
// Once the script is exhausted the last step repeats.
type ScriptedSensor struct {
	sensorType  ergodic.SensorType
	barriers    []ergodic.BarrierSubtype
	calibration ergodic.Calibration
	clock       clockz.Clock

	mu    sync.Mutex
	steps []Step
	calls int
}

// NewScriptedSensor creates a sensor that reports for the given barriers.
func NewScriptedSensor(sensorType ergodic.SensorType, barriers []ergodic.BarrierSubtype, steps ...Step) *ScriptedSensor {
	if len(steps) == 0 {
		steps = []Step{Distance(1)}
	}
	return &ScriptedSensor{
		sensorType:  sensorType,
		barriers:    barriers,
		calibration: ergodic.DefaultCalibration(),
		clock:       clockz.RealClock,
		steps:       steps,
	}
}

// WithClock sets the clock used for reading timestamps.
func (s *ScriptedSensor) WithClock(clock clockz.Clock) *ScriptedSensor {
	s.clock = clock
	return s
}

// Type implements ergodic.Sensor.
func (s *ScriptedSensor) Type() ergodic.SensorType {
	return s.sensorType
}

// Barriers implements ergodic.Sensor.
func (s *ScriptedSensor) Barriers() []ergodic.BarrierSubtype {
	return s.barriers
}

// Calibration implements ergodic.Sensor.
func (s *ScriptedSensor) Calibration() ergodic.Calibration {
	return s.calibration
}

// Measure implements ergodic.Sensor.
func (s *ScriptedSensor) Measure(ctx context.Context, _ ergodic.PathSnapshot, _ *ergodic.SessionData) (*ergodic.SensorReading, error) {
	s.mu.Lock()
	step := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	s.mu.Unlock()

	if step.Delay > 0 {
		select {
		case <-time.After(step.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.Fail {
		return nil, ErrScripted
	}
	return &ergodic.SensorReading{
		SensorType:   s.sensorType,
		RawValue:     1 - step.Distance,
		Distance:     step.Distance,
		WarningLevel: ergodic.DetermineWarningLevel(step.Distance, s.calibration.WarningThresholds),
		Confidence:   1,
		Indicators:   []string{},
		Context:      map[string]float64{},
		Timestamp:    s.clock.Now(),
	}, nil
}

// Calls returns how many times Measure ran.
func (s *ScriptedSensor) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var _ ergodic.Sensor = (*ScriptedSensor)(nil)

// MockArchive implements ergodic.Archive in memory.
type MockArchive struct {
	mu       sync.RWMutex
	events   map[string][]ergodic.PathEvent
	warnings map[string][]ergodic.BarrierWarning
	escapes  []ergodic.EscapeResponse
	err      error
}

// NewMockArchive creates an empty in-memory archive.
func NewMockArchive() *MockArchive {
	return &MockArchive{
		events:   make(map[string][]ergodic.PathEvent),
		warnings: make(map[string][]ergodic.BarrierWarning),
	}
}

// FailWith makes every subsequent write return err.
func (m *MockArchive) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// ArchiveEvent implements ergodic.Archive.
func (m *MockArchive) ArchiveEvent(_ context.Context, sessionKey string, event ergodic.PathEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events[sessionKey] = append(m.events[sessionKey], event)
	return nil
}

// ArchiveWarnings implements ergodic.Archive.
func (m *MockArchive) ArchiveWarnings(_ context.Context, sessionKey string, warnings []ergodic.BarrierWarning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.warnings[sessionKey] = append(m.warnings[sessionKey], warnings...)
	return nil
}

// ArchiveEscape implements ergodic.Archive.
func (m *MockArchive) ArchiveEscape(_ context.Context, resp ergodic.EscapeResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.escapes = append(m.escapes, resp)
	return nil
}

// Events returns archived events for a session key.
func (m *MockArchive) Events(sessionKey string) []ergodic.PathEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ergodic.PathEvent(nil), m.events[sessionKey]...)
}

// Warnings returns archived warnings for a session key.
func (m *MockArchive) Warnings(sessionKey string) []ergodic.BarrierWarning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ergodic.BarrierWarning(nil), m.warnings[sessionKey]...)
}

// Escapes returns every archived protocol execution.
func (m *MockArchive) Escapes() []ergodic.EscapeResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ergodic.EscapeResponse(nil), m.escapes...)
}

var _ ergodic.Archive = (*MockArchive)(nil)

// NewSession creates session data with n history entries for a technique.
func NewSession(technique, problem string, start time.Time, n int) *ergodic.SessionData {
	s := &ergodic.SessionData{
		Technique: technique,
		Problem:   problem,
		StartTime: start,
		History:   make([]ergodic.HistoryEntry, 0, n),
	}
	for i := 1; i <= n; i++ {
		s.History = append(s.History, ergodic.HistoryEntry{
			Technique: technique,
			Step:      i,
			Output:    "step output",
			Timestamp: start,
		})
	}
	return s
}

// RequireLevel asserts a tick's overall risk.
func RequireLevel(t *testing.T, result *ergodic.MonitoringResult, expected ergodic.WarningLevel) {
	t.Helper()
	if result == nil {
		t.Fatal("expected monitoring result, got nil")
	}
	if result.OverallRisk != expected {
		t.Fatalf("expected overall risk %s, got %s", expected, result.OverallRisk)
	}
}

// RequireNoWarnings asserts that a monitoring tick raised nothing.
func RequireNoWarnings(t *testing.T, result *ergodic.MonitoringResult) {
	t.Helper()
	if result == nil {
		t.Fatal("expected monitoring result, got nil")
	}
	if len(result.ActiveWarnings) != 0 {
		t.Fatalf("expected no warnings, got %d (first: %s)", len(result.ActiveWarnings), result.ActiveWarnings[0].Message)
	}
}
