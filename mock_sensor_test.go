package ergodic

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
)

var errStubFailure = errors.New("stub sensor failure")

// stubStep is one scripted outcome for a stubSensor.
type stubStep struct {
	distance float64
	fail     bool
	nilRead  bool
	delay    time.Duration
}

func at(d float64) stubStep { return stubStep{distance: d} }

func failing() stubStep { return stubStep{fail: true} }

// stubSensor implements Sensor for testing without ledger heuristics.
// Once the script runs out the last step repeats.
type stubSensor struct {
	sensorType SensorType
	barriers   []BarrierSubtype
	clock      clockz.Clock

	mu    sync.Mutex
	steps []stubStep
	calls int
}

func newStubSensor(sensorType SensorType, barriers []BarrierSubtype, steps ...stubStep) *stubSensor {
	if len(steps) == 0 {
		steps = []stubStep{at(1)}
	}
	return &stubSensor{
		sensorType: sensorType,
		barriers:   barriers,
		clock:      clockz.RealClock,
		steps:      steps,
	}
}

func (s *stubSensor) withClock(clock clockz.Clock) *stubSensor {
	s.clock = clock
	return s
}

func (s *stubSensor) Type() SensorType { return s.sensorType }

func (s *stubSensor) Barriers() []BarrierSubtype { return s.barriers }

func (s *stubSensor) Calibration() Calibration { return DefaultCalibration() }

func (s *stubSensor) Measure(ctx context.Context, _ PathSnapshot, _ *SessionData) (*SensorReading, error) {
	s.mu.Lock()
	step := s.steps[min(s.calls, len(s.steps)-1)]
	s.calls++
	s.mu.Unlock()

	if step.delay > 0 {
		select {
		case <-time.After(step.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if step.fail {
		return nil, errStubFailure
	}
	if step.nilRead {
		return nil, nil
	}
	return &SensorReading{
		SensorType:   s.sensorType,
		RawValue:     1 - step.distance,
		Distance:     step.distance,
		WarningLevel: DetermineWarningLevel(step.distance, DefaultCalibration().WarningThresholds),
		Confidence:   1,
		Indicators:   []string{},
		Context:      map[string]float64{},
		Timestamp:    s.clock.Now(),
	}, nil
}

func (s *stubSensor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// mockArchive implements Archive in memory.
type mockArchive struct {
	mu       sync.Mutex
	events   map[string][]PathEvent
	warnings map[string][]BarrierWarning
	escapes  []EscapeResponse
	err      error
}

func newMockArchive() *mockArchive {
	return &mockArchive{
		events:   make(map[string][]PathEvent),
		warnings: make(map[string][]BarrierWarning),
	}
}

func (m *mockArchive) ArchiveEvent(_ context.Context, key string, e PathEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events[key] = append(m.events[key], e)
	return nil
}

func (m *mockArchive) ArchiveWarnings(_ context.Context, key string, w []BarrierWarning) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.warnings[key] = append(m.warnings[key], w...)
	return nil
}

func (m *mockArchive) ArchiveEscape(_ context.Context, r EscapeResponse) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.escapes = append(m.escapes, r)
	return nil
}

// fixedSource is a rand source that always yields the same value. Zero
// makes every roll succeed; the maximum makes every roll fail.
type fixedSource uint64

func (s fixedSource) Uint64() uint64 { return uint64(s) }

const (
	alwaysSucceed fixedSource = 0
	alwaysFail    fixedSource = ^fixedSource(0)
)

func newTestSession(technique, problem string, start time.Time) *SessionData {
	return &SessionData{
		Technique: technique,
		Problem:   problem,
		StartTime: start,
	}
}

func approx(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	return d < eps && d > -eps
}
