package ergodic

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// SensorType identifies a signal family.
type SensorType string

// Built-in sensor types.
const (
	SensorResource      SensorType = "resource"
	SensorCognitive     SensorType = "cognitive"
	SensorTechnicalDebt SensorType = "technical_debt"
)

// WarningLevel is the step-function classification of a reading distance.
type WarningLevel string

// Warning levels, safest first.
const (
	LevelSafe     WarningLevel = "SAFE"
	LevelCaution  WarningLevel = "CAUTION"
	LevelWarning  WarningLevel = "WARNING"
	LevelCritical WarningLevel = "CRITICAL"
)

// Priority orders levels for warning prioritization: CRITICAL sorts first.
func (l WarningLevel) Priority() int {
	switch l {
	case LevelCritical:
		return 0
	case LevelWarning:
		return 1
	case LevelCaution:
		return 2
	default:
		return 3
	}
}

// DetermineWarningLevel maps a distance onto a warning level. Each
// threshold is inclusive on the safe side: a distance exactly at the
// caution threshold is SAFE.
func DetermineWarningLevel(distance float64, t Thresholds) WarningLevel {
	switch {
	case distance >= t.Caution:
		return LevelSafe
	case distance >= t.Warning:
		return LevelCaution
	case distance >= t.Critical:
		return LevelWarning
	default:
		return LevelCritical
	}
}

// SensorReading is one calibrated distance-to-barrier measurement.
// RawValue is the noise-filtered proximity; Distance is 1 - RawValue.
type SensorReading struct {
	SensorType   SensorType         `json:"sensorType"`
	RawValue     float64            `json:"rawValue"`
	Distance     float64            `json:"distance"`
	WarningLevel WarningLevel       `json:"warningLevel"`
	ApproachRate float64            `json:"approachRate"`
	Confidence   float64            `json:"confidence"`
	Indicators   []string           `json:"indicators"`
	Context      map[string]float64 `json:"context"`
	Timestamp    time.Time          `json:"timestamp"`
}

// Sensor turns the ledger and session history into one reading per call.
// Implementations are read-only with respect to their inputs, so a
// coordinator may measure several sensors concurrently.
type Sensor interface {
	// Type identifies the sensor.
	Type() SensorType

	// Barriers lists the catalog barriers this sensor is authoritative for.
	Barriers() []BarrierSubtype

	// Calibration returns the sensor's current calibration.
	Calibration() Calibration

	// Measure produces a reading from an immutable ledger snapshot.
	Measure(ctx context.Context, snap PathSnapshot, session *SessionData) (*SensorReading, error)
}

// rawMeasurement is what a concrete sensor contributes before the shared
// template runs.
type rawMeasurement struct {
	value      float64
	indicators []string
	context    map[string]float64
}

type rawFunc func(snap PathSnapshot, session *SessionData, now time.Time) (rawMeasurement, error)

// sensorCore is the measurement template shared by every built-in sensor:
// raw reading, noise filter, derived fields, bounded history.
type sensorCore struct {
	mu          sync.Mutex
	sensorType  SensorType
	barriers    []BarrierSubtype
	calibration Calibration
	history     []SensorReading
	clock       clockz.Clock
	raw         rawFunc
}

func newSensorCore(sensorType SensorType, barriers []BarrierSubtype, cal Calibration, raw rawFunc) *sensorCore {
	return &sensorCore{
		sensorType:  sensorType,
		barriers:    barriers,
		calibration: cal.withDefaults(),
		history:     make([]SensorReading, 0, ReadingHistorySize),
		clock:       clockz.RealClock,
		raw:         raw,
	}
}

// Type implements Sensor.
func (c *sensorCore) Type() SensorType {
	return c.sensorType
}

// Barriers implements Sensor.
func (c *sensorCore) Barriers() []BarrierSubtype {
	return slices.Clone(c.barriers)
}

// Calibration implements Sensor.
func (c *sensorCore) Calibration() Calibration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calibration
}

// Calibrate replaces the sensor calibration. Unset fields take defaults.
func (c *sensorCore) Calibrate(cal Calibration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calibration = cal.withDefaults()
}

// setClock replaces the clock used for reading timestamps.
func (c *sensorCore) setClock(clock clockz.Clock) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
}

// History returns the retained readings, oldest first.
func (c *sensorCore) History() []SensorReading {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.history)
}

// Measure implements Sensor.
func (c *sensorCore) Measure(ctx context.Context, snap PathSnapshot, session *SessionData) (*SensorReading, error) {
	c.mu.Lock()
	now := c.clock.Now()
	c.mu.Unlock()
	m, err := c.raw(snap, session, now)
	if err != nil {
		return nil, fmt.Errorf("%s sensor: %w", c.sensorType, err)
	}

	c.mu.Lock()
	cal := c.calibration
	raw := clamp01(m.value * cal.Sensitivity)

	value := raw
	if n := len(c.history); n > 0 {
		value = FilterNoise(raw, c.history[n-1].RawValue, cal)
	}

	values := make([]float64, 0, ApproachRateWindow)
	for _, r := range c.history[max(0, len(c.history)-(ApproachRateWindow-1)):] {
		values = append(values, r.RawValue)
	}
	values = append(values, value)

	distance := 1 - value
	reading := SensorReading{
		SensorType:   c.sensorType,
		RawValue:     value,
		Distance:     distance,
		WarningLevel: DetermineWarningLevel(distance, cal.WarningThresholds),
		ApproachRate: ApproachRate(values),
		Confidence:   readingConfidence(c.history, now),
		Indicators:   m.indicators,
		Context:      m.context,
		Timestamp:    now,
	}
	if reading.Indicators == nil {
		reading.Indicators = []string{}
	}
	if reading.Context == nil {
		reading.Context = map[string]float64{}
	}

	if len(c.history) == ReadingHistorySize {
		c.history = append(c.history[:0], c.history[1:]...)
	}
	c.history = append(c.history, reading)
	c.mu.Unlock()

	capitan.Emit(ctx, SensorMeasured,
		FieldSensor.Field(string(c.sensorType)),
		FieldDistance.Field(float32(reading.Distance)),
		FieldConfidence.Field(float32(reading.Confidence)),
		FieldLevel.Field(string(reading.WarningLevel)),
	)

	out := reading
	return &out, nil
}

// FilterNoise applies the hysteresis filter: a change smaller than the
// calibration's noise threshold is blended toward the previous value by
// the historical weight; a larger change passes through unfiltered.
func FilterNoise(raw, previous float64, cal Calibration) float64 {
	if math.Abs(raw-previous) < cal.NoiseFilter {
		return raw*(1-cal.HistoricalWeight) + previous*cal.HistoricalWeight
	}
	return raw
}

// ApproachRate is the mean first difference of up to the last five values,
// scaled by ten and clamped to [-1, 1]. Positive means closing in.
func ApproachRate(values []float64) float64 {
	if len(values) > ApproachRateWindow {
		values = values[len(values)-ApproachRateWindow:]
	}
	if len(values) < 2 {
		return 0
	}
	sum := 0.0
	for i := 1; i < len(values); i++ {
		sum += values[i] - values[i-1]
	}
	rate := sum / float64(len(values)-1) * approachRateScale
	return math.Max(-1, math.Min(1, rate))
}

// readingConfidence scores how much a new reading can be trusted given the
// history that preceded it.
func readingConfidence(history []SensorReading, now time.Time) float64 {
	confidence := baseConfidence
	if len(history) >= ApproachRateWindow {
		confidence += historyConfidenceBonus
	}
	if len(history) >= 3 {
		last := history[len(history)-3:]
		values := make([]float64, len(last))
		for i, r := range last {
			values[i] = r.RawValue
		}
		if variance(values) < stabilityVarianceLimit {
			confidence += stabilityConfidenceBonus
		}
	}
	if n := len(history); n > 0 && now.Sub(history[n-1].Timestamp) < freshnessWindow {
		confidence += freshnessConfidenceBonus
	}
	return math.Min(confidence, 1)
}

func variance(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	sum := 0.0
	for _, v := range values {
		sum += (v - mean) * (v - mean)
	}
	return sum / float64(len(values))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ratio returns part/whole, or zero when whole is zero.
func ratio(part, whole float64) float64 {
	if whole == 0 {
		return 0
	}
	return part / whole
}
