package ergodic

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Ledger defaults applied when an Impact leaves a field unset.
const (
	DefaultReversibilityCost = 0.1
	DefaultCommitmentLevel   = 0.1
)

// Ledger thresholds.
const (
	// CriticalDecisionThreshold marks an event as a critical decision when
	// either its reversibility cost or its commitment level exceeds it.
	CriticalDecisionThreshold = 0.7

	// ConstraintCommitmentThreshold is the commitment level above which an
	// event synthesizes a Constraint.
	ConstraintCommitmentThreshold = 0.5

	// ReversibleCostThreshold separates reversible from costly events in
	// the reversibility index.
	ReversibleCostThreshold = 0.5

	// PathDivergencePerEvent scales ledger length into path divergence.
	PathDivergencePerEvent = 0.1

	// OptionVelocityWindow is the number of trailing events used for
	// option velocity.
	OptionVelocityWindow = 5
)

// Warning level thresholds. A distance at or above a threshold maps to the
// safer level.
const (
	DefaultCautionThreshold  = 0.5
	DefaultWarningThreshold  = 0.3
	DefaultCriticalThreshold = 0.15
)

// Sensor template constants.
const (
	DefaultNoiseFilter      = 0.05
	DefaultHistoricalWeight = 0.3
	DefaultSensitivity      = 1.0

	// ReadingHistorySize bounds the per-sensor ring buffer.
	ReadingHistorySize = 20

	// ApproachRateWindow is the number of trailing readings averaged into
	// an approach rate.
	ApproachRateWindow = 5
	approachRateScale  = 10.0

	baseConfidence           = 0.5
	historyConfidenceBonus   = 0.2
	stabilityConfidenceBonus = 0.2
	freshnessConfidenceBonus = 0.1
	stabilityVarianceLimit   = 0.1
	freshnessWindow          = 60 * time.Second
)

// Coordinator defaults.
const (
	DefaultMaxHistorySize       = 100
	DefaultHistoryTTL           = 24 * time.Hour
	DefaultMeasurementThrottle  = 5 * time.Second
	DefaultFailureThreshold     = 3
	DefaultFallbackStaleness    = 30 * time.Minute
	LowFlexibilityContextLimit  = 0.3
	LongSessionContextSteps     = 20
	RecurringPatternOccurrences = 2
)

// Protocol engine defaults.
const (
	DefaultMaxExecutionHistory = 1000
	DefaultExecutionTTL        = 24 * time.Hour
	ConfirmationRequiredLevel  = 3
	DefaultAutoEscapeMaxLevel  = 2
)

// Thresholds maps reading distances onto warning levels.
type Thresholds struct {
	Caution  float64 `json:"caution" yaml:"caution"`
	Warning  float64 `json:"warning" yaml:"warning"`
	Critical float64 `json:"critical" yaml:"critical"`
}

// Calibration tunes one sensor.
type Calibration struct {
	Sensitivity       float64            `json:"sensitivity" yaml:"sensitivity"`
	WarningThresholds Thresholds         `json:"warningThresholds" yaml:"warning_thresholds"`
	NoiseFilter       float64            `json:"noiseFilter" yaml:"noise_filter"`
	HistoricalWeight  float64            `json:"historicalWeight" yaml:"historical_weight"`
	ContextFactors    map[string]float64 `json:"contextFactors,omitempty" yaml:"context_factors,omitempty"`
}

// DefaultCalibration returns the stock sensor calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		Sensitivity: DefaultSensitivity,
		WarningThresholds: Thresholds{
			Caution:  DefaultCautionThreshold,
			Warning:  DefaultWarningThreshold,
			Critical: DefaultCriticalThreshold,
		},
		NoiseFilter:      DefaultNoiseFilter,
		HistoricalWeight: DefaultHistoricalWeight,
		ContextFactors:   map[string]float64{},
	}
}

// withDefaults fills zero-valued fields from DefaultCalibration.
func (c Calibration) withDefaults() Calibration {
	d := DefaultCalibration()
	if c.Sensitivity == 0 {
		c.Sensitivity = d.Sensitivity
	}
	if c.WarningThresholds == (Thresholds{}) {
		c.WarningThresholds = d.WarningThresholds
	}
	if c.NoiseFilter == 0 {
		c.NoiseFilter = d.NoiseFilter
	}
	if c.HistoricalWeight == 0 {
		c.HistoricalWeight = d.HistoricalWeight
	}
	if c.ContextFactors == nil {
		c.ContextFactors = map[string]float64{}
	}
	return c
}

// ErrorHandler receives sensor measurement failures.
type ErrorHandler func(sensor SensorType, err error)

// Config configures the warning coordinator.
type Config struct {
	MaxHistorySize      int                        `json:"maxHistorySize" yaml:"max_history_size"`
	HistoryTTL          time.Duration              `json:"historyTTL" yaml:"history_ttl"`
	MeasurementThrottle time.Duration              `json:"measurementThrottle" yaml:"measurement_throttle"`
	FailureThreshold    int                        `json:"failureThreshold" yaml:"failure_threshold"`
	FallbackStaleness   time.Duration              `json:"fallbackStaleness" yaml:"fallback_staleness"`
	DefaultCalibration  Calibration                `json:"defaultCalibration" yaml:"default_calibration"`
	Sensors             map[SensorType]Calibration `json:"sensors,omitempty" yaml:"sensors,omitempty"`
	OnError             ErrorHandler               `json:"-" yaml:"-"`
}

// DefaultConfig returns the stock coordinator configuration.
func DefaultConfig() Config {
	return Config{
		MaxHistorySize:      DefaultMaxHistorySize,
		HistoryTTL:          DefaultHistoryTTL,
		MeasurementThrottle: DefaultMeasurementThrottle,
		FailureThreshold:    DefaultFailureThreshold,
		FallbackStaleness:   DefaultFallbackStaleness,
		DefaultCalibration:  DefaultCalibration(),
	}
}

// withDefaults fills zero-valued fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = d.MaxHistorySize
	}
	if c.HistoryTTL <= 0 {
		c.HistoryTTL = d.HistoryTTL
	}
	if c.MeasurementThrottle < 0 {
		c.MeasurementThrottle = 0
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.FallbackStaleness <= 0 {
		c.FallbackStaleness = d.FallbackStaleness
	}
	c.DefaultCalibration = c.DefaultCalibration.withDefaults()
	return c
}

// CalibrationFor returns the calibration for a sensor type, falling back to
// the default calibration.
func (c Config) CalibrationFor(sensor SensorType) Calibration {
	if cal, ok := c.Sensors[sensor]; ok {
		return cal.withDefaults()
	}
	return c.DefaultCalibration.withDefaults()
}

// ParseConfig decodes a YAML document into a Config. Unset fields keep
// their defaults.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg.withDefaults(), nil
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseConfig(data)
}
