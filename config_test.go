package ergodic

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseConfig(t *testing.T) {
	data := []byte(`
max_history_size: 10
history_ttl: 2h
measurement_throttle: 0s
failure_threshold: 5
default_calibration:
  sensitivity: 1.5
sensors:
  cognitive:
    sensitivity: 2
    warning_thresholds:
      caution: 0.6
      warning: 0.4
      critical: 0.2
`)
	cfg, err := ParseConfig(data)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.MaxHistorySize != 10 || cfg.HistoryTTL != 2*time.Hour || cfg.FailureThreshold != 5 {
		t.Errorf("unexpected coordinator settings: %+v", cfg)
	}
	if cfg.MeasurementThrottle != 0 {
		t.Errorf("expected throttling disabled, got %v", cfg.MeasurementThrottle)
	}
	if cfg.FallbackStaleness != DefaultFallbackStaleness {
		t.Errorf("expected default staleness, got %v", cfg.FallbackStaleness)
	}
	if cfg.DefaultCalibration.Sensitivity != 1.5 {
		t.Errorf("expected default sensitivity 1.5, got %v", cfg.DefaultCalibration.Sensitivity)
	}
	if cfg.DefaultCalibration.NoiseFilter != DefaultNoiseFilter {
		t.Errorf("expected noise filter default to fill in, got %v", cfg.DefaultCalibration.NoiseFilter)
	}

	cognitive := cfg.CalibrationFor(SensorCognitive)
	want := Thresholds{Caution: 0.6, Warning: 0.4, Critical: 0.2}
	if diff := cmp.Diff(want, cognitive.WarningThresholds); diff != "" {
		t.Errorf("threshold mismatch (-want +got):\n%s", diff)
	}
	if cognitive.Sensitivity != 2 || cognitive.HistoricalWeight != DefaultHistoricalWeight {
		t.Errorf("unexpected cognitive calibration: %+v", cognitive)
	}
	if got := cfg.CalibrationFor(SensorResource); got.Sensitivity != 1.5 {
		t.Errorf("expected resource to use the default calibration, got %+v", got)
	}
}

func TestParseConfig_Empty(t *testing.T) {
	cfg, err := ParseConfig(nil)
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}
	if diff := cmp.Diff(DefaultConfig(), cfg); diff != "" {
		t.Errorf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	_, err := ParseConfig([]byte("max_history_size: [not, an, int]"))
	if err == nil || !strings.Contains(err.Error(), "failed to parse config") {
		t.Errorf("expected parse error, got %v", err)
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ergodic.yaml")
	if err := os.WriteFile(path, []byte("failure_threshold: 7\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.FailureThreshold != 7 {
		t.Errorf("expected failure threshold 7, got %d", cfg.FailureThreshold)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{MeasurementThrottle: -time.Second}.withDefaults()
	if cfg.MeasurementThrottle != 0 {
		t.Errorf("expected negative throttle clamped to 0, got %v", cfg.MeasurementThrottle)
	}
	if cfg.MaxHistorySize != DefaultMaxHistorySize || cfg.FailureThreshold != DefaultFailureThreshold {
		t.Errorf("expected defaults filled, got %+v", cfg)
	}
}
