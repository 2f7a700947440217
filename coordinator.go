package ergodic

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"golang.org/x/sync/errgroup"
)

// Fallback outcomes reported when a sensor fails.
const (
	FallbackDecayed = "decayed"
	FallbackNone    = "none"
)

// MonitoringResult is the outcome of one monitoring tick.
type MonitoringResult struct {
	SessionKey            string           `json:"sessionKey"`
	OverallRisk           WarningLevel     `json:"overallRisk"`
	ActiveWarnings        []BarrierWarning `json:"activeWarnings"`
	SensorReadings        []SensorReading  `json:"sensorReadings"`
	CompoundRisk          bool             `json:"compoundRisk"`
	CriticalBarriers      []Barrier        `json:"criticalBarriers"`
	RecommendedAction     Action           `json:"recommendedAction"`
	EscapeRoutesAvailable []EscapeProtocol `json:"escapeRoutesAvailable"`
	SkippedSensors        []SensorType     `json:"skippedSensors"`
	Timestamp             time.Time        `json:"timestamp"`
}

// sensorState is the coordinator's per-sensor bookkeeping.
type sensorState struct {
	last         *SensorReading
	lastMeasured time.Time
	failures     int
}

// Coordinator runs every sensor against a ledger snapshot, turns non-safe
// readings into prioritized warnings and keeps per-session warning history.
// One Coordinator may serve many sessions; a tick holds its lock throughout.
type Coordinator struct {
	mu       sync.Mutex
	config   Config
	sensors  []Sensor
	states   map[SensorType]*sensorState
	history  *historyCache[string, *WarningHistory]
	clock    clockz.Clock
	parallel bool
	metrics  *Metrics
}

// NewCoordinator creates a coordinator over the given sensors. Sensors are
// measured, and their warnings generated, in the order given.
func NewCoordinator(cfg Config, sensors ...Sensor) *Coordinator {
	cfg = cfg.withDefaults()
	states := make(map[SensorType]*sensorState, len(sensors))
	for _, s := range sensors {
		states[s.Type()] = &sensorState{}
	}
	return &Coordinator{
		config:  cfg,
		sensors: sensors,
		states:  states,
		history: newHistoryCache[string, *WarningHistory](cfg.MaxHistorySize, cfg.HistoryTTL),
		clock:   clockz.RealClock,
	}
}

// DefaultSensors builds the three built-in sensors calibrated from cfg.
func DefaultSensors(cfg Config) []Sensor {
	return []Sensor{
		NewResourceSensor(cfg.CalibrationFor(SensorResource)),
		NewCognitiveSensor(cfg.CalibrationFor(SensorCognitive)),
		NewTechnicalDebtSensor(cfg.CalibrationFor(SensorTechnicalDebt)),
	}
}

// WithClock sets the clock used for throttling, staleness and history TTL.
func (c *Coordinator) WithClock(clock clockz.Clock) *Coordinator {
	c.clock = clock
	return c
}

// WithParallelMeasurement measures sensors concurrently. Readings are
// still reported in sensor order.
func (c *Coordinator) WithParallelMeasurement() *Coordinator {
	c.parallel = true
	return c
}

// WithMetrics records sensor and warning activity.
func (c *Coordinator) WithMetrics(m *Metrics) *Coordinator {
	c.metrics = m
	return c
}

// Sensors returns the monitored sensors in order.
func (c *Coordinator) Sensors() []Sensor {
	out := make([]Sensor, len(c.sensors))
	copy(out, c.sensors)
	return out
}

// sensorFailure is a failed measurement awaiting the error handler.
type sensorFailure struct {
	sensor SensorType
	err    error
}

// Monitor runs one monitoring tick. Sensor failures degrade to fallback
// readings; the only error is a cancelled context. A tick whose context
// ends before warnings are committed leaves warning history and warning
// metrics untouched.
//
// Config.OnError runs after the tick releases its lock, so the handler may
// call back into the coordinator.
func (c *Coordinator) Monitor(ctx context.Context, snap PathSnapshot, session *SessionData) (*MonitoringResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result, failures, err := c.tick(ctx, snap, session)
	if c.config.OnError != nil {
		for _, f := range failures {
			c.config.OnError(f.sensor, f.err)
		}
	}
	return result, err
}

func (c *Coordinator) tick(ctx context.Context, snap PathSnapshot, session *SessionData) (*MonitoringResult, []sensorFailure, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := c.clock.Now()
	key := SessionKey(session)

	capitan.Emit(ctx, MonitoringStarted,
		FieldSession.Field(key),
		FieldFlexibility.Field(float32(snap.Metrics.FlexibilityScore)),
	)

	readings, skipped, failures, err := c.collectReadings(ctx, snap, session, start)
	if err != nil {
		return nil, failures, err
	}

	steps := 0
	if session != nil {
		steps = len(session.History)
	}
	var warnings []BarrierWarning
	for _, r := range readings {
		if r.WarningLevel == LevelSafe {
			continue
		}
		for _, subtype := range c.barriersFor(r.SensorType) {
			barrier, ok := snap.Barrier(subtype)
			if !ok {
				barrier, ok = barrierBySubtype(BarrierCatalog(), subtype)
			}
			if !ok {
				continue
			}
			warnings = append(warnings, newBarrierWarning(warningInput{
				reading: r,
				barrier: barrier,
				snap:    snap,
				steps:   steps,
				now:     start,
			}))
		}
	}
	warnings = PrioritizeWarnings(warnings)

	result := &MonitoringResult{
		SessionKey:            key,
		OverallRisk:           LevelSafe,
		ActiveWarnings:        warnings,
		SensorReadings:        readings,
		CompoundRisk:          CompoundRisk(warnings),
		CriticalBarriers:      []Barrier{},
		RecommendedAction:     RecommendAction(warnings),
		EscapeRoutesAvailable: AvailableEscapeRoutes(warnings, snap.Metrics.FlexibilityScore),
		SkippedSensors:        skipped,
		Timestamp:             start,
	}
	if result.ActiveWarnings == nil {
		result.ActiveWarnings = []BarrierWarning{}
	}
	if len(warnings) > 0 {
		result.OverallRisk = warnings[0].Severity
	}
	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}
	for _, w := range warnings {
		if w.Severity == LevelCritical {
			result.CriticalBarriers = append(result.CriticalBarriers, w.Barrier)
		}
		c.metrics.observeWarning(w)
		capitan.Emit(ctx, WarningRaised,
			FieldSession.Field(key),
			FieldSensor.Field(string(w.Sensor)),
			FieldBarrier.Field(string(w.Barrier.Subtype)),
			FieldLevel.Field(string(w.Severity)),
			FieldDistance.Field(float32(w.Reading.Distance)),
			FieldMessage.Field(w.Message),
		)
	}

	c.updateHistory(ctx, key, warnings, start)

	capitan.Emit(ctx, MonitoringCompleted,
		FieldSession.Field(key),
		FieldWarningCount.Field(len(warnings)),
		FieldLevel.Field(string(result.OverallRisk)),
		FieldAction.Field(string(result.RecommendedAction)),
		FieldDuration.Field(c.clock.Since(start)),
	)

	return result, failures, nil
}

// measurement is one sensor's outcome for a tick.
type measurement struct {
	reading *SensorReading
	err     error
}

// collectReadings applies the throttle, measures what is due and resolves
// failures to fallbacks. Readings come back in sensor order, along with the
// failures to hand to the error handler.
func (c *Coordinator) collectReadings(ctx context.Context, snap PathSnapshot, session *SessionData, now time.Time) ([]SensorReading, []SensorType, []sensorFailure, error) {
	results := make([]measurement, len(c.sensors))
	due := make([]int, 0, len(c.sensors))
	for i, s := range c.sensors {
		st := c.states[s.Type()]
		if st.last != nil && c.config.MeasurementThrottle > 0 && now.Sub(st.lastMeasured) < c.config.MeasurementThrottle {
			cached := *st.last
			results[i] = measurement{reading: &cached}
			continue
		}
		due = append(due, i)
	}

	if c.parallel && len(due) > 1 {
		g, gctx := errgroup.WithContext(ctx)
		for _, i := range due {
			g.Go(func() error {
				r, err := c.sensors[i].Measure(gctx, snap, session)
				results[i] = measurement{reading: r, err: err}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for _, i := range due {
			r, err := c.sensors[i].Measure(ctx, snap, session)
			results[i] = measurement{reading: r, err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, nil, err
	}

	readings := make([]SensorReading, 0, len(c.sensors))
	skipped := []SensorType{}
	var failures []sensorFailure
	for i, s := range c.sensors {
		st := c.states[s.Type()]
		res := results[i]
		if res.err == nil && res.reading == nil {
			res.err = fmt.Errorf("%s sensor returned no reading", s.Type())
		}
		if res.err != nil {
			failures = append(failures, sensorFailure{sensor: s.Type(), err: res.err})
			fallback := c.handleFailure(ctx, s.Type(), st, res.err, now)
			if fallback == nil {
				skipped = append(skipped, s.Type())
				continue
			}
			readings = append(readings, *fallback)
			continue
		}
		if slices.Contains(due, i) {
			st.failures = 0
			stored := *res.reading
			st.last = &stored
			st.lastMeasured = now
		}
		c.metrics.observeReading(*res.reading)
		readings = append(readings, *res.reading)
	}
	return readings, skipped, failures, nil
}

// handleFailure counts the failure and returns the last known reading with
// decayed confidence, or nil when it is too stale. Age is measured on the
// coordinator clock from when the reading was taken, whatever clock the
// sensor stamps its readings with.
func (c *Coordinator) handleFailure(ctx context.Context, sensor SensorType, st *sensorState, err error, now time.Time) *SensorReading {
	st.failures++

	var fallback *SensorReading
	outcome := FallbackNone
	if st.last != nil {
		age := max(now.Sub(st.lastMeasured), 0)
		if age < c.config.FallbackStaleness {
			decay := clamp01(1 - float64(age)/float64(c.config.FallbackStaleness))
			r := *st.last
			r.Confidence = st.last.Confidence * decay
			r.Context = maps.Clone(st.last.Context)
			if r.Context == nil {
				r.Context = map[string]float64{}
			}
			r.Context["fallback_age_seconds"] = age.Seconds()
			fallback = &r
			outcome = FallbackDecayed
		}
	}

	c.metrics.observeFailure(sensor, outcome)
	capitan.Error(ctx, SensorFailed,
		FieldSensor.Field(string(sensor)),
		FieldFailures.Field(st.failures),
		FieldFallback.Field(outcome),
		FieldError.Field(err),
	)
	if st.failures >= c.config.FailureThreshold {
		capitan.Error(ctx, SensorDisabled,
			FieldSensor.Field(string(sensor)),
			FieldFailures.Field(st.failures),
			FieldMessage.Field(fmt.Sprintf("%s sensor disabled after %d consecutive failures", sensor, st.failures)),
			FieldError.Field(err),
		)
	}
	return fallback
}

func (c *Coordinator) barriersFor(sensor SensorType) []BarrierSubtype {
	for _, s := range c.sensors {
		if s.Type() == sensor {
			return s.Barriers()
		}
	}
	return nil
}

// updateHistory purges expired sessions, then records this tick's
// warnings. Purging runs on every tick, with or without warnings.
func (c *Coordinator) updateHistory(ctx context.Context, key string, warnings []BarrierWarning, now time.Time) {
	for _, evicted := range c.history.expire(now) {
		capitan.Emit(ctx, HistoryEvicted, FieldSession.Field(evicted), FieldReason.Field("ttl"))
	}
	if len(warnings) == 0 {
		return
	}

	h, ok := c.history.get(key)
	if !ok {
		h = newWarningHistory(key, now)
	}
	for _, p := range h.add(warnings, now) {
		capitan.Emit(ctx, PatternDetected,
			FieldSession.Field(key),
			FieldBarrier.Field(string(p.Subtype)),
			FieldWarningCount.Field(p.Occurrences),
		)
	}
	for _, evicted := range c.history.put(key, h, h.LastWarningAt) {
		capitan.Emit(ctx, HistoryEvicted, FieldSession.Field(evicted), FieldReason.Field("capacity"))
	}
}

// History returns a copy of the warning history for a session key.
func (c *Coordinator) History(sessionKey string) (*WarningHistory, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.history.peek(sessionKey)
	if !ok {
		return nil, false
	}
	return h.clone(), true
}

// HistoryLen returns the number of sessions with retained history.
func (c *Coordinator) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.history.len()
}

// Failures returns the consecutive failure count for a sensor.
func (c *Coordinator) Failures(sensor SensorType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.states[sensor]; ok {
		return st.failures
	}
	return 0
}

// Reset clears warning history, cached readings and failure counters.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history.clear()
	for t := range c.states {
		c.states[t] = &sensorState{}
	}
}
