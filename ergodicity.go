package ergodic

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/pipz"
)

// StepResult is what the caller reads back after one thinking step.
type StepResult struct {
	Event                PathEvent          `json:"event"`
	Metrics              FlexibilityMetrics `json:"metrics"`
	Warnings             []BarrierWarning   `json:"warnings"`
	WarningState         *MonitoringResult  `json:"warningState,omitempty"`
	EscapeRecommendation *EscapeProtocol    `json:"escapeRecommendation,omitempty"`
	EscapeResponse       *EscapeResponse    `json:"escapeResponse,omitempty"`
	MonitoringSkipped    bool               `json:"monitoringSkipped,omitempty"`
}

// stepState flows through the step pipeline.
type stepState struct {
	technique string
	step      int
	decision  string
	impact    Impact
	session   *SessionData
	key       string

	snapshot   PathSnapshot
	monitoring *MonitoringResult
	result     *StepResult
}

// Ergodicity is the single integration point: one call per visible
// thinking step updates the ledger, monitors when session data is present
// and optionally escapes.
type Ergodicity struct {
	memory      *PathMemory
	coordinator *Coordinator
	engine      *ProtocolEngine
	archive     Archive
	metrics     *Metrics

	autoEscape         bool
	autoEscapeMaxLevel int
	monitoringTimeout  time.Duration

	pipeline pipz.Chainable[*stepState]
}

type options struct {
	config             Config
	sensors            []Sensor
	memory             *PathMemory
	clock              clockz.Clock
	rng                *rand.Rand
	archive            Archive
	metrics            *Metrics
	parallel           bool
	autoEscape         bool
	autoEscapeMaxLevel int
	monitoringTimeout  time.Duration
}

// Option configures an Ergodicity.
type Option func(*options)

// WithConfig sets the coordinator configuration.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithSensors replaces the built-in sensors.
func WithSensors(sensors ...Sensor) Option {
	return func(o *options) { o.sensors = sensors }
}

// WithPathMemory uses an existing ledger instead of a fresh one.
func WithPathMemory(pm *PathMemory) Option {
	return func(o *options) { o.memory = pm }
}

// WithClock sets the clock shared by the ledger, coordinator and engine.
func WithClock(clock clockz.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithRand sets the random source for protocol outcome rolls.
func WithRand(r *rand.Rand) Option {
	return func(o *options) { o.rng = r }
}

// WithArchive writes every step's results to an archive.
func WithArchive(a Archive) Option {
	return func(o *options) { o.archive = a }
}

// WithMetrics records activity to Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithParallelSensors measures sensors concurrently.
func WithParallelSensors() Option {
	return func(o *options) { o.parallel = true }
}

// WithAutoEscape executes the recommended protocol when a tick recommends
// escaping.
func WithAutoEscape() Option {
	return func(o *options) { o.autoEscape = true }
}

// WithAutoEscapeMaxLevel sets the highest protocol level auto-escape may
// execute without asking. Recommendations above it are returned but not
// executed.
func WithAutoEscapeMaxLevel(level int) Option {
	return func(o *options) { o.autoEscapeMaxLevel = level }
}

// WithMonitoringTimeout bounds each monitoring tick. A tick that runs past
// the deadline is skipped; the step itself still succeeds.
func WithMonitoringTimeout(d time.Duration) Option {
	return func(o *options) { o.monitoringTimeout = d }
}

// New creates an Ergodicity with the built-in sensors unless overridden.
func New(opts ...Option) *Ergodicity {
	o := options{
		config:             DefaultConfig(),
		clock:              clockz.RealClock,
		autoEscapeMaxLevel: DefaultAutoEscapeMaxLevel,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sensors == nil {
		o.sensors = DefaultSensors(o.config)
		for _, s := range o.sensors {
			switch s := s.(type) {
			case *ResourceSensor:
				s.WithClock(o.clock)
			case *CognitiveSensor:
				s.WithClock(o.clock)
			case *TechnicalDebtSensor:
				s.WithClock(o.clock)
			}
		}
	}
	if o.memory == nil {
		o.memory = NewPathMemory().WithClock(o.clock)
	}

	coordinator := NewCoordinator(o.config, o.sensors...).
		WithClock(o.clock).
		WithMetrics(o.metrics)
	if o.parallel {
		coordinator.WithParallelMeasurement()
	}
	engine := NewProtocolEngine().
		WithClock(o.clock).
		WithMetrics(o.metrics)
	if o.rng != nil {
		engine.WithRand(o.rng)
	}

	e := &Ergodicity{
		memory:             o.memory,
		coordinator:        coordinator,
		engine:             engine,
		archive:            o.archive,
		metrics:            o.metrics,
		autoEscape:         o.autoEscape,
		autoEscapeMaxLevel: o.autoEscapeMaxLevel,
		monitoringTimeout:  o.monitoringTimeout,
	}
	e.pipeline = e.buildPipeline()
	return e
}

// PathMemory returns the ledger.
func (e *Ergodicity) PathMemory() *PathMemory {
	return e.memory
}

// Coordinator returns the warning coordinator.
func (e *Ergodicity) Coordinator() *Coordinator {
	return e.coordinator
}

// Engine returns the protocol engine.
func (e *Ergodicity) Engine() *ProtocolEngine {
	return e.engine
}

// RecordThinkingStep records one decision and, when session data is
// supplied, runs a monitoring tick over the updated ledger. Warnings never
// fail the step.
func (e *Ergodicity) RecordThinkingStep(ctx context.Context, technique string, step int, decision string, impact Impact, session *SessionData) (*StepResult, error) {
	state := &stepState{
		technique: technique,
		step:      step,
		decision:  decision,
		impact:    impact,
		session:   session,
		key:       SessionKey(session),
		result:    &StepResult{Warnings: []BarrierWarning{}},
	}
	out, err := e.pipeline.Process(ctx, state)
	if err != nil {
		return nil, err
	}
	return out.result, nil
}

// ExecuteProtocol runs a protocol against the current ledger.
func (e *Ergodicity) ExecuteProtocol(ctx context.Context, level int, confirmed bool, session *SessionData) (*EscapeResponse, error) {
	resp, err := e.engine.Execute(ctx, ExecuteRequest{
		Level:      level,
		Snapshot:   e.memory.Snapshot(),
		SessionKey: SessionKey(session),
		Confirmed:  confirmed,
	})
	if err != nil {
		return nil, err
	}
	e.archiveEscape(ctx, *resp)
	return resp, nil
}

func (e *Ergodicity) buildPipeline() pipz.Chainable[*stepState] {
	return pipz.NewSequence(pipz.Name("record-thinking-step"),
		pipz.Transform(pipz.Name("record-path-event"), e.recordEvent),
		pipz.NewFilter(pipz.Name("monitor-when-session"),
			func(_ context.Context, s *stepState) bool { return s.session != nil },
			pipz.Apply(pipz.Name("monitor"), e.monitor),
		),
		pipz.NewFilter(pipz.Name("auto-escape-when-recommended"),
			func(_ context.Context, s *stepState) bool {
				return e.autoEscape && s.monitoring != nil && s.monitoring.RecommendedAction == ActionEscape
			},
			pipz.Apply(pipz.Name("auto-escape"), e.escape),
		),
		pipz.Effect(pipz.Name("archive"), e.archiveStep),
	)
}

func (e *Ergodicity) recordEvent(ctx context.Context, s *stepState) *stepState {
	event := e.memory.record(ctx, s.technique, s.step, s.decision, s.impact)
	s.snapshot = e.memory.Snapshot()
	s.result.Event = event
	s.result.Metrics = s.snapshot.Metrics
	e.metrics.observeEvent(s.snapshot.Metrics)
	return s
}

// monitor runs the tick, bounded by the monitoring timeout when one is set.
// The tick writes into a copy of the state so an abandoned tick never races
// the caller. The deadline cancels the tick's context, and the coordinator
// checks it before committing warnings, so a skipped tick leaves no warning
// history behind.
func (e *Ergodicity) monitor(ctx context.Context, s *stepState) (*stepState, error) {
	tick := pipz.Apply(pipz.Name("monitoring-tick"), func(ctx context.Context, s *stepState) (*stepState, error) {
		res, err := e.coordinator.Monitor(ctx, s.snapshot, s.session)
		if err != nil {
			return nil, err
		}
		out := *s
		out.monitoring = res
		return &out, nil
	})

	var runner pipz.Chainable[*stepState] = tick
	if e.monitoringTimeout > 0 {
		runner = pipz.NewTimeout(pipz.Name("monitoring-deadline"), tick, e.monitoringTimeout)
	}

	out, err := runner.Process(ctx, s)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.result.MonitoringSkipped = true
			e.metrics.observeSkip()
			capitan.Emit(ctx, MonitoringSkipped,
				FieldSession.Field(s.key),
				FieldDuration.Field(e.monitoringTimeout),
			)
			return s, nil
		}
		return nil, err
	}

	s.monitoring = out.monitoring
	s.result.WarningState = out.monitoring
	s.result.Warnings = out.monitoring.ActiveWarnings
	return s, nil
}

// escape recommends a protocol for the top warning and executes it when it
// is within the auto-escape level.
func (e *Ergodicity) escape(ctx context.Context, s *stepState) (*stepState, error) {
	if len(s.monitoring.ActiveWarnings) == 0 {
		return s, nil
	}
	top := s.monitoring.ActiveWarnings[0]
	protocol := e.engine.Recommend(top, s.snapshot)
	if protocol == nil {
		return s, nil
	}
	s.result.EscapeRecommendation = protocol
	capitan.Emit(ctx, ProtocolRecommended,
		FieldSession.Field(s.key),
		FieldBarrier.Field(string(top.Barrier.Subtype)),
		FieldLevel.Field(string(top.Severity)),
		FieldProtocol.Field(protocol.ID),
		FieldProtocolLevel.Field(protocol.Level),
	)

	if protocol.Level > e.autoEscapeMaxLevel {
		return s, nil
	}
	resp, err := e.engine.Execute(ctx, ExecuteRequest{
		Level:      protocol.Level,
		Snapshot:   s.snapshot,
		SessionKey: s.key,
		Confirmed:  true,
	})
	if err != nil {
		return nil, err
	}
	s.result.EscapeResponse = resp
	return s, nil
}

func (e *Ergodicity) archiveStep(ctx context.Context, s *stepState) error {
	if e.archive == nil {
		return nil
	}
	if err := e.archive.ArchiveEvent(ctx, s.key, s.result.Event); err != nil {
		e.archiveFailed(ctx, s.key, err)
	}
	if len(s.result.Warnings) > 0 {
		if err := e.archive.ArchiveWarnings(ctx, s.key, s.result.Warnings); err != nil {
			e.archiveFailed(ctx, s.key, err)
		}
	}
	if s.result.EscapeResponse != nil {
		e.archiveEscape(ctx, *s.result.EscapeResponse)
	}
	return nil
}

func (e *Ergodicity) archiveEscape(ctx context.Context, resp EscapeResponse) {
	if e.archive == nil {
		return
	}
	if err := e.archive.ArchiveEscape(ctx, resp); err != nil {
		e.archiveFailed(ctx, resp.SessionKey, err)
	}
}

func (e *Ergodicity) archiveFailed(ctx context.Context, key string, err error) {
	capitan.Error(ctx, ArchiveFailed,
		FieldSession.Field(key),
		FieldError.Field(err),
	)
}
