package ergodic

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// FlexibilityMetrics is derived entirely from the ledger. It is recomputed
// from scratch after every event, so recomputing from an unchanged ledger
// yields the same value.
type FlexibilityMetrics struct {
	FlexibilityScore   float64   `json:"flexibilityScore"`
	ReversibilityIndex float64   `json:"reversibilityIndex"`
	PathDivergence     float64   `json:"pathDivergence"`
	OptionVelocity     float64   `json:"optionVelocity"`
	CommitmentDepth    float64   `json:"commitmentDepth"`
	BarrierProximity   []Barrier `json:"barrierProximity"`
}

// EscapeRoute is a ledger-derived suggestion for regaining flexibility.
// Unlike EscapeProtocol it is a lightweight hint, not an executable playbook.
type EscapeRoute struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Feasibility     float64  `json:"feasibility"`
	Cost            float64  `json:"cost"`
	FlexibilityGain float64  `json:"flexibilityGain"`
	Steps           []string `json:"steps"`
}

// Escape route triggers.
const (
	patternInterruptionFlexibility = 0.4
	constraintRelaxationCount      = 3
	strategicPivotCommitment       = 0.7
)

// PathMemory is the append-only path-dependency ledger for one session.
//
// # Concurrency
//
// PathMemory is safe for concurrent use. Writes take an exclusive lock;
// Snapshot and the accessor methods return copies so callers may read them
// without holding the lock.
//
// # Input Handling
//
// Impact values are not range-checked. Out-of-range values propagate into
// the derived metrics unchanged; validation belongs to the caller.
type PathMemory struct {
	mu sync.RWMutex

	events      []PathEvent
	constraints []Constraint
	critical    []PathEvent
	available   []string
	foreclosed  []string

	barriers   []Barrier
	heuristics map[BarrierSubtype]ProximityFunc
	metrics    FlexibilityMetrics

	clock clockz.Clock
}

// NewPathMemory creates an empty ledger with the built-in barrier catalog.
func NewPathMemory() *PathMemory {
	pm := &PathMemory{
		barriers:   BarrierCatalog(),
		heuristics: defaultProximityHeuristics(),
		clock:      clockz.RealClock,
	}
	pm.recompute()
	return pm
}

// WithClock sets the clock used to timestamp events.
func (pm *PathMemory) WithClock(clock clockz.Clock) *PathMemory {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.clock = clock
	return pm
}

// WithProximityHeuristic registers or replaces the heuristic for a barrier
// subtype. A subtype not in the catalog is added as a bare barrier.
func (pm *PathMemory) WithProximityHeuristic(subtype BarrierSubtype, fn ProximityFunc) *PathMemory {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.heuristics[subtype] = fn
	if _, ok := barrierBySubtype(pm.barriers, subtype); !ok {
		pm.barriers = append(pm.barriers, Barrier{
			ID:      "barrier-" + string(subtype),
			Subtype: subtype,
			Name:    string(subtype),
		})
	}
	pm.recompute()
	return pm
}

// WithDeliberativeTechniques replaces the technique set counted by the
// analysis paralysis heuristic.
func (pm *PathMemory) WithDeliberativeTechniques(techniques ...string) *PathMemory {
	return pm.WithProximityHeuristic(AnalysisParalysis, AnalysisParalysisProximity(techniques...))
}

// RecordPathEvent appends a decision to the ledger and recomputes every
// derived metric.
func (pm *PathMemory) RecordPathEvent(technique string, step int, decision string, impact Impact) PathEvent {
	return pm.record(context.Background(), technique, step, decision, impact)
}

func (pm *PathMemory) record(ctx context.Context, technique string, step int, decision string, impact Impact) PathEvent {
	pm.mu.Lock()

	now := pm.clock.Now()
	event := PathEvent{
		ID:                 uuid.New().String(),
		Timestamp:          now,
		Technique:          technique,
		Step:               step,
		Decision:           decision,
		OptionsOpened:      slices.Clone(impact.OptionsOpened),
		OptionsClosed:      slices.Clone(impact.OptionsClosed),
		ReversibilityCost:  impact.reversibilityCost(),
		CommitmentLevel:    impact.commitmentLevel(),
		ConstraintsCreated: []string{},
	}
	if impact.FlexibilityImpact != nil {
		fi := *impact.FlexibilityImpact
		event.FlexibilityImpact = &fi
	}

	for _, opt := range event.OptionsClosed {
		pm.available = slices.DeleteFunc(pm.available, func(o string) bool { return o == opt })
		if !slices.Contains(pm.foreclosed, opt) {
			pm.foreclosed = append(pm.foreclosed, opt)
		}
	}
	for _, opt := range event.OptionsOpened {
		pm.foreclosed = slices.DeleteFunc(pm.foreclosed, func(o string) bool { return o == opt })
		if !slices.Contains(pm.available, opt) {
			pm.available = append(pm.available, opt)
		}
	}

	var constraint *Constraint
	if event.CommitmentLevel > ConstraintCommitmentThreshold {
		c := Constraint{
			ID:                uuid.New().String(),
			Type:              inferConstraintType(decision),
			Description:       fmt.Sprintf("Commitment from %s step %d: %s", technique, step, truncate(decision, 80)),
			Strength:          event.CommitmentLevel,
			AffectedOptions:   slices.Clone(event.OptionsClosed),
			ReversibilityCost: event.ReversibilityCost,
			SourceEventID:     event.ID,
			CreatedAt:         now,
		}
		event.ConstraintsCreated = append(event.ConstraintsCreated, c.ID)
		pm.constraints = append(pm.constraints, c)
		constraint = &c
	}

	isCritical := event.ReversibilityCost > CriticalDecisionThreshold || event.CommitmentLevel > CriticalDecisionThreshold

	pm.events = append(pm.events, event)
	if isCritical {
		pm.critical = append(pm.critical, event)
	}
	pm.recompute()

	count := len(pm.events)
	flexibility := pm.metrics.FlexibilityScore
	pm.mu.Unlock()

	capitan.Emit(ctx, PathEventRecorded,
		FieldEventID.Field(event.ID),
		FieldTechnique.Field(technique),
		FieldStep.Field(step),
		FieldEventCount.Field(count),
		FieldFlexibility.Field(float32(flexibility)),
		FieldCommitment.Field(float32(event.CommitmentLevel)),
	)
	if constraint != nil {
		capitan.Emit(ctx, ConstraintCreated,
			FieldEventID.Field(event.ID),
			FieldConstraint.Field(constraint.ID),
			FieldTechnique.Field(technique),
		)
	}
	if isCritical {
		capitan.Emit(ctx, CriticalDecisionRecorded,
			FieldEventID.Field(event.ID),
			FieldTechnique.Field(technique),
			FieldStep.Field(step),
			FieldCommitment.Field(float32(event.CommitmentLevel)),
		)
	}

	return event
}

// UpdateFlexibilityMetrics recomputes the derived metrics from the ledger
// and returns them.
func (pm *PathMemory) UpdateFlexibilityMetrics() FlexibilityMetrics {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.recompute()
	return pm.metricsCopy()
}

// Metrics returns the current derived metrics.
func (pm *PathMemory) Metrics() FlexibilityMetrics {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.metricsCopy()
}

// recompute rebuilds every derived value. Callers must hold the write lock.
func (pm *PathMemory) recompute() {
	view := pm.view()
	pm.metrics = computeFlexibilityMetrics(view, len(pm.available), len(pm.foreclosed))
	pm.metrics.BarrierProximity = pm.barrierProximity(view)
}

func (pm *PathMemory) view() LedgerView {
	return LedgerView{
		Events:            pm.events,
		Constraints:       pm.constraints,
		CriticalDecisions: pm.critical,
	}
}

// computeFlexibilityMetrics derives every metric except barrier proximity.
func computeFlexibilityMetrics(v LedgerView, available, foreclosed int) FlexibilityMetrics {
	m := FlexibilityMetrics{
		ReversibilityIndex: 1,
		PathDivergence:     float64(len(v.Events)) * PathDivergencePerEvent,
	}

	availableRatio := 1.0
	if total := available + foreclosed; total > 0 {
		availableRatio = float64(available) / float64(total)
	}
	decay := 1.0
	for _, e := range v.Events {
		if e.FlexibilityImpact != nil {
			decay *= 1 - *e.FlexibilityImpact
		}
	}
	m.FlexibilityScore = availableRatio * decay

	if n := len(v.Events); n > 0 {
		reversible := 0
		commitment := 0.0
		for _, e := range v.Events {
			if e.ReversibilityCost < ReversibleCostThreshold {
				reversible++
			}
			commitment += e.CommitmentLevel
		}
		m.ReversibilityIndex = float64(reversible) / float64(n)
		m.CommitmentDepth = commitment / float64(n)
	}

	opened, closed := 0, 0
	for _, e := range v.recent(OptionVelocityWindow) {
		opened += len(e.OptionsOpened)
		closed += len(e.OptionsClosed)
	}
	m.OptionVelocity = float64(opened-closed) / OptionVelocityWindow

	return m
}

// UpdateBarrierProximity recomputes barrier proximity from the ledger and
// returns the updated catalog.
func (pm *PathMemory) UpdateBarrierProximity() []Barrier {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.metrics.BarrierProximity = pm.barrierProximity(pm.view())
	return slices.Clone(pm.metrics.BarrierProximity)
}

// barrierProximity dispatches each catalog barrier to its heuristic.
// Barriers without a heuristic keep zero proximity.
func (pm *PathMemory) barrierProximity(v LedgerView) []Barrier {
	out := make([]Barrier, 0, len(pm.barriers))
	for _, b := range pm.barriers {
		proximity := 0.0
		if fn, ok := pm.heuristics[b.Subtype]; ok {
			proximity = fn(v)
		}
		out = append(out, b.withProximity(proximity))
	}
	return out
}

// EscapeRoutes returns rule-based routes for the current ledger state.
func (pm *PathMemory) EscapeRoutes() []EscapeRoute {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return generateEscapeRoutes(pm.metrics, len(pm.constraints))
}

func generateEscapeRoutes(m FlexibilityMetrics, constraints int) []EscapeRoute {
	var routes []EscapeRoute
	if m.FlexibilityScore < patternInterruptionFlexibility {
		routes = append(routes, EscapeRoute{
			ID:              "pattern_interruption",
			Name:            "Pattern Interruption",
			Description:     "Break the current thinking pattern to surface options the path has hidden",
			Feasibility:     0.8,
			Cost:            0.2,
			FlexibilityGain: 0.3,
			Steps: []string{
				"Stop the current line of reasoning",
				"Apply a random stimulus or provocation",
				"List three options the current path has ruled out",
			},
		})
	}
	if constraints > constraintRelaxationCount {
		routes = append(routes, EscapeRoute{
			ID:              "constraint_relaxation",
			Name:            "Constraint Relaxation",
			Description:     "Revisit accumulated constraints and relax the ones that no longer earn their cost",
			Feasibility:     0.6,
			Cost:            0.4,
			FlexibilityGain: 0.4,
			Steps: []string{
				"List every active constraint",
				"Mark which are assumed rather than required",
				"Relax the weakest assumed constraint",
			},
		})
	}
	if m.CommitmentDepth > strategicPivotCommitment {
		routes = append(routes, EscapeRoute{
			ID:              "strategic_pivot",
			Name:            "Strategic Pivot",
			Description:     "Step back to the goal and choose a different route toward it",
			Feasibility:     0.4,
			Cost:            0.7,
			FlexibilityGain: 0.6,
			Steps: []string{
				"Restate the underlying goal",
				"Identify what has been learned from the current path",
				"Select an alternative approach that reuses those learnings",
			},
		})
	}
	return routes
}

// Snapshot returns an immutable copy of the ledger and its metrics.
func (pm *PathMemory) Snapshot() PathSnapshot {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return PathSnapshot{
		LedgerView: LedgerView{
			Events:            slices.Clone(pm.events),
			Constraints:       slices.Clone(pm.constraints),
			CriticalDecisions: slices.Clone(pm.critical),
		},
		AvailableOptions:  slices.Clone(pm.available),
		ForeclosedOptions: slices.Clone(pm.foreclosed),
		Metrics:           pm.metricsCopy(),
		TakenAt:           pm.clock.Now(),
	}
}

func (pm *PathMemory) metricsCopy() FlexibilityMetrics {
	m := pm.metrics
	m.BarrierProximity = slices.Clone(pm.metrics.BarrierProximity)
	return m
}

// Events returns the ledger in chronological order.
func (pm *PathMemory) Events() []PathEvent {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return slices.Clone(pm.events)
}

// Constraints returns every constraint synthesized so far.
func (pm *PathMemory) Constraints() []Constraint {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return slices.Clone(pm.constraints)
}

// CriticalDecisions returns the events that crossed the critical threshold.
func (pm *PathMemory) CriticalDecisions() []PathEvent {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return slices.Clone(pm.critical)
}

// AvailableOptions returns options currently open.
func (pm *PathMemory) AvailableOptions() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return slices.Clone(pm.available)
}

// ForeclosedOptions returns options currently closed.
func (pm *PathMemory) ForeclosedOptions() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return slices.Clone(pm.foreclosed)
}

// Len returns the number of events in the ledger.
func (pm *PathMemory) Len() int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return len(pm.events)
}
