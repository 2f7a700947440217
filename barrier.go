package ergodic

import (
	"math"
	"slices"
)

// BarrierType groups barriers by the resource they exhaust.
type BarrierType string

// Barrier types.
const (
	BarrierCognitive BarrierType = "cognitive"
	BarrierResource  BarrierType = "resource"
	BarrierTechnical BarrierType = "technical"
	BarrierEmotional BarrierType = "emotional"
)

// BarrierSubtype identifies one systemic failure mode in the catalog.
type BarrierSubtype string

// Catalog subtypes.
const (
	CognitiveLockIn   BarrierSubtype = "cognitive_lock_in"
	AnalysisParalysis BarrierSubtype = "analysis_paralysis"
	ResourceDepletion BarrierSubtype = "resource_depletion"
	TechnicalDebt     BarrierSubtype = "technical_debt"
	Perfectionism     BarrierSubtype = "perfectionism"
	Cynicism          BarrierSubtype = "cynicism"
)

// Barrier is a catalog entry describing one absorbing failure state. The
// proximity fields are recomputed from the ledger on every update.
type Barrier struct {
	ID                  string         `json:"id" yaml:"id"`
	Type                BarrierType    `json:"type" yaml:"type"`
	Subtype             BarrierSubtype `json:"subtype" yaml:"subtype"`
	Name                string         `json:"name" yaml:"name"`
	Description         string         `json:"description" yaml:"description"`
	Indicators          []string       `json:"indicators" yaml:"indicators"`
	AvoidanceStrategies []string       `json:"avoidanceStrategies" yaml:"avoidance_strategies"`

	Proximity              float64 `json:"proximity" yaml:"proximity"`
	Distance               float64 `json:"distance" yaml:"distance"`
	ApproachRate           float64 `json:"approachRate" yaml:"approach_rate"`
	EstimatedStepsToImpact *int    `json:"estimatedStepsToImpact,omitempty" yaml:"estimated_steps_to_impact,omitempty"`
}

// Proximity heuristic constants.
const (
	lockInWindow             = 10
	lockInScale              = 0.8
	depletionHorizon         = 50.0
	depletionScale           = 0.7
	paralysisCommitmentLimit = 0.3
	paralysisHorizon         = 10.0
	paralysisScale           = 0.8
	perfectionismScale       = 0.7
	cynicismClosureRatio     = 2
	cynicismScale            = 0.8
	debtConstraintHorizon    = 10.0
	debtConstraintScale      = 0.5
	debtReversibilityScale   = 0.3

	fastApproachProximity = 0.5
	fastApproachRate      = 0.1
	slowApproachRate      = 0.05
	etaProximityFloor     = 0.3
)

// BarrierCatalog returns a fresh copy of the built-in barrier catalog with
// zero proximity.
func BarrierCatalog() []Barrier {
	return []Barrier{
		{
			ID:          "barrier-cognitive-lock-in",
			Type:        BarrierCognitive,
			Subtype:     CognitiveLockIn,
			Name:        "Cognitive Lock-in",
			Description: "Thinking collapses onto a single frame and alternative perspectives stop being generated",
			Indicators:  []string{"repeated technique", "no new perspectives", "dismissal of alternatives"},
			AvoidanceStrategies: []string{
				"Switch to a contrasting technique",
				"Argue the opposite position deliberately",
			},
		},
		{
			ID:          "barrier-analysis-paralysis",
			Type:        BarrierCognitive,
			Subtype:     AnalysisParalysis,
			Name:        "Analysis Paralysis",
			Description: "Deliberation continues without commitment until the window to act closes",
			Indicators:  []string{"low commitment", "repeated evaluation", "deferred decisions"},
			AvoidanceStrategies: []string{
				"Timebox the next decision",
				"Commit to a small reversible experiment",
			},
		},
		{
			ID:          "barrier-resource-depletion",
			Type:        BarrierResource,
			Subtype:     ResourceDepletion,
			Name:        "Resource Depletion",
			Description: "Energy, time or budget runs out before the problem is resolved",
			Indicators:  []string{"long session", "declining option generation", "rising reversals"},
			AvoidanceStrategies: []string{
				"Checkpoint and pause",
				"Narrow scope to the highest-value thread",
			},
		},
		{
			ID:          "barrier-technical-debt",
			Type:        BarrierTechnical,
			Subtype:     TechnicalDebt,
			Name:        "Technical Debt Spiral",
			Description: "Accumulated constraints make every further change more expensive than the last",
			Indicators:  []string{"constraint accumulation", "costly reversals", "tight coupling"},
			AvoidanceStrategies: []string{
				"Pay down the most coupled constraint first",
				"Prefer additive over replacing changes",
			},
		},
		{
			ID:          "barrier-perfectionism",
			Type:        BarrierEmotional,
			Subtype:     Perfectionism,
			Name:        "Perfectionism",
			Description: "Nothing is ever good enough to commit to, so nothing ships",
			Indicators:  []string{"few critical decisions", "endless refinement"},
			AvoidanceStrategies: []string{
				"Define a done criterion up front",
				"Ship a deliberately rough version",
			},
		},
		{
			ID:          "barrier-cynicism",
			Type:        BarrierEmotional,
			Subtype:     Cynicism,
			Name:        "Cynicism",
			Description: "Options are closed far faster than they are opened and engagement collapses",
			Indicators:  []string{"options closed in bulk", "dismissive decisions"},
			AvoidanceStrategies: []string{
				"Reopen one previously dismissed option",
				"Seek an outside perspective",
			},
		},
	}
}

// ProximityFunc computes a 0..1 proximity to one barrier from the ledger.
type ProximityFunc func(LedgerView) float64

// defaultProximityHeuristics returns the subtype lookup table.
func defaultProximityHeuristics() map[BarrierSubtype]ProximityFunc {
	return map[BarrierSubtype]ProximityFunc{
		CognitiveLockIn:   CognitiveLockInProximity,
		AnalysisParalysis: AnalysisParalysisProximity(DefaultDeliberativeTechniques...),
		ResourceDepletion: ResourceDepletionProximity,
		TechnicalDebt:     TechnicalDebtProximity,
		Perfectionism:     PerfectionismProximity,
		Cynicism:          CynicismProximity,
	}
}

// DefaultDeliberativeTechniques are the techniques whose low-commitment
// steps count toward analysis paralysis.
var DefaultDeliberativeTechniques = []string{"six_hats"}

// CognitiveLockInProximity is (1 - unique technique ratio) over the last
// ten events, scaled by 0.8.
func CognitiveLockInProximity(v LedgerView) float64 {
	window := v.recent(lockInWindow)
	if len(window) == 0 {
		return 0
	}
	unique := make(map[string]struct{}, len(window))
	for _, e := range window {
		unique[e.Technique] = struct{}{}
	}
	return (1 - float64(len(unique))/float64(len(window))) * lockInScale
}

// ResourceDepletionProximity grows linearly with ledger length up to fifty
// events, scaled by 0.7.
func ResourceDepletionProximity(v LedgerView) float64 {
	return math.Min(float64(len(v.Events))/depletionHorizon, 1) * depletionScale
}

// AnalysisParalysisProximity counts low-commitment events on the given
// techniques, saturating at ten, scaled by 0.8.
func AnalysisParalysisProximity(techniques ...string) ProximityFunc {
	return func(v LedgerView) float64 {
		low := 0
		for _, e := range v.Events {
			if e.CommitmentLevel < paralysisCommitmentLimit && slices.Contains(techniques, e.Technique) {
				low++
			}
		}
		return math.Min(float64(low)/paralysisHorizon, 1) * paralysisScale
	}
}

// PerfectionismProximity is (1 - critical decision ratio) scaled by 0.7.
func PerfectionismProximity(v LedgerView) float64 {
	if len(v.Events) == 0 {
		return 0
	}
	ratio := float64(len(v.CriticalDecisions)) / float64(len(v.Events))
	return (1 - ratio) * perfectionismScale
}

// CynicismProximity is the rate of events closing more than twice the
// options they open, scaled by 0.8.
func CynicismProximity(v LedgerView) float64 {
	if len(v.Events) == 0 {
		return 0
	}
	cynical := 0
	for _, e := range v.Events {
		if len(e.OptionsClosed) > cynicismClosureRatio*len(e.OptionsOpened) {
			cynical++
		}
	}
	return math.Min(float64(cynical)/float64(len(v.Events)), 1) * cynicismScale
}

// TechnicalDebtProximity combines constraint count with the mean
// reversibility cost of those constraints.
func TechnicalDebtProximity(v LedgerView) float64 {
	if len(v.Constraints) == 0 {
		return 0
	}
	cost := 0.0
	for _, c := range v.Constraints {
		cost += c.ReversibilityCost
	}
	mean := cost / float64(len(v.Constraints))
	return math.Min(float64(len(v.Constraints))/debtConstraintHorizon, 1)*debtConstraintScale +
		mean*debtReversibilityScale
}

// withProximity returns a copy of b carrying the given proximity and its
// derived distance, approach rate and time to impact.
func (b Barrier) withProximity(proximity float64) Barrier {
	b.Proximity = proximity
	b.Distance = 1 - proximity
	b.ApproachRate = slowApproachRate
	if proximity > fastApproachProximity {
		b.ApproachRate = fastApproachRate
	}
	b.EstimatedStepsToImpact = nil
	if proximity >= etaProximityFloor {
		steps := int(math.Round((1 - proximity) / b.ApproachRate))
		b.EstimatedStepsToImpact = &steps
	}
	return b
}

// barrierBySubtype finds a barrier in a slice.
func barrierBySubtype(barriers []Barrier, subtype BarrierSubtype) (Barrier, bool) {
	for _, b := range barriers {
		if b.Subtype == subtype {
			return b, true
		}
	}
	return Barrier{}, false
}
