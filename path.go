package ergodic

import (
	"strings"
	"time"
)

// PathEvent is one immutable entry in the path-dependency ledger.
// It captures a single decision's effect on the options still open to a
// session. Events are created once per step and never mutated.
type PathEvent struct {
	ID                 string    `json:"id" yaml:"id"`
	Timestamp          time.Time `json:"timestamp" yaml:"timestamp"`
	Technique          string    `json:"technique" yaml:"technique"`
	Step               int       `json:"step" yaml:"step"`
	Decision           string    `json:"decision" yaml:"decision"`
	OptionsOpened      []string  `json:"optionsOpened" yaml:"options_opened"`
	OptionsClosed      []string  `json:"optionsClosed" yaml:"options_closed"`
	ReversibilityCost  float64   `json:"reversibilityCost" yaml:"reversibility_cost"`
	CommitmentLevel    float64   `json:"commitmentLevel" yaml:"commitment_level"`
	ConstraintsCreated []string  `json:"constraintsCreated" yaml:"constraints_created"`
	FlexibilityImpact  *float64  `json:"flexibilityImpact,omitempty" yaml:"flexibility_impact,omitempty"`
}

// Impact describes what a decision did to the option space. Nil pointer
// fields take the ledger defaults; values are not range-checked.
type Impact struct {
	OptionsOpened     []string `json:"optionsOpened,omitempty" yaml:"options_opened,omitempty"`
	OptionsClosed     []string `json:"optionsClosed,omitempty" yaml:"options_closed,omitempty"`
	ReversibilityCost *float64 `json:"reversibilityCost,omitempty" yaml:"reversibility_cost,omitempty"`
	CommitmentLevel   *float64 `json:"commitmentLevel,omitempty" yaml:"commitment_level,omitempty"`
	FlexibilityImpact *float64 `json:"flexibilityImpact,omitempty" yaml:"flexibility_impact,omitempty"`
}

// Float returns a pointer to v for populating optional Impact fields.
func Float(v float64) *float64 {
	return &v
}

func (i Impact) reversibilityCost() float64 {
	if i.ReversibilityCost == nil {
		return DefaultReversibilityCost
	}
	return *i.ReversibilityCost
}

func (i Impact) commitmentLevel() float64 {
	if i.CommitmentLevel == nil {
		return DefaultCommitmentLevel
	}
	return *i.CommitmentLevel
}

// ConstraintType classifies what a constraint binds.
type ConstraintType string

// Constraint types.
const (
	ConstraintTechnical  ConstraintType = "technical"
	ConstraintResource   ConstraintType = "resource"
	ConstraintCognitive  ConstraintType = "cognitive"
	ConstraintRelational ConstraintType = "relational"
	ConstraintStrategic  ConstraintType = "strategic"
)

// Constraint is synthesized from a high-commitment PathEvent and lives as
// long as the owning session.
type Constraint struct {
	ID                string         `json:"id" yaml:"id"`
	Type              ConstraintType `json:"type" yaml:"type"`
	Description       string         `json:"description" yaml:"description"`
	Strength          float64        `json:"strength" yaml:"strength"`
	AffectedOptions   []string       `json:"affectedOptions" yaml:"affected_options"`
	ReversibilityCost float64        `json:"reversibilityCost" yaml:"reversibility_cost"`
	SourceEventID     string         `json:"sourceEventId" yaml:"source_event_id"`
	CreatedAt         time.Time      `json:"createdAt" yaml:"created_at"`
}

// constraintKeywords maps decision vocabulary onto constraint types.
// Checked in order; the first match wins.
var constraintKeywords = []struct {
	kind  ConstraintType
	words []string
}{
	{ConstraintResource, []string{"budget", "invest", "spend", "hire", "resource", "funding", "cost"}},
	{ConstraintTechnical, []string{"architecture", "platform", "stack", "framework", "database", "build", "implement"}},
	{ConstraintRelational, []string{"partner", "stakeholder", "customer", "team", "promise", "contract", "announce"}},
	{ConstraintCognitive, []string{"assume", "believe", "always", "never", "only way", "must"}},
}

// inferConstraintType picks a constraint type from the decision text,
// defaulting to strategic.
func inferConstraintType(decision string) ConstraintType {
	lower := strings.ToLower(decision)
	for _, entry := range constraintKeywords {
		for _, word := range entry.words {
			if strings.Contains(lower, word) {
				return entry.kind
			}
		}
	}
	return ConstraintStrategic
}

// LedgerView is a read-only view of the ledger handed to proximity
// heuristics and sensors.
type LedgerView struct {
	Events            []PathEvent  `json:"events"`
	Constraints       []Constraint `json:"constraints"`
	CriticalDecisions []PathEvent  `json:"criticalDecisions"`
}

// recent returns up to n trailing events.
func (v LedgerView) recent(n int) []PathEvent {
	if len(v.Events) <= n {
		return v.Events
	}
	return v.Events[len(v.Events)-n:]
}

// PathSnapshot is an immutable copy of a PathMemory at one instant.
// Monitoring ticks run every sensor against the same snapshot.
type PathSnapshot struct {
	LedgerView
	AvailableOptions  []string           `json:"availableOptions"`
	ForeclosedOptions []string           `json:"foreclosedOptions"`
	Metrics           FlexibilityMetrics `json:"metrics"`
	TakenAt           time.Time          `json:"takenAt"`
}

// Barrier returns the snapshot's proximity entry for a barrier subtype.
func (s PathSnapshot) Barrier(subtype BarrierSubtype) (Barrier, bool) {
	return barrierBySubtype(s.Metrics.BarrierProximity, subtype)
}
