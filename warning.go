package ergodic

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BarrierWarning is raised for each barrier a sensor monitors when its
// reading is not safe. Warnings are advisory; nothing blocks on them.
type BarrierWarning struct {
	ID               string           `json:"id"`
	Timestamp        time.Time        `json:"timestamp"`
	Sensor           SensorType       `json:"sensor"`
	Barrier          Barrier          `json:"barrier"`
	Reading          SensorReading    `json:"reading"`
	Severity         WarningLevel     `json:"severity"`
	Message          string           `json:"message"`
	DetailedAnalysis string           `json:"detailedAnalysis"`
	Recommendations  []string         `json:"recommendations"`
	EscapeProtocols  []EscapeProtocol `json:"escapeProtocols"`
}

// RequiresAttention reports whether the warning should interrupt the user.
func (w BarrierWarning) RequiresAttention() bool {
	return w.Severity == LevelWarning || w.Severity == LevelCritical
}

// PrioritizeWarnings orders warnings CRITICAL, WARNING, CAUTION, SAFE and
// by ascending reading distance within a severity. The input is not
// modified.
func PrioritizeWarnings(warnings []BarrierWarning) []BarrierWarning {
	out := slices.Clone(warnings)
	slices.SortStableFunc(out, func(a, b BarrierWarning) int {
		if pa, pb := a.Severity.Priority(), b.Severity.Priority(); pa != pb {
			return pa - pb
		}
		switch {
		case a.Reading.Distance < b.Reading.Distance:
			return -1
		case a.Reading.Distance > b.Reading.Distance:
			return 1
		default:
			return 0
		}
	})
	return out
}

var severityRecommendations = map[WarningLevel]string{
	LevelCaution:  "Prefer reversible moves and keep monitoring",
	LevelWarning:  "Avoid irreversible commitments until the distance recovers",
	LevelCritical: "Stop and apply an escape protocol before the next commitment",
}

// warningInput bundles what the coordinator knows when synthesizing a
// warning.
type warningInput struct {
	reading SensorReading
	barrier Barrier
	snap    PathSnapshot
	steps   int
	now     time.Time
}

// newBarrierWarning synthesizes one warning for a non-safe reading.
func newBarrierWarning(in warningInput) BarrierWarning {
	r := in.reading
	b := in.barrier

	message := fmt.Sprintf("%s: %s sensor reports %s approaching (distance %.2f)",
		r.WarningLevel, r.SensorType, b.Name, r.Distance)
	if flex := in.snap.Metrics.FlexibilityScore; flex < LowFlexibilityContextLimit {
		message += fmt.Sprintf(". Flexibility is critically low (%.2f)", flex)
	}
	if in.steps > LongSessionContextSteps {
		message += fmt.Sprintf(". Session has run %d steps", in.steps)
	}

	var analysis strings.Builder
	fmt.Fprintf(&analysis, "Reading %.2f with confidence %.2f, approach rate %+.2f.",
		r.RawValue, r.Confidence, r.ApproachRate)
	fmt.Fprintf(&analysis, " Ledger proximity to %s is %.2f", b.Name, b.Proximity)
	if b.EstimatedStepsToImpact != nil {
		fmt.Fprintf(&analysis, " with roughly %d steps to impact", *b.EstimatedStepsToImpact)
	}
	analysis.WriteString(".")
	if len(r.Indicators) > 0 {
		fmt.Fprintf(&analysis, " Indicators: %s.", strings.Join(r.Indicators, "; "))
	}

	recommendations := slices.Clone(b.AvoidanceStrategies)
	if rec, ok := severityRecommendations[r.WarningLevel]; ok {
		recommendations = append(recommendations, rec)
	}

	return BarrierWarning{
		ID:               uuid.New().String(),
		Timestamp:        in.now,
		Sensor:           r.SensorType,
		Barrier:          b,
		Reading:          r,
		Severity:         r.WarningLevel,
		Message:          message,
		DetailedAnalysis: analysis.String(),
		Recommendations:  recommendations,
		EscapeProtocols:  suggestedProtocols(b, r.WarningLevel),
	}
}

// CompoundRisk reports whether a prioritized warning set carries more than
// one critical warning, or a critical warning alongside several warnings.
func CompoundRisk(warnings []BarrierWarning) bool {
	critical, warning := countSeverity(warnings)
	return critical > 1 || (critical > 0 && warning > 1)
}

func countSeverity(warnings []BarrierWarning) (critical, warning int) {
	for _, w := range warnings {
		switch w.Severity {
		case LevelCritical:
			critical++
		case LevelWarning:
			warning++
		}
	}
	return critical, warning
}

// Action is the coordinator's recommendation for the next step.
type Action string

// Recommended actions, least to most drastic.
const (
	ActionContinue Action = "continue"
	ActionCaution  Action = "caution"
	ActionPivot    Action = "pivot"
	ActionEscape   Action = "escape"
)

// RecommendAction derives the next action from one tick's warnings alone.
func RecommendAction(warnings []BarrierWarning) Action {
	critical, warning := countSeverity(warnings)
	switch {
	case CompoundRisk(warnings) || critical > 0:
		return ActionEscape
	case warning > 0:
		return ActionPivot
	case slices.ContainsFunc(warnings, func(w BarrierWarning) bool { return w.Severity == LevelCaution }):
		return ActionCaution
	default:
		return ActionContinue
	}
}

// AvailableEscapeRoutes unions the warnings' attached protocols, keeps
// those the current flexibility can afford and sorts them by descending
// success probability.
func AvailableEscapeRoutes(warnings []BarrierWarning, flexibility float64) []EscapeProtocol {
	seen := map[int]struct{}{}
	var out []EscapeProtocol
	for _, w := range warnings {
		for _, p := range w.EscapeProtocols {
			if _, ok := seen[p.Level]; ok {
				continue
			}
			seen[p.Level] = struct{}{}
			if p.RequiredFlexibility <= flexibility {
				out = append(out, p)
			}
		}
	}
	slices.SortStableFunc(out, func(a, b EscapeProtocol) int {
		switch {
		case a.SuccessProbability > b.SuccessProbability:
			return -1
		case a.SuccessProbability < b.SuccessProbability:
			return 1
		default:
			return a.Level - b.Level
		}
	})
	return out
}
