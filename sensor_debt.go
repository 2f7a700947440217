package ergodic

import (
	"math"
	"time"

	"github.com/zoobzio/clockz"
)

// Technical debt blend weights.
const (
	DebtEntropyWeight  = 0.25
	DebtCouplingWeight = 0.3
	DebtVelocityWeight = 0.2
	DebtRefactorWeight = 0.25

	debtWindow          = 5
	debtChurnPerStep    = 3.0
	debtIndicatorLimit  = 0.6
	constraintTypeCount = 5.0
)

// TechnicalDebtSensor measures how expensive the accumulated path has made
// further change. It is authoritative for technical debt and perfectionism.
type TechnicalDebtSensor struct {
	*sensorCore
}

// NewTechnicalDebtSensor creates a technical debt sensor with the given
// calibration.
func NewTechnicalDebtSensor(cal Calibration) *TechnicalDebtSensor {
	s := &TechnicalDebtSensor{}
	s.sensorCore = newSensorCore(SensorTechnicalDebt, []BarrierSubtype{TechnicalDebt, Perfectionism}, cal, s.measure)
	return s
}

// WithClock sets the clock used for reading timestamps.
func (s *TechnicalDebtSensor) WithClock(clock clockz.Clock) *TechnicalDebtSensor {
	s.setClock(clock)
	return s
}

func (s *TechnicalDebtSensor) measure(snap PathSnapshot, _ *SessionData, _ time.Time) (rawMeasurement, error) {
	entropy := constraintEntropy(snap.Constraints)
	coupling := clamp01(ratio(float64(len(snap.Constraints)), float64(len(snap.Events))))
	velocity := changeVelocity(snap)
	refactor := meanReversibilityCost(snap.Events)

	value := entropy*DebtEntropyWeight +
		coupling*DebtCouplingWeight +
		velocity*DebtVelocityWeight +
		refactor*DebtRefactorWeight

	var indicators []string
	if entropy > debtIndicatorLimit {
		indicators = append(indicators, "commitments scattered across unrelated concerns")
	}
	if coupling > debtIndicatorLimit {
		indicators = append(indicators, "most steps create binding constraints")
	}
	if velocity > debtIndicatorLimit {
		indicators = append(indicators, "high option churn")
	}
	if refactor > debtIndicatorLimit {
		indicators = append(indicators, "decisions are expensive to undo")
	}

	return rawMeasurement{
		value:      clamp01(value),
		indicators: indicators,
		context: map[string]float64{
			"entropy":     entropy,
			"coupling":    coupling,
			"velocity":    velocity,
			"refactor":    refactor,
			"constraints": float64(len(snap.Constraints)),
		},
	}, nil
}

// constraintEntropy is the Shannon entropy of constraint types normalized
// to [0, 1].
func constraintEntropy(constraints []Constraint) float64 {
	if len(constraints) == 0 {
		return 0
	}
	counts := map[ConstraintType]int{}
	for _, c := range constraints {
		counts[c.Type]++
	}
	h := 0.0
	n := float64(len(constraints))
	for _, count := range counts {
		p := float64(count) / n
		h -= p * math.Log(p)
	}
	return clamp01(h / math.Log(constraintTypeCount))
}

// changeVelocity is recent option churn, saturating at three option
// changes per step.
func changeVelocity(snap PathSnapshot) float64 {
	churn := 0
	for _, e := range snap.recent(debtWindow) {
		churn += len(e.OptionsOpened) + len(e.OptionsClosed)
	}
	return clamp01(float64(churn) / (debtWindow * debtChurnPerStep))
}

func meanReversibilityCost(events []PathEvent) float64 {
	if len(events) == 0 {
		return 0
	}
	sum := 0.0
	for _, e := range events {
		sum += e.ReversibilityCost
	}
	return sum / float64(len(events))
}
