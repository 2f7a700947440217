package ergodic

import (
	"slices"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
)

// Resource blend weights.
const (
	ResourceEnergyWeight     = 0.3
	ResourceTimeWeight       = 0.25
	ResourceBudgetWeight     = 0.25
	ResourceEfficiencyWeight = 0.2

	// resourceCriticalDecisionLimit triggers the critical-decision
	// amplifier when exceeded.
	resourceCriticalDecisionLimit = 3
	resourceCriticalAmplifier     = 1.2
	resourceBarrierDistance       = 0.3
	resourceBarrierAmplifier      = 1.1

	resourceWindow          = 5
	resourceIndicatorLimit  = 0.6
	energyGenerationShare   = 0.6
	energyCommitmentShare   = 0.4
	progressCommitmentFloor = 0.5
)

// sessionDurationBuckets maps elapsed wall-clock time to time pressure.
var sessionDurationBuckets = []struct {
	under    time.Duration
	pressure float64
}{
	{15 * time.Minute, 0.1},
	{30 * time.Minute, 0.3},
	{60 * time.Minute, 0.5},
	{120 * time.Minute, 0.7},
}

const sessionDurationMaxPressure = 0.9

var reversalWords = []string{"revert", "undo", "roll back", "rollback", "reconsider", "go back", "abandon"}

// ResourceSensor measures energy, time and budget depletion. It is
// authoritative for resource depletion and cynicism.
type ResourceSensor struct {
	*sensorCore
}

// NewResourceSensor creates a resource sensor with the given calibration.
func NewResourceSensor(cal Calibration) *ResourceSensor {
	s := &ResourceSensor{}
	s.sensorCore = newSensorCore(SensorResource, []BarrierSubtype{ResourceDepletion, Cynicism}, cal, s.measure)
	return s
}

// WithClock sets the clock used for timestamps and session duration.
func (s *ResourceSensor) WithClock(clock clockz.Clock) *ResourceSensor {
	s.setClock(clock)
	return s
}

func (s *ResourceSensor) measure(snap PathSnapshot, session *SessionData, now time.Time) (rawMeasurement, error) {
	energy := energyDepletion(snap)
	elapsed := sessionElapsed(snap, session, now)
	timePressure := durationPressure(elapsed)
	budget := clamp01(1 - snap.Metrics.FlexibilityScore)
	efficiency := reversalInefficiency(snap)

	value := energy*ResourceEnergyWeight +
		timePressure*ResourceTimeWeight +
		budget*ResourceBudgetWeight +
		efficiency*ResourceEfficiencyWeight

	var indicators []string
	if energy > resourceIndicatorLimit {
		indicators = append(indicators, "high energy expenditure on commitments")
	}
	if timePressure > resourceIndicatorLimit {
		indicators = append(indicators, "extended session duration")
	}
	if budget > resourceIndicatorLimit {
		indicators = append(indicators, "option budget largely spent")
	}
	if efficiency > resourceIndicatorLimit {
		indicators = append(indicators, "frequent reversals relative to progress")
	}

	if len(snap.CriticalDecisions) > resourceCriticalDecisionLimit {
		value *= resourceCriticalAmplifier
		indicators = append(indicators, "multiple critical decisions made")
	}
	if slices.ContainsFunc(snap.Metrics.BarrierProximity, func(b Barrier) bool {
		return b.Distance < resourceBarrierDistance
	}) {
		value *= resourceBarrierAmplifier
		indicators = append(indicators, "a barrier is within close range")
	}

	return rawMeasurement{
		value:      clamp01(value),
		indicators: indicators,
		context: map[string]float64{
			"energy":            energy,
			"time":              timePressure,
			"budget":            budget,
			"efficiency":        efficiency,
			"elapsedMinutes":    elapsed.Minutes(),
			"criticalDecisions": float64(len(snap.CriticalDecisions)),
		},
	}, nil
}

// energyDepletion rises when recent steps close more options than they
// open and when commitment runs deep.
func energyDepletion(snap PathSnapshot) float64 {
	recent := snap.recent(resourceWindow)
	if len(recent) == 0 {
		return 0
	}
	opened, closed := 0, 0
	for _, e := range recent {
		opened += len(e.OptionsOpened)
		closed += len(e.OptionsClosed)
	}
	generation := 0.5
	if opened+closed > 0 {
		generation = float64(opened) / float64(opened+closed)
	}
	return clamp01((1-generation)*energyGenerationShare + snap.Metrics.CommitmentDepth*energyCommitmentShare)
}

// sessionElapsed measures wall-clock time since the session started,
// falling back to the first ledger event.
func sessionElapsed(snap PathSnapshot, session *SessionData, now time.Time) time.Duration {
	start := time.Time{}
	if session != nil && !session.StartTime.IsZero() {
		start = session.StartTime
	} else if len(snap.Events) > 0 {
		start = snap.Events[0].Timestamp
	}
	if start.IsZero() || now.Before(start) {
		return 0
	}
	return now.Sub(start)
}

func durationPressure(elapsed time.Duration) float64 {
	for _, bucket := range sessionDurationBuckets {
		if elapsed < bucket.under {
			return bucket.pressure
		}
	}
	return sessionDurationMaxPressure
}

// reversalInefficiency is reversals / (progress + reversals). A reversal
// reopens a foreclosed option or announces a rollback; progress is a
// committed step.
func reversalInefficiency(snap PathSnapshot) float64 {
	closedSoFar := map[string]struct{}{}
	progress, reversals := 0, 0
	for _, e := range snap.Events {
		reversed := containsAny(strings.ToLower(e.Decision), reversalWords)
		for _, opt := range e.OptionsOpened {
			if _, ok := closedSoFar[opt]; ok {
				reversed = true
			}
		}
		for _, opt := range e.OptionsClosed {
			closedSoFar[opt] = struct{}{}
		}
		switch {
		case reversed:
			reversals++
		case e.CommitmentLevel >= progressCommitmentFloor:
			progress++
		}
	}
	return ratio(float64(reversals), float64(progress+reversals))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
