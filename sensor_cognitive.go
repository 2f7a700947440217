package ergodic

import (
	"math"
	"strings"
	"time"

	"github.com/zoobzio/clockz"
)

// Cognitive blend weights. The sensor reports rigidity, so each factor
// contributes its complement.
const (
	CognitiveDiversityWeight = 0.4
	CognitiveChallengeWeight = 0.35
	CognitiveLearningWeight  = 0.25

	cognitiveLockInProximity = 0.5
	cognitiveLockInAmplifier = 1.15

	cognitiveWindow          = 10
	cognitiveWarmupSteps     = 5.0
	diversityTechniqueTarget = 3.0
	diversityOptionTarget    = 10.0
	learningInsightRate      = 2.0
	cognitiveIndicatorLimit  = 0.6
)

var challengeMarkers = []string{
	"assum", "what if", "challenge", "alternative", "question",
	"instead", "reframe", "opposite", "however", "on the other hand",
}

// CognitiveSensor measures cognitive rigidity from perspective diversity,
// assumption challenging and learning velocity. It is authoritative for
// cognitive lock-in and analysis paralysis.
type CognitiveSensor struct {
	*sensorCore
}

// NewCognitiveSensor creates a cognitive sensor with the given calibration.
func NewCognitiveSensor(cal Calibration) *CognitiveSensor {
	s := &CognitiveSensor{}
	s.sensorCore = newSensorCore(SensorCognitive, []BarrierSubtype{CognitiveLockIn, AnalysisParalysis}, cal, s.measure)
	return s
}

// WithClock sets the clock used for reading timestamps.
func (s *CognitiveSensor) WithClock(clock clockz.Clock) *CognitiveSensor {
	s.setClock(clock)
	return s
}

func (s *CognitiveSensor) measure(snap PathSnapshot, session *SessionData, _ time.Time) (rawMeasurement, error) {
	samples := len(snap.Events)
	if session != nil && len(session.History) > samples {
		samples = len(session.History)
	}
	if samples == 0 {
		return rawMeasurement{context: map[string]float64{"samples": 0}}, nil
	}

	diversity := perspectiveDiversity(snap, session)
	challenge := assumptionChallengeRate(snap, session)
	learning := learningVelocity(session, samples)

	rigidity := (1-diversity)*CognitiveDiversityWeight +
		(1-challenge)*CognitiveChallengeWeight +
		(1-learning)*CognitiveLearningWeight
	rigidity *= math.Min(float64(samples)/cognitiveWarmupSteps, 1)

	var indicators []string
	if 1-diversity > cognitiveIndicatorLimit {
		indicators = append(indicators, "narrow range of perspectives")
	}
	if 1-challenge > cognitiveIndicatorLimit {
		indicators = append(indicators, "assumptions rarely challenged")
	}
	if 1-learning > cognitiveIndicatorLimit {
		indicators = append(indicators, "few new insights per step")
	}
	if b, ok := snap.Barrier(CognitiveLockIn); ok && b.Proximity > cognitiveLockInProximity {
		rigidity *= cognitiveLockInAmplifier
		indicators = append(indicators, "technique lock-in detected")
	}

	return rawMeasurement{
		value:      clamp01(rigidity),
		indicators: indicators,
		context: map[string]float64{
			"diversity": diversity,
			"challenge": challenge,
			"learning":  learning,
			"samples":   float64(samples),
		},
	}, nil
}

// perspectiveDiversity blends distinct techniques with distinct options
// opened over the recent window.
func perspectiveDiversity(snap PathSnapshot, session *SessionData) float64 {
	techniques := map[string]struct{}{}
	for _, e := range snap.recent(cognitiveWindow) {
		techniques[e.Technique] = struct{}{}
	}
	if session != nil {
		for _, h := range recentHistory(session.History, cognitiveWindow) {
			techniques[h.Technique] = struct{}{}
		}
	}
	options := map[string]struct{}{}
	for _, e := range snap.recent(cognitiveWindow) {
		for _, opt := range e.OptionsOpened {
			options[opt] = struct{}{}
		}
	}
	techniqueScore := math.Min(float64(len(techniques))/diversityTechniqueTarget, 1)
	optionScore := math.Min(float64(len(options))/diversityOptionTarget, 1)
	return (techniqueScore + optionScore) / 2
}

// assumptionChallengeRate is the fraction of recent outputs that question
// or reframe something. Session history is preferred over ledger decisions.
func assumptionChallengeRate(snap PathSnapshot, session *SessionData) float64 {
	var texts []string
	if session != nil && len(session.History) > 0 {
		for _, h := range recentHistory(session.History, cognitiveWindow) {
			texts = append(texts, h.Output)
		}
	} else {
		for _, e := range snap.recent(cognitiveWindow) {
			texts = append(texts, e.Decision)
		}
	}
	challenged := 0
	for _, t := range texts {
		if containsAny(strings.ToLower(t), challengeMarkers) {
			challenged++
		}
	}
	return ratio(float64(challenged), float64(len(texts)))
}

// learningVelocity is insights per step, saturating at one insight every
// two steps.
func learningVelocity(session *SessionData, samples int) float64 {
	if session == nil || samples == 0 {
		return 0
	}
	return math.Min(float64(len(session.Insights))/float64(samples)*learningInsightRate, 1)
}

func recentHistory(history []HistoryEntry, n int) []HistoryEntry {
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}
