package ergodic

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Protocol execution precondition errors.
var (
	ErrUnknownProtocol         = errors.New("unknown escape protocol")
	ErrConfirmationRequired    = errors.New("escape protocol requires confirmation")
	ErrInsufficientFlexibility = errors.New("insufficient flexibility for escape protocol")
)

// Gain multiplier ranges applied to a protocol's estimated gain.
const (
	successGainMin   = 0.8
	successGainSpan  = 0.4
	failureGainSpan  = 0.2
	newConstraintCap = 0.6
)

// minimumProtocolLevel is the lowest level that meets a severity. A
// critical warning skips pattern interruption but stays within the levels
// auto-escape may run unconfirmed.
var minimumProtocolLevel = map[WarningLevel]int{
	LevelCaution:  LevelPatternInterruption,
	LevelWarning:  LevelPatternInterruption,
	LevelCritical: LevelResourceReallocation,
}

// EscapeResponse records one protocol execution. A failed roll is a record
// like any other, not an error.
type EscapeResponse struct {
	ID                string         `json:"id"`
	Protocol          EscapeProtocol `json:"protocol"`
	SessionKey        string         `json:"sessionKey,omitempty"`
	Success           bool           `json:"success"`
	FlexibilityBefore float64        `json:"flexibilityBefore"`
	FlexibilityGained float64        `json:"flexibilityGained"`
	EstimatedGain     float64        `json:"estimatedGain"`
	SideEffects       []string       `json:"sideEffects"`
	NewConstraints    []Constraint   `json:"newConstraints"`
	ExecutedAt        time.Time      `json:"executedAt"`
}

// Outcome is "success" or "failure".
func (r EscapeResponse) Outcome() string {
	if r.Success {
		return "success"
	}
	return "failure"
}

// ExecuteRequest asks the engine to run one protocol against a snapshot.
type ExecuteRequest struct {
	Level      int
	Snapshot   PathSnapshot
	SessionKey string
	Confirmed  bool
}

// ProtocolEngine recommends and executes escape protocols and tracks how
// often each level actually succeeds.
type ProtocolEngine struct {
	mu      sync.Mutex
	rng     *rand.Rand
	clock   clockz.Clock
	history *historyCache[string, EscapeResponse]
	metrics *Metrics
}

// NewProtocolEngine creates an engine with bounded execution history.
func NewProtocolEngine() *ProtocolEngine {
	return &ProtocolEngine{
		rng:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		clock:   clockz.RealClock,
		history: newHistoryCache[string, EscapeResponse](DefaultMaxExecutionHistory, DefaultExecutionTTL),
	}
}

// WithRand sets the random source used for outcome rolls.
func (e *ProtocolEngine) WithRand(r *rand.Rand) *ProtocolEngine {
	e.rng = r
	return e
}

// WithSeed seeds a deterministic random source.
func (e *ProtocolEngine) WithSeed(seed uint64) *ProtocolEngine {
	return e.WithRand(rand.New(rand.NewPCG(seed, seed)))
}

// WithClock sets the clock used for execution timestamps and history TTL.
func (e *ProtocolEngine) WithClock(clock clockz.Clock) *ProtocolEngine {
	e.clock = clock
	return e
}

// WithHistoryLimits bounds the execution history by count and age.
func (e *ProtocolEngine) WithHistoryLimits(capacity int, ttl time.Duration) *ProtocolEngine {
	e.history = newHistoryCache[string, EscapeResponse](capacity, ttl)
	return e
}

// WithMetrics records execution outcomes.
func (e *ProtocolEngine) WithMetrics(m *Metrics) *ProtocolEngine {
	e.metrics = m
	return e
}

// Protocols returns the catalog ordered by level.
func (e *ProtocolEngine) Protocols() []EscapeProtocol {
	return Protocols()
}

// Protocol looks up a protocol by level.
func (e *ProtocolEngine) Protocol(level int) (EscapeProtocol, bool) {
	return ProtocolByLevel(level)
}

// Recommend returns the lowest-level protocol that meets the warning's
// severity and that the snapshot's flexibility can afford, or nil.
func (e *ProtocolEngine) Recommend(warning BarrierWarning, snap PathSnapshot) *EscapeProtocol {
	minLevel, ok := minimumProtocolLevel[warning.Severity]
	if !ok {
		return nil
	}
	flexibility := snap.Metrics.FlexibilityScore
	for _, p := range protocolCatalog {
		if p.Level < minLevel {
			continue
		}
		if p.RequiredFlexibility <= flexibility {
			out := p
			return &out
		}
	}
	return nil
}

// Execute runs a protocol. Precondition failures return an error; a failed
// outcome roll does not.
func (e *ProtocolEngine) Execute(ctx context.Context, req ExecuteRequest) (*EscapeResponse, error) {
	protocol, ok := ProtocolByLevel(req.Level)
	if !ok {
		return nil, fmt.Errorf("level %d: %w", req.Level, ErrUnknownProtocol)
	}
	if protocol.RequiresConfirmation() && !req.Confirmed {
		return nil, fmt.Errorf("%s (level %d): %w", protocol.Name, protocol.Level, ErrConfirmationRequired)
	}
	flexibility := req.Snapshot.Metrics.FlexibilityScore
	if protocol.RequiredFlexibility > flexibility {
		return nil, fmt.Errorf("%s needs %.2f, have %.2f: %w",
			protocol.Name, protocol.RequiredFlexibility, flexibility, ErrInsufficientFlexibility)
	}

	e.mu.Lock()
	now := e.clock.Now()
	success := e.rng.Float64() < protocol.SuccessProbability
	var gained float64
	if success {
		gained = protocol.EstimatedFlexibilityGain * (successGainMin + e.rng.Float64()*successGainSpan)
	} else {
		gained = protocol.EstimatedFlexibilityGain * e.rng.Float64() * failureGainSpan
	}

	resp := EscapeResponse{
		ID:                uuid.New().String(),
		Protocol:          protocol,
		SessionKey:        req.SessionKey,
		Success:           success,
		FlexibilityBefore: flexibility,
		FlexibilityGained: gained,
		EstimatedGain:     protocol.EstimatedFlexibilityGain,
		SideEffects:       sideEffects(protocol, success),
		NewConstraints:    newConstraints(protocol, success, now),
		ExecutedAt:        now,
	}
	e.history.expire(now)
	e.history.put(resp.ID, resp, now)
	e.mu.Unlock()

	e.metrics.observeExecution(resp)
	capitan.Emit(ctx, ProtocolExecuted,
		FieldSession.Field(req.SessionKey),
		FieldProtocol.Field(protocol.ID),
		FieldProtocolLevel.Field(protocol.Level),
		FieldOutcome.Field(resp.Outcome()),
		FieldFlexibility.Field(float32(gained)),
	)

	return &resp, nil
}

// SuccessRate returns the observed success rate for a level and the number
// of executions it is based on. With no retained executions it falls back
// to the catalog's static probability.
func (e *ProtocolEngine) SuccessRate(level int) (float64, int) {
	protocol, ok := ProtocolByLevel(level)
	if !ok {
		return 0, 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.expire(e.clock.Now())

	n, succeeded := 0, 0
	for _, r := range e.history.values() {
		if r.Protocol.Level != level {
			continue
		}
		n++
		if r.Success {
			succeeded++
		}
	}
	if n == 0 {
		return protocol.SuccessProbability, 0
	}
	return float64(succeeded) / float64(n), n
}

// History returns retained executions, most recent first.
func (e *ProtocolEngine) History() []EscapeResponse {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history.expire(e.clock.Now())
	return e.history.values()
}

var protocolSideEffects = map[int][]string{
	LevelPatternInterruption:  {"Current train of thought interrupted"},
	LevelResourceReallocation: {"Effort withdrawn from the lowest-return thread"},
	LevelStakeholderReset:     {"Prior commitments renegotiated", "Stakeholders need a revised summary"},
	LevelTechnicalRefactoring: {"Temporary slowdown while dependents migrate"},
	LevelStrategicPivot:       {"Work tied to the old direction is retired", "Team must realign on the new goal framing"},
}

func sideEffects(p EscapeProtocol, success bool) []string {
	out := append([]string{}, protocolSideEffects[p.Level]...)
	if !success {
		out = append(out, fmt.Sprintf("%s did not restore meaningful flexibility", p.Name))
	}
	return out
}

var protocolConstraints = map[int]struct {
	kind        ConstraintType
	description string
}{
	LevelStakeholderReset:     {ConstraintRelational, "Renegotiated baseline must be honored"},
	LevelTechnicalRefactoring: {ConstraintTechnical, "Migration must stay behind the new seam"},
	LevelStrategicPivot:       {ConstraintStrategic, "Committed to the new strategic direction"},
}

// newConstraints records the commitments a successful high-level protocol
// creates in the course of escaping.
func newConstraints(p EscapeProtocol, success bool, now time.Time) []Constraint {
	c, ok := protocolConstraints[p.Level]
	if !ok || !success {
		return []Constraint{}
	}
	return []Constraint{{
		ID:                uuid.New().String(),
		Type:              c.kind,
		Description:       c.description,
		Strength:          min(p.RequiredFlexibility+0.1, newConstraintCap),
		AffectedOptions:   []string{},
		ReversibilityCost: p.RequiredFlexibility,
		SourceEventID:     p.ID,
		CreatedAt:         now,
	}}
}
