package ergodic

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Archive is an optional write-behind sink for what a step computed.
// Nothing in the core reads it back; failures are reported and ignored.
type Archive interface {
	// ArchiveEvent persists a ledger event under a session key.
	ArchiveEvent(ctx context.Context, sessionKey string, event PathEvent) error

	// ArchiveWarnings persists a tick's prioritized warnings.
	ArchiveWarnings(ctx context.Context, sessionKey string, warnings []BarrierWarning) error

	// ArchiveEscape persists a protocol execution.
	ArchiveEscape(ctx context.Context, resp EscapeResponse) error
}

// EventRecord is the stored form of a PathEvent.
type EventRecord struct {
	ID                string    `db:"id" type:"uuid" constraints:"primarykey"`
	SessionKey        string    `db:"session_key" type:"text" constraints:"notnull"`
	Technique         string    `db:"technique" type:"text" constraints:"notnull"`
	Step              int       `db:"step" type:"integer" constraints:"notnull"`
	Decision          string    `db:"decision" type:"text" constraints:"notnull"`
	OptionsOpened     string    `db:"options_opened" type:"jsonb" default:"'[]'"`
	OptionsClosed     string    `db:"options_closed" type:"jsonb" default:"'[]'"`
	ReversibilityCost float64   `db:"reversibility_cost" type:"double precision" constraints:"notnull"`
	CommitmentLevel   float64   `db:"commitment_level" type:"double precision" constraints:"notnull"`
	Constraints       string    `db:"constraints_created" type:"jsonb" default:"'[]'"`
	FlexibilityImpact *float64  `db:"flexibility_impact" type:"double precision"`
	RecordedAt        time.Time `db:"recorded_at" type:"timestamp" constraints:"notnull"`
}

// WarningRecord is the stored form of a BarrierWarning.
type WarningRecord struct {
	ID         string    `db:"id" type:"uuid" constraints:"primarykey"`
	SessionKey string    `db:"session_key" type:"text" constraints:"notnull"`
	Sensor     string    `db:"sensor" type:"text" constraints:"notnull"`
	Barrier    string    `db:"barrier" type:"text" constraints:"notnull"`
	Severity   string    `db:"severity" type:"text" constraints:"notnull"`
	Distance   float64   `db:"distance" type:"double precision" constraints:"notnull"`
	Confidence float64   `db:"confidence" type:"double precision" constraints:"notnull"`
	Message    string    `db:"message" type:"text" constraints:"notnull"`
	Protocols  string    `db:"protocols" type:"jsonb" default:"'[]'"`
	RaisedAt   time.Time `db:"raised_at" type:"timestamp" constraints:"notnull"`
}

// EscapeRecord is the stored form of an EscapeResponse.
type EscapeRecord struct {
	ID                string    `db:"id" type:"uuid" constraints:"primarykey"`
	SessionKey        string    `db:"session_key" type:"text" constraints:"notnull"`
	ProtocolID        string    `db:"protocol_id" type:"text" constraints:"notnull"`
	Level             int       `db:"level" type:"integer" constraints:"notnull"`
	Success           bool      `db:"success" type:"boolean" constraints:"notnull"`
	FlexibilityBefore float64   `db:"flexibility_before" type:"double precision" constraints:"notnull"`
	FlexibilityGained float64   `db:"flexibility_gained" type:"double precision" constraints:"notnull"`
	EstimatedGain     float64   `db:"estimated_gain" type:"double precision" constraints:"notnull"`
	SideEffects       string    `db:"side_effects" type:"jsonb" default:"'[]'"`
	ExecutedAt        time.Time `db:"executed_at" type:"timestamp" constraints:"notnull"`
}

// NewEventRecord flattens an event for storage.
func NewEventRecord(sessionKey string, e PathEvent) (*EventRecord, error) {
	opened, err := encodeList(e.OptionsOpened)
	if err != nil {
		return nil, err
	}
	closed, err := encodeList(e.OptionsClosed)
	if err != nil {
		return nil, err
	}
	constraints, err := encodeList(e.ConstraintsCreated)
	if err != nil {
		return nil, err
	}
	return &EventRecord{
		ID:                e.ID,
		SessionKey:        sessionKey,
		Technique:         e.Technique,
		Step:              e.Step,
		Decision:          e.Decision,
		OptionsOpened:     opened,
		OptionsClosed:     closed,
		ReversibilityCost: e.ReversibilityCost,
		CommitmentLevel:   e.CommitmentLevel,
		Constraints:       constraints,
		FlexibilityImpact: e.FlexibilityImpact,
		RecordedAt:        e.Timestamp,
	}, nil
}

// Event restores the PathEvent a record was built from.
func (r *EventRecord) Event() (PathEvent, error) {
	e := PathEvent{
		ID:                r.ID,
		Timestamp:         r.RecordedAt,
		Technique:         r.Technique,
		Step:              r.Step,
		Decision:          r.Decision,
		ReversibilityCost: r.ReversibilityCost,
		CommitmentLevel:   r.CommitmentLevel,
		FlexibilityImpact: r.FlexibilityImpact,
	}
	var err error
	if e.OptionsOpened, err = decodeList(r.OptionsOpened); err != nil {
		return PathEvent{}, err
	}
	if e.OptionsClosed, err = decodeList(r.OptionsClosed); err != nil {
		return PathEvent{}, err
	}
	if e.ConstraintsCreated, err = decodeList(r.Constraints); err != nil {
		return PathEvent{}, err
	}
	return e, nil
}

// NewWarningRecord flattens a warning for storage.
func NewWarningRecord(sessionKey string, w BarrierWarning) (*WarningRecord, error) {
	ids := make([]string, len(w.EscapeProtocols))
	for i, p := range w.EscapeProtocols {
		ids[i] = p.ID
	}
	protocols, err := encodeList(ids)
	if err != nil {
		return nil, err
	}
	return &WarningRecord{
		ID:         w.ID,
		SessionKey: sessionKey,
		Sensor:     string(w.Sensor),
		Barrier:    string(w.Barrier.Subtype),
		Severity:   string(w.Severity),
		Distance:   w.Reading.Distance,
		Confidence: w.Reading.Confidence,
		Message:    w.Message,
		Protocols:  protocols,
		RaisedAt:   w.Timestamp,
	}, nil
}

// NewEscapeRecord flattens a protocol execution for storage.
func NewEscapeRecord(resp EscapeResponse) (*EscapeRecord, error) {
	effects, err := encodeList(resp.SideEffects)
	if err != nil {
		return nil, err
	}
	return &EscapeRecord{
		ID:                resp.ID,
		SessionKey:        resp.SessionKey,
		ProtocolID:        resp.Protocol.ID,
		Level:             resp.Protocol.Level,
		Success:           resp.Success,
		FlexibilityBefore: resp.FlexibilityBefore,
		FlexibilityGained: resp.FlexibilityGained,
		EstimatedGain:     resp.EstimatedGain,
		SideEffects:       effects,
		ExecutedAt:        resp.ExecutedAt,
	}, nil
}

func encodeList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(data string) ([]string, error) {
	out := []string{}
	if data == "" {
		return out, nil
	}
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to decode list: %w", err)
	}
	return out, nil
}
