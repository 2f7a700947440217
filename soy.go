package ergodic

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zoobzio/astql/postgres"
	"github.com/zoobzio/soy"
)

// SoyArchive implements Archive using soy for persistence.
type SoyArchive struct {
	events   *soy.Soy[EventRecord]
	warnings *soy.Soy[WarningRecord]
	escapes  *soy.Soy[EscapeRecord]
	db       *sqlx.DB
}

// NewSoyArchive creates a new soy-backed Archive implementation.
func NewSoyArchive(db *sqlx.DB) (*SoyArchive, error) {
	renderer := postgres.New()

	events, err := soy.New[EventRecord](db, "path_events", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize path_events table: %w", err)
	}

	warnings, err := soy.New[WarningRecord](db, "barrier_warnings", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize barrier_warnings table: %w", err)
	}

	escapes, err := soy.New[EscapeRecord](db, "escape_responses", renderer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize escape_responses table: %w", err)
	}

	return &SoyArchive{
		events:   events,
		warnings: warnings,
		escapes:  escapes,
		db:       db,
	}, nil
}

// ArchiveEvent persists a ledger event.
func (a *SoyArchive) ArchiveEvent(ctx context.Context, sessionKey string, event PathEvent) error {
	record, err := NewEventRecord(sessionKey, event)
	if err != nil {
		return err
	}
	if _, err := a.events.Insert().Exec(ctx, record); err != nil {
		return fmt.Errorf("failed to insert path event: %w", err)
	}
	return nil
}

// ArchiveWarnings persists a tick's warnings in priority order.
func (a *SoyArchive) ArchiveWarnings(ctx context.Context, sessionKey string, warnings []BarrierWarning) error {
	for _, w := range warnings {
		record, err := NewWarningRecord(sessionKey, w)
		if err != nil {
			return err
		}
		if _, err := a.warnings.Insert().Exec(ctx, record); err != nil {
			return fmt.Errorf("failed to insert warning: %w", err)
		}
	}
	return nil
}

// ArchiveEscape persists a protocol execution.
func (a *SoyArchive) ArchiveEscape(ctx context.Context, resp EscapeResponse) error {
	record, err := NewEscapeRecord(resp)
	if err != nil {
		return err
	}
	if _, err := a.escapes.Insert().Exec(ctx, record); err != nil {
		return fmt.Errorf("failed to insert escape response: %w", err)
	}
	return nil
}

// EventsForSession loads a session's ledger in step order.
func (a *SoyArchive) EventsForSession(ctx context.Context, sessionKey string) ([]PathEvent, error) {
	records, err := a.events.Query().
		Where("session_key", "=", "session_key").
		OrderBy("recorded_at", "asc").
		Exec(ctx, map[string]any{"session_key": sessionKey})
	if err != nil {
		return nil, fmt.Errorf("failed to get path events: %w", err)
	}

	events := make([]PathEvent, 0, len(records))
	for _, r := range records {
		e, err := r.Event()
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, nil
}

// WarningsForSession loads a session's warnings, oldest first.
func (a *SoyArchive) WarningsForSession(ctx context.Context, sessionKey string) ([]*WarningRecord, error) {
	records, err := a.warnings.Query().
		Where("session_key", "=", "session_key").
		OrderBy("raised_at", "asc").
		Exec(ctx, map[string]any{"session_key": sessionKey})
	if err != nil {
		return nil, fmt.Errorf("failed to get warnings: %w", err)
	}
	return records, nil
}

// EscapesForSession loads a session's protocol executions, oldest first.
func (a *SoyArchive) EscapesForSession(ctx context.Context, sessionKey string) ([]*EscapeRecord, error) {
	records, err := a.escapes.Query().
		Where("session_key", "=", "session_key").
		OrderBy("executed_at", "asc").
		Exec(ctx, map[string]any{"session_key": sessionKey})
	if err != nil {
		return nil, fmt.Errorf("failed to get escape responses: %w", err)
	}
	return records, nil
}

// DeleteSession removes everything archived under a session key.
func (a *SoyArchive) DeleteSession(ctx context.Context, sessionKey string) error {
	params := map[string]any{"session_key": sessionKey}
	if _, err := a.events.Remove().Where("session_key", "=", "session_key").Exec(ctx, params); err != nil {
		return fmt.Errorf("failed to delete path events: %w", err)
	}
	if _, err := a.warnings.Remove().Where("session_key", "=", "session_key").Exec(ctx, params); err != nil {
		return fmt.Errorf("failed to delete warnings: %w", err)
	}
	if _, err := a.escapes.Remove().Where("session_key", "=", "session_key").Exec(ctx, params); err != nil {
		return fmt.Errorf("failed to delete escape responses: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (a *SoyArchive) Close() error {
	return a.db.Close()
}

var _ Archive = (*SoyArchive)(nil)
