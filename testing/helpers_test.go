package ergodictest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/ergodic"
)

func TestScriptedSensor(t *testing.T) {
	ctx := context.Background()
	clock := clockz.NewFakeClockAt(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))

	t.Run("replays script then repeats last step", func(t *testing.T) {
		s := NewScriptedSensor(ergodic.SensorCognitive, []ergodic.BarrierSubtype{ergodic.CognitiveLockIn},
			Distance(0.9), Distance(0.2)).WithClock(clock)

		first, err := s.Measure(ctx, ergodic.PathSnapshot{}, nil)
		if err != nil {
			t.Fatalf("Measure failed: %v", err)
		}
		if first.WarningLevel != ergodic.LevelSafe {
			t.Errorf("expected SAFE, got %s", first.WarningLevel)
		}

		for i := 0; i < 2; i++ {
			r, err := s.Measure(ctx, ergodic.PathSnapshot{}, nil)
			if err != nil {
				t.Fatalf("Measure failed: %v", err)
			}
			if r.WarningLevel != ergodic.LevelWarning {
				t.Errorf("call %d: expected WARNING, got %s", i+2, r.WarningLevel)
			}
		}
		if s.Calls() != 3 {
			t.Errorf("expected 3 calls, got %d", s.Calls())
		}
	})

	t.Run("scripted failure", func(t *testing.T) {
		s := NewScriptedSensor(ergodic.SensorResource, nil, Fail())
		_, err := s.Measure(ctx, ergodic.PathSnapshot{}, nil)
		if !errors.Is(err, ErrScripted) {
			t.Fatalf("expected ErrScripted, got %v", err)
		}
	})

	t.Run("slow step honors context", func(t *testing.T) {
		s := NewScriptedSensor(ergodic.SensorResource, nil, Slow(0.5, time.Minute))
		cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := s.Measure(cctx, ergodic.PathSnapshot{}, nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("expected deadline exceeded, got %v", err)
		}
	})
}

func TestMockArchive(t *testing.T) {
	ctx := context.Background()
	archive := NewMockArchive()

	t.Run("stores by session", func(t *testing.T) {
		if err := archive.ArchiveEvent(ctx, "a", ergodic.PathEvent{ID: "e1"}); err != nil {
			t.Fatalf("ArchiveEvent failed: %v", err)
		}
		if err := archive.ArchiveWarnings(ctx, "a", []ergodic.BarrierWarning{{ID: "w1"}, {ID: "w2"}}); err != nil {
			t.Fatalf("ArchiveWarnings failed: %v", err)
		}
		if err := archive.ArchiveEscape(ctx, ergodic.EscapeResponse{ID: "x1", SessionKey: "a"}); err != nil {
			t.Fatalf("ArchiveEscape failed: %v", err)
		}

		if got := len(archive.Events("a")); got != 1 {
			t.Errorf("expected 1 event, got %d", got)
		}
		if got := len(archive.Warnings("a")); got != 2 {
			t.Errorf("expected 2 warnings, got %d", got)
		}
		if got := len(archive.Events("b")); got != 0 {
			t.Errorf("expected no events for other session, got %d", got)
		}
		if got := len(archive.Escapes()); got != 1 {
			t.Errorf("expected 1 escape, got %d", got)
		}
	})

	t.Run("fails when told to", func(t *testing.T) {
		boom := errors.New("boom")
		archive.FailWith(boom)
		if err := archive.ArchiveEvent(ctx, "a", ergodic.PathEvent{}); !errors.Is(err, boom) {
			t.Errorf("expected boom, got %v", err)
		}
	})
}

func TestNewSession(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	s := NewSession("six_hats", "reduce churn", start, 3)

	if len(s.History) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(s.History))
	}
	if s.History[2].Step != 3 {
		t.Errorf("expected last step 3, got %d", s.History[2].Step)
	}
	if key := ergodic.SessionKey(s); key != "six_hats:reduce churn" {
		t.Errorf("unexpected session key %q", key)
	}
}
