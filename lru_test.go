package ergodic

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHistoryCache(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l := newHistoryCache[string, int](2, time.Hour)

	l.put("a", 1, base)
	l.put("b", 2, base)
	if _, ok := l.get("a"); !ok {
		t.Fatal("expected a")
	}

	evicted := l.put("c", 3, base)
	if diff := cmp.Diff([]string{"b"}, evicted); diff != "" {
		t.Errorf("eviction mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{3, 1}, l.values()); diff != "" {
		t.Errorf("recency order mismatch (-want +got):\n%s", diff)
	}

	t.Run("update refreshes stamp", func(t *testing.T) {
		l.put("a", 10, base.Add(90*time.Minute))
		expired := l.expire(base.Add(2 * time.Hour))
		if diff := cmp.Diff([]string{"c"}, expired); diff != "" {
			t.Errorf("expiry mismatch (-want +got):\n%s", diff)
		}
		if v, ok := l.peek("a"); !ok || v != 10 {
			t.Errorf("expected a=10, got %v %v", v, ok)
		}
	})

	t.Run("clear", func(t *testing.T) {
		l.clear()
		if l.len() != 0 {
			t.Errorf("expected empty, got %d", l.len())
		}
		if evicted := l.put("d", 4, base); len(evicted) != 0 {
			t.Errorf("cleared entries must not surface as evictions, got %v", evicted)
		}
	})
}

func TestWarningHistory_Bounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := newWarningHistory("k", now)
	for i := 0; i < warningHistoryDepth+10; i++ {
		h.add([]BarrierWarning{warningAt(LevelCaution, 0.4, Cynicism)}, now)
	}
	if len(h.Warnings) != warningHistoryDepth {
		t.Errorf("expected %d warnings retained, got %d", warningHistoryDepth, len(h.Warnings))
	}
	if len(h.Patterns) != 1 || h.Patterns[0].Occurrences != warningHistoryDepth+10 {
		t.Errorf("expected pattern occurrences to keep counting, got %+v", h.Patterns)
	}
}

func TestWarningHistory_DetectsOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	h := newWarningHistory("k", now)
	w := warningAt(LevelWarning, 0.2, TechnicalDebt)

	if got := h.add([]BarrierWarning{w}, now); len(got) != 0 {
		t.Errorf("expected nothing recurring after one warning, got %v", got)
	}
	if got := h.add([]BarrierWarning{w}, now); len(got) != 1 {
		t.Errorf("expected pattern detected on second warning, got %v", got)
	}
	if got := h.add([]BarrierWarning{w}, now); len(got) != 0 {
		t.Errorf("expected pattern reported only once, got %v", got)
	}
}
