package ergodic

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/zoobzio/clockz"
)

func TestNewPathMemory(t *testing.T) {
	pm := NewPathMemory()
	m := pm.Metrics()

	if m.FlexibilityScore != 1 {
		t.Errorf("expected flexibility 1 on an empty ledger, got %v", m.FlexibilityScore)
	}
	if m.ReversibilityIndex != 1 {
		t.Errorf("expected reversibility index 1, got %v", m.ReversibilityIndex)
	}
	if m.CommitmentDepth != 0 {
		t.Errorf("expected commitment depth 0, got %v", m.CommitmentDepth)
	}
	if len(m.BarrierProximity) != len(BarrierCatalog()) {
		t.Errorf("expected %d barriers, got %d", len(BarrierCatalog()), len(m.BarrierProximity))
	}
	if pm.Len() != 0 {
		t.Errorf("expected empty ledger, got %d events", pm.Len())
	}
}

func TestRecordPathEvent(t *testing.T) {
	clock := clockz.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	pm := NewPathMemory().WithClock(clock)

	e := pm.RecordPathEvent("scamper", 1, "substitute the onboarding email", Impact{
		OptionsOpened: []string{"sms", "in-app"},
	})

	if e.ID == "" {
		t.Error("expected event ID")
	}
	if !e.Timestamp.Equal(clock.Now()) {
		t.Errorf("expected timestamp %v, got %v", clock.Now(), e.Timestamp)
	}
	if e.ReversibilityCost != DefaultReversibilityCost {
		t.Errorf("expected default reversibility cost, got %v", e.ReversibilityCost)
	}
	if e.CommitmentLevel != DefaultCommitmentLevel {
		t.Errorf("expected default commitment, got %v", e.CommitmentLevel)
	}
	if len(e.ConstraintsCreated) != 0 {
		t.Errorf("expected no constraints, got %v", e.ConstraintsCreated)
	}
	if diff := cmp.Diff([]string{"sms", "in-app"}, pm.AvailableOptions()); diff != "" {
		t.Errorf("available options mismatch (-want +got):\n%s", diff)
	}
}

func TestRecordPathEvent_OptionAccounting(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("po", 1, "open", Impact{OptionsOpened: []string{"a", "b", "c", "d"}})
	pm.RecordPathEvent("po", 2, "close a", Impact{OptionsClosed: []string{"a"}})

	if got := pm.Metrics().FlexibilityScore; got != 0.75 {
		t.Errorf("expected flexibility 0.75, got %v", got)
	}
	if diff := cmp.Diff([]string{"a"}, pm.ForeclosedOptions()); diff != "" {
		t.Errorf("foreclosed mismatch (-want +got):\n%s", diff)
	}

	t.Run("reopening clears foreclosure", func(t *testing.T) {
		pm.RecordPathEvent("po", 3, "reopen a", Impact{OptionsOpened: []string{"a"}})
		if len(pm.ForeclosedOptions()) != 0 {
			t.Errorf("expected no foreclosed options, got %v", pm.ForeclosedOptions())
		}
		if got := pm.Metrics().FlexibilityScore; got != 1 {
			t.Errorf("expected flexibility 1, got %v", got)
		}
	})

	t.Run("no duplicates", func(t *testing.T) {
		pm.RecordPathEvent("po", 4, "open b again", Impact{OptionsOpened: []string{"b"}})
		if len(pm.AvailableOptions()) != 4 {
			t.Errorf("expected 4 available options, got %v", pm.AvailableOptions())
		}
	})
}

func TestFlexibilityImpactDecay(t *testing.T) {
	for n := 1; n <= 6; n++ {
		pm := NewPathMemory()
		for i := 0; i < n; i++ {
			pm.RecordPathEvent("six_hats", i+1, "halve it", Impact{FlexibilityImpact: Float(0.5)})
		}
		want := math.Pow(0.5, float64(n))
		if got := pm.Metrics().FlexibilityScore; !approx(got, want) {
			t.Errorf("n=%d: expected flexibility %v, got %v", n, want, got)
		}
	}
}

func TestMetricsStayInRange(t *testing.T) {
	pm := NewPathMemory()
	for i := 0; i < 60; i++ {
		pm.RecordPathEvent("triz", i+1, "we must commit to the platform", Impact{
			OptionsOpened:     []string{"x"},
			OptionsClosed:     []string{"y", "z"},
			ReversibilityCost: Float(0.9),
			CommitmentLevel:   Float(0.9),
			FlexibilityImpact: Float(0.2),
		})
	}
	m := pm.Metrics()
	for name, v := range map[string]float64{
		"flexibility":   m.FlexibilityScore,
		"reversibility": m.ReversibilityIndex,
		"commitment":    m.CommitmentDepth,
	} {
		if v < 0 || v > 1 {
			t.Errorf("%s out of range: %v", name, v)
		}
	}
	for _, b := range m.BarrierProximity {
		if b.Proximity < 0 || b.Proximity > 1 {
			t.Errorf("%s proximity out of range: %v", b.Subtype, b.Proximity)
		}
		if !approx(b.Distance, 1-b.Proximity) {
			t.Errorf("%s distance %v is not 1 - proximity %v", b.Subtype, b.Distance, b.Proximity)
		}
	}
}

func TestDerivedMetrics(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("a", 1, "cheap", Impact{ReversibilityCost: Float(0.2), CommitmentLevel: Float(0.2)})
	pm.RecordPathEvent("a", 2, "costly", Impact{ReversibilityCost: Float(0.6), CommitmentLevel: Float(0.4)})

	m := pm.Metrics()
	if m.ReversibilityIndex != 0.5 {
		t.Errorf("expected reversibility index 0.5, got %v", m.ReversibilityIndex)
	}
	if !approx(m.CommitmentDepth, 0.3) {
		t.Errorf("expected commitment depth 0.3, got %v", m.CommitmentDepth)
	}
	if !approx(m.PathDivergence, 0.2) {
		t.Errorf("expected path divergence 0.2, got %v", m.PathDivergence)
	}
}

func TestOptionVelocity(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("a", 1, "open", Impact{OptionsOpened: []string{"a", "b", "c"}})
	pm.RecordPathEvent("a", 2, "close", Impact{OptionsClosed: []string{"a"}})

	// (3 opened - 1 closed) / 5
	if got := pm.Metrics().OptionVelocity; !approx(got, 0.4) {
		t.Errorf("expected option velocity 0.4, got %v", got)
	}

	for i := 0; i < 5; i++ {
		pm.RecordPathEvent("a", i+3, "idle", Impact{})
	}
	if got := pm.Metrics().OptionVelocity; got != 0 {
		t.Errorf("expected velocity to ignore events outside the window, got %v", got)
	}
}

func TestConstraintSynthesis(t *testing.T) {
	tests := []struct {
		name       string
		decision   string
		commitment float64
		want       ConstraintType
		created    bool
	}{
		{"resource keyword", "we invest the whole budget", 0.8, ConstraintResource, true},
		{"technical keyword", "adopt the new platform", 0.8, ConstraintTechnical, true},
		{"relational keyword", "announce it to every customer", 0.8, ConstraintRelational, true},
		{"cognitive keyword", "we assume growth continues", 0.8, ConstraintCognitive, true},
		{"strategic default", "go north", 0.8, ConstraintStrategic, true},
		{"at threshold", "go north", ConstraintCommitmentThreshold, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pm := NewPathMemory()
			e := pm.RecordPathEvent("a", 1, tt.decision, Impact{
				OptionsClosed:   []string{"south"},
				CommitmentLevel: Float(tt.commitment),
			})
			constraints := pm.Constraints()
			if !tt.created {
				if len(constraints) != 0 || len(e.ConstraintsCreated) != 0 {
					t.Fatalf("expected no constraint, got %v", constraints)
				}
				return
			}
			if len(constraints) != 1 {
				t.Fatalf("expected 1 constraint, got %d", len(constraints))
			}
			c := constraints[0]
			if c.Type != tt.want {
				t.Errorf("expected type %q, got %q", tt.want, c.Type)
			}
			if c.SourceEventID != e.ID {
				t.Errorf("expected source %q, got %q", e.ID, c.SourceEventID)
			}
			if diff := cmp.Diff([]string{c.ID}, e.ConstraintsCreated); diff != "" {
				t.Errorf("event constraint ids mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]string{"south"}, c.AffectedOptions); diff != "" {
				t.Errorf("affected options mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCriticalDecisions(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("a", 1, "at threshold", Impact{ReversibilityCost: Float(CriticalDecisionThreshold)})
	pm.RecordPathEvent("a", 2, "costly", Impact{ReversibilityCost: Float(0.71)})
	pm.RecordPathEvent("a", 3, "committed", Impact{CommitmentLevel: Float(0.9)})

	critical := pm.CriticalDecisions()
	if len(critical) != 2 {
		t.Fatalf("expected 2 critical decisions, got %d", len(critical))
	}
	if critical[0].Step != 2 || critical[1].Step != 3 {
		t.Errorf("unexpected critical steps: %d, %d", critical[0].Step, critical[1].Step)
	}
}

func TestUpdateFlexibilityMetrics_Idempotent(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("six_hats", 1, "white hat", Impact{OptionsOpened: []string{"a", "b"}})
	pm.RecordPathEvent("six_hats", 2, "black hat", Impact{OptionsClosed: []string{"a"}, CommitmentLevel: Float(0.8)})

	first := pm.UpdateFlexibilityMetrics()
	second := pm.UpdateFlexibilityMetrics()
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("recomputation changed metrics (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.BarrierProximity, pm.UpdateBarrierProximity()); diff != "" {
		t.Errorf("barrier recomputation changed proximity (-want +got):\n%s", diff)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	pm := NewPathMemory()
	pm.RecordPathEvent("a", 1, "open", Impact{OptionsOpened: []string{"x"}})

	snap := pm.Snapshot()
	snap.Events[0].Decision = "mutated"
	snap.AvailableOptions[0] = "mutated"
	snap.Metrics.BarrierProximity[0].Proximity = 42

	if pm.Events()[0].Decision != "open" {
		t.Error("snapshot mutation leaked into the ledger events")
	}
	if pm.AvailableOptions()[0] != "x" {
		t.Error("snapshot mutation leaked into available options")
	}
	if pm.Metrics().BarrierProximity[0].Proximity == 42 {
		t.Error("snapshot mutation leaked into barrier proximity")
	}
}

func TestAnalysisParalysis(t *testing.T) {
	pm := NewPathMemory()
	for i := 0; i < 10; i++ {
		pm.RecordPathEvent("six_hats", i+1, "consider another hat", Impact{})
	}

	b, ok := pm.Snapshot().Barrier(AnalysisParalysis)
	if !ok {
		t.Fatal("expected analysis paralysis barrier")
	}
	if b.Proximity <= 0.4 {
		t.Errorf("expected proximity > 0.4 after ten deliberative steps, got %v", b.Proximity)
	}
	if !approx(b.Proximity, 0.8) {
		t.Errorf("expected saturated proximity 0.8, got %v", b.Proximity)
	}

	t.Run("custom techniques", func(t *testing.T) {
		pm := NewPathMemory().WithDeliberativeTechniques("nine_windows")
		for i := 0; i < 10; i++ {
			pm.RecordPathEvent("six_hats", i+1, "consider another hat", Impact{})
		}
		b, _ := pm.Snapshot().Barrier(AnalysisParalysis)
		if b.Proximity != 0 {
			t.Errorf("expected six_hats to be ignored, got %v", b.Proximity)
		}
	})
}

func TestWithProximityHeuristic(t *testing.T) {
	const custom BarrierSubtype = "scope_creep"
	pm := NewPathMemory().WithProximityHeuristic(custom, func(v LedgerView) float64 {
		return float64(len(v.Events)) / 10
	})
	pm.RecordPathEvent("a", 1, "grow", Impact{})
	pm.RecordPathEvent("a", 2, "grow", Impact{})

	b, ok := pm.Snapshot().Barrier(custom)
	if !ok {
		t.Fatal("expected custom barrier in proximity list")
	}
	if !approx(b.Proximity, 0.2) {
		t.Errorf("expected proximity 0.2, got %v", b.Proximity)
	}
}

func TestEscapeRoutes(t *testing.T) {
	t.Run("fresh ledger", func(t *testing.T) {
		if routes := NewPathMemory().EscapeRoutes(); len(routes) != 0 {
			t.Errorf("expected no routes, got %v", routes)
		}
	})

	t.Run("all triggers", func(t *testing.T) {
		pm := NewPathMemory()
		for i := 0; i < 4; i++ {
			pm.RecordPathEvent("a", i+1, "commit", Impact{
				CommitmentLevel:   Float(0.9),
				FlexibilityImpact: Float(0.3),
			})
		}
		var ids []string
		for _, r := range pm.EscapeRoutes() {
			ids = append(ids, r.ID)
		}
		want := []string{"pattern_interruption", "constraint_relaxation", "strategic_pivot"}
		if diff := cmp.Diff(want, ids); diff != "" {
			t.Errorf("routes mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestPathMemory_Concurrent(t *testing.T) {
	pm := NewPathMemory()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				pm.record(context.Background(), "a", i, "step", Impact{OptionsOpened: []string{"o"}})
				_ = pm.Snapshot()
			}
		}(g)
	}
	wg.Wait()
	if pm.Len() != 200 {
		t.Errorf("expected 200 events, got %d", pm.Len())
	}
}
