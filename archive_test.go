package ergodic

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEventRecordRoundTrip(t *testing.T) {
	pm := NewPathMemory()
	e := pm.RecordPathEvent("scamper", 4, "commit to the supplier", Impact{
		OptionsOpened:     []string{"local"},
		OptionsClosed:     []string{"offshore", "in-house"},
		CommitmentLevel:   Float(0.8),
		FlexibilityImpact: Float(0.2),
	})

	rec, err := NewEventRecord("scamper:supply", e)
	if err != nil {
		t.Fatalf("NewEventRecord failed: %v", err)
	}
	if rec.SessionKey != "scamper:supply" || rec.OptionsClosed != `["offshore","in-house"]` {
		t.Errorf("unexpected record: %+v", rec)
	}

	back, err := rec.Event()
	if err != nil {
		t.Fatalf("Event failed: %v", err)
	}
	if diff := cmp.Diff(e, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEventRecordBadList(t *testing.T) {
	rec := &EventRecord{OptionsOpened: "{not json"}
	if _, err := rec.Event(); err == nil {
		t.Error("expected decode error")
	}
}

func TestListEncoding(t *testing.T) {
	got, err := encodeList(nil)
	if err != nil || got != "[]" {
		t.Errorf("expected empty array for nil, got %q %v", got, err)
	}
	list, err := decodeList("")
	if err != nil || list == nil || len(list) != 0 {
		t.Errorf("expected empty non-nil list, got %v %v", list, err)
	}
}

func TestWarningAndEscapeRecords(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l1, _ := ProtocolByLevel(LevelPatternInterruption)
	l2, _ := ProtocolByLevel(LevelResourceReallocation)

	w := warningAt(LevelWarning, 0.2, ResourceDepletion)
	w.Sensor = SensorResource
	w.Timestamp = now
	w.EscapeProtocols = []EscapeProtocol{l1, l2}
	wr, err := NewWarningRecord("k", w)
	if err != nil {
		t.Fatalf("NewWarningRecord failed: %v", err)
	}
	if wr.Protocols != `["pattern_interruption","resource_reallocation"]` {
		t.Errorf("unexpected protocols %q", wr.Protocols)
	}
	if wr.Barrier != string(ResourceDepletion) || wr.Severity != string(LevelWarning) || !wr.RaisedAt.Equal(now) {
		t.Errorf("unexpected warning record: %+v", wr)
	}

	er, err := NewEscapeRecord(EscapeResponse{
		ID:          "exec-1",
		SessionKey:  "k",
		Protocol:    l2,
		Success:     true,
		SideEffects: []string{"temporary slowdown"},
		ExecutedAt:  now,
	})
	if err != nil {
		t.Fatalf("NewEscapeRecord failed: %v", err)
	}
	if er.ProtocolID != l2.ID || er.Level != LevelResourceReallocation || er.SideEffects != `["temporary slowdown"]` {
		t.Errorf("unexpected escape record: %+v", er)
	}
}
