package journal

import (
	"path/filepath"
	"testing"
	"time"
)

func TestJournal_RecordAndRecent(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	base := time.Now().Add(-time.Minute)
	entries := []Entry{
		{SourceOrderID: "src-1", AccountID: "A2", PlacedOrderID: "ord-1", Symbol: "INFY", Quantity: 10, Attempts: 1, Status: StatusReplicated, CreatedAt: base},
		{SourceOrderID: "src-1", AccountID: "A3", Symbol: "INFY", Quantity: 5, Attempts: 3, Status: StatusFailed, Reason: "margin exceeded", CreatedAt: base.Add(time.Second)},
	}
	for _, e := range entries {
		if err := j.Record(e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := j.Recent(10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(got))
	}
	// Newest first.
	if got[0].AccountID != "A3" {
		t.Errorf("expected newest entry first, got %s", got[0].AccountID)
	}
	if got[0].Status != StatusFailed || got[0].Reason != "margin exceeded" {
		t.Errorf("failure details lost: %+v", got[0])
	}
	if got[1].PlacedOrderID != "ord-1" {
		t.Errorf("placed order id lost: %+v", got[1])
	}
	if got[0].ID == "" {
		t.Error("entry id was not assigned")
	}
}

func TestJournal_RecentLimit(t *testing.T) {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	for i := 0; i < 5; i++ {
		if err := j.Record(Entry{SourceOrderID: "s", AccountID: "A", Symbol: "X", Status: StatusReplicated}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	got, err := j.Recent(3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("expected 3 entries, got %d", len(got))
	}
}
