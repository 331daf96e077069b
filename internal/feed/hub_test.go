package feed

import (
	"fmt"
	"testing"

	"copytraderv1/internal/model"
)

func TestHub_PublishAndRecent(t *testing.T) {
	h := NewHub()
	for i := 0; i < 3; i++ {
		h.Publish(model.Trade{TradeID: fmt.Sprintf("t%d", i), Symbol: "INFY"})
	}

	recent := h.Recent()
	if len(recent) != 3 {
		t.Fatalf("expected 3 trades, got %d", len(recent))
	}
	if recent[0].TradeID != "t0" || recent[2].TradeID != "t2" {
		t.Errorf("unexpected ordering: %+v", recent)
	}
}

func TestHub_RecentBufferBounded(t *testing.T) {
	h := NewHub()
	for i := 0; i < recentCap+10; i++ {
		h.Publish(model.Trade{TradeID: fmt.Sprintf("t%d", i)})
	}
	recent := h.Recent()
	if len(recent) != recentCap {
		t.Fatalf("expected buffer capped at %d, got %d", recentCap, len(recent))
	}
	if recent[0].TradeID != "t10" {
		t.Errorf("oldest entries should have been dropped, got %s first", recent[0].TradeID)
	}
}

func TestHub_SubscribeReceives(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	h.Publish(model.Trade{TradeID: "t1"})

	select {
	case tr := <-ch:
		if tr.TradeID != "t1" {
			t.Errorf("unexpected trade: %+v", tr)
		}
	default:
		t.Fatal("subscriber did not receive the trade")
	}
}

func TestHub_CancelStopsDelivery(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	cancel()
	cancel() // second cancel must be safe

	h.Publish(model.Trade{TradeID: "t1"})

	// Channel is closed; receive yields the zero value immediately.
	if tr, ok := <-ch; ok && tr.TradeID == "t1" {
		t.Error("cancelled subscriber should not receive trades")
	}
}
