// Package feed distributes newly observed trades and replication
// outcomes: an in-process hub feeds the SSE stream endpoint, and an
// optional Redis publisher mirrors everything onto pub/sub channels for
// external consumers.
package feed

import (
	"sync"

	"copytraderv1/internal/model"
)

const recentCap = 500

// Hub fans observed trades out to stream subscribers and keeps a
// bounded recent-trade buffer for the listing endpoint. Trades are
// ephemeral; when the buffer wraps, old entries are gone.
type Hub struct {
	mu     sync.RWMutex
	recent []model.Trade
	subs   map[chan model.Trade]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		subs: make(map[chan model.Trade]struct{}),
	}
}

// Publish records a trade and delivers it to every subscriber. Slow
// subscribers are skipped rather than blocking the publisher.
func (h *Hub) Publish(t model.Trade) {
	h.mu.Lock()
	h.recent = append(h.recent, t)
	if len(h.recent) > recentCap {
		h.recent = h.recent[len(h.recent)-recentCap:]
	}
	for ch := range h.subs {
		select {
		case ch <- t:
		default:
		}
	}
	h.mu.Unlock()
}

// Recent returns a copy of the buffered trades, oldest first.
func (h *Hub) Recent() []model.Trade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.Trade, len(h.recent))
	copy(out, h.recent)
	return out
}

// Subscribe registers a new stream consumer. The returned cancel func
// must be called on disconnect.
func (h *Hub) Subscribe() (<-chan model.Trade, func()) {
	ch := make(chan model.Trade, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}
