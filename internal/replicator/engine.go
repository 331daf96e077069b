// Package replicator contains the order replication engine and its
// run-state controller. The engine consumes the primary account's live
// order events, filters them through the origin and eligibility gates,
// and fans placement out across follower accounts with bounded retry.
// Failures stay isolated per follower: one follower exhausting its
// retries never blocks or delays the others.
package replicator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/feed"
	"copytraderv1/internal/journal"
	"copytraderv1/internal/logsink"
	"copytraderv1/internal/metrics"
	"copytraderv1/internal/model"
	"copytraderv1/internal/rules"
)

// Placer submits one order for one account. A single attempt per call;
// the engine owns retry.
type Placer interface {
	PlaceOrder(ctx context.Context, accountID string, spec model.OrderSpec) (string, error)
}

// Accounts is the read-only registry view the engine needs.
type Accounts interface {
	Primary() (model.Account, bool)
	All() []model.Account
}

// Recorder persists replication outcomes.
type Recorder interface {
	Record(journal.Entry) error
}

// OutcomePublisher mirrors outcomes to external consumers.
type OutcomePublisher interface {
	PublishTrade(ctx context.Context, t model.Trade)
	PublishOutcome(ctx context.Context, o feed.Outcome)
}

// RetryPolicy bounds placement retries: MaxAttempts total tries with a
// fixed backoff between them. No exponential growth, no jitter.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy is one initial attempt plus two retries, one
// second apart. The ceiling is deliberate, not a tunable.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 3, Backoff: time.Second}

// EngineConfig wires an Engine. Accounts, Rules and Placer are
// required; everything else is optional.
type EngineConfig struct {
	Accounts Accounts
	Rules    rules.RuleSet
	Placer   Placer
	Policy   RetryPolicy
	Hub      *feed.Hub
	Journal  Recorder
	Outcomes OutcomePublisher
	Metrics  *metrics.Metrics
	Sleep    func(time.Duration) // injectable backoff sleep
}

// Engine replicates primary-account order events onto followers.
type Engine struct {
	accounts Accounts
	rules    rules.RuleSet
	placer   Placer
	policy   RetryPolicy
	hub      *feed.Hub
	journal  Recorder
	outcomes OutcomePublisher
	metrics  *metrics.Metrics
	sleep    func(time.Duration)

	active atomic.Bool
}

// NewEngine builds an engine in the inactive state.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Policy.MaxAttempts <= 0 {
		cfg.Policy = DefaultRetryPolicy
	}
	if cfg.Sleep == nil {
		cfg.Sleep = time.Sleep
	}
	return &Engine{
		accounts: cfg.Accounts,
		rules:    cfg.Rules,
		placer:   cfg.Placer,
		policy:   cfg.Policy,
		hub:      cfg.Hub,
		journal:  cfg.Journal,
		outcomes: cfg.Outcomes,
		metrics:  cfg.Metrics,
		sleep:    cfg.Sleep,
	}
}

// SetActive flips the run state. The flag is checked atomically at the
// start of every event, so after SetActive(false) returns no new event
// will trigger follower placement; in-flight retries may still finish.
func (e *Engine) SetActive(v bool) {
	e.active.Store(v)
	if e.metrics != nil {
		if v {
			e.metrics.ReplicationActive.Set(1)
		} else {
			e.metrics.ReplicationActive.Set(0)
		}
	}
}

// Active reports the current run state.
func (e *Engine) Active() bool { return e.active.Load() }

// Run consumes events until ctx is cancelled or the channel closes.
// While inactive, events are still consumed (so the stream never backs
// up) but produce no side effects.
func (e *Engine) Run(ctx context.Context, events <-chan model.OrderEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if e.metrics != nil {
				e.metrics.EventsTotal.Inc()
			}
			if !e.active.Load() {
				e.discard("inactive")
				continue
			}
			e.handleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies the full per-event pipeline: origin check,
// eligibility check, then parallel fan-out across followers. It returns
// once every follower for this event has a recorded outcome.
func (e *Engine) handleEvent(ctx context.Context, ev model.OrderEvent) {
	// Origin gate. The primary may have changed since the subscription
	// was opened, so it is re-read on every event.
	primary, ok := e.accounts.Primary()
	if !ok {
		log.Error("[replicator] no primary account found")
		e.discard("origin")
		return
	}
	if ev.AccountID != primary.AccountID {
		e.discard("origin")
		return
	}

	if ev.Status == model.StatusComplete {
		e.publishTrade(ctx, ev)
	}

	// Eligibility gate. A discard here is terminal: no retry, no
	// follower work.
	if !e.rules.Allows(ev) {
		log.Infof("[replicator] order %s skipped - type not allowed (%s/%s)",
			ev.OrderID, ev.OrderType, ev.Product)
		e.discard("eligibility")
		return
	}

	var wg sync.WaitGroup
	for _, acc := range e.accounts.All() {
		if acc.Primary {
			continue
		}
		wg.Add(1)
		go func(follower model.Account) {
			defer wg.Done()
			e.replicateTo(ctx, ev, follower)
		}(acc)
	}
	wg.Wait()
}

// replicateTo computes the follower's order and places it with bounded
// retry. Its outcome never leaks to other followers.
func (e *Engine) replicateTo(ctx context.Context, ev model.OrderEvent, follower model.Account) {
	quantity := int64(float64(ev.Quantity) * follower.ScaleFactor) // truncation toward zero
	if quantity == 0 {
		// A legitimate down-scaling outcome, not an error.
		log.Infof("[replicator] order %s: quantity scales to zero for %s, skipping",
			ev.OrderID, follower.AccountID)
		if e.metrics != nil {
			e.metrics.FollowersSkipped.Inc()
		}
		return
	}

	spec := model.SpecFromEvent(ev, quantity, replicaTag())

	var lastErr error
	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		if e.metrics != nil {
			e.metrics.PlacementAttempts.Inc()
		}
		start := time.Now()
		orderID, err := e.placer.PlaceOrder(ctx, follower.AccountID, spec)
		if e.metrics != nil {
			e.metrics.PlacementDur.Observe(time.Since(start).Seconds())
		}
		if err == nil {
			logsink.Successf("Order %s replicated to %s as %s", ev.OrderID, follower.AccountID, orderID)
			e.record(ctx, journal.Entry{
				SourceOrderID: ev.OrderID,
				AccountID:     follower.AccountID,
				PlacedOrderID: orderID,
				Symbol:        ev.TradingSymbol,
				Quantity:      quantity,
				Attempts:      attempt,
				Status:        journal.StatusReplicated,
			})
			return
		}
		lastErr = err
		if attempt < e.policy.MaxAttempts {
			e.sleep(e.policy.Backoff)
		}
	}

	log.Errorf("Failed to replicate order %s to %s after %d attempts: %v",
		ev.OrderID, follower.AccountID, e.policy.MaxAttempts, lastErr)
	e.record(ctx, journal.Entry{
		SourceOrderID: ev.OrderID,
		AccountID:     follower.AccountID,
		Symbol:        ev.TradingSymbol,
		Quantity:      quantity,
		Attempts:      e.policy.MaxAttempts,
		Status:        journal.StatusFailed,
		Reason:        lastErr.Error(),
	})
}

func (e *Engine) record(ctx context.Context, entry journal.Entry) {
	if e.metrics != nil {
		result := "success"
		if entry.Status == journal.StatusFailed {
			result = "failure"
		}
		e.metrics.PlacementsTotal.WithLabelValues(result).Inc()
	}
	if e.journal != nil {
		if err := e.journal.Record(entry); err != nil {
			log.Errorf("[replicator] journal write failed: %v", err)
		}
	}
	if e.outcomes != nil {
		e.outcomes.PublishOutcome(ctx, feed.Outcome{
			SourceOrderID: entry.SourceOrderID,
			AccountID:     entry.AccountID,
			PlacedOrderID: entry.PlacedOrderID,
			Symbol:        entry.Symbol,
			Quantity:      entry.Quantity,
			Attempts:      entry.Attempts,
			Status:        entry.Status,
			Reason:        entry.Reason,
		})
	}
}

func (e *Engine) publishTrade(ctx context.Context, ev model.OrderEvent) {
	trade := model.TradeFromEvent(ev)
	if e.hub != nil {
		e.hub.Publish(trade)
	}
	if e.outcomes != nil {
		e.outcomes.PublishTrade(ctx, trade)
	}
}

func (e *Engine) discard(reason string) {
	if e.metrics != nil {
		e.metrics.EventsDiscarded.WithLabelValues(reason).Inc()
	}
}

// replicaTag builds the broker order tag marking an order as a replica.
// Broker tags are limited to 20 alphanumeric characters, so the tag is
// a short opaque id; the source linkage lives in the journal.
func replicaTag() string {
	return "cp" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
