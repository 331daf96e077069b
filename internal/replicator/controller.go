package replicator

import (
	"context"
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
)

// Subscriber is the session gateway surface the controller drives.
type Subscriber interface {
	SubscribeOrderEvents(accountID string) (<-chan model.OrderEvent, error)
	CloseSubscription(accountID string)
}

// Controller owns the replication run's start/stop semantics. Only one
// run can be active at a time.
type Controller struct {
	accounts Accounts
	gateway  Subscriber
	engine   *Engine

	mu        sync.Mutex
	running   bool
	primaryID string
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewController wires a controller over the engine and gateway.
func NewController(accounts Accounts, gateway Subscriber, engine *Engine) *Controller {
	return &Controller{
		accounts: accounts,
		gateway:  gateway,
		engine:   engine,
	}
}

// Start opens the primary's live subscription and activates the engine.
// Idempotent: starting while already active is a no-op success. Fails
// with ErrNoPrimary when no account is flagged primary.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	primary, ok := c.accounts.Primary()
	if !ok {
		return model.ErrNoPrimary
	}

	events, err := c.gateway.SubscribeOrderEvents(primary.AccountID)
	if err != nil {
		return fmt.Errorf("open subscription: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	c.engine.SetActive(true)
	go func() {
		c.engine.Run(ctx, events)
		close(done)
	}()

	c.running = true
	c.primaryID = primary.AccountID
	c.cancel = cancel
	c.done = done

	log.Info("Trade replication started")
	return nil
}

// Stop deactivates the engine and closes the primary's subscription.
// Idempotent. After Stop returns, no new event triggers follower
// placement; follower retry loops already dispatched may complete.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return nil
	}

	// Flip the flag first so events still in flight on the channel are
	// consumed without side effects, then tear the stream down.
	c.engine.SetActive(false)
	c.gateway.CloseSubscription(c.primaryID)
	c.cancel()

	c.running = false
	c.primaryID = ""

	log.Info("Trade replication stopped")
	return nil
}

// Running reports whether a replication run is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}
