// Package session encapsulates brokerage connectivity per account: the
// token exchange, order placement, the live order-event subscription
// and the pull-based order history. It never mutates registry state;
// persisting a fresh session token is the caller's job.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
	"copytraderv1/internal/registry"
	"copytraderv1/pkg/kiteconnect"
)

const eventBuffer = 256

// Gateway holds live broker connections keyed by account id.
type Gateway struct {
	registry *registry.Registry

	mu   sync.Mutex
	subs map[string]*subscription

	// Overrides for tests; empty means broker defaults.
	RestRoot  string
	WSRoot    string
	LoginRoot string
	Timeout   time.Duration
}

type subscription struct {
	ticker *kiteconnect.Ticker
	events chan model.OrderEvent
}

// New creates a gateway over the given registry.
func New(reg *registry.Registry) *Gateway {
	return &Gateway{
		registry: reg,
		subs:     make(map[string]*subscription),
	}
}

// client builds a REST client for an account snapshot. Clients are
// cheap; building one per call keeps network work outside any lock.
func (g *Gateway) client(acc model.Account) *kiteconnect.Client {
	return kiteconnect.NewClient(kiteconnect.Config{
		APIKey:      acc.APIKey,
		AccessToken: acc.AccessToken,
		RootURL:     g.RestRoot,
		Timeout:     g.Timeout,
	})
}

// OpenSession exchanges a one-time request token for a durable session
// token. Idempotent from the caller's perspective: a repeated call with
// a fresh token simply re-authenticates.
func (g *Gateway) OpenSession(ctx context.Context, accountID, requestToken string) (string, error) {
	acc, err := g.registry.Get(accountID)
	if err != nil {
		return "", err
	}
	sess, err := g.client(acc).GenerateSession(ctx, requestToken, acc.APISecret)
	if err != nil {
		return "", &model.AuthError{AccountID: accountID, Err: err}
	}
	return sess.AccessToken, nil
}

// AutoLogin drives the broker's interactive login with the account's
// stored credentials and TOTP secret, returning a fresh request token
// ready for OpenSession.
func (g *Gateway) AutoLogin(ctx context.Context, accountID string) (string, error) {
	acc, err := g.registry.Get(accountID)
	if err != nil {
		return "", err
	}
	token, err := kiteconnect.AutoLogin(ctx, kiteconnect.AutoLoginConfig{
		APIKey:     acc.APIKey,
		UserID:     acc.UserID,
		Password:   acc.Password,
		TOTPSecret: acc.TOTPSecret,
		LoginRoot:  g.LoginRoot,
		Timeout:    g.Timeout,
	})
	if err != nil {
		return "", &model.AuthError{AccountID: accountID, Err: err}
	}
	return token, nil
}

// PlaceOrder submits one order for the account. Single attempt; the
// caller owns retry policy.
func (g *Gateway) PlaceOrder(ctx context.Context, accountID string, spec model.OrderSpec) (string, error) {
	acc, err := g.registry.Get(accountID)
	if err != nil {
		return "", err
	}
	if !acc.Connected() {
		return "", &model.OrderError{AccountID: accountID, Reason: "no active session"}
	}

	orderID, err := g.client(acc).PlaceOrder(ctx, kiteconnect.OrderParams{
		TradingSymbol:   spec.TradingSymbol,
		Exchange:        spec.Exchange,
		TransactionType: spec.TransactionType,
		Quantity:        spec.Quantity,
		OrderType:       spec.OrderType,
		Product:         spec.Product,
		Price:           spec.Price,
		TriggerPrice:    spec.TriggerPrice,
		Tag:             spec.Tag,
	})
	if err != nil {
		return "", &model.OrderError{AccountID: accountID, Reason: "placement failed", Err: err}
	}
	return orderID, nil
}

// SubscribeOrderEvents opens the live connection for the account and
// returns a channel of its order events. The channel is closed when the
// subscription ends. Events are delivered in upstream order; nothing is
// de-duplicated at this layer.
func (g *Gateway) SubscribeOrderEvents(accountID string) (<-chan model.OrderEvent, error) {
	acc, err := g.registry.Get(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Connected() {
		return nil, &model.AuthError{AccountID: accountID, Err: fmt.Errorf("no session token")}
	}

	g.mu.Lock()
	if _, exists := g.subs[accountID]; exists {
		g.mu.Unlock()
		return nil, fmt.Errorf("subscription already open for %s", accountID)
	}
	g.mu.Unlock()

	events := make(chan model.OrderEvent, eventBuffer)
	ticker := kiteconnect.NewTicker(acc.APIKey, acc.AccessToken)
	if g.WSRoot != "" {
		ticker.SetRootURL(g.WSRoot)
	}

	ticker.OnOrderUpdate = func(u kiteconnect.OrderUpdate) {
		ev := eventFromUpdate(accountID, u)
		select {
		case events <- ev:
		default:
			log.Warnf("[session] event buffer full for %s, dropping order %s", accountID, u.OrderID)
		}
	}
	ticker.OnError = func(err error) {
		log.Errorf("[session] subscription error for %s: %v", accountID, err)
	}
	ticker.OnClose = func() {
		close(events)
	}

	if err := ticker.Connect(); err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", accountID, err)
	}

	g.mu.Lock()
	g.subs[accountID] = &subscription{ticker: ticker, events: events}
	g.mu.Unlock()

	log.Infof("[session] order event subscription open for %s", accountID)
	return events, nil
}

// CloseSubscription terminates the account's live connection. No-op if
// none is open.
func (g *Gateway) CloseSubscription(accountID string) {
	g.mu.Lock()
	sub, ok := g.subs[accountID]
	if ok {
		delete(g.subs, accountID)
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	sub.ticker.Close()
	log.Infof("[session] subscription closed for %s", accountID)
}

// Subscribed reports whether a live subscription is open for the account.
func (g *Gateway) Subscribed(accountID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.subs[accountID]
	return ok
}

// FetchCompletedOrders pulls the account's order book and keeps only
// completed orders. Independent of the live subscription.
func (g *Gateway) FetchCompletedOrders(ctx context.Context, accountID string) ([]model.OrderEvent, error) {
	acc, err := g.registry.Get(accountID)
	if err != nil {
		return nil, err
	}
	if !acc.Connected() {
		return nil, &model.AuthError{AccountID: accountID, Err: fmt.Errorf("no session token")}
	}

	orders, err := g.client(acc).Orders(ctx)
	if err != nil {
		return nil, &model.OrderError{AccountID: accountID, Reason: "order book fetch failed", Err: err}
	}

	completed := make([]model.OrderEvent, 0, len(orders))
	for _, o := range orders {
		if o.Status != model.StatusComplete {
			continue
		}
		completed = append(completed, model.OrderEvent{
			AccountID:       accountID,
			OrderID:         o.OrderID,
			TradingSymbol:   o.TradingSymbol,
			Exchange:        o.Exchange,
			TransactionType: o.TransactionType,
			Quantity:        o.Quantity,
			OrderType:       o.OrderType,
			Product:         o.Product,
			Price:           o.Price,
			TriggerPrice:    o.TriggerPrice,
			AveragePrice:    o.AveragePrice,
			Status:          o.Status,
			Timestamp:       o.Timestamp(),
		})
	}
	return completed, nil
}

func eventFromUpdate(accountID string, u kiteconnect.OrderUpdate) model.OrderEvent {
	ts, err := time.Parse("2006-01-02 15:04:05", u.OrderTimestamp)
	if err != nil {
		ts = time.Now()
	}
	return model.OrderEvent{
		AccountID:       accountID,
		OrderID:         u.OrderID,
		TradingSymbol:   u.TradingSymbol,
		Exchange:        u.Exchange,
		TransactionType: u.TransactionType,
		Quantity:        u.Quantity,
		OrderType:       u.OrderType,
		Product:         u.Product,
		Price:           u.Price,
		TriggerPrice:    u.TriggerPrice,
		AveragePrice:    u.AveragePrice,
		Status:          u.Status,
		Timestamp:       ts,
	}
}
