package replicator

import (
	"errors"
	"sync"
	"testing"
	"time"

	"copytraderv1/internal/model"
	"copytraderv1/internal/rules"
)

// fakeGateway counts subscriptions and feeds a controllable event stream.
type fakeGateway struct {
	mu         sync.Mutex
	subscribes int
	closes     int
	events     chan model.OrderEvent
	subErr     error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{events: make(chan model.OrderEvent, 16)}
}

func (g *fakeGateway) SubscribeOrderEvents(string) (<-chan model.OrderEvent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.subErr != nil {
		return nil, g.subErr
	}
	g.subscribes++
	return g.events, nil
}

func (g *fakeGateway) CloseSubscription(string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closes++
}

func (g *fakeGateway) counts() (int, int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.subscribes, g.closes
}

func newTestController(accounts *staticAccounts, placer Placer) (*Controller, *fakeGateway) {
	e := NewEngine(EngineConfig{
		Accounts: accounts,
		Rules:    rules.NewRuleSet([]string{model.OrderTypeMarket}, []string{model.ProductMIS}),
		Placer:   placer,
		Policy:   RetryPolicy{MaxAttempts: 3, Backoff: time.Millisecond},
		Sleep:    func(time.Duration) {},
	})
	gw := newFakeGateway()
	return NewController(accounts, gw, e), gw
}

func TestController_StartIsIdempotent(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true},
		{AccountID: "A2", ScaleFactor: 1.0},
	}}
	c, gw := newTestController(accounts, newScriptedPlacer())

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Start(); err != nil {
		t.Fatalf("second start should be a no-op success, got %v", err)
	}
	defer c.Stop()

	subs, _ := gw.counts()
	if subs != 1 {
		t.Errorf("expected exactly one subscription, got %d", subs)
	}
	if !c.Running() {
		t.Error("controller should report running")
	}
}

func TestController_StartFailsWithoutPrimary(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A2", ScaleFactor: 1.0},
	}}
	c, gw := newTestController(accounts, newScriptedPlacer())

	if err := c.Start(); !errors.Is(err, model.ErrNoPrimary) {
		t.Fatalf("expected ErrNoPrimary, got %v", err)
	}
	if c.Running() {
		t.Error("controller must not be running after a failed start")
	}
	subs, _ := gw.counts()
	if subs != 0 {
		t.Errorf("no subscription should have been opened, got %d", subs)
	}
}

func TestController_StartPropagatesSubscribeError(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true},
	}}
	c, gw := newTestController(accounts, newScriptedPlacer())
	gw.subErr = errors.New("socket refused")

	if err := c.Start(); err == nil {
		t.Fatal("expected subscribe failure to surface")
	}
	if c.Running() {
		t.Error("controller must not be running after a failed start")
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true},
		{AccountID: "A2", ScaleFactor: 1.0},
	}}
	c, gw := newTestController(accounts, newScriptedPlacer())

	if err := c.Stop(); err != nil {
		t.Fatalf("stop before start should be a no-op, got %v", err)
	}

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("second stop should be a no-op, got %v", err)
	}

	_, closes := gw.counts()
	if closes != 1 {
		t.Errorf("expected exactly one subscription close, got %d", closes)
	}
	if c.Running() {
		t.Error("controller should report stopped")
	}
}

func TestController_RestartReopensSubscription(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true},
		{AccountID: "A2", ScaleFactor: 1.0},
	}}
	c, gw := newTestController(accounts, newScriptedPlacer())

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	// A real gateway hands out a fresh channel per subscription.
	gw.events = make(chan model.OrderEvent, 16)
	if err := c.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	defer c.Stop()

	subs, _ := gw.counts()
	if subs != 2 {
		t.Errorf("expected a second subscription on restart, got %d", subs)
	}
}

func TestController_EventsAfterStopPlaceNothing(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true},
		{AccountID: "A2", ScaleFactor: 1.0},
	}}
	placer := newScriptedPlacer()
	c, gw := newTestController(accounts, placer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Events that were still in flight when Stop returned must be
	// consumed without placements.
	for i := 0; i < 10; i++ {
		select {
		case gw.events <- marketEvent("A1", 5):
		default:
		}
	}
	time.Sleep(50 * time.Millisecond)

	if n := len(placer.placements()); n != 0 {
		t.Errorf("expected zero placements after stop, got %d", n)
	}
}

func TestController_ReplicatesThroughLiveStream(t *testing.T) {
	accounts := &staticAccounts{accounts: []model.Account{
		{AccountID: "A1", Primary: true, ScaleFactor: 1.0},
		{AccountID: "A2", ScaleFactor: 2.0},
	}}
	placer := newScriptedPlacer()
	c, gw := newTestController(accounts, placer)

	if err := c.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	gw.events <- marketEvent("A1", 5)

	deadline := time.After(2 * time.Second)
	for {
		if calls := placer.placements(); len(calls) == 1 {
			if calls[0].accountID != "A2" || calls[0].spec.Quantity != 10 {
				t.Fatalf("unexpected placement: %+v", calls[0])
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for replication")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
