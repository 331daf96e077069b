package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"copytraderv1/internal/model"
	"copytraderv1/internal/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	cfg := `[
	  {"account_id": "A1", "api_key": "k1", "secret_api_key": "s1", "primary": true, "access_token": "tok1"},
	  {"account_id": "A2", "api_key": "k2", "secret_api_key": "s2", "ps_multiplier": 2.0}
	]`
	path := filepath.Join(t.TempDir(), "accounts.json")
	if err := os.WriteFile(path, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}
	r := registry.New(&registry.FileStore{Path: path})
	if err := r.Load(); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestOpenSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":{"user_id":"A1","access_token":"fresh"}}`))
	}))
	defer srv.Close()

	g := New(testRegistry(t))
	g.RestRoot = srv.URL

	token, err := g.OpenSession(context.Background(), "A1", "reqtok")
	if err != nil {
		t.Fatalf("open session: %v", err)
	}
	if token != "fresh" {
		t.Errorf("expected token fresh, got %s", token)
	}
}

func TestOpenSession_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"status":"error","error_type":"TokenException","message":"expired"}`))
	}))
	defer srv.Close()

	g := New(testRegistry(t))
	g.RestRoot = srv.URL

	_, err := g.OpenSession(context.Background(), "A1", "stale")
	var authErr *model.AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.AccountID != "A1" {
		t.Errorf("wrong account in error: %s", authErr.AccountID)
	}
}

func TestOpenSession_UnknownAccount(t *testing.T) {
	g := New(testRegistry(t))
	_, err := g.OpenSession(context.Background(), "A9", "tok")
	if !errors.Is(err, model.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestPlaceOrder_NoSession(t *testing.T) {
	g := New(testRegistry(t))
	// A2 has no access token.
	_, err := g.PlaceOrder(context.Background(), "A2", model.OrderSpec{TradingSymbol: "INFY"})
	var orderErr *model.OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected OrderError, got %v", err)
	}
}

func TestPlaceOrder_RejectionIsTyped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"error","error_type":"InputException","message":"margin exceeded"}`))
	}))
	defer srv.Close()

	g := New(testRegistry(t))
	g.RestRoot = srv.URL

	_, err := g.PlaceOrder(context.Background(), "A1", model.OrderSpec{TradingSymbol: "INFY", Quantity: 1})
	var orderErr *model.OrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("expected OrderError, got %v", err)
	}
}

func TestFetchCompletedOrders_FiltersStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"success","data":[
			{"order_id":"1","status":"COMPLETE","tradingsymbol":"INFY","quantity":5,"average_price":1500,"order_timestamp":"2024-03-01 10:15:00"},
			{"order_id":"2","status":"OPEN","tradingsymbol":"TCS","quantity":3},
			{"order_id":"3","status":"COMPLETE","tradingsymbol":"SBIN","quantity":8,"average_price":620,"order_timestamp":"2024-03-01 11:00:00"}
		]}`))
	}))
	defer srv.Close()

	g := New(testRegistry(t))
	g.RestRoot = srv.URL

	events, err := g.FetchCompletedOrders(context.Background(), "A1")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 completed orders, got %d", len(events))
	}
	for _, ev := range events {
		if ev.Status != model.StatusComplete {
			t.Errorf("non-complete order leaked through: %s", ev.OrderID)
		}
		if ev.AccountID != "A1" {
			t.Errorf("event not stamped with account id: %+v", ev)
		}
	}
}

func TestCloseSubscription_NoopWhenAbsent(t *testing.T) {
	g := New(testRegistry(t))
	// Must be safe with no subscription open.
	g.CloseSubscription("A1")
	g.CloseSubscription("A1")
	if g.Subscribed("A1") {
		t.Error("no subscription should be open")
	}
}
