package kiteconnect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	tickerRoot        = "wss://ws.kite.trade"
	heartbeatInterval = 10 * time.Second
	writeWait         = 5 * time.Second
)

// OrderUpdate is the payload of an order postback frame on the live
// websocket. Field names follow the broker's wire format.
type OrderUpdate struct {
	OrderID         string  `json:"order_id"`
	UserID          string  `json:"user_id"`
	Status          string  `json:"status"`
	TradingSymbol   string  `json:"tradingsymbol"`
	Exchange        string  `json:"exchange"`
	TransactionType string  `json:"transaction_type"`
	Quantity        int64   `json:"quantity"`
	OrderType       string  `json:"order_type"`
	Product         string  `json:"product"`
	Price           float64 `json:"price"`
	TriggerPrice    float64 `json:"trigger_price"`
	AveragePrice    float64 `json:"average_price"`
	OrderTimestamp  string  `json:"order_timestamp"`
}

// Ticker is a live connection to the broker's websocket feed for one
// account. Text frames carry order postbacks; binary frames carry
// market ticks, which this system ignores. Delivery order matches the
// upstream order and nothing is de-duplicated here.
type Ticker struct {
	apiKey      string
	accessToken string
	rootURL     string

	conn   *websocket.Conn
	dialer *websocket.Dialer

	mu     sync.Mutex
	closed bool

	// Callbacks. Set before Connect.
	OnOrderUpdate func(OrderUpdate)
	OnError       func(error)
	OnClose       func()

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTicker creates an unconnected ticker.
func NewTicker(apiKey, accessToken string) *Ticker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Ticker{
		apiKey:      apiKey,
		accessToken: accessToken,
		rootURL:     tickerRoot,
		dialer:      websocket.DefaultDialer,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// SetRootURL overrides the websocket endpoint (tests).
func (t *Ticker) SetRootURL(u string) { t.rootURL = u }

// Connect dials the feed and starts the read and heartbeat loops.
func (t *Ticker) Connect() error {
	q := url.Values{}
	q.Set("api_key", t.apiKey)
	q.Set("access_token", t.accessToken)

	conn, resp, err := t.dialer.Dial(t.rootURL+"?"+q.Encode(), http.Header{})
	if err != nil {
		if resp != nil {
			log.Errorf("[ticker] dial failed, status: %s", resp.Status)
		}
		return err
	}
	t.conn = conn

	t.conn.SetPongHandler(func(string) error { return nil })

	go t.readLoop()
	go t.heartbeatLoop()
	return nil
}

// Close terminates the connection. Safe to call more than once; later
// frames are not delivered.
func (t *Ticker) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.mu.Unlock()

	t.cancel()
	if t.conn != nil {
		t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		t.conn.Close()
	}
}

func (t *Ticker) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *Ticker) readLoop() {
	defer func() {
		if t.OnClose != nil {
			t.OnClose()
		}
	}()

	for {
		msgType, raw, err := t.conn.ReadMessage()
		if err != nil {
			if !t.isClosed() && t.OnError != nil {
				t.OnError(err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			// Binary frames are market ticks; not our concern.
			continue
		}

		var frame struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &frame); err != nil {
			log.Warnf("[ticker] unparseable frame: %v", err)
			continue
		}

		switch frame.Type {
		case "order":
			var update OrderUpdate
			if err := json.Unmarshal(frame.Data, &update); err != nil {
				log.Warnf("[ticker] bad order payload: %v", err)
				continue
			}
			if t.OnOrderUpdate != nil {
				t.OnOrderUpdate(update)
			}
		case "error":
			var msg string
			json.Unmarshal(frame.Data, &msg)
			if t.OnError != nil {
				t.OnError(&APIError{ErrorType: "WSException", Message: msg})
			}
		default:
			// "message" and other informational frames are ignored.
		}
	}
}

func (t *Ticker) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
				if !t.isClosed() {
					log.Warnf("[ticker] ping failed: %v", err)
				}
				return
			}
		}
	}
}
