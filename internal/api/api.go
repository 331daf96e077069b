// Package api exposes the copy trader's HTTP surface: account
// management, trade views and streams, replication control, sheet
// export and log access. Handlers are thin; all policy lives in the
// packages they call into.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/feed"
	"copytraderv1/internal/model"
)

const defaultStreamInterval = time.Second

// SessionGateway is the broker connectivity surface the API needs.
type SessionGateway interface {
	OpenSession(ctx context.Context, accountID, requestToken string) (string, error)
	AutoLogin(ctx context.Context, accountID string) (string, error)
	FetchCompletedOrders(ctx context.Context, accountID string) ([]model.OrderEvent, error)
}

// ReplicationController starts and stops the replication run.
type ReplicationController interface {
	Start() error
	Stop() error
	Running() bool
}

// AccountStore is the registry surface the API needs.
type AccountStore interface {
	All() []model.Account
	Get(id string) (model.Account, error)
	SetSessionToken(id, accessToken, requestToken string) error
}

// TradeExporter appends trades to the export sheet and lists its tags.
type TradeExporter interface {
	AppendTrades(ctx context.Context, trades []model.Trade, tag string) error
	ListTags(ctx context.Context) ([]string, error)
}

// Config wires a Server. Exporter may be nil when sheet export is not
// configured; the export endpoints then answer 503.
type Config struct {
	Accounts       AccountStore
	Gateway        SessionGateway
	Controller     ReplicationController
	Hub            *feed.Hub
	Exporter       TradeExporter
	LogPath        string
	StreamInterval time.Duration
}

// Server holds the handler dependencies.
type Server struct {
	accounts       AccountStore
	gateway        SessionGateway
	controller     ReplicationController
	hub            *feed.Hub
	exporter       TradeExporter
	logPath        string
	streamInterval time.Duration
}

// NewServer builds the API server.
func NewServer(cfg Config) *Server {
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = defaultStreamInterval
	}
	return &Server{
		accounts:       cfg.Accounts,
		gateway:        cfg.Gateway,
		controller:     cfg.Controller,
		hub:            cfg.Hub,
		exporter:       cfg.Exporter,
		logPath:        cfg.LogPath,
		streamInterval: cfg.StreamInterval,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)

	accounts := r.PathPrefix("/api/accounts").Subrouter()
	accounts.HandleFunc("/", s.handleListAccounts).Methods(http.MethodGet)
	accounts.HandleFunc("/{id}/connect", s.handleConnectAccount).Methods(http.MethodPost)
	accounts.HandleFunc("/{id}", s.handleUpdateAccount).Methods(http.MethodPut)

	trades := r.PathPrefix("/api/trades").Subrouter()
	trades.HandleFunc("/", s.handleListTrades).Methods(http.MethodGet)
	trades.HandleFunc("/stream", s.handleStreamTrades).Methods(http.MethodGet)
	trades.HandleFunc("/history", s.handleTradeHistory).Methods(http.MethodGet)
	trades.HandleFunc("/replicate", s.handleStartReplication).Methods(http.MethodPost)
	trades.HandleFunc("/stop", s.handleStopReplication).Methods(http.MethodPost)
	trades.HandleFunc("/export", s.handleExportTrades).Methods(http.MethodPost)
	trades.HandleFunc("/tags", s.handleListTags).Methods(http.MethodGet)

	logs := r.PathPrefix("/api/logs").Subrouter()
	logs.HandleFunc("/history", s.handleLogHistory).Methods(http.MethodGet)
	logs.HandleFunc("/stream", s.handleStreamLogs).Methods(http.MethodGet)

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Errorf("[api] response encode failed: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeMessage(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusOK, map[string]string{"message": msg})
}

// sseHeaders prepares a response for server-sent events and returns the
// flusher, or nil when the writer cannot stream.
func sseHeaders(w http.ResponseWriter) http.Flusher {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return nil
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return flusher
}
