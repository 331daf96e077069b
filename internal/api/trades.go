package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.hub.Recent())
}

// streamEnvelope is one SSE payload: the trades observed since the
// previous flush.
type streamEnvelope struct {
	Type   string        `json:"type"`
	Trades []model.Trade `json:"trades"`
}

func (s *Server) handleStreamTrades(w http.ResponseWriter, r *http.Request) {
	flusher := sseHeaders(w)
	if flusher == nil {
		return
	}

	trades, cancel := s.hub.Subscribe()
	defer cancel()

	ticker := time.NewTicker(s.streamInterval)
	defer ticker.Stop()

	var pending []model.Trade
	for {
		select {
		case <-r.Context().Done():
			return
		case t, ok := <-trades:
			if !ok {
				return
			}
			pending = append(pending, t)
		case <-ticker.C:
			if len(pending) == 0 {
				continue
			}
			payload, err := json.Marshal(streamEnvelope{Type: "live_trade", Trades: pending})
			if err != nil {
				log.Errorf("[api] trade stream encode failed: %v", err)
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			pending = pending[:0]
		}
	}
}

type historyResponse struct {
	Trades  []model.Trade `json:"trades"`
	HasMore bool          `json:"has_more"`
	Total   int           `json:"total"`
}

func (s *Server) handleTradeHistory(w http.ResponseWriter, r *http.Request) {
	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		writeError(w, http.StatusBadRequest, "Account ID is required")
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", defaultHistoryLimit)
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	trades, err := s.fetchTradeHistory(r, accountID)
	if err != nil {
		s.writeGatewayError(w, accountID, err)
		return
	}

	start := (page - 1) * limit
	end := start + limit
	total := len(trades)
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Trades:  trades[start:end],
		HasMore: end < total,
		Total:   total,
	})
}

// fetchTradeHistory pulls the account's completed orders as trade
// views, newest first.
func (s *Server) fetchTradeHistory(r *http.Request, accountID string) ([]model.Trade, error) {
	orders, err := s.gateway.FetchCompletedOrders(r.Context(), accountID)
	if err != nil {
		return nil, err
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].Timestamp.After(orders[j].Timestamp)
	})

	trades := make([]model.Trade, 0, len(orders))
	for _, o := range orders {
		trades = append(trades, model.TradeFromEvent(o))
	}
	return trades, nil
}

func (s *Server) writeGatewayError(w http.ResponseWriter, accountID string, err error) {
	var authErr *model.AuthError
	switch {
	case errors.Is(err, model.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.As(err, &authErr):
		writeError(w, http.StatusBadGateway, fmt.Sprintf("Account %s has no active session", accountID))
	default:
		log.Errorf("[api] history fetch failed for %s: %v", accountID, err)
		writeError(w, http.StatusBadGateway, "Failed to fetch trades")
	}
}

func (s *Server) handleStartReplication(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Start(); err != nil {
		if errors.Is(err, model.ErrNoPrimary) {
			writeError(w, http.StatusBadRequest, "No primary account found")
			return
		}
		log.Errorf("[api] replication start failed: %v", err)
		writeError(w, http.StatusBadGateway, "Failed to start replication")
		return
	}
	writeMessage(w, "Trade replication started")
}

func (s *Server) handleStopReplication(w http.ResponseWriter, r *http.Request) {
	if err := s.controller.Stop(); err != nil {
		log.Errorf("[api] replication stop failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to stop replication")
		return
	}
	writeMessage(w, "Trade replication stopped")
}

type exportRequest struct {
	Trades    []string `json:"trades"`
	Tag       string   `json:"tag"`
	AccountID string   `json:"account_id"`
}

func (s *Server) handleExportTrades(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "Sheet export is not configured")
		return
	}

	var req exportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Trades) == 0 {
		writeError(w, http.StatusBadRequest, "No trades selected")
		return
	}
	if req.Tag == "" {
		writeError(w, http.StatusBadRequest, "Tag is required")
		return
	}
	if req.AccountID == "" {
		writeError(w, http.StatusBadRequest, "Account ID is required")
		return
	}

	all, err := s.fetchTradeHistory(r, req.AccountID)
	if err != nil {
		s.writeGatewayError(w, req.AccountID, err)
		return
	}

	wanted := make(map[string]struct{}, len(req.Trades))
	for _, id := range req.Trades {
		wanted[id] = struct{}{}
	}
	selected := make([]model.Trade, 0, len(req.Trades))
	for _, t := range all {
		if _, ok := wanted[t.TradeID]; ok {
			selected = append(selected, t)
		}
	}
	if len(selected) == 0 {
		writeError(w, http.StatusBadRequest, "No matching trades found for export.")
		return
	}

	if err := s.exporter.AppendTrades(r.Context(), selected, req.Tag); err != nil {
		log.Errorf("[api] export failed for %s: %v", req.AccountID, err)
		writeError(w, http.StatusInternalServerError, "Failed to export trades")
		return
	}

	log.Infof("[api] exported %d trades for account %s", len(selected), req.AccountID)
	writeMessage(w, "Trades exported successfully")
}

func (s *Server) handleListTags(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeError(w, http.StatusServiceUnavailable, "Sheet export is not configured")
		return
	}
	tags, err := s.exporter.ListTags(r.Context())
	if err != nil {
		log.Errorf("[api] tag listing failed: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to list tags")
		return
	}
	if tags == nil {
		tags = []string{}
	}
	writeJSON(w, http.StatusOK, tags)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
