package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"copytraderv1/internal/model"
)

// accountView is the outward shape of an account. Secrets and
// credentials never leave the process.
type accountView struct {
	AccountID   string  `json:"account_id"`
	APIKey      string  `json:"api_key"`
	Primary     bool    `json:"primary"`
	ScaleFactor float64 `json:"ps_multiplier"`
	Connected   bool    `json:"connected"`
}

func viewOf(acc model.Account) accountView {
	return accountView{
		AccountID:   acc.AccountID,
		APIKey:      acc.APIKey,
		Primary:     acc.Primary,
		ScaleFactor: acc.ScaleFactor,
		Connected:   acc.Connected(),
	}
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts := s.accounts.All()
	views := make([]accountView, 0, len(accounts))
	for _, acc := range accounts {
		views = append(views, viewOf(acc))
	}
	writeJSON(w, http.StatusOK, views)
}

type connectRequest struct {
	RequestToken string `json:"request_token"`
}

func (s *Server) handleConnectAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	acc, err := s.accounts.Get(accountID)
	if errors.Is(err, model.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	var req connectRequest
	if r.Body != nil {
		// An empty or absent body means the TOTP auto-login path.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	requestToken := req.RequestToken
	if requestToken == "" {
		if acc.TOTPSecret == "" {
			writeError(w, http.StatusBadRequest, "Request token is required")
			return
		}
		requestToken, err = s.gateway.AutoLogin(r.Context(), accountID)
		if err != nil {
			log.Errorf("[api] auto login failed for %s: %v", accountID, err)
			writeError(w, http.StatusBadGateway, "Failed to connect account")
			return
		}
	}

	accessToken, err := s.gateway.OpenSession(r.Context(), accountID, requestToken)
	if err != nil {
		log.Errorf("[api] session open failed for %s: %v", accountID, err)
		writeError(w, http.StatusBadGateway, "Failed to connect account")
		return
	}

	if err := s.accounts.SetSessionToken(accountID, accessToken, requestToken); err != nil {
		// The session is live; losing the write only costs the token on
		// restart.
		log.Errorf("[api] token persist failed for %s: %v", accountID, err)
	}

	writeMessage(w, "Account connected successfully")
}

type updateRequest struct {
	RequestToken string `json:"request_token"`
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]

	if _, err := s.accounts.Get(accountID); errors.Is(err, model.ErrAccountNotFound) {
		writeError(w, http.StatusNotFound, "Account not found")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.RequestToken == "" {
		writeError(w, http.StatusBadRequest, "No valid update data provided")
		return
	}

	accessToken, err := s.gateway.OpenSession(r.Context(), accountID, req.RequestToken)
	if err != nil {
		log.Errorf("[api] session refresh failed for %s: %v", accountID, err)
		writeError(w, http.StatusBadGateway, "Failed to update account")
		return
	}

	if err := s.accounts.SetSessionToken(accountID, accessToken, req.RequestToken); err != nil {
		log.Errorf("[api] token persist failed for %s: %v", accountID, err)
	}

	writeMessage(w, "Account updated successfully")
}
