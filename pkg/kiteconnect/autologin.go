package kiteconnect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

const loginRoot = "https://kite.zerodha.com"

// AutoLoginConfig carries the credentials needed to obtain a request
// token without a manual browser round trip: the interactive login is
// driven directly, answering the 2FA challenge with a generated TOTP.
type AutoLoginConfig struct {
	APIKey     string
	UserID     string
	Password   string
	TOTPSecret string
	LoginRoot  string // override for tests
	Timeout    time.Duration
}

// AutoLogin performs the broker's web login flow and returns the
// one-time request token that GenerateSession consumes. Steps: password
// login -> TOTP two-factor -> authorize the API key and capture the
// request_token from the redirect.
func AutoLogin(ctx context.Context, cfg AutoLoginConfig) (string, error) {
	if cfg.TOTPSecret == "" {
		return "", errors.New("no totp secret configured")
	}
	root := cfg.LoginRoot
	if root == "" {
		root = loginRoot
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	jar, _ := cookiejar.New(nil)
	var requestToken string
	client := &http.Client{
		Jar:     jar,
		Timeout: timeout,
		// The final authorize step redirects to the app's registered URL
		// with request_token in the query; capture it instead of following.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if tok := req.URL.Query().Get("request_token"); tok != "" {
				requestToken = tok
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	requestID, err := passwordLogin(ctx, client, root, cfg.UserID, cfg.Password)
	if err != nil {
		return "", fmt.Errorf("login step: %w", err)
	}

	code, err := totp.GenerateCode(cfg.TOTPSecret, time.Now())
	if err != nil {
		return "", fmt.Errorf("totp generate: %w", err)
	}
	if err := twoFactor(ctx, client, root, cfg.UserID, requestID, code); err != nil {
		return "", fmt.Errorf("twofa step: %w", err)
	}

	// Authorizing the connect session triggers the redirect carrying the
	// request token.
	connectURL := fmt.Sprintf("%s/connect/login?v=3&api_key=%s", root, cfg.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, connectURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("authorize step: %w", err)
	}
	resp.Body.Close()

	if requestToken == "" {
		return "", errors.New("no request token in redirect")
	}
	return requestToken, nil
}

func passwordLogin(ctx context.Context, client *http.Client, root, userID, password string) (string, error) {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("password", password)

	out, err := postForm(ctx, client, root+"/api/login", form)
	if err != nil {
		return "", err
	}
	requestID, _ := out["request_id"].(string)
	if requestID == "" {
		return "", errors.New("no request_id in login response")
	}
	return requestID, nil
}

func twoFactor(ctx context.Context, client *http.Client, root, userID, requestID, code string) error {
	form := url.Values{}
	form.Set("user_id", userID)
	form.Set("request_id", requestID)
	form.Set("twofa_value", code)
	form.Set("twofa_type", "totp")

	_, err := postForm(ctx, client, root+"/api/twofa", form)
	return err
}

func postForm(ctx context.Context, client *http.Client, u string, form url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var env struct {
		Status  string         `json:"status"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := decodeJSON(resp, &env); err != nil {
		return nil, err
	}
	if env.Status != "success" {
		return nil, fmt.Errorf("broker login rejected: %s", env.Message)
	}
	return env.Data, nil
}

func decodeJSON(resp *http.Response, v any) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
