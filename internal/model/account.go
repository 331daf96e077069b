package model

// Account is a single brokerage account known to the system.
// The JSON shape matches the persisted accounts config file.
type Account struct {
	AccountID    string  `json:"account_id"`
	APIKey       string  `json:"api_key"`
	APISecret    string  `json:"secret_api_key"`
	AccessToken  string  `json:"access_token,omitempty"`
	RequestToken string  `json:"request_token,omitempty"`
	Primary      bool    `json:"primary"`
	ScaleFactor  float64 `json:"ps_multiplier"` // follower quantity multiplier, ignored for the primary

	// Optional automated-login credentials. When TOTPSecret is set the
	// session gateway can obtain a request token without manual capture.
	UserID     string `json:"user_id,omitempty"`
	Password   string `json:"password,omitempty"`
	TOTPSecret string `json:"totp_secret,omitempty"`
}

// Connected reports whether the account currently holds a session token.
func (a Account) Connected() bool {
	return a.AccessToken != ""
}
