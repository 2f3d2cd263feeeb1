package httpapi

import "encoding/json"

// WalletEnvelope wraps wallet payloads returned by the API endpoints.
type WalletEnvelope struct {
	Wallet WalletPayload `json:"wallet"`
}

// WalletPayload describes the balance and recent transaction history.
type WalletPayload struct {
	Balance      WalletBalance        `json:"balance"`
	Transactions []TransactionPayload `json:"transactions"`
}

// WalletBalance carries the current token balance.
type WalletBalance struct {
	Tokens int64 `json:"tokens"`
}

// TransactionPayload mirrors the ledger transaction contract for the UI.
type TransactionPayload struct {
	TransactionID  string          `json:"transaction_id"`
	Amount         int64           `json:"amount"`
	Status         string          `json:"status"`
	Type           string          `json:"type"`
	ReferenceID    string          `json:"reference_id"`
	Purpose        string          `json:"purpose"`
	Metadata       json.RawMessage `json:"metadata"`
	CreatedUnixUTC int64           `json:"created_unix_utc"`
}

// ContactEnvelope reports a successful contact flow plus the updated wallet.
type ContactEnvelope struct {
	ContactID  string        `json:"contact_id"`
	CostTokens int64         `json:"cost_tokens"`
	Wallet     WalletPayload `json:"wallet"`
}

// BoostEnvelope reports a successful boost purchase plus the updated wallet.
type BoostEnvelope struct {
	BoostID        string        `json:"boost_id"`
	CostTokens     int64         `json:"cost_tokens"`
	ExpiresUnixUTC int64         `json:"expires_unix_utc"`
	Wallet         WalletPayload `json:"wallet"`
}

// PricingEnvelope previews a contact price for a follower count.
type PricingEnvelope struct {
	FollowerCount int64 `json:"follower_count"`
	CostTokens    int64 `json:"cost_tokens"`
}

// AckEnvelope acknowledges an accepted webhook delivery.
type AckEnvelope struct {
	Received bool `json:"received"`
}

// ErrorEnvelope encodes API errors.
type ErrorEnvelope struct {
	Error ErrorPayload `json:"error"`
}

// ErrorPayload contains the code and message for user-visible errors, plus
// the token shortfall when the balance did not cover a spend.
type ErrorPayload struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	ShortfallTokens int64  `json:"shortfall_tokens,omitempty"`
}

type contactRequest struct {
	InfluencerID string `json:"influencer_id"`
	Message      string `json:"message"`
}

type boostRequest struct {
	PackageID string `json:"package_id"`
}
