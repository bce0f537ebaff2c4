package gateway

import "context"

// CheckoutRequest asks the provider for a hosted payment session.
type CheckoutRequest struct {
	UserID     uint   `json:"user_id"`
	PlanCode   string `json:"plan_code"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	SuccessURL string `json:"success_url,omitempty"`
	CancelURL  string `json:"cancel_url,omitempty"`
}

// CheckoutSession is the provider's answer: where to send the user and how
// to correlate the eventual webhook.
type CheckoutSession struct {
	Provider    string `json:"provider"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url"`
}

// ChargeRequest bills a stored payment method off-session (renewals).
type ChargeRequest struct {
	UserID    uint   `json:"user_id"`
	PlanCode  string `json:"plan_code"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	SessionID string `json:"session_id"`
}

// ChargeResult acknowledges that the provider accepted the charge attempt.
// The authoritative outcome still arrives over the webhook.
type ChargeResult struct {
	Provider          string `json:"provider"`
	ProviderPaymentID string `json:"provider_payment_id"`
	Accepted          bool   `json:"accepted"`
}

// Client is the payment provider surface this service depends on. Calls run
// outside any DB transaction and carry explicit deadlines; no caller may
// block indefinitely on the gateway.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
}
