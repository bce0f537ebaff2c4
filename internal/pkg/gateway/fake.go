package gateway

import (
	"context"
	"fmt"
	"sync"
)

// FakeClient is an in-memory gateway for tests and local development. It
// records every request and can be told to fail specific users.
type FakeClient struct {
	mu       sync.Mutex
	seq      int
	Sessions []CheckoutRequest
	Charges  []ChargeRequest
	FailFor  map[uint]error
}

// NewFakeClient returns an empty recording fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{FailFor: make(map[uint]error)}
}

func (f *FakeClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[req.UserID]; ok {
		return nil, err
	}
	f.seq++
	f.Sessions = append(f.Sessions, req)
	id := fmt.Sprintf("cs_test_%04d", f.seq)
	return &CheckoutSession{
		Provider:    "fake",
		SessionID:   id,
		RedirectURL: "https://checkout.fake.example/" + id,
	}, nil
}

func (f *FakeClient) Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error) {
	_ = ctx
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.FailFor[req.UserID]; ok {
		return nil, err
	}
	f.seq++
	f.Charges = append(f.Charges, req)
	return &ChargeResult{
		Provider:          "fake",
		ProviderPaymentID: fmt.Sprintf("pay_test_%04d", f.seq),
		Accepted:          true,
	}, nil
}
