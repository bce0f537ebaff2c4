package controllers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/app/repository"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/idempotency"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/usercontext"
)

type testKeys struct {
	keys map[string]*models.IdempotencyKey
}

func (r *testKeys) CreateKeyIfNotExists(key *models.IdempotencyKey) (bool, *models.IdempotencyKey, error) {
	id := key.Token + "|" + key.Purpose
	if existing, ok := r.keys[id]; ok {
		copied := *existing
		return false, &copied, nil
	}
	stored := *key
	r.keys[id] = &stored
	copied := stored
	return true, &copied, nil
}

func (r *testKeys) SaveResponse(token, purpose, responseJSON string) error {
	if existing, ok := r.keys[token+"|"+purpose]; ok {
		existing.ResponseJSON = responseJSON
	}
	return nil
}

func (r *testKeys) DeleteUnfinished(token, purpose string) error {
	id := token + "|" + purpose
	if existing, ok := r.keys[id]; ok && existing.ResponseJSON == "" {
		delete(r.keys, id)
	}
	return nil
}

// testPayments can be told to fail the next N creates or transitions, the
// way a lock wait timeout would.
type testPayments struct {
	nextID          uint
	payments        map[uint]*models.Payment
	failCreates     int
	failTransitions int
}

func (r *testPayments) Create(p *models.Payment) error {
	if r.failCreates > 0 {
		r.failCreates--
		return errors.New("lock wait timeout")
	}
	p.ID = r.nextID
	r.nextID++
	stored := *p
	r.payments[p.ID] = &stored
	return nil
}

func (r *testPayments) GetByID(id uint) (*models.Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (r *testPayments) GetByProviderSessionID(sessionID string) (*models.Payment, error) {
	for _, p := range r.payments {
		if p.ProviderSessionID == sessionID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *testPayments) Transition(id uint, fn func(p *models.Payment) (bool, error)) (*models.Payment, bool, error) {
	if r.failTransitions > 0 {
		r.failTransitions--
		return nil, false, errors.New("lock wait timeout")
	}
	p, ok := r.payments[id]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	working := *p
	changed, err := fn(&working)
	if err != nil {
		return nil, false, err
	}
	if changed {
		stored := working
		r.payments[id] = &stored
	}
	return &working, changed, nil
}

type testPlanRepo struct{}

func (testPlanRepo) GetByCode(code string) (*models.MembershipPlan, error) {
	if code != models.PlanCodeBasic {
		return nil, gorm.ErrRecordNotFound
	}
	return &models.MembershipPlan{
		Code: models.PlanCodeBasic, PriceAmount: 7900, PriceCurrency: "KRW", PeriodMonths: 1,
	}, nil
}

func (testPlanRepo) List() ([]models.MembershipPlan, error) { return nil, nil }

// withFakeBilling swaps the billing graph for in-memory fakes for the
// duration of one test.
func withFakeBilling(t *testing.T) (*testPayments, *testKeys) {
	t.Helper()
	prev := billingServices
	keys := &testKeys{keys: map[string]*models.IdempotencyKey{}}
	payments := &testPayments{nextID: 1, payments: map[uint]*models.Payment{}}
	billingServices = func() (*idempotency.Guard, *ledger.Service, *membership.Service, repository.PlanRepository) {
		return idempotency.NewGuard(keys), ledger.NewService(payments, nil), nil, testPlanRepo{}
	}
	t.Cleanup(func() { billingServices = prev })
	return payments, keys
}

func postJSON(t *testing.T, app *fiber.App, path string, body []byte, headers map[string]string) *http.Response {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func TestWebhookRedeliveryAfterFailedApply(t *testing.T) {
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec_test")
	payments, _ := withFakeBilling(t)
	payments.payments[1] = &models.Payment{
		ID: 1, UserID: 1, PlanCode: models.PlanCodeBasic,
		Provider: "fake", ProviderSessionID: "cs_1",
		Amount: 7900, Currency: "KRW", Status: models.PaymentStatusPending,
	}
	payments.nextID = 2

	app := fiber.New()
	app.Post("/payments/:id/webhook", HandlePaymentWebhook)

	body := []byte(`{"eventId":"evt_retry_1","status":"SUCCEEDED","amount":7900,"currency":"KRW"}`)
	headers := map[string]string{"X-Gateway-Signature": gateway.SignWebhookPayload(body, "whsec_test")}

	// The first delivery dies on a transient DB error before the payment
	// moves. The eventId must not be consumed by the failed attempt.
	payments.failTransitions = 1
	resp := postJSON(t, app, "/payments/1/webhook", body, headers)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, payments.payments[1].Status)

	// The provider redelivers the same event and it applies for real.
	resp = postJSON(t, app, "/payments/1/webhook", body, headers)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out webhookOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Applied)
	assert.False(t, out.Duplicate)
	assert.Equal(t, models.PaymentStatusSucceeded, payments.payments[1].Status)
}

func TestWebhookReplaysStoredOutcome(t *testing.T) {
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec_test")
	payments, _ := withFakeBilling(t)
	payments.payments[1] = &models.Payment{
		ID: 1, UserID: 1, PlanCode: models.PlanCodeBasic,
		Provider: "fake", ProviderSessionID: "cs_1",
		Amount: 7900, Currency: "KRW", Status: models.PaymentStatusPending,
	}
	payments.nextID = 2

	app := fiber.New()
	app.Post("/payments/:id/webhook", HandlePaymentWebhook)

	body := []byte(`{"eventId":"evt_once_1","status":"SUCCEEDED","amount":7900,"currency":"KRW"}`)
	headers := map[string]string{"X-Gateway-Signature": gateway.SignWebhookPayload(body, "whsec_test")}

	resp := postJSON(t, app, "/payments/1/webhook", body, headers)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = postJSON(t, app, "/payments/1/webhook", body, headers)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var out webhookOutcome
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Duplicate)
	assert.Equal(t, models.PaymentStatusSucceeded, out.PaymentStatus)
}

func TestWebhookRejectsMismatchedSession(t *testing.T) {
	t.Setenv("GATEWAY_WEBHOOK_SECRET", "whsec_test")
	payments, _ := withFakeBilling(t)
	payments.payments[1] = &models.Payment{
		ID: 1, UserID: 1, Provider: "fake", ProviderSessionID: "cs_1",
		Status: models.PaymentStatusPending,
	}
	payments.payments[2] = &models.Payment{
		ID: 2, UserID: 2, Provider: "fake", ProviderSessionID: "cs_2",
		Status: models.PaymentStatusPending,
	}
	payments.nextID = 3

	app := fiber.New()
	app.Post("/payments/:id/webhook", HandlePaymentWebhook)

	// The event carries payment 2's session but is addressed to payment 1.
	body := []byte(`{"eventId":"evt_misroute_1","providerSessionId":"cs_2","status":"SUCCEEDED","amount":7900}`)
	headers := map[string]string{"X-Gateway-Signature": gateway.SignWebhookPayload(body, "whsec_test")}

	resp := postJSON(t, app, "/payments/1/webhook", body, headers)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
	assert.Equal(t, models.PaymentStatusPending, payments.payments[1].Status)
	assert.Equal(t, models.PaymentStatusPending, payments.payments[2].Status)
}

func TestCheckoutRetryAfterFailedAttempt(t *testing.T) {
	payments, _ := withFakeBilling(t)
	SetGatewayClient(gateway.NewFakeClient())

	app := fiber.New()
	app.Post("/payments/checkout", func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{UserID: 1, IsLoggedIn: true})
		return HandleCheckout(c)
	})

	body := []byte(`{"planCode":"BASIC","idempotencyKey":"retry-key-0001"}`)

	// The first attempt fails after the claim; the key must stay usable
	// instead of answering every retry with a duplicate error.
	payments.failCreates = 1
	resp := postJSON(t, app, "/payments/checkout", body, nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	resp = postJSON(t, app, "/payments/checkout", body, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	var out checkoutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Duplicate)
	assert.NotZero(t, out.PaymentID)
	assert.NotEmpty(t, out.RedirectURL)
}

func TestCheckoutReplaysStoredResponse(t *testing.T) {
	_, _ = withFakeBilling(t)
	SetGatewayClient(gateway.NewFakeClient())

	app := fiber.New()
	app.Post("/payments/checkout", func(c *fiber.Ctx) error {
		c.Locals(usercontext.KeyUserContext, usercontext.UserContext{UserID: 1, IsLoggedIn: true})
		return HandleCheckout(c)
	})

	body := []byte(`{"planCode":"BASIC","idempotencyKey":"replay-key-0001"}`)

	resp := postJSON(t, app, "/payments/checkout", body, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var first checkoutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&first))

	resp = postJSON(t, app, "/payments/checkout", body, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	var second checkoutResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ProviderSessionID, second.ProviderSessionID)
}
