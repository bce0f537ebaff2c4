package scheduler

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/cache"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/env"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/gateway"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/idempotency"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/ledger"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/membership"
	"github.com/kimgyuhyun/ott-project-sub001/internal/pkg/metrics/counter"
)

const (
	leaseName    = "billing-scheduler"
	batchLimit   = 200
	chargeWindow = 15 * time.Second
)

// Manager drives subscription renewals on a fixed tick. Renewals are
// processed per subscription with no shared transaction: one failing charge
// never aborts the batch. Overlap safety is layered - a Redis run lease, a
// per-period idempotency claim, and a conditional next_billing_at reserve.
type Manager struct {
	subs    membership.Repository
	members *membership.Service
	plans   membership.PlanResolver
	ledger  *ledger.Service
	gateway gateway.Client
	guard   *idempotency.Guard

	interval time.Duration
	ticker   *time.Ticker
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	owner    string
}

// NewManager wires a scheduler. Interval falls back to the
// BILLING_TICK_SECONDS env value, then to five minutes.
func NewManager(subs membership.Repository, members *membership.Service, plans membership.PlanResolver, ledgerSvc *ledger.Service, gw gateway.Client, guard *idempotency.Guard) *Manager {
	interval := 5 * time.Minute
	if v, err := strconv.Atoi(env.GetEnv("BILLING_TICK_SECONDS", "")); err == nil && v > 0 {
		interval = time.Duration(v) * time.Second
	}
	return &Manager{
		subs:     subs,
		members:  members,
		plans:    plans,
		ledger:   ledgerSvc,
		gateway:  gw,
		guard:    guard,
		interval: interval,
		stopCh:   make(chan struct{}),
		owner:    uuid.NewString(),
	}
}

// Start launches the tick worker.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so the manager can be
	// restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	m.ticker = time.NewTicker(m.interval)

	log.Infof("[BillingScheduler] Starting with tick interval %s", m.interval)
	m.wg.Add(1)
	go m.tickWorker()
}

// Stop halts the tick worker and waits for an in-flight run to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.ticker.Stop()
	close(m.stopCh)
	m.wg.Wait()
	m.running = false
	log.Info("[BillingScheduler] Stopped")
}

func (m *Manager) tickWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.ticker.C:
			m.runLeased()
		}
	}
}

// runLeased executes one scheduled run if this process wins the Redis lease.
func (m *Manager) runLeased() {
	acquired, err := cache.AcquireLease(leaseName, m.owner, m.interval)
	if err != nil {
		log.Errorf("[BillingScheduler] lease acquisition failed: %v", err)
		return
	}
	if !acquired {
		log.Info("[BillingScheduler] another instance holds the lease, skipping run")
		return
	}
	defer func() {
		if err := cache.ReleaseLease(leaseName, m.owner); err != nil {
			log.Warnf("[BillingScheduler] lease release failed: %v", err)
		}
	}()

	m.RunOnce(context.Background(), time.Now())

	if err := counter.FlushAll(); err != nil {
		log.Warnf("[BillingScheduler] counter flush failed: %v", err)
	}
}

// RunOnce processes every due subscription once and sweeps expired rows.
// Exposed so the run can be driven directly in tests and ops tooling.
func (m *Manager) RunOnce(ctx context.Context, now time.Time) {
	due, err := m.subs.ListDueForRenewal(now, batchLimit)
	if err != nil {
		log.Errorf("[BillingScheduler] due-subscription query failed: %v", err)
		return
	}
	for i := range due {
		m.renewOne(ctx, &due[i], now)
	}

	if swept, err := m.members.SweepExpired(ctx, now); err != nil {
		log.Errorf("[BillingScheduler] expiry sweep failed: %v", err)
	} else if swept > 0 {
		log.Infof("[BillingScheduler] expired %d overdue subscriptions", swept)
	}
}

// renewOne bills a single subscription. Every failure path logs and returns;
// the caller moves on to the next candidate.
func (m *Manager) renewOne(ctx context.Context, sub *models.MembershipSubscription, now time.Time) {
	if sub.NextBillingAt == nil {
		return
	}
	periodStart := *sub.NextBillingAt

	// At most one charge per (subscription, period), across all instances
	// and across restarts.
	claim, err := m.guard.Claim(ctx, idempotency.RenewalKey(sub.ID, periodStart.Unix()), models.IdempotencyPurposeRenewal)
	if err != nil {
		log.Errorf("[BillingScheduler] renewal claim failed for subscription %d: %v", sub.ID, err)
		return
	}
	if !claim.Acquired {
		return
	}

	// A due downgrade switches the plan before the price is decided. Until a
	// charge is attempted, any failure reopens the period's claim so the next
	// run can retry instead of silently skipping the billing period.
	planCode := sub.PlanCode
	change, err := m.subs.GetDuePendingChange(sub.ID, now)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Errorf("[BillingScheduler] pending change lookup failed for subscription %d: %v", sub.ID, err)
		m.releaseClaim(ctx, sub.ID, periodStart)
		return
	}
	if change != nil {
		planCode = change.NewPlanCode
	}

	plan, err := m.plans.GetByCode(planCode)
	if err != nil {
		log.Errorf("[BillingScheduler] plan %s missing for subscription %d: %v", planCode, sub.ID, err)
		m.releaseClaim(ctx, sub.ID, periodStart)
		return
	}

	next := plan.Period(periodStart)
	reserved, err := m.subs.ReserveNextBilling(sub.ID, periodStart, next)
	if err != nil {
		log.Errorf("[BillingScheduler] billing reserve failed for subscription %d: %v", sub.ID, err)
		m.releaseClaim(ctx, sub.ID, periodStart)
		return
	}
	if !reserved {
		// A concurrent run already advanced this subscription.
		return
	}
	sub.NextBillingAt = &next

	if change != nil {
		sub.PlanCode = change.NewPlanCode
		if err := m.subs.Save(sub); err != nil {
			log.Errorf("[BillingScheduler] plan change apply failed for subscription %d: %v", sub.ID, err)
			return
		}
		if err := m.subs.MarkChangeApplied(change.ID, now); err != nil {
			log.Warnf("[BillingScheduler] plan change %d not marked applied: %v", change.ID, err)
		}
		log.Infof("[BillingScheduler] subscription %d switched to plan %s at renewal", sub.ID, plan.Code)
	}

	price, err := plan.Price()
	if err != nil {
		log.Errorf("[BillingScheduler] invalid price on plan %s: %v", plan.Code, err)
		return
	}

	sessionID := idempotency.RenewalKey(sub.ID, periodStart.Unix())
	payment, err := m.ledger.CreatePending(ctx, sub.UserID, plan, env.GetEnv("GATEWAY_PROVIDER", "tosspayments"), models.PaymentPurposeRenewal, sessionID, price)
	if err != nil {
		log.Errorf("[BillingScheduler] pending payment failed for subscription %d: %v", sub.ID, err)
		m.releaseClaim(ctx, sub.ID, periodStart)
		return
	}

	chargeCtx, cancel := context.WithTimeout(ctx, chargeWindow)
	defer cancel()
	if _, err := m.gateway.Charge(chargeCtx, gateway.ChargeRequest{
		UserID:    sub.UserID,
		PlanCode:  plan.Code,
		Amount:    price.Amount,
		Currency:  price.Currency,
		SessionID: sessionID,
	}); err != nil {
		// Gateway failure leaves the subscription in grace, not the batch
		// in pieces. The failed payment opens PAST_DUE via the ledger.
		log.Errorf("[BillingScheduler] charge failed for subscription %d: %v", sub.ID, err)
		if _, _, ferr := m.ledger.MarkFailed(ctx, payment.ID, now); ferr != nil {
			log.Errorf("[BillingScheduler] could not fail payment %d: %v", payment.ID, ferr)
		}
		return
	}

	log.Infof("[BillingScheduler] renewal charge submitted for subscription %d payment %d", sub.ID, payment.ID)
}

// releaseClaim reopens a renewal claim whose run failed before recording any
// payment outcome. Failed charges keep their claim: the FAILED payment is the
// period's outcome and grace handles the rest.
func (m *Manager) releaseClaim(ctx context.Context, subID uint, periodStart time.Time) {
	if err := m.guard.Release(ctx, idempotency.RenewalKey(subID, periodStart.Unix()), models.IdempotencyPurposeRenewal); err != nil {
		log.Warnf("[BillingScheduler] renewal claim not released for subscription %d: %v", subID, err)
	}
}
