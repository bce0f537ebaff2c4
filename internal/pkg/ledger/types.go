package ledger

import (
	"context"

	"github.com/kimgyuhyun/ott-project-sub001/app/models"
)

// MembershipUpdater consumes applied payment transitions. The ledger only
// moves payment rows; subscription policy lives behind this interface so
// ledger mechanics stay decoupled from membership rules.
type MembershipUpdater interface {
	OnPaymentSucceeded(ctx context.Context, payment *models.Payment) error
	OnPaymentFailed(ctx context.Context, payment *models.Payment) error
	OnPaymentCanceled(ctx context.Context, payment *models.Payment) error
	OnPaymentRefunded(ctx context.Context, payment *models.Payment) error
}

// NopUpdater satisfies MembershipUpdater without side effects.
type NopUpdater struct{}

func (NopUpdater) OnPaymentSucceeded(context.Context, *models.Payment) error { return nil }
func (NopUpdater) OnPaymentFailed(context.Context, *models.Payment) error    { return nil }
func (NopUpdater) OnPaymentCanceled(context.Context, *models.Payment) error  { return nil }
func (NopUpdater) OnPaymentRefunded(context.Context, *models.Payment) error  { return nil }
