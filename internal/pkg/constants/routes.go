package constants

// API route constants
const (
	APIPrefix = "/api"
	APIV1     = "/v1"

	CheckoutRoute       = "/payments/checkout"
	PaymentWebhookRoute = "/payments/:id/webhook"
	MembershipRoute     = "/memberships/me"
	CancelRoute         = "/memberships/cancel"
	PlanChangeRoute     = "/memberships/plan"
	PlanListRoute       = "/plans"
	StreamURLRoute      = "/episodes/:id/stream-url"
)
