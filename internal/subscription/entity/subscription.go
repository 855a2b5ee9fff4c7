package entity

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Subscription is one row of the subscriptions table. renewal_date holds the
// start of the current billing period in unix milliseconds.
type Subscription struct {
	UserID               string `db:"user_id" json:"user_id"`
	Status               string `db:"status" json:"status"`
	RenewalDate          int64  `db:"renewal_date" json:"renewal_date"`
	StripeCustomerID     string `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID string `db:"stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	UpdatedAt            int64  `db:"updated_at" json:"updated_at"`
}
