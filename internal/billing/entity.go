package billing

import "time"

const (
	// GenerationCost is the fixed price of one image generation.
	GenerationCost int64 = 50
	// MonthlyAllotment is granted on payment and restored on renewal.
	MonthlyAllotment int64 = 1000
	// RenewalPeriod is the length of one billing period.
	RenewalPeriod = 30 * 24 * time.Hour
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionInactive SubscriptionStatus = "inactive"
)

// CreditBalance is the spendable balance of one user.
type CreditBalance struct {
	UserID    string
	Balance   int64
	UpdatedAt time.Time
}

// SubscriptionRecord tracks whether a user pays and when the current period started.
type SubscriptionRecord struct {
	UserID               string
	Status               SubscriptionStatus
	RenewalBoundary      time.Time
	StripeCustomerID     string
	StripeSubscriptionID string
	UpdatedAt            time.Time
}

func (s *SubscriptionRecord) Active() bool {
	return s != nil && s.Status == SubscriptionActive
}

// Expiry is the instant after which the current period is considered elapsed.
func (s *SubscriptionRecord) Expiry() time.Time {
	return s.RenewalBoundary.Add(RenewalPeriod)
}

// Grant is a credit increment tied to an external event id for deduplication.
type Grant struct {
	EventID        string
	EventType      string
	UserID         string
	Amount         int64
	Reason         string
	CustomerID     string
	SubscriptionID string
	// Activate marks the subscription active with a renewal boundary of At.
	Activate bool
	At       time.Time
}

// Journal reasons.
const (
	ReasonDebit        = "debit"
	ReasonPaymentGrant = "payment_grant"
	ReasonManualGrant  = "manual_grant"
	ReasonRenewalReset = "renewal_reset"
)

// CreditTransaction is one journal line written alongside every balance mutation.
type CreditTransaction struct {
	ID           string
	UserID       string
	Delta        int64
	BalanceAfter int64
	Reason       string
	Reference    string
	CreatedAt    time.Time
}
