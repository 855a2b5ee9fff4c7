// Package payment adapts Stripe to the ledger: webhook verification and
// checkout session creation.
package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/billing"
)

const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventInvoicePaid       = "invoice.payment_succeeded"

	// MetadataUserID is the metadata key that carries the user correlation.
	MetadataUserID = "userId"

	billingReasonSubscriptionCreate = "subscription_create"
)

// StripeVerifier checks the Stripe-Signature header before decoding the event.
type StripeVerifier struct {
	secret string
}

var _ billing.EventVerifier = (*StripeVerifier)(nil)

func NewStripeVerifier(secret string) *StripeVerifier {
	return &StripeVerifier{secret: secret}
}

func (v *StripeVerifier) Verify(payload []byte, signature string) (*billing.PaymentEvent, error) {
	if strings.TrimSpace(v.secret) == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", billing.ErrInvalidSignature)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", billing.ErrInvalidSignature, err)
	}
	return decodeEvent(&event)
}

// checkoutSession is the subset of a checkout.session object the ledger reads.
type checkoutSession struct {
	ID           string            `json:"id"`
	Customer     string            `json:"customer"`
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionDetails struct {
	Subscription string            `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

// invoice is the subset of an invoice object the ledger reads. Newer API
// versions moved subscription details under parent.
type invoice struct {
	ID                  string               `json:"id"`
	Customer            string               `json:"customer"`
	Subscription        string               `json:"subscription"`
	BillingReason       string               `json:"billing_reason"`
	Metadata            map[string]string    `json:"metadata"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
}

func decodeEvent(event *stripelib.Event) (*billing.PaymentEvent, error) {
	ev := &billing.PaymentEvent{ID: event.ID, Type: string(event.Type), Kind: billing.KindOther}
	if event.Data == nil {
		return ev, nil
	}

	switch ev.Type {
	case EventCheckoutCompleted:
		var s checkoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("decode checkout.session: %w", err)
		}
		ev.Kind = billing.KindCheckoutCompleted
		ev.UserID = strings.TrimSpace(s.Metadata[MetadataUserID])
		ev.CustomerID = s.Customer
		ev.SubscriptionID = s.Subscription

	case EventInvoicePaid:
		var inv invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		// the first invoice of a subscription is covered by the checkout grant
		if inv.BillingReason == billingReasonSubscriptionCreate {
			return ev, nil
		}
		ev.Kind = billing.KindInvoicePaid
		ev.CustomerID = inv.Customer
		ev.SubscriptionID = inv.Subscription
		ev.UserID = strings.TrimSpace(inv.Metadata[MetadataUserID])
		for _, d := range []*subscriptionDetails{inv.SubscriptionDetails, inv.parentDetails()} {
			if d == nil {
				continue
			}
			if ev.UserID == "" {
				ev.UserID = strings.TrimSpace(d.Metadata[MetadataUserID])
			}
			if ev.SubscriptionID == "" {
				ev.SubscriptionID = d.Subscription
			}
		}
	}
	return ev, nil
}

func (inv *invoice) parentDetails() *subscriptionDetails {
	if inv.Parent == nil {
		return nil
	}
	return inv.Parent.SubscriptionDetails
}
