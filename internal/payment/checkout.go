package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	stripelib "github.com/stripe/stripe-go/v82"
	stripesession "github.com/stripe/stripe-go/v82/checkout/session"
)

var ErrNotConfigured = errors.New("payment: checkout not configured")

// Checkout creates subscription checkout sessions carrying the user correlation.
type Checkout struct {
	cfg                   Config
	createCheckoutSession func(params *stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)
}

func NewCheckout(cfg Config) *Checkout {
	if cfg.SecretKey != "" {
		stripelib.Key = cfg.SecretKey
	}
	return &Checkout{cfg: cfg, createCheckoutSession: stripesession.New}
}

// WithSessionFunc swaps the session creation call.
func (c *Checkout) WithSessionFunc(fn func(*stripelib.CheckoutSessionParams) (*stripelib.CheckoutSession, error)) *Checkout {
	c.createCheckoutSession = fn
	return c
}

// CreateSession returns the hosted checkout URL for the user.
func (c *Checkout) CreateSession(ctx context.Context, userID, email string) (string, error) {
	if c.cfg.SecretKey == "" || c.cfg.PriceID == "" || c.cfg.PublicBaseURL == "" {
		return "", ErrNotConfigured
	}
	metadata := map[string]string{MetadataUserID: userID}
	params := &stripelib.CheckoutSessionParams{
		Mode:       stripelib.String(string(stripelib.CheckoutSessionModeSubscription)),
		SuccessURL: stripelib.String(c.cfg.PublicBaseURL + "/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripelib.String(c.cfg.PublicBaseURL + "/cancel"),
		LineItems: []*stripelib.CheckoutSessionLineItemParams{
			{
				Price:    stripelib.String(c.cfg.PriceID),
				Quantity: stripelib.Int64(1),
			},
		},
		ClientReferenceID: stripelib.String(userID),
		SubscriptionData: &stripelib.CheckoutSessionSubscriptionDataParams{
			Metadata: metadata,
		},
	}
	params.Context = ctx
	params.Metadata = metadata
	if e := strings.TrimSpace(email); e != "" {
		params.CustomerEmail = stripelib.String(e)
	}

	s, err := c.createCheckoutSession(params)
	if err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	return s.URL, nil
}
