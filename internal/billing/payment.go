package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-credits-go/internal/metrics"
)

// EventKind classifies payment notifications by their effect on the ledger.
type EventKind string

const (
	KindCheckoutCompleted EventKind = "checkout_completed"
	KindInvoicePaid       EventKind = "invoice_paid"
	KindOther             EventKind = "other"
)

// Grants reports whether the kind adds credits.
func (k EventKind) Grants() bool {
	return k == KindCheckoutCompleted || k == KindInvoicePaid
}

// PaymentEvent is a verified and decoded payment notification.
type PaymentEvent struct {
	ID             string
	Type           string
	Kind           EventKind
	UserID         string
	CustomerID     string
	SubscriptionID string
}

// EventVerifier authenticates a raw payload against its signature header and
// only then decodes it. Only a signature mismatch is reported as
// ErrInvalidSignature; decode failures of an authentic payload are not.
type EventVerifier interface {
	Verify(payload []byte, signature string) (*PaymentEvent, error)
}

// Ack is the acknowledgement returned for an accepted notification.
type Ack struct {
	EventID   string `json:"eventId,omitempty"`
	Received  bool   `json:"received"`
	Granted   bool   `json:"granted"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

// PaymentProcessor applies payment notifications to the ledger. It does not
// need an identity session; attribution comes from the signed payload.
type PaymentProcessor struct {
	verifier EventVerifier
	store    Store
	clock    clockwork.Clock
	logger   *zap.SugaredLogger
	grant    int64
}

func NewPaymentProcessor(verifier EventVerifier, store Store, clock clockwork.Clock, logger *zap.SugaredLogger) *PaymentProcessor {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PaymentProcessor{verifier: verifier, store: store, clock: clock, logger: logger, grant: MonthlyAllotment}
}

// HandleEvent verifies the payload and, for granting kinds, adds the monthly
// allotment and activates the subscription once per event id.
func (p *PaymentProcessor) HandleEvent(ctx context.Context, payload []byte, signature string) (*Ack, error) {
	ev, err := p.verifier.Verify(payload, signature)
	if err != nil {
		if errors.Is(err, ErrInvalidSignature) {
			metrics.WebhookEventsTotal.WithLabelValues("unknown", "invalid_signature").Inc()
			return nil, err
		}
		// authentic but undecodable
		metrics.WebhookEventsTotal.WithLabelValues("unknown", "decode_error").Inc()
		return nil, fmt.Errorf("decode payment event: %w", err)
	}

	if !ev.Kind.Grants() {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "ignored").Inc()
		p.logger.Debugw("payment event ignored", "event_id", ev.ID, "event_type", ev.Type)
		return &Ack{EventID: ev.ID, Received: true}, nil
	}

	if ev.UserID == "" {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "missing_correlation").Inc()
		p.logger.Warnw("payment event without user correlation", "event_id", ev.ID, "event_type", ev.Type)
		return nil, ErrMissingCorrelation
	}

	applied, err := p.store.ApplyGrant(ctx, Grant{
		EventID:        ev.ID,
		EventType:      ev.Type,
		UserID:         ev.UserID,
		Amount:         p.grant,
		Reason:         ReasonPaymentGrant,
		CustomerID:     ev.CustomerID,
		SubscriptionID: ev.SubscriptionID,
		Activate:       true,
		At:             p.clock.Now(),
	})
	if err != nil {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "error").Inc()
		return nil, fmt.Errorf("apply grant: %w", err)
	}
	if !applied {
		metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "duplicate").Inc()
		p.logger.Infow("duplicate payment event", "event_id", ev.ID, "user_id", ev.UserID)
		return &Ack{EventID: ev.ID, Received: true, Duplicate: true}, nil
	}

	metrics.WebhookEventsTotal.WithLabelValues(ev.Type, "granted").Inc()
	metrics.CreditsGrantedTotal.WithLabelValues(ReasonPaymentGrant).Add(float64(p.grant))
	p.logger.Infow("credits granted",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"user_id", ev.UserID,
		"amount", p.grant,
	)
	return &Ack{EventID: ev.ID, Received: true, Granted: true}, nil
}
