// Package webhook reconciles payment processor events with invoice state.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/devpilot-hq/devpilot/internal/logger"
	"github.com/devpilot-hq/devpilot/internal/payments"
	"github.com/devpilot-hq/devpilot/internal/store"
)

// SignatureHeader carries the processor's payload signature.
const SignatureHeader = "Stripe-Signature"

var (
	// ErrMissingSignature is returned when the signature header is empty.
	ErrMissingSignature = errors.New("no signature provided")

	// ErrInvalidSignature is returned when the payload fails verification.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrProcessing wraps persistence failures after a verified event.
	ErrProcessing = errors.New("webhook processing failed")
)

// EventVerifier authenticates a raw payload and decodes it.
type EventVerifier interface {
	Verify(payload []byte, signatureHeader string) (payments.Event, error)
}

// PaymentMarker applies reconciled outcomes to invoices.
type PaymentMarker interface {
	MarkPaid(ctx context.Context, ref store.ProcessorRef) (bool, error)
	MarkPaymentFailed(ctx context.Context, ref store.ProcessorRef) (bool, error)
}

// Outcome describes what a handled event did.
type Outcome struct {
	Event   payments.Event
	Applied bool
}

// Reconciler verifies webhook payloads and dispatches them to a PaymentMarker.
type Reconciler struct {
	verifier EventVerifier
	marker   PaymentMarker
	seen     *EventLog
}

// NewReconciler creates a Reconciler. A nil log disables duplicate tracking.
func NewReconciler(verifier EventVerifier, marker PaymentMarker, seen *EventLog) *Reconciler {
	return &Reconciler{verifier: verifier, marker: marker, seen: seen}
}

func (r *Reconciler) log() zerolog.Logger {
	return logger.WithComponent("webhook")
}

// Handle verifies payload before touching any invoice, then dispatches on the
// event kind. Replays re-apply the same status.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) (Outcome, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return Outcome{}, ErrMissingSignature
	}

	event, err := r.verifier.Verify(payload, signatureHeader)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	log := r.log().With().Str("event_id", event.ID).Str("event_type", event.Type).Logger()
	if r.seen != nil && r.seen.Seen(event.ID) {
		log.Debug().Msg("replayed webhook event")
	}

	out := Outcome{Event: event}
	switch event.Kind {
	case payments.KindCheckoutCompleted:
		if !event.Paid {
			log.Info().Msg("checkout completed without payment")
			break
		}
		out.Applied, err = r.marker.MarkPaid(ctx, event.Ref())
	case payments.KindPaymentFailed:
		out.Applied, err = r.marker.MarkPaymentFailed(ctx, event.Ref())
	default:
		log.Info().Msg("unhandled webhook event")
	}
	if err != nil {
		log.Error().Err(err).
			Str("invoice_ref", event.InvoiceID).
			Str("checkout_session", event.CheckoutSessionID).
			Str("payment_intent", event.PaymentIntentID).
			Msg("failed to reconcile webhook event")
		return out, fmt.Errorf("%w: %w", ErrProcessing, err)
	}

	if r.seen != nil {
		r.seen.Record(event.ID)
	}
	return out, nil
}
