// Package payments adapts Stripe checkout sessions and webhook events.
package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/devpilot-hq/devpilot/internal/billing"
	"github.com/devpilot-hq/devpilot/internal/store"
)

var (
	ErrNotConfigured    = errors.New("stripe is not configured")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// CheckoutClient creates Stripe checkout sessions.
type CheckoutClient struct {
	client session.Client
}

// NewCheckoutClient builds a client for secretKey. A non-empty baseURL
// replaces the Stripe API endpoint.
func NewCheckoutClient(secretKey, baseURL string) *CheckoutClient {
	config := &stripe.BackendConfig{}
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		config.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	return &CheckoutClient{
		client: session.Client{
			B:   stripe.GetBackendWithConfig(stripe.APIBackend, config),
			Key: secretKey,
		},
	}
}

// CreateCheckout opens a one-line card payment session for an invoice.
func (c *CheckoutClient) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	if c == nil || c.client.Key == "" {
		return nil, ErrNotConfigured
	}

	unitAmount, err := ToMinorUnits(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(strings.ToLower(req.Currency)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("Invoice " + req.InvoiceNumber),
						Description: stripe.String("Payment for invoice " + req.InvoiceNumber),
					},
					UnitAmount: stripe.Int64(unitAmount),
				},
				Quantity: stripe.Int64(1),
			},
		},
		// Payment-mode sessions get their intent on completion, so the
		// invoice id rides on the intent too for failure events.
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{"invoice_id": req.InvoiceID},
		},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	params.Context = ctx
	for key, value := range req.Metadata {
		params.AddMetadata(key, value)
	}

	created, err := c.client.New(params)
	if err != nil {
		return nil, describeStripeError(err)
	}

	out := &billing.CheckoutSession{ID: created.ID, URL: created.URL}
	if created.PaymentIntent != nil && created.PaymentIntent.ID != "" {
		id := created.PaymentIntent.ID
		out.PaymentIntentID = &id
	}
	return out, nil
}

func describeStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe %s (%s): %s", stripeErr.Type, stripeErr.Code, stripeErr.Msg)
	}
	return fmt.Errorf("stripe request failed: %w", err)
}

// Verifier checks Stripe-Signature headers against the endpoint secret.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

// Verify authenticates payload and decodes it into an event.
func (v *Verifier) Verify(payload []byte, signatureHeader string) (Event, error) {
	if v == nil || v.secret == "" {
		return Event{}, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	return ParseEvent(event)
}

// EventKind is the closed set of webhook events the reconciler acts on.
type EventKind int

const (
	KindUnhandled EventKind = iota
	KindCheckoutCompleted
	KindPaymentFailed
)

const (
	eventCheckoutCompleted = "checkout.session.completed"
	eventPaymentFailed     = "payment_intent.payment_failed"
)

func (k EventKind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "checkout_completed"
	case KindPaymentFailed:
		return "payment_failed"
	default:
		return "unhandled"
	}
}

// Event is a verified webhook event reduced to what reconciliation needs.
//
// KindCheckoutCompleted sets Paid, the session id, the payment intent when
// the session has one and the invoice id from session metadata.
// KindPaymentFailed sets the payment intent id and the invoice id from its
// metadata. KindUnhandled only carries Type.
type Event struct {
	ID                string
	Type              string
	Kind              EventKind
	InvoiceID         string
	CheckoutSessionID string
	PaymentIntentID   string
	Paid              bool
}

// Ref is the set of identifiers an invoice can be matched by.
func (e Event) Ref() store.ProcessorRef {
	return store.ProcessorRef{
		InvoiceID:         e.InvoiceID,
		CheckoutSessionID: e.CheckoutSessionID,
		PaymentIntentID:   e.PaymentIntentID,
	}
}

// ParseEvent classifies a decoded Stripe event.
func ParseEvent(event stripe.Event) (Event, error) {
	out := Event{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case eventCheckoutCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return Event{}, fmt.Errorf("failed to decode checkout session: %w", err)
		}
		out.Kind = KindCheckoutCompleted
		out.Paid = cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid
		out.CheckoutSessionID = cs.ID
		out.InvoiceID = cs.Metadata["invoice_id"]
		if cs.PaymentIntent != nil {
			out.PaymentIntentID = cs.PaymentIntent.ID
		}
	case eventPaymentFailed:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("failed to decode payment intent: %w", err)
		}
		out.Kind = KindPaymentFailed
		out.PaymentIntentID = pi.ID
		out.InvoiceID = pi.Metadata["invoice_id"]
	default:
		out.Kind = KindUnhandled
	}

	return out, nil
}
