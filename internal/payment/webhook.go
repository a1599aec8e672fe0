package payment

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader is the request header carrying the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

// EventCheckoutSessionCompleted is the only event type that creates orders.
const EventCheckoutSessionCompleted = "checkout.session.completed"

// Event is a verified webhook event
type Event struct {
	ID   string
	Type string
	// Session is set only for checkout.session.completed events.
	Session *CompletedSession
}

// Address is a postal address as sent by Stripe
type Address struct {
	Line1      *string `json:"line1"`
	Line2      *string `json:"line2"`
	City       *string `json:"city"`
	State      *string `json:"state"`
	PostalCode *string `json:"postal_code"`
	Country    *string `json:"country"`
}

// ShippingDetails is the recipient collected during checkout
type ShippingDetails struct {
	Name    *string  `json:"name"`
	Address *Address `json:"address"`
}

// CustomerDetails is the payer collected during checkout
type CustomerDetails struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

// CompletedSession holds the parts of a completed checkout session that
// order creation needs.
type CompletedSession struct {
	ID              string            `json:"id"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails *CustomerDetails  `json:"customer_details"`
	ShippingDetails *ShippingDetails  `json:"shipping_details"`

	CollectedInformation *struct {
		ShippingDetails *ShippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
}

// Shipping returns the collected shipping details, preferring the newer
// collected_information block over the legacy top-level field.
func (s *CompletedSession) Shipping() *ShippingDetails {
	if s.CollectedInformation != nil && s.CollectedInformation.ShippingDetails != nil {
		return s.CollectedInformation.ShippingDetails
	}
	return s.ShippingDetails
}

// ConstructEvent verifies signature over the exact request bytes and
// decodes the event. The payload must not be re-serialized beforehand.
func (g *Gateway) ConstructEvent(payload []byte, signature string) (*Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.opts.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, err
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != EventCheckoutSessionCompleted {
		return out, nil
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("event %s has no data object", ev.ID)
	}

	var sess CompletedSession
	if err := json.Unmarshal(ev.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	out.Session = &sess
	return out, nil
}
