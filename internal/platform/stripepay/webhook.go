package stripepay

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/yungbote/marketplace-backend/internal/domain"
)

const SignatureHeader = "Stripe-Signature"

// WebhookVerifier authenticates processor callbacks. A verifier cannot be built without a secret.
type WebhookVerifier struct {
	secret    string
	tolerance time.Duration
}

func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("missing STRIPE_WEBHOOK_SECRET")
	}
	return &WebhookVerifier{secret: secret, tolerance: webhook.DefaultTolerance}, nil
}

type shippingDetails struct {
	Name    string `json:"name"`
	Address struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
		Country    string `json:"country"`
	} `json:"address"`
}

type completedSession struct {
	ID                string            `json:"id"`
	ClientReferenceID string            `json:"client_reference_id"`
	AmountTotal       int64             `json:"amount_total"`
	Metadata          map[string]string `json:"metadata"`
	CustomerEmail     string            `json:"customer_email"`
	CustomerDetails   *struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	ShippingDetails      *shippingDetails `json:"shipping_details"`
	CollectedInformation *struct {
		ShippingDetails *shippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
}

// ParsePaymentCompleted verifies the signature and decodes a checkout completion.
// ok is false for verified events of any other type.
func (v *WebhookVerifier) ParsePaymentCompleted(payload []byte, sigHeader string) (*domain.PaymentCompleted, bool, error) {
	const op = "stripepay.ParsePaymentCompleted"
	if v == nil || v.secret == "" {
		return nil, false, domain.Fail(domain.ErrInvalidSignature, op, "webhook secret not configured")
	}
	evt, err := webhook.ConstructEventWithOptions(payload, sigHeader, v.secret, webhook.ConstructEventOptions{
		Tolerance:                v.tolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, false, domain.Fail(domain.ErrInvalidSignature, op, err.Error())
	}
	if evt.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, false, nil
	}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return nil, false, domain.Fail(domain.ErrValidation, op, "event has no data")
	}

	var cs completedSession
	if err := json.Unmarshal(evt.Data.Raw, &cs); err != nil {
		return nil, false, domain.Failf(domain.ErrValidation, op, "decode session: %v", err)
	}

	out := &domain.PaymentCompleted{
		EventID:           evt.ID,
		PaymentSessionID:  cs.ID,
		CheckoutSessionID: strings.TrimSpace(cs.Metadata[domain.MetaCheckoutSessionID]),
		BuyerID:           strings.TrimSpace(cs.Metadata[domain.MetaBuyerID]),
		BuyerEmail:        cs.CustomerEmail,
		AmountTotal:       domain.Cents(cs.AmountTotal),
		Metadata:          cs.Metadata,
	}
	if out.CheckoutSessionID == "" {
		out.CheckoutSessionID = strings.TrimSpace(cs.ClientReferenceID)
	}
	if cs.CustomerDetails != nil && cs.CustomerDetails.Email != "" {
		out.BuyerEmail = cs.CustomerDetails.Email
	}
	sd := cs.ShippingDetails
	if cs.CollectedInformation != nil && cs.CollectedInformation.ShippingDetails != nil {
		sd = cs.CollectedInformation.ShippingDetails
	}
	if sd != nil {
		out.ShipTo = &domain.Address{
			Name:    sd.Name,
			Street1: sd.Address.Line1,
			Street2: sd.Address.Line2,
			City:    sd.Address.City,
			State:   sd.Address.State,
			Zip:     sd.Address.PostalCode,
			Country: sd.Address.Country,
		}
	}
	if out.CheckoutSessionID == "" {
		return nil, false, domain.Fail(domain.ErrValidation, op, "event carries no checkout session id")
	}
	return out, true, nil
}
