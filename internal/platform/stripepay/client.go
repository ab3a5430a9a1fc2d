package stripepay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/transfer"

	"github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/httpx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

// CheckoutRequest is one combined payment for every vendor of a checkout.
type CheckoutRequest struct {
	CheckoutSessionID string
	BuyerID           string
	BuyerEmail        string
	LineItems         []domain.LineItem
	ShippingTotal     domain.Cents
	Metadata          map[string]string
	ExpiresAt         time.Time
}

type CheckoutResult struct {
	PaymentSessionID string
	RedirectURL      string
}

type TransferRequest struct {
	IdempotencyKey   string
	Amount           domain.Cents
	PaymentAccountID string
	TransferGroup    string
	Metadata         map[string]string
}

type Client struct {
	log       *logger.Logger
	cfg       Config
	sessions  *session.Client
	transfers *transfer.Client
}

func New(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	b := cfg.backend()
	return &Client{
		log:       log.With("client", "StripeClient"),
		cfg:       cfg,
		sessions:  &session.Client{B: b, Key: cfg.SecretKey},
		transfers: &transfer.Client{B: b, Key: cfg.SecretKey},
	}, nil
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	if len(req.LineItems) == 0 {
		return nil, fmt.Errorf("stripe: checkout requires at least one line item")
	}
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(c.cfg.SuccessURL),
		CancelURL:         stripe.String(c.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.CheckoutSessionID),
		ShippingAddressCollection: &stripe.CheckoutSessionShippingAddressCollectionParams{
			AllowedCountries: stripe.StringSlice([]string{"US"}),
		},
	}
	if req.BuyerEmail != "" {
		params.CustomerEmail = stripe.String(req.BuyerEmail)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	for _, li := range req.LineItems {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(domain.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(li.Name),
				},
				UnitAmount: stripe.Int64(li.UnitPrice.Int64()),
			},
			Quantity: stripe.Int64(int64(li.Quantity)),
		})
	}
	params.ShippingOptions = []*stripe.CheckoutSessionShippingOptionParams{{
		ShippingRateData: &stripe.CheckoutSessionShippingOptionShippingRateDataParams{
			DisplayName: stripe.String("Shipping"),
			Type:        stripe.String("fixed_amount"),
			FixedAmount: &stripe.CheckoutSessionShippingOptionShippingRateDataFixedAmountParams{
				Amount:   stripe.Int64(req.ShippingTotal.Int64()),
				Currency: stripe.String(domain.Currency),
			},
		},
	}}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey("checkout:" + req.CheckoutSessionID)

	s, err := c.sessions.New(params)
	if err != nil {
		return nil, classify("create checkout session", err)
	}
	c.log.Info("payment session created", "checkout_session_id", req.CheckoutSessionID, "payment_session", s.ID)
	return &CheckoutResult{PaymentSessionID: s.ID, RedirectURL: s.URL}, nil
}

// CreateTransfer moves funds to a connected account. Reusing an idempotency key returns
// the original transfer instead of paying twice.
func (c *Client) CreateTransfer(ctx context.Context, req TransferRequest) (string, error) {
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return "", fmt.Errorf("stripe: transfer requires an idempotency key")
	}
	if req.Amount <= 0 {
		return "", fmt.Errorf("stripe: transfer amount must be positive")
	}
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount.Int64()),
		Currency:    stripe.String(domain.Currency),
		Destination: stripe.String(req.PaymentAccountID),
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripe.String(req.TransferGroup)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	tr, err := c.transfers.New(params)
	if err != nil {
		return "", classify("create transfer", err)
	}
	c.log.Info("transfer created", "transfer", tr.ID, "amount_cents", req.Amount.Int64())
	return tr.ID, nil
}

// ProcessorError carries the processor's HTTP status so httpx can classify it.
type ProcessorError struct {
	Op     string
	Status int
	Err    error
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("stripe %s: %v", e.Op, e.Err)
}
func (e *ProcessorError) Unwrap() error       { return e.Err }
func (e *ProcessorError) HTTPStatusCode() int { return e.Status }

// Retryable reports whether the failed call may succeed if repeated with the same key.
func (e *ProcessorError) Retryable() bool {
	if e.Status == 0 {
		return httpx.IsRetryableError(e.Err)
	}
	return httpx.IsRetryableHTTPStatus(e.Status)
}

func classify(op string, err error) error {
	pe := &ProcessorError{Op: op, Err: err}
	if se, ok := err.(*stripe.Error); ok {
		pe.Status = se.HTTPStatusCode
	}
	return pe
}
