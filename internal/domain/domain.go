// Package domain holds the persisted marketplace documents and the state machines
// that govern how orders move through fulfillment and payout.
package domain

import "time"

const (
	// PayoutWindow is the delay between delivery and the moment an order's proceeds may be withdrawn.
	PayoutWindow = 30 * 24 * time.Hour

	CheckoutSessionTTL = 30 * time.Minute
)

// AllModels lists every table owned by this service, in migration order.
func AllModels() []any {
	return []any{
		&Vendor{},
		&Product{},
		&CartItem{},
		&CheckoutSession{},
		&Order{},
		&ProcessedEvent{},
		&PayoutTransfer{},
	}
}
