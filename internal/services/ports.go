package services

import (
	"context"
	"time"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/shippo"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
)

// PaymentProcessor is the subset of the Stripe client the pipeline calls.
type PaymentProcessor interface {
	CreateCheckoutSession(ctx context.Context, req stripepay.CheckoutRequest) (*stripepay.CheckoutResult, error)
	CreateTransfer(ctx context.Context, req stripepay.TransferRequest) (string, error)
}

// ShippingProvider is the subset of the Shippo client the pipeline calls.
type ShippingProvider interface {
	Ping(ctx context.Context) error
	CreateShipment(ctx context.Context, from, to types.Address, parcel shippo.Parcel) (*shippo.Shipment, error)
	PurchaseLabel(ctx context.Context, rateID string) (*shippo.Label, error)
	DownloadLabel(ctx context.Context, url string) ([]byte, error)
}

type PayoutReleaseScheduler interface {
	ScheduleRelease(ctx context.Context, orderID string, releaseAt time.Time) error
}

// VendorNotifier delivers best-effort vendor emails. Implementations never fail the caller.
type VendorNotifier interface {
	OrderPlaced(ctx context.Context, v *types.Vendor, o *types.Order)
	LabelFailed(ctx context.Context, v *types.Vendor, o *types.Order, reason string)
}

type nopNotifier struct{}

func (nopNotifier) OrderPlaced(context.Context, *types.Vendor, *types.Order)         {}
func (nopNotifier) LabelFailed(context.Context, *types.Vendor, *types.Order, string) {}

// NopNotifier is used when no mail provider is configured.
func NopNotifier() VendorNotifier { return nopNotifier{} }
