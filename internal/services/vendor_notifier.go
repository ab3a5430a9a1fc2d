package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/sendgrid"
)

type emailNotifier struct {
	log     *logger.Logger
	mail    sendgrid.Client
	timeout time.Duration
}

// NewEmailNotifier sends vendor emails through SendGrid. Send errors are logged only.
func NewEmailNotifier(log *logger.Logger, mail sendgrid.Client) VendorNotifier {
	if mail == nil {
		return NopNotifier()
	}
	return &emailNotifier{
		log:     log.With("service", "VendorNotifier"),
		mail:    mail,
		timeout: 10 * time.Second,
	}
}

func (n *emailNotifier) OrderPlaced(ctx context.Context, v *types.Vendor, o *types.Order) {
	if v == nil || o == nil {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You have a new order (%s).\n\n", o.ID)
	for _, li := range o.LineItems {
		fmt.Fprintf(&b, "  %d x %s @ $%s\n", li.Quantity, li.Name, li.UnitPrice.String())
	}
	fmt.Fprintf(&b, "\nSubtotal: $%s\nShipping: $%s\nTotal: $%s\n", o.Subtotal.String(), o.ShippingCost.String(), o.TotalAmount.String())
	if o.TrackingNumber != "" {
		fmt.Fprintf(&b, "\nA %s %s label was purchased. Tracking number: %s\n", o.Carrier, o.Service, o.TrackingNumber)
	}
	n.send(ctx, v, o, "order_placed", "New order "+o.ID, b.String())
}

func (n *emailNotifier) LabelFailed(ctx context.Context, v *types.Vendor, o *types.Order, reason string) {
	if v == nil || o == nil {
		return
	}
	body := fmt.Sprintf("We could not buy a shipping label for order %s.\n\nReason: %s\n\nFix the problem and retry the label from your dashboard.\n", o.ID, reason)
	n.send(ctx, v, o, "label_failed", "Shipping label failed for order "+o.ID, body)
}

func (n *emailNotifier) send(ctx context.Context, v *types.Vendor, o *types.Order, category, subject, text string) {
	to := strings.TrimSpace(v.ShipFrom.Email)
	if to == "" {
		n.log.Debug("vendor has no contact email; notification skipped", "vendor_id", v.ID, "category", category)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	_, err := n.mail.Send(ctx, sendgrid.SendEmailRequest{
		To:         []sendgrid.EmailAddress{{Email: to, Name: v.DisplayName}},
		Subject:    subject,
		Text:       text,
		Categories: []string{category},
		CustomArgs: map[string]string{"order_id": o.ID, "vendor_id": v.ID},
	})
	if err != nil {
		n.log.Warn("vendor notification failed", "vendor_id", v.ID, "order_id", o.ID, "category", category, "error", err)
	}
}
