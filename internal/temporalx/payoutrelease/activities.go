package payoutrelease

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type Activities struct {
	Log    *logger.Logger
	Orders repos.OrderRepo
	Clock  clock.Clock
}

// Promote applies the guarded pending -> available step. Orders that are not
// delivered, not yet matured, or already promoted are reported, not failed.
func (a *Activities) Promote(ctx context.Context, orderID string) (PromoteResult, error) {
	out := PromoteResult{OrderID: orderID}
	if a == nil || a.Orders == nil {
		return out, fmt.Errorf("payoutrelease: activities not configured")
	}
	now := a.now()
	dbc := dbctx.Context{Ctx: ctx}

	promoted, err := a.Orders.PromoteMaturedByID(dbc, orderID, now)
	if err != nil {
		return out, fmt.Errorf("promote order %s: %w", orderID, err)
	}
	if promoted {
		out.Promoted = true
		if a.Log != nil {
			a.Log.Info("payout released", "order_id", orderID)
		}
		return out, nil
	}

	o, err := a.Orders.GetByID(dbc, orderID)
	if err != nil {
		return out, fmt.Errorf("load order %s: %w", orderID, err)
	}
	switch {
	case o == nil:
		out.Reason = "order_not_found"
	case o.PayoutStatus != types.PayoutPending:
		out.Reason = "already_" + string(o.PayoutStatus)
	case o.ShippingStatus != types.ShippingDelivered:
		out.Reason = "not_delivered"
	case o.WithdrawAvailableAt != nil && o.WithdrawAvailableAt.After(now):
		// the timer fired early relative to this host's clock; let the retry policy wait
		return out, fmt.Errorf("order %s not mature until %s", orderID, o.WithdrawAvailableAt.UTC().Format("2006-01-02T15:04:05Z"))
	default:
		out.Reason = "not_eligible"
	}
	if a.Log != nil {
		a.Log.Debug("payout release skipped", "order_id", orderID, "reason", out.Reason)
	}
	return out, nil
}

func (a *Activities) now() time.Time {
	if a.Clock == nil {
		return clock.NewSystem().Now()
	}
	return a.Clock.Now()
}
