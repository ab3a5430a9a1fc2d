package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/observability"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

type TrackingResult struct {
	OrderID        string               `json:"order_id"`
	Previous       types.ShippingStatus `json:"previous_status"`
	Current        types.ShippingStatus `json:"current_status"`
	Applied        bool                 `json:"applied"`
	PayoutReleased bool                 `json:"payout_released"`
	Duplicate      bool                 `json:"duplicate"`
}

type TrackingService interface {
	HandleTrackingEvent(ctx context.Context, upd *types.TrackingUpdate) (*TrackingResult, error)
}

type trackingService struct {
	db        *gorm.DB
	log       *logger.Logger
	orders    repos.OrderRepo
	events    repos.ProcessedEventRepo
	locker    lock.Locker
	scheduler PayoutReleaseScheduler
	clock     clock.Clock
	window    time.Duration
}

func NewTrackingService(
	db *gorm.DB,
	log *logger.Logger,
	orders repos.OrderRepo,
	events repos.ProcessedEventRepo,
	locker lock.Locker,
	scheduler PayoutReleaseScheduler,
	clk clock.Clock,
	payoutWindow time.Duration,
) TrackingService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	if payoutWindow <= 0 {
		payoutWindow = types.PayoutWindow
	}
	return &trackingService{
		db:        db,
		log:       log.With("service", "TrackingService"),
		orders:    orders,
		events:    events,
		locker:    locker,
		scheduler: scheduler,
		clock:     clk,
		window:    payoutWindow,
	}
}

// TrackingEventID derives the dedup key of a tracking update.
func TrackingEventID(upd *types.TrackingUpdate) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(upd.TrackingNumber),
		strings.ToLower(strings.TrimSpace(upd.Status)),
		upd.StatusDate.UTC().Format(time.RFC3339Nano),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

func (s *trackingService) HandleTrackingEvent(ctx context.Context, upd *types.TrackingUpdate) (res *TrackingResult, err error) {
	const op = "TrackingService.HandleTrackingEvent"
	if upd == nil || strings.TrimSpace(upd.TrackingNumber) == "" {
		return nil, types.Fail(types.ErrValidation, op, "tracking number required")
	}
	ctx, span := observability.StartSpan(ctx, "tracking.update",
		attribute.String("tracking_status", upd.Status),
	)
	defer func() { observability.EndSpan(span, err) }()
	dbc := dbctx.Context{Ctx: ctx}

	o, err := s.orders.GetByTrackingNumber(dbc, upd.TrackingNumber)
	if err != nil {
		return nil, fmt.Errorf("lookup tracking number: %w", err)
	}
	if o == nil {
		s.log.Warn("tracking update for unknown tracking number", "tracking_number", upd.TrackingNumber, "status", upd.Status)
		return nil, types.Failf(types.ErrOrderNotFound, op, "no order for tracking number %s", upd.TrackingNumber)
	}

	eventID := TrackingEventID(upd)
	status, _, err := s.events.Begin(dbc, types.EventSourceShippo, eventID)
	if err != nil {
		return nil, fmt.Errorf("record tracking event: %w", err)
	}
	if status == types.EventDone {
		return &TrackingResult{OrderID: o.ID, Previous: o.ShippingStatus, Current: o.ShippingStatus, Duplicate: true}, nil
	}

	release, err := s.locker.Acquire(ctx, lock.OrderKey(o.ID))
	if err != nil {
		return nil, fmt.Errorf("lock order %s: %w", o.ID, err)
	}
	res, err = s.apply(ctx, o.ID, upd)
	release()
	if err != nil {
		return nil, err
	}

	if err := s.events.MarkDone(dbc, types.EventSourceShippo, eventID); err != nil {
		return res, fmt.Errorf("mark tracking event done: %w", err)
	}
	return res, nil
}

func (s *trackingService) apply(ctx context.Context, orderID string, upd *types.TrackingUpdate) (*TrackingResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	now := s.clock.Now()

	o, err := s.orders.GetByID(dbc, orderID)
	if err != nil {
		return nil, fmt.Errorf("reload order %s: %w", orderID, err)
	}
	if o == nil {
		return nil, types.Failf(types.ErrOrderNotFound, "TrackingService.apply", "order %s not found", orderID)
	}
	res := &TrackingResult{OrderID: o.ID, Previous: o.ShippingStatus, Current: o.ShippingStatus}

	updates := map[string]interface{}{"last_tracking_update_at": now}
	if upd.ETA != nil {
		updates["estimated_delivery"] = upd.ETA.UTC()
	}

	target, recognized := types.TargetForCarrierStatus(upd.Status)
	if !recognized || target == o.ShippingStatus || !o.ShippingStatus.CanTransition(target) {
		if recognized && target != o.ShippingStatus {
			s.log.Warn("ignoring disallowed shipping transition", "order_id", o.ID, "from", o.ShippingStatus, "to", target, "carrier_status", upd.Status)
		} else {
			s.log.Debug("unrecognized carrier status", "order_id", o.ID, "carrier_status", upd.Status)
		}
		if err := s.orders.UpdateFields(dbc, o.ID, updates); err != nil {
			return nil, fmt.Errorf("stamp tracking update on %s: %w", o.ID, err)
		}
		if target == types.ShippingDelivered && o.ShippingStatus == types.ShippingDelivered {
			// a repeated delivery report past the window releases the payout
			promoted, err := s.orders.PromoteMaturedByID(dbc, o.ID, now)
			if err != nil {
				return nil, fmt.Errorf("release payout for %s: %w", o.ID, err)
			}
			if promoted {
				res.PayoutReleased = true
				s.log.Info("payout available", "order_id", o.ID, "delivered_at", o.DeliveredAt)
			}
		}
		return res, nil
	}

	var releaseAt time.Time
	if target == types.ShippingDelivered {
		deliveredAt := upd.StatusDate.UTC()
		if deliveredAt.IsZero() {
			deliveredAt = now
		}
		releaseAt = deliveredAt.Add(s.window)
		updates["delivered_at"] = deliveredAt
		updates["withdraw_available_at"] = releaseAt
	}

	ok, err := s.orders.TransitionShipping(dbc, o.ID, target, updates)
	if err != nil {
		return nil, fmt.Errorf("transition %s to %s: %w", o.ID, target, err)
	}
	if !ok {
		// status moved between the read and the write; still stamp the update
		delete(updates, "shipping_status")
		delete(updates, "delivered_at")
		delete(updates, "withdraw_available_at")
		if err := s.orders.UpdateFields(dbc, o.ID, updates); err != nil {
			return nil, fmt.Errorf("stamp tracking update on %s: %w", o.ID, err)
		}
		return res, nil
	}
	res.Applied = true
	res.Current = target
	s.log.Info("shipping status updated", "order_id", o.ID, "from", o.ShippingStatus, "to", target)

	if target != types.ShippingDelivered {
		return res, nil
	}

	promoted, err := s.orders.PromoteMaturedByID(dbc, o.ID, now)
	if err != nil {
		return nil, fmt.Errorf("release payout for %s: %w", o.ID, err)
	}
	res.PayoutReleased = promoted
	if promoted {
		s.log.Info("payout available", "order_id", o.ID, "delivered_at", updates["delivered_at"])
		return res, nil
	}
	if s.scheduler != nil && o.PayoutStatus == types.PayoutPending {
		if err := s.scheduler.ScheduleRelease(ctx, o.ID, releaseAt); err != nil {
			s.log.Warn("payout release timer not scheduled", "order_id", o.ID, "release_at", releaseAt, "error", err)
		}
	}
	return res, nil
}
