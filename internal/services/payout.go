package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/observability"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
	"github.com/yungbote/marketplace-backend/internal/platform/httpx"
	"github.com/yungbote/marketplace-backend/internal/platform/lock"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/platform/stripepay"
)

// payoutLeaseTTL bounds how long one request may hold a transfer intent while calling
// the processor. It must outlast the processor timeout.
const payoutLeaseTTL = 5 * time.Minute

type PayoutService interface {
	Withdraw(ctx context.Context, vendorID string) (*types.PayoutResult, error)
}

type payoutService struct {
	db        *gorm.DB
	log       *logger.Logger
	vendors   repos.VendorRepo
	orders    repos.OrderRepo
	transfers repos.PayoutTransferRepo
	processor PaymentProcessor
	locker    lock.Locker
	clock     clock.Clock
	newUUIDFn func() string
}

func NewPayoutService(
	db *gorm.DB,
	log *logger.Logger,
	vendors repos.VendorRepo,
	orders repos.OrderRepo,
	transfers repos.PayoutTransferRepo,
	processor PaymentProcessor,
	locker lock.Locker,
	clk clock.Clock,
) PayoutService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &payoutService{
		db:        db,
		log:       log.With("service", "PayoutService"),
		vendors:   vendors,
		orders:    orders,
		transfers: transfers,
		processor: processor,
		locker:    locker,
		clock:     clk,
		newUUIDFn: uuid.NewString,
	}
}

func (s *payoutService) Withdraw(ctx context.Context, vendorID string) (res *types.PayoutResult, err error) {
	const op = "PayoutService.Withdraw"
	ctx, span := observability.StartSpan(ctx, "payout.withdraw", attribute.String("vendor_id", vendorID))
	defer func() { observability.EndSpan(span, err) }()

	p, err := requirePrincipal(ctx, op)
	if err != nil {
		return nil, err
	}
	dbc := dbctx.Context{Ctx: ctx}
	v, err := s.vendors.GetByID(dbc, vendorID)
	if err != nil {
		return nil, fmt.Errorf("load vendor %s: %w", vendorID, err)
	}
	if v == nil {
		return nil, types.Failf(types.ErrVendorNotFound, op, "vendor %s not found", vendorID)
	}
	if err := authorizeVendorOwner(p, v, op); err != nil {
		return nil, err
	}

	release, err := s.locker.Acquire(ctx, lock.PayoutKey(v.ID))
	if err != nil {
		return nil, types.Failf(types.ErrServiceUnavailable, op, "another withdrawal is in progress: %v", err)
	}
	defer release()

	resumed, err := s.resumePending(ctx, v)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if n, err := s.orders.PromoteMatured(dbc, v.ID, now); err != nil {
		return nil, fmt.Errorf("promote matured orders: %w", err)
	} else if n > 0 {
		s.log.Info("matured orders promoted", "vendor_id", v.ID, "count", n)
	}

	if !v.Onboarded() {
		return nil, types.Failf(types.ErrVendorNotConnected, op, "vendor %s has no payment account", v.ID)
	}

	leasedUntil := now.Add(payoutLeaseTTL)
	intent, err := s.transfers.Create(dbc, &types.PayoutTransfer{
		ID:               s.newUUIDFn(),
		VendorID:         v.ID,
		PaymentAccountID: v.PaymentAccountID,
		Status:           types.TransferPending,
		LeasedUntil:      &leasedUntil,
	})
	if err != nil {
		return nil, fmt.Errorf("create transfer intent: %w", err)
	}

	claimed, err := s.orders.ClaimAvailable(dbc, v.ID, intent.ID, now)
	if err != nil {
		return nil, fmt.Errorf("claim orders: %w", err)
	}
	if claimed == 0 {
		if err := s.transfers.Delete(dbc, intent.ID); err != nil {
			s.log.Warn("deleting empty transfer intent failed", "transfer_intent", intent.ID, "error", err)
		}
		if resumed != nil {
			return resumed, nil
		}
		return nil, types.Failf(types.ErrNoEligibleOrders, op, "vendor %s has no orders available for withdrawal", v.ID)
	}

	return s.execute(ctx, v, intent)
}

// resumePending finishes intents a crashed or interrupted request left behind, reusing
// their idempotency keys so the processor never pays the same claim twice. Intents
// whose lease is still held belong to a request that is talking to the processor now.
// The last completed resume is returned so a retry after an unknown outcome reports it.
func (s *payoutService) resumePending(ctx context.Context, v *types.Vendor) (*types.PayoutResult, error) {
	dbc := dbctx.Context{Ctx: ctx}
	pending, err := s.transfers.ListPendingByVendor(dbc, v.ID)
	if err != nil {
		return nil, fmt.Errorf("list pending transfers: %w", err)
	}
	var last *types.PayoutResult
	for _, intent := range pending {
		now := s.clock.Now()
		ok, err := s.transfers.AcquireLease(dbc, intent.ID, now, now.Add(payoutLeaseTTL))
		if err != nil {
			return nil, fmt.Errorf("lease transfer intent %s: %w", intent.ID, err)
		}
		if !ok {
			s.log.Info("transfer intent in flight; not resumed", "vendor_id", v.ID, "transfer_intent", intent.ID)
			continue
		}
		s.log.Warn("resuming pending transfer intent", "vendor_id", v.ID, "transfer_intent", intent.ID)
		res, err := s.execute(ctx, v, intent)
		if err != nil {
			if errors.Is(err, types.ErrNoEligibleOrders) {
				continue
			}
			return nil, err
		}
		last = res
	}
	return last, nil
}

// execute sends a leased intent to the processor and settles it.
func (s *payoutService) execute(ctx context.Context, v *types.Vendor, intent *types.PayoutTransfer) (*types.PayoutResult, error) {
	const op = "PayoutService.execute"
	dbc := dbctx.Context{Ctx: ctx}

	orders, err := s.orders.ListClaimed(dbc, intent.ID)
	if err != nil {
		return nil, fmt.Errorf("list claimed orders: %w", err)
	}
	var ids, withdrawn []string
	var amount, withdrawnAmount types.Cents
	var paidAs string
	for _, o := range orders {
		switch o.PayoutStatus {
		case types.PayoutAvailable:
			ids = append(ids, o.ID)
			amount += o.TotalAmount
		case types.PayoutWithdrawn:
			withdrawn = append(withdrawn, o.ID)
			withdrawnAmount += o.TotalAmount
			paidAs = o.PayoutTransferID
		}
	}
	if len(ids) == 0 && len(withdrawn) > 0 {
		// paid before the intent was finalized
		if err := s.settle(dbc, intent.ID, map[string]interface{}{
			"status":                types.TransferSucceeded,
			"processor_transfer_id": paidAs,
			"amount_cents":          withdrawnAmount,
			"order_ids":             datatypes.JSONSlice[string](withdrawn),
			"last_error":            "",
		}); err != nil {
			return nil, fmt.Errorf("finalize transfer intent: %w", err)
		}
		return &types.PayoutResult{TransferID: paidAs, Amount: withdrawnAmount, OrderIDs: withdrawn}, nil
	}
	if len(ids) == 0 {
		_ = s.settle(dbc, intent.ID, map[string]interface{}{
			"status":     types.TransferFailed,
			"last_error": "no claimed orders",
		})
		return nil, types.Failf(types.ErrNoEligibleOrders, op, "transfer intent %s has no claimed orders", intent.ID)
	}
	if err := s.transfers.UpdateFields(dbc, intent.ID, map[string]interface{}{
		"amount_cents": amount,
		"order_ids":    datatypes.JSONSlice[string](ids),
	}); err != nil {
		return nil, fmt.Errorf("record transfer amount: %w", err)
	}

	account := intent.PaymentAccountID
	if account == "" {
		account = v.PaymentAccountID
	}
	transferID, err := s.processor.CreateTransfer(ctx, stripepay.TransferRequest{
		IdempotencyKey:   intent.ID,
		Amount:           amount,
		PaymentAccountID: account,
		TransferGroup:    "payout_" + intent.ID,
		Metadata: map[string]string{
			"vendor_id":       v.ID,
			"transfer_intent": intent.ID,
			"order_count":     strconv.Itoa(len(ids)),
		},
	})
	if err != nil {
		if transferOutcomeUnknown(err) {
			// hold the claims; the next withdrawal retries with the same key
			s.log.Warn("transfer outcome unknown; intent kept pending", "transfer_intent", intent.ID, "error", err)
			_ = s.settle(dbc, intent.ID, map[string]interface{}{"last_error": err.Error()})
			return nil, types.NewError(types.CodeExternalService, op, "transfer pending: "+err.Error(), err)
		}
		if _, rerr := s.orders.ReleaseClaims(dbc, intent.ID, s.clock.Now()); rerr != nil {
			s.log.Error("releasing claims failed", "transfer_intent", intent.ID, "error", rerr)
		}
		_ = s.settle(dbc, intent.ID, map[string]interface{}{
			"status":     types.TransferFailed,
			"last_error": err.Error(),
		})
		s.log.Error("transfer rejected", "vendor_id", v.ID, "transfer_intent", intent.ID, "error", err)
		return nil, types.NewError(types.CodeExternalService, op, "transfer failed: "+err.Error(), err)
	}

	marked, err := s.orders.MarkWithdrawn(dbc, intent.ID, transferID, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("mark orders withdrawn: %w", err)
	}
	if err := s.settle(dbc, intent.ID, map[string]interface{}{
		"status":                types.TransferSucceeded,
		"processor_transfer_id": transferID,
		"last_error":            "",
	}); err != nil {
		return nil, fmt.Errorf("finalize transfer intent: %w", err)
	}
	if marked != int64(len(ids)) {
		s.log.Error("paid orders lost their claim", "vendor_id", v.ID, "transfer_intent", intent.ID, "transfer", transferID, "claimed", len(ids), "marked", marked)
		return nil, types.NewError(types.CodeInternal, op,
			fmt.Sprintf("transfer %s paid %d orders but marked %d withdrawn", transferID, len(ids), marked), nil)
	}
	s.log.Info("withdrawal completed", "vendor_id", v.ID, "transfer", transferID, "amount_cents", int64(amount), "orders", len(ids))
	return &types.PayoutResult{TransferID: transferID, Amount: amount, OrderIDs: ids}, nil
}

// settle records an intent outcome and drops its lease.
func (s *payoutService) settle(dbc dbctx.Context, intentID string, updates map[string]interface{}) error {
	updates["leased_until"] = nil
	updates["updated_at"] = s.clock.Now().UTC()
	if err := s.transfers.UpdateFields(dbc, intentID, updates); err != nil {
		s.log.Error("recording transfer intent outcome failed", "transfer_intent", intentID, "error", err)
		return err
	}
	return nil
}

// transferOutcomeUnknown is true when the processor may have executed the transfer.
// A conflict means another request holds the same idempotency key.
func transferOutcomeUnknown(err error) bool {
	var pe *stripepay.ProcessorError
	if errors.As(err, &pe) {
		return pe.Status == 0 || pe.Status == http.StatusConflict || pe.Status >= 500 || pe.Retryable()
	}
	return httpx.IsRetryableError(err)
}
