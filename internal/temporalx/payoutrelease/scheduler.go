package payoutrelease

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"

	"github.com/yungbote/marketplace-backend/internal/platform/logger"
)

// Scheduler starts one release workflow per order. The workflow id makes repeated
// scheduling for the same order a no-op.
type Scheduler struct {
	tc        temporalsdkclient.Client
	taskQueue string
	log       *logger.Logger
}

func NewScheduler(tc temporalsdkclient.Client, taskQueue string, baseLog *logger.Logger) *Scheduler {
	tq := strings.TrimSpace(taskQueue)
	if tq == "" {
		tq = "marketplace"
	}
	return &Scheduler{tc: tc, taskQueue: tq, log: baseLog.With("component", "PayoutReleaseScheduler")}
}

func (s *Scheduler) ScheduleRelease(ctx context.Context, orderID string, releaseAt time.Time) error {
	if s == nil || s.tc == nil {
		return fmt.Errorf("temporal not configured (TEMPORAL_ADDRESS)")
	}
	if strings.TrimSpace(orderID) == "" {
		return fmt.Errorf("missing order id")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    WorkflowID(orderID),
		TaskQueue:             s.taskQueue,
		WorkflowIDReusePolicy: enums.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}
	run, err := s.tc.ExecuteWorkflow(ctx, opts, WorkflowName, Input{OrderID: orderID, ReleaseAt: releaseAt.UTC()})
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return nil
		}
		return fmt.Errorf("start payout release for order %s: %w", orderID, err)
	}
	s.log.Info("payout release scheduled", "order_id", orderID, "release_at", releaseAt.UTC(), "run_id", run.GetRunID())
	return nil
}
