package payoutrelease

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// Workflow sleeps until the payout window closes, then promotes the order's payout.
func Workflow(ctx workflow.Context, in Input) (PromoteResult, error) {
	if strings.TrimSpace(in.OrderID) == "" {
		return PromoteResult{}, temporal.NewNonRetryableApplicationError("payoutrelease: missing order_id", "invalid_input", nil)
	}

	if d := in.ReleaseAt.Sub(workflow.Now(ctx)); d > 0 {
		if err := workflow.Sleep(ctx, d); err != nil {
			return PromoteResult{}, err
		}
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    10 * time.Minute,
			MaximumAttempts:    20,
		},
	})

	var out PromoteResult
	if err := workflow.ExecuteActivity(ctx, ActivityPromote, in.OrderID).Get(ctx, &out); err != nil {
		return PromoteResult{}, fmt.Errorf("payoutrelease: promote %s: %w", in.OrderID, err)
	}
	workflow.GetLogger(ctx).Info("payout release finished", "order_id", in.OrderID, "promoted", out.Promoted, "reason", out.Reason)
	return out, nil
}
