package payoutrelease

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	"github.com/yungbote/marketplace-backend/internal/data/repos/testutil"
	types "github.com/yungbote/marketplace-backend/internal/domain"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/dbctx"
)

type workflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite
	env *testsuite.TestWorkflowEnvironment
}

func (s *workflowSuite) SetupTest() {
	s.env = s.NewTestWorkflowEnvironment()
	s.env.RegisterWorkflowWithOptions(Workflow, workflow.RegisterOptions{Name: WorkflowName})
	acts := &Activities{}
	s.env.RegisterActivityWithOptions(acts.Promote, activity.RegisterOptions{Name: ActivityPromote})
}

func (s *workflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *workflowSuite) TestSleepsUntilReleaseThenPromotes() {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	releaseAt := start.Add(types.PayoutWindow)
	s.env.SetStartTime(start)

	var calledAt time.Time
	s.env.OnActivity(ActivityPromote, mock.Anything, "order-1").
		Return(func(_ context.Context, orderID string) (PromoteResult, error) {
			calledAt = s.env.Now()
			return PromoteResult{OrderID: orderID, Promoted: true}, nil
		}).
		Once()

	s.env.ExecuteWorkflow(WorkflowName, Input{OrderID: "order-1", ReleaseAt: releaseAt})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
	var out PromoteResult
	s.NoError(s.env.GetWorkflowResult(&out))
	s.True(out.Promoted)
	s.False(calledAt.Before(releaseAt), "activity ran at %s before release %s", calledAt, releaseAt)
}

func (s *workflowSuite) TestPastReleaseRunsImmediately() {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.env.SetStartTime(start)
	s.env.OnActivity(ActivityPromote, mock.Anything, "order-2").
		Return(PromoteResult{OrderID: "order-2", Reason: "already_available"}, nil).
		Once()

	s.env.ExecuteWorkflow(WorkflowName, Input{OrderID: "order-2", ReleaseAt: start.Add(-time.Hour)})

	s.True(s.env.IsWorkflowCompleted())
	s.NoError(s.env.GetWorkflowError())
}

func (s *workflowSuite) TestMissingOrderIDFails() {
	s.env.ExecuteWorkflow(WorkflowName, Input{})

	s.True(s.env.IsWorkflowCompleted())
	s.Error(s.env.GetWorkflowError())
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(workflowSuite))
}

func TestPromoteActivity(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	orders := repos.NewOrderRepo(db, log)

	now := time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)
	delivered := now.Add(-31 * 24 * time.Hour)
	matured := testutil.SeedOrder(t, db, &types.Order{
		VendorID:            "vendor-1",
		BuyerID:             "buyer-1",
		TotalAmount:         3197,
		PurchasedAt:         delivered.Add(-48 * time.Hour),
		ShippingStatus:      types.ShippingDelivered,
		PayoutStatus:        types.PayoutPending,
		DeliveredAt:         testutil.PtrTime(delivered),
		WithdrawAvailableAt: testutil.PtrTime(delivered.Add(types.PayoutWindow)),
	})
	shipped := testutil.SeedOrder(t, db, &types.Order{
		VendorID:       "vendor-1",
		BuyerID:        "buyer-1",
		PurchasedAt:    now.Add(-48 * time.Hour),
		ShippingStatus: types.ShippingShipped,
		PayoutStatus:   types.PayoutPending,
	})

	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := &Activities{Log: log, Orders: orders, Clock: clock.NewFixed(now)}
	env.RegisterActivityWithOptions(acts.Promote, activity.RegisterOptions{Name: ActivityPromote})

	val, err := env.ExecuteActivity(ActivityPromote, matured.ID)
	require.NoError(t, err)
	var out PromoteResult
	require.NoError(t, val.Get(&out))
	require.True(t, out.Promoted)

	got, err := orders.GetByID(dbctx.Context{Ctx: context.Background()}, matured.ID)
	require.NoError(t, err)
	require.Equal(t, types.PayoutAvailable, got.PayoutStatus)

	val, err = env.ExecuteActivity(ActivityPromote, matured.ID)
	require.NoError(t, err)
	require.NoError(t, val.Get(&out))
	require.False(t, out.Promoted)
	require.Equal(t, "already_available", out.Reason)

	val, err = env.ExecuteActivity(ActivityPromote, shipped.ID)
	require.NoError(t, err)
	require.NoError(t, val.Get(&out))
	require.False(t, out.Promoted)
	require.Equal(t, "not_delivered", out.Reason)
}
