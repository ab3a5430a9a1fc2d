package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/activity"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/yungbote/marketplace-backend/internal/data/repos"
	"github.com/yungbote/marketplace-backend/internal/platform/clock"
	"github.com/yungbote/marketplace-backend/internal/platform/httpx"
	"github.com/yungbote/marketplace-backend/internal/platform/logger"
	"github.com/yungbote/marketplace-backend/internal/temporalx"
	"github.com/yungbote/marketplace-backend/internal/temporalx/payoutrelease"
)

type Runner struct {
	log *logger.Logger
	cfg temporalx.Config

	tc     temporalsdkclient.Client
	orders repos.OrderRepo
	clock  clock.Clock
}

func NewRunner(
	log *logger.Logger,
	cfg temporalx.Config,
	tc temporalsdkclient.Client,
	orders repos.OrderRepo,
	clk clock.Clock,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if orders == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Runner{
		log:    log.With("component", "TemporalWorker"),
		cfg:    cfg,
		tc:     tc,
		orders: orders,
		clock:  clk,
	}, nil
}

// Start polls until the worker starts or cfg.DialMaxWait elapses. The worker stops
// when ctx is cancelled.
func (r *Runner) Start(ctx context.Context) error {
	if r == nil || r.tc == nil {
		return fmt.Errorf("temporal worker not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := r.cfg
	r.log.Info("Starting Temporal worker", "address", cfg.Address, "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue)

	deadline := time.Now().Add(cfg.DialMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		notFound := errors.As(startErr, &nfe)
		if notFound && cfg.AutoRegisterNamespace {
			if err := temporalx.EnsureNamespace(ctx, r.log, cfg); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", cfg.Namespace, "error", err)
			}
		}

		if cfg.DialMaxWait <= 0 || time.Now().After(deadline) {
			if notFound {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "namespace", cfg.Namespace, "task_queue", cfg.TaskQueue, "attempt", attempt, "error", startErr)
		if err := httpx.Sleep(ctx, httpx.Backoff(cfg.BackoffBase, cfg.BackoffMax, attempt-1)); err != nil {
			return err
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	concurrency := r.cfg.WorkerConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: concurrency,
	})

	acts := &payoutrelease.Activities{
		Log:    r.log,
		Orders: r.orders,
		Clock:  r.clock,
	}
	w.RegisterWorkflowWithOptions(payoutrelease.Workflow, workflow.RegisterOptions{Name: payoutrelease.WorkflowName})
	w.RegisterActivityWithOptions(acts.Promote, activity.RegisterOptions{Name: payoutrelease.ActivityPromote})
	return w
}
