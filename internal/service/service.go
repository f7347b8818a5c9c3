// Package service is the orchestrator facade consumed by the transport
// layer: start a batch, cancel one or all of a user's tasks, list what is
// running.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/you-humble/chatmover/internal/batch"
	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/limiter"
	"github.com/you-humble/chatmover/internal/registry"
)

type batchRunner interface {
	Run(ctx context.Context, taskID string, req domain.BatchRequest) domain.Summary
}

type Service struct {
	runner   batchRunner
	registry *registry.Registry
	limiter  *limiter.Limiter

	// appCtx bounds batch lifetimes: a batch must survive the HTTP request
	// that started it but not process shutdown.
	appCtx       context.Context
	defaultDelay time.Duration
}

func New(
	runner batchRunner,
	reg *registry.Registry,
	lim *limiter.Limiter,
	appCtx context.Context,
	defaultDelay time.Duration,
) *Service {
	return &Service{
		runner:       runner,
		registry:     reg,
		limiter:      lim,
		appCtx:       appCtx,
		defaultDelay: defaultDelay,
	}
}

// StartBatch validates the request, claims a concurrency slot and a task
// record synchronously, and runs the batch in the background. The returned
// task id identifies the batch for cancellation and listing.
func (s *Service) StartBatch(req domain.BatchRequest) (string, error) {
	if req.Owner == 0 {
		return "", fmt.Errorf("start batch: missing owner")
	}
	if req.Dest.Chat == "" {
		return "", fmt.Errorf("start batch: missing destination")
	}
	if !batch.IsInviteLink(req.Spec) {
		if _, err := batch.ParseSpec(req.Spec); err != nil {
			return "", err
		}
	}
	if req.Delay <= 0 {
		req.Delay = s.defaultDelay
	}

	if err := s.limiter.Acquire(req.Owner); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	s.registry.Add(domain.TaskRecord{
		ID:        taskID,
		Owner:     req.Owner,
		Dest:      req.Dest,
		Label:     "Batch starting",
		StartedAt: time.Now(),
	})

	slog.Info("batch accepted",
		slog.String("task_id", taskID),
		slog.Int64("owner", int64(req.Owner)),
	)

	go s.runner.Run(s.appCtx, taskID, req)

	return taskID, nil
}

// RequestCancel flags one task, or every task of the owner when taskID is
// empty or "all". Cooperative: running transfers observe the flag at their
// next checkpoint.
func (s *Service) RequestCancel(owner domain.UserID, taskID string) error {
	if taskID == "" || taskID == "all" {
		n := s.registry.CancelAll(owner)
		s.limiter.RequestCancelAll(owner)
		if n == 0 && s.limiter.Active(owner) == 0 {
			return domain.ErrTaskNotFound
		}
		slog.Info("cancel-all requested", slog.Int64("owner", int64(owner)), slog.Int("tasks", n))
		return nil
	}

	if !s.registry.Cancel(owner, taskID) {
		return domain.ErrTaskNotFound
	}
	slog.Info("cancel requested", slog.String("task_id", taskID), slog.Int64("owner", int64(owner)))
	return nil
}

// ActiveTasks lists the owner's running tasks.
func (s *Service) ActiveTasks(owner domain.UserID) []domain.TaskRecord {
	return s.registry.Tasks(owner)
}
