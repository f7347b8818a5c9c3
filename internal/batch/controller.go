package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/limiter"
	"github.com/you-humble/chatmover/internal/platform"
	"github.com/you-humble/chatmover/internal/progress"
	"github.com/you-humble/chatmover/internal/registry"
	"github.com/you-humble/chatmover/internal/worker"
)

// CredStore reads and invalidates per-user saved sessions.
type CredStore interface {
	Get(ctx context.Context, user domain.UserID) (domain.Credentials, error)
	Invalidate(ctx context.Context, user domain.UserID) error
}

type transferrer interface {
	Transfer(ctx context.Context, job worker.Job) (worker.Outcome, error)
}

type Config struct {
	// LoginSystem selects per-user credentials; when false every batch runs
	// on SharedCreds and the session is never closed between batches.
	LoginSystem bool
	SharedCreds domain.Credentials

	FetchMissPause time.Duration
	ThrottleMargin time.Duration
	StatusInterval time.Duration
}

// Controller drives the id-range loop of one batch: resolve the range,
// acquire a session, delegate items to the transfer worker, aggregate the
// outcomes, and emit periodic and final status.
type Controller struct {
	worker    transferrer
	connector platform.Connector
	creds     CredStore
	registry  *registry.Registry
	limiter   *limiter.Limiter
	sink      progress.Sink
	cfg       Config
}

func NewController(
	w transferrer,
	connector platform.Connector,
	creds CredStore,
	reg *registry.Registry,
	lim *limiter.Limiter,
	sink progress.Sink,
	cfg Config,
) *Controller {
	return &Controller{
		worker:    w,
		connector: connector,
		creds:     creds,
		registry:  reg,
		limiter:   lim,
		sink:      sink,
		cfg:       cfg,
	}
}

// Run executes one batch to completion. The concurrency slot and the task
// record must already exist; Run releases both on every exit path.
func (c *Controller) Run(ctx context.Context, taskID string, req domain.BatchRequest) domain.Summary {
	defer func() {
		c.registry.Remove(req.Owner, taskID)
		c.limiter.Release(req.Owner)
	}()

	log := slog.With(
		slog.String("task_id", taskID),
		slog.Int64("owner", int64(req.Owner)),
	)

	sess, err := c.connect(ctx, req.Owner)
	if err != nil {
		log.Error("session acquisition failed", slog.String("error", err.Error()))
		c.publish(ctx, req.Handle, sessionFailureText(err))
		return domain.Summary{}
	}
	if c.cfg.LoginSystem {
		defer func() {
			if cerr := sess.Close(); cerr != nil {
				log.Warn("session close", slog.String("error", cerr.Error()))
			}
		}()
	}

	spec, err := c.resolveSpec(ctx, sess, req)
	if err != nil {
		log.Error("spec resolution failed", slog.String("error", err.Error()))
		c.publish(ctx, req.Handle, "Could not read the request: "+err.Error())
		return domain.Summary{}
	}

	// Messages numerically before a topic's first message cannot belong to
	// it, so an earlier start only burns fetch quota.
	if spec.Thread > 0 && spec.From < spec.Thread {
		c.publish(ctx, req.Handle, fmt.Sprintf(
			"Start adjusted: topic %d begins after message %d, skipping %d-%d",
			spec.Thread, spec.From, spec.From, spec.Thread-1,
		))
		spec.From = spec.Thread
	}

	total := spec.Len()
	c.registry.SetLabel(req.Owner, taskID, fmt.Sprintf("Batch %s (%d items)", spec.Chat, total))
	log.Info("batch started",
		slog.String("chat", string(spec.Chat)),
		slog.Int64("from", spec.From),
		slog.Int64("to", spec.To),
		slog.Int("total", total),
	)

	sum := domain.Summary{TotalRequested: total}
	cancelled := func() bool {
		return c.registry.IsCancelled(taskID) || c.limiter.CancelRequested(req.Owner)
	}

	start := time.Now()
	lastStatus := start

	index := 0
	for id := spec.From; id <= spec.To; id++ {
		index++

		if ctx.Err() != nil || cancelled() {
			sum.Cancelled = true
			break
		}

		if abort := c.processOne(ctx, sess, spec, req, id, index, total, cancelled, &sum); abort {
			break
		}

		if time.Since(lastStatus) > c.cfg.StatusInterval {
			lastStatus = time.Now()
			c.publish(ctx, req.Handle, statusText(sum, index, total, time.Since(start)))
		}
	}

	log.Info("batch finished",
		slog.Int("success", sum.Success),
		slog.Int("failed", sum.Failed),
		slog.Int("skipped", sum.Skipped),
		slog.Bool("cancelled", sum.Cancelled),
	)
	c.publish(ctx, req.Handle, summaryText(sum))
	return sum
}

// processOne resolves one id to exactly one summary increment. A throttle
// signal re-attempts the same id after the suggested wait plus a margin,
// without advancing any counter. Returns true when the whole batch must
// stop.
func (c *Controller) processOne(
	ctx context.Context,
	sess platform.Session,
	spec Spec,
	req domain.BatchRequest,
	id int64,
	index, total int,
	cancelled func() bool,
	sum *domain.Summary,
) bool {
	for {
		if ctx.Err() != nil || cancelled() {
			sum.Cancelled = true
			return true
		}

		item, err := sess.FetchItem(ctx, spec.Chat, id)
		if err != nil {
			if wait, ok := domain.AsThrottle(err); ok {
				slog.Info("throttled on fetch, backing off",
					slog.Int64("msg_id", id),
					slog.Duration("wait", wait),
				)
				if !c.pause(ctx, wait+c.cfg.ThrottleMargin) {
					sum.Cancelled = true
					return true
				}
				continue
			}
			sum.Failed++
			c.pause(ctx, c.cfg.FetchMissPause)
			return false
		}

		if spec.Thread > 0 && item.Thread != spec.Thread {
			sum.Skipped++
			// The fetch itself still counts against rate limits.
			c.pause(ctx, c.cfg.FetchMissPause)
			return false
		}

		out, werr := c.worker.Transfer(ctx, worker.Job{
			Acc:       sess,
			Item:      item,
			Dest:      req.Dest,
			Delay:     req.Delay,
			Owner:     req.Owner,
			Handle:    req.Handle,
			Index:     index,
			Total:     total,
			Cancelled: cancelled,
		})
		if werr != nil {
			sum.Failed++
			c.abortBatch(ctx, req, werr)
			return true
		}

		switch out {
		case worker.Success:
			sum.Success++
		case worker.Cancelled:
			sum.Cancelled = true
			return true
		default:
			sum.Failed++
		}
		return false
	}
}

// abortBatch handles the account- and access-level failures that make
// continuing pointless.
func (c *Controller) abortBatch(ctx context.Context, req domain.BatchRequest, err error) {
	switch {
	case errors.Is(err, domain.ErrNotParticipant):
		c.publish(ctx, req.Handle, "Your account is not a member of the source chat. Join it first, then retry.")
	case errors.Is(err, domain.ErrInvalidCredential):
		if c.cfg.LoginSystem {
			if ierr := c.creds.Invalidate(ctx, req.Owner); ierr != nil {
				slog.Error("credential invalidation failed", slog.String("error", ierr.Error()))
			}
		}
		c.publish(ctx, req.Handle, "Your session is no longer valid and has been logged out. Log in again.")
	default:
		c.publish(ctx, req.Handle, "Batch aborted: "+err.Error())
	}
	slog.Error("batch aborted", slog.String("error", err.Error()))
}

func (c *Controller) connect(ctx context.Context, owner domain.UserID) (platform.Session, error) {
	creds := c.cfg.SharedCreds
	if c.cfg.LoginSystem {
		var err error
		creds, err = c.creds.Get(ctx, owner)
		if err != nil {
			return nil, err
		}
	}

	sess, err := c.connector.Connect(ctx, creds)
	if err != nil {
		if c.cfg.LoginSystem && errors.Is(err, domain.ErrInvalidCredential) {
			if ierr := c.creds.Invalidate(ctx, owner); ierr != nil {
				slog.Error("credential invalidation failed", slog.String("error", ierr.Error()))
			}
		}
		return nil, err
	}
	return sess, nil
}

// resolveSpec turns the request into a concrete id range. An invite link
// joins (or resolves, when already a member) the chat and rewrites itself
// into the full range 1..last.
func (c *Controller) resolveSpec(ctx context.Context, sess platform.Session, req domain.BatchRequest) (Spec, error) {
	if !IsInviteLink(req.Spec) {
		return ParseSpec(req.Spec)
	}

	info, err := sess.JoinByInvite(ctx, req.Spec)
	if err != nil {
		if errors.Is(err, domain.ErrInviteExpired) {
			return Spec{}, fmt.Errorf("invite link: %w", err)
		}
		// Typically already a member; the link still resolves.
		info, err = sess.ResolveInvite(ctx, req.Spec)
		if err != nil {
			return Spec{}, fmt.Errorf("resolve invite link: %w", err)
		}
	}

	last, err := sess.LastMessageID(ctx, info.ID)
	if err != nil {
		return Spec{}, fmt.Errorf("scan %q: %w", info.Title, err)
	}
	if last <= 0 {
		return Spec{}, fmt.Errorf("chat %q looks empty", info.Title)
	}

	c.publish(ctx, req.Handle, fmt.Sprintf("Joined %q: found %d messages, starting batch", info.Title, last))
	return Spec{Chat: info.ID, From: 1, To: last}, nil
}

func (c *Controller) publish(ctx context.Context, handle, text string) {
	if err := c.sink.Publish(ctx, handle, text); err != nil {
		slog.Warn("status publish failed", slog.String("error", err.Error()))
	}
}

func (c *Controller) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func statusText(sum domain.Summary, index, total int, elapsed time.Duration) string {
	eta := "..."
	if sec := elapsed.Seconds(); sec > 0 && index > 0 && index < total {
		rate := float64(index) / sec
		eta = progress.ReadableDuration(time.Duration(float64(total-index) / rate * float64(time.Second)))
	}
	return fmt.Sprintf(
		"Batch progress\nTotal: %d\nProcessed: %d\nSuccess: %d\nFailed: %d\nSkipped: %d\nETA: %s",
		total, index, sum.Success, sum.Failed, sum.Skipped, eta,
	)
}

func summaryText(sum domain.Summary) string {
	head := "Batch completed"
	if sum.Cancelled {
		head = "Batch cancelled"
	}
	return fmt.Sprintf(
		"%s\nTotal requested: %d\nSuccess: %d\nFailed: %d\nSkipped: %d",
		head, sum.TotalRequested, sum.Success, sum.Failed, sum.Skipped,
	)
}

func sessionFailureText(err error) string {
	switch {
	case errors.Is(err, domain.ErrNoSession):
		return "No saved session found. Log in first."
	case errors.Is(err, domain.ErrInvalidCredential):
		return "Your session is no longer valid and has been logged out. Log in again."
	default:
		return "Could not connect your session: " + err.Error()
	}
}
