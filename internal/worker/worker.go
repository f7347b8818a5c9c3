// Package worker moves a single item to its destination: classify, try the
// server-side fast path, fall back to download/split/upload, and reduce
// every failure to a terminal outcome. Only account- and access-level
// conditions escape to the caller.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/you-humble/chatmover/internal/domain"
	workstore "github.com/you-humble/chatmover/internal/infra/store/work"
	"github.com/you-humble/chatmover/internal/limiter"
	"github.com/you-humble/chatmover/internal/platform"
	"github.com/you-humble/chatmover/internal/progress"
	"github.com/you-humble/chatmover/internal/splitter"
)

// Outcome is the terminal result of one item transfer. Cancelled is distinct
// from Failed and never counts toward the batch's failed total.
type Outcome int

const (
	Failed Outcome = iota
	Success
	Cancelled
)

// Archiver keeps an off-host copy of downloaded payloads. Best-effort.
type Archiver interface {
	Archive(localPath, objectName string)
}

type Config struct {
	SizeThreshold        int64
	ChunkSize            int64
	PremiumSizeThreshold int64
	PremiumChunkSize     int64

	DownloadRetries int
	RetryPause      time.Duration
	CaptionLimit    int
}

// Job is one item transfer order.
type Job struct {
	Acc    platform.Session
	Item   domain.Item
	Dest   domain.Destination
	Delay  time.Duration
	Owner  domain.UserID
	Handle string
	Index  int
	Total  int

	// Cancelled reads the task's cancel flag and the owner's batch-cancel
	// flag. Checked at every checkpoint.
	Cancelled func() bool
}

type Worker struct {
	bot      platform.Client
	limiter  *limiter.Limiter
	tracker  *progress.Tracker
	renderer *progress.Renderer
	work     *workstore.Store
	archiver Archiver
	cfg      Config
}

func New(
	bot platform.Client,
	lim *limiter.Limiter,
	tracker *progress.Tracker,
	renderer *progress.Renderer,
	work *workstore.Store,
	archiver Archiver,
	cfg Config,
) *Worker {
	return &Worker{
		bot:      bot,
		limiter:  lim,
		tracker:  tracker,
		renderer: renderer,
		work:     work,
		archiver: archiver,
		cfg:      cfg,
	}
}

// Transfer runs the per-item state machine. The returned error is non-nil
// only for conditions that must abort the whole batch
// (domain.ErrNotParticipant, domain.ErrInvalidCredential).
func (w *Worker) Transfer(ctx context.Context, job Job) (Outcome, error) {
	if job.Cancelled() {
		return Cancelled, nil
	}

	item := job.Item

	if item.Kind == domain.KindNone {
		return Failed, nil
	}

	if item.Kind == domain.KindText {
		if err := w.bot.SendText(ctx, job.Dest, item.Text, item.Entities); err != nil {
			if fatal(err) {
				return Failed, err
			}
			slog.Warn("send text failed",
				slog.Int64("msg_id", item.ID),
				slog.String("error", err.Error()),
			)
			return Failed, nil
		}
		return Success, nil
	}

	// Fast path: server-side copy when the source chat does not protect
	// content. Any failure falls through to the slow path; the stale copy is
	// never retried.
	if !item.Protected {
		if job.Cancelled() {
			return Cancelled, nil
		}
		err := job.Acc.CopyItem(ctx, item.Chat, item.ID, job.Dest)
		if err == nil {
			w.pause(ctx, job.Delay)
			return Success, nil
		}
		if fatal(err) {
			return Failed, err
		}
		slog.Debug("fast path failed, falling back",
			slog.Int64("msg_id", item.ID),
			slog.String("error", err.Error()),
		)
	}

	return w.slowPath(ctx, job)
}

func (w *Worker) slowPath(ctx context.Context, job Job) (outcome Outcome, fatalErr error) {
	item := job.Item

	dir, err := w.work.TaskDir(job.Owner, job.Handle)
	if err != nil {
		slog.Error("create staging dir", slog.String("error", err.Error()))
		return Failed, nil
	}
	defer func() {
		if err := w.work.RemoveTaskDir(job.Owner, job.Handle); err != nil {
			slog.Warn("staging cleanup", slog.String("error", err.Error()))
		}
		w.tracker.Drop(job.Handle)
	}()

	// Renderers for this item stop with the item.
	rctx, rcancel := context.WithCancel(ctx)
	defer rcancel()

	threshold, chunk := w.limits(ctx, job.Acc)
	stagePath := filepath.Join(dir, workstore.SanitizeFilename(stageFilename(item)))

	if item.Size > threshold {
		return w.transferSplit(ctx, rctx, job, stagePath, chunk)
	}
	return w.transferSingle(ctx, rctx, job, dir, stagePath)
}

// limits resolves the size threshold and split chunk for the session tier.
func (w *Worker) limits(ctx context.Context, acc platform.Session) (threshold, chunk int64) {
	threshold, chunk = w.cfg.SizeThreshold, w.cfg.ChunkSize

	premium, err := acc.Premium(ctx)
	if err != nil {
		slog.Warn("premium check failed, using defaults", slog.String("error", err.Error()))
		return threshold, chunk
	}
	if premium {
		threshold, chunk = w.cfg.PremiumSizeThreshold, w.cfg.PremiumChunkSize
	}
	return threshold, chunk
}

// transferSplit handles an item too large for a single upload: download in
// full, split, upload the parts in order.
func (w *Worker) transferSplit(ctx, rctx context.Context, job Job, stagePath string, chunk int64) (Outcome, error) {
	go w.renderer.Run(rctx, job.Handle, progress.Down, job.Index, job.Total)

	path, outcome := w.download(ctx, job, stagePath)
	if outcome != Success {
		return outcome, nil
	}
	w.archive(job, path)

	parts, err := splitter.Split(path, chunk)
	if err != nil {
		slog.Error("split failed",
			slog.Int64("msg_id", job.Item.ID),
			slog.String("error", err.Error()),
		)
		return Failed, nil
	}

	caption := truncate(job.Item.Caption, w.cfg.CaptionLimit)

	release, err := w.limiter.LockUploads(ctx, job.Owner)
	if err != nil {
		return Failed, nil
	}
	defer release()

	for _, part := range parts {
		if job.Cancelled() {
			return Cancelled, nil
		}
		w.uploadPart(ctx, job, part, caption)
		if part.Path != path {
			_ = os.Remove(part.Path)
		}
	}

	_ = os.Remove(path)
	return Success, nil
}

// uploadPart pushes one split part, retrying indefinitely on throttle and
// abandoning the part (not the item) on any other error. The part file is
// removed by the caller regardless of outcome.
func (w *Worker) uploadPart(ctx context.Context, job Job, part splitter.Part, caption string) {
	uploader := w.uploaderFor(part.Size, job.Acc)

	up := platform.Upload{
		Kind:    domain.KindDocument,
		Path:    part.Path,
		Caption: caption,
	}

	for {
		if job.Cancelled() {
			return
		}
		err := uploader.UploadFile(ctx, job.Dest, up, nil)
		if err == nil {
			return
		}
		if wait, ok := domain.AsThrottle(err); ok {
			if !w.pause(ctx, wait) {
				return
			}
			continue
		}
		slog.Warn("part upload failed, abandoning part",
			slog.Int64("msg_id", job.Item.ID),
			slog.Int("part", part.Seq),
			slog.String("error", err.Error()),
		)
		return
	}
}

// transferSingle handles an item within the size threshold: one download,
// best-effort thumbnail, one upload as the classified kind.
func (w *Worker) transferSingle(ctx, rctx context.Context, job Job, dir, stagePath string) (Outcome, error) {
	go w.renderer.Run(rctx, job.Handle, progress.Down, job.Index, job.Total)

	path, outcome := w.download(ctx, job, stagePath)
	if outcome != Success {
		return outcome, nil
	}
	w.archive(job, path)

	thumbPath := ""
	if job.Item.Kind.HasThumbnail() && job.Item.ThumbRef != "" {
		p, err := job.Acc.DownloadThumbnail(ctx, job.Item, filepath.Join(dir, "thumb.jpg"))
		if err != nil {
			slog.Debug("thumbnail fetch failed, proceeding without it",
				slog.Int64("msg_id", job.Item.ID),
				slog.String("error", err.Error()),
			)
		} else {
			thumbPath = p
		}
	}

	if job.Cancelled() {
		return Cancelled, nil
	}

	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}

	up := platform.Upload{
		Kind:      job.Item.Kind,
		Path:      path,
		Caption:   truncate(job.Item.Caption, w.cfg.CaptionLimit),
		ThumbPath: thumbPath,
		Duration:  job.Item.Duration,
		Width:     job.Item.Width,
		Height:    job.Item.Height,
	}

	uploader := w.uploaderFor(size, job.Acc)

	go w.renderer.Run(rctx, job.Handle, progress.Up, job.Index, job.Total)

	release, err := w.limiter.LockUploads(ctx, job.Owner)
	if err != nil {
		return Failed, nil
	}
	defer release()

	for {
		if job.Cancelled() {
			return Cancelled, nil
		}
		err := uploader.UploadFile(ctx, job.Dest, up, w.tracker.Reporter(job.Handle, progress.Up))
		if err == nil {
			return Success, nil
		}
		if wait, ok := domain.AsThrottle(err); ok {
			if !w.pause(ctx, wait) {
				return Cancelled, nil
			}
			continue
		}
		if fatal(err) {
			return Failed, err
		}
		slog.Warn("upload failed",
			slog.Int64("msg_id", job.Item.ID),
			slog.String("kind", job.Item.Kind.String()),
			slog.String("error", err.Error()),
		)
		return Failed, nil
	}
}

// download fetches the item payload with a bounded retry budget, re-reading
// the item before each attempt so a stale file reference heals.
func (w *Worker) download(ctx context.Context, job Job, stagePath string) (string, Outcome) {
	for attempt := 0; attempt < w.cfg.DownloadRetries; attempt++ {
		if job.Cancelled() {
			return "", Cancelled
		}
		if ctx.Err() != nil {
			return "", Cancelled
		}

		fresh, err := job.Acc.FetchItem(ctx, job.Item.Chat, job.Item.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return "", Failed
			}
			slog.Warn("refetch before download failed",
				slog.Int64("msg_id", job.Item.ID),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			w.pause(ctx, w.cfg.RetryPause)
			continue
		}

		path, err := job.Acc.Download(ctx, fresh, stagePath, w.tracker.Reporter(job.Handle, progress.Down))
		if err == nil {
			return path, Success
		}

		slog.Warn("download failed",
			slog.Int64("msg_id", job.Item.ID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()),
		)
		w.pause(ctx, w.cfg.RetryPause)
	}
	return "", Failed
}

// uploaderFor picks the identity allowed to push a payload of this size:
// anything beyond the default threshold needs the elevated user session.
func (w *Worker) uploaderFor(size int64, acc platform.Session) platform.Client {
	if size > w.cfg.SizeThreshold {
		return acc
	}
	return w.bot
}

func (w *Worker) archive(job Job, path string) {
	if w.archiver == nil {
		return
	}
	object := fmt.Sprintf("%d/%s/%s", job.Owner, job.Handle, filepath.Base(path))
	w.archiver.Archive(path, object)
}

// pause sleeps unless the context ends first; reports false when cancelled.
func (w *Worker) pause(ctx context.Context, d time.Duration) bool {
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

func fatal(err error) bool {
	return errors.Is(err, domain.ErrNotParticipant) || errors.Is(err, domain.ErrInvalidCredential)
}

func stageFilename(item domain.Item) string {
	if item.FileName != "" {
		return item.FileName
	}
	switch item.Kind {
	case domain.KindPhoto:
		return fmt.Sprintf("%d.jpg", item.ID)
	case domain.KindVoice:
		return fmt.Sprintf("%d.ogg", item.ID)
	default:
		return fmt.Sprintf("%d.dat", item.ID)
	}
}

// truncate caps s at limit characters, never splitting a multi-byte rune.
func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	seen := 0
	for i := range s {
		if seen == limit {
			return s[:i]
		}
		seen++
	}
	return s
}
