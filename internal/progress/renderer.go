package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sink receives rendered status text keyed by a caller-supplied display
// handle. The interactive UI layer owns what the handle means.
type Sink interface {
	Publish(ctx context.Context, handle, text string) error
}

// Renderer polls the tracker and reflects one transfer leg to the sink until
// the transfer completes or the context is cancelled.
type Renderer struct {
	tracker  *Tracker
	sink     Sink
	cadence  time.Duration
	pollWait time.Duration
}

func NewRenderer(tracker *Tracker, sink Sink, cadence time.Duration) *Renderer {
	if cadence <= 0 {
		cadence = 10 * time.Second
	}
	return &Renderer{
		tracker:  tracker,
		sink:     sink,
		cadence:  cadence,
		pollWait: time.Second,
	}
}

// Run drives one transfer leg's display. It waits politely while sampling has
// not started, redraws only when the rendered text changed, and emits a
// terminal line once current==total>0. Safe to run as its own goroutine.
func (r *Renderer) Run(ctx context.Context, handle string, dir Direction, index, total int) {
	var lastText string

	for {
		rec, ok := r.tracker.Snapshot(handle, dir)
		if !ok {
			if !sleep(ctx, r.pollWait) {
				return
			}
			continue
		}

		if rec.Current == rec.Total && rec.Total > 0 {
			break
		}

		text := renderLeg(rec, dir, index, total)
		if text != lastText {
			if err := r.sink.Publish(ctx, handle, text); err != nil {
				slog.Warn("progress publish",
					slog.String("handle", handle),
					slog.String("error", err.Error()),
				)
			}
			lastText = text
		}

		if !sleep(ctx, r.cadence) {
			return
		}
	}

	done := fmt.Sprintf("%s complete (%d/%d)", legTitle(dir), index, total)
	if err := r.sink.Publish(ctx, handle, done); err != nil {
		slog.Warn("progress publish",
			slog.String("handle", handle),
			slog.String("error", err.Error()),
		)
	}
}

func legTitle(dir Direction) string {
	if dir == Up {
		return "Upload"
	}
	return "Download"
}

func renderLeg(rec Record, dir Direction, index, total int) string {
	eta := "-"
	if rec.HasETA {
		eta = ReadableDuration(rec.ETA)
	}

	remaining := total - index
	if remaining < 0 {
		remaining = 0
	}

	return fmt.Sprintf(
		"%sing file (%d/%d), %d remaining\n%.1f%% | %s\nSpeed: %s/s\nSize: %s / %s\nETA: %s",
		legTitle(dir), index, total, remaining,
		rec.Percent, Bar(rec.Percent, 12),
		PrettyBytes(rec.Speed),
		PrettyBytes(float64(rec.Current)), PrettyBytes(float64(rec.Total)),
		eta,
	)
}

// sleep waits d or until ctx is done; reports false when cancelled.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
