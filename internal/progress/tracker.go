// Package progress keeps per-transfer byte accounting and periodically
// reflects it to a status sink.
package progress

import (
	"sync"
	"time"
)

// Direction distinguishes the two legs of a slow-path transfer.
type Direction string

const (
	Down Direction = "down"
	Up   Direction = "up"
)

// Record is a snapshot of one transfer leg.
type Record struct {
	Current int64
	Total   int64
	Percent float64
	Speed   float64
	ETA     time.Duration
	HasETA  bool

	lastTime    time.Time
	lastCurrent int64
}

type key struct {
	handle string
	dir    Direction
}

// Tracker owns the progress records for all running transfers.
type Tracker struct {
	mu   sync.Mutex
	recs map[key]*Record
	now  func() time.Time
}

func NewTracker() *Tracker {
	return NewTrackerWithNow(time.Now)
}

// NewTrackerWithNow returns a tracker with a custom time source (for tests).
func NewTrackerWithNow(now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{
		recs: make(map[key]*Record),
		now:  now,
	}
}

// Sample records the current byte position of a transfer leg. Speed and ETA
// are recomputed only when at least one second has elapsed since the last
// sample, or on the final sample where current equals total.
func (t *Tracker) Sample(handle string, dir Direction, current, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	k := key{handle: handle, dir: dir}

	rec, ok := t.recs[k]
	if !ok {
		rec = &Record{lastTime: now}
		t.recs[k] = rec
	}

	rec.Current = current
	rec.Total = total
	if total > 0 {
		rec.Percent = float64(current) / float64(total) * 100.0
	}

	dt := now.Sub(rec.lastTime).Seconds()
	if dt >= 1 || current == total {
		if dt <= 0 {
			dt = 0.1
		}
		rec.Speed = float64(current-rec.lastCurrent) / dt
		rec.lastTime = now
		rec.lastCurrent = current

		if rec.Speed > 0 && total > current {
			rec.ETA = time.Duration(float64(total-current) / rec.Speed * float64(time.Second))
			rec.HasETA = true
		} else {
			rec.ETA = 0
			rec.HasETA = false
		}
	}
}

// Snapshot returns the record for one transfer leg, if sampling has started.
func (t *Tracker) Snapshot(handle string, dir Direction) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.recs[key{handle: handle, dir: dir}]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Drop removes both legs of a transfer so finished records do not accumulate.
func (t *Tracker) Drop(handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.recs, key{handle: handle, dir: Down})
	delete(t.recs, key{handle: handle, dir: Up})
}

// Reporter adapts one transfer leg to the platform progress port.
func (t *Tracker) Reporter(handle string, dir Direction) *Reporter {
	return &Reporter{tracker: t, handle: handle, dir: dir}
}

// Reporter feeds samples for a fixed (handle, direction) pair.
type Reporter struct {
	tracker *Tracker
	handle  string
	dir     Direction
}

func (r *Reporter) Sample(current, total int64) {
	r.tracker.Sample(r.handle, r.dir, current, total)
}
