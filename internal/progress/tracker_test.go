package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleSpeedAndETA(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTrackerWithNow(func() time.Time { return now })

	tr.Sample("m1", Down, 0, 2000)

	now = now.Add(time.Second)
	tr.Sample("m1", Down, 1000, 2000)

	rec, ok := tr.Snapshot("m1", Down)
	require.True(t, ok)
	assert.InDelta(t, 50.0, rec.Percent, 0.01)
	assert.InDelta(t, 1000.0, rec.Speed, 1.0)
	require.True(t, rec.HasETA)
	assert.InDelta(t, float64(time.Second), float64(rec.ETA), float64(50*time.Millisecond))
}

func TestSampleThrottlesSpeedRecomputation(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTrackerWithNow(func() time.Time { return now })

	tr.Sample("m1", Down, 0, 1000)

	// Sub-second samples update bytes but not speed.
	now = now.Add(200 * time.Millisecond)
	tr.Sample("m1", Down, 500, 1000)

	rec, _ := tr.Snapshot("m1", Down)
	assert.Equal(t, int64(500), rec.Current)
	assert.Zero(t, rec.Speed)

	// The final sample always recomputes.
	now = now.Add(100 * time.Millisecond)
	tr.Sample("m1", Down, 1000, 1000)

	rec, _ = tr.Snapshot("m1", Down)
	assert.Greater(t, rec.Speed, 0.0)
	assert.False(t, rec.HasETA)
}

func TestPercentMonotonicAndBounded(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tr := NewTrackerWithNow(func() time.Time { return now })

	last := -1.0
	for _, cur := range []int64{0, 100, 100, 500, 999, 1000} {
		now = now.Add(time.Second)
		tr.Sample("m1", Up, cur, 1000)

		rec, ok := tr.Snapshot("m1", Up)
		require.True(t, ok)
		assert.GreaterOrEqual(t, rec.Percent, last)
		assert.GreaterOrEqual(t, rec.Percent, 0.0)
		assert.LessOrEqual(t, rec.Percent, 100.0)
		last = rec.Percent
	}
}

func TestDirectionsAreIndependent(t *testing.T) {
	tr := NewTracker()

	tr.Sample("m1", Down, 10, 100)
	tr.Sample("m1", Up, 70, 100)

	down, ok := tr.Snapshot("m1", Down)
	require.True(t, ok)
	up, ok := tr.Snapshot("m1", Up)
	require.True(t, ok)

	assert.Equal(t, int64(10), down.Current)
	assert.Equal(t, int64(70), up.Current)
}

func TestDropRemovesBothLegs(t *testing.T) {
	tr := NewTracker()

	tr.Sample("m1", Down, 10, 100)
	tr.Sample("m1", Up, 10, 100)
	tr.Drop("m1")

	_, ok := tr.Snapshot("m1", Down)
	assert.False(t, ok)
	_, ok = tr.Snapshot("m1", Up)
	assert.False(t, ok)
}

type memorySink struct {
	mu    sync.Mutex
	texts []string
}

func (s *memorySink) Publish(_ context.Context, _ string, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *memorySink) all() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func TestRendererPublishesAndTerminates(t *testing.T) {
	tr := NewTracker()
	sink := &memorySink{}
	r := NewRenderer(tr, sink, 5*time.Millisecond)
	r.pollWait = time.Millisecond

	tr.Sample("m1", Down, 500, 1000)

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(context.Background(), "m1", Down, 1, 3)
	}()

	// Let it redraw a few times, then complete the transfer.
	time.Sleep(25 * time.Millisecond)
	tr.Sample("m1", Down, 1000, 1000)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("renderer did not terminate after completion")
	}

	texts := sink.all()
	require.NotEmpty(t, texts)
	assert.Contains(t, texts[len(texts)-1], "Download complete (1/3)")
}

func TestRendererRedrawsOnlyOnChange(t *testing.T) {
	tr := NewTracker()
	sink := &memorySink{}
	r := NewRenderer(tr, sink, 2*time.Millisecond)
	r.pollWait = time.Millisecond

	tr.Sample("m1", Up, 100, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, "m1", Up, 1, 1)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	<-done

	// Progress never moved, so exactly one redraw happened.
	assert.Len(t, sink.all(), 1)
}

func TestRendererWaitsForFirstSample(t *testing.T) {
	tr := NewTracker()
	sink := &memorySink{}
	r := NewRenderer(tr, sink, 2*time.Millisecond)
	r.pollWait = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		r.Run(ctx, "m1", Down, 1, 1)
	}()

	time.Sleep(10 * time.Millisecond)
	assert.Empty(t, sink.all())
	cancel()
	<-done
}

func TestPrettyBytes(t *testing.T) {
	assert.Equal(t, "0 B", PrettyBytes(0))
	assert.Equal(t, "512 B", PrettyBytes(512))
	assert.Equal(t, "1.0 KB", PrettyBytes(1024))
	assert.Equal(t, "1.5 MB", PrettyBytes(1.5*1024*1024))
}

func TestReadableDuration(t *testing.T) {
	assert.Equal(t, "0s", ReadableDuration(0))
	assert.Equal(t, "45s", ReadableDuration(45*time.Second))
	assert.Equal(t, "2m 5s", ReadableDuration(125*time.Second))
	assert.Equal(t, "1h 1m 1s", ReadableDuration(3661*time.Second))
}
