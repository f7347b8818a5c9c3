package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/chatmover/internal/domain"
)

func TestAcquireRespectsPerUserCap(t *testing.T) {
	l := New(2, 3, nil, false)

	require.NoError(t, l.Acquire(1))
	require.NoError(t, l.Acquire(1))
	assert.ErrorIs(t, l.Acquire(1), domain.ErrTaskLimit)

	// Another user is unaffected.
	require.NoError(t, l.Acquire(2))
}

func TestAdminBypassesCap(t *testing.T) {
	l := New(1, 3, []domain.UserID{42}, false)

	require.NoError(t, l.Acquire(42))
	require.NoError(t, l.Acquire(42))
	require.NoError(t, l.Acquire(42))
}

func TestReleaseNeverGoesNegative(t *testing.T) {
	l := New(3, 3, nil, false)

	require.NoError(t, l.Acquire(1))
	l.Release(1)
	l.Release(1)
	l.Release(1)

	assert.Equal(t, 0, l.Active(1))
	require.NoError(t, l.Acquire(1))
	assert.Equal(t, 1, l.Active(1))
}

func TestSharedSessionRefusesSecondBatch(t *testing.T) {
	l := New(3, 3, nil, true)

	require.NoError(t, l.Acquire(1))
	assert.ErrorIs(t, l.Acquire(1), domain.ErrSharedSessionBusy)
	assert.ErrorIs(t, l.Acquire(2), domain.ErrSharedSessionBusy)

	l.Release(1)
	require.NoError(t, l.Acquire(2))
}

func TestCancelAllClearsWhenIdle(t *testing.T) {
	l := New(3, 3, nil, false)

	require.NoError(t, l.Acquire(1))
	require.NoError(t, l.Acquire(1))

	l.RequestCancelAll(1)
	assert.True(t, l.CancelRequested(1))

	l.Release(1)
	assert.True(t, l.CancelRequested(1))

	l.Release(1)
	assert.False(t, l.CancelRequested(1))
}

func TestCancelAllWithoutActiveTasksIsNoop(t *testing.T) {
	l := New(3, 3, nil, false)

	l.RequestCancelAll(1)
	assert.False(t, l.CancelRequested(1))
}

func TestLockUploadsSerializesOneUser(t *testing.T) {
	l := New(3, 3, nil, false)
	ctx := context.Background()

	release, err := l.LockUploads(ctx, 1)
	require.NoError(t, err)

	second := make(chan struct{})
	go func() {
		defer close(second)
		rel2, err := l.LockUploads(ctx, 1)
		if err == nil {
			rel2()
		}
	}()

	select {
	case <-second:
		t.Fatal("second upload of the same user acquired the lock concurrently")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-second:
	case <-time.After(time.Second):
		t.Fatal("second upload never acquired the lock after release")
	}
}

func TestLockUploadsGlobalPool(t *testing.T) {
	l := New(3, 1, nil, false)
	ctx := context.Background()

	release, err := l.LockUploads(ctx, 1)
	require.NoError(t, err)

	// A different user blocks on the exhausted global pool.
	blocked := make(chan struct{})
	go func() {
		defer close(blocked)
		rel, err := l.LockUploads(ctx, 2)
		if err == nil {
			rel()
		}
	}()

	select {
	case <-blocked:
		t.Fatal("global upload pool admitted beyond its capacity")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case <-blocked:
	case <-time.After(time.Second):
		t.Fatal("waiter never got the released slot")
	}
}

func TestLockUploadsHonorsContext(t *testing.T) {
	l := New(3, 1, nil, false)

	release, err := l.LockUploads(context.Background(), 1)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.LockUploads(ctx, 2)
	assert.Error(t, err)
}

func TestLockUploadsReleaseIsIdempotent(t *testing.T) {
	l := New(3, 1, nil, false)

	release, err := l.LockUploads(context.Background(), 1)
	require.NoError(t, err)

	release()
	release()

	rel2, err := l.LockUploads(context.Background(), 2)
	require.NoError(t, err)
	rel2()
}
