// Package limiter enforces the concurrency policy: a per-user active-task
// cap, a global bounded pool for uploads, a per-user upload lock, and the
// shared-session degraded mode.
package limiter

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/you-humble/chatmover/internal/domain"
)

type Limiter struct {
	maxPerUser int
	admins     map[domain.UserID]struct{}
	shared     bool

	uploads *semaphore.Weighted

	mu          sync.Mutex
	active      map[domain.UserID]int
	totalActive int
	cancelAll   map[domain.UserID]bool
	uploadLocks map[domain.UserID]*sync.Mutex
}

// New builds a limiter. maxPerUser caps concurrent tasks per non-admin user,
// uploadSlots bounds uploads system-wide, and shared marks the degraded
// single-session mode in which only one batch may run at all.
func New(maxPerUser, uploadSlots int, admins []domain.UserID, shared bool) *Limiter {
	if maxPerUser <= 0 {
		maxPerUser = 3
	}
	if uploadSlots <= 0 {
		uploadSlots = 3
	}

	adminSet := make(map[domain.UserID]struct{}, len(admins))
	for _, id := range admins {
		adminSet[id] = struct{}{}
	}

	return &Limiter{
		maxPerUser:  maxPerUser,
		admins:      adminSet,
		shared:      shared,
		uploads:     semaphore.NewWeighted(int64(uploadSlots)),
		active:      make(map[domain.UserID]int),
		cancelAll:   make(map[domain.UserID]bool),
		uploadLocks: make(map[domain.UserID]*sync.Mutex),
	}
}

// Acquire admits a new task for the owner or refuses immediately. Admin
// identities bypass the per-user cap; the shared-session mode refuses any
// second concurrent batch regardless of owner.
func (l *Limiter) Acquire(owner domain.UserID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.shared && l.totalActive > 0 {
		return domain.ErrSharedSessionBusy
	}

	if _, admin := l.admins[owner]; !admin && l.active[owner] >= l.maxPerUser {
		return domain.ErrTaskLimit
	}

	l.active[owner]++
	l.totalActive++
	return nil
}

// Release ends a task. The counter never goes negative; the owner's
// batch-cancel flag is cleared once their count reaches zero.
func (l *Limiter) Release(owner domain.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[owner]--
	l.totalActive--
	if l.active[owner] <= 0 {
		delete(l.active, owner)
		delete(l.cancelAll, owner)
	}
	if l.totalActive < 0 {
		l.totalActive = 0
	}
}

// Active returns the owner's running task count.
func (l *Limiter) Active(owner domain.UserID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[owner]
}

// RequestCancelAll flags every current and future checkpoint of the owner's
// batches until their active count returns to zero.
func (l *Limiter) RequestCancelAll(owner domain.UserID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[owner] > 0 {
		l.cancelAll[owner] = true
	}
}

// CancelRequested reads the owner's batch-cancel flag.
func (l *Limiter) CancelRequested(owner domain.UserID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelAll[owner]
}

// LockUploads serializes the owner's own uploads, then takes a global upload
// slot. Different users upload concurrently up to the pool capacity; a single
// user's parallel items never race each other. The returned release must be
// called exactly once.
func (l *Limiter) LockUploads(ctx context.Context, owner domain.UserID) (func(), error) {
	userLock := l.userUploadLock(owner)
	userLock.Lock()

	if err := l.uploads.Acquire(ctx, 1); err != nil {
		userLock.Unlock()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.uploads.Release(1)
			userLock.Unlock()
		})
	}, nil
}

func (l *Limiter) userUploadLock(owner domain.UserID) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.uploadLocks[owner]
	if !ok {
		lock = &sync.Mutex{}
		l.uploadLocks[owner] = lock
	}
	return lock
}
