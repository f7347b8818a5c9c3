package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/you-humble/chatmover/internal/domain"
	"github.com/you-humble/chatmover/internal/limiter"
	"github.com/you-humble/chatmover/internal/registry"
)

type recordingRunner struct {
	mu      sync.Mutex
	started chan string
	reg     *registry.Registry
	lim     *limiter.Limiter
	block   chan struct{}
}

func (r *recordingRunner) Run(_ context.Context, taskID string, req domain.BatchRequest) domain.Summary {
	r.started <- taskID
	if r.block != nil {
		<-r.block
	}
	r.reg.Remove(req.Owner, taskID)
	r.lim.Release(req.Owner)
	return domain.Summary{}
}

func newService(t *testing.T, maxPerUser int) (*Service, *recordingRunner, *registry.Registry, *limiter.Limiter) {
	t.Helper()

	reg := registry.New()
	lim := limiter.New(maxPerUser, 3, nil, false)
	runner := &recordingRunner{
		started: make(chan string, 16),
		reg:     reg,
		lim:     lim,
		block:   make(chan struct{}),
	}
	svc := New(runner, reg, lim, context.Background(), 3*time.Second)
	return svc, runner, reg, lim
}

func validReq(owner domain.UserID) domain.BatchRequest {
	return domain.BatchRequest{
		Spec:   "https://t.me/ch/1-10",
		Dest:   domain.Destination{Chat: "dest"},
		Owner:  owner,
		Handle: "status-1",
	}
}

func TestStartBatchRunsInBackground(t *testing.T) {
	svc, runner, reg, lim := newService(t, 3)

	taskID, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	require.NotEmpty(t, taskID)

	select {
	case started := <-runner.started:
		assert.Equal(t, taskID, started)
	case <-time.After(time.Second):
		t.Fatal("runner never started")
	}

	assert.Equal(t, 1, lim.Active(7))
	require.Len(t, reg.Tasks(7), 1)
	assert.Equal(t, taskID, reg.Tasks(7)[0].ID)

	close(runner.block)
}

func TestStartBatchEnforcesPerUserCap(t *testing.T) {
	svc, runner, _, _ := newService(t, 2)

	_, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	_, err = svc.StartBatch(validReq(7))
	require.NoError(t, err)

	_, err = svc.StartBatch(validReq(7))
	assert.ErrorIs(t, err, domain.ErrTaskLimit)

	// Another user is unaffected.
	_, err = svc.StartBatch(validReq(8))
	assert.NoError(t, err)

	close(runner.block)
}

func TestStartBatchValidates(t *testing.T) {
	svc, _, _, lim := newService(t, 3)

	_, err := svc.StartBatch(domain.BatchRequest{Spec: "garbage", Dest: domain.Destination{Chat: "d"}, Owner: 7})
	assert.Error(t, err)

	_, err = svc.StartBatch(domain.BatchRequest{Spec: "https://t.me/ch/1", Owner: 7})
	assert.Error(t, err, "missing destination")

	_, err = svc.StartBatch(domain.BatchRequest{Spec: "https://t.me/ch/1", Dest: domain.Destination{Chat: "d"}})
	assert.Error(t, err, "missing owner")

	assert.Equal(t, 0, lim.Active(7), "no slot leaked by rejected requests")
}

func TestStartBatchAcceptsInviteLink(t *testing.T) {
	svc, runner, _, _ := newService(t, 3)

	req := validReq(7)
	req.Spec = "https://t.me/+AbCdEf"
	_, err := svc.StartBatch(req)
	assert.NoError(t, err)

	close(runner.block)
}

func TestStartBatchAppliesDefaultDelay(t *testing.T) {
	reg := registry.New()
	lim := limiter.New(3, 3, nil, false)

	var got domain.BatchRequest
	done := make(chan struct{})
	runner := runnerFunc(func(_ context.Context, taskID string, req domain.BatchRequest) domain.Summary {
		got = req
		reg.Remove(req.Owner, taskID)
		lim.Release(req.Owner)
		close(done)
		return domain.Summary{}
	})
	svc := New(runner, reg, lim, context.Background(), 3*time.Second)

	_, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	<-done

	assert.Equal(t, 3*time.Second, got.Delay)
}

type runnerFunc func(ctx context.Context, taskID string, req domain.BatchRequest) domain.Summary

func (f runnerFunc) Run(ctx context.Context, taskID string, req domain.BatchRequest) domain.Summary {
	return f(ctx, taskID, req)
}

func TestRequestCancel(t *testing.T) {
	svc, runner, reg, _ := newService(t, 3)

	taskID, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	<-runner.started

	require.NoError(t, svc.RequestCancel(7, taskID))
	assert.True(t, reg.IsCancelled(taskID))

	assert.ErrorIs(t, svc.RequestCancel(7, "no-such-task"), domain.ErrTaskNotFound)
	assert.ErrorIs(t, svc.RequestCancel(9, taskID), domain.ErrTaskNotFound, "owner scoped")

	close(runner.block)
}

func TestRequestCancelAll(t *testing.T) {
	svc, runner, reg, lim := newService(t, 3)

	a, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	b, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	<-runner.started
	<-runner.started

	require.NoError(t, svc.RequestCancel(7, "all"))
	assert.True(t, reg.IsCancelled(a))
	assert.True(t, reg.IsCancelled(b))
	assert.True(t, lim.CancelRequested(7))

	assert.ErrorIs(t, svc.RequestCancel(9, "all"), domain.ErrTaskNotFound, "nothing running for that owner")

	close(runner.block)
}

func TestActiveTasks(t *testing.T) {
	svc, runner, _, _ := newService(t, 3)

	assert.Empty(t, svc.ActiveTasks(7))

	taskID, err := svc.StartBatch(validReq(7))
	require.NoError(t, err)
	<-runner.started

	tasks := svc.ActiveTasks(7)
	require.Len(t, tasks, 1)
	assert.Equal(t, taskID, tasks[0].ID)

	close(runner.block)
}
