package archive

import (
	"context"
	"log/slog"
	"os"
	"sync"
)

// Saver is the replication target.
type Saver interface {
	Save(ctx context.Context, localPath, objectName string) error
}

// Job is one pending replication. RemoveLocal marks spooled files owned by
// the replicator, removed once the job reaches a terminal outcome.
type Job struct {
	LocalPath   string
	ObjectName  string
	Retries     int
	RemoveLocal bool
}

// Replicator drains a bounded queue of archive jobs through a small worker
// pool with bounded retries.
type Replicator struct {
	target Saver

	queue      chan Job
	workerNum  int
	maxRetries int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewReplicator(target Saver, queueSize, workerNum, maxRetries int) *Replicator {
	if queueSize <= 0 {
		queueSize = 100
	}
	if workerNum <= 0 {
		workerNum = 1
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Replicator{
		target:     target,
		queue:      make(chan Job, queueSize),
		workerNum:  workerNum,
		maxRetries: maxRetries,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (r *Replicator) Start(ctx context.Context) {
	for i := 0; i < r.workerNum; i++ {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.run(ctx)
		}()
	}
}

// Stop refuses new jobs and waits for the in-flight ones.
func (r *Replicator) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		return ctx.Err()
	}
}

// Enqueue offers a job without blocking; reports false when the queue is
// full or the replicator is stopped.
func (r *Replicator) Enqueue(job Job) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}

	select {
	case r.queue <- job:
		return true
	default:
		return false
	}
}

func (r *Replicator) finish(job Job) {
	if !job.RemoveLocal {
		return
	}
	if err := os.Remove(job.LocalPath); err != nil && !os.IsNotExist(err) {
		slog.Warn("archive spool cleanup",
			slog.String("path", job.LocalPath),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Replicator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case job, ok := <-r.queue:
			if !ok {
				return
			}
			if err := r.target.Save(ctx, job.LocalPath, job.ObjectName); err != nil {
				if job.Retries+1 >= r.maxRetries {
					slog.Error("archive replication gave up",
						slog.String("object", job.ObjectName),
						slog.Int("retries", job.Retries+1),
						slog.String("error", err.Error()),
					)
					r.finish(job)
					continue
				}
				job.Retries++
				if !r.Enqueue(job) {
					slog.Warn("archive replication requeue refused",
						slog.String("object", job.ObjectName),
					)
					r.finish(job)
				}
				continue
			}
			slog.Debug("archived payload", slog.String("object", job.ObjectName))
			r.finish(job)
		}
	}
}
