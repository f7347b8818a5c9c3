// Package registry tracks running transfer tasks and their cancellation
// flags. It is plain process state, constructed once and injected; it is
// rebuilt empty on restart by design.
package registry

import (
	"sync"

	"github.com/you-humble/chatmover/internal/domain"
)

type Registry struct {
	mu        sync.Mutex
	tasks     map[domain.UserID]map[string]domain.TaskRecord
	cancelled map[string]bool
}

func New() *Registry {
	return &Registry{
		tasks:     make(map[domain.UserID]map[string]domain.TaskRecord),
		cancelled: make(map[string]bool),
	}
}

// Add registers a running task.
func (r *Registry) Add(rec domain.TaskRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owned, ok := r.tasks[rec.Owner]
	if !ok {
		owned = make(map[string]domain.TaskRecord)
		r.tasks[rec.Owner] = owned
	}
	owned[rec.ID] = rec
}

// SetLabel updates the human label of a running task.
func (r *Registry) SetLabel(owner domain.UserID, taskID, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rec, ok := r.tasks[owner][taskID]; ok {
		rec.Label = label
		r.tasks[owner][taskID] = rec
	}
}

// Remove drops a terminated task and its cancel flag.
func (r *Registry) Remove(owner domain.UserID, taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tasks[owner], taskID)
	if len(r.tasks[owner]) == 0 {
		delete(r.tasks, owner)
	}
	delete(r.cancelled, taskID)
}

// Tasks lists the owner's running tasks.
func (r *Registry) Tasks(owner domain.UserID) []domain.TaskRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	recs := make([]domain.TaskRecord, 0, len(r.tasks[owner]))
	for _, rec := range r.tasks[owner] {
		recs = append(recs, rec)
	}
	return recs
}

// Cancel sets the task's cancel flag. The flag is monotonic: it is never
// reset while the task lives. Reports whether the task exists and belongs to
// the owner.
func (r *Registry) Cancel(owner domain.UserID, taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[owner][taskID]; !ok {
		return false
	}
	r.cancelled[taskID] = true
	return true
}

// CancelAll flags every running task of the owner. Returns how many were
// flagged.
func (r *Registry) CancelAll(owner domain.UserID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for taskID := range r.tasks[owner] {
		r.cancelled[taskID] = true
		n++
	}
	return n
}

// IsCancelled reads the task's cancel flag. Checked cooperatively at every
// worker checkpoint.
func (r *Registry) IsCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cancelled[taskID]
}
