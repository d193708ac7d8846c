// Package jobs provides the deferred execution path: a priority queue with a
// blocking dequeue and a worker pool that drains it.
//
// Jobs are totally ordered by (priority ascending, enqueue time ascending):
// a lower priority value runs sooner, and ties within a tier are FIFO by
// arrival. Dequeue blocks on a condition variable, so idle workers consume
// no CPU.
package jobs

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tillerhq/tiller/pkg/models"
)

// jobHeap orders jobs by (Priority, EnqueuedAt, insertion order). The
// insertion counter breaks exact-timestamp ties deterministically.
type jobHeap []*entry

type entry struct {
	job *models.Job
	n   uint64
}

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority < h[j].job.Priority
	}
	if !h[i].job.EnqueuedAt.Equal(h[j].job.EnqueuedAt) {
		return h[i].job.EnqueuedAt.Before(h[j].job.EnqueuedAt)
	}
	return h[i].n < h[j].n
}
func (h jobHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(*entry)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Queue is the in-memory priority job queue.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	heap   jobHeap
	seq    uint64
	closed bool

	// statuses keeps terminal and in-flight states for job lookups.
	// Terminal entries are pruned after a retention window, see PruneStatuses.
	statuses map[string]*statusRecord
}

// statusRecord is a job's last status and, once terminal, when it got there.
type statusRecord struct {
	status models.JobStatus
	doneAt time.Time
}

func terminalStatus(s models.JobStatus) bool {
	switch s {
	case models.JobCompleted, models.JobFailed, models.JobCancelled:
		return true
	}
	return false
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{statuses: make(map[string]*statusRecord)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds a request at the given priority and returns the queued job.
func (q *Queue) Enqueue(req models.ChatRequest, priority models.Priority) *models.Job {
	job := &models.Job{
		ID:         uuid.NewString(),
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
		Request:    req,
		Status:     models.JobQueued,
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		job.Status = models.JobCancelled
		return job
	}
	q.seq++
	heap.Push(&q.heap, &entry{job: job, n: q.seq})
	q.statuses[job.ID] = &statusRecord{status: models.JobQueued}
	q.mu.Unlock()
	q.cond.Signal()

	log.Debug().
		Str("job", job.ID).
		Str("priority", models.PriorityName(priority)).
		Msg("Job enqueued")
	return job
}

// Dequeue blocks until a job is available or the context is done. It returns
// nil once the queue is closed and drained, or when ctx fires.
func (q *Queue) Dequeue(ctx context.Context) *models.Job {
	// cond.Wait cannot watch ctx directly; a watcher goroutine wakes all
	// waiters when the context fires.
	stop := context.AfterFunc(ctx, func() { q.cond.Broadcast() })
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if ctx.Err() != nil {
			return nil
		}
		if len(q.heap) > 0 {
			e := heap.Pop(&q.heap).(*entry)
			e.job.Status = models.JobRunning
			q.statuses[e.job.ID] = &statusRecord{status: models.JobRunning}
			return e.job
		}
		if q.closed {
			return nil
		}
		q.cond.Wait()
	}
}

// Len returns the number of queued jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// Status returns the last known status of a job.
func (q *Queue) Status(jobID string) (models.JobStatus, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	rec, ok := q.statuses[jobID]
	if !ok {
		return "", false
	}
	return rec.status, true
}

// SetStatus records a job's state transition.
func (q *Queue) SetStatus(jobID string, status models.JobStatus) {
	q.mu.Lock()
	q.statuses[jobID] = newStatusRecord(status)
	q.mu.Unlock()
}

func newStatusRecord(status models.JobStatus) *statusRecord {
	rec := &statusRecord{status: status}
	if terminalStatus(status) {
		rec.doneAt = time.Now().UTC()
	}
	return rec
}

// Remove drops a queued job before it runs. It reports whether the job was
// still in the queue.
func (q *Queue) Remove(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.heap {
		if e.job.ID == jobID {
			heap.Remove(&q.heap, i)
			q.statuses[jobID] = newStatusRecord(models.JobCancelled)
			return true
		}
	}
	return false
}

// PruneStatuses drops terminal job records that finished more than window
// ago, so the status map does not grow without bound on a long-lived server.
// Queued and running entries are never touched. Returns the number removed.
func (q *Queue) PruneStatuses(window time.Duration) int {
	cutoff := time.Now().UTC().Add(-window)
	q.mu.Lock()
	defer q.mu.Unlock()
	removed := 0
	for id, rec := range q.statuses {
		if terminalStatus(rec.status) && !rec.doneAt.After(cutoff) {
			delete(q.statuses, id)
			removed++
		}
	}
	return removed
}

// StartJanitor prunes terminal statuses on the given interval until ctx is
// cancelled.
func (q *Queue) StartJanitor(ctx context.Context, window, interval time.Duration) {
	if window <= 0 || interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := q.PruneStatuses(window); removed > 0 {
					log.Debug().Int("removed", removed).Msg("Job status retention sweep")
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Close wakes all blocked consumers once the queue drains. Enqueue after
// Close is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
