package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemQueue is a thread-safe, in-memory Queue for tests and development.
type MemQueue struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewMemQueue returns a ready-to-use MemQueue.
func NewMemQueue() *MemQueue {
	return &MemQueue{jobs: make(map[uuid.UUID]*Job)}
}

func (q *MemQueue) Enqueue(_ context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if job.Key != "" {
		for _, j := range q.jobs {
			if j.Key == job.Key && (j.Status == StatusQueued || j.Status == StatusRunning) {
				return ErrDuplicateKey
			}
		}
	}
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	cp := *job
	cp.Status = StatusQueued
	q.jobs[cp.ID] = &cp
	return nil
}

func (q *MemQueue) Dequeue(_ context.Context) (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var runnable []*Job
	for _, j := range q.jobs {
		if j.Status == StatusQueued && !j.RunAt.After(now) {
			runnable = append(runnable, j)
		}
	}
	if len(runnable) == 0 {
		return nil, ErrNoJobs
	}
	sort.Slice(runnable, func(i, k int) bool { return runnable[i].RunAt.Before(runnable[k].RunAt) })

	j := runnable[0]
	j.Status = StatusRunning
	j.Attempts++
	j.UpdatedAt = now
	cp := *j
	return &cp, nil
}

func (q *MemQueue) Complete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.Status = StatusCompleted
	j.UpdatedAt = time.Now()
	return nil
}

func (q *MemQueue) Fail(_ context.Context, id uuid.UUID, msg string, retryAt *time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	j.LastError = &msg
	j.UpdatedAt = time.Now()
	if retryAt != nil {
		j.Status = StatusQueued
		j.RunAt = *retryAt
		return nil
	}
	j.Status = StatusFailed
	return nil
}

func (q *MemQueue) ActiveForKey(_ context.Context, key string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.Key == key && (j.Status == StatusQueued || j.Status == StatusRunning) {
			return true, nil
		}
	}
	return false, nil
}

// Get returns a copy of a job by id. Test helper.
func (q *MemQueue) Get(id uuid.UUID) (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return nil, false
	}
	cp := *j
	return &cp, true
}
