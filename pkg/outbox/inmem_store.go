package outbox

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// InMemoryStore keeps tasks in a map guarded by a mutex
type InMemoryStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]Task
	now   func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{tasks: make(map[uuid.UUID]Task), now: time.Now}
}

func (s *InMemoryStore) Enqueue(ctx context.Context, task Task) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task = prepare(task, s.now())
	s.tasks[task.ID] = task
	return task, nil
}

func (s *InMemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	due := lo.Filter(lo.Values(s.tasks), func(t Task, _ int) bool {
		return !t.NextRunAt.After(now)
	})
	sort.Slice(due, func(i, j int) bool {
		return due[i].NextRunAt.Before(due[j].NextRunAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *InMemoryStore) Reschedule(ctx context.Context, id uuid.UUID, attempts int, lastError string, nextRunAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	task.Attempts = attempts
	task.LastError = lastError
	task.NextRunAt = nextRunAt
	s.tasks[id] = task
	return nil
}

func (s *InMemoryStore) Complete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
	return nil
}

// Len returns the number of pending tasks
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
