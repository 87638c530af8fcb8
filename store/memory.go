package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"task-tracker/tasks-service/models"
	"task-tracker/tasks-service/query"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryStore keeps tasks in a map. Stored tasks are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[primitive.ObjectID]*models.Task
	now   func() time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = Clock
	}
	return &MemoryStore{
		tasks: make(map[primitive.ObjectID]*models.Task),
		now:   now,
	}
}

func (s *MemoryStore) Insert(_ context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID.IsZero() {
		task.ID = primitive.NewObjectID()
	}
	if _, exists := s.tasks[task.ID]; exists {
		return &DuplicateKeyError{Field: "_id"}
	}
	now := s.now()
	task.CreatedAt = now
	task.UpdatedAt = now
	task.Version = 1
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	task, found := s.tasks[id]
	if !found {
		return nil, fmt.Errorf("task %s: %w", id.Hex(), ErrNotFound)
	}
	return task.Clone(), nil
}

func (s *MemoryStore) Find(_ context.Context, q query.ListQuery) ([]*models.Task, error) {
	s.mu.RLock()
	matched := s.match(q.Filter)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		return q.Sort.Less(matched[i], matched[j])
	})

	if q.Skip < 0 || q.Skip >= int64(len(matched)) {
		return []*models.Task{}, nil
	}
	end := int64(len(matched))
	if q.Limit > 0 && q.Skip+q.Limit < end {
		end = q.Skip + q.Limit
	}
	page := matched[q.Skip:end]
	for i, t := range page {
		page[i] = t.Clone()
	}
	return page, nil
}

func (s *MemoryStore) Count(_ context.Context, filter query.Expr) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.match(filter))), nil
}

func (s *MemoryStore) CountBy(_ context.Context, field string, filter query.Expr) (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64)
	for _, t := range s.match(filter) {
		v, ok := query.Value(t, field)
		if !ok {
			continue
		}
		counts[fmt.Sprint(v)]++
	}
	return counts, nil
}

func (s *MemoryStore) Update(_ context.Context, task *models.Task, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.tasks[task.ID]
	if !found {
		return fmt.Errorf("task %s: %w", task.ID.Hex(), ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("task %s at version %d: %w", task.ID.Hex(), expectedVersion, ErrVersionConflict)
	}

	task.CreatedBy = current.CreatedBy
	task.CreatedAt = current.CreatedAt
	task.UpdatedAt = s.now()
	task.Version = expectedVersion + 1
	s.tasks[task.ID] = task.Clone()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id primitive.ObjectID, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, found := s.tasks[id]
	if !found {
		return fmt.Errorf("task %s: %w", id.Hex(), ErrNotFound)
	}
	if current.Version != expectedVersion {
		return fmt.Errorf("task %s at version %d: %w", id.Hex(), expectedVersion, ErrVersionConflict)
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

// match must be called with s.mu held.
func (s *MemoryStore) match(filter query.Expr) []*models.Task {
	if filter == nil {
		filter = query.All()
	}
	var out []*models.Task
	for _, t := range s.tasks {
		if filter.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
