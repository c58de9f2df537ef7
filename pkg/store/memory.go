package store

import (
	"context"
	"sync"

	"github.com/harrisonrobin/timebox/pkg/errs"
	"github.com/harrisonrobin/timebox/pkg/model"
)

// MemoryStore keeps tasks in a map. Tasks are copied on the way in and out.
type MemoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*model.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tasks: make(map[string]*model.Task)}
}

func (m *MemoryStore) Load(_ context.Context, id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, errs.NotFound("task", id)
	}
	return t.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, task *model.Task) (*model.Task, error) {
	if task == nil || task.ID == "" {
		return nil, errs.Invalid("task has no id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks[task.ID] = task.Clone()
	return task.Clone(), nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[id]; !ok {
		return errs.NotFound("task", id)
	}
	delete(m.tasks, id)
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.Clone())
	}
	return out, nil
}
