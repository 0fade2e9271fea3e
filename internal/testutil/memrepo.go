// Package testutil provides in-memory doubles for the todo store, the upload
// link issuer and the event publisher.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
)

type key struct{ todoID, userID string }

// MemoryTodoRepository is an in-memory repository.TodoRepository.
type MemoryTodoRepository struct {
	mu    sync.RWMutex
	todos map[key]model.Todo

	// Error injection for testing
	ListErr             error
	CreateErr           error
	UpdateErr           error
	UpdateAttachmentErr error
	DeleteErr           error

	Calls []string
}

func NewMemoryTodoRepository() *MemoryTodoRepository {
	return &MemoryTodoRepository{todos: make(map[key]model.Todo)}
}

// Put stores t directly, bypassing error injection.
func (m *MemoryTodoRepository) Put(t model.Todo) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.todos[key{t.TodoID, t.UserID}] = t
}

// Get returns the stored todo for the key, if any.
func (m *MemoryTodoRepository) Get(todoID, userID string) (model.Todo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.todos[key{todoID, userID}]
	return t, ok
}

func (m *MemoryTodoRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.todos)
}

func (m *MemoryTodoRepository) record(call string) {
	m.Calls = append(m.Calls, call)
}

func (m *MemoryTodoRepository) ListByUser(_ context.Context, userID string) ([]model.Todo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("ListByUser")
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []model.Todo{}
	for k, t := range m.todos {
		if k.userID == userID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

func (m *MemoryTodoRepository) Create(_ context.Context, t model.Todo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Create")
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.todos[key{t.TodoID, t.UserID}] = t
	return nil
}

func (m *MemoryTodoRepository) Update(_ context.Context, todoID, userID string, u model.UpdateTodoRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Update")
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	k := key{todoID, userID}
	t, ok := m.todos[k]
	if !ok {
		return apperr.New(apperr.KindNotFound, "memory.Update", fmt.Sprintf("todo %s not found", todoID))
	}
	t.Name, t.DueDate, t.Done = u.Name, u.DueDate, u.Done
	m.todos[k] = t
	return nil
}

func (m *MemoryTodoRepository) UpdateAttachmentURL(_ context.Context, todoID, userID, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("UpdateAttachmentURL")
	if m.UpdateAttachmentErr != nil {
		return m.UpdateAttachmentErr
	}
	k := key{todoID, userID}
	t, ok := m.todos[k]
	if !ok {
		return apperr.New(apperr.KindNotFound, "memory.UpdateAttachmentURL", fmt.Sprintf("todo %s not found", todoID))
	}
	t.AttachmentURL = url
	m.todos[k] = t
	return nil
}

func (m *MemoryTodoRepository) Delete(_ context.Context, todoID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record("Delete")
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.todos, key{todoID, userID})
	return nil
}
