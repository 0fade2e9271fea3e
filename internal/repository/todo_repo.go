package repository

import (
	"context"
	"time"

	"todo-backend/internal/model"
	"todo-backend/pkg/metrics"
)

// TodoRepository is the record store for todos. Every method is scoped to a
// single (todoID, userID) key or to a single user.
type TodoRepository interface {
	// ListByUser returns the user's todos ordered by creation time.
	ListByUser(ctx context.Context, userID string) ([]model.Todo, error)
	// Create stores t, silently replacing any todo with the same key.
	Create(ctx context.Context, t model.Todo) error
	// Update overwrites name, dueDate and done. Missing todos yield apperr.KindNotFound.
	Update(ctx context.Context, todoID, userID string, u model.UpdateTodoRequest) error
	// UpdateAttachmentURL overwrites attachmentUrl. Missing todos yield apperr.KindNotFound.
	UpdateAttachmentURL(ctx context.Context, todoID, userID, url string) error
	// Delete removes the todo. Deleting a missing todo is not an error.
	Delete(ctx context.Context, todoID, userID string) error
}

// track starts timing a store operation; call the returned func with the
// address of the operation's named error result.
func track(backend, operation string) func(*error) {
	start := time.Now()
	return func(err *error) {
		metrics.RecordStoreOp(backend, operation, *err, time.Since(start))
	}
}
