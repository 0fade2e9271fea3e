package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
)

const backendPostgres = "postgres"

// PgxAPI is the subset of *pgxpool.Pool the repository uses.
type PgxAPI interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type todoRow struct {
	TodoID        string `db:"todo_id"`
	UserID        string `db:"user_id"`
	CreatedAt     string `db:"created_at"`
	Name          string `db:"name"`
	DueDate       string `db:"due_date"`
	Done          bool   `db:"done"`
	AttachmentURL string `db:"attachment_url"`
}

// PostgresTodoRepository stores todos in the todos table (see
// migrations/0001_create_todos.sql), keyed by (user_id, todo_id).
type PostgresTodoRepository struct {
	db     PgxAPI
	logger *zap.Logger
}

func NewPostgresTodoRepository(db PgxAPI, logger *zap.Logger) *PostgresTodoRepository {
	return &PostgresTodoRepository{db: db, logger: logger}
}

func (r *PostgresTodoRepository) ListByUser(ctx context.Context, userID string) (todos []model.Todo, err error) {
	defer track(backendPostgres, "list")(&err)
	r.logger.Debug("Listing todos for user", zap.String("user_id", userID))

	query := `
        SELECT todo_id, user_id, created_at, name, due_date, done, attachment_url
        FROM todos
        WHERE user_id = $1
        ORDER BY created_at ASC
    `
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		r.logger.Error("Failed to query todos", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "repository.ListByUser", "could not retrieve todos", err)
	}

	collected, err := pgx.CollectRows(rows, pgx.RowToStructByName[todoRow])
	if err != nil {
		r.logger.Error("Failed to scan todo rows", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Wrap(apperr.KindStoreUnavailable, "repository.ListByUser", "could not retrieve todos", err)
	}

	todos = make([]model.Todo, 0, len(collected))
	for _, row := range collected {
		todos = append(todos, model.Todo(row))
	}

	r.logger.Info("Todos listed successfully",
		zap.String("user_id", userID),
		zap.Int("count", len(todos)),
	)
	return todos, nil
}

func (r *PostgresTodoRepository) Create(ctx context.Context, t model.Todo) (err error) {
	defer track(backendPostgres, "create")(&err)
	r.logger.Debug("Inserting todo", zap.String("user_id", t.UserID), zap.String("todo_id", t.TodoID))

	query := `
        INSERT INTO todos (todo_id, user_id, created_at, name, due_date, done, attachment_url)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        ON CONFLICT (user_id, todo_id) DO UPDATE SET
            created_at = EXCLUDED.created_at,
            name = EXCLUDED.name,
            due_date = EXCLUDED.due_date,
            done = EXCLUDED.done,
            attachment_url = EXCLUDED.attachment_url
    `
	_, err = r.db.Exec(ctx, query,
		t.TodoID,
		t.UserID,
		t.CreatedAt,
		t.Name,
		t.DueDate,
		t.Done,
		t.AttachmentURL,
	)
	if err != nil {
		r.logger.Error("Failed to insert todo",
			zap.String("user_id", t.UserID),
			zap.String("todo_id", t.TodoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, "repository.Create", "could not create todo", err)
	}

	r.logger.Info("Todo inserted successfully", zap.String("user_id", t.UserID), zap.String("todo_id", t.TodoID))
	return nil
}

func (r *PostgresTodoRepository) Update(ctx context.Context, todoID, userID string, u model.UpdateTodoRequest) (err error) {
	defer track(backendPostgres, "update")(&err)
	r.logger.Debug("Updating todo", zap.String("user_id", userID), zap.String("todo_id", todoID))

	query := `
        UPDATE todos
        SET name = $3, due_date = $4, done = $5
        WHERE todo_id = $1 AND user_id = $2
    `
	return r.execExisting(ctx, "repository.Update", todoID, userID, query, todoID, userID, u.Name, u.DueDate, u.Done)
}

func (r *PostgresTodoRepository) UpdateAttachmentURL(ctx context.Context, todoID, userID, url string) (err error) {
	defer track(backendPostgres, "update_attachment")(&err)
	r.logger.Debug("Updating attachment URL", zap.String("user_id", userID), zap.String("todo_id", todoID))

	query := `
        UPDATE todos
        SET attachment_url = $3
        WHERE todo_id = $1 AND user_id = $2
    `
	return r.execExisting(ctx, "repository.UpdateAttachmentURL", todoID, userID, query, todoID, userID, url)
}

func (r *PostgresTodoRepository) execExisting(ctx context.Context, op, todoID, userID, query string, args ...any) error {
	result, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, op, "could not update todo", err)
	}
	if result.RowsAffected() == 0 {
		r.logger.Warn("Todo not found", zap.String("user_id", userID), zap.String("todo_id", todoID))
		return apperr.New(apperr.KindNotFound, op, "todo not found")
	}
	r.logger.Info("Todo updated",
		zap.String("user_id", userID),
		zap.String("todo_id", todoID),
		zap.Int64("rows_affected", result.RowsAffected()),
	)
	return nil
}

func (r *PostgresTodoRepository) Delete(ctx context.Context, todoID, userID string) (err error) {
	defer track(backendPostgres, "delete")(&err)
	r.logger.Debug("Deleting todo", zap.String("user_id", userID), zap.String("todo_id", todoID))

	result, err := r.db.Exec(ctx, `DELETE FROM todos WHERE todo_id = $1 AND user_id = $2`, todoID, userID)
	if err != nil {
		r.logger.Error("Failed to delete todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, "repository.Delete", "could not delete todo", err)
	}

	r.logger.Info("Todo deleted",
		zap.String("user_id", userID),
		zap.String("todo_id", todoID),
		zap.Int64("rows_affected", result.RowsAffected()),
	)
	return nil
}
