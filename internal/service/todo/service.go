// Package todo implements the todo use cases on top of the record store and
// the attachment link issuer.
package todo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/attachment"
	"todo-backend/internal/events"
	"todo-backend/internal/model"
	"todo-backend/internal/repository"
	"todo-backend/pkg/logger"
)

// UploadIssuer issues upload links and names the permanent object URL.
type UploadIssuer interface {
	IssueUploadURL(ctx context.Context, objectKey string) (string, error)
	AttachmentURL(userID, todoID string) string
}

type Service struct {
	repo      repository.TodoRepository
	issuer    UploadIssuer
	publisher events.Publisher
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithClock replaces time.Now as the source of createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid.NewString as the source of todo ids.
func WithIDGenerator(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithPublisher sets where change events go. Defaults to events.Noop.
func WithPublisher(p events.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

func NewService(repo repository.TodoRepository, issuer UploadIssuer, logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		issuer:    issuer,
		publisher: events.Noop{},
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns all todos of userID ordered by creation time.
func (s *Service) List(ctx context.Context, userID string) ([]model.Todo, error) {
	log := logger.WithTrace(ctx, s.logger)

	todos, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		log.Error("Failed to list todos", zap.String("user_id", userID), zap.Error(err))
		return nil, apperr.Rewrap("todo.List", "could not fetch todos", err)
	}

	log.Info("Todos fetched", zap.String("user_id", userID), zap.Int("count", len(todos)))
	return todos, nil
}

// Create stores a new todo for userID with a fresh id and creation time.
func (s *Service) Create(ctx context.Context, userID string, req model.CreateTodoRequest) (model.Todo, error) {
	log := logger.WithTrace(ctx, s.logger)

	t := model.Todo{
		TodoID:        s.newID(),
		UserID:        userID,
		CreatedAt:     s.now().UTC().Format(model.CreatedAtLayout),
		Name:          req.Name,
		DueDate:       req.DueDate,
		Done:          false,
		AttachmentURL: "",
	}

	if err := s.repo.Create(ctx, t); err != nil {
		log.Error("Failed to create todo", zap.String("user_id", userID), zap.Error(err))
		return model.Todo{}, apperr.Rewrap("todo.Create", "could not create todo", err)
	}

	log.Info("Todo created", zap.String("user_id", userID), zap.String("todo_id", t.TodoID))
	s.publish(ctx, events.TodoCreated, events.TodoCreatedPayload{
		TodoPayload: s.payload(t.TodoID, userID),
		Name:        t.Name,
		DueDate:     t.DueDate,
	})
	return t, nil
}

// Update overwrites name, dueDate and done of an existing todo.
func (s *Service) Update(ctx context.Context, todoID, userID string, req model.UpdateTodoRequest) error {
	log := logger.WithTrace(ctx, s.logger)

	if err := s.repo.Update(ctx, todoID, userID, req); err != nil {
		log.Error("Failed to update todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Rewrap("todo.Update", "could not update todo", err)
	}

	log.Info("Todo updated", zap.String("user_id", userID), zap.String("todo_id", todoID))
	s.publish(ctx, events.TodoUpdated, events.TodoUpdatedPayload{
		TodoPayload: s.payload(todoID, userID),
		Name:        req.Name,
		DueDate:     req.DueDate,
		Done:        req.Done,
	})
	return nil
}

// Delete removes the todo. Missing todos are not an error.
func (s *Service) Delete(ctx context.Context, todoID, userID string) error {
	log := logger.WithTrace(ctx, s.logger)

	if err := s.repo.Delete(ctx, todoID, userID); err != nil {
		log.Error("Failed to delete todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Rewrap("todo.Delete", "could not delete todo", err)
	}

	log.Info("Todo deleted", zap.String("user_id", userID), zap.String("todo_id", todoID))
	s.publish(ctx, events.TodoDeleted, s.payload(todoID, userID))
	return nil
}

// RequestUpload issues an upload link for the todo's attachment and records
// the permanent object URL on the todo. The two steps are not atomic: if the
// record write fails the issued link is returned to nobody and expires.
func (s *Service) RequestUpload(ctx context.Context, todoID, userID string) (string, error) {
	log := logger.WithTrace(ctx, s.logger)

	uploadURL, err := s.issuer.IssueUploadURL(ctx, attachment.ObjectKey(userID, todoID))
	if err != nil {
		log.Error("Failed to generate upload URL",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return "", apperr.Rewrap("todo.RequestUpload", "could not generate upload URL", err)
	}

	attachmentURL := s.issuer.AttachmentURL(userID, todoID)
	if err := s.repo.UpdateAttachmentURL(ctx, todoID, userID, attachmentURL); err != nil {
		log.Error("Failed to update attachment URL",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return "", apperr.Rewrap("todo.RequestUpload", "could not update attachment URL", err)
	}

	log.Info("Upload URL generated", zap.String("user_id", userID), zap.String("todo_id", todoID))
	s.publish(ctx, events.TodoAttachmentRequested, events.TodoAttachmentRequestedPayload{
		TodoPayload:   s.payload(todoID, userID),
		AttachmentURL: attachmentURL,
	})
	return uploadURL, nil
}

func (s *Service) payload(todoID, userID string) events.TodoPayload {
	return events.TodoPayload{
		TodoID:     todoID,
		UserID:     userID,
		OccurredAt: s.now().UTC().Format(model.CreatedAtLayout),
	}
}

// publish 是 best-effort：失败只记录日志，不影响请求结果
func (s *Service) publish(ctx context.Context, routingKey string, payload any) {
	ev, err := events.NewEvent(routingKey, payload)
	if err == nil {
		err = s.publisher.Publish(ctx, routingKey, ev)
	}
	if err != nil {
		logger.WithTrace(ctx, s.logger).Warn("Failed to publish todo event",
			zap.String("routing_key", routingKey),
			zap.Error(err),
		)
	}
}
