package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
	"todo-backend/pkg/logger"
)

// ContextUserID is the gin context key the auth middleware stores the caller's
// identity under.
const ContextUserID = "user_id"

const maxBodyBytes = 1 << 20

// TodoService is what the handlers need from the todo use cases.
type TodoService interface {
	List(ctx context.Context, userID string) ([]model.Todo, error)
	Create(ctx context.Context, userID string, req model.CreateTodoRequest) (model.Todo, error)
	Update(ctx context.Context, todoID, userID string, req model.UpdateTodoRequest) error
	Delete(ctx context.Context, todoID, userID string) error
	RequestUpload(ctx context.Context, todoID, userID string) (string, error)
}

// RequestDecoder validates and decodes request bodies.
type RequestDecoder interface {
	DecodeCreate(body []byte) (model.CreateTodoRequest, error)
	DecodeUpdate(body []byte) (model.UpdateTodoRequest, error)
}

type TodoHandler struct {
	svc     TodoService
	decoder RequestDecoder
	logger  *zap.Logger
}

func NewTodoHandler(svc TodoService, decoder RequestDecoder, logger *zap.Logger) *TodoHandler {
	return &TodoHandler{svc: svc, decoder: decoder, logger: logger}
}

// getUserID 读取 AuthMiddleware 写入的 user_id
func (h *TodoHandler) getUserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextUserID)
	userID, _ := v.(string)
	if !ok || userID == "" {
		h.writeError(c, apperr.New(apperr.KindUnauthorized, "handler.getUserID", "user not authenticated"))
		return "", false
	}
	return userID, true
}

// ListTodos handles GET /todos
func (h *TodoHandler) ListTodos(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	todos, err := h.svc.List(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": todos})
}

// CreateTodo handles POST /todos
func (h *TodoHandler) CreateTodo(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	body, err := h.readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	req, err := h.decoder.DecodeCreate(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	item, err := h.svc.Create(c.Request.Context(), userID, req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// UpdateTodo handles PATCH /todos/:todoId
func (h *TodoHandler) UpdateTodo(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}
	todoID := c.Param("todoId")

	body, err := h.readBody(c)
	if err != nil {
		h.writeError(c, err)
		return
	}
	req, err := h.decoder.DecodeUpdate(body)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if err := h.svc.Update(c.Request.Context(), todoID, userID, req); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTodo handles DELETE /todos/:todoId
func (h *TodoHandler) DeleteTodo(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	if err := h.svc.Delete(c.Request.Context(), c.Param("todoId"), userID); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GenerateUploadURL handles POST /todos/:todoId/attachment
func (h *TodoHandler) GenerateUploadURL(c *gin.Context) {
	userID, ok := h.getUserID(c)
	if !ok {
		return
	}

	uploadURL, err := h.svc.RequestUpload(c.Request.Context(), c.Param("todoId"), userID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploadUrl": uploadURL})
}

func (h *TodoHandler) readBody(c *gin.Context) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, apperr.Wrap(apperr.KindInvalidInput, "handler.readBody", "request body too large", err)
		}
		return nil, apperr.Wrap(apperr.KindInvalidInput, "handler.readBody", "could not read request body", err)
	}
	return body, nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteError renders err as {error, kind} with the status for its kind.
func WriteError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(StatusFor(err), gin.H{
		"error": apperr.Message(err),
		"kind":  apperr.KindOf(err).String(),
	})
}

func (h *TodoHandler) writeError(c *gin.Context, err error) {
	log := logger.WithTrace(c.Request.Context(), h.logger)
	status := StatusFor(err)
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", fields...)
	} else {
		log.Warn("Request rejected", fields...)
	}
	WriteError(c, err)
}
