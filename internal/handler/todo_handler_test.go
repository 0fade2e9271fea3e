package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/handler"
	"todo-backend/internal/model"
	"todo-backend/internal/service/todo"
	"todo-backend/internal/testutil"
	"todo-backend/internal/validation"
)

type env struct {
	repo   *testutil.MemoryTodoRepository
	issuer *testutil.FakeIssuer
	engine *gin.Engine
}

// newEnv wires the handlers behind a stub auth step that trusts the
// X-Test-User header.
func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	v, err := validation.New()
	if err != nil {
		t.Fatal(err)
	}
	e := &env{
		repo:   testutil.NewMemoryTodoRepository(),
		issuer: &testutil.FakeIssuer{Bucket: "bkt"},
	}
	svc := todo.NewService(e.repo, e.issuer, zap.NewNop(),
		todo.WithClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
	h := handler.NewTodoHandler(svc, v, zap.NewNop())

	r := gin.New()
	r.Use(func(c *gin.Context) {
		if u := c.GetHeader("X-Test-User"); u != "" {
			c.Set(handler.ContextUserID, u)
		}
		c.Next()
	})
	r.GET("/todos", h.ListTodos)
	r.POST("/todos", h.CreateTodo)
	r.PATCH("/todos/:todoId", h.UpdateTodo)
	r.DELETE("/todos/:todoId", h.DeleteTodo)
	r.POST("/todos/:todoId/attachment", h.GenerateUploadURL)
	e.engine = r
	return e
}

func (e *env) do(method, path, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("response %q is not JSON: %v", w.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func TestCreateThenList(t *testing.T) {
	e := newEnv(t)

	w := e.do(http.MethodPost, "/todos", "u1", `{"name":"Buy milk","dueDate":"2024-01-01"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("create status = %d, body %s", w.Code, w.Body.String())
	}
	created := decode[struct {
		Item model.Todo `json:"item"`
	}](t, w).Item
	if created.UserID != "u1" || created.Done || created.AttachmentURL != "" || created.TodoID == "" {
		t.Errorf("unexpected item %+v", created)
	}
	if !strings.Contains(w.Body.String(), `"attachmentUrl":""`) {
		t.Errorf("attachmentUrl should be serialized empty: %s", w.Body.String())
	}

	w = e.do(http.MethodGet, "/todos", "u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	items := decode[struct {
		Items []model.Todo `json:"items"`
	}](t, w).Items
	if len(items) != 1 || items[0] != created {
		t.Errorf("items = %+v", items)
	}
}

func TestListEmptyIsArray(t *testing.T) {
	e := newEnv(t)
	w := e.do(http.MethodGet, "/todos", "nobody", "")
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"items":[]}` {
		t.Errorf("got %d %s", w.Code, w.Body.String())
	}
}

func TestUpdateAndDeleteReturnNoContent(t *testing.T) {
	e := newEnv(t)
	e.repo.Put(model.Todo{TodoID: "t1", UserID: "u1", Name: "A"})

	w := e.do(http.MethodPatch, "/todos/t1", "u1", `{"name":"B","dueDate":"2024-02-02","done":true}`)
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("update: %d %q", w.Code, w.Body.String())
	}
	if got, _ := e.repo.Get("t1", "u1"); got.Name != "B" || !got.Done {
		t.Errorf("not updated: %+v", got)
	}

	w = e.do(http.MethodDelete, "/todos/t1", "u1", "")
	if w.Code != http.StatusNoContent || w.Body.Len() != 0 {
		t.Errorf("delete: %d %q", w.Code, w.Body.String())
	}
	w = e.do(http.MethodDelete, "/todos/t1", "u1", "")
	if w.Code != http.StatusNoContent {
		t.Errorf("second delete: %d", w.Code)
	}
}

func TestGenerateUploadURL(t *testing.T) {
	e := newEnv(t)
	e.repo.Put(model.Todo{TodoID: "t1", UserID: "u1"})

	w := e.do(http.MethodPost, "/todos/t1/attachment", "u1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d %s", w.Code, w.Body.String())
	}
	body := decode[map[string]string](t, w)
	if !strings.Contains(body["uploadUrl"], "u1/t1") {
		t.Errorf("uploadUrl = %q", body["uploadUrl"])
	}
	if got, _ := e.repo.Get("t1", "u1"); got.AttachmentURL != "https://bkt.s3.amazonaws.com/u1/t1" {
		t.Errorf("attachmentUrl = %q", got.AttachmentURL)
	}
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*env)
		method     string
		path       string
		user       string
		body       string
		wantStatus int
		wantKind   string
		wantMsg    string
	}{
		{
			name: "no identity", method: http.MethodGet, path: "/todos",
			wantStatus: http.StatusUnauthorized, wantKind: "unauthorized", wantMsg: "user not authenticated",
		},
		{
			name: "malformed json", method: http.MethodPost, path: "/todos", user: "u1", body: `{"name":`,
			wantStatus: http.StatusBadRequest, wantKind: "invalid_input", wantMsg: "request body is not valid JSON",
		},
		{
			name: "missing field", method: http.MethodPatch, path: "/todos/t1", user: "u1", body: `{"name":"x","dueDate":"d"}`,
			wantStatus: http.StatusBadRequest, wantKind: "invalid_input",
		},
		{
			name: "update missing todo", method: http.MethodPatch, path: "/todos/ghost", user: "u1",
			body:       `{"name":"x","dueDate":"d","done":false}`,
			wantStatus: http.StatusNotFound, wantKind: "not_found", wantMsg: "could not update todo",
		},
		{
			name:   "store down",
			setup:  func(e *env) { e.repo.ListErr = errors.New("timeout") },
			method: http.MethodGet, path: "/todos", user: "u1",
			wantStatus: http.StatusInternalServerError, wantKind: "store_unavailable", wantMsg: "could not fetch todos",
		},
		{
			name: "presign failure",
			setup: func(e *env) {
				e.issuer.IssueErr = apperr.New(apperr.KindStoreUnavailable, "attachment", "could not presign upload")
			},
			method: http.MethodPost, path: "/todos/t1/attachment", user: "u1",
			wantStatus: http.StatusInternalServerError, wantKind: "store_unavailable", wantMsg: "could not generate upload URL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			if tt.setup != nil {
				tt.setup(e)
			}
			w := e.do(tt.method, tt.path, tt.user, tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.wantStatus, w.Body.String())
			}
			got := decode[errorBody](t, w)
			if got.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if tt.wantMsg != "" && got.Error != tt.wantMsg {
				t.Errorf("error = %q, want %q", got.Error, tt.wantMsg)
			}
		})
	}
}

func TestStatusForUntagged(t *testing.T) {
	if got := handler.StatusFor(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("got %d", got)
	}
}
