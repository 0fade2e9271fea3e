package model

// Todo is one item of a user's task list. TodoID and UserID form its key.
type Todo struct {
	TodoID        string `json:"todoId" dynamodbav:"todoId"`
	UserID        string `json:"userId" dynamodbav:"userId"`
	CreatedAt     string `json:"createdAt" dynamodbav:"createdAt"`
	Name          string `json:"name" dynamodbav:"name"`
	DueDate       string `json:"dueDate" dynamodbav:"dueDate"`
	Done          bool   `json:"done" dynamodbav:"done"`
	AttachmentURL string `json:"attachmentUrl" dynamodbav:"attachmentUrl"`
}

// CreateTodoRequest is the body of POST /todos.
type CreateTodoRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
}

// UpdateTodoRequest is the body of PATCH /todos/:todoId. All three fields are
// written on every update.
type UpdateTodoRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"dueDate"`
	Done    bool   `json:"done"`
}

// CreatedAtLayout is ISO-8601 in UTC with millisecond precision, so that
// lexical order of stored timestamps matches chronological order.
const CreatedAtLayout = "2006-01-02T15:04:05.000Z07:00"
