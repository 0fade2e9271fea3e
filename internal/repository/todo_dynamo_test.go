package repository

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
)

type fakeDynamo struct {
	pages []*dynamodb.QueryOutput

	queryErr, putErr, updateErr, deleteErr error

	queries []*dynamodb.QueryInput
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	deletes []*dynamodb.DeleteItemInput
}

func (f *fakeDynamo) Query(_ context.Context, in *dynamodb.QueryInput, _ ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	i := len(f.queries) - 1
	if i >= len(f.pages) {
		return &dynamodb.QueryOutput{}, nil
	}
	return f.pages[i], nil
}

func (f *fakeDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	return &dynamodb.PutItemOutput{}, f.putErr
}

func (f *fakeDynamo) UpdateItem(_ context.Context, in *dynamodb.UpdateItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, f.updateErr
}

func (f *fakeDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.deletes = append(f.deletes, in)
	return &dynamodb.DeleteItemOutput{}, f.deleteErr
}

var testTable = DynamoTableConfig{Table: "Todos", CreatedAtIndex: "CreatedAtIndex", ConsistentRead: true}

func newDynamoRepo(f *fakeDynamo) *DynamoTodoRepository {
	return NewDynamoTodoRepository(f, testTable, zap.NewNop())
}

func mustItems(t *testing.T, todos ...model.Todo) []map[string]types.AttributeValue {
	t.Helper()
	items := make([]map[string]types.AttributeValue, 0, len(todos))
	for _, td := range todos {
		item, err := attributevalue.MarshalMap(td)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		items = append(items, item)
	}
	return items
}

func stringAttr(t *testing.T, m map[string]types.AttributeValue, name string) string {
	t.Helper()
	v, ok := m[name].(*types.AttributeValueMemberS)
	if !ok {
		t.Fatalf("attribute %q is %T, want string", name, m[name])
	}
	return v.Value
}

func attrNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for _, n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func TestDynamoListByUserDrainsAllPages(t *testing.T) {
	a := model.Todo{TodoID: "a", UserID: "u1", CreatedAt: "2024-01-01T00:00:00.000Z", Name: "A"}
	b := model.Todo{TodoID: "b", UserID: "u1", CreatedAt: "2024-01-02T00:00:00.000Z", Name: "B", Done: true}
	f := &fakeDynamo{pages: []*dynamodb.QueryOutput{
		{Items: mustItems(t, a), LastEvaluatedKey: map[string]types.AttributeValue{
			"todoId": &types.AttributeValueMemberS{Value: "a"},
		}},
		{Items: mustItems(t, b)},
	}}

	todos, err := newDynamoRepo(f).ListByUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(todos) != 2 || todos[0] != a || todos[1] != b {
		t.Errorf("got %+v, want [a b]", todos)
	}
	if len(f.queries) != 2 {
		t.Fatalf("expected 2 queries, got %d", len(f.queries))
	}

	first := f.queries[0]
	if aws.ToString(first.TableName) != "Todos" || aws.ToString(first.IndexName) != "CreatedAtIndex" {
		t.Errorf("wrong table/index: %s/%s", aws.ToString(first.TableName), aws.ToString(first.IndexName))
	}
	if !aws.ToBool(first.ConsistentRead) {
		t.Error("expected consistent read")
	}
	if got := attrNames(first.ExpressionAttributeNames); len(got) != 1 || got[0] != "userId" {
		t.Errorf("key condition names = %v, want [userId]", got)
	}
	for _, v := range first.ExpressionAttributeValues {
		if s := v.(*types.AttributeValueMemberS).Value; s != "u1" {
			t.Errorf("key condition value = %q, want u1", s)
		}
	}
	if f.queries[1].ExclusiveStartKey == nil {
		t.Error("second page should continue from LastEvaluatedKey")
	}
}

func TestDynamoListByUserEmpty(t *testing.T) {
	todos, err := newDynamoRepo(&fakeDynamo{}).ListByUser(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if todos == nil || len(todos) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", todos)
	}
}

func TestDynamoListByUserStoreFailure(t *testing.T) {
	f := &fakeDynamo{queryErr: errors.New("throttled")}
	_, err := newDynamoRepo(f).ListByUser(context.Background(), "u1")
	if !apperr.IsKind(err, apperr.KindStoreUnavailable) {
		t.Errorf("expected store_unavailable, got %v", err)
	}
}

func TestDynamoCreatePutsFullItem(t *testing.T) {
	f := &fakeDynamo{}
	td := model.Todo{TodoID: "t1", UserID: "u1", CreatedAt: "2024-01-01T00:00:00.000Z", Name: "Buy milk", DueDate: "2024-02-01"}

	if err := newDynamoRepo(f).Create(context.Background(), td); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.puts) != 1 {
		t.Fatalf("expected 1 put, got %d", len(f.puts))
	}
	item := f.puts[0].Item
	if stringAttr(t, item, "todoId") != "t1" || stringAttr(t, item, "userId") != "u1" {
		t.Errorf("wrong key in item: %v", item)
	}
	if stringAttr(t, item, "attachmentUrl") != "" {
		t.Error("attachmentUrl should be stored empty")
	}
	if _, ok := item["done"].(*types.AttributeValueMemberBOOL); !ok {
		t.Errorf("done stored as %T", item["done"])
	}
	if f.puts[0].ConditionExpression != nil {
		t.Error("create must be an unconditional put")
	}
}

func TestDynamoCreateStoreFailure(t *testing.T) {
	f := &fakeDynamo{putErr: errors.New("boom")}
	err := newDynamoRepo(f).Create(context.Background(), model.Todo{TodoID: "t1", UserID: "u1"})
	if !apperr.IsKind(err, apperr.KindStoreUnavailable) {
		t.Errorf("expected store_unavailable, got %v", err)
	}
}

func TestDynamoUpdateIsConditionalOnExistence(t *testing.T) {
	f := &fakeDynamo{}
	u := model.UpdateTodoRequest{Name: "X", DueDate: "2024-03-01", Done: true}

	if err := newDynamoRepo(f).Update(context.Background(), "t1", "u1", u); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.updates) != 1 {
		t.Fatalf("expected 1 update, got %d", len(f.updates))
	}
	in := f.updates[0]
	if stringAttr(t, in.Key, "todoId") != "t1" || stringAttr(t, in.Key, "userId") != "u1" {
		t.Errorf("wrong key: %v", in.Key)
	}
	if in.ConditionExpression == nil || in.UpdateExpression == nil {
		t.Fatal("expected update and condition expressions")
	}
	want := []string{"done", "dueDate", "name", "todoId"}
	got := attrNames(in.ExpressionAttributeNames)
	if len(got) != len(want) {
		t.Fatalf("attribute names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("attribute names = %v, want %v", got, want)
			break
		}
	}
}

func TestDynamoUpdateMissingTodo(t *testing.T) {
	f := &fakeDynamo{updateErr: &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}}
	repo := newDynamoRepo(f)

	err := repo.Update(context.Background(), "gone", "u1", model.UpdateTodoRequest{Name: "X"})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("Update: expected not_found, got %v", err)
	}
	err = repo.UpdateAttachmentURL(context.Background(), "gone", "u1", "https://b.s3.amazonaws.com/u1/gone")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Errorf("UpdateAttachmentURL: expected not_found, got %v", err)
	}
}

func TestDynamoUpdateStoreFailure(t *testing.T) {
	f := &fakeDynamo{updateErr: errors.New("network")}
	err := newDynamoRepo(f).Update(context.Background(), "t1", "u1", model.UpdateTodoRequest{})
	if !apperr.IsKind(err, apperr.KindStoreUnavailable) {
		t.Errorf("expected store_unavailable, got %v", err)
	}
}

func TestDynamoUpdateAttachmentURLSetsOnlyURL(t *testing.T) {
	f := &fakeDynamo{}
	url := "https://bucket.s3.amazonaws.com/u1/t1"

	if err := newDynamoRepo(f).UpdateAttachmentURL(context.Background(), "t1", "u1", url); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := attrNames(f.updates[0].ExpressionAttributeNames)
	if len(got) != 2 || got[0] != "attachmentUrl" || got[1] != "todoId" {
		t.Errorf("attribute names = %v, want [attachmentUrl todoId]", got)
	}
	var found bool
	for _, v := range f.updates[0].ExpressionAttributeValues {
		if s, ok := v.(*types.AttributeValueMemberS); ok && s.Value == url {
			found = true
		}
	}
	if !found {
		t.Errorf("url %q not among expression values", url)
	}
}

func TestDynamoDeleteIsUnconditional(t *testing.T) {
	f := &fakeDynamo{}
	if err := newDynamoRepo(f).Delete(context.Background(), "t1", "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.deletes) != 1 {
		t.Fatalf("expected 1 delete, got %d", len(f.deletes))
	}
	if f.deletes[0].ConditionExpression != nil {
		t.Error("delete must not be conditional")
	}
	if stringAttr(t, f.deletes[0].Key, "todoId") != "t1" {
		t.Errorf("wrong key: %v", f.deletes[0].Key)
	}
}

func TestDynamoDeleteStoreFailure(t *testing.T) {
	f := &fakeDynamo{deleteErr: errors.New("boom")}
	err := newDynamoRepo(f).Delete(context.Background(), "t1", "u1")
	if !apperr.IsKind(err, apperr.KindStoreUnavailable) {
		t.Errorf("expected store_unavailable, got %v", err)
	}
}
