package repository

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"todo-backend/internal/apperr"
	"todo-backend/internal/model"
)

const backendDynamo = "dynamodb"

// DynamoAPI is the subset of *dynamodb.Client the repository uses.
type DynamoAPI interface {
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DynamoTableConfig names the table and the per-user creation time index.
type DynamoTableConfig struct {
	Table          string
	CreatedAtIndex string
	ConsistentRead bool
}

type DynamoTodoRepository struct {
	client DynamoAPI
	cfg    DynamoTableConfig
	logger *zap.Logger
}

func NewDynamoTodoRepository(client DynamoAPI, cfg DynamoTableConfig, logger *zap.Logger) *DynamoTodoRepository {
	return &DynamoTodoRepository{client: client, cfg: cfg, logger: logger}
}

func (r *DynamoTodoRepository) ListByUser(ctx context.Context, userID string) (todos []model.Todo, err error) {
	defer track(backendDynamo, "list")(&err)
	r.logger.Debug("Getting all todos for user", zap.String("user_id", userID))

	keyCond := expression.Key("userId").Equal(expression.Value(userID))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidInput, "repository.ListByUser", "could not build query", err)
	}

	paginator := dynamodb.NewQueryPaginator(r.client, &dynamodb.QueryInput{
		TableName:                 aws.String(r.cfg.Table),
		IndexName:                 aws.String(r.cfg.CreatedAtIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ConsistentRead:            aws.Bool(r.cfg.ConsistentRead),
	})

	todos = []model.Todo{}
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			r.logger.Error("Failed to query todos", zap.String("user_id", userID), zap.Error(err))
			return nil, apperr.Wrap(apperr.KindStoreUnavailable, "repository.ListByUser", "could not retrieve todos", err)
		}
		var items []model.Todo
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &items); err != nil {
			r.logger.Error("Failed to decode todo items", zap.String("user_id", userID), zap.Error(err))
			return nil, apperr.Wrap(apperr.KindStoreUnavailable, "repository.ListByUser", "could not retrieve todos", err)
		}
		todos = append(todos, items...)
	}

	r.logger.Info("Retrieved todos",
		zap.String("user_id", userID),
		zap.Int("count", len(todos)),
	)
	return todos, nil
}

func (r *DynamoTodoRepository) Create(ctx context.Context, t model.Todo) (err error) {
	defer track(backendDynamo, "create")(&err)
	r.logger.Debug("Creating todo", zap.String("user_id", t.UserID), zap.String("todo_id", t.TodoID))

	item, err := attributevalue.MarshalMap(t)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "repository.Create", "could not encode todo", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.cfg.Table),
		Item:      item,
	})
	if err != nil {
		r.logger.Error("Failed to create todo",
			zap.String("user_id", t.UserID),
			zap.String("todo_id", t.TodoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, "repository.Create", "could not create todo", err)
	}

	r.logger.Info("Created todo", zap.String("user_id", t.UserID), zap.String("todo_id", t.TodoID))
	return nil
}

func (r *DynamoTodoRepository) Update(ctx context.Context, todoID, userID string, u model.UpdateTodoRequest) (err error) {
	defer track(backendDynamo, "update")(&err)
	r.logger.Debug("Updating todo", zap.String("user_id", userID), zap.String("todo_id", todoID))

	update := expression.Set(expression.Name("name"), expression.Value(u.Name)).
		Set(expression.Name("dueDate"), expression.Value(u.DueDate)).
		Set(expression.Name("done"), expression.Value(u.Done))

	if err := r.updateExisting(ctx, "repository.Update", todoID, userID, update); err != nil {
		return err
	}

	r.logger.Info("Updated todo", zap.String("user_id", userID), zap.String("todo_id", todoID))
	return nil
}

func (r *DynamoTodoRepository) UpdateAttachmentURL(ctx context.Context, todoID, userID, url string) (err error) {
	defer track(backendDynamo, "update_attachment")(&err)
	r.logger.Debug("Updating attachment URL", zap.String("user_id", userID), zap.String("todo_id", todoID))

	update := expression.Set(expression.Name("attachmentUrl"), expression.Value(url))
	if err := r.updateExisting(ctx, "repository.UpdateAttachmentURL", todoID, userID, update); err != nil {
		return err
	}

	r.logger.Info("Updated attachment URL",
		zap.String("user_id", userID),
		zap.String("todo_id", todoID),
		zap.String("attachment_url", url),
	)
	return nil
}

// updateExisting applies update to the todo only if it already exists, so a
// stale id cannot resurrect a deleted todo as a partial item.
func (r *DynamoTodoRepository) updateExisting(ctx context.Context, op, todoID, userID string, update expression.UpdateBuilder) error {
	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(expression.AttributeExists(expression.Name("todoId"))).
		Build()
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, op, "could not build update", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(r.cfg.Table),
		Key:                       todoKey(todoID, userID),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			r.logger.Warn("Todo not found", zap.String("user_id", userID), zap.String("todo_id", todoID))
			return apperr.Wrap(apperr.KindNotFound, op, "todo not found", err)
		}
		r.logger.Error("Failed to update todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, op, "could not update todo", err)
	}
	return nil
}

func (r *DynamoTodoRepository) Delete(ctx context.Context, todoID, userID string) (err error) {
	defer track(backendDynamo, "delete")(&err)
	r.logger.Debug("Deleting todo", zap.String("user_id", userID), zap.String("todo_id", todoID))

	_, err = r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(r.cfg.Table),
		Key:       todoKey(todoID, userID),
	})
	if err != nil {
		r.logger.Error("Failed to delete todo",
			zap.String("user_id", userID),
			zap.String("todo_id", todoID),
			zap.Error(err),
		)
		return apperr.Wrap(apperr.KindStoreUnavailable, "repository.Delete", "could not delete todo", err)
	}

	r.logger.Info("Deleted todo", zap.String("user_id", userID), zap.String("todo_id", todoID))
	return nil
}

func todoKey(todoID, userID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"todoId": &types.AttributeValueMemberS{Value: todoID},
		"userId": &types.AttributeValueMemberS{Value: userID},
	}
}
