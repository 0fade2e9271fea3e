// Package app builds the todo API from configuration. Both the HTTP server
// and the Lambda entrypoint use it.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"todo-backend/internal/attachment"
	"todo-backend/internal/auth"
	"todo-backend/internal/config"
	"todo-backend/internal/events"
	"todo-backend/internal/handler"
	"todo-backend/internal/httpserver"
	"todo-backend/internal/repository"
	"todo-backend/internal/service/todo"
	"todo-backend/internal/validation"
	"todo-backend/pkg/circuitbreaker"
	"todo-backend/pkg/db"
	"todo-backend/pkg/mq"
	redisclient "todo-backend/pkg/redis"
)

type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	redis     *redis.Client
	publisher *mq.Publisher
	router    *gin.Engine
}

// New connects every configured backend and assembles the router. On error
// whatever was already opened is closed again.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	repo, err := a.newRepository(ctx, awsCfg)
	if err != nil {
		return err
	}

	var checks []httpserver.ReadinessCheck
	if a.db != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "db", Check: a.db.Ping})
	}

	if cfg.Redis.Addr != "" {
		rdb, err := redisclient.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		a.redis = rdb
		repo = repository.NewCachedTodoRepository(repo, rdb, cfg.Redis.TTL, a.logger)
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		a.logger.Info("Todo list cache enabled", zap.String("redis_addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.TTL))
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.MQ.URL != "" {
		pub, err := mq.NewPublisher(cfg.MQ.URL)
		if err != nil {
			return err
		}
		a.publisher = pub
		publisher = events.NewGuarded(pub, circuitbreaker.New(circuitbreaker.DefaultConfig()))
		checks = append(checks, httpserver.ReadinessCheck{Name: "mq", Check: func(context.Context) error {
			if !pub.IsConnected() {
				return errors.New("publisher connection closed")
			}
			return nil
		}})
		a.logger.Info("Todo events enabled", zap.String("exchange", mq.ExchangeName))
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			o.UsePathStyle = true
		}
	})
	issuer := attachment.NewS3Issuer(s3.NewPresignClient(s3Client), cfg.Bucket.Name, cfg.Bucket.SignedURLExpiration, a.logger)

	parser, err := auth.NewParser(cfg.Auth, a.logger)
	if err != nil {
		return err
	}
	validator, err := validation.New()
	if err != nil {
		return err
	}

	svc := todo.NewService(repo, issuer, a.logger, todo.WithPublisher(publisher))
	todoHandler := handler.NewTodoHandler(svc, validator, a.logger)
	a.router = httpserver.NewRouter(todoHandler, parser, a.logger, checks...)
	return nil
}

func (a *App) newRepository(ctx context.Context, awsCfg aws.Config) (repository.TodoRepository, error) {
	cfg := a.cfg
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		pool, err := db.NewConnection(ctx, cfg.DB, a.logger)
		if err != nil {
			return nil, err
		}
		a.db = pool
		a.logger.Info("Using postgres todo store", zap.String("db_host", cfg.DB.Host), zap.String("db_name", cfg.DB.Name))
		return repository.NewPostgresTodoRepository(pool, a.logger), nil
	default:
		client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
			if cfg.AWS.Endpoint != "" {
				o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
			}
		})
		a.logger.Info("Using dynamodb todo store",
			zap.String("table", cfg.Store.Table),
			zap.String("index", cfg.Store.CreatedAtIndex),
		)
		return repository.NewDynamoTodoRepository(client, repository.DynamoTableConfig{
			Table:          cfg.Store.Table,
			CreatedAtIndex: cfg.Store.CreatedAtIndex,
			ConsistentRead: cfg.ConsistentRead(),
		}, a.logger), nil
	}
}

func (a *App) Router() *gin.Engine {
	return a.router
}

func (a *App) Close() {
	if a.publisher != nil {
		a.publisher.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
