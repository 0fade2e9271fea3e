package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"todo-backend/internal/model"
	"todo-backend/pkg/metrics"
)

const (
	keyListPrefix    = "todo:list:"
	keyVersionPrefix = "todo:list_version:"

	// upper bound for a shared fill, which outlives the caller that started it
	fillTimeout = 10 * time.Second
)

// CachedTodoRepository caches ListByUser results in Redis per user. Entries
// are keyed by a per-user version that every write increments, so a fill
// that raced a write lands under a version no reader will ask for again.
// Redis failures are logged and the request falls through to the wrapped
// repository.
type CachedTodoRepository struct {
	next   TodoRepository
	rdb    redis.Cmdable
	ttl    time.Duration
	sf     singleflight.Group
	logger *zap.Logger
}

func NewCachedTodoRepository(next TodoRepository, rdb redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedTodoRepository {
	return &CachedTodoRepository{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func listKey(userID, version string) string {
	return keyListPrefix + userID + ":" + version
}

func (c *CachedTodoRepository) ListByUser(ctx context.Context, userID string) ([]model.Todo, error) {
	version, cacheable := c.version(ctx, userID)
	key := listKey(userID, version)

	ch := c.sf.DoChan(key, func() (interface{}, error) {
		// 共享的加载不能随发起请求的客户端断开而取消
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()

		if cacheable {
			if list, ok := c.get(fillCtx, key, userID); ok {
				return list, nil
			}
		}
		list, err := c.next.ListByUser(fillCtx, userID)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.set(fillCtx, key, userID, list)
		}
		return list, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.Todo), nil
	}
}

func (c *CachedTodoRepository) Create(ctx context.Context, t model.Todo) error {
	if err := c.next.Create(ctx, t); err != nil {
		return err
	}
	c.invalidate(ctx, t.UserID)
	return nil
}

func (c *CachedTodoRepository) Update(ctx context.Context, todoID, userID string, u model.UpdateTodoRequest) error {
	if err := c.next.Update(ctx, todoID, userID, u); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedTodoRepository) UpdateAttachmentURL(ctx context.Context, todoID, userID, url string) error {
	if err := c.next.UpdateAttachmentURL(ctx, todoID, userID, url); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

func (c *CachedTodoRepository) Delete(ctx context.Context, todoID, userID string) error {
	if err := c.next.Delete(ctx, todoID, userID); err != nil {
		return err
	}
	c.invalidate(ctx, userID)
	return nil
}

// version returns the user's current cache version. ok is false when Redis
// could not be read, in which case nothing is cached.
func (c *CachedTodoRepository) version(ctx context.Context, userID string) (string, bool) {
	v, err := c.rdb.Get(ctx, keyVersionPrefix+userID).Result()
	if errors.Is(err, redis.Nil) {
		return "0", true
	}
	if err != nil {
		metrics.IncrementCacheLookup("error")
		c.logger.Warn("Todo cache version read failed", zap.String("user_id", userID), zap.Error(err))
		return "", false
	}
	return v, true
}

func (c *CachedTodoRepository) get(ctx context.Context, key, userID string) ([]model.Todo, bool) {
	b, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		metrics.IncrementCacheLookup("miss")
		return nil, false
	}
	if err != nil {
		metrics.IncrementCacheLookup("error")
		c.logger.Warn("Todo cache read failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	var list []model.Todo
	if err := json.Unmarshal(b, &list); err != nil {
		metrics.IncrementCacheLookup("error")
		c.logger.Warn("Todo cache entry is corrupt", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	metrics.IncrementCacheLookup("hit")
	return list, true
}

func (c *CachedTodoRepository) set(ctx context.Context, key, userID string, list []model.Todo) {
	b, err := json.Marshal(list)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
		c.logger.Warn("Todo cache write failed", zap.String("user_id", userID), zap.Error(err))
	}
}

// invalidate bumps the user's version and drops the entry it replaced.
func (c *CachedTodoRepository) invalidate(ctx context.Context, userID string) {
	v, err := c.rdb.Incr(ctx, keyVersionPrefix+userID).Result()
	if err != nil {
		c.logger.Warn("Todo cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if err := c.rdb.Del(ctx, listKey(userID, strconv.FormatInt(v-1, 10))).Err(); err != nil {
		c.logger.Debug("Todo cache cleanup failed", zap.String("user_id", userID), zap.Error(err))
	}
}
