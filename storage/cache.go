package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"tasksplus-api/domain"
)

type backend interface {
	CreateTask(ctx context.Context, owner, text string, public bool) (domain.Task, error)
	FetchTasks(ctx context.Context, owner string) ([]domain.Task, error)
	DeleteTaskCascade(ctx context.Context, actor, taskID string) error
	CreateComment(ctx context.Context, author domain.Identity, taskID, text string) (domain.Comment, error)
	DeleteComment(ctx context.Context, actor, commentID string) error
	FetchStats(ctx context.Context) (domain.Stats, error)
}

// Cache wraps a Storage instance with Redis-backed caching for read
// operations. Task lists are cached per owner and evicted on task mutations;
// stats are cached globally with their own TTL (the landing page tolerates
// slightly stale counts).
type Cache struct {
	*Storage
	base     backend
	redis    *redis.Client
	tasksTTL time.Duration
	statsTTL time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTLs.
func NewCache(base backend, client *redis.Client, tasksTTL, statsTTL time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if tasksTTL < 0 {
		tasksTTL = 0
	}
	if statsTTL < 0 {
		statsTTL = 0
	}

	c := &Cache{
		base:     base,
		redis:    client,
		tasksTTL: tasksTTL,
		statsTTL: statsTTL,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

func (c *Cache) FetchTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, owner); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, owner)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, owner, tasks)
	return tasks, nil
}

func (c *Cache) FetchStats(ctx context.Context) (domain.Stats, error) {
	if stats, ok := c.loadStatsFromCache(ctx); ok {
		return stats, nil
	}

	stats, err := c.base.FetchStats(ctx)
	if err != nil {
		return domain.Stats{}, err
	}

	c.storeStats(ctx, stats)
	return stats, nil
}

func (c *Cache) CreateTask(ctx context.Context, owner, text string, public bool) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, owner, text, public)
	if err != nil {
		return domain.Task{}, err
	}

	c.evict(ctx, TasksCacheKey(owner), statsCacheKey())
	return task, nil
}

func (c *Cache) DeleteTaskCascade(ctx context.Context, actor, taskID string) error {
	if err := c.base.DeleteTaskCascade(ctx, actor, taskID); err != nil {
		return err
	}

	c.evict(ctx, TasksCacheKey(actor), statsCacheKey())
	return nil
}

func (c *Cache) CreateComment(ctx context.Context, author domain.Identity, taskID, text string) (domain.Comment, error) {
	comment, err := c.base.CreateComment(ctx, author, taskID, text)
	if err != nil {
		return domain.Comment{}, err
	}

	c.evict(ctx, statsCacheKey())
	return comment, nil
}

func (c *Cache) DeleteComment(ctx context.Context, actor, commentID string) error {
	if err := c.base.DeleteComment(ctx, actor, commentID); err != nil {
		return err
	}

	c.evict(ctx, statsCacheKey())
	return nil
}

func (c *Cache) loadTasksFromCache(ctx context.Context, owner string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, TasksCacheKey(owner)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, TasksCacheKey(owner)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) loadStatsFromCache(ctx context.Context) (domain.Stats, bool) {
	if c.redis == nil {
		return domain.Stats{}, false
	}
	data, err := c.redis.Get(ctx, statsCacheKey()).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, statsCacheKey()).Err()
		}
		return domain.Stats{}, false
	}
	var stats domain.Stats
	if err := json.Unmarshal(data, &stats); err != nil {
		_ = c.redis.Del(ctx, statsCacheKey()).Err()
		return domain.Stats{}, false
	}
	return stats, true
}

func (c *Cache) storeTasks(ctx context.Context, owner string, tasks []domain.Task) {
	if c.redis == nil || c.tasksTTL == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, TasksCacheKey(owner), data, c.tasksTTL).Err()
}

func (c *Cache) storeStats(ctx context.Context, stats domain.Stats) {
	if c.redis == nil || c.statsTTL == 0 {
		return
	}
	data, err := json.Marshal(stats)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, statsCacheKey(), data, c.statsTTL).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, keys...).Result()
}

// TasksCacheKey is the Redis key holding an owner's task list snapshot. The
// subscription loop writes fresh snapshots under the same key.
func TasksCacheKey(owner string) string {
	return "tasks:" + owner
}

func statsCacheKey() string {
	return "stats"
}
