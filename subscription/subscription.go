package subscription

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"tasksplus-api/domain"
	"tasksplus-api/storage"
)

// Storage fetches tasks for an owner. The implementation must read from the
// backing store, not a cache, since this loop is what refreshes the cache.
type Storage interface {
	FetchTasks(ctx context.Context, owner string) ([]domain.Task, error)
}

// SubscribeUpdates listens for task mutations and broadcasts full task-list
// snapshots to stream clients. Each update names an owner; the owner's list
// is refetched, the cached snapshot is refreshed, and the snapshot is handed
// to broadcast. Snapshots carry the same share links the task-list endpoint
// serves. The loop reconnects when the pub/sub channel closes and returns
// only when the context is cancelled.
func SubscribeUpdates(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	store Storage,
	updatesChannel string,
	baseURL string,
	cacheTTL time.Duration,
	broadcast func(owner string, data []byte),
) {
	for {
		sub := rc.Subscribe(ctx, updatesChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev storage.UpdateEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					logger.Errorf("unable to parse update: %v", err)
					continue
				}
				tasks, err := store.FetchTasks(ctx, ev.User)
				if err != nil {
					logger.Errorf("fetch tasks: %v", err)
					continue
				}
				data, err := json.Marshal(domain.AttachShareURLs(tasks, baseURL))
				if err != nil {
					logger.Errorf("marshal tasks: %v", err)
					continue
				}
				if err := rc.Set(ctx, storage.TasksCacheKey(ev.User), data, cacheTTL).Err(); err != nil {
					logger.Errorf("cache tasks: %v", err)
				}
				broadcast(ev.User, data)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
