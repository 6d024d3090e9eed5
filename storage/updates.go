package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// UpdateEvent is the pub/sub payload published after a task mutation. It
// names the owner whose live task list should be refreshed.
type UpdateEvent struct {
	User string `json:"user"`
}

// Updates publishes owner-scoped change notifications on a Redis channel.
// Publishing is best effort: a lost notification only delays a live list
// refresh, it never affects the stored data.
type Updates struct {
	redis   *redis.Client
	channel string
}

// NewUpdates creates a publisher for the given channel.
func NewUpdates(client *redis.Client, channel string) *Updates {
	return &Updates{redis: client, channel: channel}
}

// Publish notifies subscribers that the owner's task list changed.
func (u *Updates) Publish(ctx context.Context, owner string) {
	if u == nil || u.redis == nil {
		return
	}
	data, err := json.Marshal(UpdateEvent{User: owner})
	if err != nil {
		return
	}
	if err := u.redis.Publish(ctx, u.channel, data).Err(); err != nil {
		log.WithFields(log.Fields{"channel": u.channel}).Errorf("publish update: %v", err)
	}
}
