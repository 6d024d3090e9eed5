package storage

import (
	"context"
	"encoding/json"
	"errors"
)

var errSweepIncomplete = errors.New("sweep incomplete")

// SweepMessage asks the sweeper to delete any comments still referencing a
// deleted task. It is enqueued when the inline cascade left orphans behind.
type SweepMessage struct {
	TaskID string `json:"taskId"`
}

// EnqueueSweep schedules orphan-comment cleanup for the given task.
func (s *Storage) EnqueueSweep(ctx context.Context, taskID string) error {
	data, err := json.Marshal(SweepMessage{TaskID: taskID})
	if err != nil {
		return err
	}
	_, err = s.sweepQueue.EnqueueMessage(ctx, string(data), nil)
	return err
}

// SweepComments deletes every comment in the task's partition. Unlike the
// inline cascade it fails loudly so the queue message stays visible and the
// sweep is retried.
func (s *Storage) SweepComments(ctx context.Context, taskID string) error {
	if failed := s.deleteComments(ctx, taskID); failed {
		return errSweepIncomplete
	}
	return nil
}
