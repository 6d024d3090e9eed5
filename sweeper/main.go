package main

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"tasksplus-api/storage"
)

// The sweeper drains orphan-comment cleanup messages left behind by cascade
// deletes that could not remove every comment inline. A message is deleted
// from the queue only after the partition is fully swept; otherwise it
// becomes visible again and the sweep is retried.
func main() {
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("comment sweeper starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	tasksTable := os.Getenv("TASKS_TABLE")
	commentsTable := os.Getenv("COMMENTS_TABLE")
	sweepQueue := os.Getenv("SWEEP_QUEUE")
	if connStr == "" || tasksTable == "" || commentsTable == "" || sweepQueue == "" {
		log.Fatal("missing storage config")
	}

	queue, err := azqueue.NewQueueClientFromConnectionString(connStr, sweepQueue, nil)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	store, err := storage.New(connStr, tasksTable, commentsTable, sweepQueue, nil)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	ctx := context.Background()
	for {
		resp, err := queue.DequeueMessage(ctx, nil)
		if err != nil {
			log.Errorf("receive: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(resp.Messages) == 0 {
			time.Sleep(time.Second)
			continue
		}
		msg := resp.Messages[0]
		var sweep storage.SweepMessage
		if err := json.Unmarshal([]byte(*msg.MessageText), &sweep); err != nil {
			log.Errorf("parse sweep message: %v", err)
			// Malformed messages can never succeed; drop them.
			_, _ = queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
			continue
		}
		if err := store.SweepComments(ctx, sweep.TaskID); err != nil {
			log.WithFields(log.Fields{"taskId": sweep.TaskID}).Errorf("sweep: %v", err)
			continue
		}
		log.WithFields(log.Fields{"taskId": sweep.TaskID}).Info("orphan comments swept")
		if _, err := queue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil); err != nil {
			log.Errorf("delete message: %v", err)
		}
	}
}
