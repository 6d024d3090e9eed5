package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tasksplus-api/domain"
)

// tableClient is the slice of *aztables.Client the repositories use.
type tableClient interface {
	AddEntity(ctx context.Context, entity []byte, options *aztables.AddEntityOptions) (aztables.AddEntityResponse, error)
	DeleteEntity(ctx context.Context, partitionKey, rowKey string, options *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error)
	NewListEntitiesPager(options *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse]
}

// queueClient is the slice of *azqueue.QueueClient used for sweep messages.
type queueClient interface {
	EnqueueMessage(ctx context.Context, content string, o *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error)
}

// Storage provides access to underlying persistence mechanisms.
//
// Tasks are partitioned by owner email with the task id as row key; comments
// are partitioned by task id so a cascade delete scans a single partition.
// Ownership and authorship checks live here, not in any caller: the acting
// identity is an explicit argument to every mutating operation.
type Storage struct {
	taskTable    tableClient
	commentTable tableClient
	sweepQueue   queueClient
	updates      *Updates
}

// New creates a Storage instance from the given connection string. The
// updates publisher may be nil when live list notifications are not needed.
func New(connStr, tasksTable, commentsTable, sweepQueue string, updates *Updates) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	tt := svc.NewClient(tasksTable)
	ct := svc.NewClient(commentsTable)
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	sq, err := azqueue.NewQueueClientFromConnectionString(connStr, sweepQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{taskTable: tt, commentTable: ct, sweepQueue: sq, updates: updates}, nil
}

type taskEntity struct {
	aztables.Entity
	Task    string `json:"Task"`
	Public  bool   `json:"Public"`
	Created string `json:"Created"`
}

type commentEntity struct {
	aztables.Entity
	Comment string `json:"Comment"`
	User    string `json:"User"`
	Name    string `json:"Name"`
}

func (e taskEntity) toTask() domain.Task {
	created, err := time.Parse(time.RFC3339Nano, e.Created)
	if err != nil {
		created = time.Time{}
	}
	return domain.Task{
		ID:      e.RowKey,
		Text:    e.Task,
		Owner:   e.PartitionKey,
		Public:  e.Public,
		Created: created.UnixMilli(),
	}
}

// filterEq builds a `<property> eq '<value>'` OData filter. Single quotes in
// the value are doubled per the OData escaping rule: owner emails and path
// ids come from callers and may legally contain apostrophes, and an
// unescaped quote would let the value rewrite the predicate.
func filterEq(property, value string) string {
	return property + " eq '" + strings.ReplaceAll(value, "'", "''") + "'"
}

func (e commentEntity) toComment() domain.Comment {
	return domain.Comment{
		ID:         e.RowKey,
		TaskID:     e.PartitionKey,
		Text:       e.Comment,
		Author:     e.User,
		AuthorName: e.Name,
	}
}

// CreateTask inserts a new task owned by the given identity. Text emptiness
// is validated by the caller before invocation.
func (s *Storage) CreateTask(ctx context.Context, owner, text string, public bool) (domain.Task, error) {
	ent := taskEntity{
		Entity:  aztables.Entity{PartitionKey: owner, RowKey: uuid.NewString()},
		Task:    text,
		Public:  public,
		Created: time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Task{}, err
	}
	if _, err := s.taskTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Task{}, err
	}
	s.notify(ctx, owner)
	return ent.toTask(), nil
}

// FetchTasks retrieves all tasks for the provided owner, newest first.
func (s *Storage) FetchTasks(ctx context.Context, owner string) ([]domain.Task, error) {
	filter := filterEq("PartitionKey", owner)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, ent.toTask())
		}
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Created > tasks[j].Created })
	return tasks, nil
}

// GetPublicTask fetches one task by id. A private task and a missing one are
// both reported as domain.ErrTaskNotFound so direct references cannot probe
// for the existence of private tasks.
func (s *Storage) GetPublicTask(ctx context.Context, taskID string) (domain.Task, error) {
	ent, err := s.findTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if ent == nil || !ent.Public {
		return domain.Task{}, domain.ErrTaskNotFound
	}
	return ent.toTask(), nil
}

// DeleteTaskCascade removes the task and, best effort, every comment
// referencing it. The task must belong to the actor. The task deletion is
// never rolled back by comment cleanup failures; those are logged one by
// one, and the task id is enqueued for the sweeper to retry. Deleting an
// already-deleted task succeeds.
func (s *Storage) DeleteTaskCascade(ctx context.Context, actor, taskID string) error {
	ent, err := s.findTask(ctx, taskID)
	if err != nil {
		return err
	}
	if ent == nil {
		return nil
	}
	if ent.PartitionKey != actor {
		return domain.ErrForbidden
	}
	if _, err := s.taskTable.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isNotFound(err) {
		return err
	}
	s.notify(ctx, actor)

	if failed := s.deleteComments(ctx, taskID); failed {
		if err := s.EnqueueSweep(ctx, taskID); err != nil {
			log.WithFields(log.Fields{"taskId": taskID}).Errorf("enqueue sweep: %v", err)
		}
	}
	return nil
}

// deleteComments removes every comment in the task's partition and reports
// whether any deletion failed.
func (s *Storage) deleteComments(ctx context.Context, taskID string) bool {
	filter := filterEq("PartitionKey", taskID)
	pager := s.commentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	failed := false
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			log.WithFields(log.Fields{"taskId": taskID}).Errorf("list comments for cascade: %v", err)
			return true
		}
		for _, e := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				log.WithFields(log.Fields{"taskId": taskID}).Errorf("decode comment: %v", err)
				failed = true
				continue
			}
			if _, err := s.commentTable.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isNotFound(err) {
				log.WithFields(log.Fields{"taskId": taskID, "commentId": ent.RowKey}).Errorf("delete comment: %v", err)
				failed = true
			}
		}
	}
	return failed
}

// CreateComment inserts a comment on a public task. The parent must exist
// and be public; text emptiness is validated by the caller.
func (s *Storage) CreateComment(ctx context.Context, author domain.Identity, taskID, text string) (domain.Comment, error) {
	if _, err := s.GetPublicTask(ctx, taskID); err != nil {
		return domain.Comment{}, err
	}
	ent := commentEntity{
		Entity:  aztables.Entity{PartitionKey: taskID, RowKey: uuid.NewString()},
		Comment: text,
		User:    author.Email,
		Name:    author.Name,
	}
	data, err := json.Marshal(ent)
	if err != nil {
		return domain.Comment{}, err
	}
	if _, err := s.commentTable.AddEntity(ctx, data, nil); err != nil {
		return domain.Comment{}, err
	}
	return ent.toComment(), nil
}

// FetchComments retrieves all comments for a public task. The result keeps
// the store's row-key order; comments carry no exposed timestamp to sort by.
func (s *Storage) FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	if _, err := s.GetPublicTask(ctx, taskID); err != nil {
		return nil, err
	}
	filter := filterEq("PartitionKey", taskID)
	pager := s.commentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	comments := []domain.Comment{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			comments = append(comments, ent.toComment())
		}
	}
	return comments, nil
}

// DeleteComment removes one comment by id. Only the author may delete it;
// deleting an already-deleted comment succeeds.
func (s *Storage) DeleteComment(ctx context.Context, actor, commentID string) error {
	filter := filterEq("RowKey", commentID)
	pager := s.commentTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			var ent commentEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return err
			}
			if ent.User != actor {
				return domain.ErrForbidden
			}
			if _, err := s.commentTable.DeleteEntity(ctx, ent.PartitionKey, ent.RowKey, nil); err != nil && !isNotFound(err) {
				return err
			}
			return nil
		}
	}
	return nil
}

// CountTasks returns the total number of stored tasks.
func (s *Storage) CountTasks(ctx context.Context) (int, error) {
	return countEntities(ctx, s.taskTable)
}

// CountComments returns the total number of stored comments.
func (s *Storage) CountComments(ctx context.Context) (int, error) {
	return countEntities(ctx, s.commentTable)
}

// FetchStats returns the aggregate counts shown on the landing page.
func (s *Storage) FetchStats(ctx context.Context) (domain.Stats, error) {
	tasks, err := s.CountTasks(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	comments, err := s.CountComments(ctx)
	if err != nil {
		return domain.Stats{}, err
	}
	return domain.Stats{Posts: tasks, Comments: comments}, nil
}

func countEntities(ctx context.Context, table tableClient) (int, error) {
	sel := "PartitionKey"
	pager := table.NewListEntitiesPager(&aztables.ListEntitiesOptions{Select: &sel})
	count := 0
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		count += len(resp.Entities)
	}
	return count, nil
}

// findTask locates a task by row key across owner partitions. It returns nil
// without error when the task does not exist.
func (s *Storage) findTask(ctx context.Context, taskID string) (*taskEntity, error) {
	filter := filterEq("RowKey", taskID)
	pager := s.taskTable.NewListEntitiesPager(&aztables.ListEntitiesOptions{Filter: &filter})
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			return &ent, nil
		}
	}
	return nil, nil
}

func (s *Storage) notify(ctx context.Context, owner string) {
	if s.updates == nil {
		return
	}
	s.updates.Publish(ctx, owner)
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
