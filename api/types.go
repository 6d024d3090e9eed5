package api

import (
	"context"

	"tasksplus-api/domain"
)

// Store abstracts persistence for handlers.
type Store interface {
	CreateTask(ctx context.Context, owner, text string, public bool) (domain.Task, error)
	FetchTasks(ctx context.Context, owner string) ([]domain.Task, error)
	GetPublicTask(ctx context.Context, taskID string) (domain.Task, error)
	DeleteTaskCascade(ctx context.Context, actor, taskID string) error
	CreateComment(ctx context.Context, author domain.Identity, taskID, text string) (domain.Comment, error)
	FetchComments(ctx context.Context, taskID string) ([]domain.Comment, error)
	DeleteComment(ctx context.Context, actor, commentID string) error
	FetchStats(ctx context.Context) (domain.Stats, error)
}

// Authenticator is implemented by types able to extract identities from
// Authorization headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
}

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type createTaskRequest struct {
	Task   string `json:"task"`
	Public bool   `json:"public"`
}

type createCommentRequest struct {
	Comment string `json:"comment"`
}

type createdResponse struct {
	ID string `json:"id"`
}
