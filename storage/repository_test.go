package storage

import (
	"context"
	"errors"
	"testing"

	"tasksplus-api/domain"
)

func TestFetchTasksOwnerScoped(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	if _, err := store.CreateTask(ctx, "a@x.com", "buy milk", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateTask(ctx, "a@x.com", "walk dog", true); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateTask(ctx, "b@y.com", "other list", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := store.FetchTasks(ctx, "a@x.com")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks got %d", len(tasks))
	}
	for _, task := range tasks {
		if task.Owner != "a@x.com" {
			t.Fatalf("foreign task in list: %+v", task)
		}
	}
}

func TestFetchTasksApostropheOwner(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	owner := "o'brien@x.com"
	if _, err := store.CreateTask(ctx, owner, "buy milk", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	tasks, err := store.FetchTasks(ctx, owner)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(tasks) != 1 || tasks[0].Owner != owner {
		t.Fatalf("unexpected tasks %+v", tasks)
	}
}

func TestFilterEqEscapesQuotes(t *testing.T) {
	got := filterEq("RowKey", "x' or RowKey ne 'zzz")
	want := "RowKey eq 'x'' or RowKey ne ''zzz'"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := filterEq("PartitionKey", "o'brien@x.com"); got != "PartitionKey eq 'o''brien@x.com'" {
		t.Fatalf("got %q", got)
	}
}

func TestGetPublicTask(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	task, err := store.GetPublicTask(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if task.ID != created.ID || task.Text != "shareable" || !task.Public {
		t.Fatalf("unexpected task %+v", task)
	}
}

func TestGetPublicTaskPrivateNotFound(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "secret", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := store.GetPublicTask(ctx, created.ID); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for private task, got %v", err)
	}
	if _, err := store.GetPublicTask(ctx, "missing"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound for missing task, got %v", err)
	}
}

func TestFetchCommentsQuotedIDMatchesNothing(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	author := domain.Identity{Email: "b@y.com", Name: "B"}
	if _, err := store.CreateComment(ctx, author, created.ID, "nice"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	// A quote in the id must stay part of the value, not widen the lookup
	// into other rows.
	wide := created.ID + "' or RowKey ne 'zzz"
	if _, err := store.GetPublicTask(ctx, wide); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if _, err := store.FetchComments(ctx, wide); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
}

func TestDeleteTaskCascadeForbidden(t *testing.T) {
	store, tasks, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "mine", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := store.DeleteTaskCascade(ctx, "b@y.com", created.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if tasks.count() != 1 {
		t.Fatal("task deleted by non-owner")
	}
}

func TestDeleteTaskCascadeRemovesComments(t *testing.T) {
	store, tasks, comments, queue := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	author := domain.Identity{Email: "b@y.com", Name: "B"}
	for range [2]int{} {
		if _, err := store.CreateComment(ctx, author, created.ID, "nice"); err != nil {
			t.Fatalf("comment: %v", err)
		}
	}

	if err := store.DeleteTaskCascade(ctx, "a@x.com", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tasks.count() != 0 {
		t.Fatal("task still present")
	}
	if comments.count() != 0 {
		t.Fatal("comments survived the cascade")
	}
	if len(queue.enqueued()) != 0 {
		t.Fatalf("unexpected sweep messages %v", queue.enqueued())
	}
}

func TestDeleteTaskCascadeMissingTask(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	if err := store.DeleteTaskCascade(context.Background(), "a@x.com", "missing"); err != nil {
		t.Fatalf("expected nil for already-deleted task, got %v", err)
	}
}

func TestDeleteTaskCascadeEnqueuesSweepOnCommentFailure(t *testing.T) {
	store, tasks, comments, queue := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	author := domain.Identity{Email: "b@y.com", Name: "B"}
	if _, err := store.CreateComment(ctx, author, created.ID, "nice"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	comments.deleteErr = errors.New("table unavailable")

	if err := store.DeleteTaskCascade(ctx, "a@x.com", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if tasks.count() != 0 {
		t.Fatal("task deletion must not roll back on comment failures")
	}
	msgs := queue.enqueued()
	if len(msgs) != 1 || msgs[0] != `{"taskId":"`+created.ID+`"}` {
		t.Fatalf("unexpected sweep messages %v", msgs)
	}
}

func TestCreateCommentOnPrivateTask(t *testing.T) {
	store, _, comments, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "secret", false)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	author := domain.Identity{Email: "b@y.com", Name: "B"}
	if _, err := store.CreateComment(ctx, author, created.ID, "hi"); !errors.Is(err, domain.ErrTaskNotFound) {
		t.Fatalf("expected ErrTaskNotFound, got %v", err)
	}
	if comments.count() != 0 {
		t.Fatal("comment stored on private task")
	}
}

func TestCreateCommentStoresAuthor(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	author := domain.Identity{Email: "b@y.com", Name: "B"}
	if _, err := store.CreateComment(ctx, author, created.ID, "nice"); err != nil {
		t.Fatalf("comment: %v", err)
	}
	list, err := store.FetchComments(ctx, created.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 comment got %d", len(list))
	}
	if list[0].TaskID != created.ID || list[0].Text != "nice" || list[0].Author != "b@y.com" || list[0].AuthorName != "B" {
		t.Fatalf("unexpected comment %+v", list[0])
	}
}

func TestDeleteCommentAuthorOnly(t *testing.T) {
	store, _, comments, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	author := domain.Identity{Email: "b@y.com", Name: "B"}
	comment, err := store.CreateComment(ctx, author, created.ID, "nice")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}

	if err := store.DeleteComment(ctx, "c@z.com", comment.ID); !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if comments.count() != 1 {
		t.Fatal("comment deleted by non-author")
	}
	if err := store.DeleteComment(ctx, "b@y.com", comment.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if comments.count() != 0 {
		t.Fatal("comment still present")
	}
	if err := store.DeleteComment(ctx, "b@y.com", comment.ID); err != nil {
		t.Fatalf("expected nil for already-deleted comment, got %v", err)
	}
}

func TestFetchStatsCounts(t *testing.T) {
	store, _, _, _ := newFakeStorage()
	ctx := context.Background()
	created, err := store.CreateTask(ctx, "a@x.com", "shareable", true)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.CreateTask(ctx, "b@y.com", "secret", false); err != nil {
		t.Fatalf("create: %v", err)
	}
	author := domain.Identity{Email: "b@y.com", Name: "B"}
	if _, err := store.CreateComment(ctx, author, created.ID, "nice"); err != nil {
		t.Fatalf("comment: %v", err)
	}

	stats, err := store.FetchStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Posts != 2 || stats.Comments != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
