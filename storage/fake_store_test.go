package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// fakeTableClient is an in-memory tableClient. Filters are evaluated with
// the same quote decoding the service applies, so the repository tests see
// real scoping behavior instead of mock outcomes.
type fakeTableClient struct {
	mu        sync.Mutex
	rows      map[string][]byte
	deleteErr error
}

func newFakeTableClient() *fakeTableClient {
	return &fakeTableClient{rows: map[string][]byte{}}
}

type entityKeys struct {
	PartitionKey string `json:"PartitionKey"`
	RowKey       string `json:"RowKey"`
}

func (f *fakeTableClient) AddEntity(_ context.Context, entity []byte, _ *aztables.AddEntityOptions) (aztables.AddEntityResponse, error) {
	var keys entityKeys
	if err := json.Unmarshal(entity, &keys); err != nil {
		return aztables.AddEntityResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows[keys.PartitionKey+"\x00"+keys.RowKey] = append([]byte(nil), entity...)
	return aztables.AddEntityResponse{}, nil
}

func (f *fakeTableClient) DeleteEntity(_ context.Context, partitionKey, rowKey string, _ *aztables.DeleteEntityOptions) (aztables.DeleteEntityResponse, error) {
	if f.deleteErr != nil {
		return aztables.DeleteEntityResponse{}, f.deleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := partitionKey + "\x00" + rowKey
	if _, ok := f.rows[key]; !ok {
		return aztables.DeleteEntityResponse{}, &azcore.ResponseError{StatusCode: http.StatusNotFound}
	}
	delete(f.rows, key)
	return aztables.DeleteEntityResponse{}, nil
}

func (f *fakeTableClient) NewListEntitiesPager(o *aztables.ListEntitiesOptions) *runtime.Pager[aztables.ListEntitiesResponse] {
	var filter string
	if o != nil && o.Filter != nil {
		filter = *o.Filter
	}
	f.mu.Lock()
	entities := [][]byte{}
	for _, raw := range f.rows {
		if matchesEqFilter(raw, filter) {
			entities = append(entities, append([]byte(nil), raw...))
		}
	}
	f.mu.Unlock()
	page := aztables.ListEntitiesResponse{Entities: entities}
	return runtime.NewPager(runtime.PagingHandler[aztables.ListEntitiesResponse]{
		More: func(aztables.ListEntitiesResponse) bool { return false },
		Fetcher: func(context.Context, *aztables.ListEntitiesResponse) (aztables.ListEntitiesResponse, error) {
			return page, nil
		},
	})
}

func (f *fakeTableClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// matchesEqFilter evaluates the filter shapes the repositories emit:
// `PartitionKey eq '<v>'` and `RowKey eq '<v>'`, with `''` decoding to a
// literal single quote as the table service does.
func matchesEqFilter(raw []byte, filter string) bool {
	if filter == "" {
		return true
	}
	open := strings.Index(filter, " eq '")
	if open < 0 || !strings.HasSuffix(filter, "'") {
		return false
	}
	value := strings.ReplaceAll(filter[open+len(" eq '"):len(filter)-1], "''", "'")
	var keys entityKeys
	if err := json.Unmarshal(raw, &keys); err != nil {
		return false
	}
	switch filter[:open] {
	case "PartitionKey":
		return keys.PartitionKey == value
	case "RowKey":
		return keys.RowKey == value
	}
	return false
}

type fakeQueueClient struct {
	mu       sync.Mutex
	messages []string
}

func (f *fakeQueueClient) EnqueueMessage(_ context.Context, content string, _ *azqueue.EnqueueMessageOptions) (azqueue.EnqueueMessagesResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, content)
	return azqueue.EnqueueMessagesResponse{}, nil
}

func (f *fakeQueueClient) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.messages...)
}

func newFakeStorage() (*Storage, *fakeTableClient, *fakeTableClient, *fakeQueueClient) {
	tasks := newFakeTableClient()
	comments := newFakeTableClient()
	queue := &fakeQueueClient{}
	return &Storage{taskTable: tasks, commentTable: comments, sweepQueue: queue}, tasks, comments, queue
}
