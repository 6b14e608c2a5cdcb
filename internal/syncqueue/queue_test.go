package syncqueue

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/weatherdash/offline-proxy/internal/notify"
)

func queues(t *testing.T) map[string]Queue {
	t.Helper()
	sq, err := NewSQLiteQueue(filepath.Join(t.TempDir(), "queue", "sync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Queue{
		"memory": NewMemoryQueue(),
		"sqlite": sq,
	}
}

func TestQueue_EnqueueDrainRemove(t *testing.T) {
	ctx := context.Background()
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			first, err := q.Enqueue(ctx, NewRequestTask(RequestDescriptor{Method: "POST", URL: "/api/favorites", Body: `{"city":"Milan"}`}))
			require.NoError(t, err)
			_, err = q.Enqueue(ctx, NewNotificationTask(notify.Notification{Title: "Rain soon"}))
			require.NoError(t, err)
			second, err := q.Enqueue(ctx, NewRequestTask(RequestDescriptor{Method: "DELETE", URL: "/api/favorites/3"}))
			require.NoError(t, err)

			_, err = ulid.Parse(first.ID)
			assert.NoError(t, err, "task ids are ULIDs")
			assert.False(t, first.CreatedAt.IsZero())

			reqs, err := q.Drain(ctx, KindRequest)
			require.NoError(t, err)
			require.Len(t, reqs, 2)
			assert.Equal(t, first.ID, reqs[0].ID)
			assert.Equal(t, second.ID, reqs[1].ID)
			assert.Equal(t, `{"city":"Milan"}`, reqs[0].Request.Body)

			notes, err := q.Drain(ctx, KindNotification)
			require.NoError(t, err)
			require.Len(t, notes, 1)
			assert.Equal(t, "Rain soon", notes[0].Notification.Title)

			// draining does not consume
			again, err := q.Drain(ctx, KindRequest)
			require.NoError(t, err)
			assert.Len(t, again, 2)

			require.NoError(t, q.Remove(ctx, first.ID))
			reqs, err = q.Drain(ctx, KindRequest)
			require.NoError(t, err)
			require.Len(t, reqs, 1)
			assert.Equal(t, second.ID, reqs[0].ID)

			err = q.Remove(ctx, first.ID)
			assert.ErrorIs(t, err, ErrTaskNotFound)
		})
	}
}

func TestQueue_RejectsInvalidTasks(t *testing.T) {
	ctx := context.Background()
	for name, q := range queues(t) {
		t.Run(name, func(t *testing.T) {
			_, err := q.Enqueue(ctx, Task{Kind: KindRequest})
			assert.Error(t, err)
			_, err = q.Enqueue(ctx, Task{Kind: KindNotification})
			assert.Error(t, err)
			_, err = q.Enqueue(ctx, Task{Kind: "carrier-pigeon"})
			assert.Error(t, err)
		})
	}
}

func TestSQLiteQueue_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sync.db")

	q, err := NewSQLiteQueue(path)
	require.NoError(t, err)
	task, err := q.Enqueue(ctx, NewRequestTask(RequestDescriptor{Method: "PUT", URL: "/api/settings"}))
	require.NoError(t, err)
	require.NoError(t, q.Close())

	q2, err := NewSQLiteQueue(path)
	require.NoError(t, err)
	defer q2.Close()
	tasks, err := q2.Drain(ctx, KindRequest)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)
	assert.Equal(t, "/api/settings", tasks[0].Request.URL)
}

func TestRequestDescriptor_NewRequest(t *testing.T) {
	d := RequestDescriptor{
		Method:  "post",
		URL:     "http://proxy.local/api/favorites",
		Headers: map[string][]string{"Content-Type": {"application/json"}},
		Body:    `{"city":"Oslo"}`,
	}
	req, err := d.NewRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	body, _ := io.ReadAll(req.Body)
	assert.Equal(t, `{"city":"Oslo"}`, string(body))

	req, err = RequestDescriptor{URL: "/api/ping"}.NewRequest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)

	_, err = RequestDescriptor{Method: "GET", URL: "http://bad host/"}.NewRequest(context.Background())
	assert.Error(t, err)
}

func TestNewQueueFromConfig(t *testing.T) {
	q, err := NewQueueFromConfig("", "")
	require.NoError(t, err)
	_, ok := q.(*MemoryQueue)
	assert.True(t, ok)

	q, err = NewQueueFromConfig(BackendSQLite, filepath.Join(t.TempDir(), "q.db"))
	require.NoError(t, err)
	_, ok = q.(*SQLiteQueue)
	assert.True(t, ok)
	require.NoError(t, q.Close())

	_, err = NewQueueFromConfig(BackendSQLite, "")
	assert.Error(t, err)
	_, err = NewQueueFromConfig("kafka", "")
	assert.Error(t, err)
}
