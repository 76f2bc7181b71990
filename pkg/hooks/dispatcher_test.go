package hooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livehls/pkg/logging"
)

func noopLog(logging.Level, string, string, string, ...interface{}) {}

func TestDispatcherPostsOnHLS(t *testing.T) {
	var mu sync.Mutex
	var bodies []map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		bodies = append(bodies, body)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(noopLog, []string{srv.URL}, nil, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.EnqueueOnHLS(OnHLSTask{Vhost: "default", App: "live", Stream: "cam1", SeqNo: 3})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(bodies) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "on_hls", bodies[0]["action"])
	require.Equal(t, "cam1", bodies[0]["stream"])
}

func TestDispatcherNbNotifyCapsURLs(t *testing.T) {
	var mu sync.Mutex
	hits := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits++
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New(noopLog, nil, []string{srv.URL, srv.URL, srv.URL}, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.EnqueueOnHLSNotify(OnHLSNotifyTask{Vhost: "default", App: "live", Stream: "cam1"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hits >= 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, hits)
}

func TestDispatcherQueueOverflowDropsOldest(t *testing.T) {
	d := New(noopLog, nil, nil, 0)
	// Never started: queue fills up without draining.
	for i := 0; i < queueCapacity+10; i++ {
		d.EnqueueOnHLS(OnHLSTask{SeqNo: uint64(i)})
	}
	require.Equal(t, queueCapacity, len(d.queue))
}
