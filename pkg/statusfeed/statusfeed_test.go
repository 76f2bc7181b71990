package statusfeed

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestFeedPublishReachesWebsocketSubscriber(t *testing.T) {
	f := New()
	srv := httptest.NewServer(f.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// give the handler goroutine time to subscribe before publishing.
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.subs) == 1
	}, time.Second, 5*time.Millisecond)

	f.Publish(Event{Stream: "cam1", Kind: "segment_opened", SequenceNo: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Event
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, "cam1", got.Stream)
	require.Equal(t, "segment_opened", got.Kind)
	require.Equal(t, uint64(3), got.SequenceNo)
}

func TestFeedDropsForSlowSubscriberWithoutBlockingPublish(t *testing.T) {
	f := New()
	ch := f.subscribe()
	defer f.unsubscribe(ch)

	// fill the subscriber's buffer, then publish well past it: Publish
	// must never block even though nothing drains ch.
	done := make(chan struct{})
	go func() {
		for i := 0; i < broadcastBuffer+64; i++ {
			f.Publish(Event{Stream: "cam1", Kind: "segment_closed", SequenceNo: uint64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestUnsubscribeRemovesFromSubs(t *testing.T) {
	f := New()
	ch := f.subscribe()
	require.Len(t, f.subs, 1)
	f.unsubscribe(ch)
	require.Len(t, f.subs, 0)
}
