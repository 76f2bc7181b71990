// Package statusfeed is a websocket fan-out of muxer lifecycle events
// (segment opened/closed, reload, dispose) for an operations dashboard.
// It is entirely passive: the ingest goroutine only ever does a
// non-blocking send into Feed's internal channel, never waits on a
// subscriber. Grounded on the teacher's pkg/web/routes.go Logs handler,
// generalized from one global log tail to per-viewer event fan-out.
package statusfeed

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Event is one muxer lifecycle notification.
type Event struct {
	Time       time.Time     `json:"time"`
	Stream     string        `json:"stream"`
	Kind       string        `json:"event"` // "segment_opened", "segment_closed", "reload", "dispose"
	SequenceNo uint64        `json:"seq,omitempty"`
	DurationMs int64         `json:"duration_ms,omitempty"`
}

const broadcastBuffer = 128

// Feed fans Events out to any number of websocket subscribers.
type Feed struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	publish chan Event
}

// New allocates a Feed and starts its internal fan-out goroutine.
func New() *Feed {
	f := &Feed{
		subs:    make(map[chan Event]struct{}),
		publish: make(chan Event, broadcastBuffer),
	}
	go f.run()
	return f
}

func (f *Feed) run() {
	for e := range f.publish {
		f.mu.Lock()
		for ch := range f.subs {
			select {
			case ch <- e:
			default: // slow subscriber, drop rather than block the feed
			}
		}
		f.mu.Unlock()
	}
}

// Publish sends e to every current subscriber, never blocking the
// caller (the ingest goroutine) beyond a buffered channel send.
func (f *Feed) Publish(e Event) {
	e.Time = time.Now()
	select {
	case f.publish <- e:
	default: // feed itself is backed up; drop rather than stall the caller
	}
}

func (f *Feed) subscribe() chan Event {
	ch := make(chan Event, 32)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *Feed) unsubscribe(ch chan Event) {
	f.mu.Lock()
	delete(f.subs, ch)
	f.mu.Unlock()
}

var upgrader = websocket.Upgrader{}

// Handler serves GET /status/ws, upgrading to a websocket and pushing
// one JSON line per Event until the connection closes.
func (f *Feed) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer conn.Close()

		ch := f.subscribe()
		defer f.unsubscribe(ch)

		for e := range ch {
			data, err := json.Marshal(e)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	})
}
