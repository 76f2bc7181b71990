// Package hooks implements the single-worker async queue that executes
// the on_hls / on_hls_notify HTTP hook callbacks off the ingest path,
// per spec.md §4.4. Grounded on the teacher's channel-driven worker
// loops (pkg/video/hls_muxer.go, pkg/video/hls_server.go) and its
// addons/doods2 HTTP-hook-calling style, generalized to a FIFO task
// queue instead of a single in-flight request.
package hooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"livehls/pkg/logging"
)

// queueCapacity bounds the pending-task queue; overflow drops the
// oldest task and logs, per spec.md §5 (never blocks the ingest path).
const queueCapacity = 256

// OnHLSTask carries a finalized segment's on_hls hook payload; the
// request identity is copied by value so the dispatcher can run well
// after the muxer has moved on.
type OnHLSTask struct {
	ContextID  string
	Vhost, App, Stream string
	File       string
	URL        string
	M3U8       string
	M3U8URL    string
	SeqNo      uint64
	Duration   time.Duration
}

// OnHLSNotifyTask carries the on_hls_notify hook payload.
type OnHLSNotifyTask struct {
	ContextID          string
	Vhost, App, Stream string
	TSUrl              string
}

type task struct {
	onHLS       *OnHLSTask
	onHLSNotify *OnHLSNotifyTask
}

// Dispatcher is a single background worker draining a FIFO queue of
// hook tasks. It holds no shared mutable state with the Muxer: every
// task is an immutable value snapshot.
type Dispatcher struct {
	logf    logging.Func
	client  *http.Client
	queue   chan task
	done    chan struct{}
	stop     chan struct{}
	stopOnce sync.Once

	onHLSURLs       []string
	onHLSNotifyURLs []string
	nbNotify        int
}

// New allocates a Dispatcher. Call Start to begin draining the queue.
func New(logf logging.Func, onHLSURLs, onHLSNotifyURLs []string, nbNotify int) *Dispatcher {
	return &Dispatcher{
		logf:            logf,
		client:          &http.Client{Timeout: 5 * time.Second},
		queue:           make(chan task, queueCapacity),
		done:            make(chan struct{}),
		stop:            make(chan struct{}),
		onHLSURLs:       onHLSURLs,
		onHLSNotifyURLs: onHLSNotifyURLs,
		nbNotify:        nbNotify,
	}
}

// Start runs the worker loop until ctx is canceled or Stop is called.
func (d *Dispatcher) Start(ctx context.Context) {
	go func() {
		defer close(d.done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stop:
				for {
					select {
					case t := <-d.queue:
						d.run(ctx, t)
					default:
						return
					}
				}
			case t := <-d.queue:
				d.run(ctx, t)
			}
		}
	}()
}

// Stop signals the worker to drain and wait, with a best-effort
// timeout so pending tasks never block forever (spec.md §5).
func (d *Dispatcher) Stop(timeout time.Duration) {
	d.stopOnce.Do(func() { close(d.stop) })
	select {
	case <-d.done:
	case <-time.After(timeout):
	}
}

// EnqueueOnHLS enqueues an on_hls task, assigning it a fresh context id.
// If the queue is full, the oldest queued task is dropped and logged.
func (d *Dispatcher) EnqueueOnHLS(t OnHLSTask) {
	t.ContextID = uuid.NewString()
	d.enqueue(task{onHLS: &t})
}

// EnqueueOnHLSNotify enqueues an on_hls_notify task.
func (d *Dispatcher) EnqueueOnHLSNotify(t OnHLSNotifyTask) {
	t.ContextID = uuid.NewString()
	d.enqueue(task{onHLSNotify: &t})
}

func (d *Dispatcher) enqueue(t task) {
	select {
	case d.queue <- t:
	default:
		select {
		case <-d.queue: // drop oldest
			d.logf(logging.LevelWarn, "hooks", "", "queue full, dropped oldest task")
		default:
		}
		select {
		case d.queue <- t:
		default:
			d.logf(logging.LevelWarn, "hooks", "", "queue full, dropped incoming task")
		}
	}
}

func (d *Dispatcher) run(ctx context.Context, t task) {
	switch {
	case t.onHLS != nil:
		for _, url := range d.onHLSURLs {
			if err := d.postOnHLS(ctx, url, *t.onHLS); err != nil {
				d.logf(logging.LevelError, "hooks", t.onHLS.Stream, "on_hls %s: %v", url, err)
			}
		}
	case t.onHLSNotify != nil:
		urls := d.onHLSNotifyURLs
		if d.nbNotify > 0 && len(urls) > d.nbNotify {
			urls = urls[:d.nbNotify]
		}
		for _, url := range urls {
			if err := d.postOnHLSNotify(ctx, url, *t.onHLSNotify); err != nil {
				d.logf(logging.LevelError, "hooks", t.onHLSNotify.Stream, "on_hls_notify %s: %v", url, err)
			}
		}
	}
}

func (d *Dispatcher) postOnHLS(ctx context.Context, url string, t OnHLSTask) error {
	body := map[string]interface{}{
		"action":   "on_hls",
		"client_id": t.ContextID,
		"vhost":    t.Vhost,
		"app":      t.App,
		"stream":   t.Stream,
		"file":     t.File,
		"url":      t.URL,
		"m3u8":     t.M3U8,
		"m3u8_url": t.M3U8URL,
		"seq_no":   t.SeqNo,
		"duration": t.Duration.Milliseconds(),
	}
	return d.post(ctx, url, body)
}

func (d *Dispatcher) postOnHLSNotify(ctx context.Context, url string, t OnHLSNotifyTask) error {
	body := map[string]interface{}{
		"action":    "on_hls_notify",
		"client_id": t.ContextID,
		"vhost":     t.Vhost,
		"app":       t.App,
		"stream":    t.Stream,
		"ts_url":    t.TSUrl,
	}
	return d.post(ctx, url, body)
}

func (d *Dispatcher) post(ctx context.Context, url string, body map[string]interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal hook body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build hook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("post hook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("hook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
