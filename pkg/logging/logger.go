// Package logging provides the structured, leveled logger shared by
// every package in this module. It follows the teacher's feed/subscribe
// shape (pkg/log): a single writer goroutine fans log entries out to
// any number of subscribers, one of which persists a bounded history to
// a bbolt bucket so an operator can inspect recent muxer activity after
// the fact.
package logging

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Level is a log severity, numbered like syslog/ffmpeg levels so it
// sorts the same way the teacher's pkg/log does.
type Level uint8

// Log levels.
const (
	LevelError Level = 16
	LevelWarn  Level = 24
	LevelInfo  Level = 32
	LevelDebug Level = 48
)

func (l Level) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "?"
	}
}

// Entry is one log record.
type Entry struct {
	Time   time.Time `json:"time"`
	Level  Level     `json:"level"`
	Src    string    `json:"src"`    // component, e.g. "muxer", "hooks"
	Stream string    `json:"stream"` // vhost/app/stream identity, optional
	Msg    string    `json:"msg"`
}

type feed chan Entry

// Func is the minimal logging surface components depend on, so tests
// can pass a closure instead of a full Logger.
type Func func(level Level, src, stream, format string, args ...interface{})

// Logger fans out log entries to subscribers; the zero value is not
// usable, build one with New.
type Logger struct {
	entries chan Entry
	sub     chan feed
	unsub   chan feed

	wg sync.WaitGroup
}

// New allocates a Logger. Call Start to begin the fan-out goroutine.
func New() *Logger {
	return &Logger{
		entries: make(chan Entry),
		sub:     make(chan feed),
		unsub:   make(chan feed),
	}
}

// Start runs the fan-out loop until ctx is canceled.
func (l *Logger) Start(ctx context.Context) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		subs := map[feed]struct{}{}
		for {
			select {
			case <-ctx.Done():
				for ch := range subs {
					close(ch)
				}
				return
			case ch := <-l.sub:
				subs[ch] = struct{}{}
			case ch := <-l.unsub:
				delete(subs, ch)
				close(ch)
			case e := <-l.entries:
				for ch := range subs {
					select {
					case ch <- e:
					default: // slow subscriber, drop rather than block the logger
					}
				}
			}
		}
	}()
}

// Wait blocks until Start's goroutine has exited.
func (l *Logger) Wait() { l.wg.Wait() }

// Subscribe returns a feed of log entries and a cancel func.
func (l *Logger) Subscribe() (<-chan Entry, func()) {
	ch := make(feed, 64)
	l.sub <- ch
	return ch, func() { l.unsub <- ch }
}

// Log records one entry. Never blocks the caller beyond handing the
// entry to the fan-out goroutine.
func (l *Logger) Log(level Level, src, stream, msg string) {
	l.entries <- Entry{Time: time.Now(), Level: level, Src: src, Stream: stream, Msg: msg}
}

// Logf is the formatted form of Log, and satisfies Func.
func (l *Logger) Logf(level Level, src, stream, format string, args ...interface{}) {
	l.Log(level, src, stream, fmt.Sprintf(format, args...))
}

// ToStdout prints every entry on the feed to stdout until ctx is done,
// mirroring the teacher's LogToStdout.
func (l *Logger) ToStdout(ctx context.Context) {
	feed, cancel := l.Subscribe()
	defer cancel()
	for {
		select {
		case e, ok := <-feed:
			if !ok {
				return
			}
			print(e)
		case <-ctx.Done():
			return
		}
	}
}

func print(e Entry) {
	var b strings.Builder
	b.WriteString("[" + e.Level.String() + "] ")
	if e.Stream != "" {
		b.WriteString(e.Stream + ": ")
	}
	if e.Src != "" {
		b.WriteString(e.Src + ": ")
	}
	b.WriteString(e.Msg)
	fmt.Println(b.String())
}

// BoltSink persists a bounded ring of recent entries to a bbolt bucket,
// adapted from the teacher's pkg/log/db.go (which did the equivalent
// with sqlite): instead of an unbounded audit log, it caps the bucket at
// maxEntries and evicts the oldest key first, since HLS lifecycle
// history only needs to cover roughly one hls_dispose window.
type BoltSink struct {
	db         *bolt.DB
	bucket     []byte
	maxEntries int
	seq        uint64
}

// NewBoltSink opens (creating if needed) the bucket used to persist log
// history inside an already-open bbolt database.
func NewBoltSink(db *bolt.DB, bucket string, maxEntries int) (*BoltSink, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create log bucket: %w", err)
	}
	return &BoltSink{db: db, bucket: []byte(bucket), maxEntries: maxEntries}, nil
}

// Run persists entries from feed until it closes.
func (s *BoltSink) Run(feed <-chan Entry) {
	for e := range feed {
		if err := s.save(e); err != nil {
			fmt.Printf("logging: could not persist entry: %v\n", err)
		}
	}
}

func (s *BoltSink) save(e Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(s.bucket)

		s.seq++
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, s.seq)

		data, err := json.Marshal(e)
		if err != nil {
			return err
		}
		if err := b.Put(key, data); err != nil {
			return err
		}

		return evictOldest(b, s.maxEntries)
	})
}

func evictOldest(b *bolt.Bucket, maxEntries int) error {
	if maxEntries <= 0 {
		return nil
	}
	if n := b.Stats().KeyN; n > maxEntries {
		c := b.Cursor()
		for i := 0; i < n-maxEntries; i++ {
			k, _ := c.First()
			if k == nil {
				break
			}
			if err := c.Delete(); err != nil {
				return err
			}
		}
	}
	return nil
}
