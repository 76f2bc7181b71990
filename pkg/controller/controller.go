// Package controller translates an inbound audio/video frame stream into
// muxer operations, handles reloads and the dispose-after-idle policy.
// Grounded on the teacher's pkg/video/hls_muxer.go publish/unpublish
// sequencing and its channel-driven worker lifecycle, generalized from
// RTMP shared messages to the frame.Audio/frame.Video value types.
package controller

import (
	"context"
	"sync"
	"time"

	"livehls/pkg/config"
	"livehls/pkg/diskguard"
	"livehls/pkg/frame"
	"livehls/pkg/framecache"
	"livehls/pkg/hls"
	"livehls/pkg/hlserrors"
	"livehls/pkg/hooks"
	"livehls/pkg/logging"
	"livehls/pkg/statusfeed"
)

// aacGuessTable implements spec.md §4.1.1's samples-per-frame guess,
// keyed by the upper bound of each Δt*sample_rate/1000 bucket.
var aacGuessTable = []struct {
	upperBound int64
	samples    int64
}{
	{960, 960},
	{1536, 1024},
	{3072, 2048},
}

const defaultAACGuessSamples = 4096

// guessAACSamples implements the table in spec.md §4.1.1.
func guessAACSamples(deltaMs int64, sampleRate int) int64 {
	if sampleRate <= 0 {
		return defaultAACGuessSamples
	}
	guess := deltaMs * int64(sampleRate) / 1000
	for _, row := range aacGuessTable {
		if guess < row.upperBound {
			return row.samples
		}
	}
	return defaultAACGuessSamples
}

// Hub is the minimal publisher-facing collaborator a Controller needs:
// issuing a playlist (re)request after a reload completes. It stands in
// for the original design's session/hub object.
type Hub interface {
	OnHLSRequestSH()
}

type noopHub struct{}

func (noopHub) OnHLSRequestSH() {}

// Controller owns one published stream's ingest lifecycle.
type Controller struct {
	mu sync.Mutex

	vhost, app, stream string

	cfgProvider config.Provider
	muxer       *hls.Muxer
	cache       *framecache.Cache
	dispatcher  *hooks.Dispatcher
	disk        diskguard.Checker
	feed        *statusfeed.Feed
	hub         Hub
	logf        logging.Func

	enabled      bool
	unpublishing bool
	reloading    bool
	reloadPending bool
	disposable   bool

	lastUpdate time.Time

	aacSamples     int64
	previousDTS    int64
	previousTSMs   int64
	haveAACHistory bool

	cfg config.Vhost
}

// Option configures optional Controller collaborators.
type Option func(*Controller)

// WithDiskGuard installs a disk-space preflight checker; defaults to a
// no-op checker if not supplied.
func WithDiskGuard(c diskguard.Checker) Option { return func(ctrl *Controller) { ctrl.disk = c } }

// WithStatusFeed installs a lifecycle-event sink.
func WithStatusFeed(f *statusfeed.Feed) Option { return func(ctrl *Controller) { ctrl.feed = f } }

// WithHub installs the playlist-(re)request collaborator triggered after
// async_reload completes.
func WithHub(h Hub) Option { return func(ctrl *Controller) { ctrl.hub = h } }

// New allocates a Controller for one vhost/app/stream, wiring a fresh
// Muxer underneath it; the HookDispatcher is created on each publish.
func New(vhost, app, stream string, cfgProvider config.Provider, logf logging.Func, opts ...Option) *Controller {
	ctrl := &Controller{
		vhost:       vhost,
		app:         app,
		stream:      stream,
		cfgProvider: cfgProvider,
		cache:       framecache.New(),
		logf:        logf,
		disk:        diskguard.NoopChecker{},
		hub:         noopHub{},
	}
	for _, opt := range opts {
		opt(ctrl)
	}

	ctrl.muxer = hls.NewMuxer(vhost, app, stream, logf, ctrl.enqueueHook)
	return ctrl
}

func (c *Controller) enqueueHook(t hls.HookTask) {
	if c.dispatcher == nil {
		return
	}
	c.dispatcher.EnqueueOnHLS(hooks.OnHLSTask{
		Vhost: t.Vhost, App: t.App, Stream: t.Stream,
		File: t.FinalPath, URL: t.TSUri,
		M3U8: t.M3U8Path, M3U8URL: t.M3U8Uri,
		SeqNo: t.SequenceNo, Duration: t.Duration,
	})
	c.dispatcher.EnqueueOnHLSNotify(hooks.OnHLSNotifyTask{
		Vhost: t.Vhost, App: t.App, Stream: t.Stream,
		TSUrl: t.TSUri,
	})
	if c.feed != nil {
		c.feed.Publish(statusfeed.Event{
			Stream: t.Stream, Kind: "segment_closed",
			SequenceNo: t.SequenceNo, DurationMs: t.Duration.Milliseconds(),
		})
	}
}

// OnPublish is idempotent when already enabled. It reads the vhost
// config, drives muxer.on_publish/update_config/segment_open in order,
// and starts the hook worker. ctx bounds the hook worker's lifetime.
func (c *Controller) OnPublish(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onPublishLocked(ctx)
}

// OnUnpublish is idempotent when not enabled, and guards against
// re-entry while already unpublishing. Flushes pending audio, closes the
// current segment, and stops the hook worker.
func (c *Controller) OnUnpublish() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onUnpublishLocked()
}

func (c *Controller) onUnpublishLocked() error {
	if !c.enabled || c.unpublishing {
		return nil
	}
	c.unpublishing = true
	defer func() { c.unpublishing = false }()

	c.flushCachedAudioLocked()

	closeErr := c.muxer.SegmentClose()

	if c.dispatcher != nil {
		c.dispatcher.Stop(5 * time.Second)
		c.dispatcher = nil
	}

	c.enabled = false
	return closeErr
}

// OnAudio ignores sequence headers (forwarding to OnSequenceHeader),
// drops non-AAC/MP3 frames, derives DTS per spec.md §4.1.1, caches the
// frame, and reaps on overflow.
func (c *Controller) OnAudio(a frame.Audio) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.unpublishing {
		return nil
	}
	c.maybeReloadLocked()

	if a.SequenceHeader {
		c.onSequenceHeaderLocked()
		return nil
	}
	if a.Codec != frame.AudioAAC && a.Codec != frame.AudioMP3 {
		return nil
	}

	c.lastUpdate = time.Now()
	c.muxer.SetLatestAcodec(a.Codec)

	var dts int64
	if a.Codec == frame.AudioAAC && !c.cfg.DtsDirectly {
		dts = c.deriveAACDTS(a)
	} else {
		dts = a.Timestamp * 90
	}

	c.cache.CacheAudio(a)

	if err := c.muxer.WriteAudio(dts, a.Payload); err != nil {
		if hlserrors.Is(err, hlserrors.KindReentrancy) {
			return nil
		}
		return err
	}
	c.cache.FlushAudio()

	if c.muxer.VideoCodecDisabled() && c.muxer.IsSegmentAbsolutelyOverflow() {
		return c.reapLocked()
	}
	return nil
}

// deriveAACDTS implements spec.md §4.1.1.
func (c *Controller) deriveAACDTS(a frame.Audio) int64 {
	if !c.haveAACHistory {
		c.previousTSMs = a.Timestamp
		c.previousDTS = 0
		c.aacSamples = 0
		c.haveAACHistory = true
	}

	deltaMs := a.Timestamp - c.previousTSMs
	if deltaMs < 0 {
		deltaMs = 0
	}
	samplesPerFrame := guessAACSamples(deltaMs, a.Desc.SampleRate)

	sampleRate := a.Desc.SampleRate
	if sampleRate <= 0 {
		sampleRate = 44100
	}

	dts := 90000 * c.aacSamples / int64(sampleRate)
	c.aacSamples += samplesPerFrame

	if c.previousDTS > a.Timestamp*90 {
		// jitter: source wall clock went backwards relative to derived DTS
		c.aacSamples = samplesPerFrame
		dts = 0
	}

	c.previousDTS = dts
	c.previousTSMs = a.Timestamp
	return dts
}

// OnVideo ignores enhanced-RTMP VideoInfoFrames, forwards sequence
// headers, drops non-H.264 frames, converts DTS to 90 kHz units, caches
// the frame, and reaps on overflow or keyframe-aligned boundaries.
func (c *Controller) OnVideo(v frame.Video) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.unpublishing {
		return nil
	}
	c.maybeReloadLocked()

	if v.IsVideoInfoFrame {
		return nil
	}
	if v.SequenceHeader {
		c.onSequenceHeaderLocked()
		return nil
	}
	if v.Codec != frame.VideoH264 {
		return nil
	}

	c.lastUpdate = time.Now()
	dts := v.Timestamp * 90
	pts := dts + v.CTS*90

	c.cache.CacheVideo(v)

	overflow := c.muxer.IsSegmentOverflow()
	waitKF := c.muxer.WaitKeyframe()
	idr := v.FrameType == frame.KeyFrame

	if overflow && (!waitKF || idr) {
		return c.reapLocked()
	}

	if err := c.muxer.WriteVideo(dts, pts, idr, v.Payload); err != nil {
		if hlserrors.Is(err, hlserrors.KindReentrancy) {
			return nil
		}
		return err
	}
	c.cache.FlushVideo()
	return nil
}

// OnSequenceHeader marks the current segment as the start of a
// discontinuity boundary.
func (c *Controller) OnSequenceHeader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSequenceHeaderLocked()
}

func (c *Controller) onSequenceHeaderLocked() {
	c.muxer.MarkDiscontinuity()
}

// flushCachedAudioLocked discards any audio frame left staged by a reap
// that was interrupted mid-flush; the normal path already writes and
// flushes the cache synchronously within OnAudio/reapLocked.
func (c *Controller) flushCachedAudioLocked() {
	c.cache.FlushAudio()
}

func (c *Controller) reapLocked() error {
	if err := c.disk.Check(c.cfg.Path); err != nil {
		c.logf(logging.LevelWarn, "controller", c.stream, "disk guard rejected segment_open: %v", err)
		return hlserrors.Wrap(hlserrors.KindIO, "reap: disk guard", err)
	}

	flushVideo := func() error {
		v, ok := c.cache.FlushVideo()
		if !ok {
			return nil
		}
		dts := v.Timestamp * 90
		pts := dts + v.CTS*90
		return c.muxer.WriteVideo(dts, pts, v.FrameType == frame.KeyFrame, v.Payload)
	}
	flushAudio := func() error {
		a, ok := c.cache.FlushAudio()
		if !ok {
			return nil
		}
		var dts int64
		if a.Codec == frame.AudioAAC && !c.cfg.DtsDirectly {
			dts = c.deriveAACDTS(a)
		} else {
			dts = a.Timestamp * 90
		}
		return c.muxer.WriteAudio(dts, a.Payload)
	}

	if c.feed != nil {
		c.feed.Publish(statusfeed.Event{Stream: c.stream, Kind: "segment_opened"})
	}
	return c.muxer.Reap(flushVideo, flushAudio)
}

// Cycle is called periodically; if idle longer than hls_dispose and
// disposable is still set, disposes segments and the playlist.
func (c *Controller) Cycle() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || !c.disposable {
		return nil
	}
	if c.cfg.Dispose <= 0 {
		return nil
	}
	if time.Since(c.lastUpdate) < c.cfg.Dispose {
		return nil
	}

	c.disposable = false
	if c.feed != nil {
		c.feed.Publish(statusfeed.Event{Stream: c.stream, Kind: "dispose"})
	}
	return c.muxer.Dispose()
}

// AsyncReload requests a reload; the next inbound frame performs
// on_unpublish; on_publish; hub.OnHLSRequestSH() under the reloading_
// guard, so frames arriving mid-reload are dropped rather than racing.
func (c *Controller) AsyncReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reloadPending = true
}

// maybeReloadLocked must be called with c.mu held; it runs the pending
// reload synchronously on the calling (ingest) goroutine, as spec.md §5
// requires (single-threaded cooperative pipeline).
func (c *Controller) maybeReloadLocked() {
	if !c.reloadPending || c.reloading {
		return
	}
	c.reloadPending = false
	c.reloading = true
	defer func() { c.reloading = false }()

	ctx := context.Background()
	_ = c.onUnpublishLocked()
	if err := c.onPublishLocked(ctx); err != nil {
		c.logf(logging.LevelError, "controller", c.stream, "async_reload: on_publish failed: %v", err)
		return
	}
	c.hub.OnHLSRequestSH()
	if c.feed != nil {
		c.feed.Publish(statusfeed.Event{Stream: c.stream, Kind: "reload"})
	}
}

// onPublishLocked is OnPublish's body, reentered from maybeReloadLocked
// which already holds c.mu.
func (c *Controller) onPublishLocked(ctx context.Context) error {
	if c.enabled {
		return nil
	}

	cfg, err := c.cfgProvider.Vhost(c.vhost, c.app)
	if err != nil {
		return hlserrors.Wrap(hlserrors.KindConfig, "on_publish: load config", err)
	}
	if err := cfg.Validate(); err != nil {
		return hlserrors.Wrap(hlserrors.KindConfig, "on_publish: validate config", err)
	}
	c.cfg = cfg

	c.muxer.OnPublish()
	c.muxer.UpdateConfig(cfg)

	c.dispatcher = hooks.New(c.logf, cfg.OnHLSHooks, cfg.OnHLSNotifyHooks, cfg.NbNotify)
	c.dispatcher.Start(ctx)

	if err := c.muxer.SegmentOpen(); err != nil {
		c.dispatcher.Stop(2 * time.Second)
		c.dispatcher = nil
		return err
	}

	c.enabled = true
	c.unpublishing = false
	c.disposable = true
	c.lastUpdate = time.Now()
	c.aacSamples = 0
	c.haveAACHistory = false
	return nil
}

// Enabled reports whether the controller currently considers the stream
// published.
func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}
