// Package hls implements the live HLS muxer core: segment lifecycle,
// floor-mode drift accounting, key rotation and playlist generation.
// Grounded on the teacher's pkg/video/hls package (muxer.go, segment.go,
// segmenter.go, muxer_stream_playlist.go), adapted from LL-HLS fMP4
// parts to classic MPEG-TS fragments per this module's Non-goals.
package hls

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"livehls/pkg/config"
	"livehls/pkg/frame"
	"livehls/pkg/hlserrors"
	"livehls/pkg/logging"
)

// HookTask is what the Muxer hands to the controller's injected
// enqueue callback after an accepted segment_close; the HookDispatcher
// (pkg/hooks) is the actual consumer.
type HookTask struct {
	Vhost, App, Stream string
	FinalPath          string
	TSUri              string
	M3U8Path           string
	M3U8Uri            string
	SequenceNo         uint64
	Duration           time.Duration
}

// EnqueueFunc hands a finalized segment's hook task off to the async
// worker; it must never block the ingest path.
type EnqueueFunc func(HookTask)

// Muxer owns the current segment, the segment window, key rotation and
// playlist generation for one published stream.
type Muxer struct {
	mu sync.Mutex

	cfg     config.Vhost
	logf    logging.Func
	enqueue EnqueueFunc

	vhost, app, stream string

	window     *Window
	keyManager *KeyManager
	floor      FloorState

	current      *Segment
	nextSeq      uint64
	latestAcodec frame.AudioCodec
	videoCodec   frame.VideoCodec

	publishedAt time.Time
}

// NewMuxer allocates a Muxer; call UpdateConfig then SegmentOpen before
// writing any frames, matching the Controller's on_publish sequencing.
func NewMuxer(vhost, app, stream string, logf logging.Func, enqueue EnqueueFunc) *Muxer {
	return &Muxer{
		vhost:   vhost,
		app:     app,
		stream:  stream,
		logf:    logf,
		enqueue: enqueue,
		window:  NewWindow(),
	}
}

// OnPublish resets floor drift state, the sequence counter and the
// observed audio codec for a new publish session; the key manager is
// rebuilt by UpdateConfig.
func (m *Muxer) OnPublish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.floor.Reset()
	m.nextSeq = 0
	m.latestAcodec = frame.AudioDisabled
	m.publishedAt = time.Now()
}

// UpdateConfig installs cfg (immutable until the next on_publish or an
// explicit reload) and (re)builds the key manager from it.
func (m *Muxer) UpdateConfig(cfg config.Vhost) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cfg = cfg
	m.keyManager = NewKeyManager(cfg.Keys, cfg.FragmentsPerKey, cfg.KeyFilePath, cfg.KeyFile)

	switch cfg.Vcodec {
	case config.VideoH264:
		m.videoCodec = frame.VideoH264
	default:
		m.videoCodec = frame.VideoDisabled
	}
}

// LatestAcodec returns the most recently observed audio codec.
func (m *Muxer) LatestAcodec() frame.AudioCodec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latestAcodec
}

// SetLatestAcodec records the audio codec actually observed on the
// wire; on the next SegmentOpen it overrides the configured default,
// and it retargets the writer of any currently-open segment in place.
func (m *Muxer) SetLatestAcodec(codec frame.AudioCodec) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.latestAcodec = codec
	if m.current != nil && m.current.writer != nil {
		m.current.writer.SetAcodec(codec)
	}
}

// MarkDiscontinuity marks the current open segment as the start of a
// discontinuity boundary; the next playlist refresh emits
// #EXT-X-DISCONTINUITY preceding its line once it is finalized.
func (m *Muxer) MarkDiscontinuity() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.IsDiscontinuity = true
	}
}

func (m *Muxer) defaultAudioCodec() frame.AudioCodec {
	if m.latestAcodec != frame.AudioDisabled {
		return m.latestAcodec
	}
	switch m.cfg.Acodec {
	case config.AudioAAC:
		return frame.AudioAAC
	case config.AudioMP3:
		return frame.AudioMP3
	default:
		return frame.AudioDisabled
	}
}

// SegmentOpen opens a new current segment. Open-while-open is a no-op
// with a warning — it must never double-open (spec.md §4.2).
func (m *Muxer) SegmentOpen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.segmentOpenLocked()
}

func (m *Muxer) segmentOpenLocked() error {
	if m.current != nil {
		m.logf(logging.LevelWarn, "muxer", m.stream, "segment_open called while a segment is already open")
		return nil
	}

	seq := m.nextSeq
	now := time.Now()

	var acceptFloorTs int64
	if m.cfg.TSFloor {
		fragMs := m.cfg.Fragment.Milliseconds()
		if fragMs <= 0 {
			fragMs = 1
		}
		currentFloorTs := now.UnixMilli() / fragMs
		reanchored, dupOrJump := m.floor.Advance(currentFloorTs)
		if reanchored {
			m.logf(logging.LevelWarn, "muxer", m.stream, "floor drift exceeded threshold, re-anchoring")
		}
		if dupOrJump {
			m.logf(logging.LevelWarn, "muxer", m.stream, "floor timestamp dup/jump detected")
		}
		acceptFloorTs = m.floor.AcceptFloorTs()
	}

	relPath := resolveTSPath(m.cfg.TSFile, m.vhost, m.app, m.stream, m.cfg.TSFloor, acceptFloorTs, now, seq)
	tmpPath := filepath.Join(m.cfg.Path, relPath+".tmp")

	var key *KeySlot
	var iv [16]byte
	var keyURI string
	if m.keyManager != nil && m.keyManager.Enabled() {
		var err error
		key, iv, keyURI, err = m.keyManager.Prepare(seq, m.vhost, m.app, m.stream)
		if err != nil {
			return hlserrors.Wrap(hlserrors.KindCrypto, "segment_open: key rotation", err)
		}
	}

	seg, err := openSegment(tmpPath, key, iv, m.defaultAudioCodec(), m.videoCodec)
	if err != nil {
		return hlserrors.Wrap(hlserrors.KindIO, "segment_open", err)
	}

	seg.SequenceNo = seq
	// if hls_key_url is unset, the playlist references the key by its
	// resolved filename alone, matching the original's "if key_url is
	// not set, only use the file name" fallback.
	if key != nil {
		seg.KeyURI = m.cfg.KeyURL + keyURI
	}
	m.current = seg
	m.nextSeq++

	return nil
}

// SegmentClose finalizes (or rejects) the current segment. The current
// slot is always cleared, even on error (spec.md §4.2, §7).
func (m *Muxer) SegmentClose() error {
	m.mu.Lock()
	seg := m.current
	m.current = nil
	m.mu.Unlock()

	if seg == nil {
		m.logf(logging.LevelWarn, "muxer", m.stream, "segment_close called with no open segment")
		return nil
	}

	maxTD := m.cfg.MaxTD()
	ok := seg.Duration >= MinDuration && seg.Duration <= maxTD*3

	if !ok {
		if err := seg.discard(); err != nil {
			m.logf(logging.LevelWarn, "muxer", m.stream, "failed to discard rejected segment: %v", err)
		}
		m.mu.Lock()
		m.nextSeq--
		m.mu.Unlock()
		m.logf(logging.LevelDebug, "muxer", m.stream, "segment %d rejected: duration %s out of bounds", seg.SequenceNo, seg.Duration)
		return nil
	}

	finalRel := resolveDuration(tsURIForSeq(m, seg), seg.Duration)
	finalPath := filepath.Join(m.cfg.Path, finalRel)
	uri := playlistURI(finalPath, filepath.Dir(filepath.Join(m.cfg.Path, m.cfg.M3U8File))+"/", m.cfg.EntryPrefix)

	if err := seg.finalize(finalPath, uri); err != nil {
		return hlserrors.Wrap(hlserrors.KindIO, "segment_close: finalize", err)
	}

	m.mu.Lock()
	m.window.Append(seg)
	m.window.Shrink(m.cfg.Window)
	playlistErr := m.rewritePlaylistLocked()
	m.mu.Unlock()

	if m.enqueue != nil {
		m.enqueue(HookTask{
			Vhost: m.vhost, App: m.app, Stream: m.stream,
			FinalPath: seg.FinalPath, TSUri: seg.URI,
			M3U8Path: filepath.Join(m.cfg.Path, m.cfg.M3U8File),
			M3U8Uri:  m.cfg.M3U8File,
			SequenceNo: seg.SequenceNo, Duration: seg.Duration,
		})
	}

	m.mu.Lock()
	err := m.window.ClearExpired(m.cfg.Cleanup)
	m.mu.Unlock()
	if err != nil {
		m.logf(logging.LevelWarn, "muxer", m.stream, "failed to unlink expired segment: %v", err)
	}

	if playlistErr != nil {
		return hlserrors.Wrap(hlserrors.KindIO, "segment_close: playlist rewrite", playlistErr)
	}
	return nil
}

// tsURIForSeq recomputes the resolved relative path for seg (before the
// [duration] substitution), so SegmentClose doesn't need SegmentOpen to
// stash it.
func tsURIForSeq(m *Muxer, seg *Segment) string {
	// tmpPath was relPath+".tmp"; strip the .tmp suffix back off.
	rel := seg.TmpPath[len(m.cfg.Path)+1:]
	return rel[:len(rel)-len(".tmp")]
}

func (m *Muxer) rewritePlaylistLocked() error {
	m3u8Path := filepath.Join(m.cfg.Path, m.cfg.M3U8File)
	return writePlaylist(m3u8Path, m.window, m.cfg.MaxTD())
}

// Reap closes the current segment, opens a new one, then invokes
// flushVideo and flushAudio (in that order) so the new fragment starts
// with audio after video, matching iOS player expectations — the exact
// ordering spec.md §4.2's reap_segment protocol requires. If close
// fails, open is still attempted so the next frame has somewhere to go,
// and the close error is what's returned.
func (m *Muxer) Reap(flushVideo, flushAudio func() error) error {
	closeErr := m.SegmentClose()

	if err := m.SegmentOpen(); err != nil {
		if closeErr != nil {
			return closeErr
		}
		return err
	}

	if flushVideo != nil {
		if err := flushVideo(); err != nil {
			return err
		}
	}
	if flushAudio != nil {
		if err := flushAudio(); err != nil {
			return err
		}
	}

	return closeErr
}

// deviationBonus is floor_mode ? 0.3 * deviation_ts * hls_fragment : 0.
func (m *Muxer) deviationBonus() time.Duration {
	if !m.cfg.TSFloor {
		return 0
	}
	return time.Duration(0.3 * float64(m.floor.DeviationTs()) * float64(m.cfg.Fragment))
}

// IsSegmentOverflow implements is_segment_overflow(), used on video
// frames: false if duration < 2*MinDuration, else duration >= max_td +
// deviation_bonus.
func (m *Muxer) IsSegmentOverflow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	if m.current.Duration < 2*MinDuration {
		return false
	}
	return m.current.Duration >= m.cfg.MaxTD()+m.deviationBonus()
}

// IsSegmentAbsolutelyOverflow implements is_segment_absolutely_overflow(),
// used on audio frames for pure-audio streams: same min-guard, but the
// threshold is aof_ratio * hls_fragment + deviation_bonus.
func (m *Muxer) IsSegmentAbsolutelyOverflow() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return false
	}
	if m.current.Duration < 2*MinDuration {
		return false
	}
	threshold := time.Duration(m.cfg.AofRatio*float64(m.cfg.Fragment)) + m.deviationBonus()
	return m.current.Duration >= threshold
}

// WriteVideo writes one H.264 access unit to the current segment.
func (m *Muxer) WriteVideo(dtsUnits, ptsUnits int64, idrPresent bool, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return hlserrors.Wrap(hlserrors.KindReentrancy, "write_video", errors.New("no open segment"))
	}
	if err := m.current.writer.WriteVideo(dtsUnits, ptsUnits, idrPresent, payload); err != nil {
		return hlserrors.Wrap(hlserrors.KindIO, "write_video", err)
	}
	m.current.recordDTS(dtsUnits)
	return nil
}

// WriteAudio writes one AAC/MP3 access unit to the current segment.
func (m *Muxer) WriteAudio(ptsUnits int64, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return hlserrors.Wrap(hlserrors.KindReentrancy, "write_audio", errors.New("no open segment"))
	}
	if err := m.current.writer.WriteAudio(ptsUnits, payload); err != nil {
		return hlserrors.Wrap(hlserrors.KindIO, "write_audio", err)
	}
	m.current.recordDTS(ptsUnits)
	return nil
}

// VideoCodecDisabled reports whether this vhost is configured for
// audio-only output (hls_vcodec=vn), used by the controller to decide
// between is_segment_overflow and is_segment_absolutely_overflow.
func (m *Muxer) VideoCodecDisabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.videoCodec == frame.VideoDisabled
}

// WaitKeyframe reports the configured wait_keyframe policy.
func (m *Muxer) WaitKeyframe() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.WaitKeyframe
}

// Dispose force-unlinks every segment file and the playlist, regardless
// of the cleanup flag, and discards any open segment — used by the
// controller's idle-disposal policy (hls_dispose).
func (m *Muxer) Dispose() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	if m.current != nil {
		if err := m.current.discard(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.current = nil
	}
	if err := m.window.Dispose(); err != nil && firstErr == nil {
		firstErr = err
	}

	m3u8Path := filepath.Join(m.cfg.Path, m.cfg.M3U8File)
	if err := removeIfExists(m3u8Path); err != nil && firstErr == nil {
		firstErr = err
	}

	if firstErr != nil {
		return fmt.Errorf("dispose: %w", firstErr)
	}
	return nil
}

// WindowSize exposes the current window size, for tests and status reporting.
func (m *Muxer) WindowSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.window.Size()
}
