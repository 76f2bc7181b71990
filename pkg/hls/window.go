package hls

import (
	"fmt"
	"os"
	"time"
)

// Window is the ordered sequence of finalized segments, append-only and
// FIFO-evicted, grounded on the teacher's muxerStreamPlaylist
// (pkg/video/hls/muxer_stream_playlist.go) push/evict bookkeeping,
// generalized from a fixed segment-count cap to a total-duration cap.
type Window struct {
	segments []*Segment
	expired  []*Segment // evicted but not yet unlinked
}

// NewWindow allocates an empty Window.
func NewWindow() *Window { return &Window{} }

// Append adds a newly-finalized segment to the back of the window.
func (w *Window) Append(s *Segment) {
	w.segments = append(w.segments, s)
}

// Size returns the number of segments currently in the window.
func (w *Window) Size() int { return len(w.segments) }

// Empty reports whether the window holds no segments.
func (w *Window) Empty() bool { return len(w.segments) == 0 }

// First returns the oldest segment in the window, or nil if empty.
func (w *Window) First() *Segment {
	if len(w.segments) == 0 {
		return nil
	}
	return w.segments[0]
}

// At returns the i'th segment in sequence order.
func (w *Window) At(i int) *Segment { return w.segments[i] }

// All returns every segment currently in the window, in order.
func (w *Window) All() []*Segment { return w.segments }

// MaxDuration returns the largest segment duration currently held.
func (w *Window) MaxDuration() time.Duration {
	var max time.Duration
	for _, s := range w.segments {
		if s.Duration > max {
			max = s.Duration
		}
	}
	return max
}

// Shrink evicts from the front while the total duration of the
// remaining segments exceeds cap and at least two segments remain —
// the window always keeps at least one segment, even if that segment's
// own duration alone exceeds cap (see DESIGN.md Open Questions: this is
// an explicit, intentional deviation from a naive "shrink below cap"
// reading of hls_window).
func (w *Window) Shrink(cap time.Duration) {
	for len(w.segments) >= 2 && w.totalDuration() > cap {
		evicted := w.segments[0]
		w.segments = w.segments[1:]
		w.expired = append(w.expired, evicted)
	}
}

func (w *Window) totalDuration() time.Duration {
	var total time.Duration
	for _, s := range w.segments {
		total += s.Duration
	}
	return total
}

// ClearExpired unlinks the files of segments evicted since the last
// call (if unlink is true) and always drops the references.
func (w *Window) ClearExpired(unlink bool) error {
	var firstErr error
	for _, s := range w.expired {
		if unlink {
			if err := os.Remove(s.FinalPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
				firstErr = fmt.Errorf("unlink expired segment %s: %w", s.FinalPath, err)
			}
		}
	}
	w.expired = nil
	if firstErr != nil {
		return firstErr
	}
	return nil
}

// Dispose unlinks every segment file in the window regardless of the
// cleanup flag, and drops all references; used by the controller's
// idle-disposal policy.
func (w *Window) Dispose() error {
	var firstErr error
	for _, s := range w.segments {
		if err := os.Remove(s.FinalPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("unlink segment %s: %w", s.FinalPath, err)
		}
	}
	for _, s := range w.expired {
		if err := os.Remove(s.FinalPath); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("unlink expired segment %s: %w", s.FinalPath, err)
		}
	}
	w.segments = nil
	w.expired = nil
	return firstErr
}
