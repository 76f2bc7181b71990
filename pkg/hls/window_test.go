package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func seg(seq uint64, dur time.Duration) *Segment {
	return &Segment{SequenceNo: seq, Duration: dur, FinalPath: ""}
}

func TestWindowShrinkEvictsFromFront(t *testing.T) {
	w := NewWindow()
	w.Append(seg(0, 10*time.Second))
	w.Append(seg(1, 10*time.Second))
	w.Append(seg(2, 10*time.Second))

	w.Shrink(25 * time.Second)

	require.Equal(t, 2, w.Size())
	require.Equal(t, uint64(1), w.First().SequenceNo)
}

func TestWindowShrinkNeverEvictsLastSegment(t *testing.T) {
	w := NewWindow()
	w.Append(seg(0, 100*time.Second))

	w.Shrink(10 * time.Second)

	require.Equal(t, 1, w.Size())
}

func TestWindowMaxDuration(t *testing.T) {
	w := NewWindow()
	w.Append(seg(0, 5*time.Second))
	w.Append(seg(1, 12*time.Second))
	w.Append(seg(2, 7*time.Second))

	require.Equal(t, 12*time.Second, w.MaxDuration())
}

func TestWindowClearExpiredWithoutUnlink(t *testing.T) {
	w := NewWindow()
	w.Append(seg(0, 10*time.Second))
	w.Append(seg(1, 10*time.Second))
	w.Shrink(5 * time.Second)

	require.NoError(t, w.ClearExpired(false))
	require.Equal(t, 1, w.Size())
}
