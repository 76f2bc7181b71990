package hls

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRenderPlaylistBasic(t *testing.T) {
	w := NewWindow()
	w.Append(&Segment{SequenceNo: 0, Duration: 10 * time.Second, URI: "cam1-0.ts"})
	w.Append(&Segment{SequenceNo: 1, Duration: 10 * time.Second, URI: "cam1-1.ts"})
	w.Append(&Segment{SequenceNo: 2, Duration: 9800 * time.Millisecond, URI: "cam1-2.ts"})

	out := renderPlaylist(w, 15*time.Second)

	require.True(t, strings.HasPrefix(out, "#EXTM3U\n"))
	require.Contains(t, out, "#EXT-X-MEDIA-SEQUENCE:0\n")
	require.Contains(t, out, "#EXT-X-TARGETDURATION:15\n")
	require.Contains(t, out, "#EXTINF:10.000,\ncam1-0.ts\n")
	require.Contains(t, out, "#EXTINF:9.800,\ncam1-2.ts\n")
	require.NotContains(t, out, "#EXT-X-KEY")
	require.NotContains(t, out, "#EXT-X-DISCONTINUITY")
}

func TestRenderPlaylistDiscontinuity(t *testing.T) {
	w := NewWindow()
	w.Append(&Segment{SequenceNo: 0, Duration: 10 * time.Second, URI: "cam1-0.ts"})
	w.Append(&Segment{SequenceNo: 1, Duration: 10 * time.Second, URI: "cam1-1.ts", IsDiscontinuity: true})

	out := renderPlaylist(w, 15*time.Second)

	idx := strings.Index(out, "#EXT-X-DISCONTINUITY")
	require.GreaterOrEqual(t, idx, 0)
	require.True(t, strings.Index(out, "cam1-1.ts") > idx)
}

func TestRenderPlaylistKeyTagsOnGroupBoundaries(t *testing.T) {
	w := NewWindow()
	key0 := &KeySlot{SequenceNo: 0}
	key3 := &KeySlot{SequenceNo: 3}

	w.Append(&Segment{SequenceNo: 0, Duration: 2 * time.Second, URI: "cam1-0.ts", Key: key0, IV: [16]byte{1}, KeyURI: "/hls/cam1-0.key"})
	w.Append(&Segment{SequenceNo: 1, Duration: 2 * time.Second, URI: "cam1-1.ts", Key: key0, IV: [16]byte{2}, KeyURI: "/hls/cam1-0.key"})
	w.Append(&Segment{SequenceNo: 2, Duration: 2 * time.Second, URI: "cam1-2.ts", Key: key0, IV: [16]byte{3}, KeyURI: "/hls/cam1-0.key"})
	w.Append(&Segment{SequenceNo: 3, Duration: 2 * time.Second, URI: "cam1-3.ts", Key: key3, IV: [16]byte{4}, KeyURI: "/hls/cam1-3.key"})

	out := renderPlaylist(w, 2*time.Second)

	require.Equal(t, 2, strings.Count(out, "#EXT-X-KEY"))
	require.Contains(t, out, `URI="/hls/cam1-0.key"`)
	require.Contains(t, out, `URI="/hls/cam1-3.key"`, "each rotation group must reference its own resolved key URI")
}

func TestTargetDurationSecondsUsesLarger(t *testing.T) {
	w := NewWindow()
	w.Append(&Segment{SequenceNo: 0, Duration: 9500 * time.Millisecond})

	require.Equal(t, uint64(15), targetDurationSeconds(w, 15*time.Second))
	require.Equal(t, uint64(10), targetDurationSeconds(w, 5*time.Second))
}
