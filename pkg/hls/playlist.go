package hls

import (
	"encoding/hex"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// writePlaylist rewrites path atomically: write to path+".temp", then
// rename over path. On any write error the temp file is removed so a
// reader never observes a truncated playlist (spec.md §4.2).
func writePlaylist(path string, window *Window, maxTD time.Duration) error {
	content := renderPlaylist(window, maxTD)

	tmp := path + ".temp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write playlist temp file: %w", err)
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename playlist into place: %w", err)
	}

	return nil
}

func renderPlaylist(window *Window, maxTD time.Duration) string {
	segments := window.All()

	var firstSeq uint64
	if len(segments) > 0 {
		firstSeq = segments[0].SequenceNo
	}

	target := targetDurationSeconds(window, maxTD)

	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:3\n")
	b.WriteString("#EXT-X-MEDIA-SEQUENCE:" + strconv.FormatUint(firstSeq, 10) + "\n")
	b.WriteString("#EXT-X-TARGETDURATION:" + strconv.FormatUint(target, 10) + "\n")

	var lastKeySeq uint64
	haveKey := false

	for _, s := range segments {
		if s.IsDiscontinuity {
			b.WriteString("#EXT-X-DISCONTINUITY\n")
		}

		if s.Key != nil && (!haveKey || lastKeySeq != s.Key.SequenceNo) {
			b.WriteString("#EXT-X-KEY:METHOD=AES-128,URI=\"" + s.KeyURI + "\",IV=0x" + hex.EncodeToString(s.IV[:]) + "\n")
			lastKeySeq = s.Key.SequenceNo
			haveKey = true
		}

		b.WriteString("#EXTINF:" + formatDuration(s.Duration) + ",\n")
		b.WriteString(s.URI + "\n")
	}

	return b.String()
}

// targetDurationSeconds is ceil(max(window_max_duration_ms, max_td_ms)/1000).
func targetDurationSeconds(window *Window, maxTD time.Duration) uint64 {
	maxMs := window.MaxDuration().Milliseconds()
	if maxTDMs := maxTD.Milliseconds(); maxTDMs > maxMs {
		maxMs = maxTDMs
	}
	return uint64(math.Ceil(float64(maxMs) / 1000))
}

func formatDuration(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink %s: %w", path, err)
	}
	return nil
}
