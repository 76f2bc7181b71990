package hls

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestResolveTemplate(t *testing.T) {
	got := resolveTemplate("[vhost]/[app]/[stream]-[seq].key", "live", "app1", "cam1", 7)
	require.Equal(t, "live/app1/cam1-7.key", got)
}

func TestResolveTSPathFloorMode(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 30, 45, 0, time.UTC)
	got := resolveTSPath("[vhost]/[app]/[stream]-[timestamp]-[seq].ts", "live", "app1", "cam1", true, 12345, now, 3)
	require.Equal(t, "live/app1/cam1-12345-3.ts", got)
}

func TestResolveTSPathNonFloorMode(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 30, 45, 0, time.UTC)
	got := resolveTSPath("[vhost]/[app]/[stream]-[timestamp]-[seq].ts", "live", "app1", "cam1", false, 12345, now, 3)
	// [timestamp] is left untouched outside floor mode.
	require.Equal(t, "live/app1/cam1-[timestamp]-3.ts", got)
}

func TestResolveTSPathTimeTokens(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 30, 45, 0, time.UTC)
	got := resolveTSPath("[year]-[month]-[day]_[hour][minute][second]-[seq].ts", "live", "app1", "cam1", false, 0, now, 5)
	require.Equal(t, "2026-07-31_103045-5.ts", got)
}

func TestResolveDuration(t *testing.T) {
	got := resolveDuration("cam1-3-[duration].ts", 10500*time.Millisecond)
	require.Equal(t, "cam1-3-10500.ts", got)
}

func TestPlaylistURI(t *testing.T) {
	// default empty entry_prefix: ts file and m3u8 share a directory, so
	// the uri is just the bare filename.
	got := playlistURI("/var/hls/live/app1/cam1-3.ts", "/var/hls/live/app1", "")
	require.Equal(t, "cam1-3.ts", got)
}

func TestPlaylistURIWithEntryPrefixEndingInSlash(t *testing.T) {
	got := playlistURI("/var/hls/live/app1/cam1-3.ts", "/var/hls/live/app1", "/hls/")
	require.Equal(t, "/hls/cam1-3.ts", got)
}

func TestPlaylistURIWithEntryPrefixWithoutTrailingSlash(t *testing.T) {
	got := playlistURI("/var/hls/live/app1/cam1-3.ts", "/var/hls/live/app1", "/hls")
	require.Equal(t, "/hlsapp1/cam1-3.ts", got)
}
