package framecache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"livehls/pkg/frame"
)

func TestCacheAudioRoundTrip(t *testing.T) {
	c := New()
	require.False(t, c.HasAudio())

	c.CacheAudio(frame.Audio{Timestamp: 42})
	require.True(t, c.HasAudio())

	peeked, ok := c.PeekAudio()
	require.True(t, ok)
	require.Equal(t, int64(42), peeked.Timestamp)
	require.True(t, c.HasAudio(), "peek must not consume")

	flushed, ok := c.FlushAudio()
	require.True(t, ok)
	require.Equal(t, int64(42), flushed.Timestamp)
	require.False(t, c.HasAudio())

	_, ok = c.FlushAudio()
	require.False(t, ok)
}

func TestCacheVideoOverwritesPending(t *testing.T) {
	c := New()
	c.CacheVideo(frame.Video{Timestamp: 1})
	c.CacheVideo(frame.Video{Timestamp: 2})

	v, ok := c.FlushVideo()
	require.True(t, ok)
	require.Equal(t, int64(2), v.Timestamp)
}
