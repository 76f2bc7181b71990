// Package framecache implements the one-audio-slot, one-video-slot
// staging buffer the controller uses to decide when to flush and when
// to reap, per spec.md §4 FrameCache.
package framecache

import "livehls/pkg/frame"

// Cache holds at most one pending audio and one pending video frame.
type Cache struct {
	audio   *frame.Audio
	video   *frame.Video
	hasAudio, hasVideo bool
}

// New allocates an empty Cache.
func New() *Cache { return &Cache{} }

// CacheAudio stages a for the next flush, overwriting any previously
// staged (unflushed) audio frame.
func (c *Cache) CacheAudio(a frame.Audio) {
	c.audio = &a
	c.hasAudio = true
}

// CacheVideo stages v for the next flush, overwriting any previously
// staged (unflushed) video frame.
func (c *Cache) CacheVideo(v frame.Video) {
	c.video = &v
	c.hasVideo = true
}

// HasAudio reports whether an audio frame is staged.
func (c *Cache) HasAudio() bool { return c.hasAudio }

// HasVideo reports whether a video frame is staged.
func (c *Cache) HasVideo() bool { return c.hasVideo }

// PeekAudio returns the staged audio frame without consuming it.
func (c *Cache) PeekAudio() (frame.Audio, bool) {
	if !c.hasAudio {
		return frame.Audio{}, false
	}
	return *c.audio, true
}

// PeekVideo returns the staged video frame without consuming it.
func (c *Cache) PeekVideo() (frame.Video, bool) {
	if !c.hasVideo {
		return frame.Video{}, false
	}
	return *c.video, true
}

// FlushAudio consumes and returns the staged audio frame, if any.
func (c *Cache) FlushAudio() (frame.Audio, bool) {
	if !c.hasAudio {
		return frame.Audio{}, false
	}
	a := *c.audio
	c.audio = nil
	c.hasAudio = false
	return a, true
}

// FlushVideo consumes and returns the staged video frame, if any.
func (c *Cache) FlushVideo() (frame.Video, bool) {
	if !c.hasVideo {
		return frame.Video{}, false
	}
	v := *c.video
	c.video = nil
	c.hasVideo = false
	return v, true
}
