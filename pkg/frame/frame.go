// Package frame defines the value types the ingest side (RTMP demuxing,
// AAC/H.264 bitstream parsing — both out of scope here) hands to the
// muxer pipeline. A frame borrows its payload slice until the consuming
// flush call returns; the publisher must not mutate it during the borrow.
package frame

// AudioCodec identifies the codec of an audio frame.
type AudioCodec uint8

// Audio codec ids, matching hls_acodec config values (aac, mp3, an).
const (
	AudioDisabled AudioCodec = iota
	AudioAAC
	AudioMP3
)

// VideoCodec identifies the codec of a video frame.
type VideoCodec uint8

// Video codec ids, matching hls_vcodec config values (h264, vn).
const (
	VideoDisabled VideoCodec = iota
	VideoH264
)

// Type distinguishes key (IDR) frames from inter frames.
type Type uint8

// Frame types.
const (
	InterFrame Type = iota
	KeyFrame
)

// AVCDescriptor is the opaque codec descriptor an external AVC/SPS
// parser fills in; the muxer only reads it, never parses bitstreams.
type AVCDescriptor struct {
	Width, Height int
	ProfileIDC    uint8
	LevelIDC      uint8
}

// AACDescriptor is the opaque codec descriptor an external AAC/ADTS
// parser fills in.
type AACDescriptor struct {
	SampleRate   int
	ChannelCount int
	ObjectType   int
}

// Audio is one decoded audio access unit.
type Audio struct {
	Codec     AudioCodec
	Timestamp int64 // source wall-clock timestamp, milliseconds
	Payload   []byte
	Desc      AACDescriptor
	// SequenceHeader marks an AudioSpecificConfig update rather than
	// audio payload; the controller forwards these to on_sequence_header
	// and never writes them to a segment.
	SequenceHeader bool
}

// Video is one decoded video access unit (a full NALU group for one PTS).
type Video struct {
	Codec     VideoCodec
	Timestamp int64 // source wall-clock timestamp, milliseconds
	CTS       int64 // composition time offset, milliseconds
	FrameType Type
	Payload   []byte
	Desc      AVCDescriptor
	// SequenceHeader marks an SPS/PPS update rather than video payload.
	SequenceHeader bool
	// IsVideoInfoFrame marks an enhanced-RTMP VideoInfoFrame, ignored by
	// the controller entirely (neither payload nor sequence header).
	IsVideoInfoFrame bool
}
