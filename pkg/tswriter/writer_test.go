package tswriter

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"livehls/pkg/frame"
)

func TestWriterProducesValidTSPackets(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, frame.AudioAAC, frame.VideoH264)
	require.NoError(t, err)

	require.NoError(t, w.WriteVideo(0, 0, true, []byte{0x00, 0x00, 0x00, 0x01, 0x65}))
	require.NoError(t, w.WriteAudio(0, []byte{0xFF, 0xF1, 0, 0, 0, 0, 0}))
	require.NoError(t, w.Close())

	require.Greater(t, buf.Len(), 0)
	require.Zero(t, buf.Len()%188, "TS output must be a whole number of 188-byte packets")
	require.Equal(t, byte(0x47), buf.Bytes()[0], "every TS packet starts with the sync byte")
}

func TestWriterAudioOnlyOmitsVideoStream(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, frame.AudioAAC, frame.VideoDisabled)
	require.NoError(t, err)

	require.NoError(t, w.WriteAudio(0, []byte{0xFF, 0xF1, 0, 0, 0, 0, 0}))
	require.Greater(t, buf.Len(), 0)
}

func TestSetAcodecRetargetsMidSegment(t *testing.T) {
	var buf bytes.Buffer
	w, err := New(&buf, frame.AudioAAC, frame.VideoH264)
	require.NoError(t, err)
	require.Equal(t, frame.AudioAAC, w.Acodec())

	w.SetAcodec(frame.AudioMP3)
	require.Equal(t, frame.AudioMP3, w.Acodec())
}
