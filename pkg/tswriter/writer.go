// Package tswriter is the concrete adapter satisfying the muxer's
// TsContextWriter contract (spec.md §6): New(writer, audioCodec,
// videoCodec), WriteAudio, WriteVideo, SetAcodec, Acodec, VideoCodec,
// Close. The byte-level serialization itself is delegated to
// github.com/asticode/go-astits, exactly as spec.md treats the MPEG-TS
// packetizer as an external collaborator — this package is that
// collaborator's concrete implementation, grounded on the teacher's
// pkg/video/hls/muxer_ts_writer.go + muxer_ts_segment.go pairing.
package tswriter

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/asticode/go-astits"

	"livehls/pkg/frame"
)

const (
	videoPID uint16 = 256
	audioPID uint16 = 257

	videoStreamID = 224
	audioStreamID = 192
)

// Writer serializes one segment's worth of audio/video frames to MPEG-TS,
// PAT/PMT + PES, 188-byte packets, via an inner astits.Muxer. A fresh
// Writer is constructed per segment so TsContext.reset() (continuity
// counters restarting) falls out of astits.NewMuxer's own fresh state.
type Writer struct {
	out        io.Writer
	inner      *astits.Muxer
	videoCodec frame.VideoCodec
	audioCodec frame.AudioCodec

	pcrCounter int
	started    time.Time
}

// New allocates a Writer bound to out (the segment's tmp file, or an
// encrypting wrapper around it — see pkg/hls.KeyManager).
func New(out io.Writer, audioCodec frame.AudioCodec, videoCodec frame.VideoCodec) (*Writer, error) {
	w := &Writer{out: out, audioCodec: audioCodec, videoCodec: videoCodec, started: time.Now()}

	w.inner = astits.NewMuxer(context.Background(), astiWriterFunc(func(p []byte) (int, error) {
		return w.out.Write(p)
	}))

	if videoCodec == frame.VideoH264 {
		if err := w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: videoPID,
			StreamType:    astits.StreamTypeH264Video,
		}); err != nil {
			return nil, fmt.Errorf("add video stream: %w", err)
		}
	}

	if audioCodec == frame.AudioAAC {
		if err := w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: audioPID,
			StreamType:    astits.StreamTypeAACAudio,
		}); err != nil {
			return nil, fmt.Errorf("add audio stream: %w", err)
		}
	} else if audioCodec == frame.AudioMP3 {
		if err := w.inner.AddElementaryStream(astits.PMTElementaryStream{
			ElementaryPID: audioPID,
			StreamType:    astits.StreamTypeMPEG1Audio,
		}); err != nil {
			return nil, fmt.Errorf("add audio stream: %w", err)
		}
	}

	if videoCodec == frame.VideoH264 {
		w.inner.SetPCRPID(videoPID)
	} else {
		w.inner.SetPCRPID(audioPID)
	}

	return w, nil
}

type astiWriterFunc func(p []byte) (int, error)

func (f astiWriterFunc) Write(p []byte) (int, error) { return f(p) }

// Acodec returns the audio codec this writer was configured for.
func (w *Writer) Acodec() frame.AudioCodec { return w.audioCodec }

// VideoCodec returns the video codec this writer was configured for.
func (w *Writer) VideoCodec() frame.VideoCodec { return w.videoCodec }

// SetAcodec retargets the writer's audio codec mid-segment, per
// spec.md §4.2 ("The TS writer for an open segment can be retargeted
// mid-segment via set_latest_acodec").
func (w *Writer) SetAcodec(codec frame.AudioCodec) {
	w.audioCodec = codec
}

// WriteVideo writes one H.264 access unit (already AVCC/Annex-B encoded
// by the opaque bitstream layer) as a PES packet.
func (w *Writer) WriteVideo(dtsUnits, ptsUnits int64, idrPresent bool, payload []byte) error {
	var af *astits.PacketAdaptationField

	if idrPresent {
		af = &astits.PacketAdaptationField{RandomAccessIndicator: true}
	}

	if w.pcrCounter == 0 {
		if af == nil {
			af = &astits.PacketAdaptationField{}
		}
		af.HasPCR = true
		af.PCR = &astits.ClockReference{Base: int64(time.Since(w.started).Seconds() * 90000)}
		w.pcrCounter = 3
	}
	w.pcrCounter--

	oh := &astits.PESOptionalHeader{MarkerBits: 2}
	if dtsUnits == ptsUnits {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorOnlyPTS
		oh.PTS = &astits.ClockReference{Base: ptsUnits}
	} else {
		oh.PTSDTSIndicator = astits.PTSDTSIndicatorBothPresent
		oh.DTS = &astits.ClockReference{Base: dtsUnits}
		oh.PTS = &astits.ClockReference{Base: ptsUnits}
	}

	_, err := w.inner.WriteData(&astits.MuxerData{
		PID:             videoPID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: oh,
				StreamID:       videoStreamID,
			},
			Data: payload,
		},
	})
	if err != nil {
		return fmt.Errorf("write video PES: %w", err)
	}
	return nil
}

// WriteAudio writes one AAC/MP3 access unit (already ADTS/frame encoded
// by the opaque bitstream layer) as a PES packet.
func (w *Writer) WriteAudio(ptsUnits int64, payload []byte) error {
	af := &astits.PacketAdaptationField{RandomAccessIndicator: true}

	if w.videoCodec != frame.VideoH264 {
		if w.pcrCounter == 0 {
			af.HasPCR = true
			af.PCR = &astits.ClockReference{Base: int64(time.Since(w.started).Seconds() * 90000)}
			w.pcrCounter = 3
		}
		w.pcrCounter--
	}

	_, err := w.inner.WriteData(&astits.MuxerData{
		PID:             audioPID,
		AdaptationField: af,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorOnlyPTS,
					PTS:             &astits.ClockReference{Base: ptsUnits},
				},
				PacketLength: uint16(len(payload) + 8),
				StreamID:     audioStreamID,
			},
			Data: payload,
		},
	})
	if err != nil {
		return fmt.Errorf("write audio PES: %w", err)
	}
	return nil
}

// Close flushes any remaining buffered state. astits has no explicit
// flush step beyond WriteData, so this is a no-op kept to satisfy the
// contract and give future encrypting writers a place to pad/finalize.
func (w *Writer) Close() error { return nil }
