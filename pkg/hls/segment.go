package hls

import (
	"fmt"
	"os"
	"time"

	"livehls/pkg/frame"
	"livehls/pkg/tswriter"
)

// MinDuration is the minimum accepted segment duration, spec.md §4.2.
const MinDuration = 100 * time.Millisecond

// Segment is one MPEG-TS fragment, open (being filled) or finalized.
// Only the Muxer mutates a Segment, and only while it is the current
// segment; once finalized it is immutable.
type Segment struct {
	SequenceNo uint64
	URI        string // playlist-relative path, set on finalize
	TmpPath    string
	FinalPath  string

	FirstDTS, LastDTS int64 // 90 kHz units
	haveFirstDTS      bool

	Duration        time.Duration
	IsDiscontinuity bool

	Key    *KeySlot // nil unless encryption is enabled
	IV     [16]byte
	KeyURI string // resolved #EXT-X-KEY URI for this segment's group, set at open

	file   *os.File
	cbc    *cbcWriter // nil unless encrypted
	writer *tswriter.Writer
}

// openSegment creates the tmp file for a new segment and wires up its
// TS writer (optionally through an AES-128-CBC encrypting wrapper).
func openSegment(tmpPath string, key *KeySlot, iv [16]byte, audioCodec frame.AudioCodec, videoCodec frame.VideoCodec) (*Segment, error) {
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open segment tmp file: %w", err)
	}

	s := &Segment{TmpPath: tmpPath, Key: key, IV: iv, file: f}

	var out interface {
		Write([]byte) (int, error)
	} = f

	if key != nil {
		s.cbc = newCBCWriter(f, key.Key, iv)
		out = s.cbc
	}

	w, err := tswriter.New(out, audioCodec, videoCodec)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("new ts writer: %w", err)
	}
	s.writer = w

	return s, nil
}

// recordDTS tracks first/last DTS so Duration can be derived at close.
func (s *Segment) recordDTS(dts int64) {
	if !s.haveFirstDTS {
		s.FirstDTS = dts
		s.haveFirstDTS = true
	}
	s.LastDTS = dts
	s.Duration = dtsToDuration(s.LastDTS - s.FirstDTS)
}

func dtsToDuration(units int64) time.Duration {
	// 90 kHz units -> time.Duration
	return time.Duration(units) * time.Second / 90000
}

// closeFile releases the tmp file handle; the only mutable on-disk
// resource with unreleased state is this handle, per spec.md §5.
func (s *Segment) closeFile() error {
	if s.cbc != nil {
		if err := s.cbc.Close(); err != nil {
			s.file.Close()
			return err
		}
	}
	return s.file.Close()
}

// discard removes the tmp file (reject/dispose paths).
func (s *Segment) discard() error {
	_ = s.closeFile()
	if err := os.Remove(s.TmpPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("unlink tmp segment: %w", err)
	}
	return nil
}

// finalize renames the tmp file to its final path and records the URI.
func (s *Segment) finalize(finalPath, uri string) error {
	if err := s.closeFile(); err != nil {
		return fmt.Errorf("close segment file: %w", err)
	}
	if err := os.Rename(s.TmpPath, finalPath); err != nil {
		return fmt.Errorf("rename segment to final path: %w", err)
	}
	s.FinalPath = finalPath
	s.URI = uri
	return nil
}

// GetRenderedDuration returns the segment's duration.
func (s *Segment) GetRenderedDuration() time.Duration { return s.Duration }
