// Package diskguard is a disk-space preflight check consulted before
// segment_open, adapted from the teacher's pkg/system/system.go (which
// already reports disk usage via gopsutil for a system-status addon)
// from a read-only status number into an enforced precondition: a
// nearly-full volume should degrade to a logged io error instead of a
// silent partial write.
package diskguard

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// Checker decides whether a path has enough free space to accept a new
// segment.
type Checker interface {
	// Check returns a non-nil error (classified as an io-kind error by
	// the caller) if path has less than the configured minimum free.
	Check(path string) error
}

// GopsutilChecker is the default Checker, backed by gopsutil's disk
// usage statistics.
type GopsutilChecker struct {
	MinFreeBytes uint64
}

// New allocates a GopsutilChecker requiring at least minFreeBytes free.
func New(minFreeBytes uint64) *GopsutilChecker {
	return &GopsutilChecker{MinFreeBytes: minFreeBytes}
}

// Check implements Checker.
func (c *GopsutilChecker) Check(path string) error {
	usage, err := disk.Usage(path)
	if err != nil {
		return fmt.Errorf("disk usage for %s: %w", path, err)
	}
	if usage.Free < c.MinFreeBytes {
		return fmt.Errorf("insufficient free space on %s: %d bytes free, %d required",
			path, usage.Free, c.MinFreeBytes)
	}
	return nil
}

// NoopChecker always passes; used in tests and when disk guarding is
// disabled.
type NoopChecker struct{}

// Check implements Checker.
func (NoopChecker) Check(string) error { return nil }
