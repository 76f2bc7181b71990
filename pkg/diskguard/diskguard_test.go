package diskguard

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNoopCheckerAlwaysPasses(t *testing.T) {
	require.NoError(t, NoopChecker{}.Check("/nonexistent/path"))
}

func TestGopsutilCheckerRejectsUnreasonableMinimum(t *testing.T) {
	c := New(1 << 62) // no real volume has this much free
	err := c.Check(t.TempDir())
	require.Error(t, err)
}

func TestGopsutilCheckerAcceptsTrivialMinimum(t *testing.T) {
	c := New(1)
	err := c.Check(t.TempDir())
	require.NoError(t, err)
}
