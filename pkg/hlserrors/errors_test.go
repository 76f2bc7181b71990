package hlserrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapNilCauseReturnsNil(t *testing.T) {
	require.NoError(t, Wrap(KindIO, "write_video", nil))
}

func TestWrapPreservesCauseAndKind(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(KindIO, "segment_open", cause)

	require.True(t, Is(err, KindIO))
	require.False(t, Is(err, KindCrypto))
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), "segment_open")
	require.Contains(t, err.Error(), "disk full")
}

func TestIsFalseForPlainError(t *testing.T) {
	require.False(t, Is(errors.New("plain"), KindIO))
}
