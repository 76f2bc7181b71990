package hls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyManagerDisabled(t *testing.T) {
	km := NewKeyManager(false, 3, t.TempDir(), "stream-[seq].key")
	slot, iv, uri, err := km.Prepare(0, "v", "a", "s")
	require.NoError(t, err)
	require.Nil(t, slot)
	require.Equal(t, [16]byte{}, iv)
	require.Equal(t, "", uri)
}

func TestKeyManagerRotatesEveryNSegments(t *testing.T) {
	km := NewKeyManager(true, 3, t.TempDir(), "stream-[seq].key")

	var slots []*KeySlot
	for seq := uint64(0); seq < 9; seq++ {
		slot, iv, _, err := km.Prepare(seq, "v", "a", "s")
		require.NoError(t, err)
		require.NotNil(t, slot)
		require.NotEqual(t, [16]byte{}, iv)
		slots = append(slots, slot)
	}

	// Groups 0-2, 3-5, 6-8 must each use one distinct key.
	require.Equal(t, slots[0].Key, slots[1].Key)
	require.Equal(t, slots[0].Key, slots[2].Key)
	require.Equal(t, slots[3].Key, slots[4].Key)
	require.Equal(t, slots[3].Key, slots[5].Key)
	require.Equal(t, slots[6].Key, slots[7].Key)
	require.Equal(t, slots[6].Key, slots[8].Key)

	require.NotEqual(t, slots[0].Key, slots[3].Key)
	require.NotEqual(t, slots[3].Key, slots[6].Key)
	require.NotEqual(t, slots[0].Key, slots[6].Key)
}

func TestKeyManagerFreshIVEverySegment(t *testing.T) {
	km := NewKeyManager(true, 3, t.TempDir(), "stream-[seq].key")

	_, iv0, _, err := km.Prepare(0, "v", "a", "s")
	require.NoError(t, err)
	_, iv1, _, err := km.Prepare(1, "v", "a", "s")
	require.NoError(t, err)

	require.NotEqual(t, iv0, iv1)
}
