package hls

import (
	"fmt"
	"os"
	"path/filepath"
)

// KeySlot is one AES-128 key, shared by fragments_per_key consecutive
// segments; only the IV is unique per segment.
type KeySlot struct {
	Key        [16]byte
	SequenceNo uint64 // sequence_no at which this key was generated
}

// KeyManager generates and persists the per-group AES-128 keys used to
// encrypt segments, rotating every fragments_per_key segments.
type KeyManager struct {
	enabled         bool
	fragmentsPerKey int
	keyFilePath     string
	keyFileTemplate string

	current *KeySlot
}

// NewKeyManager builds a KeyManager; enabled mirrors hls_keys.
func NewKeyManager(enabled bool, fragmentsPerKey int, keyFilePath, keyFileTemplate string) *KeyManager {
	return &KeyManager{
		enabled:         enabled,
		fragmentsPerKey: fragmentsPerKey,
		keyFilePath:     keyFilePath,
		keyFileTemplate: keyFileTemplate,
	}
}

// Enabled reports whether hls_keys is set.
func (k *KeyManager) Enabled() bool { return k.enabled }

// Prepare is called from segment_open for every new segment. It always
// returns a fresh IV; the key only changes on rotation boundaries
// (sequenceNo % fragments_per_key == 0), per spec.md §4.5 — "the key
// applies to the next fragments_per_key segments... implementation
// stores the key per group and a fresh IV per segment".
func (k *KeyManager) Prepare(sequenceNo uint64, vhost, app, stream string) (*KeySlot, [16]byte, string, error) {
	if !k.enabled {
		return nil, [16]byte{}, "", nil
	}

	_, iv, err := generateKeyAndIV()
	if err != nil {
		return nil, [16]byte{}, "", fmt.Errorf("generate iv: %w", err)
	}

	rotate := k.current == nil || sequenceNo%uint64(k.fragmentsPerKey) == 0
	if rotate {
		key, _, err := generateKeyAndIV()
		if err != nil {
			return nil, [16]byte{}, "", fmt.Errorf("generate key: %w", err)
		}
		slot := &KeySlot{Key: key, SequenceNo: sequenceNo}
		keyURI := resolveTemplate(k.keyFileTemplate, vhost, app, stream, sequenceNo)
		keyPath := filepath.Join(k.keyFilePath, keyURI)
		if err := writeKeyFile(keyPath, key); err != nil {
			return nil, [16]byte{}, "", err
		}
		k.current = slot
		return slot, iv, keyURI, nil
	}

	keyURI := resolveTemplate(k.keyFileTemplate, vhost, app, stream, k.current.SequenceNo)
	return k.current, iv, keyURI, nil
}

func writeKeyFile(path string, key [16]byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create key directory: %w", err)
	}
	if err := os.WriteFile(path, key[:], 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}
