package hls

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// cbcWriter AES-128-CBC-encrypts everything written to it, buffering
// any partial block until Close applies PKCS7 padding to the tail —
// HLS AES-128 segments are whole encrypted files, not a streaming
// cipher, so padding can only be finalized once the segment is done.
type cbcWriter struct {
	out       io.Writer
	blockMode cipher.BlockMode
	buf       []byte
}

func newCBCWriter(out io.Writer, key [16]byte, iv [16]byte) *cbcWriter {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		// key is always exactly 16 bytes from KeyManager; this cannot fail.
		panic(fmt.Sprintf("hls: aes.NewCipher: %v", err))
	}
	return &cbcWriter{out: out, blockMode: cipher.NewCBCEncrypter(block, iv[:])}
}

func (w *cbcWriter) Write(p []byte) (int, error) {
	n := len(p)
	w.buf = append(w.buf, p...)

	full := (len(w.buf) / aes.BlockSize) * aes.BlockSize
	if full > 0 {
		enc := make([]byte, full)
		w.blockMode.CryptBlocks(enc, w.buf[:full])
		if _, err := w.out.Write(enc); err != nil {
			return 0, fmt.Errorf("write encrypted block: %w", err)
		}
		w.buf = w.buf[full:]
	}
	return n, nil
}

// Close pads the remaining partial block with PKCS7 and flushes it.
func (w *cbcWriter) Close() error {
	pad := aes.BlockSize - (len(w.buf) % aes.BlockSize)
	for i := 0; i < pad; i++ {
		w.buf = append(w.buf, byte(pad))
	}
	enc := make([]byte, len(w.buf))
	w.blockMode.CryptBlocks(enc, w.buf)
	if _, err := w.out.Write(enc); err != nil {
		return fmt.Errorf("write final encrypted block: %w", err)
	}
	return nil
}

// generateKeyAndIV produces a fresh 16-byte AES key and IV from a
// cryptographic RNG. Failure here is fatal to the segment_open that
// requested it (spec.md §7, §9 Open Questions) — it is never retried
// silently because a weak/failed RNG read must not go unnoticed.
func generateKeyAndIV() (key [16]byte, iv [16]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, key[:]); err != nil {
		return key, iv, fmt.Errorf("generate key: %w", err)
	}
	if _, err = io.ReadFull(rand.Reader, iv[:]); err != nil {
		return key, iv, fmt.Errorf("generate iv: %w", err)
	}
	return key, iv, nil
}
