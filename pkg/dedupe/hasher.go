package dedupe

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"path/filepath"
	"strings"
)

// hashChunkSize is the read-buffer size used while digesting a stream.
const hashChunkSize = 4 << 20

// Hasher computes a stable content digest from a seekable byte stream.
// The stream's read position is restored on every exit path, so a call is
// invisible to the caller beyond the returned digest.
type Hasher struct {
	algorithm string
}

// NewHasher creates a hasher for the given algorithm. Supported algorithms
// are "sha256" (the default when empty) and "md5".
func NewHasher(algorithm string) (*Hasher, error) {
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		return &Hasher{algorithm: "sha256"}, nil
	case "md5":
		return &Hasher{algorithm: "md5"}, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
}

// Algorithm returns the configured algorithm name.
func (h *Hasher) Algorithm() string {
	return h.algorithm
}

// Hash reads rs from the beginning to end-of-stream in fixed-size chunks and
// returns the hex digest together with the total byte count. The original
// read position is restored before returning, success or failure.
func (h *Hasher) Hash(rs io.ReadSeeker) (digest string, size int64, err error) {
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return "", 0, fmt.Errorf("record stream position: %w", err)
	}
	defer func() {
		if _, serr := rs.Seek(start, io.SeekStart); serr != nil && err == nil {
			digest, size = "", 0
			err = fmt.Errorf("restore stream position: %w", serr)
		}
	}()

	if _, err = rs.Seek(0, io.SeekStart); err != nil {
		return "", 0, fmt.Errorf("rewind stream: %w", err)
	}

	var hw hash.Hash
	switch h.algorithm {
	case "md5":
		hw = md5.New()
	default:
		hw = sha256.New()
	}

	size, err = io.CopyBuffer(hw, rs, make([]byte, hashChunkSize))
	if err != nil {
		return "", 0, fmt.Errorf("digest stream: %w", err)
	}

	return hex.EncodeToString(hw.Sum(nil)), size, nil
}

// StorageKey derives the blob-store key for content with the given hash,
// keeping the original filename's extension for content-type sniffing
// downstream. Identical content uploaded under different names maps to the
// key of its first upload.
func StorageKey(contentHash, filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return contentHash
	}
	return contentHash + "." + ext
}
