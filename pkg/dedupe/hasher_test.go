package dedupe_test

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileforge/dedupe/pkg/dedupe"
)

func TestHasherSHA256(t *testing.T) {
	payload := []byte("hello dedupe")
	want := sha256.Sum256(payload)

	hasher, err := dedupe.NewHasher("sha256")
	require.NoError(t, err)

	digest, size, err := hasher.Hash(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
	assert.Equal(t, int64(len(payload)), size)
}

func TestHasherMD5(t *testing.T) {
	payload := []byte("hello dedupe")
	want := md5.Sum(payload)

	hasher, err := dedupe.NewHasher("md5")
	require.NoError(t, err)

	digest, size, err := hasher.Hash(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
	assert.Equal(t, int64(len(payload)), size)
}

func TestHasherDefaultsToSHA256(t *testing.T) {
	hasher, err := dedupe.NewHasher("")
	require.NoError(t, err)
	assert.Equal(t, "sha256", hasher.Algorithm())
}

func TestHasherRejectsUnknownAlgorithm(t *testing.T) {
	_, err := dedupe.NewHasher("crc32")
	assert.Error(t, err)
}

func TestHasherEmptyStream(t *testing.T) {
	want := sha256.Sum256(nil)

	hasher, err := dedupe.NewHasher("sha256")
	require.NoError(t, err)

	digest, size, err := hasher.Hash(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
	assert.Zero(t, size)
}

func TestHasherRestoresStreamPosition(t *testing.T) {
	payload := []byte("position matters")
	reader := bytes.NewReader(payload)

	// Advance partway in, then hash. The digest must still cover the whole
	// stream and the position must come back to where it was.
	_, err := reader.Seek(6, io.SeekStart)
	require.NoError(t, err)

	hasher, err := dedupe.NewHasher("sha256")
	require.NoError(t, err)

	want := sha256.Sum256(payload)
	digest, size, err := hasher.Hash(reader)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want[:]), digest)
	assert.Equal(t, int64(len(payload)), size)

	pos, err := reader.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(6), pos)
}

func TestStorageKey(t *testing.T) {
	tests := []struct {
		name     string
		hash     string
		filename string
		want     string
	}{
		{"plain extension", "abc123", "report.pdf", "abc123.pdf"},
		{"uppercase extension lowered", "abc123", "PHOTO.JPG", "abc123.jpg"},
		{"no extension", "abc123", "README", "abc123"},
		{"multi-part extension keeps last", "abc123", "archive.tar.gz", "abc123.gz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dedupe.StorageKey(tt.hash, tt.filename))
		})
	}
}
