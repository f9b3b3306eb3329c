package fetcher

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}

func TestChecksum(t *testing.T) {
	t.Run("known digest", func(t *testing.T) {
		// sha256 of the empty input
		path := writeFile(t, "empty.zip", nil)
		sum, err := Checksum(path)
		require.NoError(t, err)
		assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", sum)
	})

	t.Run("streamed and unbuffered digests agree", func(t *testing.T) {
		data := make([]byte, 3*checksumChunkSize+17) // spans several chunks, not chunk-aligned
		_, err := rand.Read(data)
		require.NoError(t, err)
		path := writeFile(t, "big.zip", data)

		streamed, err := Checksum(path)
		require.NoError(t, err)
		oneShot, err := checksumUnbuffered(path)
		require.NoError(t, err)
		assert.Equal(t, oneShot, streamed)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Checksum(filepath.Join(t.TempDir(), "missing.zip"))
		assert.Error(t, err)
	})
}

func TestVerifyChecksum(t *testing.T) {
	data := bytes.Repeat([]byte("binance"), 1000)
	dataPath := writeFile(t, "data.zip", data)
	digest, err := Checksum(dataPath)
	require.NoError(t, err)

	t.Run("matching digest", func(t *testing.T) {
		checksumPath := writeFile(t, "data.zip.CHECKSUM", []byte(digest+"  data.zip\n"))
		ok, err := VerifyChecksum(dataPath, checksumPath)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("comparison is case-insensitive", func(t *testing.T) {
		checksumPath := writeFile(t, "data.zip.CHECKSUM", []byte(strings.ToUpper(digest)+"  data.zip\n"))
		ok, err := VerifyChecksum(dataPath, checksumPath)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("mismatch is not an error", func(t *testing.T) {
		wrong := strings.Repeat("0", 64)
		checksumPath := writeFile(t, "data.zip.CHECKSUM", []byte(wrong+"  data.zip\n"))
		ok, err := VerifyChecksum(dataPath, checksumPath)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("empty artifact is an error", func(t *testing.T) {
		checksumPath := writeFile(t, "data.zip.CHECKSUM", []byte("  \n"))
		_, err := VerifyChecksum(dataPath, checksumPath)
		assert.Error(t, err)
	})

	t.Run("missing artifact is an error", func(t *testing.T) {
		_, err := VerifyChecksum(dataPath, filepath.Join(t.TempDir(), "missing.CHECKSUM"))
		assert.Error(t, err)
	})
}
