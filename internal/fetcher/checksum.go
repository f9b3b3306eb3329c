package fetcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/quantfeed/go-binance-vision/internal/verrors"
)

const checksumChunkSize = 64 * 1024

// Checksum computes the SHA256 digest of a file's bytes, streaming in
// bounded chunks so archive files never have to fit in memory.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", verrors.New(verrors.KindLocalIO, "checksum", err)
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, checksumChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", verrors.New(verrors.KindLocalIO, "checksum", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// checksumUnbuffered digests the whole file in one read. It exists only as
// the fast path for small files and must agree byte-for-byte with Checksum;
// a test asserts the two implementations produce identical digests.
func checksumUnbuffered(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", verrors.New(verrors.KindLocalIO, "checksum", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// VerifyChecksum compares a file's digest against its companion checksum
// artifact (format: "hexdigest  filename"). The comparison is
// case-insensitive. Returns (false, nil) on a plain mismatch; errors are
// reserved for unreadable inputs.
func VerifyChecksum(filePath, checksumPath string) (bool, error) {
	raw, err := os.ReadFile(checksumPath)
	if err != nil {
		return false, verrors.New(verrors.KindLocalIO, "verify_checksum", err)
	}

	fields := strings.Fields(string(raw))
	if len(fields) == 0 {
		return false, fmt.Errorf("empty checksum artifact: %s", checksumPath)
	}
	expected := fields[0]

	actual, err := Checksum(filePath)
	if err != nil {
		return false, err
	}
	return strings.EqualFold(actual, expected), nil
}
