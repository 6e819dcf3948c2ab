package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// SentinelHash stands in for a content hash that could not be computed.
const SentinelHash = "unknown"

// DefaultChunkSize is the read size used by HashFile when none is given.
const DefaultChunkSize = 1 << 20

// HashFile streams path through SHA-256 in chunkSize reads and returns the
// hex digest.
func HashFile(path string, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	if _, err := io.CopyBuffer(h, onlyReader{f}, buf); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// FileStat returns size and modification time (UnixNano) of path.
func FileStat(path string) (size, modTimeNS int64, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, 0, err
	}
	if info.IsDir() {
		return 0, 0, fmt.Errorf("%s is a directory", path)
	}
	return info.Size(), info.ModTime().UnixNano(), nil
}

// onlyReader hides *os.File's WriterTo so io.CopyBuffer honours the chunk size.
type onlyReader struct {
	io.Reader
}
