package bundle

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// DigestAlgorithm prefixes every digest string.
const DigestAlgorithm = "blake3"

// Digest returns "blake3:<hex>" for the file at path.
func Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s for hashing: %w", path, err)
	}
	defer file.Close()

	return DigestReader(file)
}

// DigestReader hashes everything read from r.
func DigestReader(r io.Reader) (string, error) {
	hasher := blake3.New()
	if _, err := io.Copy(hasher, r); err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return DigestAlgorithm + ":" + hex.EncodeToString(hasher.Sum(nil)), nil
}
