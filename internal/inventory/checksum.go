package inventory

import (
	"crypto/md5" //nolint:gosec // content fingerprint, not a security property
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/blake3"
)

// Algorithm names a content checksum.
type Algorithm string

const (
	MD5    Algorithm = "md5"
	BLAKE3 Algorithm = "blake3"
	XXHash Algorithm = "xxhash"
)

// DefaultAlgorithm is used when neither the catalog nor the user names one.
const DefaultAlgorithm = BLAKE3

// Algorithms lists the supported checksum algorithms.
var Algorithms = []Algorithm{MD5, BLAKE3, XXHash}

// ParseAlgorithm validates an algorithm name.
func ParseAlgorithm(s string) (Algorithm, error) {
	for _, a := range Algorithms {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown checksum algorithm %q (want md5, blake3 or xxhash)", s)
}

func (a Algorithm) newHash() hash.Hash {
	switch a {
	case MD5:
		return md5.New() //nolint:gosec // see import
	case XXHash:
		return xxhash.New()
	default:
		return blake3.New()
	}
}

// HashFile computes the checksum of the file at path, returning the hex digest.
func HashFile(path string, algo Algorithm) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	h := algo.newHash()
	buf := make([]byte, 32*1024)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
