package blobstore

import (
	"fmt"
	"hash"

	sha256 "github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

// Supported content digests. Changing the algorithm of an existing store
// changes every content identifier.
const (
	HashSHA256 = "sha256"
	HashBLAKE3 = "blake3"
)

// HashFunc creates a fresh digest for one save
type HashFunc func() hash.Hash

// NewHashFunc returns the digest constructor for algorithm
func NewHashFunc(algorithm string) (HashFunc, error) {
	switch algorithm {
	case HashSHA256, "":
		return sha256.New, nil
	case HashBLAKE3:
		return func() hash.Hash { return blake3.New() }, nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
}
