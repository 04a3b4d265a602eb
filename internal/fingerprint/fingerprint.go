// Package fingerprint computes content digests for watched files.
//
// A fingerprint is a BLAKE2b-256 digest of a file's bytes. Two files with
// the same fingerprint are treated as content-identical; the engine never
// compares bytes directly.
package fingerprint

import (
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"
)

// Size is the digest length in bytes.
const Size = blake2b.Size256

// Fingerprint is a BLAKE2b-256 content digest.
type Fingerprint [Size]byte

// String returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// Parse decodes a hex-encoded fingerprint as produced by String.
func Parse(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("decode fingerprint: %w", err)
	}
	if len(b) != Size {
		return f, fmt.Errorf("fingerprint length %d, want %d", len(b), Size)
	}
	copy(f[:], b)
	return f, nil
}

// New returns a hash.Hash computing a Fingerprint. Sum of the returned
// hash is Size bytes.
func New() hash.Hash {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for oversized keys; none is passed.
		panic(err)
	}
	return h
}

// Bytes fingerprints a byte slice.
func Bytes(b []byte) Fingerprint {
	return Fingerprint(blake2b.Sum256(b))
}

// Sum converts a digest produced by New into a Fingerprint.
func Sum(h hash.Hash) Fingerprint {
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// File computes the fingerprint of a file using streaming so large files
// are never loaded into memory. Returns the fingerprint and the file size.
func File(path string) (Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, 0, err
	}
	defer f.Close()

	h := New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Fingerprint{}, 0, err
	}
	return Sum(h), size, nil
}
