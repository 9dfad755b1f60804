// Package fingerprint computes the (content hash, mtime, size) tuple used to
// decide whether a file needs re-extraction.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// DefaultMaxBytes is the hashing ceiling. Only this much of a file's prefix
// is hashed, so files larger than the ceiling report a stable hash for
// changes beyond it. A deliberate approximation, not a bug.
const DefaultMaxBytes = 2_000_000

// Fingerprint identifies one version of a file's content.
type Fingerprint struct {
	SHA256    string
	MtimeNs   int64
	SizeBytes int64
}

// Fingerprinter hashes file prefixes up to a configurable byte ceiling.
type Fingerprinter struct {
	maxBytes int64
}

func New(maxBytes int64) *Fingerprinter {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Fingerprinter{maxBytes: maxBytes}
}

// Compute returns the fingerprint for path. Any I/O failure means the caller
// must treat the file as absent for registry purposes.
func (f *Fingerprinter) Compute(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}

	file, err := os.Open(path)
	if err != nil {
		return Fingerprint{}, err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, io.LimitReader(file, f.maxBytes)); err != nil {
		return Fingerprint{}, err
	}

	return Fingerprint{
		SHA256:    hex.EncodeToString(h.Sum(nil)),
		MtimeNs:   info.ModTime().UnixNano(),
		SizeBytes: info.Size(),
	}, nil
}
