// Package digest computes the content digests used for completion manifests,
// graph identity and trace identity.
//
// All digests are HighwayHash-256 under a fixed key, hex encoded. Composite
// digests length-prefix every field so that adjacent fields cannot be
// confused.
package digest

import (
	"encoding/binary"
	"encoding/hex"
	"hash"
	"io"
	"os"

	"github.com/minio/highwayhash"
)

// key is fixed so digests are comparable across runs and machines.
var key = []byte("peaksandprofiles/manifest/digest")

// Fields accumulates length-prefixed fields into a single digest.
type Fields struct {
	h hash.Hash
}

// NewFields returns an empty composite digest.
func NewFields() *Fields {
	h, err := highwayhash.New(key)
	if err != nil {
		// Only possible with a key that is not 32 bytes.
		panic(err)
	}
	return &Fields{h: h}
}

// Add writes one field.
func (f *Fields) Add(data []byte) *Fields {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(data)))
	f.h.Write(n[:]) // nolint: errcheck
	f.h.Write(data) // nolint: errcheck
	return f
}

// AddString writes one string field.
func (f *Fields) AddString(s string) *Fields { return f.Add([]byte(s)) }

// AddInt writes an integer field, used for counts ahead of repeated fields.
func (f *Fields) AddInt(v int) *Fields {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(v))
	return f.Add(n[:])
}

// Sum returns the hex digest.
func (f *Fields) Sum() string { return hex.EncodeToString(f.h.Sum(nil)) }

// Bytes digests b.
func Bytes(b []byte) string {
	sum := highwayhash.Sum(b, key)
	return hex.EncodeToString(sum[:])
}

// Strings digests an ordered list of strings.
func Strings(ss ...string) string {
	f := NewFields().AddInt(len(ss))
	for _, s := range ss {
		f.AddString(s)
	}
	return f.Sum()
}

// File streams the content of path through the hash.
func File(path string) (string, error) {
	fd, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer fd.Close() // nolint: errcheck
	h, err := highwayhash.New(key)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, fd); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
