package snapshot

import (
	"encoding/hex"
	"fmt"
)

// HashSize is the width of a content digest in bytes.
const HashSize = 16

// HashCode is a fixed-width content digest of a regular file.
type HashCode [HashSize]byte

// ParseHashCode decodes a hex string produced by HashCode.String.
func ParseHashCode(s string) (HashCode, error) {
	var h HashCode
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("invalid hash %q: got %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// String returns the hex encoding of the digest.
func (h HashCode) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether h is the zero digest.
func (h HashCode) IsZero() bool {
	return h == HashCode{}
}

// MarshalText implements encoding.TextMarshaler.
func (h HashCode) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HashCode) UnmarshalText(text []byte) error {
	parsed, err := ParseHashCode(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// FileMetadata is the (length, last-modified) pair observed for a regular
// file. It travels next to the hash and is never mixed into it.
type FileMetadata struct {
	Size    int64
	ModTime int64 // UnixNano
}
