package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
)

// Size is the digest length in bytes.
const Size = md5.Size

// Fingerprint is a 128-bit content hash of a text value, used as its storage
// key. Two values with the same fingerprint are treated as identical.
type Fingerprint [Size]byte

// Compute returns the fingerprint of a text value.
func Compute(text string) Fingerprint {
	return Fingerprint(md5.Sum([]byte(text)))
}

// FromBytes converts a raw digest read from storage back into a Fingerprint.
func FromBytes(raw []byte) (Fingerprint, error) {
	if len(raw) != Size {
		return Fingerprint{}, fmt.Errorf("invalid fingerprint length: %d bytes, expected %d", len(raw), Size)
	}
	var fp Fingerprint
	copy(fp[:], raw)
	return fp, nil
}

// Bytes returns the digest as a fresh byte slice suitable for a bytea column.
func (fp Fingerprint) Bytes() []byte {
	return append([]byte(nil), fp[:]...)
}

func (fp Fingerprint) String() string {
	return hex.EncodeToString(fp[:])
}
