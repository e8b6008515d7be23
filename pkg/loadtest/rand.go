package loadtest

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
)

// Generates a cryptographically random 16-bit value.
func randUint16() (uint16, error) {
	var b [2]byte
	n, err := rand.Read(b[:])
	if err != nil {
		return 0, err
	}
	if n != len(b) {
		return 0, fmt.Errorf("expected to read %d random bytes, but read %d instead", len(b), n)
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
