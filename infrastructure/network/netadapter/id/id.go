package id

import (
	"crypto/rand"
	"encoding/hex"
	"io"

	"github.com/pkg/errors"
)

const idLength = 16

// ID identifies a network connection. IDs are comparable, so they can key
// maps.
type ID struct {
	bytes [idLength]byte
}

// GenerateID generates a new ID
func GenerateID() (*ID, error) {
	bytes := make([]byte, idLength)
	_, err := io.ReadFull(rand.Reader, bytes)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return NewID(bytes)
}

// NewID creates an ID from the given bytes
func NewID(bytes []byte) (*ID, error) {
	if len(bytes) != idLength {
		return nil, errors.Errorf("invalid bytes length %d, expected %d", len(bytes), idLength)
	}
	id := &ID{}
	copy(id.bytes[:], bytes)
	return id, nil
}

// IsEqual returns whether id equals other.
func (id *ID) IsEqual(other *ID) bool {
	return *id == *other
}

func (id *ID) String() string {
	return hex.EncodeToString(id.bytes[:])
}

// Short returns the first few characters of the ID, for logs.
func (id *ID) Short() string {
	return id.String()[:8]
}
