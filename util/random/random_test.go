package random

import (
	"crypto/rand"
	"io"
	"testing"

	"github.com/pkg/errors"
)

// fakeRandReader returns at most n bytes followed by err.
type fakeRandReader struct {
	n   int
	err error
}

func (r *fakeRandReader) Read(p []byte) (int, error) {
	n := r.n
	if n > len(p) {
		n = len(p)
	}
	return n, r.err
}

// TestUint64 makes sure the generator does not hand out an obviously skewed
// distribution. Out of 2^8 draws, more than a handful of values below 2^56
// means something is badly broken.
func TestUint64(t *testing.T) {
	const (
		tries     = 1 << 8
		watermark = uint64(1 << 56)
		maxHits   = 5
	)

	hits := 0
	for i := 0; i < tries; i++ {
		nonce, err := Uint64()
		if err != nil {
			t.Fatalf("Uint64: iteration %d failed: %v", i, err)
		}
		if nonce < watermark {
			hits++
		}
	}
	if hits > maxHits {
		t.Errorf("Uint64: got %d values below %d in %d draws, want at most %d",
			hits, watermark, tries, maxHits)
	}
}

func TestUint64ShortRead(t *testing.T) {
	reader := rand.Reader
	defer func() { rand.Reader = reader }()

	rand.Reader = &fakeRandReader{n: 2, err: io.EOF}
	nonce, err := Uint64()
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("Uint64: got error %v, want %v", err, io.ErrUnexpectedEOF)
	}
	if nonce != 0 {
		t.Errorf("Uint64: got nonce %d on error, want 0", nonce)
	}
}
