package protocol

import (
	"io"

	"github.com/mezonai/bitvm20/hashx"
	"golang.org/x/crypto/chacha20"
)

type seededReader struct {
	cipher *chacha20.Cipher
}

// NewSeededReader returns a deterministic byte stream derived from seed.
// Runs that share a seed draw the same one-time keys and nonces.
func NewSeededReader(seed []byte) io.Reader {
	key := hashx.Sum256(seed)
	nonce := make([]byte, chacha20.NonceSize)
	c, err := chacha20.NewUnauthenticatedCipher(key[:], nonce)
	if err != nil {
		// key and nonce sizes are fixed
		panic(err)
	}
	return &seededReader{cipher: c}
}

func (r *seededReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	r.cipher.XORKeyStream(p, p)
	return len(p), nil
}
