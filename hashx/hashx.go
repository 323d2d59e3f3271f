package hashx

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"lukechampine.com/blake3"
)

const (
	Size = 32

	// SignableDigits is the number of 4-bit digits signed by a one-time key:
	// the trailing 20 bytes of the digest, low nibble first.
	SignableDigits = 40
	signedBytes    = SignableDigits / 2
)

// Sum256 returns the blake3-256 digest of the concatenation of parts.
func Sum256(parts ...[]byte) [Size]byte {
	h := blake3.New(Size, nil)
	for _, p := range parts {
		h.Write(p)
	}
	var out [Size]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Pair hashes two 32-byte nodes, left first.
func Pair(left, right [Size]byte) [Size]byte {
	return Sum256(left[:], right[:])
}

// ToScalar reduces a little-endian digest into the scalar field. The top 3
// bits (253..255) are added back onto the value before the final reduction.
// The fold is part of the wire format and must not be replaced by a plain
// reduction.
func ToScalar(digest []byte) *big.Int {
	le := make([]byte, len(digest))
	for i := range digest {
		le[len(digest)-1-i] = digest[i]
	}
	v := new(big.Int).SetBytes(le)
	v.Mod(v, new(big.Int).Lsh(big.NewInt(1), 256))

	msb3 := new(big.Int).Lsh(big.NewInt(7), 253)
	msb3.And(msb3, v)

	v.Add(v, msb3)
	return v.Mod(v, fr.Modulus())
}

func ToScalarElement(digest []byte) fr.Element {
	var e fr.Element
	e.SetBigInt(ToScalar(digest))
	return e
}

// SignableDigitsOf hashes data and splits the last 20 digest bytes into 40
// nibbles, the form consumed by the one-time signature scheme.
func SignableDigitsOf(data []byte) [SignableDigits]byte {
	digest := Sum256(data)
	return DigitsOfDigest(digest)
}

func DigitsOfDigest(digest [Size]byte) [SignableDigits]byte {
	var digits [SignableDigits]byte
	for i := 0; i < signedBytes; i++ {
		b := digest[Size-signedBytes+i]
		digits[2*i] = b & 0x0f
		digits[2*i+1] = b >> 4
	}
	return digits
}

// SignedBytes folds 40 nibbles back into the 20 digest bytes they came from.
func SignedBytes(digits [SignableDigits]byte) [signedBytes]byte {
	var out [signedBytes]byte
	for i := 0; i < signedBytes; i++ {
		out[i] = digits[2*i] | digits[2*i+1]<<4
	}
	return out
}
