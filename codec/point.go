package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/holiman/uint256"
)

const (
	// PointSize is y followed by x, each a packed base field element.
	PointSize = 2 * FieldElementSize
	U64Size   = 8
	U256Size  = 32
)

// SerializeG1 encodes p as serialize(y) || serialize(x). The point at infinity
// is the all-zero string.
func SerializeG1(p *bn254.G1Affine) [PointSize]byte {
	var out [PointSize]byte
	if p.IsInfinity() {
		return out
	}
	y := SerializeFp(&p.Y)
	x := SerializeFp(&p.X)
	copy(out[:FieldElementSize], y[:])
	copy(out[FieldElementSize:], x[:])
	return out
}

// DeserializeG1 decodes a 72-byte point and rejects anything off the curve.
func DeserializeG1(b []byte) (bn254.G1Affine, error) {
	var p bn254.G1Affine
	if len(b) != PointSize {
		return p, fmt.Errorf("%w: point needs %d bytes, got %d", ErrInvalidLength, PointSize, len(b))
	}
	if isZero(b) {
		return p, nil
	}
	y, err := DeserializeFp(b[:FieldElementSize])
	if err != nil {
		return p, err
	}
	x, err := DeserializeFp(b[FieldElementSize:])
	if err != nil {
		return p, err
	}
	p.X, p.Y = x, y
	if !p.IsOnCurve() {
		return bn254.G1Affine{}, ErrNotOnCurve
	}
	return p, nil
}

func SerializeU64(v uint64) [U64Size]byte {
	var out [U64Size]byte
	binary.LittleEndian.PutUint64(out[:], v)
	return out
}

func DeserializeU64(b []byte) (uint64, error) {
	if len(b) != U64Size {
		return 0, fmt.Errorf("%w: u64 needs %d bytes, got %d", ErrInvalidLength, U64Size, len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}

// SerializeU256 writes v as 32 little-endian bytes.
func SerializeU256(v *uint256.Int) [U256Size]byte {
	be := v.Bytes32()
	var out [U256Size]byte
	for i := 0; i < U256Size; i++ {
		out[i] = be[U256Size-1-i]
	}
	return out
}

func DeserializeU256(b []byte) (*uint256.Int, error) {
	if len(b) != U256Size {
		return nil, fmt.Errorf("%w: u256 needs %d bytes, got %d", ErrInvalidLength, U256Size, len(b))
	}
	var be [U256Size]byte
	for i := 0; i < U256Size; i++ {
		be[i] = b[U256Size-1-i]
	}
	return new(uint256.Int).SetBytes32(be[:]), nil
}

func isZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
