package codec

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

const (
	// FieldElementSize is the packed size of a 254-bit field element.
	FieldElementSize = 36

	// fieldBits is the number of significant bits packed per element. Packing
	// stops at the first 29-bit group boundary at or after this count.
	fieldBits = 254

	// Every 4-byte group carries 29 bits: three full bytes and a 5-bit byte.
	groupFullBytes = 3
	groupTailBits  = 5
)

var (
	ErrInvalidLength = errors.New("codec: invalid input length")
	ErrNotOnCurve    = errors.New("codec: point is not on the curve")
	ErrNonCanonical  = errors.New("codec: non-canonical field element encoding")
)

type montgomery struct {
	modulus *big.Int
	r       *big.Int
	rInv    *big.Int
}

var (
	baseField   = newMontgomery(fp.Modulus(), "dc83629563d44755301fa84819caa36fb90a6020ce148c34e8384eb157ccc21")
	scalarField = newMontgomery(fr.Modulus(), "dc83629563d44755301fa84819caa8075bba827a494b01a2fd4e1568fffff57")
)

func newMontgomery(modulus *big.Int, rHex string) montgomery {
	r, ok := new(big.Int).SetString(rHex, 16)
	if !ok {
		panic("codec: bad montgomery constant " + rHex)
	}
	rInv := new(big.Int).ModInverse(r, modulus)
	if rInv == nil {
		panic("codec: montgomery constant is not invertible")
	}
	return montgomery{modulus: modulus, r: r, rInv: rInv}
}

func fieldFor(isBaseField bool) montgomery {
	if isBaseField {
		return baseField
	}
	return scalarField
}

// pack254 lays out the low bits of v as repeated groups of 3 full bytes
// followed by one byte holding 5 bits, least significant bits first.
func pack254(v *big.Int) [FieldElementSize]byte {
	var out [FieldElementSize]byte
	bit := 0
	pos := 0
	for bit < fieldBits {
		for g := 0; g < groupFullBytes; g++ {
			for i := 0; i < 8; i++ {
				out[pos] |= byte(v.Bit(bit)) << i
				bit++
			}
			pos++
		}
		for i := 0; i < groupTailBits; i++ {
			out[pos] |= byte(v.Bit(bit)) << i
			bit++
		}
		pos++
	}
	return out
}

func unpack254(b []byte) *big.Int {
	v := new(big.Int)
	bit := 0
	pos := 0
	for bit < fieldBits {
		for g := 0; g < groupFullBytes; g++ {
			for i := 0; i < 8; i++ {
				v.SetBit(v, bit, uint((b[pos]>>i)&1))
				bit++
			}
			pos++
		}
		for i := 0; i < groupTailBits; i++ {
			v.SetBit(v, bit, uint((b[pos]>>i)&1))
			bit++
		}
		pos++
	}
	return v
}

// SerializeFieldElement converts x into the Montgomery domain of the selected
// field (x*R mod N) and packs it into 36 bytes.
func SerializeFieldElement(x *big.Int, isBaseField bool) [FieldElementSize]byte {
	f := fieldFor(isBaseField)
	m := new(big.Int).Mul(x, f.r)
	m.Mod(m, f.modulus)
	return pack254(m)
}

// DeserializeFieldElement is the inverse of SerializeFieldElement. Unused
// padding bits must be zero and the packed value must be below the modulus,
// so every element has exactly one encoding.
func DeserializeFieldElement(b []byte, isBaseField bool) (*big.Int, error) {
	if len(b) != FieldElementSize {
		return nil, fmt.Errorf("%w: field element needs %d bytes, got %d", ErrInvalidLength, FieldElementSize, len(b))
	}
	f := fieldFor(isBaseField)
	v := unpack254(b)
	if v.Cmp(f.modulus) >= 0 {
		return nil, fmt.Errorf("%w: value not below modulus", ErrNonCanonical)
	}
	if repacked := pack254(v); !bytes.Equal(repacked[:], b) {
		return nil, fmt.Errorf("%w: padding bits set", ErrNonCanonical)
	}
	v.Mul(v, f.rInv)
	return v.Mod(v, f.modulus), nil
}

func SerializeFp(x *fp.Element) [FieldElementSize]byte {
	var v big.Int
	return SerializeFieldElement(x.BigInt(&v), true)
}

func DeserializeFp(b []byte) (fp.Element, error) {
	var e fp.Element
	v, err := DeserializeFieldElement(b, true)
	if err != nil {
		return e, err
	}
	e.SetBigInt(v)
	return e, nil
}

func SerializeFr(x *fr.Element) [FieldElementSize]byte {
	var v big.Int
	return SerializeFieldElement(x.BigInt(&v), false)
}

func DeserializeFr(b []byte) (fr.Element, error) {
	var e fr.Element
	v, err := DeserializeFieldElement(b, false)
	if err != nil {
		return e, err
	}
	e.SetBigInt(v)
	return e, nil
}
