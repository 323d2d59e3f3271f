// Package winternitz is a hash160 Winternitz one-time signature scheme over
// 4-bit digits. A key signs exactly one 40-digit message plus a 4-digit
// checksum.
package winternitz

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	MessageDigits  = 40
	ChecksumDigits = 4
	Digits         = MessageDigits + ChecksumDigits

	// HashSize is the hash160 output size.
	HashSize = 20

	// MaxDigit is the largest value of a 4-bit digit and the chain length.
	MaxDigit = 15

	PublicKeySize = Digits * HashSize
	SignatureSize = Digits * (HashSize + 1)
)

var (
	ErrInvalidDigit     = errors.New("winternitz: digit out of range")
	ErrInvalidSignature = errors.New("winternitz: signature does not match public key")
	ErrInvalidChecksum  = errors.New("winternitz: checksum mismatch")
	ErrInvalidLength    = errors.New("winternitz: invalid encoding length")
)

type PublicKey [Digits][HashSize]byte

type SignedDigit struct {
	Preimage [HashSize]byte
	Digit    byte
}

type Signature [Digits]SignedDigit

func hash160(b []byte) [HashSize]byte {
	var out [HashSize]byte
	copy(out[:], btcutil.Hash160(b))
	return out
}

func chain(start [HashSize]byte, steps int) [HashSize]byte {
	v := start
	for i := 0; i < steps; i++ {
		v = hash160(v[:])
	}
	return v
}

func secret(seed []byte, index int) [HashSize]byte {
	buf := make([]byte, len(seed)+4)
	copy(buf, seed)
	binary.LittleEndian.PutUint32(buf[len(seed):], uint32(index))
	return hash160(buf)
}

func checksum(digits [MessageDigits]byte) [ChecksumDigits]byte {
	sum := 0
	for _, d := range digits {
		sum += MaxDigit - int(d)
	}
	var out [ChecksumDigits]byte
	for i := range out {
		out[i] = byte(sum>>(4*i)) & 0x0f
	}
	return out
}

func allDigits(digits [MessageDigits]byte) [Digits]byte {
	var all [Digits]byte
	copy(all[:], digits[:])
	c := checksum(digits)
	copy(all[MessageDigits:], c[:])
	return all
}

// GeneratePublicKey derives the public key of the one-time key named by seed.
func GeneratePublicKey(seed []byte) PublicKey {
	var pk PublicKey
	for i := 0; i < Digits; i++ {
		pk[i] = chain(secret(seed, i), MaxDigit)
	}
	return pk
}

// Sign signs 40 message digits. Every digit must be below 16.
func Sign(seed []byte, digits [MessageDigits]byte) (Signature, error) {
	var sig Signature
	for i, d := range digits {
		if d > MaxDigit {
			return sig, fmt.Errorf("%w: digit %d is %d", ErrInvalidDigit, i, d)
		}
	}
	for i, d := range allDigits(digits) {
		sig[i] = SignedDigit{Preimage: chain(secret(seed, i), int(d)), Digit: d}
	}
	return sig, nil
}

// Verify checks sig against pk and returns the signed message digits.
func Verify(pk PublicKey, sig Signature) ([MessageDigits]byte, error) {
	var digits [MessageDigits]byte
	for i, sd := range sig {
		if sd.Digit > MaxDigit {
			return digits, fmt.Errorf("%w: digit %d is %d", ErrInvalidDigit, i, sd.Digit)
		}
		if chain(sd.Preimage, MaxDigit-int(sd.Digit)) != pk[i] {
			return digits, fmt.Errorf("%w: digit %d", ErrInvalidSignature, i)
		}
		if i < MessageDigits {
			digits[i] = sd.Digit
		}
	}
	want := checksum(digits)
	for i := 0; i < ChecksumDigits; i++ {
		if sig[MessageDigits+i].Digit != want[i] {
			return digits, ErrInvalidChecksum
		}
	}
	return digits, nil
}

func (pk PublicKey) Bytes() []byte {
	out := make([]byte, 0, PublicKeySize)
	for i := range pk {
		out = append(out, pk[i][:]...)
	}
	return out
}

func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeySize {
		return pk, fmt.Errorf("%w: public key needs %d bytes, got %d", ErrInvalidLength, PublicKeySize, len(b))
	}
	for i := range pk {
		copy(pk[i][:], b[i*HashSize:])
	}
	return pk, nil
}

// Bytes encodes each digit as preimage followed by the digit value.
func (sig Signature) Bytes() []byte {
	out := make([]byte, 0, SignatureSize)
	for _, sd := range sig {
		out = append(out, sd.Preimage[:]...)
		out = append(out, sd.Digit)
	}
	return out
}

func SignatureFromBytes(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureSize {
		return sig, fmt.Errorf("%w: signature needs %d bytes, got %d", ErrInvalidLength, SignatureSize, len(b))
	}
	for i := range sig {
		off := i * (HashSize + 1)
		copy(sig[i].Preimage[:], b[off:off+HashSize])
		sig[i].Digit = b[off+HashSize]
	}
	return sig, nil
}
