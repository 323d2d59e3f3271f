package types

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mr-tron/base58"
)

const (
	EntrySize = codec.PointSize + codec.U64Size + codec.U256Size
)

// Entry is one ledger account slot.
type Entry struct {
	PublicKey bn254.G1Affine `json:"-"`
	Nonce     uint64         `json:"nonce"`
	Balance   uint256.Int    `json:"balance"`
}

// NewEntry derives the public key as privateKey·G.
func NewEntry(privateKey *fr.Element, nonce uint64, balance *uint256.Int) *Entry {
	e := &Entry{
		PublicKey: PublicKeyOf(privateKey),
		Nonce:     nonce,
	}
	e.Balance.Set(balance)
	return e
}

// DefaultEntry is the content of an unassigned slot: the identity point with
// zero nonce and balance.
func DefaultEntry() *Entry {
	return &Entry{}
}

func PublicKeyOf(privateKey *fr.Element) bn254.G1Affine {
	_, _, g, _ := bn254.Generators()
	var pk bn254.G1Affine
	pk.ScalarMultiplication(&g, privateKey.BigInt(new(big.Int)))
	return pk
}

func (e *Entry) Serialize() [EntrySize]byte {
	var out [EntrySize]byte
	pk := codec.SerializeG1(&e.PublicKey)
	nonce := codec.SerializeU64(e.Nonce)
	balance := codec.SerializeU256(&e.Balance)
	n := copy(out[:], pk[:])
	n += copy(out[n:], nonce[:])
	copy(out[n:], balance[:])
	return out
}

func DeserializeEntry(b []byte) (*Entry, error) {
	if len(b) != EntrySize {
		return nil, fmt.Errorf("%w: entry of %d bytes", codec.ErrInvalidLength, len(b))
	}
	pk, err := codec.DeserializeG1(b[:codec.PointSize])
	if err != nil {
		return nil, fmt.Errorf("entry public key: %w", err)
	}
	nonce, err := codec.DeserializeU64(b[codec.PointSize : codec.PointSize+codec.U64Size])
	if err != nil {
		return nil, err
	}
	balance, err := codec.DeserializeU256(b[codec.PointSize+codec.U64Size:])
	if err != nil {
		return nil, err
	}
	e := &Entry{PublicKey: pk, Nonce: nonce}
	e.Balance.Set(balance)
	return e, nil
}

// Hash is the leaf hash of the entry.
func (e *Entry) Hash() [hashx.Size]byte {
	ser := e.Serialize()
	return hashx.Sum256(ser[:])
}

func (e *Entry) Clone() *Entry {
	c := &Entry{PublicKey: e.PublicKey, Nonce: e.Nonce}
	c.Balance.Set(&e.Balance)
	return c
}

func (e *Entry) Equal(other *Entry) bool {
	return e.PublicKey.Equal(&other.PublicKey) && e.Nonce == other.Nonce && e.Balance.Eq(&other.Balance)
}

func (e *Entry) Address() string {
	return Address(&e.PublicKey)
}

func (e *Entry) String() string {
	return fmt.Sprintf("Entry{pk: %s, nonce: %d, balance: %s}", e.Address(), e.Nonce, e.Balance.Dec())
}

// Address renders a public key for logs and summaries as base58 of its
// 72-byte encoding.
func Address(pk *bn254.G1Affine) string {
	ser := codec.SerializeG1(pk)
	return base58.Encode(ser[:])
}

// ParseAddress is the inverse of Address.
func ParseAddress(addr string) (bn254.G1Affine, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return bn254.G1Affine{}, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return codec.DeserializeG1(raw)
}
