package transaction

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/holiman/uint256"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/logx"
	"github.com/mezonai/bitvm20/types"
)

const (
	// BodySize is from_pk || to_pk || from_nonce || value.
	BodySize = 2*codec.PointSize + codec.U64Size + codec.U256Size

	// Size is the body followed by r and s.
	Size = BodySize + codec.PointSize + codec.FieldElementSize

	// offsets into the serialized form
	offsetNonce = 2 * codec.PointSize
	offsetValue = offsetNonce + codec.U64Size
	offsetR     = BodySize
	offsetS     = offsetR + codec.PointSize
)

var ErrZeroNonce = errors.New("transaction: random nonce is zero")

// Transaction is a transfer between two ledger accounts together with its
// Schnorr-style signature (R, s) over BN254.
type Transaction struct {
	FromPublicKey bn254.G1Affine
	ToPublicKey   bn254.G1Affine
	FromNonce     uint64
	Value         uint256.Int
	R             bn254.G1Affine
	S             fr.Element
}

// NewUnsigned builds a transaction from snapshots of both accounts; the nonce
// is taken from the sender.
func NewUnsigned(from, to *types.Entry, value *uint256.Int) *Transaction {
	tx := &Transaction{
		FromPublicKey: from.PublicKey,
		ToPublicKey:   to.PublicKey,
		FromNonce:     from.Nonce,
	}
	tx.Value.Set(value)
	return tx
}

func generator() bn254.G1Affine {
	_, _, g, _ := bn254.Generators()
	return g
}

func (tx *Transaction) SerializeWithoutSignature() [BodySize]byte {
	var out [BodySize]byte
	from := codec.SerializeG1(&tx.FromPublicKey)
	to := codec.SerializeG1(&tx.ToPublicKey)
	nonce := codec.SerializeU64(tx.FromNonce)
	value := codec.SerializeU256(&tx.Value)
	n := copy(out[:], from[:])
	n += copy(out[n:], to[:])
	n += copy(out[n:], nonce[:])
	copy(out[n:], value[:])
	return out
}

func (tx *Transaction) Serialize() [Size]byte {
	var out [Size]byte
	body := tx.SerializeWithoutSignature()
	r := codec.SerializeG1(&tx.R)
	s := codec.SerializeFr(&tx.S)
	copy(out[:], body[:])
	copy(out[offsetR:], r[:])
	copy(out[offsetS:], s[:])
	return out
}

func Deserialize(b []byte) (*Transaction, error) {
	if len(b) != Size {
		return nil, fmt.Errorf("%w: transaction needs %d bytes, got %d", codec.ErrInvalidLength, Size, len(b))
	}
	var (
		tx  Transaction
		err error
	)
	if tx.FromPublicKey, err = codec.DeserializeG1(b[:codec.PointSize]); err != nil {
		return nil, fmt.Errorf("from public key: %w", err)
	}
	if tx.ToPublicKey, err = codec.DeserializeG1(b[codec.PointSize:offsetNonce]); err != nil {
		return nil, fmt.Errorf("to public key: %w", err)
	}
	if tx.FromNonce, err = codec.DeserializeU64(b[offsetNonce:offsetValue]); err != nil {
		return nil, err
	}
	value, err := codec.DeserializeU256(b[offsetValue:BodySize])
	if err != nil {
		return nil, err
	}
	tx.Value.Set(value)
	if tx.R, err = codec.DeserializeG1(b[offsetR:offsetS]); err != nil {
		return nil, fmt.Errorf("signature r: %w", err)
	}
	if tx.S, err = codec.DeserializeFr(b[offsetS:]); err != nil {
		return nil, fmt.Errorf("signature s: %w", err)
	}
	return &tx, nil
}

// Hash identifies the transaction including its signature.
func (tx *Transaction) Hash() string {
	ser := tx.Serialize()
	sum := hashx.Sum256(ser[:])
	return hex.EncodeToString(sum[:])
}

// IsSigned reports whether r or s is set.
func (tx *Transaction) IsSigned() bool {
	return !tx.R.IsInfinity() || !tx.S.IsZero()
}

// Challenge is e = ToScalar(blake3(serialize(R.x) || body)).
func (tx *Transaction) Challenge() fr.Element {
	return challenge(&tx.R, tx.SerializeWithoutSignature())
}

func challenge(r *bn254.G1Affine, body [BodySize]byte) fr.Element {
	rx := codec.SerializeFp(&r.X)
	digest := hashx.Sum256(rx[:], body[:])
	return hashx.ToScalarElement(digest[:])
}

// Sign draws k from rand and sets R = k·G, s = k - d·e.
func (tx *Transaction) Sign(privateKey *fr.Element, rand io.Reader) error {
	var k fr.Element
	if err := randomScalar(rand, &k); err != nil {
		return err
	}
	g := generator()
	tx.R.ScalarMultiplication(&g, bigOf(&k))

	e := tx.Challenge()
	var de fr.Element
	de.Mul(privateKey, &e)
	tx.S.Sub(&k, &de)
	return nil
}

// randomScalar reads 64 bytes so the reduction bias is negligible.
func randomScalar(rand io.Reader, k *fr.Element) error {
	var buf [64]byte
	if _, err := io.ReadFull(rand, buf[:]); err != nil {
		return fmt.Errorf("transaction: read random nonce: %w", err)
	}
	v := new(big.Int).SetBytes(buf[:])
	k.SetBigInt(v)
	if k.IsZero() {
		return ErrZeroNonce
	}
	return nil
}

// VerifySignature accepts iff R - s·G == e·P.
func (tx *Transaction) VerifySignature() bool {
	if !tx.IsSigned() {
		return false
	}
	if tx.FromPublicKey.IsInfinity() {
		logx.Warn("TRANSACTION", "signature over identity public key")
		return false
	}
	lhs, rhs := tx.verificationSides()
	return lhs.Equal(&rhs)
}

// verificationSides returns R - s·G and e·P.
func (tx *Transaction) verificationSides() (bn254.G1Affine, bn254.G1Affine) {
	g := generator()
	e := tx.Challenge()

	var sG, negSG, lhs, eP bn254.G1Affine
	sG.ScalarMultiplication(&g, bigOf(&tx.S))
	negSG.Neg(&sG)
	lhs.Add(&tx.R, &negSG)
	eP.ScalarMultiplication(&tx.FromPublicKey, bigOf(&e))
	return lhs, eP
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("Transaction{from: %s, to: %s, nonce: %d, value: %s}",
		types.Address(&tx.FromPublicKey), types.Address(&tx.ToPublicKey), tx.FromNonce, tx.Value.Dec())
}

type transactionJSON struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	FromNonce uint64 `json:"from_nonce"`
	Value     string `json:"value"`
	Signed    bool   `json:"signed"`
}

func (tx *Transaction) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal(transactionJSON{
		Hash:      tx.Hash(),
		From:      types.Address(&tx.FromPublicKey),
		To:        types.Address(&tx.ToPublicKey),
		FromNonce: tx.FromNonce,
		Value:     tx.Value.Dec(),
		Signed:    tx.IsSigned(),
	})
}
