package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/mezonai/bitvm20/jsonx"
	"github.com/mezonai/bitvm20/transaction"
	"github.com/mezonai/bitvm20/winternitz"
)

const (
	countSize = 4
	leafSize  = winternitz.PublicKeySize + winternitz.SignatureSize
)

var ErrMalformedPacket = errors.New("protocol: malformed broadcast packet")

// BroadcastPacket carries a transaction and the one-time public keys and
// signatures of its bundle, in leaf order. Verifiers rebuild every script
// and input from their own ledger.
type BroadcastPacket struct {
	Tx         *transaction.Transaction
	PublicKeys []winternitz.PublicKey
	Signatures []winternitz.Signature
}

func NewBroadcastPacket(tx *transaction.Transaction, bundle *Bundle) *BroadcastPacket {
	p := &BroadcastPacket{
		Tx:         tx,
		PublicKeys: make([]winternitz.PublicKey, len(bundle.Contexts)),
		Signatures: make([]winternitz.Signature, len(bundle.Contexts)),
	}
	for i, ctx := range bundle.Contexts {
		p.PublicKeys[i] = ctx.PublicKey()
		p.Signatures[i] = ctx.Signature()
	}
	return p
}

// Encode lays out the transaction, a little-endian leaf count and then each
// leaf's public key followed by its signature.
func (p *BroadcastPacket) Encode() ([]byte, error) {
	if len(p.PublicKeys) != len(p.Signatures) {
		return nil, fmt.Errorf("%w: %d public keys, %d signatures", ErrMalformedPacket, len(p.PublicKeys), len(p.Signatures))
	}
	out := make([]byte, 0, transaction.Size+countSize+len(p.PublicKeys)*leafSize)
	txBytes := p.Tx.Serialize()
	out = append(out, txBytes[:]...)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(p.PublicKeys)))
	for i := range p.PublicKeys {
		out = append(out, p.PublicKeys[i].Bytes()...)
		out = append(out, p.Signatures[i].Bytes()...)
	}
	return out, nil
}

func DecodeBroadcastPacket(b []byte) (*BroadcastPacket, error) {
	if len(b) < transaction.Size+countSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrMalformedPacket, len(b))
	}
	tx, err := transaction.Deserialize(b[:transaction.Size])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	count := int(binary.LittleEndian.Uint32(b[transaction.Size:]))
	body := b[transaction.Size+countSize:]
	if count > len(body)/leafSize || len(body) != count*leafSize {
		return nil, fmt.Errorf("%w: %d leaves in %d bytes", ErrMalformedPacket, count, len(body))
	}

	p := &BroadcastPacket{
		Tx:         tx,
		PublicKeys: make([]winternitz.PublicKey, count),
		Signatures: make([]winternitz.Signature, count),
	}
	for i := 0; i < count; i++ {
		leaf := body[i*leafSize : (i+1)*leafSize]
		if p.PublicKeys[i], err = winternitz.PublicKeyFromBytes(leaf[:winternitz.PublicKeySize]); err != nil {
			return nil, fmt.Errorf("%w: leaf %d: %v", ErrMalformedPacket, i, err)
		}
		if p.Signatures[i], err = winternitz.SignatureFromBytes(leaf[winternitz.PublicKeySize:]); err != nil {
			return nil, fmt.Errorf("%w: leaf %d: %v", ErrMalformedPacket, i, err)
		}
	}
	return p, nil
}

func (p *BroadcastPacket) Len() int {
	return len(p.PublicKeys)
}

// MarshalJSON renders a summary; the key material is omitted.
func (p *BroadcastPacket) MarshalJSON() ([]byte, error) {
	return jsonx.Marshal(struct {
		Tx     *transaction.Transaction `json:"tx"`
		Leaves int                      `json:"leaves"`
	}{p.Tx, p.Len()})
}
