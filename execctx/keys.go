package execctx

import (
	"errors"
	"fmt"
	"io"

	"github.com/mezonai/bitvm20/winternitz"
)

// SeedSize is the length of one-time seeds drawn by RandomKeys.
const SeedSize = 32

var ErrKeysExhausted = errors.New("execctx: key source exhausted")

// KeyMaterial is either an OwnedKey or an ExternalKey.
type KeyMaterial interface {
	isKeyMaterial()
}

// OwnedKey holds the one-time seed. Public key and signature are derived.
type OwnedKey struct {
	Seed []byte
}

// ExternalKey holds a public key and signature received from someone else.
type ExternalKey struct {
	PublicKey winternitz.PublicKey
	Signature winternitz.Signature
}

func (OwnedKey) isKeyMaterial()    {}
func (ExternalKey) isKeyMaterial() {}

// KeySource hands out key material for consecutive contexts.
type KeySource interface {
	Next() (KeyMaterial, error)
}

type ownedKeys struct {
	seeds [][]byte
	pos   int
}

// OwnedKeys yields one OwnedKey per seed, in order.
func OwnedKeys(seeds [][]byte) KeySource {
	return &ownedKeys{seeds: seeds}
}

func (k *ownedKeys) Next() (KeyMaterial, error) {
	if k.pos >= len(k.seeds) {
		return nil, fmt.Errorf("%w: %d seeds used", ErrKeysExhausted, k.pos)
	}
	seed := k.seeds[k.pos]
	k.pos++
	return OwnedKey{Seed: seed}, nil
}

type randomKeys struct {
	rand io.Reader
}

// RandomKeys draws a fresh SeedSize-byte seed from rand for every context.
func RandomKeys(rand io.Reader) KeySource {
	return &randomKeys{rand: rand}
}

func (k *randomKeys) Next() (KeyMaterial, error) {
	seed := make([]byte, SeedSize)
	if _, err := io.ReadFull(k.rand, seed); err != nil {
		return nil, fmt.Errorf("execctx: read seed: %w", err)
	}
	return OwnedKey{Seed: seed}, nil
}

type externalKeys struct {
	pks  []winternitz.PublicKey
	sigs []winternitz.Signature
	pos  int
}

// ExternalKeys pairs pks[i] with sigs[i].
func ExternalKeys(pks []winternitz.PublicKey, sigs []winternitz.Signature) KeySource {
	return &externalKeys{pks: pks, sigs: sigs}
}

func (k *externalKeys) Next() (KeyMaterial, error) {
	if k.pos >= len(k.pks) || k.pos >= len(k.sigs) {
		return nil, fmt.Errorf("%w: %d of %d public keys and %d signatures used", ErrKeysExhausted, k.pos, len(k.pks), len(k.sigs))
	}
	key := ExternalKey{PublicKey: k.pks[k.pos], Signature: k.sigs[k.pos]}
	k.pos++
	return key, nil
}
