package winternitz

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSeed = []byte("b138982ce17ac813d505b5b40b665d404e9528e7")

func testDigits() [MessageDigits]byte {
	var d [MessageDigits]byte
	for i := range d {
		d[i] = byte(i*7) & 0x0f
	}
	return d
}

func TestHash160(t *testing.T) {
	sum := hash160(nil)
	assert.Equal(t, "b472a266d0bd89c13706a4132ccfb16f7c3b9fcb", hex.EncodeToString(sum[:]))
}

func TestSignVerify(t *testing.T) {
	pk := GeneratePublicKey(testSeed)
	sig, err := Sign(testSeed, testDigits())
	require.NoError(t, err)

	digits, err := Verify(pk, sig)
	require.NoError(t, err)
	assert.Equal(t, testDigits(), digits)
}

func TestSignIsDeterministic(t *testing.T) {
	a, err := Sign(testSeed, testDigits())
	require.NoError(t, err)
	b, err := Sign(testSeed, testDigits())
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestVerifyRejectsTampering(t *testing.T) {
	pk := GeneratePublicKey(testSeed)
	sig, err := Sign(testSeed, testDigits())
	require.NoError(t, err)

	wrongKey := GeneratePublicKey([]byte("another seed"))
	_, err = Verify(wrongKey, sig)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	forged := sig
	forged[3].Preimage[0] ^= 1
	_, err = Verify(pk, forged)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	// raising a digit is possible by hashing forward, the checksum catches it
	bumped := sig
	for i := range bumped[:MessageDigits] {
		if bumped[i].Digit < MaxDigit {
			bumped[i].Preimage = hash160(bumped[i].Preimage[:])
			bumped[i].Digit++
			break
		}
	}
	_, err = Verify(pk, bumped)
	assert.ErrorIs(t, err, ErrInvalidChecksum)
}

func TestSignRejectsWideDigits(t *testing.T) {
	d := testDigits()
	d[0] = 16
	_, err := Sign(testSeed, d)
	assert.ErrorIs(t, err, ErrInvalidDigit)
}

func TestEncodings(t *testing.T) {
	pk := GeneratePublicKey(testSeed)
	back, err := PublicKeyFromBytes(pk.Bytes())
	require.NoError(t, err)
	assert.Equal(t, pk, back)

	sig, err := Sign(testSeed, testDigits())
	require.NoError(t, err)
	sigBack, err := SignatureFromBytes(sig.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sig, sigBack)

	_, err = PublicKeyFromBytes(pk.Bytes()[1:])
	assert.ErrorIs(t, err, ErrInvalidLength)
	_, err = SignatureFromBytes(nil)
	assert.ErrorIs(t, err, ErrInvalidLength)
}
