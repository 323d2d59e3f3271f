// Package execctx binds an input byte string to a one-time signature and the
// script that checks a claim about it. Each Context is one independently
// challengeable assertion.
package execctx

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/script"
	"github.com/mezonai/bitvm20/winternitz"
)

type Context struct {
	key       KeyMaterial
	input     []byte
	generator Generator

	publicKey *winternitz.PublicKey
	signature *winternitz.Signature
}

// New builds a context. input is copied.
func New(key KeyMaterial, input []byte, generator Generator) *Context {
	return &Context{
		key:       key,
		input:     append([]byte(nil), input...),
		generator: generator,
	}
}

// Build takes the next key from keys and builds a context with it.
func Build(keys KeySource, input []byte, generator Generator) (*Context, error) {
	key, err := keys.Next()
	if err != nil {
		return nil, err
	}
	return New(key, input, generator), nil
}

func (c *Context) KeyMaterial() KeyMaterial {
	return c.key
}

// IsOwned reports whether the context holds its own one-time seed.
func (c *Context) IsOwned() bool {
	_, ok := c.key.(OwnedKey)
	return ok
}

func (c *Context) Input() []byte {
	return c.input
}

func (c *Context) PublicKey() winternitz.PublicKey {
	if c.publicKey == nil {
		var pk winternitz.PublicKey
		switch k := c.key.(type) {
		case OwnedKey:
			pk = winternitz.GeneratePublicKey(k.Seed)
		case ExternalKey:
			pk = k.PublicKey
		}
		c.publicKey = &pk
	}
	return *c.publicKey
}

func (c *Context) Signature() winternitz.Signature {
	if c.signature == nil {
		var sig winternitz.Signature
		switch k := c.key.(type) {
		case OwnedKey:
			var err error
			sig, err = winternitz.Sign(k.Seed, hashx.SignableDigitsOf(c.input))
			if err != nil {
				// digits of a digest are always in range
				panic(fmt.Sprintf("execctx: sign input: %v", err))
			}
		case ExternalKey:
			sig = k.Signature
		}
		c.signature = &sig
	}
	return *c.signature
}

// SignedInput pushes the input bytes, byte 0 on top, followed by the
// one-time signature over them.
func (c *Context) SignedInput() script.Script {
	return script.NewBuilder().
		AddBytesReversed(c.input).
		AddWinternitzSignature(c.Signature()).
		Script()
}

func (c *Context) Script() script.Script {
	return c.generator.Generate(c.PublicKey())
}

// Executable is the signed input followed by the script.
func (c *Context) Executable() script.Script {
	return script.Join(c.SignedInput(), c.Script())
}

// Execute runs the executable. A successful result disproves the claim.
func (c *Context) Execute() script.Result {
	return script.Execute(c.Executable())
}

// ValidateInputAndSignature checks that the signature signs the input under
// the context's public key.
func (c *Context) ValidateInputAndSignature() bool {
	n := len(c.input)
	s := script.NewBuilder().
		AddScript(c.SignedInput()).
		AddScript(VerifyInputData(c.PublicKey(), n)).
		AddScript(script.PopBytes(n)).
		AddOp(txscript.OP_TRUE).
		Script()
	res := script.Execute(s)
	return res.Success && len(res.Stack) == 1
}

// Equal compares compiled signatures, raw inputs and compiled scripts.
func (c *Context) Equal(other *Context) bool {
	if other == nil {
		return false
	}
	sig, otherSig := c.Signature(), other.Signature()
	return bytes.Equal(sig.Bytes(), otherSig.Bytes()) &&
		bytes.Equal(c.input, other.input) &&
		c.Script().Equal(other.Script())
}

// External returns a copy that carries only the public key and signature.
func (c *Context) External() *Context {
	return New(ExternalKey{PublicKey: c.PublicKey(), Signature: c.Signature()}, c.input, c.generator)
}
