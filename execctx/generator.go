package execctx

import (
	"github.com/btcsuite/btcd/txscript"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/script"
	"github.com/mezonai/bitvm20/winternitz"
)

// Generator produces the script of a context once its one-time public key is
// known.
type Generator interface {
	Generate(pk winternitz.PublicKey) script.Script
}

// GeneratorFunc adapts a closure to Generator.
type GeneratorFunc func(pk winternitz.PublicKey) script.Script

func (f GeneratorFunc) Generate(pk winternitz.PublicKey) script.Script {
	return f(pk)
}

// ParamGenerator binds byte parameters to a script function at construction.
type ParamGenerator struct {
	Params [][]byte
	Fn     func(pk winternitz.PublicKey, params [][]byte) script.Script
}

func (g ParamGenerator) Generate(pk winternitz.PublicKey) script.Script {
	return g.Fn(pk, g.Params)
}

const signedBytes = winternitz.MessageDigits / 2

// VerifyInputData checks the one-time signature on top of the stack against
// pk and that it signs the n input bytes below it. The input bytes stay on
// the stack, byte 0 on top.
func VerifyInputData(pk winternitz.PublicKey, n int) script.Script {
	b := script.NewBuilder().AddScript(script.WinternitzVerify(pk))

	// signed digest bytes move to the alt stack, first byte on top
	for i := 0; i < signedBytes; i++ {
		b.AddInt(int64(signedBytes - 1 - i)).AddOp(txscript.OP_ROLL).AddOp(txscript.OP_TOALTSTACK)
	}

	for i := 0; i < n; i++ {
		b.AddInt(int64(n - 1)).AddOp(txscript.OP_PICK)
	}
	b.AddScript(script.Blake3(n))
	b.AddScript(script.PopBytes(hashx.Size - signedBytes))

	for i := 0; i < signedBytes; i++ {
		b.AddOp(txscript.OP_FROMALTSTACK).AddOp(txscript.OP_EQUALVERIFY)
	}
	return b.Script()
}
