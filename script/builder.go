package script

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/mezonai/bitvm20/winternitz"
)

// Script is a compiled script. Scripts compose by concatenation.
type Script []byte

// Compile returns the raw script bytes.
func (s Script) Compile() []byte {
	return []byte(s)
}

func (s Script) Len() int {
	return len(s)
}

func (s Script) Equal(other Script) bool {
	return bytes.Equal(s, other)
}

// Disasm renders the script for logs.
func (s Script) Disasm() string {
	var out bytes.Buffer
	tokenizer := txscript.MakeScriptTokenizer(0, s)
	for tokenizer.Next() {
		if out.Len() > 0 {
			out.WriteByte(' ')
		}
		op := tokenizer.Opcode()
		if data := tokenizer.Data(); data != nil || op == txscript.OP_0 {
			fmt.Fprintf(&out, "%x", data)
			continue
		}
		out.WriteString(OpcodeName(op))
	}
	if err := tokenizer.Err(); err != nil {
		fmt.Fprintf(&out, " [error: %v]", err)
	}
	return out.String()
}

// Join concatenates scripts into one.
func Join(parts ...Script) Script {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make(Script, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Builder assembles scripts. Data and number pushes use the canonical
// minimal encodings of txscript.ScriptBuilder; the builder itself has no
// overall size limit.
type Builder struct {
	script []byte
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) AddOp(op byte) *Builder {
	b.script = append(b.script, op)
	return b
}

// AddInt pushes v as a minimally encoded script number.
func (b *Builder) AddInt(v int64) *Builder {
	push, err := txscript.NewScriptBuilder().AddInt64(v).Script()
	if err != nil {
		panic(fmt.Sprintf("script: push int %d: %v", v, err))
	}
	b.script = append(b.script, push...)
	return b
}

// AddData pushes data as a single element. Elements above
// txscript.MaxScriptElementSize are a programming error.
func (b *Builder) AddData(data []byte) *Builder {
	push, err := txscript.NewScriptBuilder().AddData(data).Script()
	if err != nil {
		panic(fmt.Sprintf("script: push %d bytes: %v", len(data), err))
	}
	b.script = append(b.script, push...)
	return b
}

// AddBytesReversed pushes every byte of data as its own number item, last
// byte first, so that data[0] ends on top of the stack.
func (b *Builder) AddBytesReversed(data []byte) *Builder {
	for i := len(data) - 1; i >= 0; i-- {
		b.AddInt(int64(data[i]))
	}
	return b
}

func (b *Builder) AddScript(s Script) *Builder {
	b.script = append(b.script, s...)
	return b
}

// AddRepeat appends fragment n times.
func (b *Builder) AddRepeat(n int, fragment Script) *Builder {
	for i := 0; i < n; i++ {
		b.script = append(b.script, fragment...)
	}
	return b
}

// AddWinternitzPublicKey pushes pk so that digit 0 ends on top.
func (b *Builder) AddWinternitzPublicKey(pk winternitz.PublicKey) *Builder {
	for i := len(pk) - 1; i >= 0; i-- {
		b.AddData(pk[i][:])
	}
	return b
}

// AddWinternitzSignature pushes sig as (preimage, digit) pairs so that the
// digit of position 0 ends on top.
func (b *Builder) AddWinternitzSignature(sig winternitz.Signature) *Builder {
	for i := len(sig) - 1; i >= 0; i-- {
		b.AddData(sig[i].Preimage[:])
		b.AddInt(int64(sig[i].Digit))
	}
	return b
}

func (b *Builder) Script() Script {
	out := make(Script, len(b.script))
	copy(out, b.script)
	return out
}

// PopBytes drops n stack items.
func PopBytes(n int) Script {
	b := NewBuilder()
	for i := 0; i < n/2; i++ {
		b.AddOp(txscript.OP_2DROP)
	}
	if n%2 == 1 {
		b.AddOp(txscript.OP_DROP)
	}
	return b.Script()
}

// Blake3 hashes the top n byte items into 32 digest bytes.
func Blake3(n int) Script {
	return NewBuilder().AddInt(int64(n)).AddOp(OP_BLAKE3).Script()
}

// Pack folds the top n byte items into one element.
func Pack(n int) Script {
	return NewBuilder().AddInt(int64(n)).AddOp(OP_PACK).Script()
}

// WinternitzVerify embeds pk and consumes a signature pushed by
// AddWinternitzSignature, leaving the 20 signed bytes.
func WinternitzVerify(pk winternitz.PublicKey) Script {
	return NewBuilder().AddWinternitzPublicKey(pk).AddOp(OP_WOTSVERIFY).Script()
}
