package script

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// Gadget opcodes. They occupy the tapscript OP_SUCCESS range and stand in for
// the large limb-arithmetic script expansions that compute the same values
// with standard opcodes. Byte items are script numbers in [0, 255]; runs of
// bytes are ordered with byte 0 on top of the stack.
const (
	// OP_BLAKE3 pops n, then n byte items, and pushes the 32 digest bytes.
	OP_BLAKE3 = txscript.OP_UNKNOWN192

	// OP_WOTSVERIFY pops a 44-item Winternitz public key and the 88 items of
	// its signature, fails unless they verify, and pushes the 20 signed bytes.
	OP_WOTSVERIFY = txscript.OP_UNKNOWN193

	// OP_PACK pops n, then n byte items, and pushes them as a single element.
	OP_PACK = txscript.OP_UNKNOWN194

	// OP_G1ADD pops two serialized G1 points and pushes their sum.
	OP_G1ADD = txscript.OP_UNKNOWN195

	// OP_G1DOUBLE pops a serialized G1 point and pushes its double.
	OP_G1DOUBLE = txscript.OP_UNKNOWN196

	// OP_G1NEG pops a serialized G1 point and pushes its negation.
	OP_G1NEG = txscript.OP_UNKNOWN197

	// OP_SCALARBIT pops a bit index and a serialized scalar and pushes the bit.
	OP_SCALARBIT = txscript.OP_UNKNOWN198

	// OP_HASHTOSCALAR pops a 32-byte little-endian digest and pushes the
	// serialized scalar derived from it.
	OP_HASHTOSCALAR = txscript.OP_UNKNOWN199
)

var gadgetNames = map[byte]string{
	OP_BLAKE3:       "OP_BLAKE3",
	OP_WOTSVERIFY:   "OP_WOTSVERIFY",
	OP_PACK:         "OP_PACK",
	OP_G1ADD:        "OP_G1ADD",
	OP_G1DOUBLE:     "OP_G1DOUBLE",
	OP_G1NEG:        "OP_G1NEG",
	OP_SCALARBIT:    "OP_SCALARBIT",
	OP_HASHTOSCALAR: "OP_HASHTOSCALAR",
}

// OpcodeName returns a printable name for op.
func OpcodeName(op byte) string {
	if name, ok := gadgetNames[op]; ok {
		return name
	}
	if op > txscript.OP_PUSHDATA4 {
		if name, err := txscript.DisasmString([]byte{op}); err == nil {
			return name
		}
	}
	return fmt.Sprintf("0x%02x", op)
}
