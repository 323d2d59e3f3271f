package script

import (
	"bytes"
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/mezonai/bitvm20/codec"
	"github.com/mezonai/bitvm20/hashx"
	"github.com/mezonai/bitvm20/winternitz"
)

// Result is the outcome of running a script. Success means execution ran to
// the end with balanced conditionals and a true value on top of the stack.
type Result struct {
	Success  bool
	Err      error
	Steps    int
	Stack    [][]byte
	AltStack [][]byte
}

// Engine is a stack machine for the standard opcode subset used by the
// ledger scripts plus the gadget opcodes. It enforces no stack or size
// limits. An Engine runs one script and is then discarded.
type Engine struct {
	dstack    stack
	astack    stack
	condStack []int
	steps     int
}

func NewEngine() *Engine {
	return &Engine{}
}

// Execute runs s on a fresh engine.
func Execute(s Script) Result {
	return NewEngine().Run(s)
}

func (vm *Engine) Run(s Script) Result {
	err := vm.run(s)
	res := Result{
		Err:      err,
		Steps:    vm.steps,
		Stack:    vm.dstack.snapshot(),
		AltStack: vm.astack.snapshot(),
	}
	if err != nil {
		return res
	}
	if len(vm.condStack) != 0 {
		res.Err = ErrUnbalancedIf
		return res
	}
	top, err := vm.dstack.peek(0)
	if err != nil {
		res.Err = ErrEmptyStackResult
		return res
	}
	res.Success = asBool(top)
	return res
}

func (vm *Engine) isBranchExecuting() bool {
	if len(vm.condStack) == 0 {
		return true
	}
	return vm.condStack[len(vm.condStack)-1] == txscript.OpCondTrue
}

func isConditional(op byte) bool {
	switch op {
	case txscript.OP_IF, txscript.OP_NOTIF, txscript.OP_ELSE, txscript.OP_ENDIF:
		return true
	}
	return false
}

func (vm *Engine) run(s Script) error {
	tokenizer := txscript.MakeScriptTokenizer(0, s)
	for idx := 0; tokenizer.Next(); idx++ {
		op := tokenizer.Opcode()
		if !vm.isBranchExecuting() && !isConditional(op) {
			continue
		}
		vm.steps++
		if err := vm.step(op, tokenizer.Data()); err != nil {
			return fmt.Errorf("opcode %d (%s): %w", idx, OpcodeName(op), err)
		}
	}
	return tokenizer.Err()
}

func (vm *Engine) step(op byte, data []byte) error {
	switch {
	case op == txscript.OP_0:
		vm.dstack.push(nil)
		return nil
	case op <= txscript.OP_PUSHDATA4:
		vm.dstack.push(append([]byte(nil), data...))
		return nil
	case op == txscript.OP_1NEGATE:
		vm.dstack.pushInt(-1)
		return nil
	case op >= txscript.OP_1 && op <= txscript.OP_16:
		vm.dstack.pushInt(int64(op - txscript.OP_1 + 1))
		return nil
	}

	switch op {
	case txscript.OP_NOP:
		return nil

	case txscript.OP_IF, txscript.OP_NOTIF:
		cond := txscript.OpCondSkip
		if vm.isBranchExecuting() {
			v, err := vm.dstack.popBool()
			if err != nil {
				return err
			}
			if op == txscript.OP_NOTIF {
				v = !v
			}
			cond = txscript.OpCondFalse
			if v {
				cond = txscript.OpCondTrue
			}
		}
		vm.condStack = append(vm.condStack, cond)
		return nil
	case txscript.OP_ELSE:
		if len(vm.condStack) == 0 {
			return ErrUnbalancedIf
		}
		top := len(vm.condStack) - 1
		switch vm.condStack[top] {
		case txscript.OpCondTrue:
			vm.condStack[top] = txscript.OpCondFalse
		case txscript.OpCondFalse:
			vm.condStack[top] = txscript.OpCondTrue
		}
		return nil
	case txscript.OP_ENDIF:
		if len(vm.condStack) == 0 {
			return ErrUnbalancedIf
		}
		vm.condStack = vm.condStack[:len(vm.condStack)-1]
		return nil
	case txscript.OP_VERIFY:
		v, err := vm.dstack.popBool()
		if err != nil {
			return err
		}
		if !v {
			return ErrVerifyFailed
		}
		return nil
	case txscript.OP_RETURN:
		return ErrReturn

	case txscript.OP_TOALTSTACK:
		v, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		vm.astack.push(v)
		return nil
	case txscript.OP_FROMALTSTACK:
		v, err := vm.astack.pop()
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_DROP:
		_, err := vm.dstack.pop()
		return err
	case txscript.OP_2DROP:
		if _, err := vm.dstack.pop(); err != nil {
			return err
		}
		_, err := vm.dstack.pop()
		return err
	case txscript.OP_DUP:
		v, err := vm.dstack.peek(0)
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_2DUP:
		a, err := vm.dstack.peek(1)
		if err != nil {
			return err
		}
		b, _ := vm.dstack.peek(0)
		vm.dstack.push(a)
		vm.dstack.push(b)
		return nil
	case txscript.OP_OVER:
		v, err := vm.dstack.peek(1)
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_NIP:
		_, err := vm.dstack.remove(1)
		return err
	case txscript.OP_SWAP:
		v, err := vm.dstack.remove(1)
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_ROT:
		v, err := vm.dstack.remove(2)
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_PICK, txscript.OP_ROLL:
		n, err := vm.dstack.popInt()
		if err != nil {
			return err
		}
		var v []byte
		if op == txscript.OP_PICK {
			v, err = vm.dstack.peek(int(n))
		} else {
			v, err = vm.dstack.remove(int(n))
		}
		if err != nil {
			return err
		}
		vm.dstack.push(v)
		return nil
	case txscript.OP_DEPTH:
		vm.dstack.pushInt(int64(vm.dstack.depth()))
		return nil

	case txscript.OP_EQUAL, txscript.OP_EQUALVERIFY:
		b, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		a, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		eq := bytes.Equal(a, b)
		if op == txscript.OP_EQUALVERIFY {
			if !eq {
				return ErrEqualVerify
			}
			return nil
		}
		vm.dstack.pushBool(eq)
		return nil

	case txscript.OP_1ADD, txscript.OP_1SUB, txscript.OP_NEGATE, txscript.OP_ABS,
		txscript.OP_NOT, txscript.OP_0NOTEQUAL:
		return vm.unaryNum(op)

	case txscript.OP_ADD, txscript.OP_SUB, txscript.OP_BOOLAND, txscript.OP_BOOLOR,
		txscript.OP_NUMEQUAL, txscript.OP_NUMEQUALVERIFY, txscript.OP_NUMNOTEQUAL,
		txscript.OP_LESSTHAN, txscript.OP_GREATERTHAN, txscript.OP_LESSTHANOREQUAL,
		txscript.OP_GREATERTHANOREQUAL, txscript.OP_MIN, txscript.OP_MAX:
		return vm.binaryNum(op)

	case OP_BLAKE3:
		n, err := vm.dstack.popInt()
		if err != nil {
			return err
		}
		data, err := vm.popByteRun(int(n))
		if err != nil {
			return err
		}
		digest := hashx.Sum256(data)
		vm.pushByteRun(digest[:])
		return nil
	case OP_PACK:
		n, err := vm.dstack.popInt()
		if err != nil {
			return err
		}
		data, err := vm.popByteRun(int(n))
		if err != nil {
			return err
		}
		vm.dstack.push(data)
		return nil
	case OP_WOTSVERIFY:
		return vm.winternitzVerify()
	case OP_G1ADD:
		b, err := vm.popPoint()
		if err != nil {
			return err
		}
		a, err := vm.popPoint()
		if err != nil {
			return err
		}
		var sum bn254.G1Affine
		sum.Add(&a, &b)
		vm.pushPoint(&sum)
		return nil
	case OP_G1DOUBLE:
		p, err := vm.popPoint()
		if err != nil {
			return err
		}
		var d bn254.G1Affine
		d.Add(&p, &p)
		vm.pushPoint(&d)
		return nil
	case OP_G1NEG:
		p, err := vm.popPoint()
		if err != nil {
			return err
		}
		var n bn254.G1Affine
		n.Neg(&p)
		vm.pushPoint(&n)
		return nil
	case OP_SCALARBIT:
		idx, err := vm.dstack.popInt()
		if err != nil {
			return err
		}
		raw, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		v, err := codec.DeserializeFieldElement(raw, false)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidOperand, err)
		}
		if idx < 0 || idx >= 256 {
			return fmt.Errorf("%w: bit index %d", ErrInvalidOperand, idx)
		}
		vm.dstack.pushInt(int64(v.Bit(int(idx))))
		return nil
	case OP_HASHTOSCALAR:
		raw, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		if len(raw) != hashx.Size {
			return fmt.Errorf("%w: digest of %d bytes", ErrInvalidOperand, len(raw))
		}
		e := codec.SerializeFieldElement(hashx.ToScalar(raw), false)
		vm.dstack.push(e[:])
		return nil
	}

	return fmt.Errorf("%w: 0x%02x", ErrDisabledOpcode, op)
}

func (vm *Engine) unaryNum(op byte) error {
	v, err := vm.dstack.popInt()
	if err != nil {
		return err
	}
	switch op {
	case txscript.OP_1ADD:
		v++
	case txscript.OP_1SUB:
		v--
	case txscript.OP_NEGATE:
		v = -v
	case txscript.OP_ABS:
		if v < 0 {
			v = -v
		}
	case txscript.OP_NOT:
		vm.dstack.pushBool(v == 0)
		return nil
	case txscript.OP_0NOTEQUAL:
		vm.dstack.pushBool(v != 0)
		return nil
	}
	vm.dstack.pushInt(v)
	return nil
}

func (vm *Engine) binaryNum(op byte) error {
	b, err := vm.dstack.popInt()
	if err != nil {
		return err
	}
	a, err := vm.dstack.popInt()
	if err != nil {
		return err
	}
	switch op {
	case txscript.OP_ADD:
		vm.dstack.pushInt(a + b)
	case txscript.OP_SUB:
		vm.dstack.pushInt(a - b)
	case txscript.OP_BOOLAND:
		vm.dstack.pushBool(a != 0 && b != 0)
	case txscript.OP_BOOLOR:
		vm.dstack.pushBool(a != 0 || b != 0)
	case txscript.OP_NUMEQUAL:
		vm.dstack.pushBool(a == b)
	case txscript.OP_NUMEQUALVERIFY:
		if a != b {
			return ErrVerifyFailed
		}
	case txscript.OP_NUMNOTEQUAL:
		vm.dstack.pushBool(a != b)
	case txscript.OP_LESSTHAN:
		vm.dstack.pushBool(a < b)
	case txscript.OP_GREATERTHAN:
		vm.dstack.pushBool(a > b)
	case txscript.OP_LESSTHANOREQUAL:
		vm.dstack.pushBool(a <= b)
	case txscript.OP_GREATERTHANOREQUAL:
		vm.dstack.pushBool(a >= b)
	case txscript.OP_MIN:
		vm.dstack.pushInt(min(a, b))
	case txscript.OP_MAX:
		vm.dstack.pushInt(max(a, b))
	}
	return nil
}

// popByteRun pops n byte items, the first popped becoming byte 0.
func (vm *Engine) popByteRun(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrInvalidOperand, n)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		v, err := vm.dstack.popInt()
		if err != nil {
			return nil, err
		}
		if v < 0 || v > 0xff {
			return nil, fmt.Errorf("%w: %d is not a byte", ErrInvalidOperand, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// pushByteRun pushes data as byte items with data[0] on top.
func (vm *Engine) pushByteRun(data []byte) {
	for i := len(data) - 1; i >= 0; i-- {
		vm.dstack.pushInt(int64(data[i]))
	}
}

func (vm *Engine) popPoint() (bn254.G1Affine, error) {
	raw, err := vm.dstack.pop()
	if err != nil {
		return bn254.G1Affine{}, err
	}
	p, err := codec.DeserializeG1(raw)
	if err != nil {
		return bn254.G1Affine{}, fmt.Errorf("%w: %v", ErrInvalidOperand, err)
	}
	return p, nil
}

func (vm *Engine) pushPoint(p *bn254.G1Affine) {
	ser := codec.SerializeG1(p)
	vm.dstack.push(ser[:])
}

func (vm *Engine) winternitzVerify() error {
	var pk winternitz.PublicKey
	for i := range pk {
		item, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		if len(item) != winternitz.HashSize {
			return fmt.Errorf("%w: public key digit %d has %d bytes", ErrInvalidOperand, i, len(item))
		}
		copy(pk[i][:], item)
	}
	var sig winternitz.Signature
	for i := range sig {
		digit, err := vm.dstack.popInt()
		if err != nil {
			return err
		}
		if digit < 0 || digit > winternitz.MaxDigit {
			return fmt.Errorf("%w: signature digit %d is %d", ErrInvalidOperand, i, digit)
		}
		preimage, err := vm.dstack.pop()
		if err != nil {
			return err
		}
		if len(preimage) != winternitz.HashSize {
			return fmt.Errorf("%w: signature preimage %d has %d bytes", ErrInvalidOperand, i, len(preimage))
		}
		sig[i].Digit = byte(digit)
		copy(sig[i].Preimage[:], preimage)
	}
	digits, err := winternitz.Verify(pk, sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrVerifyFailed, err)
	}
	signed := hashx.SignedBytes(digits)
	vm.pushByteRun(signed[:])
	return nil
}
