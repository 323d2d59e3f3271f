package script

import (
	"errors"
	"fmt"
)

var (
	ErrStackUnderflow   = errors.New("script: stack underflow")
	ErrNumberTooBig     = errors.New("script: numeric operand too big")
	ErrVerifyFailed     = errors.New("script: verify failed")
	ErrEqualVerify      = errors.New("script: equalverify failed")
	ErrUnbalancedIf     = errors.New("script: unbalanced conditional")
	ErrReturn           = errors.New("script: OP_RETURN executed")
	ErrDisabledOpcode   = errors.New("script: unsupported opcode")
	ErrInvalidOperand   = errors.New("script: invalid gadget operand")
	ErrEmptyStackResult = errors.New("script: empty stack after execution")
)

// maxNumSize matches the 4-byte operand limit of the arithmetic opcodes.
const maxNumSize = 4

type stack struct {
	items [][]byte
}

func (s *stack) depth() int {
	return len(s.items)
}

func (s *stack) push(b []byte) {
	s.items = append(s.items, b)
}

func (s *stack) pushInt(v int64) {
	s.push(encodeNum(v))
}

func (s *stack) pushBool(v bool) {
	if v {
		s.pushInt(1)
		return
	}
	s.pushInt(0)
}

func (s *stack) pop() ([]byte, error) {
	if len(s.items) == 0 {
		return nil, ErrStackUnderflow
	}
	top := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return top, nil
}

func (s *stack) popInt() (int64, error) {
	b, err := s.pop()
	if err != nil {
		return 0, err
	}
	return decodeNum(b)
}

func (s *stack) popBool() (bool, error) {
	b, err := s.pop()
	if err != nil {
		return false, err
	}
	return asBool(b), nil
}

// peek returns the item idx positions below the top.
func (s *stack) peek(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(s.items) {
		return nil, fmt.Errorf("%w: index %d with depth %d", ErrStackUnderflow, idx, len(s.items))
	}
	return s.items[len(s.items)-1-idx], nil
}

// remove takes out the item idx positions below the top.
func (s *stack) remove(idx int) ([]byte, error) {
	if idx < 0 || idx >= len(s.items) {
		return nil, fmt.Errorf("%w: index %d with depth %d", ErrStackUnderflow, idx, len(s.items))
	}
	pos := len(s.items) - 1 - idx
	item := s.items[pos]
	s.items = append(s.items[:pos], s.items[pos+1:]...)
	return item, nil
}

func (s *stack) snapshot() [][]byte {
	out := make([][]byte, len(s.items))
	for i, item := range s.items {
		out[i] = append([]byte(nil), item...)
	}
	return out
}

// encodeNum returns the minimal little-endian sign-magnitude encoding.
func encodeNum(v int64) []byte {
	if v == 0 {
		return nil
	}
	neg := v < 0
	abs := v
	if neg {
		abs = -v
	}
	var out []byte
	for abs > 0 {
		out = append(out, byte(abs&0xff))
		abs >>= 8
	}
	if out[len(out)-1]&0x80 != 0 {
		extra := byte(0x00)
		if neg {
			extra = 0x80
		}
		out = append(out, extra)
	} else if neg {
		out[len(out)-1] |= 0x80
	}
	return out
}

func decodeNum(b []byte) (int64, error) {
	if len(b) > maxNumSize {
		return 0, fmt.Errorf("%w: %d bytes", ErrNumberTooBig, len(b))
	}
	if len(b) == 0 {
		return 0, nil
	}
	var v int64
	for i, c := range b {
		v |= int64(c) << (8 * i)
	}
	if b[len(b)-1]&0x80 != 0 {
		v &^= int64(0x80) << (8 * (len(b) - 1))
		return -v, nil
	}
	return v, nil
}

func asBool(b []byte) bool {
	for i, c := range b {
		if c != 0 {
			if i == len(b)-1 && c == 0x80 {
				return false
			}
			return true
		}
	}
	return false
}
