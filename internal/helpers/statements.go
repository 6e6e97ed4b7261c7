package helpers

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
)

func argErr(name string, pos token.Pos, format string, args ...any) error {
	return evmerr.At(evmerr.InputValidation, name, pos, format, args...)
}

// push(v) pushes a single value no wider than 32 bytes, choosing the
// narrowest PUSHn that fits.
func (c *Catalogue) push(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("push", pos, "expected exactly 1 argument, got %d", len(args))
	}
	if _, ok := args[0].(*action.Pointer); ok {
		return nil, evmerr.At(evmerr.Composition, "push", pos, "cannot push the result of another helper; reference it by name instead")
	}
	h, ok := toHexable(args[0])
	if !ok {
		return nil, argErr("push", pos, "unsupported argument type %T", args[0])
	}
	if h.ByteLength() > 32 {
		return nil, argErr("push", pos, "cannot accept values larger than 32 bytes")
	}
	b := newBuilder("push", pos)
	b.pushHexable(h)
	return c.finish(b, false), nil
}

// pushN returns a push helper that requires its argument to be exactly n
// bytes wide, matching the explicit pushN(v) family (push1..push32).
func (c *Catalogue) pushN(n int) func(token.Pos, []any) (any, error) {
	name := fmt.Sprintf("push%d", n)
	return func(pos token.Pos, args []any) (any, error) {
		if len(args) != 1 {
			return nil, argErr(name, pos, "expected exactly 1 argument, got %d", len(args))
		}
		h, ok := toHexable(args[0])
		if !ok {
			return nil, argErr(name, pos, "unsupported argument type %T", args[0])
		}
		if h.ByteLength() != n {
			return nil, argErr(name, pos, "expected %d bytes but received %d", n, h.ByteLength())
		}
		b := newBuilder(name, pos)
		op, _ := opcode.ByMnemonic(name)
		b.a.AppendHexable(ir.Op{Op: op})
		b.a.AppendHexable(h)
		return c.finish(b, false), nil
	}
}

// alloc(v, pushOffsets=true) materialises v into memory one 32-byte word at
// a time, each word obtained fresh from MSIZE (memory always grows to the
// next 32-byte boundary on MSTORE, so successive MSIZE reads lay words out
// contiguously). If pushOffsets is true, the base offset and v's byte
// length are left on the stack.
func (c *Catalogue) alloc(pos token.Pos, args []any) (any, error) {
	return c.allocImpl("alloc", pos, args, true)
}

// allocUnsafe writes v into memory with the same word-by-word MSTOREs as
// alloc, but computes each later word's address by adding a constant to the
// base offset read once from MSIZE instead of re-reading MSIZE per word. It
// does not use CODECOPY and does not embed v as a trailing data blob; its
// stack result is the same as alloc's.
func (c *Catalogue) allocUnsafe(pos token.Pos, args []any) (any, error) {
	return c.allocImpl("allocUnsafe", pos, args, false)
}

// allocImpl writes h's bytes into freshly claimed memory, one 32-byte word
// per MSTORE. In safe mode each word's destination address is re-read from
// MSIZE immediately before the MSTORE that targets it; in unsafe mode
// (allocUnsafe) the address is instead computed by adding a constant offset
// to the base captured once at the start, trusting that nothing else
// touches memory meanwhile. Either way the base offset is left on top of
// the stack once the writes are done, since every iteration's net stack
// effect is zero.
func (c *Catalogue) allocImpl(name string, pos token.Pos, args []any, safe bool) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, argErr(name, pos, "expected 1 or 2 arguments, got %d", len(args))
	}
	h, ok := toHexable(args[0])
	if !ok {
		return nil, argErr(name, pos, "unsupported argument type %T", args[0])
	}
	pushOffsets := true
	if len(args) == 2 {
		v, ok := args[1].(bool)
		if !ok {
			return nil, argErr(name, pos, "second argument must be a boolean")
		}
		pushOffsets = v
	}

	b := newBuilder(name, pos)
	n := h.ByteLength()
	words := (n + 31) / 32
	if words == 0 {
		words = 1
	}

	b.op(opcode.MSIZE) // [base]
	for i := 0; i < words; i++ {
		start := 32 * i
		rem := n - start
		if rem > 32 {
			rem = 32
		}
		if rem == 32 || rem == 0 {
			b.pushHexable(ir.NewWordRange(h, i, 1)) // [base, word_i]
		} else {
			// Partial final word: push only its actual bytes (narrowest
			// PUSHn that fits) and SHL them into the high-order position a
			// full word would occupy, instead of paying for a PUSH32 whose
			// low-order bytes are all zero padding.
			b.pushHexable(ir.ByteRange{Inner: h, Start: start, Len: rem}) // [base, partial]
			b.pushInt(uint64((32 - rem) * 8))
			b.op(opcode.SHL) // [base, word_i]
		}
		b.op(opcode.DupN(2)) // [base, word_i, base]
		if i > 0 {
			if safe {
				b.op(opcode.POP)
				b.op(opcode.MSIZE)
			} else {
				b.pushInt(uint64(32 * i))
				b.op(opcode.ADD)
			}
		}
		b.op(opcode.MSTORE) // [base]
	}

	if pushOffsets {
		b.pushInt(uint64(n))
		b.op(opcode.SwapN(1)) // leaves memOffset on top, byteLen beneath it
	}
	return c.finish(b, false), nil
}

// allocStack(n) claims n 32-byte words of scratch memory without writing to
// them, leaving [baseOffset] on the stack. Useful for a return buffer whose
// contents are filled in later by other helpers. Each word's last byte is
// touched with MSTORE8 to force memory to expand to that boundary, while
// keeping the base offset underneath for the next iteration.
func (c *Catalogue) allocStack(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("allocStack", pos, "expected exactly 1 argument, got %d", len(args))
	}
	lit, ok := args[0].(*uint256.Int)
	if !ok {
		return nil, argErr("allocStack", pos, "expected an integer word count")
	}
	words := lit.Uint64()
	b := newBuilder("allocStack", pos)
	b.op(opcode.MSIZE) // [base]
	for i := uint64(0); i < words; i++ {
		b.pushInt(0)          // [base, 0]
		b.op(opcode.DupN(2))  // [base, 0, base]
		b.pushInt(32*(i+1) - 1)
		b.op(opcode.ADD)      // [base, 0, addr]
		b.op(opcode.MSTORE8)  // [base]
	}
	return c.finish(b, false), nil
}

// pushCallDataOffsets returns a helper that pushes the calldata word offset
// of every argument after the 4-byte selector, in forward or reverse order.
func (c *Catalogue) pushCallDataOffsets(reverse bool) func(token.Pos, []any) (any, error) {
	name := "pushCallDataOffsets"
	if reverse {
		name = "pushCallDataOffsetsReverse"
	}
	return func(pos token.Pos, args []any) (any, error) {
		if len(args) != 1 {
			return nil, argErr(name, pos, "expected exactly 1 argument, got %d", len(args))
		}
		lit, ok := args[0].(*uint256.Int)
		if !ok {
			return nil, argErr(name, pos, "expected an integer argument count")
		}
		count := int(lit.Uint64())
		b := newBuilder(name, pos)
		order := make([]int, count)
		for i := range order {
			order[i] = i
		}
		if reverse {
			for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
				order[i], order[j] = order[j], order[i]
			}
		}
		for _, i := range order {
			b.pushInt(uint64(4 + i*32))
		}
		return c.finish(b, false), nil
	}
}

// calldataload(offset) reads one 32-byte calldata word. offset may be a
// scalar, a stack reference, or another Action's result.
func (c *Catalogue) calldataload(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("calldataload", pos, "expected exactly 1 argument, got %d", len(args))
	}
	b := newBuilder("calldataload", pos)
	if err := c.resolveArg(b, pos, args[0], ir.Dup); err != nil {
		return nil, err
	}
	b.op(opcode.CALLDATALOAD)
	return c.finish(b, false), nil
}

// jumpOrJumpi returns the jump/jumpi helper for the given opcode: if an
// argument is supplied it is pushed (by reference, pointer, or composition)
// before the jump itself.
func (c *Catalogue) jumpOrJumpi(op opcode.Opcode) func(token.Pos, []any) (any, error) {
	return func(pos token.Pos, args []any) (any, error) {
		if len(args) > 1 {
			return nil, argErr(op.Mnemonic, pos, "expected at most 1 argument, got %d", len(args))
		}
		b := newBuilder(op.Mnemonic, pos)
		if len(args) == 1 {
			if err := c.resolveArg(b, pos, args[0], ir.Dup); err != nil {
				return nil, err
			}
		}
		b.op(op)
		return c.finish(b, false), nil
	}
}

// revert(offset, len) or revert() for a zero-length revert.
func (c *Catalogue) revert(pos token.Pos, args []any) (any, error) {
	if len(args) != 0 && len(args) != 2 {
		return nil, argErr("revert", pos, "expected 0 or 2 arguments, got %d", len(args))
	}
	b := newBuilder("revert", pos)
	if len(args) == 0 {
		b.pushInt(0)
		b.pushInt(0)
	} else {
		if err := c.resolveArg(b, pos, args[1], ir.Dup); err != nil {
			return nil, err
		}
		if err := c.resolveArg(b, pos, args[0], ir.Dup); err != nil {
			return nil, err
		}
	}
	b.op(opcode.REVERT)
	return c.finish(b, false), nil
}

// assertNonPayable() reverts the call if any wei was sent with it.
func (c *Catalogue) assertNonPayable(pos token.Pos, args []any) (any, error) {
	if len(args) != 0 {
		return nil, argErr("assertNonPayable", pos, "expected no arguments, got %d", len(args))
	}
	b := newBuilder("assertNonPayable", pos)
	b.op(opcode.CALLVALUE)
	b.op(opcode.ISZERO) // 1 when no value was sent
	ok := action.New("assertNonPayableOk", pos)
	pushActionPointer(b, ok)
	b.op(opcode.JUMPI)
	b.pushInt(0)
	b.pushInt(0)
	b.op(opcode.REVERT)
	ok.IsJumpDestination = true
	ptr := c.finish(b, false)
	c.rc.Push(ok, false) // registered after b.a so it lands immediately past the revert
	return ptr, nil
}

// assert(cond) reverts unless cond is non-zero. cond may be a child Action
// (inlined, since it is the conservative choice spec.md §4 leaves open when
// the argument's child-eligibility is ambiguous) or a scalar/reference.
func (c *Catalogue) assertHelper(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("assert", pos, "expected exactly 1 argument, got %d", len(args))
	}
	b := newBuilder("assert", pos)
	if err := c.resolveArg(b, pos, args[0], ir.Dup); err != nil {
		return nil, err
	}
	ok := action.New("assertOk", pos)
	pushActionPointer(b, ok)
	b.op(opcode.JUMPI)
	b.pushInt(0)
	b.pushInt(0)
	b.op(opcode.REVERT)
	ok.IsJumpDestination = true
	ptr := c.finish(b, false)
	c.rc.Push(ok, false) // registered after b.a so it lands immediately past the revert
	return ptr, nil
}

// bail(msg) reverts with msg encoded as Solidity's Error(string) ABI.
func (c *Catalogue) bail(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("bail", pos, "expected exactly 1 argument, got %d", len(args))
	}
	msg, ok := args[0].(string)
	if !ok {
		return nil, argErr("bail", pos, "expected a string argument")
	}
	b := newBuilder("bail", pos)
	selector := keccakSelector("Error(string)")
	body := ir.Concat{Items: []ir.Hexable{
		ir.NewLiteral(new(uint256.Int).SetBytes(selector[:4])),
		ir.Padded{Inner: ir.NewLiteral(uint256.NewInt(32)), Len: 32, Side: ir.Left},
		ir.SolidityString{Inner: stringHexable(msg)},
	}}
	allocPtr, err := c.allocImpl("bail", pos, []any{body, true}, true)
	if err != nil {
		return nil, err
	}
	if err := c.resolveArg(b, pos, allocPtr, ir.Dup); err != nil {
		return nil, err
	}
	b.op(opcode.REVERT)
	return c.finish(b, false), nil
}

// set(ref, v) writes v into an existing stack slot via a HotSwapStackReference
// rather than pushing a new item.
func (c *Catalogue) set(pos token.Pos, args []any) (any, error) {
	if len(args) != 2 {
		return nil, argErr("set", pos, "expected exactly 2 arguments, got %d", len(args))
	}
	ref, ok := args[0].(ir.StackRef)
	if !ok {
		return nil, argErr("set", pos, "first argument must be a stack reference")
	}
	b := newBuilder("set", pos)
	if err := c.resolveArg(b, pos, args[1], ir.Dup); err != nil {
		return nil, err
	}
	ref.Kind = ir.HotSwap
	b.raw(ref)
	return c.finish(b, false), nil
}

// dup(ref) duplicates an existing stack slot onto the top without consuming
// anything.
func (c *Catalogue) dup(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("dup", pos, "expected exactly 1 argument, got %d", len(args))
	}
	ref, ok := args[0].(ir.StackRef)
	if !ok {
		return nil, argErr("dup", pos, "argument must be a stack reference")
	}
	b := newBuilder("dup", pos)
	ref.Kind = ir.Dup
	b.raw(ref)
	b.depth++
	return c.finish(b, false), nil
}

// defaultOpcodeHelper builds the auto-registered helper for any opcode
// without a hand-written implementation: push each supplied argument, then
// emit the opcode itself. Arguments are optional — any operand the caller
// omits is assumed to already be sitting on the stack from earlier code, so
// len(args) may be anywhere from 0 up to op.Removed. Supplied arguments are
// pushed in reverse order so the first one lands on top, matching the order
// the opcode itself would pop them.
func (c *Catalogue) defaultOpcodeHelper(op opcode.Opcode) func(token.Pos, []any) (any, error) {
	return func(pos token.Pos, args []any) (any, error) {
		if len(args) > op.Removed {
			return nil, argErr(op.Mnemonic, pos, "expected at most %d argument(s), got %d", op.Removed, len(args))
		}
		b := newBuilder(op.Mnemonic, pos)
		for i := len(args) - 1; i >= 0; i-- {
			if err := c.resolveArg(b, pos, args[i], ir.Dup); err != nil {
				return nil, err
			}
		}
		b.op(op)
		return c.finish(b, false), nil
	}
}
