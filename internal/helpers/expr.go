package helpers

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/holiman/uint256"

	"github.com/tcoulter/evmscript/internal/dsl/interp"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
)

// fixedBytes is a Hexable whose length never shrinks from its encoded
// value, unlike Literal which trims leading zero bytes. $selector and $hex
// both need this: a selector whose high byte happens to be zero is still a
// 4-byte value.
type fixedBytes []byte

func (f fixedBytes) ByteLength() int { return len(f) }
func (f fixedBytes) ToHex(*ir.Ctx) (string, error) {
	return strings.ToUpper(hex.EncodeToString(f)), nil
}

func stringHexable(s string) fixedBytes { return fixedBytes(s) }

// parseHexString decodes a hex literal, leading "0x"/"0X" optional, into a
// fixed-width byte value. An odd number of digits is left-padded with a
// single zero nibble, matching $hex's own leniency.
func parseHexString(s string) (fixedBytes, bool) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, false
	}
	return fixedBytes(raw), true
}

// keccakSelector returns the 4-byte function selector for a Solidity-style
// signature such as "transfer(address,uint256)".
func keccakSelector(signature string) [4]byte {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	sum := h.Sum(nil)
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// exprPtr($ptr) builds a forward-or-backward label reference by name,
// resolved once the whole script has been evaluated.
func (c *Catalogue) exprPtr(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("$ptr", pos, "expected exactly 1 argument, got %d", len(args))
	}
	name, ok := args[0].(string)
	if !ok {
		return nil, argErr("$ptr", pos, "expected a string name")
	}
	return ir.LabelPointer{Name: name}, nil
}

// exprConcat($concat) joins any number of Hexables end to end.
func (c *Catalogue) exprConcat(pos token.Pos, args []any) (any, error) {
	items := make([]ir.Hexable, len(args))
	for i, a := range args {
		h, ok := toHexable(a)
		if !ok {
			return nil, argErr("$concat", pos, "argument %d has unsupported type %T", i, a)
		}
		items[i] = h
	}
	return ir.Concat{Items: items}, nil
}

// exprJumpmap($jumpmap) builds a table of 2-byte label pointers, one per
// name, right-padded to a 32-byte boundary.
func (c *Catalogue) exprJumpmap(pos token.Pos, args []any) (any, error) {
	labels := make([]string, len(args))
	for i, a := range args {
		name, ok := a.(string)
		if !ok {
			return nil, argErr("$jumpmap", pos, "argument %d must be a string label name", i)
		}
		labels[i] = name
	}
	return ir.JumpMap{Labels: labels}, nil
}

// exprBytelen($bytelen) returns a Hexable's byte length as an integer, for
// use in size computations elsewhere in a script.
func (c *Catalogue) exprBytelen(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("$bytelen", pos, "expected exactly 1 argument, got %d", len(args))
	}
	h, ok := toHexable(args[0])
	if !ok {
		return nil, argErr("$bytelen", pos, "unsupported argument type %T", args[0])
	}
	return uint256.NewInt(uint64(h.ByteLength())), nil
}

// exprHex($hex) parses a literal hex string (with or without a leading
// "0x") into a fixed-width byte value.
func (c *Catalogue) exprHex(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("$hex", pos, "expected exactly 1 argument, got %d", len(args))
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, argErr("$hex", pos, "expected a string argument")
	}
	h, ok := parseHexString(s)
	if !ok {
		return nil, argErr("$hex", pos, "invalid hex string %q", s)
	}
	return h, nil
}

// exprPad($pad) pads a Hexable up to a fixed byte length.
func (c *Catalogue) exprPad(pos token.Pos, args []any) (any, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, argErr("$pad", pos, "expected 2 or 3 arguments, got %d", len(args))
	}
	h, ok := toHexable(args[0])
	if !ok {
		return nil, argErr("$pad", pos, "unsupported first argument type %T", args[0])
	}
	lit, ok := args[1].(*uint256.Int)
	if !ok {
		return nil, argErr("$pad", pos, "second argument must be an integer length")
	}
	side := ir.Left
	if len(args) == 3 {
		s, ok := args[2].(string)
		if !ok {
			return nil, argErr("$pad", pos, "third argument must be the string \"left\" or \"right\"")
		}
		switch s {
		case "left":
			side = ir.Left
		case "right":
			side = ir.Right
		default:
			return nil, argErr("$pad", pos, "third argument must be \"left\" or \"right\", got %q", s)
		}
	}
	return ir.Padded{Inner: h, Len: int(lit.Uint64()), Side: side}, nil
}

// exprSelector($selector) computes the 4-byte Keccak-256 function selector
// of a Solidity-style signature, the same computation dispatch() performs
// internally, exposed standalone for scripts that build their own dispatch
// tables by hand.
func (c *Catalogue) exprSelector(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("$selector", pos, "expected exactly 1 argument, got %d", len(args))
	}
	sig, ok := args[0].(string)
	if !ok {
		return nil, argErr("$selector", pos, "expected a string signature")
	}
	sel := keccakSelector(sig)
	return fixedBytes(sel[:]), nil
}

// exprConfig($) sets a process-wide config flag, e.g. $("deployable", true).
func (c *Catalogue) exprConfig(pos token.Pos, args []any) (any, error) {
	if len(args) != 2 {
		return nil, argErr("$", pos, "expected exactly 2 arguments, got %d", len(args))
	}
	key, ok := args[0].(string)
	if !ok {
		return nil, argErr("$", pos, "first argument must be a string key")
	}
	c.rc.SetConfig(key, args[1])
	return nil, nil
}

// dispatch(map) compares the leading 4 bytes of calldata against every
// signature key in map, jumping to the matching value (a label reference or
// composed Action) on the first match, falling through to a zero-length
// revert if nothing matches.
func (c *Catalogue) dispatch(pos token.Pos, args []any) (any, error) {
	if len(args) != 1 {
		return nil, argErr("dispatch", pos, "expected exactly 1 argument, got %d", len(args))
	}
	obj, ok := args[0].(*interp.Object)
	if !ok {
		return nil, argErr("dispatch", pos, "expected an object literal mapping signatures to labels")
	}

	b := newBuilder("dispatch", pos)
	b.pushInt(0)
	b.op(opcode.CALLDATALOAD)
	b.pushInt(224)
	b.op(opcode.SHR) // [selector]

	for _, pair := range obj.Pairs {
		sel := keccakSelector(pair.Key)
		b.op(opcode.DupN(1)) // [selector, selector]
		b.pushHexable(fixedBytes(sel[:]))
		b.op(opcode.EQ) // [selector, matched]
		if err := c.resolveArg(b, pos, pair.Value, ir.Dup); err != nil {
			return nil, err
		}
		b.op(opcode.JUMPI) // [selector]
	}
	b.op(opcode.POP)
	b.pushInt(0)
	b.pushInt(0)
	b.op(opcode.REVERT)
	return c.finish(b, false), nil
}
