// Package helpers implements the public catalogue of script primitives:
// the statement helpers that build Actions (push, alloc, jump, dispatch,
// add, set, dup, …) and the expression helpers that build bare Hexable
// values ($concat, $ptr, $hex, $pad, $jumpmap, $bytelen, $selector, $).
//
// Every statement helper follows the same shape: validate its arguments,
// create a new Action, append opcodes and operands to it, register it with
// the RuntimeContext, and return an *action.Pointer. Expression helpers
// never touch the RuntimeContext; they only build and return an ir.Hexable.
package helpers

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/interp"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
)

// Catalogue builds Actions into rc as its helpers are called by a script.
type Catalogue struct {
	rc *action.RuntimeContext
}

// New creates a Catalogue writing into rc.
func New(rc *action.RuntimeContext) *Catalogue { return &Catalogue{rc: rc} }

// Builtins returns every helper and expression helper bound by name, ready
// to be handed to interp.NewThread. It includes the auto-registered default
// helper for every opcode that has no hand-written implementation above.
func (c *Catalogue) Builtins() map[string]interp.Builtin {
	out := map[string]interp.Builtin{
		"push":                      c.push,
		"alloc":                     c.alloc,
		"allocUnsafe":               c.allocUnsafe,
		"allocStack":                c.allocStack,
		"pushCallDataOffsets":       c.pushCallDataOffsets(false),
		"pushCallDataOffsetsReverse": c.pushCallDataOffsets(true),
		"calldataload":              c.calldataload,
		"jump":                      c.jumpOrJumpi(opcode.JUMP),
		"jumpi":                     c.jumpOrJumpi(opcode.JUMPI),
		"dispatch":                  c.dispatch,
		"revert":                    c.revert,
		"assertNonPayable":          c.assertNonPayable,
		"assert":                    c.assertHelper,
		"bail":                      c.bail,
		"set":                       c.set,
		"dup":                       c.dup,

		"$ptr":      c.exprPtr,
		"$concat":   c.exprConcat,
		"$jumpmap":  c.exprJumpmap,
		"$bytelen":  c.exprBytelen,
		"$hex":      c.exprHex,
		"$pad":      c.exprPad,
		"$selector": c.exprSelector,
		"$":         c.exprConfig,
	}
	for n := 1; n <= 32; n++ {
		out[fmt.Sprintf("push%d", n)] = c.pushN(n)
	}
	handWritten := map[string]bool{}
	for name := range out {
		handWritten[name] = true
	}
	for _, op := range opcode.All() {
		op := op
		if handWritten[op.Mnemonic] {
			continue
		}
		if op.IsPush() {
			continue // PUSHn is handled above; a raw pushN default makes no sense without a value
		}
		out[op.Mnemonic] = c.defaultOpcodeHelper(op)
	}
	// RETURN's default helper is also bound under its reserved-word alias.
	out["ret"] = out[opcode.RETURN.Mnemonic]
	return out
}

// --- argument coercion -----------------------------------------------------

func toHexable(v any) (ir.Hexable, bool) {
	switch x := v.(type) {
	case *uint256.Int:
		return ir.NewLiteral(x), true
	case ir.Hexable:
		return x, true
	case bool:
		n := uint64(0)
		if x {
			n = 1
		}
		return ir.NewLiteral(uint256.NewInt(n)), true
	case string:
		h, ok := parseHexString(x)
		if !ok {
			return nil, false
		}
		return h, true
	}
	return nil, false
}

// builder tracks the running stack depth of opcodes emitted into a under
// construction by a single helper call, so the helper can compute its own
// DUP/SWAP indices without relying on the processor's cross-Action
// simulation pass (that pass only resolves RelativeStackReferences between
// Actions; within one Action's own hand-emitted opcode sequence, the helper
// is responsible for its own bookkeeping, exactly as a human author would
// be when writing raw EVM assembly).
type builder struct {
	a     *action.Action
	depth int
}

func newBuilder(name string, pos token.Pos) *builder {
	return &builder{a: action.New(name, pos)}
}

func (b *builder) op(op opcode.Opcode) *builder {
	b.a.AppendHexable(ir.Op{Op: op})
	removed, added := op.StackDelta()
	b.depth += added - removed
	return b
}

func (b *builder) pushHexable(h ir.Hexable) *builder {
	n := h.ByteLength()
	if n < 1 {
		n = 1
	}
	op, _ := opcode.ByMnemonic(fmt.Sprintf("push%d", n))
	b.a.AppendHexable(ir.Op{Op: op})
	b.a.AppendHexable(h)
	b.depth++
	return b
}

func (b *builder) pushInt(n uint64) *builder { return b.pushHexable(ir.NewLiteral(uint256.NewInt(n))) }

// dupDepth duplicates the item that is currently `fromTop` items below the
// top (1 = the current top itself).
func (b *builder) dupDepth(fromTop int) *builder {
	b.op(opcode.DupN(fromTop))
	return b
}

func (b *builder) raw(item ir.Hexable) *builder {
	b.a.AppendHexable(item)
	return b
}

func (b *builder) ptr() *action.Pointer { return b.a.Pointer() }

func (c *Catalogue) finish(b *builder, tail bool) *action.Pointer {
	c.rc.Push(b.a, tail)
	return b.ptr()
}

// resolveArg applies the composition / stack-reference / scalar-push
// disambiguation from spec.md §4.3 to a single evaluated argument, emitting
// whatever IR is required into b and, if the argument is a reference,
// lowering it to the requested kind.
func (c *Catalogue) resolveArg(b *builder, callerPos token.Pos, v any, refKind ir.StackRefKind) error {
	switch x := v.(type) {
	case ir.StackRef:
		x.Kind = refKind
		b.raw(x)
		b.depth++
		return nil
	case *action.Pointer:
		return c.resolveActionArg(b, callerPos, x)
	default:
		h, ok := toHexable(v)
		if !ok {
			return evmerr.At(evmerr.InputValidation, b.a.Name, callerPos, "unsupported argument type %T", v)
		}
		if h.ByteLength() > 32 {
			return evmerr.At(evmerr.InputValidation, b.a.Name, callerPos, "cannot accept values larger than 32 bytes")
		}
		b.pushHexable(h)
		return nil
	}
}

// resolveActionArg implements the composition rule: a nested helper call's
// Action is inlined as a child when the argument's source position is at or
// after the calling helper's own call-site position (as it is for a call
// written inside the caller's argument list); otherwise the argument is a
// reference to an Action created by an earlier statement and only its 2-byte
// pointer is pushed. See DESIGN.md for the resolution of this spec.md §4.3
// ambiguity.
func (c *Catalogue) resolveActionArg(b *builder, callerPos token.Pos, ptr *action.Pointer) error {
	child := ptr.Action()
	if posAtOrAfter(child.SourceLoc, callerPos) {
		if err := b.a.AppendChild(child); err != nil {
			return err
		}
		c.rc.Retract(child.ID)
		b.depth++
		return nil
	}
	op, _ := opcode.ByMnemonic("push2")
	b.a.AppendHexable(ir.Op{Op: op})
	b.a.AppendHexable(ir.ActionPointer{ActionID: child.ID})
	b.depth++
	return nil
}

// pushActionPointer pushes a's 2-byte jump-target pointer directly, for
// synthetic placeholder Actions a helper creates purely as a local jump
// target (never eligible for composition/inlining).
func pushActionPointer(b *builder, a *action.Action) {
	op, _ := opcode.ByMnemonic("push2")
	b.a.AppendHexable(ir.Op{Op: op})
	b.a.AppendHexable(ir.ActionPointer{ActionID: a.ID})
	b.depth++
}

func posAtOrAfter(caller, arg token.Pos) bool {
	cl, cc := caller.LineCol()
	al, ac := arg.LineCol()
	if cl != al {
		return cl > al
	}
	return cc >= ac
}
