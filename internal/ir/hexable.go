// Package ir defines the Hexable value tree: the IR leaf and composite
// values a compiled program is built from. Every variant knows its own
// byte length and how to render itself as a hex-digit string once the
// processor has resolved pointers and lowered stack references.
package ir

import (
	"encoding/hex"
	"strings"

	"github.com/holiman/uint256"

	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/opcode"
)

// Ctx supplies the two pieces of global state hex emission needs:
// label-name resolution (surviving host-namespace bindings) and Action
// byte-offset resolution (computed by the processor's byte-offset pass).
type Ctx struct {
	// Labels maps a label name to the id of the Action it refers to.
	Labels map[string]uint32
	// Offsets maps an Action id to the byte offset of its first emitted
	// byte (including its JUMPDEST, if any).
	Offsets map[uint32]int
}

func (c *Ctx) offsetOf(actionID uint32) (int, bool) {
	off, ok := c.Offsets[actionID]
	return off, ok
}

// Hexable is the tagged union of IR leaf and composite values.
type Hexable interface {
	// ByteLength returns the value's length in bytes. Must be pure: calling
	// it repeatedly must return the same result with no side effect.
	ByteLength() int
	// ToHex renders the value as a hex-digit string of length
	// 2*ByteLength(). ctx supplies label and byte-offset resolution.
	ToHex(ctx *Ctx) (string, error)
}

// Side selects which side Padded pads on.
type Side int

const (
	Right Side = iota
	Left
)

// Literal is a raw 256-bit integer. Byte length is the big-endian trimmed
// encoding's length, minimum 1 (so Literal(0) is the single byte 0x00).
type Literal struct {
	Value *uint256.Int
}

// NewLiteral wraps v as a Literal.
func NewLiteral(v *uint256.Int) Literal { return Literal{Value: v} }

func (l Literal) ByteLength() int {
	n := byteLenOf(l.Value)
	if n == 0 {
		return 1
	}
	return n
}

func byteLenOf(v *uint256.Int) int {
	bits := v.BitLen()
	return (bits + 7) / 8
}

func (l Literal) ToHex(*Ctx) (string, error) {
	n := l.ByteLength()
	b := l.Value.Bytes32()
	return hexEncode(b[32-n:]), nil
}

// Op is a single opcode byte.
type Op struct {
	Op opcode.Opcode
}

func (o Op) ByteLength() int { return 1 }

func (o Op) ToHex(*Ctx) (string, error) {
	return hexEncode([]byte{byte(o.Op.Byte)}), nil
}

// Concat is the concatenation of a list of Hexables.
type Concat struct {
	Items []Hexable
}

func (c Concat) ByteLength() int {
	n := 0
	for _, it := range c.Items {
		n += it.ByteLength()
	}
	return n
}

func (c Concat) ToHex(ctx *Ctx) (string, error) {
	var sb strings.Builder
	for _, it := range c.Items {
		h, err := it.ToHex(ctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(h)
	}
	return sb.String(), nil
}

// ByteRange is a sub-slice of Inner's hex, right-padded with 0x00 bytes if
// the slice extends past Inner's own length.
type ByteRange struct {
	Inner      Hexable
	Start, Len int
}

func (b ByteRange) ByteLength() int { return b.Len }

func (b ByteRange) ToHex(ctx *Ctx) (string, error) {
	full, err := b.Inner.ToHex(ctx)
	if err != nil {
		return "", err
	}
	raw, err := hexDecode(full)
	if err != nil {
		return "", err
	}
	out := make([]byte, b.Len)
	for i := 0; i < b.Len; i++ {
		src := b.Start + i
		if src < len(raw) {
			out[i] = raw[src]
		}
	}
	return hexEncode(out), nil
}

// WordRange is ByteRange with start/length expressed in 32-byte words.
func NewWordRange(inner Hexable, wordStart, wordLen int) ByteRange {
	return ByteRange{Inner: inner, Start: 32 * wordStart, Len: 32 * wordLen}
}

// Padded pads Inner up to the next multiple of Len bytes, zero-filling on
// Side.
type Padded struct {
	Inner Hexable
	Len   int
	Side  Side
}

func roundUp(n, mult int) int {
	if mult <= 0 {
		return n
	}
	rem := n % mult
	if rem == 0 {
		return n
	}
	return n + (mult - rem)
}

func (p Padded) ByteLength() int { return roundUp(p.Inner.ByteLength(), p.Len) }

func (p Padded) ToHex(ctx *Ctx) (string, error) {
	inner, err := p.Inner.ToHex(ctx)
	if err != nil {
		return "", err
	}
	total := p.ByteLength()
	pad := total - p.Inner.ByteLength()
	zeros := strings.Repeat("00", pad)
	if p.Side == Left {
		return zeros + inner, nil
	}
	return inner + zeros, nil
}

// SolidityString is a 32-byte big-endian length prefix followed by Inner's
// bytes, right-padded up to a multiple of 32.
type SolidityString struct {
	Inner Hexable
}

func (s SolidityString) ByteLength() int {
	return 32 + roundUp(s.Inner.ByteLength(), 32)
}

func (s SolidityString) ToHex(ctx *Ctx) (string, error) {
	n := s.Inner.ByteLength()
	lenWord := uint256.NewInt(uint64(n)).Bytes32()
	body, err := Padded{Inner: s.Inner, Len: 32, Side: Right}.ToHex(ctx)
	if err != nil {
		return "", err
	}
	return hexEncode(lenWord[:]) + body, nil
}

// JumpMap is the concatenation of LabelPointers, right-padded to a multiple
// of 32 bytes.
type JumpMap struct {
	Labels []string
}

func (j JumpMap) inner() Hexable {
	items := make([]Hexable, len(j.Labels))
	for i, name := range j.Labels {
		items[i] = LabelPointer{Name: name}
	}
	return Concat{Items: items}
}

func (j JumpMap) ByteLength() int { return roundUp(2*len(j.Labels), 32) }

func (j JumpMap) ToHex(ctx *Ctx) (string, error) {
	return Padded{Inner: j.inner(), Len: 32, Side: Right}.ToHex(ctx)
}

// LabelPointer is resolved at hex-emission time by name lookup in the
// surviving host namespace.
type LabelPointer struct {
	Name string
}

func (LabelPointer) ByteLength() int { return 2 }

func (l LabelPointer) ToHex(ctx *Ctx) (string, error) {
	actionID, ok := ctx.Labels[l.Name]
	if !ok {
		return "", evmerr.New(evmerr.LabelResolution, "$ptr(%q): name is not bound to an ActionPointer after script evaluation", l.Name)
	}
	off, ok := ctx.offsetOf(actionID)
	if !ok {
		return "", evmerr.New(evmerr.Internal, "$ptr(%q): resolved action has no byte offset", l.Name)
	}
	return offsetHex(off)
}

// ActionPointer is resolved to the 2-byte big-endian byte offset of the
// Action it refers to.
type ActionPointer struct {
	ActionID uint32
}

func (ActionPointer) ByteLength() int { return 2 }

func (a ActionPointer) ToHex(ctx *Ctx) (string, error) {
	off, ok := ctx.offsetOf(a.ActionID)
	if !ok {
		return "", evmerr.New(evmerr.Internal, "action %d has no byte offset", a.ActionID)
	}
	return offsetHex(off)
}

func offsetHex(off int) (string, error) {
	if off < 0 || off >= 1<<16 {
		return "", evmerr.New(evmerr.InputValidation, "byte offset %d does not fit in a 2-byte pointer (program exceeds 65536 bytes)", off)
	}
	return hexEncode([]byte{byte(off >> 8), byte(off)}), nil
}

// StackRefKind tags how a stack reference must be lowered.
type StackRefKind int

const (
	// Relative is the bare, unlowered form. It is a fatal internal error
	// for a Relative reference to reach hex emission: the processor's
	// simulate pass must replace it with an Op first.
	Relative StackRefKind = iota
	Dup
	Swap
	HotSwap
)

// StackRef is a placeholder lowered by the processor to a concrete DUPn or
// SWAPn opcode. RelativeStackReference, DupStackReference, SwapStackReference
// and HotSwapStackReference from spec.md §3 are the Relative, Dup, Swap, and
// HotSwap kinds of this single type.
type StackRef struct {
	Kind          StackRefKind
	OwnerActionID uint32
	Slot          int
}

func (StackRef) ByteLength() int { return 1 }

func (s StackRef) ToHex(*Ctx) (string, error) {
	return "", evmerr.New(evmerr.Internal, "bare stack reference (owner=%d slot=%d) reached hex emission without being lowered", s.OwnerActionID, s.Slot)
}

func hexEncode(b []byte) string { return strings.ToUpper(hex.EncodeToString(b)) }

func hexDecode(s string) ([]byte, error) {
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, evmerr.Wrap(evmerr.Internal, err, "decoding hex string %q", s)
	}
	return out, nil
}
