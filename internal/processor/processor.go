// Package processor implements the ActionProcessor: the four-pass pipeline
// that turns a RuntimeContext's tree of Actions into a finished hex string.
//
//  1. flatten    - walk every Action in source order, inlining children in
//     place and inserting a JUMPDEST ahead of any Action marked as a jump
//     destination.
//  2. simulate   - walk the flattened instruction list maintaining a
//     compile-time model of the real EVM stack, lowering every StackRef to
//     a concrete DUPn/SWAPn opcode.
//  3. offsets    - walk the lowered list computing the byte offset of every
//     instruction and every Action's first byte, needed to resolve
//     LabelPointer and ActionPointer.
//  4. emit       - render every instruction to hex, now that ctx.Labels and
//     ctx.Offsets are fully populated.
package processor

import (
	"fmt"
	"strings"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
)

// instr is one flattened instruction: either a concrete leaf Hexable or an
// unlowered StackRef awaiting pass 2.
type instr struct {
	hex      ir.Hexable
	actionID uint32 // the owning Action, for offset and VirtualStack bookkeeping
}

// Processor runs the four passes over a RuntimeContext.
type Processor struct {
	rc *action.RuntimeContext
}

// New creates a Processor for rc.
func New(rc *action.RuntimeContext) *Processor { return &Processor{rc: rc} }

// Process runs all four passes and returns the finished hex string (with no
// leading "0x"), optionally re-wrapped in a deployment preamble if
// $("deployable", true) was set during script evaluation. labels maps a
// surviving script binding name to the Action it refers to, produced by the
// host adapter's post-evaluation promotion walk.
func (p *Processor) Process(labels map[string]uint32) (string, error) {
	flat, ends, err := p.flatten()
	if err != nil {
		return "", err
	}
	if err := p.simulate(flat, ends); err != nil {
		return "", err
	}
	ctx := &ir.Ctx{Labels: labels, Offsets: p.computeOffsets(flat)}
	return p.emitHex(flat, ctx)
}

// actionEnd records, in the chronological order Actions finish contributing
// to the flat instruction list, which Action ended at which index. A child
// Action always finishes (and is recorded) before the parent that inlined
// it, since the parent's own end is only recorded after its loop over all
// of its items — including that child — returns.
type actionEnd struct {
	ID  uint32
	Idx int
}

// flatten walks Actions and children in source order, producing one flat
// instruction list. A child Action's own items are spliced in place of the
// Item that referenced it; a jump-destination Action gets a JUMPDEST
// instruction immediately before its own first item. It also records, for
// every Action, the flat-list index immediately after its last item (its
// own or an inlined child's) — the point at which the model's top 16 items
// become that Action's published VirtualStack.
func (p *Processor) flatten() ([]instr, []actionEnd, error) {
	var out []instr
	var ends []actionEnd
	var walk func(a *action.Action) error
	walk = func(a *action.Action) error {
		if a.IsJumpDestination {
			op, ok := opcode.ByMnemonic("jumpdest")
			if !ok {
				return evmerr.New(evmerr.Internal, "opcode table missing jumpdest")
			}
			out = append(out, instr{hex: ir.Op{Op: op}, actionID: a.ID})
		}
		for _, item := range a.Intermediate {
			if item.Child != nil {
				if err := walk(item.Child); err != nil {
					return err
				}
				continue
			}
			out = append(out, instr{hex: item.Hexable, actionID: a.ID})
		}
		ends = append(ends, actionEnd{ID: a.ID, Idx: len(out)})
		return nil
	}
	for _, a := range p.rc.Actions {
		if err := walk(a); err != nil {
			return nil, nil, err
		}
	}
	for _, a := range p.rc.TailActions {
		if err := walk(a); err != nil {
			return nil, nil, err
		}
	}
	return out, ends, nil
}

// stackModel is a compile-time shadow of the real EVM stack, tracking only
// which (actionID, slot) a given depth currently holds so StackRef lowering
// can compute the right DUP/SWAP distance.
type stackModel struct {
	items []ir.StackRef // items[len-1] is the top of stack
}

func (s *stackModel) push(ref ir.StackRef) { s.items = append(s.items, ref) }

func (s *stackModel) pop(n int) {
	if n > len(s.items) {
		n = len(s.items)
	}
	s.items = s.items[:len(s.items)-n]
}

// depthOf returns the 1-based distance from the top to the item matching
// ref's owner/slot, searching from the top down (the most recently pushed
// matching copy wins, mirroring how a human reasons about shadowed values).
func (s *stackModel) depthOf(owner uint32, slot int) (int, bool) {
	for i := len(s.items) - 1; i >= 0; i-- {
		if s.items[i].OwnerActionID == owner && s.items[i].Slot == slot {
			return len(s.items) - i, true
		}
	}
	return 0, false
}

// retag overwrites the identity of the top min(16, len) items to read as
// actionID's published VirtualStack (slot 0 = top), the instant that
// Action's own contribution to the instruction stream is complete.
func (s *stackModel) retag(actionID uint32) {
	n := len(s.items)
	max := action.StackSize
	if n < max {
		max = n
	}
	for slot := 0; slot < max; slot++ {
		s.items[n-1-slot] = ir.StackRef{OwnerActionID: actionID, Slot: slot}
	}
}

// simulate walks flat, replacing every StackRef with a concrete Op (DUPn,
// SWAPn, or a SWAPn/POP pair for HotSwap) and updating the stack model for
// every instruction's net effect. ends marks, by flat-list index, which
// Action's VirtualStack becomes current once that index has been processed.
func (p *Processor) simulate(flat []instr, ends []actionEnd) error {
	model := &stackModel{}
	endAt := make(map[int][]uint32, len(ends))
	for _, e := range ends {
		endAt[e.Idx] = append(endAt[e.Idx], e.ID)
	}
	for i := range flat {
		in := flat[i]
		switch h := in.hex.(type) {
		case ir.StackRef:
			lowered, err := lowerStackRef(model, h)
			if err != nil {
				return err
			}
			flat[i].hex = lowered
		case ir.Op:
			removed, added := h.Op.StackDelta()
			model.pop(removed)
			for j := 0; j < added; j++ {
				model.push(ir.StackRef{OwnerActionID: in.actionID, Slot: -1})
			}
		default:
			// A literal/concat/etc. push: the processor cannot see its
			// width here (pushN is emitted as a separate Op immediately
			// before it), so it contributes no stack change of its own.
		}
		for _, id := range endAt[i+1] {
			model.retag(id)
		}
	}
	return nil
}

// lowerStackRef resolves a single StackRef against the current model,
// returning the concrete Op to substitute in its place. depth is 1-based
// counting the current top as 1, matching DUPn's own argument convention
// directly. SWAPn instead exchanges the top (1st) with the (n+1)-th item,
// so a Swap/HotSwap target at depth d needs SWAP(d-1); a target at depth 1
// is already the top and cannot be a legal swap/hotswap destination.
func lowerStackRef(model *stackModel, ref ir.StackRef) (ir.Hexable, error) {
	depth, ok := model.depthOf(ref.OwnerActionID, ref.Slot)
	if !ok {
		return nil, evmerr.New(evmerr.StackReference,
			"stack reference to action %d slot %d does not resolve to anything on the simulated stack",
			ref.OwnerActionID, ref.Slot)
	}
	switch ref.Kind {
	case ir.Dup:
		if depth > 16 {
			return nil, evmerr.New(evmerr.StackReference,
				"stack reference to action %d slot %d is %d deep, beyond DUP's 16-item reach",
				ref.OwnerActionID, ref.Slot, depth)
		}
		model.push(ref)
		return ir.Op{Op: opcode.DupN(depth)}, nil
	case ir.Swap, ir.HotSwap:
		n := depth - 1
		if n < 1 || n > 16 {
			return nil, evmerr.New(evmerr.StackReference,
				"stack reference to action %d slot %d is %d deep, beyond SWAP's 16-item reach",
				ref.OwnerActionID, ref.Slot, depth)
		}
		op := ir.Op{Op: opcode.SwapN(n)}
		model.items[len(model.items)-1], model.items[len(model.items)-depth] =
			model.items[len(model.items)-depth], model.items[len(model.items)-1]
		if ref.Kind == ir.Swap {
			return op, nil
		}
		// HotSwap: overwrite the slot in place by swapping the new top
		// value down into position, then dropping the stale copy that
		// surfaces on top.
		model.pop(1)
		popOp, _ := opcode.ByMnemonic("pop")
		return ir.Concat{Items: []ir.Hexable{op, ir.Op{Op: popOp}}}, nil
	default:
		return nil, evmerr.New(evmerr.Internal, "unresolved Relative stack reference reached the simulation pass")
	}
}

// computeOffsets walks the lowered flat list, assigning each instruction a
// byte offset and recording the first offset seen for every Action.
func (p *Processor) computeOffsets(flat []instr) map[uint32]int {
	offsets := make(map[uint32]int, len(flat))
	seen := make(map[uint32]bool, len(flat))
	pos := 0
	for _, in := range flat {
		if !seen[in.actionID] {
			offsets[in.actionID] = pos
			seen[in.actionID] = true
		}
		pos += in.hex.ByteLength()
	}
	return offsets
}

// emitHex renders every instruction to hex and concatenates the result,
// re-wrapping it in the self-deploying bootstrap if the script requested
// $("deployable", true).
func (p *Processor) emitHex(flat []instr, ctx *ir.Ctx) (string, error) {
	var sb strings.Builder
	for _, in := range flat {
		h, err := in.hex.ToHex(ctx)
		if err != nil {
			return "", err
		}
		sb.WriteString(h)
	}
	runtime := sb.String()
	if !p.rc.Deployable() {
		return runtime, nil
	}
	return wrapDeployable(runtime)
}

// deploymentGuardLen is the fixed byte length of the non-payable guard
// ahead of the JUMPDEST: CALLVALUE, ISZERO, PUSH2 <jumpdest>, JUMPI, PUSH1 0,
// DUP1, REVERT = 1+1+3+1+2+1+1.
const deploymentGuardLen = 10

func wrapDeployable(runtime string) (string, error) {
	if len(runtime)%2 != 0 {
		return "", evmerr.New(evmerr.Internal, "runtime hex has odd length %d", len(runtime))
	}
	n := len(runtime) / 2
	if n >= 1<<16 {
		return "", evmerr.New(evmerr.InputValidation, "runtime code is %d bytes, too large for the 2-byte deployment preamble", n)
	}
	return deploymentPreamble(n) + runtime, nil
}

// deploymentPreamble returns the hex for the fixed-shape constructor that
// wraps a deployable program: a non-payable guard (revert unless callvalue
// is zero) followed by a copy-to-return of the n bytes of runtime code that
// immediately follow this preamble.
//
//	CALLVALUE, ISZERO, PUSH2 <jumpdest>, JUMPI, PUSH1 0, DUP1, REVERT,
//	JUMPDEST, PUSH<1|2> n, MSIZE, DUP2, PUSH2 <own length>, DUP3,
//	CODECOPY, RETURN
//
// The length of n is pushed with the narrowest PUSH1/PUSH2 that fits (n is
// already bounded below 2^16 by wrapDeployable), which in turn shifts the
// constructor's own total length by one byte depending on that width — both
// widths are accounted for in ownLen below.
func deploymentPreamble(n int) string {
	lenWidth := 1
	if n > 0xff {
		lenWidth = 2
	}
	lenPushByte := 0x60 + lenWidth - 1 // PUSH1 or PUSH2
	ownLen := deploymentGuardLen + 1 /* JUMPDEST */ + (1 + lenWidth) /* PUSHn n */ +
		1 /* MSIZE */ + 1 /* DUP2 */ + 3 /* PUSH2 ownLen */ + 1 /* DUP3 */ + 1 /* CODECOPY */ + 1 /* RETURN */
	return fmt.Sprintf(
		"341561000A57600080FD5B%02X%0*X598161%04X8239F3",
		lenPushByte, lenWidth*2, n, ownLen,
	)
}
