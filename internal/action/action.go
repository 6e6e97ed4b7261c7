// Package action defines Action, the named ordered container of IR items
// that helpers build, and the append-only RuntimeContext helpers write into
// while a script executes.
package action

import (
	"sync/atomic"

	"golang.org/x/exp/slices"

	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/evmerr"
	"github.com/tcoulter/evmscript/internal/ir"
)

// StackSize is the fixed size of every Action's virtual output stack.
const StackSize = 16

// Item is either an ir.Hexable leaf or a nested *Action (inlined during the
// processor's flatten pass when the composition rule from spec.md §4.3
// applies).
type Item struct {
	Hexable ir.Hexable // nil if Child is set
	Child   *Action
}

var idCounter uint32

// nextID draws the next id from the process-wide monotonic counter. IDs are
// only ever compared within a single compile; wraparound after 2^32 is not a
// practical concern at the sizes this compiler targets.
func nextID() uint32 { return atomic.AddUint32(&idCounter, 1) - 1 }

// Action is a named, ordered container of IR items. It publishes a
// fixed-size virtual stack of StackRef placeholders for later actions to
// reference.
type Action struct {
	ID                uint32
	Name              string
	IsJumpDestination bool
	Parent            *Action
	Intermediate      []Item
	VirtualStack      [StackSize]ir.StackRef
	SourceLoc         token.Pos

	parented bool
}

// New creates an Action, eagerly populating its virtual stack with
// StackSize Relative stack references it owns.
func New(name string, loc token.Pos) *Action {
	a := &Action{ID: nextID(), Name: name, SourceLoc: loc}
	for i := range a.VirtualStack {
		a.VirtualStack[i] = ir.StackRef{Kind: ir.Relative, OwnerActionID: a.ID, Slot: i}
	}
	return a
}

// AppendHexable appends a leaf IR item to the Action's instruction list.
func (a *Action) AppendHexable(h ir.Hexable) { a.Intermediate = append(a.Intermediate, Item{Hexable: h}) }

// AppendChild appends a nested Action, adopting it as a child. Re-parenting
// an already-owned Action is a fatal composition error.
func (a *Action) AppendChild(child *Action) error {
	if child.parented {
		return evmerr.At(evmerr.Composition, "", a.SourceLoc,
			"action %q cannot be reparented: it is already a child of action %q", child.Name, parentName(child))
	}
	child.Parent = a
	child.parented = true
	a.Intermediate = append(a.Intermediate, Item{Child: child})
	return nil
}

func parentName(a *Action) string {
	if a.Parent == nil {
		return ""
	}
	return a.Parent.Name
}

// Pointer returns the ActionPointer handle for a, exposing its 16 published
// stack references for destructuring.
func (a *Action) Pointer() *Pointer { return &Pointer{action: a} }

// Pointer is the opaque handle user code receives from a helper call.
// Bindings that survive script evaluation and still hold a Pointer are
// promoted to jump destinations by the host adapter.
type Pointer struct {
	action *Action
}

// Action returns the underlying Action.
func (p *Pointer) Action() *Action { return p.action }

// StackRef returns the i-th published stack reference (0 = top), for the
// host's array-destructuring idiom `[a, b, c] = someHelper(...)`.
func (p *Pointer) StackRef(i int) (ir.StackRef, bool) {
	if i < 0 || i >= StackSize {
		return ir.StackRef{}, false
	}
	return p.action.VirtualStack[i], true
}

// RuntimeContext is the append-only collector Actions are written into while
// a script executes. It never mutates a previously appended Action.
type RuntimeContext struct {
	Actions     []*Action
	TailActions []*Action
	Config      map[string]any
}

// NewContext creates an empty RuntimeContext.
func NewContext() *RuntimeContext {
	return &RuntimeContext{Config: map[string]any{}}
}

// Push routes a into the tail bucket if tail is true, otherwise the main
// bucket. This is the only way Actions enter the context: top-level Actions
// with no parent are collected here; child Actions are reached transitively
// through their parent's Intermediate list.
func (rc *RuntimeContext) Push(a *Action, tail bool) {
	if tail {
		rc.TailActions = append(rc.TailActions, a)
	} else {
		rc.Actions = append(rc.Actions, a)
	}
}

// Retract removes a previously pushed Action from whichever top-level bucket
// holds it. Every helper call registers its Action top-level as soon as it
// finishes, before the caller has decided whether to compose it into a
// parent; when composition does adopt it as a child, it must be retracted
// here or it would be emitted twice.
func (rc *RuntimeContext) Retract(id uint32) {
	rc.Actions = retract(rc.Actions, id)
	rc.TailActions = retract(rc.TailActions, id)
}

func retract(list []*Action, id uint32) []*Action {
	i := slices.IndexFunc(list, func(a *Action) bool { return a.ID == id })
	if i < 0 {
		return list
	}
	return slices.Delete(list, i, i+1)
}

// SetConfig stores a process-level config flag, the effect of the `$(key,
// value)` expression helper.
func (rc *RuntimeContext) SetConfig(key string, value any) { rc.Config[key] = value }

// Deployable reports whether `$("deployable", true)` was set.
func (rc *RuntimeContext) Deployable() bool {
	v, _ := rc.Config["deployable"].(bool)
	return v
}
