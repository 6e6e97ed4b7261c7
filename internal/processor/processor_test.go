package processor_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
	"github.com/tcoulter/evmscript/internal/processor"
)

func lit(n uint64) ir.Literal { return ir.NewLiteral(uint256.NewInt(n)) }

func pushAction(name string, n uint64) *action.Action {
	a := action.New(name, token.MakePos(1, 1))
	a.AppendHexable(ir.Op{Op: opcode.PUSH1})
	a.AppendHexable(lit(n))
	return a
}

func TestProcessConcatenatesTopLevelActions(t *testing.T) {
	rc := action.NewContext()
	rc.Push(pushAction("a", 1), false)
	rc.Push(pushAction("b", 2), false)

	out, err := processor.New(rc).Process(nil)
	require.NoError(t, err)
	require.Equal(t, "60016002", out)
}

func TestProcessInsertsJumpdestForLabeledAction(t *testing.T) {
	rc := action.NewContext()
	main := pushAction("main", 1)
	main.IsJumpDestination = true
	rc.Push(main, false)

	out, err := processor.New(rc).Process(map[string]uint32{"main": main.ID})
	require.NoError(t, err)
	require.Equal(t, "5B6001", out)
}

func TestProcessLowersDupStackReference(t *testing.T) {
	rc := action.NewContext()
	producer := action.New("producer", token.MakePos(1, 1))
	producer.AppendHexable(ir.Op{Op: opcode.PUSH1})
	producer.AppendHexable(lit(7))
	rc.Push(producer, false)

	consumer := action.New("consumer", token.MakePos(2, 1))
	ref := producer.VirtualStack[0]
	ref.Kind = ir.Dup
	consumer.AppendHexable(ref)
	consumer.AppendHexable(ir.Op{Op: opcode.ADD})
	rc.Push(consumer, false)

	out, err := processor.New(rc).Process(nil)
	require.NoError(t, err)
	require.Equal(t, "600780"+"01", out)
}

func TestProcessRejectsUnresolvableStackReference(t *testing.T) {
	rc := action.NewContext()
	a := action.New("lonely", token.MakePos(1, 1))
	ref := ir.StackRef{Kind: ir.Dup, OwnerActionID: 999, Slot: 0}
	a.AppendHexable(ref)
	rc.Push(a, false)

	_, err := processor.New(rc).Process(nil)
	require.Error(t, err)
}

func TestProcessWrapsDeployable(t *testing.T) {
	rc := action.NewContext()
	rc.Push(pushAction("a", 1), false)
	rc.SetConfig("deployable", true)

	out, err := processor.New(rc).Process(nil)
	require.NoError(t, err)
	// CALLVALUE ISZERO PUSH2 0x000A JUMPI PUSH1 0 DUP1 REVERT JUMPDEST
	// PUSH1 0x02 MSIZE DUP2 PUSH2 0x0015 DUP3 CODECOPY RETURN, then the
	// 2-byte runtime itself.
	require.Equal(t, "341561000A57600080FD5B600259816100158239F36001", out)
}
