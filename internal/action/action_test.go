package action_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/ir"
)

func TestNewActionPublishesSixteenStackRefs(t *testing.T) {
	a := action.New("main", token.MakePos(1, 1))
	for i := 0; i < action.StackSize; i++ {
		ref := a.VirtualStack[i]
		require.Equal(t, ir.Relative, ref.Kind)
		require.Equal(t, a.ID, ref.OwnerActionID)
		require.Equal(t, i, ref.Slot)
	}
}

func TestReparentingIsFatal(t *testing.T) {
	parent1 := action.New("p1", token.MakePos(1, 1))
	parent2 := action.New("p2", token.MakePos(2, 1))
	child := action.New("c", token.MakePos(1, 5))

	require.NoError(t, parent1.AppendChild(child))
	err := parent2.AppendChild(child)
	require.Error(t, err)
}

func TestPointerStackRefOutOfRange(t *testing.T) {
	a := action.New("main", token.MakePos(1, 1))
	p := a.Pointer()
	_, ok := p.StackRef(16)
	require.False(t, ok)
	_, ok = p.StackRef(0)
	require.True(t, ok)
}

func TestActionIDsAreUnique(t *testing.T) {
	a := action.New("a", token.MakePos(1, 1))
	b := action.New("b", token.MakePos(1, 1))
	require.NotEqual(t, a.ID, b.ID)
}
