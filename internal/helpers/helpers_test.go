package helpers_test

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tcoulter/evmscript/internal/action"
	"github.com/tcoulter/evmscript/internal/dsl/interp"
	"github.com/tcoulter/evmscript/internal/dsl/token"
	"github.com/tcoulter/evmscript/internal/helpers"
	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/processor"
)

var pos = token.MakePos(1, 1)

func compile(t *testing.T, rc *action.RuntimeContext, labels map[string]uint32) string {
	t.Helper()
	out, err := processor.New(rc).Process(labels)
	require.NoError(t, err)
	return out
}

func call(t *testing.T, cat *helpers.Catalogue, name string, args ...any) *action.Pointer {
	t.Helper()
	v, err := cat.Builtins()[name](pos, args)
	require.NoError(t, err)
	ptr, ok := v.(*action.Pointer)
	require.True(t, ok, "%s did not return an *action.Pointer", name)
	return ptr
}

func TestPushEmitsNarrowestPush(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "push", uint256.NewInt(1))
	require.Equal(t, "6001", compile(t, rc, nil))
}

func TestPushRejectsActionPointerArgument(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	other := call(t, cat, "push", uint256.NewInt(1))
	_, err := cat.Builtins()["push"](pos, []any{other})
	require.Error(t, err)
}

func TestPushAcceptsFullWidthValue(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	big := new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	_, err := cat.Builtins()["push"](pos, []any{big})
	require.NoError(t, err) // exactly 32 bytes is fine
}

func TestPushAcceptsHexStringArgument(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "push", "0xff")
	require.Equal(t, "60FF", compile(t, rc, nil))
}

func TestPushAcceptsHexStringWithoutLeadingZero(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "push", "0x0")
	require.Equal(t, "6000", compile(t, rc, nil))
}

func TestPushNRequiresExactWidth(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	_, err := cat.Builtins()["push2"](pos, []any{uint256.NewInt(256)})
	require.NoError(t, err) // exactly 2 bytes

	_, err = cat.Builtins()["push2"](pos, []any{uint256.NewInt(1)})
	require.Error(t, err) // 1 byte, narrower than push2 requires

	_, err = cat.Builtins()["push1"](pos, []any{uint256.NewInt(256)})
	require.Error(t, err) // 2 bytes, wider than push1 allows
}

func TestPush3RejectsNarrowerHexString(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	_, err := cat.Builtins()["push3"](pos, []any{"0x1234"})
	require.Error(t, err)
}

func TestRevertWithNoArgumentsPushesZeroZero(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "revert")
	require.Equal(t, "60006000FD", compile(t, rc, nil))
}

func TestRevertWithOffsetAndLength(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "revert", uint256.NewInt(10), uint256.NewInt(4))
	// len pushed first (args[1]), then offset (args[0]), so offset ends on top.
	require.Equal(t, "6004600AFD", compile(t, rc, nil))
}

func TestAssertNonPayableSkipsRevertWhenCallValueIsZero(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "assertNonPayable")
	// CALLVALUE ISZERO PUSH2<ok> JUMPI PUSH1 0 PUSH1 0 REVERT JUMPDEST
	require.Equal(t, "341561000B5760006000FD5B", compile(t, rc, nil))
}

func TestAssertRevertsUnlessTruthy(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "assert", uint256.NewInt(1))
	// PUSH1 1 PUSH2<ok> JUMPI PUSH1 0 PUSH1 0 REVERT JUMPDEST
	require.Equal(t, "600161000B5760006000FD5B", compile(t, rc, nil))
}

func TestDupProducesStackReference(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	producer := call(t, cat, "push", uint256.NewInt(7))
	ref, ok := producer.StackRef(0)
	require.True(t, ok)

	call(t, cat, "dup", ref)
	// PUSH1 7, then DUP1 referencing slot 0.
	require.Equal(t, "600780", compile(t, rc, nil))
}

func TestSetOverwritesStackSlotWithSwapPop(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	producer := call(t, cat, "push", uint256.NewInt(7))
	ref, ok := producer.StackRef(0)
	require.True(t, ok)

	call(t, cat, "set", ref, uint256.NewInt(9))
	// PUSH1 7, PUSH1 9, SWAP1, POP
	require.Equal(t, "6007600990" /* swap1 */ +"50" /* pop */, compile(t, rc, nil))
}

func TestDefaultOpcodeHelperAddPushesArgsRightToLeft(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "add", uint256.NewInt(1), uint256.NewInt(2))
	// args pushed in reverse (args[1] then args[0]) so args[0] ends on top.
	require.Equal(t, "60026001" /* push 2, push 1 */ +"01" /* add */, compile(t, rc, nil))
}

func TestDefaultOpcodeHelperAcceptsFewerArgsThanOperandCount(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "push", uint256.NewInt(1))
	call(t, cat, "push", uint256.NewInt(2))
	call(t, cat, "add") // both operands already on the stack
	require.Equal(t, "6001"+"6002"+"01", compile(t, rc, nil))
}

func TestDefaultOpcodeHelperRejectsTooManyArgs(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	_, err := cat.Builtins()["add"](pos, []any{uint256.NewInt(1), uint256.NewInt(2), uint256.NewInt(3)})
	require.Error(t, err)
}

func TestCalldataloadResolvesScalarOffset(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "calldataload", uint256.NewInt(4))
	require.Equal(t, "600435", compile(t, rc, nil))
}

func TestJumpWithNoArgumentEmitsBareJump(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "jump")
	require.Equal(t, "56", compile(t, rc, nil))
}

func TestJumpComposesDestinationArgumentInline(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	target := call(t, cat, "push", uint256.NewInt(1))
	call(t, cat, "jump", target)
	// composition retracts target from the top level, so it is emitted
	// exactly once, inlined ahead of JUMP: PUSH1 1, JUMP.
	require.Equal(t, "600156", compile(t, rc, nil))
}

func TestAllocStackClaimsWordsAndLeavesBaseOffset(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "allocStack", uint256.NewInt(1))
	// MSIZE, PUSH1 0, DUP2, PUSH1 31, ADD, MSTORE8
	require.Equal(t, "59"+"6000"+"81"+"601F"+"01"+"53", compile(t, rc, nil))
}

func TestAllocShiftsPartialFinalWordIntoPlace(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	call(t, cat, "alloc", "0xabcd", false)
	// MSIZE, PUSH2 0xABCD, PUSH1 240 (30 bytes*8), SHL, DUP2, MSTORE
	require.Equal(t, "59"+"61ABCD"+"60F0"+"1B"+"81"+"52", compile(t, rc, nil))
}

func TestExprHexParsesWithAndWithoutPrefix(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	v, err := cat.Builtins()["$hex"](pos, []any{"0xAB"})
	require.NoError(t, err)
	h, ok := v.(ir.Hexable)
	require.True(t, ok)
	require.Equal(t, 1, h.ByteLength())
	hexStr, err := h.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "AB", hexStr)

	v2, err := cat.Builtins()["$hex"](pos, []any{"abc"})
	require.NoError(t, err)
	h2 := v2.(ir.Hexable)
	require.Equal(t, 2, h2.ByteLength())
}

func TestExprBytelen(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	v, err := cat.Builtins()["$bytelen"](pos, []any{uint256.NewInt(256)})
	require.NoError(t, err)
	n, ok := v.(*uint256.Int)
	require.True(t, ok)
	require.Equal(t, uint64(2), n.Uint64())
}

func TestExprPadLeftAndRight(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	v, err := cat.Builtins()["$pad"](pos, []any{uint256.NewInt(1), uint256.NewInt(2), "left"})
	require.NoError(t, err)
	h := v.(ir.Hexable)
	hexStr, err := h.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "0001", hexStr)

	v2, err := cat.Builtins()["$pad"](pos, []any{uint256.NewInt(1), uint256.NewInt(2), "right"})
	require.NoError(t, err)
	h2 := v2.(ir.Hexable)
	hexStr2, err := h2.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "0100", hexStr2)
}

func TestExprSelectorMatchesKnownSignature(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	v, err := cat.Builtins()["$selector"](pos, []any{"transfer(address,uint256)"})
	require.NoError(t, err)
	h := v.(ir.Hexable)
	require.Equal(t, 4, h.ByteLength())
	hexStr, err := h.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "A9059CBB", hexStr)
}

func TestExprConcatJoinsValues(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	v, err := cat.Builtins()["$concat"](pos, []any{uint256.NewInt(1), uint256.NewInt(2)})
	require.NoError(t, err)
	h := v.(ir.Hexable)
	hexStr, err := h.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "0102", hexStr)
}

func TestExprConfigSetsDeployable(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	_, err := cat.Builtins()["$"](pos, []any{"deployable", true})
	require.NoError(t, err)
	require.True(t, rc.Deployable())
}

func TestDispatchJumpsOnMatchingSelector(t *testing.T) {
	rc := action.NewContext()
	cat := helpers.New(rc)
	target := call(t, cat, "push", uint256.NewInt(1))
	obj := &interp.Object{Pairs: []interp.Pair{
		{Key: "transfer(address,uint256)", Value: target},
	}}
	call(t, cat, "dispatch", obj)
	out := compile(t, rc, nil)
	require.Contains(t, out, "A9059CBB")
	require.Contains(t, out, "57") // JUMPI present
}
