package ir_test

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/tcoulter/evmscript/internal/ir"
	"github.com/tcoulter/evmscript/internal/opcode"
)

func lit(n uint64) ir.Literal { return ir.NewLiteral(uint256.NewInt(n)) }

func TestLiteralZero(t *testing.T) {
	l := lit(0)
	require.Equal(t, 1, l.ByteLength())
	h, err := l.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "00", h)
}

func TestLiteralRoundTripsByteLength(t *testing.T) {
	l := lit(0x1234)
	require.Equal(t, 2, l.ByteLength())
	h, err := l.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "1234", h)

	// Idempotent.
	require.Equal(t, l.ByteLength(), l.ByteLength())
}

func TestByteRangePadsPastEnd(t *testing.T) {
	br := ir.ByteRange{Inner: lit(0xff), Start: 0, Len: 4}
	require.Equal(t, 4, br.ByteLength())
	h, err := br.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "FF000000", h)
}

func TestPaddedLeftAndRight(t *testing.T) {
	left := ir.Padded{Inner: lit(1), Len: 4, Side: ir.Left}
	h, err := left.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "00000001", h)

	right := ir.Padded{Inner: lit(1), Len: 4, Side: ir.Right}
	h, err = right.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "01000000", h)
}

func TestSolidityStringLength(t *testing.T) {
	s := ir.SolidityString{Inner: rawBytes("hello")}
	require.Equal(t, 32+32, s.ByteLength())
}

func TestJumpMapByteLength(t *testing.T) {
	jm := ir.JumpMap{Labels: []string{"a", "b", "c"}}
	require.Equal(t, 32, jm.ByteLength())

	labels := make([]string, 18)
	for i := range labels {
		labels[i] = "l"
	}
	jm18 := ir.JumpMap{Labels: labels}
	require.Equal(t, 64, jm18.ByteLength())
}

func TestBareStackRefFailsToHex(t *testing.T) {
	ref := ir.StackRef{Kind: ir.Relative, OwnerActionID: 1, Slot: 0}
	_, err := ref.ToHex(nil)
	require.Error(t, err)
}

func TestOpByteLength(t *testing.T) {
	op := ir.Op{Op: opcode.ADD}
	require.Equal(t, 1, op.ByteLength())
	h, err := op.ToHex(nil)
	require.NoError(t, err)
	require.Equal(t, "01", h)
}

type rawBytes string

func (r rawBytes) ByteLength() int { return len(r) }
func (r rawBytes) ToHex(*ir.Ctx) (string, error) {
	return strings.ToUpper(hex.EncodeToString([]byte(r))), nil
}
