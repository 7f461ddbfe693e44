package value

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStrictEqualSameValueZero(t *testing.T) {
	nan := Number(math.NaN())
	require.True(t, nan.StrictEqual(nan), "NaN must equal NaN under SameValueZero")

	posZero := Number(0)
	negZero := Number(math.Copysign(0, -1))
	require.True(t, posZero.StrictEqual(negZero), "+0 must equal -0 under SameValueZero")
}

func TestStrictEqualAcrossInt32AndNumber(t *testing.T) {
	require.True(t, Int32(5).StrictEqual(Number(5)))
	require.False(t, Int32(5).StrictEqual(Number(5.5)))
}

func TestTypeOf(t *testing.T) {
	cases := []struct {
		v    Value
		want string
	}{
		{Undefined, "undefined"},
		{Null, "object"},
		{True, "boolean"},
		{Int32(1), "number"},
		{Number(1.5), "number"},
		{Str(NewString("x")), "string"},
		{Symbol(1), "symbol"},
	}
	for _, c := range cases {
		require.Equal(t, c.want, c.v.TypeOf())
	}
}

func TestToInt32Wraps(t *testing.T) {
	require.Equal(t, int32(-1), ToInt32(4294967295))
	require.Equal(t, int32(0), ToInt32(math.NaN()))
	require.Equal(t, int32(0), ToInt32(math.Inf(1)))
}

func TestPropertyKeyCanonicalizesIndex(t *testing.T) {
	k := NewPropertyKey(NewString("42"))
	require.Equal(t, PropertyKeyIndex, k.Kind())
	require.Equal(t, uint32(42), k.Index())

	k2 := NewPropertyKey(NewString("042"))
	require.Equal(t, PropertyKeyString, k2.Kind(), "leading zero must not canonicalize")

	k3 := NewPropertyKey(NewString("a"))
	require.Equal(t, PropertyKeyString, k3.Kind())
}

func TestInternTableDedupes(t *testing.T) {
	tbl := NewInternTable(16)
	a := tbl.Intern(NewString("hello"))
	b := tbl.Intern(NewString("hello"))
	require.Same(t, a, b)

	c := tbl.Intern(NewString("world"))
	require.NotSame(t, a, c)
}
