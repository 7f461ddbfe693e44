package object

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quillrt/quill/internal/gc"
	"github.com/quillrt/quill/internal/value"
)

func strKey(s string) value.PropertyKey { return value.NewPropertyKey(value.NewString(s)) }

type nopCaller struct{}

func (nopCaller) Call(fn value.Value, this value.Value, args []value.Value) (value.Value, error) {
	return value.Undefined, nil
}

func TestOwnKeysOrdering(t *testing.T) {
	o := New(nil)
	epoch := &ProtoEpoch{}
	require.NoError(t, o.DefineOwnProperty(strKey("1"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))
	require.NoError(t, o.DefineOwnProperty(strKey("a"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))
	require.NoError(t, o.DefineOwnProperty(strKey("2"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))
	require.NoError(t, o.DefineOwnProperty(strKey("b"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))

	keys := o.OwnKeys()
	require.Len(t, keys, 4)
	require.Equal(t, value.PropertyKeyIndex, keys[0].Kind())
	require.Equal(t, uint32(1), keys[0].Index())
	require.Equal(t, uint32(2), keys[1].Index())
	require.True(t, keys[2].Equal(strKey("a")))
	require.True(t, keys[3].Equal(strKey("b")))
}

func TestShapeTransitionDedup(t *testing.T) {
	root := RootShape()
	attrs := Attrs{Writable: true, Enumerable: true, Configurable: true}
	s1 := root.Transition(strKey("x"), attrs)
	s2 := root.Transition(strKey("x"), attrs)
	require.Same(t, s1, s2, "same key+attrs from the same shape must return the same child")
}

func TestGetWalksPrototypeChain(t *testing.T) {
	proto := New(nil)
	epoch := &ProtoEpoch{}
	require.NoError(t, proto.DefineOwnProperty(strKey("greeting"), Descriptor{Value: value.Str(value.NewString("hi")), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))

	heap := gc.NewHeap(0)
	protoCell := heap.Alloc(64, proto)
	child := New(protoCell)

	v, err := Get(protoCell, child, strKey("greeting"), value.Object(value.KindObject, protoCell), nopCaller{})
	require.NoError(t, err)
	require.Equal(t, "hi", v.Str().String())
}

func TestDeleteRespectsNonConfigurable(t *testing.T) {
	o := New(nil)
	epoch := &ProtoEpoch{}
	require.NoError(t, o.DefineOwnProperty(strKey("fixed"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: false}}, epoch))
	require.False(t, o.Delete(strKey("fixed")))
	require.NoError(t, o.DefineOwnProperty(strKey("free"), Descriptor{Value: value.Int32(1), Attrs: Attrs{Writable: true, Enumerable: true, Configurable: true}}, epoch))
	require.True(t, o.Delete(strKey("free")))
}

func TestUint8ClampedRounding(t *testing.T) {
	buf := NewArrayBuffer(4)
	ta := NewTypedArray(nil, buf, Uint8ClampedKind, 0, 4)
	ta.Set(0, -10)
	ta.Set(1, 300)
	ta.Set(2, 127.5) // halfway, 127 is odd -> rounds up to 128
	ta.Set(3, 128.5) // halfway, 128 is even -> stays 128

	require.Equal(t, float64(0), ta.Get(0))
	require.Equal(t, float64(255), ta.Get(1))
	require.Equal(t, float64(128), ta.Get(2))
	require.Equal(t, float64(128), ta.Get(3))
}

func TestArrayBufferDetachZeroes(t *testing.T) {
	buf := NewArrayBuffer(4)
	ta := NewTypedArray(nil, buf, Uint8Kind, 0, 4)
	ta.Set(0, 42)
	buf.Detach()
	require.Equal(t, float64(0), ta.Get(0))
	require.True(t, buf.Detached)
}
