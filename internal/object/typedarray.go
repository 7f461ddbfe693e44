package object

import (
	"encoding/binary"
	"math"

	"github.com/quillrt/quill/internal/gc"
)

// ElementKind enumerates the eleven typed-array element types (spec.md
// §3.3's TypedArray family: Int8/Uint8/Uint8Clamped/Int16/Uint16/
// Int32/Uint32/Float32/Float64/BigInt64/BigUint64).
type ElementKind uint8

const (
	Int8Kind ElementKind = iota
	Uint8Kind
	Uint8ClampedKind
	Int16Kind
	Uint16Kind
	Int32Kind
	Uint32Kind
	Float32Kind
	Float64Kind
	BigInt64Kind
	BigUint64Kind
)

// ElementSize returns the byte width of one element of kind k.
func ElementSize(k ElementKind) int {
	switch k {
	case Int8Kind, Uint8Kind, Uint8ClampedKind:
		return 1
	case Int16Kind, Uint16Kind:
		return 2
	case Int32Kind, Uint32Kind, Float32Kind:
		return 4
	default:
		return 8
	}
}

// ArrayBuffer is a fixed-length raw byte buffer (spec.md §3.3). Detaching
// (e.g. after a structured-clone transfer) zeroes Data and sets Detached,
// per spec.md's "detached-buffer zeroing" requirement so stale TypedArray
// views read back zero instead of dangling data.
type ArrayBuffer struct {
	Data     []byte
	Detached bool
}

func NewArrayBuffer(length int) *ArrayBuffer {
	return &ArrayBuffer{Data: make([]byte, length)}
}

func (b *ArrayBuffer) Trace(visit func(*gc.Header)) {}
func (b *ArrayBuffer) Finalize()                    {}

// Detach zeroes the backing store and marks the buffer unusable; every
// view sharing it must then treat reads as zero and writes as no-ops.
func (b *ArrayBuffer) Detach() {
	for i := range b.Data {
		b.Data[i] = 0
	}
	b.Detached = true
	b.Data = nil
}

// TypedArray is a typed view over an ArrayBuffer (spec.md §3.3).
type TypedArray struct {
	Buffer      *gc.Header
	buf         *ArrayBuffer
	Kind        ElementKind
	ByteOffset  int
	Length      int // element count
}

func NewTypedArray(bufRef *gc.Header, buf *ArrayBuffer, kind ElementKind, byteOffset, length int) *TypedArray {
	return &TypedArray{Buffer: bufRef, buf: buf, Kind: kind, ByteOffset: byteOffset, Length: length}
}

func (t *TypedArray) Trace(visit func(*gc.Header)) {
	if t.Buffer != nil {
		visit(t.Buffer)
	}
}
func (t *TypedArray) Finalize() {}

func (t *TypedArray) bytesAt(i int) []byte {
	sz := ElementSize(t.Kind)
	off := t.ByteOffset + i*sz
	return t.buf.Data[off : off+sz]
}

// Get reads element i as a float64 (integer kinds widen exactly; the two
// 64-bit BigInt kinds take the default branch, which reads the eight bytes
// as an int64 and widens it to float64, losing precision beyond 2^53).
func (t *TypedArray) Get(i int) float64 {
	if t.buf.Detached || i < 0 || i >= t.Length {
		return 0
	}
	b := t.bytesAt(i)
	switch t.Kind {
	case Int8Kind:
		return float64(int8(b[0]))
	case Uint8Kind, Uint8ClampedKind:
		return float64(b[0])
	case Int16Kind:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case Uint16Kind:
		return float64(binary.LittleEndian.Uint16(b))
	case Int32Kind:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case Uint32Kind:
		return float64(binary.LittleEndian.Uint32(b))
	case Float32Kind:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	case Float64Kind:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	default:
		return float64(int64(binary.LittleEndian.Uint64(b)))
	}
}

// Set writes v into element i, applying each kind's numeric conversion —
// including Uint8Clamped's round-half-to-even clamp to [0,255] (ES2024
// §23.2.3.2's ToUint8Clamp), which differs from the other integer kinds'
// ToInt32/ToUint32 truncation.
func (t *TypedArray) Set(i int, v float64) {
	if t.buf.Detached || i < 0 || i >= t.Length {
		return
	}
	b := t.bytesAt(i)
	switch t.Kind {
	case Int8Kind:
		b[0] = byte(int8(int64(toIntTrunc(v))))
	case Uint8Kind:
		b[0] = byte(uint8(int64(toIntTrunc(v))))
	case Uint8ClampedKind:
		b[0] = clampUint8(v)
	case Int16Kind:
		binary.LittleEndian.PutUint16(b, uint16(int16(int64(toIntTrunc(v)))))
	case Uint16Kind:
		binary.LittleEndian.PutUint16(b, uint16(int64(toIntTrunc(v))))
	case Int32Kind:
		binary.LittleEndian.PutUint32(b, uint32(int32(int64(toIntTrunc(v)))))
	case Uint32Kind:
		binary.LittleEndian.PutUint32(b, uint32(int64(toIntTrunc(v))))
	case Float32Kind:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v)))
	case Float64Kind:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	default:
		binary.LittleEndian.PutUint64(b, uint64(int64(toIntTrunc(v))))
	}
}

func toIntTrunc(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Trunc(v)
}

// clampUint8 implements ToUint8Clamp: values outside [0,255] saturate, and
// exact halves (x.5) round to the nearest even integer rather than always
// rounding up.
func clampUint8(v float64) byte {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	f := math.Floor(v)
	diff := v - f
	switch {
	case diff < 0.5:
		return byte(f)
	case diff > 0.5:
		return byte(f) + 1
	default:
		if int64(f)%2 == 0 {
			return byte(f)
		}
		return byte(f) + 1
	}
}

// DataView exposes arbitrary-offset, explicit-endianness reads/writes over
// an ArrayBuffer (spec.md §3.3), unlike TypedArray's fixed-stride
// same-endianness view.
type DataView struct {
	Buffer     *gc.Header
	buf        *ArrayBuffer
	ByteOffset int
	ByteLength int
}

func NewDataView(bufRef *gc.Header, buf *ArrayBuffer, byteOffset, byteLength int) *DataView {
	return &DataView{Buffer: bufRef, buf: buf, ByteOffset: byteOffset, ByteLength: byteLength}
}

func (d *DataView) Trace(visit func(*gc.Header)) {
	if d.Buffer != nil {
		visit(d.Buffer)
	}
}
func (d *DataView) Finalize() {}

func (d *DataView) order(littleEndian bool) binary.ByteOrder {
	if littleEndian {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func (d *DataView) GetUint32(byteOffset int, littleEndian bool) uint32 {
	if d.buf.Detached {
		return 0
	}
	return d.order(littleEndian).Uint32(d.buf.Data[d.ByteOffset+byteOffset:])
}

func (d *DataView) SetUint32(byteOffset int, v uint32, littleEndian bool) {
	if d.buf.Detached {
		return
	}
	d.order(littleEndian).PutUint32(d.buf.Data[d.ByteOffset+byteOffset:], v)
}

func (d *DataView) GetFloat64(byteOffset int, littleEndian bool) float64 {
	if d.buf.Detached {
		return 0
	}
	return math.Float64frombits(d.order(littleEndian).Uint64(d.buf.Data[d.ByteOffset+byteOffset:]))
}

func (d *DataView) SetFloat64(byteOffset int, v float64, littleEndian bool) {
	if d.buf.Detached {
		return
	}
	d.order(littleEndian).PutUint64(d.buf.Data[d.ByteOffset+byteOffset:], math.Float64bits(v))
}
