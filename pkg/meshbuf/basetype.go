// Package meshbuf decodes and packs strided mesh attribute buffers.
//
// A buffer is an opaque little-endian byte sequence. An AttributeDescriptor
// tells how to view it as a sequence of fixed-size numeric tuples: the scalar
// base type, the component count per element, the byte offset of the first
// element and the byte stride between elements.
package meshbuf

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/x448/float16"
)

// BaseType is the scalar encoding shared by every component of an attribute.
type BaseType uint8

const (
	Int8 BaseType = iota
	UInt8
	Int16
	UInt16
	Int32
	UInt32
	Float16
	Float32
	Float64
)

// baseTypeInfo is the per-tag dispatch entry.
type baseTypeInfo struct {
	name   string
	width  int
	min    float64 // integer range, ignored for floats
	max    float64
	float  bool
	decode func(b []byte) float64
	encode func(b []byte, v float64)
}

var le = binary.LittleEndian

var baseTypes = [...]baseTypeInfo{
	Int8: {
		name: "int8", width: 1, min: math.MinInt8, max: math.MaxInt8,
		decode: func(b []byte) float64 { return float64(int8(b[0])) },
		encode: func(b []byte, v float64) { b[0] = byte(int8(v)) },
	},
	UInt8: {
		name: "uint8", width: 1, min: 0, max: math.MaxUint8,
		decode: func(b []byte) float64 { return float64(b[0]) },
		encode: func(b []byte, v float64) { b[0] = uint8(v) },
	},
	Int16: {
		name: "int16", width: 2, min: math.MinInt16, max: math.MaxInt16,
		decode: func(b []byte) float64 { return float64(int16(le.Uint16(b))) },
		encode: func(b []byte, v float64) { le.PutUint16(b, uint16(int16(v))) },
	},
	UInt16: {
		name: "uint16", width: 2, min: 0, max: math.MaxUint16,
		decode: func(b []byte) float64 { return float64(le.Uint16(b)) },
		encode: func(b []byte, v float64) { le.PutUint16(b, uint16(v)) },
	},
	Int32: {
		name: "int32", width: 4, min: math.MinInt32, max: math.MaxInt32,
		decode: func(b []byte) float64 { return float64(int32(le.Uint32(b))) },
		encode: func(b []byte, v float64) { le.PutUint32(b, uint32(int32(v))) },
	},
	UInt32: {
		name: "uint32", width: 4, min: 0, max: math.MaxUint32,
		decode: func(b []byte) float64 { return float64(le.Uint32(b)) },
		encode: func(b []byte, v float64) { le.PutUint32(b, uint32(v)) },
	},
	Float16: {
		name: "float16", width: 2, float: true,
		decode: func(b []byte) float64 { return float64(float16.Frombits(le.Uint16(b)).Float32()) },
		encode: func(b []byte, v float64) { le.PutUint16(b, float16.Fromfloat32(float32(v)).Bits()) },
	},
	Float32: {
		name: "float32", width: 4, float: true,
		decode: func(b []byte) float64 { return float64(math.Float32frombits(le.Uint32(b))) },
		encode: func(b []byte, v float64) { le.PutUint32(b, math.Float32bits(float32(v))) },
	},
	Float64: {
		name: "float64", width: 8, float: true,
		decode: func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) },
		encode: func(b []byte, v float64) { le.PutUint64(b, math.Float64bits(v)) },
	},
}

// Valid reports whether t is one of the known base types.
func (t BaseType) Valid() bool {
	return int(t) < len(baseTypes)
}

// Width returns the byte width of one scalar, or 0 for an unknown type.
func (t BaseType) Width() int {
	if !t.Valid() {
		return 0
	}
	return baseTypes[t].width
}

// IsFloat reports whether t is an IEEE floating point type.
func (t BaseType) IsFloat() bool {
	return t.Valid() && baseTypes[t].float
}

// String returns the lowercase type name.
func (t BaseType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Unknown(%d)", uint8(t))
	}
	return baseTypes[t].name
}

// DecodeScalar decodes one little-endian value of type t from the start of b.
func (t BaseType) DecodeScalar(b []byte) (float64, error) {
	if !t.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrUnknownBaseType, uint8(t))
	}
	info := baseTypes[t]
	if len(b) < info.width {
		return 0, fmt.Errorf("%w: %s needs %d bytes, have %d", ErrOutOfBounds, t, info.width, len(b))
	}
	return info.decode(b[:info.width]), nil
}

// ParseBaseType converts a name such as "float32" or "uint16" to a BaseType.
func ParseBaseType(s string) (BaseType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i := range baseTypes {
		if baseTypes[i].name == s {
			return BaseType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownBaseType, s)
}

// MarshalText implements encoding.TextMarshaler so base types read well in YAML.
func (t BaseType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownBaseType, uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *BaseType) UnmarshalText(text []byte) error {
	v, err := ParseBaseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// representable reports whether v can be stored in t after truncation.
// Finite values that would overflow a float type to infinity are rejected.
func (t BaseType) representable(v float64) bool {
	info := baseTypes[t]
	if info.float {
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return true
		}
		switch t {
		case Float16:
			return !float16.Fromfloat32(float32(v)).IsInf(0)
		case Float32:
			return !math.IsInf(float64(float32(v)), 0)
		}
		return true
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	v = math.Trunc(v)
	return v >= info.min && v <= info.max
}
