package meshbuf

import (
	"errors"
	"fmt"
	"math/bits"
)

// Decoder and encoder errors.
var (
	ErrUnknownBaseType    = errors.New("unknown base type")
	ErrInvalidDescriptor  = errors.New("invalid attribute descriptor")
	ErrOutOfBounds        = errors.New("attribute read out of bounds")
	ErrMixedType          = errors.New("mixed attribute base types")
	ErrRaggedArray        = errors.New("rows have different lengths")
	ErrColumnRange        = errors.New("column range outside row")
	ErrUnrepresentable    = errors.New("value not representable in base type")
	ErrInvalidGroupSize   = errors.New("group size must be positive")
	ErrUnknownConvention  = errors.New("unknown stride convention")
	ErrUnknownRemainder   = errors.New("unknown remainder policy")
	ErrIndexOutOfSequence = errors.New("element index out of range")
)

// OutOfBoundsError reports a descriptor whose read range exceeds its buffer.
// It is returned before any byte is read.
type OutOfBoundsError struct {
	Name   string
	End    uint64 // first byte past the last read
	BufLen int
}

func (e *OutOfBoundsError) Error() string {
	name := e.Name
	if name == "" {
		name = "(unnamed)"
	}
	return fmt.Sprintf("attribute %s: read range ends at byte %d, buffer has %d bytes", name, e.End, e.BufLen)
}

// Unwrap returns ErrOutOfBounds.
func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBounds }

// MixedTypeError reports column specs that disagree on base type.
type MixedTypeError struct {
	Name     string
	Want     BaseType
	Got      BaseType
	Position int
}

func (e *MixedTypeError) Error() string {
	return fmt.Sprintf("column spec %d (%s) is %s, expected %s", e.Position, e.Name, e.Got, e.Want)
}

// Unwrap returns ErrMixedType.
func (e *MixedTypeError) Unwrap() error { return ErrMixedType }

// AttributeKind says whether an attribute describes vertices or indices.
type AttributeKind uint8

const (
	VertexAttribute AttributeKind = iota
	IndexAttribute
)

// String returns "Vertex" or "Index".
func (k AttributeKind) String() string {
	switch k {
	case VertexAttribute:
		return "Vertex"
	case IndexAttribute:
		return "Index"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(k))
	}
}

// StrideConvention selects what a zero stride means.
//
// Vertex buffers treat a zero stride as tightly packed tuples
// (ComponentCount * width). Index buffers report neither stride nor
// component count, so a zero stride is one scalar and a zero component count
// is one component.
type StrideConvention uint8

const (
	VertexConvention StrideConvention = iota
	IndexConvention
)

// String returns the convention name.
func (c StrideConvention) String() string {
	switch c {
	case VertexConvention:
		return "vertex"
	case IndexConvention:
		return "index"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// ConventionFor returns the convention matching an attribute kind.
func ConventionFor(k AttributeKind) StrideConvention {
	if k == IndexAttribute {
		return IndexConvention
	}
	return VertexConvention
}

// AttributeDescriptor describes one attribute embedded in a buffer.
type AttributeDescriptor struct {
	Name           string
	Kind           AttributeKind
	BaseType       BaseType
	ComponentCount int
	ByteOffset     int
	ByteStride     int
	Count          int
}

// EffectiveComponents returns the component count after applying conv.
func (d AttributeDescriptor) EffectiveComponents(conv StrideConvention) int {
	if d.ComponentCount == 0 && conv == IndexConvention {
		return 1
	}
	return d.ComponentCount
}

// EffectiveStride returns the byte stride after applying conv.
func (d AttributeDescriptor) EffectiveStride(conv StrideConvention) int {
	if d.ByteStride != 0 {
		return d.ByteStride
	}
	if conv == IndexConvention {
		return d.BaseType.Width()
	}
	return d.EffectiveComponents(conv) * d.BaseType.Width()
}

// ElementSize returns the number of bytes read per element.
func (d AttributeDescriptor) ElementSize(conv StrideConvention) int {
	return d.EffectiveComponents(conv) * d.BaseType.Width()
}

// Validate checks the descriptor against a buffer of bufLen bytes.
// It returns an *OutOfBoundsError when the last element would end past the
// buffer, and ErrInvalidDescriptor for malformed fields.
func (d AttributeDescriptor) Validate(bufLen int, conv StrideConvention) error {
	if conv != VertexConvention && conv != IndexConvention {
		return fmt.Errorf("%w: %d", ErrUnknownConvention, conv)
	}
	if !d.BaseType.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownBaseType, uint8(d.BaseType))
	}
	if d.ByteOffset < 0 || d.ByteStride < 0 || d.Count < 0 || d.ComponentCount < 0 {
		return fmt.Errorf("%w: negative field in %s", ErrInvalidDescriptor, d.Name)
	}
	if d.EffectiveComponents(conv) == 0 {
		return fmt.Errorf("%w: %s has no components", ErrInvalidDescriptor, d.Name)
	}
	if d.Count == 0 {
		return nil
	}

	// offset + stride*(count-1) + elementSize, without overflow
	hi, span := bits.Mul64(uint64(d.EffectiveStride(conv)), uint64(d.Count-1))
	end, c1 := bits.Add64(span, uint64(d.ByteOffset), 0)
	end, c2 := bits.Add64(end, uint64(d.ElementSize(conv)), 0)
	if hi|c1|c2 != 0 {
		end = ^uint64(0)
	}
	if end > uint64(bufLen) {
		return &OutOfBoundsError{Name: d.Name, End: end, BufLen: bufLen}
	}
	return nil
}

// RawBuffer is an immutable byte sequence holding attribute data.
type RawBuffer struct {
	data []byte
}

// NewRawBuffer wraps b without copying. The caller must not modify b
// afterwards.
func NewRawBuffer(b []byte) RawBuffer {
	return RawBuffer{data: b}
}

// Len returns the buffer length in bytes.
func (b RawBuffer) Len() int {
	return len(b.data)
}

// Bytes returns a copy of the buffer contents.
func (b RawBuffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Attribute pairs a buffer with the descriptor that views it.
type Attribute struct {
	Buffer     RawBuffer
	Descriptor AttributeDescriptor
}

// Convention returns the stride convention for the attribute's kind.
func (a Attribute) Convention() StrideConvention {
	return ConventionFor(a.Descriptor.Kind)
}

// Decode decodes the attribute with its kind's convention.
func (a Attribute) Decode() (*Sequence, error) {
	return Decode(a.Buffer, a.Descriptor, a.Convention())
}
