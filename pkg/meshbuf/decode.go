package meshbuf

import (
	"fmt"
	"iter"
)

// Sequence is a lazy, restartable view of a decoded attribute.
// Each iteration re-reads the borrowed buffer; nothing is cached.
type Sequence struct {
	data       []byte
	desc       AttributeDescriptor
	decode     func([]byte) float64
	width      int
	stride     int
	components int
}

// Decode validates desc against buf and returns a lazy tuple sequence.
// The full read range is checked up front, so iteration never fails.
func Decode(buf RawBuffer, desc AttributeDescriptor, conv StrideConvention) (*Sequence, error) {
	if err := desc.Validate(buf.Len(), conv); err != nil {
		return nil, err
	}
	return &Sequence{
		data:       buf.data,
		desc:       desc,
		decode:     baseTypes[desc.BaseType].decode,
		width:      desc.BaseType.Width(),
		stride:     desc.EffectiveStride(conv),
		components: desc.EffectiveComponents(conv),
	}, nil
}

// Len returns the number of elements.
func (s *Sequence) Len() int {
	return s.desc.Count
}

// Components returns the tuple size.
func (s *Sequence) Components() int {
	return s.components
}

// Descriptor returns the descriptor the sequence was built from.
func (s *Sequence) Descriptor() AttributeDescriptor {
	return s.desc
}

// At decodes element i into a fresh slice.
func (s *Sequence) At(i int) ([]float64, error) {
	if i < 0 || i >= s.desc.Count {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfSequence, i, s.desc.Count)
	}
	return s.read(i, make([]float64, s.components)), nil
}

func (s *Sequence) read(i int, dst []float64) []float64 {
	base := s.desc.ByteOffset + i*s.stride
	for c := range dst {
		off := base + c*s.width
		dst[c] = s.decode(s.data[off : off+s.width])
	}
	return dst
}

// All yields (index, tuple) pairs. Each tuple is a new slice owned by the
// caller.
func (s *Sequence) All() iter.Seq2[int, []float64] {
	return func(yield func(int, []float64) bool) {
		for i := 0; i < s.desc.Count; i++ {
			if !yield(i, s.read(i, make([]float64, s.components))) {
				return
			}
		}
	}
}

// Values yields the tuples in order.
func (s *Sequence) Values() iter.Seq[[]float64] {
	return func(yield func([]float64) bool) {
		for _, v := range s.All() {
			if !yield(v) {
				return
			}
		}
	}
}

// Scalars yields every component of every tuple as a flat sequence.
// Index attributes are normally consumed this way.
func (s *Sequence) Scalars() iter.Seq[float64] {
	return func(yield func(float64) bool) {
		buf := make([]float64, s.components)
		for i := 0; i < s.desc.Count; i++ {
			for _, v := range s.read(i, buf) {
				if !yield(v) {
					return
				}
			}
		}
	}
}

// Collect decodes every element into a rows x components array.
func (s *Sequence) Collect() [][]float64 {
	out := make([][]float64, 0, s.desc.Count)
	for v := range s.Values() {
		out = append(out, v)
	}
	return out
}
