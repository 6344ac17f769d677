package meshbuf

import "fmt"

// ColumnSpec claims a contiguous column range of a row-major array as one
// named vertex attribute.
type ColumnSpec struct {
	Name       string
	BaseType   BaseType
	Column     int
	NumColumns int
}

// Encode packs data (rows = elements) into one interleaved buffer and returns
// a descriptor per spec. Every row is one element; the shared stride is
// len(row) * width and each descriptor starts at Column * width.
//
// All specs must share a base type. Integer types truncate toward zero and
// reject values outside their range.
func Encode(data [][]float64, specs []ColumnSpec) (RawBuffer, []AttributeDescriptor, error) {
	if len(specs) == 0 {
		return RawBuffer{}, nil, fmt.Errorf("%w: no column specs", ErrInvalidDescriptor)
	}
	bt := specs[0].BaseType
	if !bt.Valid() {
		return RawBuffer{}, nil, fmt.Errorf("%w: %d", ErrUnknownBaseType, uint8(bt))
	}
	for i, s := range specs[1:] {
		if s.BaseType != bt {
			return RawBuffer{}, nil, &MixedTypeError{Name: s.Name, Want: bt, Got: s.BaseType, Position: i + 1}
		}
	}

	// with no rows the column specs define the row width
	columns := 0
	if len(data) > 0 {
		columns = len(data[0])
	} else {
		for _, s := range specs {
			columns = max(columns, s.Column+s.NumColumns)
		}
	}
	for i, row := range data {
		if len(row) != columns {
			return RawBuffer{}, nil, fmt.Errorf("%w: row %d has %d columns, row 0 has %d", ErrRaggedArray, i, len(row), columns)
		}
	}
	for _, s := range specs {
		if s.Column < 0 || s.NumColumns <= 0 || s.Column+s.NumColumns > columns {
			return RawBuffer{}, nil, fmt.Errorf("%w: %s [%d,%d) of %d", ErrColumnRange, s.Name, s.Column, s.Column+s.NumColumns, columns)
		}
	}

	info := baseTypes[bt]
	rowWidth := columns * info.width
	out := make([]byte, len(data)*rowWidth)
	for r, row := range data {
		base := r * rowWidth
		for c, v := range row {
			if !bt.representable(v) {
				return RawBuffer{}, nil, fmt.Errorf("%w: %v as %s at row %d column %d", ErrUnrepresentable, v, bt, r, c)
			}
			off := base + c*info.width
			info.encode(out[off:off+info.width], v)
		}
	}

	descs := make([]AttributeDescriptor, len(specs))
	for i, s := range specs {
		descs[i] = AttributeDescriptor{
			Name:           s.Name,
			Kind:           VertexAttribute,
			BaseType:       bt,
			ComponentCount: s.NumColumns,
			ByteOffset:     s.Column * info.width,
			ByteStride:     rowWidth,
			Count:          len(data),
		}
	}
	return NewRawBuffer(out), descs, nil
}

// EncodeIndices tightly packs an index list as bt.
func EncodeIndices(indices []uint32, bt BaseType) (RawBuffer, AttributeDescriptor, error) {
	if !bt.Valid() {
		return RawBuffer{}, AttributeDescriptor{}, fmt.Errorf("%w: %d", ErrUnknownBaseType, uint8(bt))
	}
	info := baseTypes[bt]
	if info.float {
		return RawBuffer{}, AttributeDescriptor{}, fmt.Errorf("%w: index buffers need an integer type, got %s", ErrInvalidDescriptor, bt)
	}
	out := make([]byte, len(indices)*info.width)
	for i, idx := range indices {
		v := float64(idx)
		if !bt.representable(v) {
			return RawBuffer{}, AttributeDescriptor{}, fmt.Errorf("%w: index %d as %s", ErrUnrepresentable, idx, bt)
		}
		info.encode(out[i*info.width:(i+1)*info.width], v)
	}
	return NewRawBuffer(out), AttributeDescriptor{
		Kind:     IndexAttribute,
		BaseType: bt,
		Count:    len(indices),
	}, nil
}
