package plymesh

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// Attribute names assembled from PLY vertex properties.
const (
	PositionAttribute = "POSITION"
	NormalAttribute   = "NORMAL"
)

// vectors lists the property groups joined into one attribute, longest
// first. The first group found wins.
var vectors = []struct {
	name  string
	props []string
}{
	{PositionAttribute, []string{"x", "y", "z"}},
	{PositionAttribute, []string{"x", "y"}},
	{NormalAttribute, []string{"nx", "ny", "nz"}},
}

// Mesh is a decoded PLY file.
type Mesh struct {
	Header Header
	// Attributes holds every scalar vertex property under its PLY name,
	// plus POSITION and NORMAL when the coordinates are present.
	Attributes map[string]meshbuf.Attribute
	// Indices holds the faces as triangles, or nil without a face element.
	Indices *meshbuf.Attribute
}

// VertexCount returns the number of vertices.
func (m *Mesh) VertexCount() int {
	el, _ := m.Header.Element("vertex")
	return el.Count
}

// ParseFile reads and parses a PLY file.
func ParseFile(path string) (*Mesh, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode reads a whole PLY stream from r.
func Decode(r io.Reader) (*Mesh, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses PLY data. Binary attributes keep referencing data, which must
// not be modified afterwards.
func Parse(data []byte) (*Mesh, error) {
	h, body, err := parseHeader(data)
	if err != nil {
		return nil, err
	}
	vertex, ok := h.Element("vertex")
	if !ok {
		return nil, ErrNoVertices
	}

	var r bodyReader
	switch h.Format {
	case ASCII:
		r = &asciiBody{data: data, off: body}
	case BinaryLittleEndian:
		r = &binaryBody{data: data, off: body}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, h.Format)
	}

	m := &Mesh{Header: h, Attributes: make(map[string]meshbuf.Attribute)}
	for _, el := range h.Elements {
		switch el.Name {
		case "vertex":
			err = m.readVertices(r, el)
		case "face":
			err = m.readFaces(r, el, vertex.Count)
		default:
			err = skipElement(r, el)
		}
		if err != nil {
			return nil, fmt.Errorf("element %s: %w", el.Name, err)
		}
	}
	return m, nil
}

// bodyReader yields scalars from the data section in file order.
type bodyReader interface {
	scalar(bt meshbuf.BaseType) (float64, error)
}

type binaryBody struct {
	data []byte
	off  int
}

func (r *binaryBody) scalar(bt meshbuf.BaseType) (float64, error) {
	w := bt.Width()
	if len(r.data)-r.off < w {
		return 0, fmt.Errorf("%w: %s at byte %d", ErrTruncated, bt, r.off)
	}
	v, err := bt.DecodeScalar(r.data[r.off : r.off+w])
	r.off += w
	return v, err
}

type asciiBody struct {
	data []byte
	off  int
}

func (r *asciiBody) scalar(bt meshbuf.BaseType) (float64, error) {
	for r.off < len(r.data) && isSpace(r.data[r.off]) {
		r.off++
	}
	start := r.off
	for r.off < len(r.data) && !isSpace(r.data[r.off]) {
		r.off++
	}
	if start == r.off {
		return 0, fmt.Errorf("%w: expected %s", ErrTruncated, bt)
	}
	tok := string(r.data[start:r.off])
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrSyntax, tok)
	}
	return v, nil
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// readRow reads one row; each property yields one value, list properties
// yield their items.
func readRow(r bodyReader, props []Property) ([][]float64, error) {
	row := make([][]float64, len(props))
	for i, p := range props {
		if !p.List {
			v, err := r.scalar(p.Type)
			if err != nil {
				return nil, err
			}
			row[i] = []float64{v}
			continue
		}
		n, err := r.scalar(p.CountType)
		if err != nil {
			return nil, err
		}
		if n < 0 || n != math.Trunc(n) {
			return nil, fmt.Errorf("%w: list length %g", ErrSyntax, n)
		}
		items := make([]float64, int(n))
		for j := range items {
			if items[j], err = r.scalar(p.Type); err != nil {
				return nil, err
			}
		}
		row[i] = items
	}
	return row, nil
}

func skipElement(r bodyReader, el Element) error {
	if b, ok := r.(*binaryBody); ok && !el.HasLists() {
		size := uint64(el.rowSize()) * uint64(el.Count)
		if size > uint64(len(b.data)-b.off) {
			return fmt.Errorf("%w: %d rows of %d bytes", ErrTruncated, el.Count, el.rowSize())
		}
		b.off += int(size)
		return nil
	}
	for range el.Count {
		if _, err := readRow(r, el.Properties); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mesh) readVertices(r bodyReader, el Element) error {
	if b, ok := r.(*binaryBody); ok && !el.HasLists() {
		if err := m.viewVertices(b, el); err != nil {
			return err
		}
	} else if err := m.packVertices(r, el); err != nil {
		return err
	}
	return m.joinVectors(el)
}

// viewVertices describes every property of a fixed-stride binary vertex block
// in place.
func (m *Mesh) viewVertices(b *binaryBody, el Element) error {
	stride := el.rowSize()
	size := uint64(stride) * uint64(el.Count)
	if size > uint64(len(b.data)-b.off) {
		return fmt.Errorf("%w: %d vertices of %d bytes", ErrTruncated, el.Count, stride)
	}
	buf := meshbuf.NewRawBuffer(b.data[b.off : b.off+int(size)])
	b.off += int(size)

	off := 0
	for _, p := range el.Properties {
		m.Attributes[p.Name] = meshbuf.Attribute{
			Buffer: buf,
			Descriptor: meshbuf.AttributeDescriptor{
				Name:           p.Name,
				Kind:           meshbuf.VertexAttribute,
				BaseType:       p.Type,
				ComponentCount: 1,
				ByteOffset:     off,
				ByteStride:     stride,
				Count:          el.Count,
			},
		}
		off += p.Type.Width()
	}
	return nil
}

// packVertices reads ASCII or variable-length rows and packs the scalar
// properties as one float64 buffer. List properties are skipped.
func (m *Mesh) packVertices(r bodyReader, el Element) error {
	var specs []meshbuf.ColumnSpec
	for _, p := range el.Properties {
		if !p.List {
			specs = append(specs, meshbuf.ColumnSpec{Name: p.Name, BaseType: meshbuf.Float64, Column: len(specs), NumColumns: 1})
		}
	}
	rows := make([][]float64, 0, el.Count)
	for range el.Count {
		row, err := readRow(r, el.Properties)
		if err != nil {
			return err
		}
		vals := make([]float64, 0, len(specs))
		for i, p := range el.Properties {
			if !p.List {
				vals = append(vals, row[i][0])
			}
		}
		rows = append(rows, vals)
	}
	if len(specs) == 0 {
		return nil
	}
	buf, descs, err := meshbuf.Encode(rows, specs)
	if err != nil {
		return err
	}
	for _, d := range descs {
		m.Attributes[d.Name] = meshbuf.Attribute{Buffer: buf, Descriptor: d}
	}
	return nil
}

// joinVectors adds POSITION and NORMAL. Adjacent properties of one type
// share a single strided view; anything else is repacked.
func (m *Mesh) joinVectors(el Element) error {
	for _, v := range vectors {
		if _, done := m.Attributes[v.name]; done {
			continue
		}
		parts := make([]meshbuf.Attribute, 0, len(v.props))
		for _, name := range v.props {
			a, ok := m.Attributes[name]
			if !ok {
				break
			}
			parts = append(parts, a)
		}
		if len(parts) != len(v.props) {
			continue
		}

		if adjacent(parts) {
			d := parts[0].Descriptor
			d.Name = v.name
			d.ComponentCount = len(parts)
			m.Attributes[v.name] = meshbuf.Attribute{Buffer: parts[0].Buffer, Descriptor: d}
			continue
		}
		a, err := repack(v.name, parts, el.Count)
		if err != nil {
			return err
		}
		m.Attributes[v.name] = a
	}
	return nil
}

// adjacent reports whether parts are consecutive same-typed columns of one
// row layout.
func adjacent(parts []meshbuf.Attribute) bool {
	first := parts[0].Descriptor
	w := first.BaseType.Width()
	for i, p := range parts[1:] {
		d := p.Descriptor
		if d.BaseType != first.BaseType || d.ByteStride != first.ByteStride ||
			d.ByteOffset != first.ByteOffset+(i+1)*w {
			return false
		}
	}
	return true
}

func repack(name string, parts []meshbuf.Attribute, count int) (meshbuf.Attribute, error) {
	rows := make([][]float64, count)
	for i := range rows {
		rows[i] = make([]float64, len(parts))
	}
	for c, p := range parts {
		seq, err := p.Decode()
		if err != nil {
			return meshbuf.Attribute{}, err
		}
		for i, v := range seq.All() {
			rows[i][c] = v[0]
		}
	}
	buf, descs, err := meshbuf.Encode(rows, []meshbuf.ColumnSpec{
		{Name: name, BaseType: meshbuf.Float64, Column: 0, NumColumns: len(parts)},
	})
	if err != nil {
		return meshbuf.Attribute{}, err
	}
	return meshbuf.Attribute{Buffer: buf, Descriptor: descs[0]}, nil
}

// readFaces reads the vertex index lists and fan-triangulates polygons.
// A binary block of triangles with no other properties is viewed in place.
func (m *Mesh) readFaces(r bodyReader, el Element, vertices int) error {
	li := el.Property("vertex_indices")
	if li < 0 {
		li = el.Property("vertex_index")
	}
	if li < 0 || !el.Properties[li].List {
		return fmt.Errorf("%w: vertex_indices", ErrMissingProperty)
	}
	p := el.Properties[li]
	if p.Type.IsFloat() {
		return fmt.Errorf("%w: %s", ErrInvalidIndexType, p.Type)
	}

	b, isBinary := r.(*binaryBody)
	start := 0
	if isBinary {
		start = b.off
	}

	var tris []uint32
	allTriangles := true
	for f := range el.Count {
		row, err := readRow(r, el.Properties)
		if err != nil {
			return err
		}
		idx := row[li]
		for _, v := range idx {
			if v < 0 || v >= float64(vertices) {
				return fmt.Errorf("%w: face %d refers to vertex %g of %d", ErrIndexRange, f, v, vertices)
			}
		}
		if len(idx) != 3 {
			allTriangles = false
		}
		// fan; faces with fewer than 3 vertices contribute nothing
		for k := 1; k+1 < len(idx); k++ {
			tris = append(tris, uint32(idx[0]), uint32(idx[k]), uint32(idx[k+1]))
		}
	}

	if isBinary && allTriangles && len(el.Properties) == 1 && el.Count > 0 {
		cw, iw := p.CountType.Width(), p.Type.Width()
		m.Indices = &meshbuf.Attribute{
			Buffer: meshbuf.NewRawBuffer(b.data[start:b.off]),
			Descriptor: meshbuf.AttributeDescriptor{
				Name:           p.Name,
				Kind:           meshbuf.IndexAttribute,
				BaseType:       p.Type,
				ComponentCount: 3,
				ByteOffset:     cw,
				ByteStride:     cw + 3*iw,
				Count:          el.Count,
			},
		}
		return nil
	}

	buf, desc, err := meshbuf.EncodeIndices(tris, meshbuf.UInt32)
	if err != nil {
		return err
	}
	desc.Name = p.Name
	m.Indices = &meshbuf.Attribute{Buffer: buf, Descriptor: desc}
	return nil
}
