// Package gltfmesh exposes glTF mesh primitives as meshbuf attributes.
package gltfmesh

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"sort"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshfit/pkg/bounds"
	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// PositionAttribute is the glTF vertex position semantic.
const PositionAttribute = "POSITION"

// glTF loading errors.
var (
	ErrNoMeshes             = errors.New("document has no mesh primitives")
	ErrMissingAttribute     = errors.New("primitive has no such attribute")
	ErrAccessorIndex        = errors.New("accessor index out of range")
	ErrBufferViewIndex      = errors.New("buffer view index out of range")
	ErrBufferViewRange      = errors.New("buffer view outside its buffer")
	ErrSparseAccessor       = errors.New("sparse accessors are not supported")
	ErrUnsupportedComponent = errors.New("unsupported component type")
	ErrUnsupportedType      = errors.New("unsupported accessor type")
	ErrIndexRange           = errors.New("index past last vertex")
)

// Model is a loaded glTF document.
type Model struct {
	doc   *gltf.Document
	prims []Primitive
}

// Primitive is one draw call of a glTF mesh.
type Primitive struct {
	Mesh       string
	MeshIndex  int
	Index      int
	Mode       gltf.PrimitiveMode
	Attributes map[string]meshbuf.Attribute
	Indices    *meshbuf.Attribute
}

// Load reads a .gltf or .glb file, including external buffers.
func Load(path string) (*Model, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	return FromDocument(doc)
}

// Decode reads a self-contained document (binary or embedded buffers) from r.
func Decode(r io.Reader) (*Model, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("decoding glTF: %w", err)
	}
	return FromDocument(doc)
}

// FromDocument resolves every primitive's accessors in doc.
func FromDocument(doc *gltf.Document) (*Model, error) {
	m := &Model{doc: doc}
	for mi, mesh := range doc.Meshes {
		for pi, p := range mesh.Primitives {
			prim := Primitive{
				Mesh:       mesh.Name,
				MeshIndex:  mi,
				Index:      pi,
				Mode:       p.Mode,
				Attributes: make(map[string]meshbuf.Attribute, len(p.Attributes)),
			}
			for name, idx := range p.Attributes {
				attr, err := resolveAccessor(doc, idx, name, meshbuf.VertexAttribute)
				if err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d %s: %w", mi, pi, name, err)
				}
				prim.Attributes[name] = attr
			}
			if p.Indices != nil {
				attr, err := resolveAccessor(doc, *p.Indices, "", meshbuf.IndexAttribute)
				if err != nil {
					return nil, fmt.Errorf("mesh %d primitive %d indices: %w", mi, pi, err)
				}
				prim.Indices = &attr
			}
			m.prims = append(m.prims, prim)
		}
	}
	return m, nil
}

// NewModel wraps primitives decoded from another format. Its Document is nil.
func NewModel(prims ...Primitive) *Model {
	return &Model{prims: prims}
}

// Document returns the underlying glTF document, or nil for a NewModel.
func (m *Model) Document() *gltf.Document {
	return m.doc
}

// Primitives returns every primitive in mesh order.
func (m *Model) Primitives() []Primitive {
	return m.prims
}

// Positions yields the positions of every primitive in turn, using the
// attribute called name.
func (m *Model) Positions(name string) (iter.Seq[mgl64.Vec3], error) {
	if len(m.prims) == 0 {
		return nil, ErrNoMeshes
	}
	var sources []iter.Seq[mgl64.Vec3]
	for _, p := range m.prims {
		seq, err := p.Decode(name)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", p.MeshIndex, p.Index, err)
		}
		pts, err := bounds.Points(seq)
		if err != nil {
			return nil, fmt.Errorf("mesh %d primitive %d: %w", p.MeshIndex, p.Index, err)
		}
		sources = append(sources, pts)
	}
	return func(yield func(mgl64.Vec3) bool) {
		for _, src := range sources {
			for p := range src {
				if !yield(p) {
					return
				}
			}
		}
	}, nil
}

// Bounds returns the box enclosing every primitive's positions.
func (m *Model) Bounds(name string) (bounds.Box, error) {
	pts, err := m.Positions(name)
	if err != nil {
		return bounds.Box{}, err
	}
	return bounds.Compute(pts)
}

// Decode decodes the named vertex attribute.
func (p Primitive) Decode(name string) (*meshbuf.Sequence, error) {
	attr, ok := p.Attributes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingAttribute, name)
	}
	return attr.Decode()
}

// Triangles groups the primitive's indices into triples. It yields nothing
// for non-indexed primitives.
func (p Primitive) Triangles(rem meshbuf.Remainder) (iter.Seq[meshbuf.Group[float64]], error) {
	if p.Indices == nil {
		return func(func(meshbuf.Group[float64]) bool) {}, nil
	}
	seq, err := p.Indices.Decode()
	if err != nil {
		return nil, err
	}
	return meshbuf.GroupBy(seq.Scalars(), 3, rem)
}

// AttributeList returns vertex attributes sorted by name, followed by the
// index attribute if any.
func (p Primitive) AttributeList() []meshbuf.Attribute {
	names := make([]string, 0, len(p.Attributes))
	for name := range p.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]meshbuf.Attribute, 0, len(names)+1)
	for _, name := range names {
		out = append(out, p.Attributes[name])
	}
	if p.Indices != nil {
		out = append(out, *p.Indices)
	}
	return out
}

func resolveAccessor(doc *gltf.Document, idx uint32, name string, kind meshbuf.AttributeKind) (meshbuf.Attribute, error) {
	if int(idx) >= len(doc.Accessors) {
		return meshbuf.Attribute{}, fmt.Errorf("%w: %d", ErrAccessorIndex, idx)
	}
	acc := doc.Accessors[idx]
	if acc.Sparse != nil || acc.BufferView == nil {
		return meshbuf.Attribute{}, ErrSparseAccessor
	}
	bt, err := baseTypeOf(acc.ComponentType)
	if err != nil {
		return meshbuf.Attribute{}, err
	}
	comps, err := componentsOf(acc.Type)
	if err != nil {
		return meshbuf.Attribute{}, err
	}

	vi := *acc.BufferView
	if int(vi) >= len(doc.BufferViews) {
		return meshbuf.Attribute{}, fmt.Errorf("%w: %d", ErrBufferViewIndex, vi)
	}
	view := doc.BufferViews[vi]
	if int(view.Buffer) >= len(doc.Buffers) {
		return meshbuf.Attribute{}, fmt.Errorf("%w: buffer %d", ErrBufferViewRange, view.Buffer)
	}
	data := doc.Buffers[view.Buffer].Data
	start, end := uint64(view.ByteOffset), uint64(view.ByteOffset)+uint64(view.ByteLength)
	if end > uint64(len(data)) {
		return meshbuf.Attribute{}, fmt.Errorf("%w: [%d,%d) of %d bytes", ErrBufferViewRange, start, end, len(data))
	}

	desc := meshbuf.AttributeDescriptor{
		Name:           name,
		Kind:           kind,
		BaseType:       bt,
		ComponentCount: comps,
		ByteOffset:     int(acc.ByteOffset),
		ByteStride:     int(view.ByteStride),
		Count:          int(acc.Count),
	}
	if name == "" {
		desc.Name = acc.Name
	}
	attr := meshbuf.Attribute{Buffer: meshbuf.NewRawBuffer(data[start:end]), Descriptor: desc}
	if err := desc.Validate(attr.Buffer.Len(), attr.Convention()); err != nil {
		return meshbuf.Attribute{}, err
	}
	return attr, nil
}

func baseTypeOf(c gltf.ComponentType) (meshbuf.BaseType, error) {
	switch c {
	case gltf.ComponentByte:
		return meshbuf.Int8, nil
	case gltf.ComponentUbyte:
		return meshbuf.UInt8, nil
	case gltf.ComponentShort:
		return meshbuf.Int16, nil
	case gltf.ComponentUshort:
		return meshbuf.UInt16, nil
	case gltf.ComponentUint:
		return meshbuf.UInt32, nil
	case gltf.ComponentFloat:
		return meshbuf.Float32, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnsupportedComponent, c)
	}
}

func componentTypeOf(bt meshbuf.BaseType) (gltf.ComponentType, error) {
	switch bt {
	case meshbuf.Int8:
		return gltf.ComponentByte, nil
	case meshbuf.UInt8:
		return gltf.ComponentUbyte, nil
	case meshbuf.Int16:
		return gltf.ComponentShort, nil
	case meshbuf.UInt16:
		return gltf.ComponentUshort, nil
	case meshbuf.UInt32:
		return gltf.ComponentUint, nil
	case meshbuf.Float32:
		return gltf.ComponentFloat, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedComponent, bt)
	}
}

func componentsOf(t gltf.AccessorType) (int, error) {
	switch t {
	case gltf.AccessorScalar:
		return 1, nil
	case gltf.AccessorVec2:
		return 2, nil
	case gltf.AccessorVec3:
		return 3, nil
	case gltf.AccessorVec4:
		return 4, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedType, t)
	}
}

func accessorTypeOf(n int) (gltf.AccessorType, error) {
	switch n {
	case 1:
		return gltf.AccessorScalar, nil
	case 2:
		return gltf.AccessorVec2, nil
	case 3:
		return gltf.AccessorVec3, nil
	case 4:
		return gltf.AccessorVec4, nil
	default:
		return 0, fmt.Errorf("%w: %d components", ErrUnsupportedType, n)
	}
}
