package gltfmesh

import (
	"fmt"
	"io"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshfit/pkg/bounds"
	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// ExportMesh is the geometry written by Write.
type ExportMesh struct {
	Name string
	// Positions are packed with PositionType.
	Positions    []mgl64.Vec3
	PositionType meshbuf.BaseType
	// Indices form triangles over Positions. Empty means non-indexed.
	Indices []uint32
	// Lines, if set, is written as a second mesh drawn as line segments,
	// e.g. a bounding box wireframe.
	Lines []mgl64.Vec3
}

// Write encodes mesh as a binary glTF (GLB) document.
func Write(w io.Writer, mesh ExportMesh) error {
	doc, err := Build(mesh)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(w)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding glTF: %w", err)
	}
	return nil
}

// Build assembles the glTF document for mesh with a single embedded buffer.
func Build(mesh ExportMesh) (*gltf.Document, error) {
	b := &docBuilder{doc: gltf.NewDocument()}

	// an empty mesh is written as an empty scene; glTF accessors need count >= 1
	if len(mesh.Positions) > 0 {
		prim, err := b.triangles(mesh.Positions, mesh.PositionType, mesh.Indices)
		if err != nil {
			return nil, err
		}
		b.addMesh(mesh.Name, prim)
	} else if len(mesh.Indices) > 0 {
		return nil, fmt.Errorf("%w: %d indices without positions", ErrIndexRange, len(mesh.Indices))
	}

	if len(mesh.Lines) > 0 {
		lines, err := b.positions(mesh.Lines, meshbuf.Float32)
		if err != nil {
			return nil, fmt.Errorf("line geometry: %w", err)
		}
		b.addMesh(mesh.Name+"_lines", &gltf.Primitive{
			Attributes: gltf.Attribute{PositionAttribute: lines},
			Mode:       gltf.PrimitiveLines,
		})
	}

	if len(b.bin) > 0 {
		b.doc.Buffers = []*gltf.Buffer{{ByteLength: uint32(len(b.bin)), Data: b.bin}}
	}
	return b.doc, nil
}

type docBuilder struct {
	doc *gltf.Document
	bin []byte
}

func (b *docBuilder) triangles(pts []mgl64.Vec3, bt meshbuf.BaseType, indices []uint32) (*gltf.Primitive, error) {
	pos, err := b.positions(pts, bt)
	if err != nil {
		return nil, err
	}
	prim := &gltf.Primitive{
		Attributes: gltf.Attribute{PositionAttribute: pos},
		Mode:       gltf.PrimitiveTriangles,
	}
	if len(indices) == 0 {
		return prim, nil
	}

	for i, idx := range indices {
		if int(idx) >= len(pts) {
			return nil, fmt.Errorf("%w: index %d is %d, mesh has %d vertices", ErrIndexRange, i, idx, len(pts))
		}
	}
	// the type's maximum is the primitive restart value and may not be used
	ibt := meshbuf.UInt32
	if len(pts) <= math.MaxUint16 {
		ibt = meshbuf.UInt16
	}
	raw, desc, err := meshbuf.EncodeIndices(indices, ibt)
	if err != nil {
		return nil, fmt.Errorf("indices: %w", err)
	}
	idx, err := b.accessor(raw, desc, 0, gltf.TargetElementArrayBuffer)
	if err != nil {
		return nil, err
	}
	prim.Indices = gltf.Index(idx)
	return prim, nil
}

func (b *docBuilder) positions(pts []mgl64.Vec3, bt meshbuf.BaseType) (uint32, error) {
	rows := make([][]float64, len(pts))
	for i, p := range pts {
		rows[i] = []float64{p[0], p[1], p[2]}
	}
	raw, descs, err := meshbuf.Encode(rows, []meshbuf.ColumnSpec{
		{Name: PositionAttribute, BaseType: bt, Column: 0, NumColumns: 3},
	})
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	idx, err := b.accessor(raw, descs[0], descs[0].ByteStride, gltf.TargetArrayBuffer)
	if err != nil {
		return 0, err
	}

	// POSITION accessors must carry bounds of the stored, quantized values
	seq, err := meshbuf.Decode(raw, descs[0], meshbuf.VertexConvention)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	box, err := bounds.FromSequence(seq)
	if err != nil {
		return 0, fmt.Errorf("positions: %w", err)
	}
	acc := b.doc.Accessors[idx]
	acc.Min = []float32{float32(box.Min[0]), float32(box.Min[1]), float32(box.Min[2])}
	acc.Max = []float32{float32(box.Max[0]), float32(box.Max[1]), float32(box.Max[2])}
	return idx, nil
}

// accessor appends raw as a new 4-byte aligned buffer view and returns the
// accessor index describing it.
func (b *docBuilder) accessor(raw meshbuf.RawBuffer, desc meshbuf.AttributeDescriptor, stride int, target gltf.Target) (uint32, error) {
	ct, err := componentTypeOf(desc.BaseType)
	if err != nil {
		return 0, err
	}
	comps := desc.EffectiveComponents(meshbuf.ConventionFor(desc.Kind))
	at, err := accessorTypeOf(comps)
	if err != nil {
		return 0, err
	}

	for len(b.bin)%4 != 0 {
		b.bin = append(b.bin, 0)
	}
	view := &gltf.BufferView{
		Buffer:     0,
		ByteOffset: uint32(len(b.bin)),
		ByteLength: uint32(raw.Len()),
		Target:     target,
	}
	// glTF only allows an explicit stride on vertex views.
	if target == gltf.TargetArrayBuffer {
		view.ByteStride = uint32(stride)
	}
	b.bin = append(b.bin, raw.Bytes()...)
	b.doc.BufferViews = append(b.doc.BufferViews, view)

	b.doc.Accessors = append(b.doc.Accessors, &gltf.Accessor{
		BufferView:    gltf.Index(uint32(len(b.doc.BufferViews) - 1)),
		ByteOffset:    uint32(desc.ByteOffset),
		ComponentType: ct,
		Count:         uint32(desc.Count),
		Type:          at,
	})
	return uint32(len(b.doc.Accessors) - 1), nil
}

func (b *docBuilder) addMesh(name string, prim *gltf.Primitive) {
	b.doc.Meshes = append(b.doc.Meshes, &gltf.Mesh{
		Name:       name,
		Primitives: []*gltf.Primitive{prim},
	})
	meshIdx := uint32(len(b.doc.Meshes) - 1)
	b.doc.Nodes = append(b.doc.Nodes, &gltf.Node{
		Name: name,
		Mesh: gltf.Index(meshIdx),
	})
	b.doc.Scenes[0].Nodes = append(b.doc.Scenes[0].Nodes, uint32(len(b.doc.Nodes)-1))
}
