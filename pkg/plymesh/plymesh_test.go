package plymesh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

const asciiSquare = `ply
format ascii 1.0
comment square with normals
element vertex 4
property float x
property float y
property float z
property float nx
property float ny
property float nz
property uchar red
element face 1
property list uchar int vertex_indices
end_header
0 0 0 0 0 1 255
2 0 0 0 0 1 0
2 4 0 0 0 1 0
0 4 0 0 0 1 10
4 0 1 2 3
`

// binaryPLY appends little-endian values after a header.
func binaryPLY(t *testing.T, header string, values ...any) []byte {
	t.Helper()
	var buf bytes.Buffer
	buf.WriteString(header)
	for _, v := range values {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatalf("binary.Write(%T) error = %v", v, err)
		}
	}
	return buf.Bytes()
}

func decodeAll(t *testing.T, a meshbuf.Attribute) [][]float64 {
	t.Helper()
	seq, err := a.Decode()
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", a.Descriptor.Name, err)
	}
	return seq.Collect()
}

func triangles(t *testing.T, m *Mesh) []string {
	t.Helper()
	if m.Indices == nil {
		t.Fatal("mesh has no indices")
	}
	seq, err := m.Indices.Decode()
	if err != nil {
		t.Fatalf("Decode(indices) error = %v", err)
	}
	var out []string
	for tri := range meshbuf.Triangles(seq.Scalars()) {
		out = append(out, tri.String())
	}
	return out
}

func TestParseASCII(t *testing.T) {
	m, err := Parse([]byte(asciiSquare))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Header.Format != ASCII || m.Header.Version != "1.0" {
		t.Errorf("format = %s %s", m.Header.Format, m.Header.Version)
	}
	if len(m.Header.Comments) != 1 || m.Header.Comments[0] != "square with normals" {
		t.Errorf("comments = %q", m.Header.Comments)
	}
	if m.VertexCount() != 4 {
		t.Errorf("VertexCount() = %d, want 4", m.VertexCount())
	}

	pos := decodeAll(t, m.Attributes[PositionAttribute])
	want := [][]float64{{0, 0, 0}, {2, 0, 0}, {2, 4, 0}, {0, 4, 0}}
	if !reflect.DeepEqual(pos, want) {
		t.Errorf("POSITION = %v, want %v", pos, want)
	}
	if n := decodeAll(t, m.Attributes[NormalAttribute]); !reflect.DeepEqual(n[2], []float64{0, 0, 1}) {
		t.Errorf("NORMAL[2] = %v, want [0 0 1]", n[2])
	}
	if red := decodeAll(t, m.Attributes["red"]); red[0][0] != 255 || red[3][0] != 10 {
		t.Errorf("red = %v", red)
	}

	// the quad is fanned from its first vertex
	if got := triangles(t, m); !reflect.DeepEqual(got, []string{"(0, 1, 2)", "(0, 2, 3)"}) {
		t.Errorf("triangles = %v", got)
	}
}

func TestParseBinaryInPlace(t *testing.T) {
	header := "ply\nformat binary_little_endian 1.0\n" +
		"element vertex 3\nproperty float x\nproperty float y\nproperty float z\n" +
		"element edge 1\nproperty int vertex1\nproperty int vertex2\n" +
		"element face 1\nproperty list uchar int vertex_indices\nend_header\n"
	data := binaryPLY(t, header,
		[]float32{0, 0, 0, 1, 0, 0, 0, 1, 0.5},
		[]int32{0, 1},
		uint8(3), []int32{2, 1, 0},
	)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	pos := m.Attributes[PositionAttribute]
	d := pos.Descriptor
	if d.BaseType != meshbuf.Float32 || d.ComponentCount != 3 || d.ByteStride != 12 || d.ByteOffset != 0 {
		t.Errorf("POSITION descriptor = %+v, want in-place float32 x3 stride 12", d)
	}
	if got := decodeAll(t, pos); !reflect.DeepEqual(got[2], []float64{0, 1, 0.5}) {
		t.Errorf("POSITION[2] = %v, want [0 1 0.5]", got[2])
	}
	if y := m.Attributes["y"].Descriptor; y.ByteOffset != 4 || y.ComponentCount != 1 {
		t.Errorf("y descriptor = %+v", y)
	}

	idx := m.Indices.Descriptor
	if idx.Kind != meshbuf.IndexAttribute || idx.BaseType != meshbuf.Int32 ||
		idx.ComponentCount != 3 || idx.ByteOffset != 1 || idx.ByteStride != 13 {
		t.Errorf("index descriptor = %+v, want in-place int32 x3 stride 13", idx)
	}
	if got := triangles(t, m); !reflect.DeepEqual(got, []string{"(2, 1, 0)"}) {
		t.Errorf("triangles = %v", got)
	}
}

func TestParseBinaryRepacked(t *testing.T) {
	// red sits between x and y, and the faces mix a triangle and a quad
	header := "ply\nformat binary_little_endian 1.0\n" +
		"element vertex 4\nproperty double x\nproperty uchar red\nproperty double y\nproperty double z\n" +
		"element face 2\nproperty list uchar uint vertex_indices\nend_header\n"
	type vertex struct {
		X   float64
		Red uint8
		Y   float64
		Z   float64
	}
	data := binaryPLY(t, header,
		[]vertex{{0, 1, 0, 0}, {1, 2, 0, 0}, {1, 3, 1, 0}, {0, 4, 1, -2}},
		uint8(3), []uint32{0, 1, 2},
		uint8(4), []uint32{0, 1, 2, 3},
	)

	m, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pos := m.Attributes[PositionAttribute]
	if pos.Descriptor.BaseType != meshbuf.Float64 || pos.Descriptor.ComponentCount != 3 {
		t.Errorf("POSITION descriptor = %+v", pos.Descriptor)
	}
	if got := decodeAll(t, pos); !reflect.DeepEqual(got[3], []float64{0, 1, -2}) {
		t.Errorf("POSITION[3] = %v, want [0 1 -2]", got[3])
	}
	if m.Indices.Descriptor.BaseType != meshbuf.UInt32 {
		t.Errorf("repacked indices type = %s, want uint32", m.Indices.Descriptor.BaseType)
	}
	want := []string{"(0, 1, 2)", "(0, 1, 2)", "(0, 2, 3)"}
	if got := triangles(t, m); !reflect.DeepEqual(got, want) {
		t.Errorf("triangles = %v, want %v", got, want)
	}
}

func TestParsePlanar(t *testing.T) {
	src := "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nend_header\n1 2\n3 4\n"
	m, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	pos := m.Attributes[PositionAttribute]
	if pos.Descriptor.ComponentCount != 2 {
		t.Errorf("POSITION components = %d, want 2", pos.Descriptor.ComponentCount)
	}
	if m.Indices != nil {
		t.Error("point cloud should have no indices")
	}
}

func TestParseErrors(t *testing.T) {
	const vertexHeader = "element vertex 1\nproperty float x\nproperty float y\nproperty float z\n"
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"not ply", []byte("solid cube\n"), ErrNotPLY},
		{"no end_header", []byte("ply\nformat ascii 1.0\n" + vertexHeader), ErrHeader},
		{"no format", []byte("ply\n" + vertexHeader + "end_header\n"), ErrHeader},
		{"property first", []byte("ply\nformat ascii 1.0\nproperty float x\nend_header\n"), ErrHeader},
		{"unknown keyword", []byte("ply\nformat ascii 1.0\nvertices 3\nend_header\n"), ErrHeader},
		{"bad count", []byte("ply\nformat ascii 1.0\nelement vertex -1\nend_header\n"), ErrHeader},
		{"unknown type", []byte("ply\nformat ascii 1.0\nelement vertex 1\nproperty int64 x\nend_header\n"), ErrUnknownType},
		{"float list count", []byte("ply\nformat ascii 1.0\nelement face 1\nproperty list float int vertex_indices\nend_header\n"), ErrHeader},
		{"big endian", []byte("ply\nformat binary_big_endian 1.0\n" + vertexHeader + "end_header\n"), ErrUnsupportedFormat},
		{"unknown format", []byte("ply\nformat utf16 1.0\n" + vertexHeader + "end_header\n"), ErrUnsupportedFormat},
		{"no vertices", []byte("ply\nformat ascii 1.0\nelement face 0\nproperty list uchar int vertex_indices\nend_header\n"), ErrNoVertices},
		{"ascii short", []byte("ply\nformat ascii 1.0\n" + vertexHeader + "end_header\n1 2\n"), ErrTruncated},
		{"ascii token", []byte("ply\nformat ascii 1.0\n" + vertexHeader + "end_header\n1 two 3\n"), ErrSyntax},
		{"binary short", binaryPLY(t, "ply\nformat binary_little_endian 1.0\n"+vertexHeader+"end_header\n", []float32{1, 2}), ErrTruncated},
		{
			"index range",
			[]byte("ply\nformat ascii 1.0\n" + vertexHeader + "element face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n3 0 0 1\n"),
			ErrIndexRange,
		},
		{
			"negative index",
			[]byte("ply\nformat ascii 1.0\n" + vertexHeader + "element face 1\nproperty list uchar int vertex_indices\nend_header\n0 0 0\n3 0 0 -1\n"),
			ErrIndexRange,
		},
		{
			"float indices",
			[]byte("ply\nformat ascii 1.0\n" + vertexHeader + "element face 0\nproperty list uchar float vertex_indices\nend_header\n0 0 0\n"),
			ErrInvalidIndexType,
		},
		{
			"no index list",
			[]byte("ply\nformat ascii 1.0\n" + vertexHeader + "element face 0\nproperty int material\nend_header\n0 0 0\n"),
			ErrMissingProperty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.data); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestWriteReadBack(t *testing.T) {
	g := Geometry{
		Positions:    []mgl64.Vec3{{0, 0, 0}, {2.5, 0, 0}, {0, 4, -1}, {2.5, 4, -1}},
		PositionType: meshbuf.Float32,
		Indices:      []uint32{0, 1, 2, 2, 1, 3},
		Comments:     []string{"fitted"},
	}
	for _, f := range []Format{ASCII, BinaryLittleEndian} {
		t.Run(f.String(), func(t *testing.T) {
			var buf bytes.Buffer
			if err := Write(&buf, f, g); err != nil {
				t.Fatalf("Write() error = %v", err)
			}
			m, err := Decode(&buf)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if m.Header.Format != f {
				t.Errorf("format = %s, want %s", m.Header.Format, f)
			}
			pos := decodeAll(t, m.Attributes[PositionAttribute])
			for i, p := range g.Positions {
				if !reflect.DeepEqual(pos[i], []float64{p[0], p[1], p[2]}) {
					t.Errorf("vertex %d = %v, want %v", i, pos[i], p)
				}
			}
			want := []string{"(0, 1, 2)", "(2, 1, 3)"}
			if got := triangles(t, m); !reflect.DeepEqual(got, want) {
				t.Errorf("triangles = %v, want %v", got, want)
			}
		})
	}
}

func TestWriteIntegerPositions(t *testing.T) {
	g := Geometry{
		Positions:    []mgl64.Vec3{{1.9, -2.9, 300}},
		PositionType: meshbuf.Int16,
	}
	var buf bytes.Buffer
	if err := Write(&buf, ASCII, g); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.Contains(buf.String(), "property short x") || !strings.Contains(buf.String(), "1 -2 300\n") {
		t.Errorf("ASCII output:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "element face") {
		t.Error("face element written without indices")
	}
}

func TestWriteErrors(t *testing.T) {
	base := func() Geometry {
		return Geometry{
			Positions:    []mgl64.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}},
			PositionType: meshbuf.Float32,
			Indices:      []uint32{0, 1, 2},
		}
	}
	tests := []struct {
		name   string
		format Format
		mutate func(*Geometry)
		want   error
	}{
		{"half floats", ASCII, func(g *Geometry) { g.PositionType = meshbuf.Float16 }, ErrUnsupportedType},
		{"partial face", ASCII, func(g *Geometry) { g.Indices = g.Indices[:2] }, ErrIncompleteFace},
		{"index range", BinaryLittleEndian, func(g *Geometry) { g.Indices[2] = 3 }, ErrIndexRange},
		{"big endian", BinaryBigEndian, func(*Geometry) {}, ErrUnsupportedFormat},
		{"overflow", BinaryLittleEndian, func(g *Geometry) { g.PositionType = meshbuf.Int8; g.Positions[1][0] = 200 }, meshbuf.ErrUnrepresentable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := base()
			tt.mutate(&g)
			if err := Write(&bytes.Buffer{}, tt.format, g); !errors.Is(err, tt.want) {
				t.Errorf("Write() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.ply")
	if err := os.WriteFile(path, []byte(asciiSquare), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	m, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile() error = %v", err)
	}
	if m.VertexCount() != 4 {
		t.Errorf("VertexCount() = %d, want 4", m.VertexCount())
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.ply")); err == nil {
		t.Error("expected error for missing file")
	}
}
