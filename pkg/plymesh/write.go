package plymesh

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// ErrIncompleteFace is returned when an index list is not whole triangles.
var ErrIncompleteFace = errors.New("index count is not a multiple of 3")

// Geometry is the triangle mesh written by Write.
type Geometry struct {
	Positions    []mgl64.Vec3
	PositionType meshbuf.BaseType
	// Indices form triangles over Positions. Empty writes no face element.
	Indices  []uint32
	Comments []string
}

// Write encodes g as PLY in format f. Faces are written as
// "list uchar uint vertex_indices".
func Write(w io.Writer, f Format, g Geometry) error {
	if f != ASCII && f != BinaryLittleEndian {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	tn, err := typeName(g.PositionType)
	if err != nil {
		return err
	}
	if len(g.Indices)%3 != 0 {
		return fmt.Errorf("%w: %d", ErrIncompleteFace, len(g.Indices))
	}
	for i, idx := range g.Indices {
		if int(idx) >= len(g.Positions) {
			return fmt.Errorf("%w: index %d is %d, mesh has %d vertices", ErrIndexRange, i, idx, len(g.Positions))
		}
	}

	rows := make([][]float64, len(g.Positions))
	for i, p := range g.Positions {
		rows[i] = []float64{p[0], p[1], p[2]}
	}
	raw, descs, err := meshbuf.Encode(rows, []meshbuf.ColumnSpec{
		{Name: PositionAttribute, BaseType: g.PositionType, Column: 0, NumColumns: 3},
	})
	if err != nil {
		return fmt.Errorf("positions: %w", err)
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ply\nformat %s 1.0\n", f)
	for _, c := range g.Comments {
		fmt.Fprintf(bw, "comment %s\n", c)
	}
	fmt.Fprintf(bw, "element vertex %d\n", len(g.Positions))
	for _, axis := range []string{"x", "y", "z"} {
		fmt.Fprintf(bw, "property %s %s\n", tn, axis)
	}
	if len(g.Indices) > 0 {
		fmt.Fprintf(bw, "element face %d\n", len(g.Indices)/3)
		fmt.Fprintln(bw, "property list uchar uint vertex_indices")
	}
	fmt.Fprintln(bw, "end_header")

	if f == BinaryLittleEndian {
		bw.Write(raw.Bytes())
		face := make([]byte, 0, 13)
		for i := 0; i < len(g.Indices); i += 3 {
			face = append(face[:0], 3)
			for _, idx := range g.Indices[i : i+3] {
				face = binary.LittleEndian.AppendUint32(face, idx)
			}
			bw.Write(face)
		}
		return bw.Flush()
	}

	// ASCII prints the stored values so both formats read back identically
	seq, err := meshbuf.Decode(raw, descs[0], meshbuf.VertexConvention)
	if err != nil {
		return err
	}
	for v := range seq.Values() {
		fmt.Fprintf(bw, "%s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for i := 0; i < len(g.Indices); i += 3 {
		fmt.Fprintf(bw, "3 %d %d %d\n", g.Indices[i], g.Indices[i+1], g.Indices[i+2])
	}
	return bw.Flush()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
