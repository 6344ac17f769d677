// Package bounds computes axis-aligned bounding boxes over point sources and
// best-fit affine transforms between boxes.
package bounds

import (
	"errors"
	"fmt"
	"iter"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// Bounding box errors.
var (
	ErrEmptyInput     = errors.New("bounding box of empty point set")
	ErrTooFewComps    = errors.New("position attribute needs at least 2 components")
	ErrSingularInput  = errors.New("ill-conditioned affine fit")
	ErrInvalidExtents = errors.New("box min exceeds max")
)

// Box is an axis-aligned bounding box.
type Box struct {
	Min mgl64.Vec3
	Max mgl64.Vec3
}

// NewBox returns the box spanning lo and hi. It fails if lo exceeds hi on
// any axis.
func NewBox(lo, hi mgl64.Vec3) (Box, error) {
	for i := range 3 {
		if lo[i] > hi[i] {
			return Box{}, fmt.Errorf("%w: axis %d: %g > %g", ErrInvalidExtents, i, lo[i], hi[i])
		}
	}
	return Box{Min: lo, Max: hi}, nil
}

// Compute returns the smallest box enclosing every point of points.
// The first point seeds both corners; the rest are folded per component.
func Compute(points iter.Seq[mgl64.Vec3]) (Box, error) {
	var b Box
	first := true
	for p := range points {
		if first {
			b.Min, b.Max = p, p
			first = false
			continue
		}
		for i := range 3 {
			if p[i] < b.Min[i] {
				b.Min[i] = p[i]
			}
			if p[i] > b.Max[i] {
				b.Max[i] = p[i]
			}
		}
	}
	if first {
		return Box{}, ErrEmptyInput
	}
	return b, nil
}

// Points adapts a decoded position attribute to a point source.
// Two-component tuples get z = 0; extra components are ignored.
func Points(seq *meshbuf.Sequence) (iter.Seq[mgl64.Vec3], error) {
	if seq.Components() < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewComps, seq.Components())
	}
	return func(yield func(mgl64.Vec3) bool) {
		for v := range seq.Values() {
			p := mgl64.Vec3{v[0], v[1], 0}
			if len(v) > 2 {
				p[2] = v[2]
			}
			if !yield(p) {
				return
			}
		}
	}, nil
}

// FromSequence computes the box of a decoded position attribute.
func FromSequence(seq *meshbuf.Sequence) (Box, error) {
	pts, err := Points(seq)
	if err != nil {
		return Box{}, err
	}
	return Compute(pts)
}

// Center returns (Min+Max)/2.
func (b Box) Center() mgl64.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Dimensions returns the extent along each axis.
func (b Box) Dimensions() (dx, dy, dz float64) {
	d := b.Max.Sub(b.Min)
	return d[0], d[1], d[2]
}

// Corners returns the eight corners with x varying slowest and z fastest.
// Fit relies on this order to pair corners of two boxes.
func (b Box) Corners() [8]mgl64.Vec3 {
	var out [8]mgl64.Vec3
	xs := [2]float64{b.Min[0], b.Max[0]}
	ys := [2]float64{b.Min[1], b.Max[1]}
	zs := [2]float64{b.Min[2], b.Max[2]}
	i := 0
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				out[i] = mgl64.Vec3{x, y, z}
				i++
			}
		}
	}
	return out
}

// CornerPoints yields Corners as a point source.
func (b Box) CornerPoints() iter.Seq[mgl64.Vec3] {
	return func(yield func(mgl64.Vec3) bool) {
		for _, c := range b.Corners() {
			if !yield(c) {
				return
			}
		}
	}
}

// IsFlat reports whether every corner lies in the z = 0 plane.
func (b Box) IsFlat() bool {
	return b.Min[2] == 0 && b.Max[2] == 0
}

// Wireframe returns 24 line endpoints (12 edges) outlining the box.
func (b Box) Wireframe() []mgl64.Vec3 {
	lo, hi := b.Min, b.Max
	v := func(x, y, z float64) mgl64.Vec3 { return mgl64.Vec3{x, y, z} }
	return []mgl64.Vec3{
		// bottom face
		v(lo[0], lo[1], lo[2]), v(hi[0], lo[1], lo[2]),
		v(hi[0], lo[1], lo[2]), v(hi[0], lo[1], hi[2]),
		v(hi[0], lo[1], hi[2]), v(lo[0], lo[1], hi[2]),
		v(lo[0], lo[1], hi[2]), v(lo[0], lo[1], lo[2]),
		// top face
		v(lo[0], hi[1], lo[2]), v(hi[0], hi[1], lo[2]),
		v(hi[0], hi[1], lo[2]), v(hi[0], hi[1], hi[2]),
		v(hi[0], hi[1], hi[2]), v(lo[0], hi[1], hi[2]),
		v(lo[0], hi[1], hi[2]), v(lo[0], hi[1], lo[2]),
		// verticals
		v(lo[0], lo[1], lo[2]), v(lo[0], hi[1], lo[2]),
		v(hi[0], lo[1], lo[2]), v(hi[0], hi[1], lo[2]),
		v(hi[0], lo[1], hi[2]), v(hi[0], hi[1], hi[2]),
		v(lo[0], lo[1], hi[2]), v(lo[0], hi[1], hi[2]),
	}
}

// WireframeVertexCount is the number of vertices returned by Wireframe.
const WireframeVertexCount = 24

// String formats the box as "[min .. max]".
func (b Box) String() string {
	return fmt.Sprintf("[(%g, %g, %g) .. (%g, %g, %g)]",
		b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
}
