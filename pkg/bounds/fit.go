package bounds

import (
	"fmt"
	"iter"
	"math"

	"github.com/go-gl/mathgl/mgl64"
	"gonum.org/v1/gonum/mat"
)

// SingularInputError reports a rank-deficient corner fit. The transform
// returned alongside it is the minimum-norm least-squares solution and is
// still usable, but it cannot recover the collapsed axes.
type SingularInputError struct {
	Rank int
	// Axes lists the axes on which the source box has zero extent.
	Axes []int
}

func (e *SingularInputError) Error() string {
	return fmt.Sprintf("affine fit has rank %d of 4 (degenerate axes %v)", e.Rank, e.Axes)
}

// Unwrap returns ErrSingularInput.
func (e *SingularInputError) Unwrap() error { return ErrSingularInput }

// Transform is an affine map R^3 -> R^3 computed by Fit.
type Transform struct {
	m    mgl64.Mat4
	rank int
}

// Fit returns the affine transform that maps each corner of from onto the
// matching corner of to in the least-squares sense.
//
// When both boxes lie in the z = 0 plane the z axis is given synthetic
// extents of [-1, 1] and [-ratio, ratio], where ratio is the mean of the x and
// y scale factors, so off-plane points are scaled uniformly instead of being
// flattened.
//
// If the source corners do not span 3D space Fit returns the best available
// transform together with a *SingularInputError. Callers decide whether a
// degraded transform is acceptable.
func Fit(from, to Box) (*Transform, error) {
	src := from.Corners()
	dst := to.Corners()

	flat := from.IsFlat() && to.IsFlat()
	if flat {
		ratio := flatRatio(from, to)
		for i := range src {
			// even rows are the min-z corners
			z := 1.0
			if i%2 == 0 {
				z = -1
			}
			src[i][2] = z
			dst[i][2] = z * ratio
		}
	}

	x := mat.NewDense(len(src), 4, nil)
	y := mat.NewDense(len(dst), 4, nil)
	for i := range src {
		x.SetRow(i, pad(src[i]))
		y.SetRow(i, pad(dst[i]))
	}

	var svd mat.SVD
	if !svd.Factorize(x, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD did not converge", ErrSingularInput)
	}
	// same cutoff as LAPACK gelsd with rcond = eps * max(M, N)
	rank := svd.Rank(eps * float64(len(src)))

	var a mat.Dense
	svd.SolveTo(&a, y, rank)

	// a maps row vectors, so its row-major layout is the column-major
	// matrix for column vectors.
	t := &Transform{rank: rank}
	for r := range 4 {
		for c := range 4 {
			t.m[r*4+c] = a.At(r, c)
		}
	}

	if rank < 4 {
		return t, &SingularInputError{Rank: rank, Axes: degenerateAxes(from, flat)}
	}
	return t, nil
}

const eps = 0x1p-52

func pad(v mgl64.Vec3) []float64 {
	return []float64{v[0], v[1], v[2], 1}
}

// flatRatio averages the finite x and y scale factors between two boxes.
func flatRatio(from, to Box) float64 {
	fx, fy, _ := from.Dimensions()
	tx, ty, _ := to.Dimensions()
	var sum float64
	var n int
	for _, r := range []float64{tx / fx, ty / fy} {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			sum += r
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return sum / float64(n)
}

// degenerateAxes lists zero-extent axes of b. z is skipped when the flat
// correction replaced it.
func degenerateAxes(b Box, flat bool) []int {
	var axes []int
	d := b.Max.Sub(b.Min)
	n := 3
	if flat {
		n = 2
	}
	for i := range n {
		if d[i] == 0 {
			axes = append(axes, i)
		}
	}
	return axes
}

// Apply maps p through the transform. The homogeneous coordinate is dropped
// without division.
func (t *Transform) Apply(p mgl64.Vec3) mgl64.Vec3 {
	return t.m.Mul4x1(p.Vec4(1)).Vec3()
}

// ApplyAll lazily maps every point of points.
func (t *Transform) ApplyAll(points iter.Seq[mgl64.Vec3]) iter.Seq[mgl64.Vec3] {
	return func(yield func(mgl64.Vec3) bool) {
		for p := range points {
			if !yield(t.Apply(p)) {
				return
			}
		}
	}
}

// Matrix returns the 4x4 column-major matrix acting on column vectors.
func (t *Transform) Matrix() mgl64.Mat4 {
	return t.m
}

// Rank returns the rank of the source corner system (4 for a proper fit).
func (t *Transform) Rank() int {
	return t.rank
}
