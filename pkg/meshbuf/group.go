package meshbuf

import (
	"fmt"
	"iter"
	"strings"
)

// Remainder selects how GroupBy handles a final incomplete group.
type Remainder uint8

const (
	// PadRemainder fills the last group up to n with missing markers.
	PadRemainder Remainder = iota
	// ShortRemainder yields the last group with fewer than n items.
	ShortRemainder
)

// String returns "pad" or "short".
func (r Remainder) String() string {
	switch r {
	case PadRemainder:
		return "pad"
	case ShortRemainder:
		return "short"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(r))
	}
}

// ParseRemainder converts "pad" or "short" to a Remainder.
func ParseRemainder(s string) (Remainder, error) {
	switch s {
	case "pad", "":
		return PadRemainder, nil
	case "short":
		return ShortRemainder, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownRemainder, s)
	}
}

// Group is one chunk produced by GroupBy. Items[Len:] are missing markers
// holding the zero value.
type Group[T any] struct {
	Items []T
	Len   int
}

// Missing reports whether position i is padding.
func (g Group[T]) Missing(i int) bool {
	return i >= g.Len
}

// Complete reports whether the group has no padding.
func (g Group[T]) Complete() bool {
	return g.Len == len(g.Items)
}

// String formats the group with "PAD" for missing items.
func (g Group[T]) String() string {
	var sb strings.Builder
	sb.WriteByte('(')
	for i, v := range g.Items {
		if i > 0 {
			sb.WriteString(", ")
		}
		if g.Missing(i) {
			sb.WriteString("PAD")
		} else {
			fmt.Fprint(&sb, v)
		}
	}
	sb.WriteByte(')')
	return sb.String()
}

// GroupBy chunks seq into groups of n. It fails with ErrInvalidGroupSize if
// n < 1 and ErrUnknownRemainder for an unknown policy.
func GroupBy[T any](seq iter.Seq[T], n int, rem Remainder) (iter.Seq[Group[T]], error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidGroupSize, n)
	}
	if rem != PadRemainder && rem != ShortRemainder {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRemainder, uint8(rem))
	}
	return groupBy(seq, n, rem), nil
}

func groupBy[T any](seq iter.Seq[T], n int, rem Remainder) iter.Seq[Group[T]] {
	return func(yield func(Group[T]) bool) {
		items := make([]T, 0, n)
		for v := range seq {
			items = append(items, v)
			if len(items) == n {
				if !yield(Group[T]{Items: items, Len: n}) {
					return
				}
				items = make([]T, 0, n)
			}
		}
		if len(items) == 0 {
			return
		}
		g := Group[T]{Items: items, Len: len(items)}
		if rem == PadRemainder {
			var zero T
			for len(g.Items) < n {
				g.Items = append(g.Items, zero)
			}
		}
		yield(g)
	}
}

// Triangles groups a flat index sequence into triples, padding a trailing
// partial triangle.
func Triangles(indices iter.Seq[float64]) iter.Seq[Group[float64]] {
	return groupBy(indices, 3, PadRemainder)
}
