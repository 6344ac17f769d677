package meshbuf

import (
	"fmt"
	"io"
)

// Dump writes a human-readable listing of attrs to w. Vertex attributes print
// one tuple per line; index attributes print the triangle count followed by
// each triangle.
func Dump(w io.Writer, attrs []Attribute) error {
	if len(attrs) == 0 {
		_, err := fmt.Fprintln(w, "No geometry")
		return err
	}
	for _, a := range attrs {
		d := a.Descriptor
		if _, err := fmt.Fprintf(w, "%s %q with base type %s\n", d.Kind, d.Name, d.BaseType); err != nil {
			return err
		}
		seq, err := a.Decode()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", d.Name, err)
		}
		switch d.Kind {
		case IndexAttribute:
			n := seq.Len() * seq.Components()
			if _, err := fmt.Fprintf(w, "%d triangles\n", n/3); err != nil {
				return err
			}
			for tri := range Triangles(seq.Scalars()) {
				if _, err := fmt.Fprintln(w, tri); err != nil {
					return err
				}
			}
		default:
			for v := range seq.Values() {
				if _, err := fmt.Fprintln(w, v); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
