// Package plymesh reads and writes Stanford PLY polygon files.
//
// Vertex properties are exposed as meshbuf attributes. For binary
// little-endian files without list properties on the vertex element the
// attributes view the file bytes directly; every other layout is decoded
// once and repacked as float64.
package plymesh

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// PLY format errors.
var (
	ErrNotPLY            = errors.New("not a PLY file: expected 'ply' magic")
	ErrHeader            = errors.New("malformed PLY header")
	ErrUnsupportedFormat = errors.New("unsupported PLY format")
	ErrUnknownType       = errors.New("unknown PLY property type")
	ErrTruncated         = errors.New("truncated PLY data")
	ErrSyntax            = errors.New("invalid PLY value")
	ErrNoVertices        = errors.New("PLY file has no vertex element")
	ErrMissingProperty   = errors.New("PLY element lacks required property")
	ErrInvalidIndexType  = errors.New("PLY face indices must be integers")
	ErrIndexRange        = errors.New("PLY face index out of range")
	ErrUnsupportedType   = errors.New("base type has no PLY equivalent")
)

// Format is the encoding of the data section.
type Format uint8

const (
	ASCII Format = iota
	BinaryLittleEndian
	BinaryBigEndian
)

var formatNames = [...]string{
	ASCII:              "ascii",
	BinaryLittleEndian: "binary_little_endian",
	BinaryBigEndian:    "binary_big_endian",
}

// String returns the header keyword for f.
func (f Format) String() string {
	if int(f) < len(formatNames) {
		return formatNames[f]
	}
	return fmt.Sprintf("Unknown(%d)", uint8(f))
}

func parseFormat(s string) (Format, error) {
	for i, name := range formatNames {
		if name == s {
			return Format(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// typeNames maps both the classic and the sized PLY type names.
var typeNames = map[string]meshbuf.BaseType{
	"char": meshbuf.Int8, "int8": meshbuf.Int8,
	"uchar": meshbuf.UInt8, "uint8": meshbuf.UInt8,
	"short": meshbuf.Int16, "int16": meshbuf.Int16,
	"ushort": meshbuf.UInt16, "uint16": meshbuf.UInt16,
	"int": meshbuf.Int32, "int32": meshbuf.Int32,
	"uint": meshbuf.UInt32, "uint32": meshbuf.UInt32,
	"float": meshbuf.Float32, "float32": meshbuf.Float32,
	"double": meshbuf.Float64, "float64": meshbuf.Float64,
}

func parseType(s string) (meshbuf.BaseType, error) {
	bt, ok := typeNames[s]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return bt, nil
}

// typeName returns the classic PLY name for bt.
func typeName(bt meshbuf.BaseType) (string, error) {
	switch bt {
	case meshbuf.Int8:
		return "char", nil
	case meshbuf.UInt8:
		return "uchar", nil
	case meshbuf.Int16:
		return "short", nil
	case meshbuf.UInt16:
		return "ushort", nil
	case meshbuf.Int32:
		return "int", nil
	case meshbuf.UInt32:
		return "uint", nil
	case meshbuf.Float32:
		return "float", nil
	case meshbuf.Float64:
		return "double", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, bt)
	}
}

// Property is one column of an element. List properties store a count of
// CountType followed by that many values of Type.
type Property struct {
	Name      string
	Type      meshbuf.BaseType
	List      bool
	CountType meshbuf.BaseType
}

// Element is a named block of Count rows.
type Element struct {
	Name       string
	Count      int
	Properties []Property
}

// Property returns the index of the named property, or -1.
func (e Element) Property(name string) int {
	for i, p := range e.Properties {
		if p.Name == name {
			return i
		}
	}
	return -1
}

// HasLists reports whether any property is a list, which makes rows
// variable length.
func (e Element) HasLists() bool {
	for _, p := range e.Properties {
		if p.List {
			return true
		}
	}
	return false
}

// rowSize returns the byte size of a fixed-length binary row.
func (e Element) rowSize() int {
	n := 0
	for _, p := range e.Properties {
		n += p.Type.Width()
	}
	return n
}

// Header is the parsed PLY header.
type Header struct {
	Format   Format
	Version  string
	Comments []string
	Elements []Element
}

// Element returns the named element.
func (h Header) Element(name string) (Element, bool) {
	for _, e := range h.Elements {
		if e.Name == name {
			return e, true
		}
	}
	return Element{}, false
}

// parseHeader parses the header and returns the offset of the data section.
func parseHeader(data []byte) (Header, int, error) {
	var h Header
	off := 0
	nextLine := func() (string, bool) {
		i := bytes.IndexByte(data[off:], '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimRight(string(data[off:off+i]), "\r")
		off += i + 1
		return line, true
	}

	if magic, ok := nextLine(); !ok || strings.TrimSpace(magic) != "ply" {
		return h, 0, ErrNotPLY
	}

	sawFormat := false
	for lineNo := 2; ; lineNo++ {
		line, ok := nextLine()
		if !ok {
			return h, 0, fmt.Errorf("%w: missing end_header", ErrHeader)
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "format":
			if len(fields) != 3 {
				return h, 0, fmt.Errorf("%w: line %d: format needs a name and a version", ErrHeader, lineNo)
			}
			f, err := parseFormat(fields[1])
			if err != nil {
				return h, 0, err
			}
			h.Format, h.Version = f, fields[2]
			sawFormat = true
		case "comment", "obj_info":
			h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
		case "element":
			if len(fields) != 3 {
				return h, 0, fmt.Errorf("%w: line %d: element needs a name and a count", ErrHeader, lineNo)
			}
			n, err := strconv.Atoi(fields[2])
			if err != nil || n < 0 {
				return h, 0, fmt.Errorf("%w: line %d: bad element count %q", ErrHeader, lineNo, fields[2])
			}
			h.Elements = append(h.Elements, Element{Name: fields[1], Count: n})
		case "property":
			if len(h.Elements) == 0 {
				return h, 0, fmt.Errorf("%w: line %d: property before any element", ErrHeader, lineNo)
			}
			p, err := parseProperty(fields[1:])
			if err != nil {
				return h, 0, fmt.Errorf("line %d: %w", lineNo, err)
			}
			el := &h.Elements[len(h.Elements)-1]
			el.Properties = append(el.Properties, p)
		case "end_header":
			if !sawFormat {
				return h, 0, fmt.Errorf("%w: missing format line", ErrHeader)
			}
			return h, off, nil
		default:
			return h, 0, fmt.Errorf("%w: line %d: unknown keyword %q", ErrHeader, lineNo, fields[0])
		}
	}
}

func parseProperty(fields []string) (Property, error) {
	if len(fields) == 4 && fields[0] == "list" {
		ct, err := parseType(fields[1])
		if err != nil {
			return Property{}, err
		}
		if ct.IsFloat() {
			return Property{}, fmt.Errorf("%w: list count type %s", ErrHeader, ct)
		}
		it, err := parseType(fields[2])
		if err != nil {
			return Property{}, err
		}
		return Property{Name: fields[3], Type: it, List: true, CountType: ct}, nil
	}
	if len(fields) != 2 {
		return Property{}, fmt.Errorf("%w: property %q", ErrHeader, strings.Join(fields, " "))
	}
	t, err := parseType(fields[0])
	if err != nil {
		return Property{}, err
	}
	return Property{Name: fields[1], Type: t}, nil
}
