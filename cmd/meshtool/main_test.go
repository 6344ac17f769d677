package main

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"

	"github.com/Faultbox/meshfit/internal/config"
	"github.com/Faultbox/meshfit/pkg/gltfmesh"
	"github.com/Faultbox/meshfit/pkg/meshbuf"
	"github.com/Faultbox/meshfit/pkg/plymesh"
)

// isolate keeps user config files out of the test.
func isolate(t *testing.T) string {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func quad() gltfmesh.ExportMesh {
	return gltfmesh.ExportMesh{
		Name:         "square",
		Positions:    []mgl64.Vec3{{0, 0, 0}, {2, 0, 0}, {0, 4, 0}, {2, 4, 0}},
		PositionType: meshbuf.Float32,
		Indices:      []uint32{0, 1, 2, 2, 1, 3},
	}
}

func writeQuad(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "square.glb")
	if err := writeMesh(path, quad()); err != nil {
		t.Fatalf("writeMesh() error = %v", err)
	}
	return path
}

func TestRunUsage(t *testing.T) {
	isolate(t)

	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{"no args", nil, true},
		{"help", []string{"help"}, false},
		{"unknown", []string{"explode"}, true},
		{"bbox without file", []string{"bbox"}, true},
		{"fit without file", []string{"fit", "-min", "0,0,0"}, true},
		{"bad flag", []string{"info", "-nope"}, true},
		{"config with args", []string{"config", "extra"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.args, &out)
			if tt.wantErr {
				if !errors.Is(err, errUsage) {
					t.Errorf("run(%v) error = %v, want errUsage", tt.args, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("run(%v) error = %v", tt.args, err)
			}
			if !strings.Contains(out.String(), "Commands:") {
				t.Errorf("help output missing command list:\n%s", out.String())
			}
		})
	}
}

func TestRunBBox(t *testing.T) {
	path := writeQuad(t, isolate(t))

	var out bytes.Buffer
	if err := run([]string{"bbox", path}, &out); err != nil {
		t.Fatalf("bbox error = %v", err)
	}
	for _, want := range []string{
		"Min:    (0, 0, 0)",
		"Max:    (2, 4, 0)",
		"Center: (1, 2, 0)",
		"Flat:   yes",
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("bbox output missing %q:\n%s", want, out.String())
		}
	}
}

func TestRunInfoAndDump(t *testing.T) {
	path := writeQuad(t, isolate(t))

	var info bytes.Buffer
	if err := run([]string{"info", path}, &info); err != nil {
		t.Fatalf("info error = %v", err)
	}
	if !strings.Contains(info.String(), "triangles: 2") {
		t.Errorf("info output missing triangle count:\n%s", info.String())
	}
	if !strings.Contains(info.String(), "POSITION") {
		t.Errorf("info output missing POSITION:\n%s", info.String())
	}

	var dump bytes.Buffer
	if err := run([]string{"dump", path}, &dump); err != nil {
		t.Fatalf("dump error = %v", err)
	}
	for _, want := range []string{"2 triangles", "(0, 1, 2)", "(2, 1, 3)", "[2 4 0]"} {
		if !strings.Contains(dump.String(), want) {
			t.Errorf("dump output missing %q:\n%s", want, dump.String())
		}
	}
}

func TestRunMissingAttribute(t *testing.T) {
	path := writeQuad(t, isolate(t))

	err := run([]string{"bbox", "-attr", "NORMAL", path}, &bytes.Buffer{})
	if !errors.Is(err, gltfmesh.ErrMissingAttribute) {
		t.Errorf("bbox -attr NORMAL error = %v, want ErrMissingAttribute", err)
	}
}

func TestRunFitWritesMesh(t *testing.T) {
	dir := isolate(t)
	path := writeQuad(t, dir)
	outPath := filepath.Join(dir, "fitted.glb")

	var out bytes.Buffer
	err := run([]string{"fit", "-min", "0,0,0", "-max", "4,8,0", "-wireframe", "-o", outPath, path}, &out)
	if err != nil {
		t.Fatalf("fit error = %v", err)
	}
	if !strings.Contains(out.String(), "Transform") {
		t.Errorf("fit output missing matrix:\n%s", out.String())
	}

	m, err := gltfmesh.Load(outPath)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", outPath, err)
	}
	if len(m.Primitives()) != 2 {
		t.Fatalf("got %d primitives, want mesh plus wireframe", len(m.Primitives()))
	}
	if m.Primitives()[1].Mode != gltf.PrimitiveLines {
		t.Errorf("second primitive mode = %d, want lines", m.Primitives()[1].Mode)
	}

	seq, err := m.Primitives()[0].Decode(gltfmesh.PositionAttribute)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	want := []mgl64.Vec3{{0, 0, 0}, {4, 0, 0}, {0, 8, 0}, {4, 8, 0}}
	i := 0
	for _, v := range seq.All() {
		for c := range 3 {
			if math.Abs(v[c]-want[i][c]) > 1e-5 {
				t.Errorf("vertex %d = %v, want %v", i, v, want[i])
				break
			}
		}
		i++
	}
	if i != len(want) {
		t.Errorf("got %d vertices, want %d", i, len(want))
	}
}

func TestRunFitTargetMesh(t *testing.T) {
	dir := isolate(t)
	src := writeQuad(t, dir)

	target := filepath.Join(dir, "target.glb")
	mesh := gltfmesh.ExportMesh{
		Name:         "cube",
		Positions:    []mgl64.Vec3{{-1, -1, -1}, {1, -1, -1}, {-1, 1, 1}},
		PositionType: meshbuf.Float32,
		Indices:      []uint32{0, 1, 2},
	}
	if err := writeMesh(target, mesh); err != nil {
		t.Fatalf("writeMesh() error = %v", err)
	}

	var out bytes.Buffer
	if err := run([]string{"fit", src, target}, &out); err != nil {
		t.Fatalf("fit error = %v", err)
	}
	if !strings.Contains(out.String(), "Max:    (1, 1, 1)") {
		t.Errorf("fit output missing target box:\n%s", out.String())
	}
}

func TestRunMissingFile(t *testing.T) {
	dir := isolate(t)
	err := run([]string{"bbox", filepath.Join(dir, "nope.glb")}, &bytes.Buffer{})
	if err == nil || errors.Is(err, errUsage) {
		t.Errorf("bbox on missing file error = %v, want load error", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "nope.glb")); statErr == nil {
		t.Error("bbox should not create the missing file")
	}
}

func TestRunPLY(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "square.PLY")
	if err := writeMesh(path, quad()); err != nil {
		t.Fatalf("writeMesh() error = %v", err)
	}
	if _, err := plymesh.ParseFile(path); err != nil {
		t.Fatalf("output is not PLY: %v", err)
	}

	var box bytes.Buffer
	if err := run([]string{"bbox", path}, &box); err != nil {
		t.Fatalf("bbox error = %v", err)
	}
	if !strings.Contains(box.String(), "Max:    (2, 4, 0)") {
		t.Errorf("bbox output:\n%s", box.String())
	}

	var info bytes.Buffer
	if err := run([]string{"info", path}, &info); err != nil {
		t.Fatalf("info error = %v", err)
	}
	for _, want := range []string{`"square"`, "POSITION", "triangles: 2"} {
		if !strings.Contains(info.String(), want) {
			t.Errorf("info output missing %q:\n%s", want, info.String())
		}
	}

	// fit a PLY onto a glTF target and write PLY back
	target := filepath.Join(dir, "target.glb")
	cube := quad()
	cube.Positions = []mgl64.Vec3{{-1, -1, 0}, {1, -1, 0}, {-1, 1, 0}, {1, 1, 0}}
	if err := writeMesh(target, cube); err != nil {
		t.Fatalf("writeMesh() error = %v", err)
	}
	outPath := filepath.Join(dir, "fitted.ply")
	if err := run([]string{"fit", "-wireframe", "-o", outPath, path, target}, &bytes.Buffer{}); err != nil {
		t.Fatalf("fit error = %v", err)
	}
	m, err := loadModel(outPath)
	if err != nil {
		t.Fatalf("loadModel(%s) error = %v", outPath, err)
	}
	box2, err := m.Bounds(gltfmesh.PositionAttribute)
	if err != nil {
		t.Fatalf("Bounds() error = %v", err)
	}
	if !box2.Min.ApproxEqualThreshold(mgl64.Vec3{-1, -1, 0}, 1e-6) || !box2.Max.ApproxEqualThreshold(mgl64.Vec3{1, 1, 0}, 1e-6) {
		t.Errorf("fitted box = %v, want [-1,-1,0]..[1,1,0]", box2)
	}
}

func TestRunPLYPointCloud(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "cloud.ply")
	src := "ply\nformat ascii 1.0\nelement vertex 2\nproperty float x\nproperty float y\nproperty float z\nend_header\n1 2 3\n-1 0 5\n"
	if err := os.WriteFile(path, []byte(src), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	var out bytes.Buffer
	if err := run([]string{"bbox", path}, &out); err != nil {
		t.Fatalf("bbox error = %v", err)
	}
	if !strings.Contains(out.String(), "Min:    (-1, 0, 3)") {
		t.Errorf("bbox output:\n%s", out.String())
	}

	// points are not triangle geometry
	err := run([]string{"fit", "-o", filepath.Join(dir, "out.glb"), path}, &bytes.Buffer{})
	if err == nil {
		t.Error("fit of a point cloud with -o should fail")
	}
}

func TestRunPLYParseError(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "broken.ply")
	if err := os.WriteFile(path, []byte("ply\nformat binary_big_endian 1.0\nelement vertex 0\nproperty float x\nend_header\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	err := run([]string{"bbox", path}, &bytes.Buffer{})
	if !errors.Is(err, plymesh.ErrUnsupportedFormat) {
		t.Errorf("bbox error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestRunFitIndexRange(t *testing.T) {
	dir := isolate(t)
	doc, err := gltfmesh.Build(quad())
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	// point the first index at vertex 65535 of 4
	acc := doc.Accessors[*doc.Meshes[0].Primitives[0].Indices]
	view := doc.BufferViews[*acc.BufferView]
	off := view.ByteOffset + acc.ByteOffset
	data := doc.Buffers[view.Buffer].Data
	data[off], data[off+1] = 0xFF, 0xFF

	path := filepath.Join(dir, "corrupt.glb")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := gltf.NewEncoder(f)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	f.Close()

	outPath := filepath.Join(dir, "out.glb")
	err = run([]string{"fit", "-min", "0,0,0", "-max", "1,1,1", "-o", outPath, path}, &bytes.Buffer{})
	if !errors.Is(err, gltfmesh.ErrIndexRange) {
		t.Errorf("fit error = %v, want ErrIndexRange", err)
	}
	if _, statErr := os.Stat(outPath); statErr == nil {
		t.Error("fit wrote output despite a bad index")
	}
}

func TestRunConfig(t *testing.T) {
	dir := isolate(t)

	var out bytes.Buffer
	if err := run([]string{"config", "-type", "int16", "-remainder", "short"}, &out); err != nil {
		t.Fatalf("config error = %v", err)
	}
	for _, want := range []string{"base_type: int16", "remainder: short", "position_attribute: POSITION"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("config output missing %q:\n%s", want, out.String())
		}
	}

	path := filepath.Join(dir, "saved", "meshtool.yaml")
	if err := run([]string{"config", "-type", "uint8", "-to", path}, &bytes.Buffer{}); err != nil {
		t.Fatalf("config -to error = %v", err)
	}
	cfg, err := config.Load(&config.Flags{ConfigPath: path})
	if err != nil {
		t.Fatalf("Load(%s) error = %v", path, err)
	}
	if cfg.Export.BaseType != meshbuf.UInt8 {
		t.Errorf("saved base type = %s, want uint8", cfg.Export.BaseType)
	}

	if err := run([]string{"config", "-save", "-wireframe"}, &bytes.Buffer{}); err != nil {
		t.Fatalf("config -save error = %v", err)
	}
	cfg, err = config.Load(&config.Flags{ConfigPath: filepath.Join(config.ConfigDir(), "config.yaml")})
	if err != nil {
		t.Fatalf("Load(user config) error = %v", err)
	}
	if !cfg.Export.Wireframe {
		t.Error("saved user config lost wireframe")
	}
}
