package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/qmuntal/gltf"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/Faultbox/meshfit/internal/config"
	"github.com/Faultbox/meshfit/internal/logger"
	"github.com/Faultbox/meshfit/pkg/bounds"
	"github.com/Faultbox/meshfit/pkg/gltfmesh"
	"github.com/Faultbox/meshfit/pkg/meshbuf"
	"github.com/Faultbox/meshfit/pkg/plymesh"
)

func isPLY(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".ply")
}

// loadModel reads a glTF or, by extension, a PLY file.
func loadModel(path string) (*gltfmesh.Model, error) {
	logger.Debug("loading mesh", zap.String("path", path))
	var (
		m   *gltfmesh.Model
		err error
	)
	if isPLY(path) {
		m, err = loadPLY(path)
	} else {
		m, err = gltfmesh.Load(path)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("mesh loaded", zap.String("path", path), zap.Int("primitives", len(m.Primitives())))
	return m, nil
}

// loadPLY wraps a PLY file as a single primitive named after the file.
func loadPLY(path string) (*gltfmesh.Model, error) {
	ply, err := plymesh.ParseFile(path)
	if err != nil {
		return nil, err
	}
	prim := gltfmesh.Primitive{
		Mesh:       strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Mode:       gltf.PrimitiveTriangles,
		Attributes: ply.Attributes,
		Indices:    ply.Indices,
	}
	if ply.Indices == nil {
		prim.Mode = gltf.PrimitivePoints
	}
	return gltfmesh.NewModel(prim), nil
}

func cmdInfo(args []string, out io.Writer) error {
	cfg, _, fs, err := setup("info", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool info <mesh.glb>")
		return errUsage
	}

	m, err := loadModel(fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "File:       %s\n", fs.Arg(0))
	fmt.Fprintf(out, "Primitives: %d\n", len(m.Primitives()))
	for _, p := range m.Primitives() {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Mesh %d %q primitive %d (mode %d)\n", p.MeshIndex, p.Mesh, p.Index, p.Mode)

		for _, a := range p.AttributeList() {
			printDescriptor(out, a.Descriptor)
		}
		if p.Indices == nil {
			continue
		}

		tris, err := p.Triangles(cfg.Remainder())
		if err != nil {
			return err
		}
		complete, partial := 0, 0
		for tri := range tris {
			if tri.Complete() && len(tri.Items) == 3 {
				complete++
			} else {
				partial++
			}
		}
		fmt.Fprintf(out, "  triangles: %d", complete)
		if partial > 0 {
			fmt.Fprintf(out, " (+%d partial)", partial)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func printDescriptor(out io.Writer, d meshbuf.AttributeDescriptor) {
	conv := meshbuf.ConventionFor(d.Kind)
	fmt.Fprintf(out, "  %-6s %-12s %-8s x%d  count=%-6d offset=%-6d stride=%d\n",
		d.Kind, d.Name, d.BaseType, d.EffectiveComponents(conv), d.Count, d.ByteOffset, d.EffectiveStride(conv))
}

func cmdDump(args []string, out io.Writer) error {
	_, _, fs, err := setup("dump", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool dump <mesh.glb>")
		return errUsage
	}

	m, err := loadModel(fs.Arg(0))
	if err != nil {
		return err
	}
	if len(m.Primitives()) == 0 {
		return meshbuf.Dump(out, nil)
	}
	for _, p := range m.Primitives() {
		fmt.Fprintf(out, "# mesh %d %q primitive %d\n", p.MeshIndex, p.Mesh, p.Index)
		if err := meshbuf.Dump(out, p.AttributeList()); err != nil {
			return err
		}
	}
	return nil
}

func cmdBBox(args []string, out io.Writer) error {
	cfg, _, fs, err := setup("bbox", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool bbox <mesh.glb>")
		return errUsage
	}

	m, err := loadModel(fs.Arg(0))
	if err != nil {
		return err
	}
	box, err := m.Bounds(cfg.Decode.PositionAttribute)
	if err != nil {
		return err
	}
	printBox(out, box)
	return nil
}

func printBox(out io.Writer, box bounds.Box) {
	c := box.Center()
	dx, dy, dz := box.Dimensions()
	fmt.Fprintf(out, "Min:    %s\n", fmtVec(box.Min))
	fmt.Fprintf(out, "Max:    %s\n", fmtVec(box.Max))
	fmt.Fprintf(out, "Center: %s\n", fmtVec(c))
	fmt.Fprintf(out, "Size:   %g x %g x %g\n", dx, dy, dz)
	if box.IsFlat() {
		fmt.Fprintln(out, "Flat:   yes (z = 0)")
	}
}

func fmtVec(v mgl64.Vec3) string {
	return fmt.Sprintf("(%g, %g, %g)", v[0], v[1], v[2])
}

func cmdFit(args []string, out io.Writer) error {
	var output string
	cfg, f, fs, err := setup("fit", args, func(fs *flag.FlagSet) {
		fs.StringVar(&output, "o", "", "Write the transformed mesh to this .glb or .ply file")
	})
	if err != nil {
		return err
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool fit <mesh.glb> [target.glb]")
		return errUsage
	}
	log := logger.Named("fit")
	if fs.NArg() >= 2 && f.HasTarget() {
		log.Warn("target mesh given, ignoring -min/-max")
	}

	m, err := loadModel(fs.Arg(0))
	if err != nil {
		return err
	}
	from, err := m.Bounds(cfg.Decode.PositionAttribute)
	if err != nil {
		return err
	}

	var to bounds.Box
	if fs.NArg() >= 2 {
		target, err := loadModel(fs.Arg(1))
		if err != nil {
			return err
		}
		if to, err = target.Bounds(cfg.Decode.PositionAttribute); err != nil {
			return err
		}
	} else {
		if to, err = bounds.NewBox(mgl64.Vec3(cfg.Fit.TargetMin), mgl64.Vec3(cfg.Fit.TargetMax)); err != nil {
			return err
		}
	}
	log.Debug("fitting boxes", zap.Stringer("from", from), zap.Stringer("to", to))

	tr, err := bounds.Fit(from, to)
	var singular *bounds.SingularInputError
	switch {
	case errors.As(err, &singular):
		log.Warn("ill-conditioned fit, transform is degraded",
			zap.Int("rank", singular.Rank), zap.Ints("axes", singular.Axes))
	case err != nil:
		return err
	}
	if from.IsFlat() && to.IsFlat() {
		log.Info("both boxes are flat, scaling z with the mean xy ratio")
	}

	fmt.Fprintln(out, "From:")
	printBox(out, from)
	fmt.Fprintln(out, "To:")
	printBox(out, to)
	fmt.Fprintln(out, "Transform (column vectors):")
	mat := tr.Matrix()
	for r := range 4 {
		row := mat.Row(r)
		fmt.Fprintf(out, "  [% 12.6g % 12.6g % 12.6g % 12.6g]\n", row[0], row[1], row[2], row[3])
	}

	if output == "" {
		return nil
	}
	mesh, err := transformedMesh(m, tr, cfg)
	if err != nil {
		return err
	}
	if cfg.Export.Wireframe {
		mesh.Lines = to.Wireframe()
	}
	if err := writeMesh(output, mesh); err != nil {
		return err
	}
	log.Info("wrote transformed mesh", zap.String("path", output),
		zap.Int("vertices", len(mesh.Positions)), zap.Int("triangles", len(mesh.Indices)/3))
	return nil
}

// transformedMesh merges every triangle primitive of m into one mesh and maps
// its positions through tr. Partial triangles are dropped.
func transformedMesh(m *gltfmesh.Model, tr *bounds.Transform, cfg *config.Config) (gltfmesh.ExportMesh, error) {
	log := logger.Named("fit")
	mesh := gltfmesh.ExportMesh{Name: "fitted", PositionType: cfg.Export.BaseType}

	for _, p := range m.Primitives() {
		if p.Mode != gltf.PrimitiveTriangles {
			log.Warn("skipping non-triangle primitive", zap.Int("mesh", p.MeshIndex), zap.Int("primitive", p.Index))
			continue
		}
		seq, err := p.Decode(cfg.Decode.PositionAttribute)
		if err != nil {
			return mesh, err
		}
		pts, err := bounds.Points(seq)
		if err != nil {
			return mesh, err
		}

		vertices := seq.Len()
		base := uint32(len(mesh.Positions))
		for q := range tr.ApplyAll(pts) {
			mesh.Positions = append(mesh.Positions, q)
		}

		if p.Indices == nil {
			for i := 0; i+2 < seq.Len(); i += 3 {
				mesh.Indices = append(mesh.Indices, base+uint32(i), base+uint32(i+1), base+uint32(i+2))
			}
			continue
		}
		tris, err := p.Triangles(cfg.Remainder())
		if err != nil {
			return mesh, err
		}
		for tri := range tris {
			if !tri.Complete() || len(tri.Items) != 3 {
				log.Debug("dropping partial triangle", zap.Stringer("triangle", tri))
				continue
			}
			for _, idx := range tri.Items {
				if idx < 0 || idx >= float64(vertices) {
					return mesh, fmt.Errorf("mesh %d primitive %d: %w: %g of %d vertices",
						p.MeshIndex, p.Index, gltfmesh.ErrIndexRange, idx, vertices)
				}
				mesh.Indices = append(mesh.Indices, base+uint32(idx))
			}
		}
	}
	if len(mesh.Positions) == 0 {
		return mesh, errors.New("no triangle geometry to write")
	}
	return mesh, nil
}

// writeMesh writes binary PLY for .ply paths and GLB otherwise.
func writeMesh(path string, mesh gltfmesh.ExportMesh) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if isPLY(path) {
		if len(mesh.Lines) > 0 {
			logger.Warn("PLY output has no line primitives, wireframe dropped", zap.String("path", path))
		}
		err = plymesh.Write(f, plymesh.BinaryLittleEndian, plymesh.Geometry{
			Positions:    mesh.Positions,
			PositionType: mesh.PositionType,
			Indices:      mesh.Indices,
			Comments:     []string{"meshtool " + mesh.Name},
		})
	} else {
		err = gltfmesh.Write(f, mesh)
	}
	if err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func cmdConfig(args []string, out io.Writer) error {
	var save bool
	var to string
	cfg, _, fs, err := setup("config", args, func(fs *flag.FlagSet) {
		fs.BoolVar(&save, "save", false, "Save to the user config directory")
		fs.StringVar(&to, "to", "", "Save to this file instead")
	})
	if err != nil {
		return err
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: meshtool config [-save] [-to file] [options]")
		return errUsage
	}

	switch {
	case to != "":
		if err := cfg.SaveTo(to); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		logger.Sugar.Infof("saved config to %s", to)
	case save:
		if err := cfg.Save(); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}
		logger.Sugar.Infof("saved config to %s", filepath.Join(config.ConfigDir(), "config.yaml"))
	default:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return nil
}
