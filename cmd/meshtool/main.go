// meshtool inspects glTF and PLY meshes, computes their bounding boxes and fits one
// mesh's extent onto another box.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/Faultbox/meshfit/internal/config"
	"github.com/Faultbox/meshfit/internal/logger"
)

// errUsage marks errors already explained by a usage line.
var errUsage = errors.New("usage")

func main() {
	err := run(os.Args[1:], os.Stdout)
	logger.Sync()
	if err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	if len(args) < 1 {
		printUsage(out)
		return errUsage
	}

	command := args[0]
	args = args[1:]

	var err error
	switch command {
	case "info":
		err = cmdInfo(args, out)
	case "dump":
		err = cmdDump(args, out)
	case "bbox":
		err = cmdBBox(args, out)
	case "fit":
		err = cmdFit(args, out)
	case "config":
		err = cmdConfig(args, out)
	case "help", "-h", "--help":
		printUsage(out)
		return nil
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage(os.Stderr)
		return errUsage
	}
	if err != nil && !errors.Is(err, errUsage) {
		logger.Error("command failed", zap.String("command", command), zap.Error(err))
	}
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `meshtool - glTF/PLY mesh bounds and fitting utility

Usage:
  meshtool <command> [options]

Commands:
  info <mesh.glb>                    List primitives and attribute layouts
  dump <mesh.glb>                    Print decoded vertices and triangles
  bbox <mesh.glb>                    Show the axis-aligned bounding box
  fit <mesh.glb> [target.glb]        Fit the mesh box onto a target box
  config                             Print or save the effective config

Meshes ending in .ply are read and written as PLY, anything else as glTF.

Common options:
  -config <file>    Config file (default ./meshtool.yaml)
  -debug            Debug logging
  -log <file>       Also log to a rotating file
  -attr <name>      Position attribute (default POSITION)
  -remainder <p>    Partial triangles: pad or short

Fit options:
  -min x,y,z -max x,y,z   Target box when no target mesh is given
  -o <out.glb|out.ply>    Write the transformed mesh
  -type <basetype>        Position type for -o (default float32)
  -wireframe              Add the target box outline to -o (glTF only)

Config options:
  -save                   Write to the user config directory
  -to <file>              Write to this file

Examples:
  meshtool info tetrahedron.glb
  meshtool bbox -attr POSITION square.glb
  meshtool fit -min 0,0,0 -max 10,10,10 -o fitted.glb tetrahedron.glb
  meshtool fit input.glb reference.ply
  meshtool config -type float64 -to meshtool.yaml`)
}

// setup parses a subcommand's flags, loads config and starts logging.
func setup(name string, args []string, extra func(*flag.FlagSet)) (*config.Config, *config.Flags, *flag.FlagSet, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := config.RegisterFlags(fs)
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, nil, errUsage
	}

	cfg, err := config.Load(f)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return nil, nil, nil, fmt.Errorf("starting logger: %w", err)
	}
	return cfg, f, fs, nil
}
