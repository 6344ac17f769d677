package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// Flags holds the command-line overrides shared by meshtool subcommands.
type Flags struct {
	ConfigPath string
	Debug      bool
	LogFile    string
	Remainder  string
	Attribute  string
	BaseType   string
	Wireframe  bool
	TargetMin  string
	TargetMax  string
}

// RegisterFlags adds the common flags to fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.ConfigPath, "config", "", "Path to config file")
	fs.BoolVar(&f.Debug, "debug", false, "Enable debug logging")
	fs.StringVar(&f.LogFile, "log", "", "Also log to this file")
	fs.StringVar(&f.Remainder, "remainder", "", "Partial triangle policy: pad or short")
	fs.StringVar(&f.Attribute, "attr", "", "Position attribute name")
	fs.StringVar(&f.BaseType, "type", "", "Base type for written positions")
	fs.BoolVar(&f.Wireframe, "wireframe", false, "Write the target box outline")
	fs.StringVar(&f.TargetMin, "min", "", "Target box minimum as x,y,z")
	fs.StringVar(&f.TargetMax, "max", "", "Target box maximum as x,y,z")
	return f
}

// HasTarget reports whether an explicit target box was given.
func (f *Flags) HasTarget() bool {
	return f.TargetMin != "" || f.TargetMax != ""
}

// apply applies CLI flag overrides to the config.
func (f *Flags) apply(cfg *Config) error {
	if f.Debug {
		cfg.Logging.Level = "debug"
	}
	if f.LogFile != "" {
		cfg.Logging.LogFile = f.LogFile
	}
	if f.Remainder != "" {
		cfg.Decode.Remainder = f.Remainder
	}
	if f.Attribute != "" {
		cfg.Decode.PositionAttribute = f.Attribute
	}
	if f.BaseType != "" {
		bt, err := meshbuf.ParseBaseType(f.BaseType)
		if err != nil {
			return fmt.Errorf("-type: %w", err)
		}
		cfg.Export.BaseType = bt
	}
	if f.Wireframe {
		cfg.Export.Wireframe = true
	}
	if f.TargetMin != "" {
		v, err := parseVec3(f.TargetMin)
		if err != nil {
			return fmt.Errorf("-min: %w", err)
		}
		cfg.Fit.TargetMin = v
	}
	if f.TargetMax != "" {
		v, err := parseVec3(f.TargetMax)
		if err != nil {
			return fmt.Errorf("-max: %w", err)
		}
		cfg.Fit.TargetMax = v
	}
	return nil
}

// parseVec3 parses "x,y,z".
func parseVec3(s string) ([3]float64, error) {
	var v [3]float64
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return v, fmt.Errorf("%w: want x,y,z, got %q", ErrInvalidConfig, s)
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return v, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		v[i] = f
	}
	return v, nil
}
