// Package config handles meshtool configuration loading and management.
package config

import (
	"errors"
	"fmt"

	"github.com/Faultbox/meshfit/pkg/meshbuf"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all meshtool settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Decode  DecodeConfig  `yaml:"decode"`
	Export  ExportConfig  `yaml:"export"`
	Fit     FitConfig     `yaml:"fit"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// DecodeConfig controls how mesh attributes are read.
type DecodeConfig struct {
	PositionAttribute string `yaml:"position_attribute"` // vertex attribute used for bounds
	Remainder         string `yaml:"remainder"`          // "pad" or "short" for partial triangles
}

// ExportConfig controls written meshes.
type ExportConfig struct {
	BaseType  meshbuf.BaseType `yaml:"base_type"`
	Wireframe bool             `yaml:"wireframe"` // add the target box outline
}

// FitConfig holds the default target box for fit.
type FitConfig struct {
	TargetMin [3]float64 `yaml:"target_min"`
	TargetMax [3]float64 `yaml:"target_max"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
		Decode: DecodeConfig{
			PositionAttribute: "POSITION",
			Remainder:         "pad",
		},
		Export: ExportConfig{
			BaseType:  meshbuf.Float32,
			Wireframe: false,
		},
		Fit: FitConfig{
			TargetMin: [3]float64{-1, -1, -1},
			TargetMax: [3]float64{1, 1, 1},
		},
	}
}

// Validate checks values that YAML alone cannot constrain.
func (c *Config) Validate() error {
	if _, err := meshbuf.ParseRemainder(c.Decode.Remainder); err != nil {
		return fmt.Errorf("%w: decode.remainder: %v", ErrInvalidConfig, err)
	}
	if c.Decode.PositionAttribute == "" {
		return fmt.Errorf("%w: decode.position_attribute is empty", ErrInvalidConfig)
	}
	if !c.Export.BaseType.Valid() {
		return fmt.Errorf("%w: export.base_type %d", ErrInvalidConfig, c.Export.BaseType)
	}
	for i := range 3 {
		if c.Fit.TargetMin[i] > c.Fit.TargetMax[i] {
			return fmt.Errorf("%w: fit.target_min[%d] > fit.target_max[%d]", ErrInvalidConfig, i, i)
		}
	}
	return nil
}

// Remainder returns the parsed decode remainder policy.
func (c *Config) Remainder() meshbuf.Remainder {
	r, _ := meshbuf.ParseRemainder(c.Decode.Remainder)
	return r
}
