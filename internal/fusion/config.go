package fusion

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dataflow/internal/dominance"
	"github.com/roach88/dataflow/internal/ir"
	"github.com/roach88/dataflow/internal/rewrite"
)

// Config selects which operation kinds each rule applies to, phase by
// phase. Phases run in order; each runs the greedy driver to a fixpoint.
type Config struct {
	Phases []PhaseConfig `yaml:"phases"`

	// MaxIterations bounds full rescans per phase. Zero means the driver
	// default.
	MaxIterations int `yaml:"max_iterations,omitempty"`
}

// PhaseConfig lists root kinds per rule. Patterns are registered in the
// order outline, backward_fuse, forward_fuse, replicate.
type PhaseConfig struct {
	Outline      []string `yaml:"outline,omitempty"`
	BackwardFuse []string `yaml:"backward_fuse,omitempty"`
	ForwardFuse  []string `yaml:"forward_fuse,omitempty"`
	Replicate    []string `yaml:"replicate,omitempty"`
}

// DefaultConfig returns the two-phase TOSA configuration.
func DefaultConfig() Config {
	return Config{
		Phases: []PhaseConfig{
			{
				Outline: []string{
					ir.KindConv2D, ir.KindAvgPool2D, ir.KindMaxPool2D, ir.KindMatMul,
					ir.KindMul, ir.KindAdd, ir.KindSub, ir.KindRsqrt,
				},
				BackwardFuse: []string{ir.KindClamp, ir.KindTranspose},
				ForwardFuse:  []string{ir.KindReshape},
			},
			{
				Outline:   []string{ir.KindTranspose},
				Replicate: []string{ir.KindConst},
			},
		},
	}
}

// LoadConfig reads a YAML configuration. Unknown fields are rejected and
// an empty file yields DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read fusion config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML configuration data; see LoadConfig.
func ParseConfig(data []byte) (Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return DefaultConfig(), nil
		}
		return Config{}, fmt.Errorf("failed to parse fusion config: %w", err)
	}
	if len(cfg.Phases) == 0 {
		cfg.Phases = DefaultConfig().Phases
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid fusion config: %w", err)
	}
	return cfg, nil
}

// Validate rejects empty kinds, negative limits and replicate roots other
// than constants.
func (c Config) Validate() error {
	if c.MaxIterations < 0 {
		return fmt.Errorf("max_iterations must be non-negative, got %d", c.MaxIterations)
	}
	for i, ph := range c.Phases {
		lists := []struct {
			field string
			kinds []string
		}{
			{"outline", ph.Outline},
			{"backward_fuse", ph.BackwardFuse},
			{"forward_fuse", ph.ForwardFuse},
			{"replicate", ph.Replicate},
		}
		for _, l := range lists {
			for _, k := range l.kinds {
				if k == "" {
					return fmt.Errorf("phases[%d].%s: empty operation kind", i, l.field)
				}
				if ir.IsCompound(k) || ir.IsTerminator(k) {
					return fmt.Errorf("phases[%d].%s: %s cannot be a rule root", i, l.field, k)
				}
			}
		}
		for _, k := range ph.Replicate {
			if k != ir.KindConst {
				return fmt.Errorf("phases[%d].replicate: only %s can be replicated, got %s", i, ir.KindConst, k)
			}
		}
	}
	return nil
}

// patterns builds the pattern set of phase i.
func (c Config) patterns(i int, dom dominance.Oracle) *rewrite.PatternSet {
	ph := c.Phases[i]
	set := rewrite.NewPatternSet()
	for _, k := range ph.Outline {
		set.Add(NewOutlinePattern(k))
	}
	for _, k := range ph.BackwardFuse {
		set.Add(NewBackwardFusePattern(k, dom))
	}
	for _, k := range ph.ForwardFuse {
		set.Add(NewForwardFusePattern(k, dom))
	}
	for _, k := range ph.Replicate {
		set.Add(NewConstReplicatePattern(k))
	}
	return set
}
