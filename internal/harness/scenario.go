package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dataflow/internal/fusion"
)

// Scenario defines a conformance test scenario.
// A scenario runs the pass over one function of a CUE program and asserts
// on the resulting clustering and firing trace.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden files.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Program is the path to the CUE program file.
	// Relative paths are resolved against the scenario file location.
	Program string `yaml:"program"`

	// Func selects the function to transform. If empty, the program must
	// define exactly one function.
	Func string `yaml:"func,omitempty"`

	// Config overrides the pass configuration. If nil or without phases,
	// fusion.DefaultConfig is used.
	Config *fusion.Config `yaml:"config,omitempty"`

	// Assertions validate the transformed function and the trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Assertion validates the outcome of a run.
type Assertion struct {
	// Type specifies the assertion type, see the Assert* constants.
	Type string `yaml:"type"`

	// Count is the expected number (task_count, unclustered, firing_count).
	Count int `yaml:"count,omitempty"`

	// Kind restricts unclustered to one operation kind.
	Kind string `yaml:"kind,omitempty"`

	// Pattern is the pattern name counted by firing_count.
	Pattern string `yaml:"pattern,omitempty"`

	// Patterns is the expected firing order (firing_order).
	Patterns []string `yaml:"patterns,omitempty"`

	// Task is the index of the task node in walk order (task_kinds).
	Task int `yaml:"task,omitempty"`

	// Kinds are the expected operation kinds of the task body, in order,
	// without the terminator (task_kinds).
	Kinds []string `yaml:"kinds,omitempty"`
}

// Assertion type constants.
const (
	AssertTaskCount     = "task_count"
	AssertUnclustered   = "unclustered"
	AssertTaskKinds     = "task_kinds"
	AssertFiringCount   = "firing_count"
	AssertFiringOrder   = "firing_order"
	AssertConverged     = "converged"
	AssertDeterministic = "deterministic"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
//
// The program path is resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Program != "" && !filepath.IsAbs(scenario.Program) {
		scenario.Program = filepath.Join(filepath.Dir(path), scenario.Program)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// FindScenarios returns the YAML files of dir in lexical order.
func FindScenarios(dir string) ([]string, error) {
	var files []string
	for _, pattern := range []string{"*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Program == "" {
		return fmt.Errorf("program is required")
	}
	if _, err := os.Stat(s.Program); os.IsNotExist(err) {
		return fmt.Errorf("program file not found: %s", s.Program)
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Config != nil {
		if err := s.Config.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTaskCount, AssertUnclustered:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
	case AssertTaskKinds:
		if a.Task < 0 {
			return fmt.Errorf("assertions[%d]: task must be non-negative for task_kinds", index)
		}
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for task_kinds", index)
		}
	case AssertFiringCount:
		if a.Pattern == "" {
			return fmt.Errorf("assertions[%d]: pattern is required for firing_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for firing_count", index)
		}
	case AssertFiringOrder:
		if len(a.Patterns) == 0 {
			return fmt.Errorf("assertions[%d]: patterns list is required for firing_order", index)
		}
	case AssertConverged, AssertDeterministic:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}

// config returns the pass configuration of the scenario.
func (s *Scenario) config() fusion.Config {
	if s.Config == nil || len(s.Config.Phases) == 0 {
		cfg := fusion.DefaultConfig()
		if s.Config != nil {
			cfg.MaxIterations = s.Config.MaxIterations
		}
		return cfg
	}
	return *s.Config
}
