package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/fusion/internal/ir"
)

// Scenario defines a fusion test scenario: timed input steps and the
// outputs they must produce.
type Scenario struct {
	// Name uniquely identifies this scenario. Used as the golden file name.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// ConfigDir is an optional CUE config directory. Relative paths are
	// resolved against the scenario file's directory by LoadScenario.
	ConfigDir string `yaml:"config_dir,omitempty"`

	// Config overrides engine tuning. Applied after ConfigDir.
	Config *ScenarioConfig `yaml:"config,omitempty"`

	// DefaultRules installs the built-in rules ahead of any configured ones.
	DefaultRules bool `yaml:"default_rules,omitempty"`

	// Steps are submitted in order at their at_ms offsets.
	Steps []Step `yaml:"steps"`

	// Expect matches outputs positionally. Only set fields are checked.
	Expect []Expectation `yaml:"expect,omitempty"`

	// ExpectOutputs is the exact number of outputs, when set.
	ExpectOutputs *int `yaml:"expect_outputs,omitempty"`

	// ExpectErrors is the exact number of engine errors, when set.
	ExpectErrors *int `yaml:"expect_errors,omitempty"`
}

// ScenarioConfig overrides engine tuning for one scenario.
type ScenarioConfig struct {
	SimultaneousInputWindowMS *int64         `yaml:"simultaneous_input_window_ms,omitempty"`
	MaxInputBuffer            *int           `yaml:"max_input_buffer,omitempty"`
	DebounceMS                *int64         `yaml:"debounce_ms,omitempty"`
	DefaultPriority           map[string]int `yaml:"default_priority,omitempty"`
}

// Step is one input submission.
type Step struct {
	// AtMS is the offset from the scenario start. Must not decrease.
	AtMS int64 `yaml:"at_ms"`

	// Type is the input channel.
	Type string `yaml:"type"`

	// Data is a string or a payload object.
	Data any `yaml:"data"`

	Priority   int               `yaml:"priority,omitempty"`
	Confidence *float64          `yaml:"confidence,omitempty"`
	Metadata   map[string]string `yaml:"metadata,omitempty"`
}

// Draft converts the step into an engine input draft.
func (s Step) Draft() (ir.InputDraft, error) {
	t, err := ir.ParseInputType(s.Type)
	if err != nil {
		return ir.InputDraft{}, err
	}
	d := ir.InputDraft{
		Type:       t,
		Priority:   s.Priority,
		Confidence: s.Confidence,
		Metadata:   s.Metadata,
	}
	if s.Data == nil {
		return d, nil
	}
	raw, err := json.Marshal(s.Data)
	if err != nil {
		return ir.InputDraft{}, fmt.Errorf("encode %s data: %w", t, err)
	}
	d.Data, err = ir.UnmarshalPayload(t, raw)
	if err != nil {
		return ir.InputDraft{}, err
	}
	return d, nil
}

// Offset returns AtMS as a duration.
func (s Step) Offset() time.Duration {
	return time.Duration(s.AtMS) * time.Millisecond
}

// Expectation describes one expected output. Zero-valued fields are not
// checked.
type Expectation struct {
	Command    string   `yaml:"command,omitempty"`
	Kind       string   `yaml:"kind,omitempty"`
	Rule       string   `yaml:"rule,omitempty"`
	Confidence *float64 `yaml:"confidence,omitempty"`
	InputCount int      `yaml:"input_count,omitempty"`
	InputTypes []string `yaml:"input_types,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve config_dir relative to the scenario file
	if scenario.ConfigDir != "" && !filepath.IsAbs(scenario.ConfigDir) {
		scenario.ConfigDir = filepath.Join(filepath.Dir(path), scenario.ConfigDir)
	}
	if scenario.ConfigDir != "" {
		if _, err := os.Stat(scenario.ConfigDir); err != nil {
			return nil, fmt.Errorf("invalid scenario: config_dir: %w", err)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML. config_dir is left as written.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	var last int64
	for i, step := range s.Steps {
		if step.AtMS < last {
			return fmt.Errorf("steps[%d]: at_ms %d is before previous step (%d)", i, step.AtMS, last)
		}
		last = step.AtMS
		if _, err := step.Draft(); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if s.ExpectOutputs != nil && *s.ExpectOutputs < 0 {
		return fmt.Errorf("expect_outputs must be non-negative")
	}
	if s.ExpectOutputs != nil && len(s.Expect) > *s.ExpectOutputs {
		return fmt.Errorf("expect lists %d outputs but expect_outputs is %d", len(s.Expect), *s.ExpectOutputs)
	}

	if c := s.Config; c != nil {
		if c.SimultaneousInputWindowMS != nil && *c.SimultaneousInputWindowMS <= 0 {
			return fmt.Errorf("config.simultaneous_input_window_ms must be positive")
		}
		if c.MaxInputBuffer != nil && *c.MaxInputBuffer <= 0 {
			return fmt.Errorf("config.max_input_buffer must be positive")
		}
		if c.DebounceMS != nil && *c.DebounceMS < 0 {
			return fmt.Errorf("config.debounce_ms must be non-negative")
		}
		for k := range c.DefaultPriority {
			if _, err := ir.ParseInputType(k); err != nil {
				return fmt.Errorf("config.default_priority: %w", err)
			}
		}
	}

	for i, e := range s.Expect {
		for _, t := range e.InputTypes {
			if _, err := ir.ParseInputType(t); err != nil {
				return fmt.Errorf("expect[%d].input_types: %w", i, err)
			}
		}
	}

	return nil
}
