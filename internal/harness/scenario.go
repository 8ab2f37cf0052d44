package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chronicle/internal/model"
)

// Scenario is one replayable test case.
type Scenario struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`

	// MaintainVersions toggles version maintenance on append. Nil means on.
	MaintainVersions *bool `yaml:"maintain_versions,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is either a batch of updates appended in one call, or a rebuild of
// every entity of one type.
type Step struct {
	Append  []UpdateStep `yaml:"append,omitempty"`
	Rebuild string       `yaml:"rebuild,omitempty"`
}

// UpdateStep is one update in an append batch.
type UpdateStep struct {
	Type   string `yaml:"type"`
	Entity string `yaml:"entity,omitempty"`
	Source string `yaml:"source,omitempty"`
	At     string `yaml:"at"`
	Data   any    `yaml:"data"`
}

// Assertion checks the store after all steps ran.
type Assertion struct {
	Type       string `yaml:"type"`
	EntityType string `yaml:"entity_type,omitempty"`
	Entity     string `yaml:"entity,omitempty"`
	At         string `yaml:"at,omitempty"`
	Count      int    `yaml:"count,omitempty"`
	Version    *int   `yaml:"version,omitempty"` // version_at: nil when no version covers At
	Data       any    `yaml:"data,omitempty"`
}

// Assertion type constants.
const (
	AssertVersions     = "versions"
	AssertVersionAt    = "version_at"
	AssertCurrent      = "current"
	AssertObservations = "observations"
	AssertObjects      = "objects"
	AssertConsistent   = "consistent"
)

// LoadScenario reads and parses a scenario YAML file.
// Unknown fields are rejected so typos fail loudly.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
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

	for i, step := range s.Steps {
		if (len(step.Append) == 0) == (step.Rebuild == "") {
			return fmt.Errorf("steps[%d]: exactly one of append or rebuild is required", i)
		}
		if step.Rebuild != "" {
			if _, err := model.ParseEntityType(step.Rebuild); err != nil {
				return fmt.Errorf("steps[%d].rebuild: %w", i, err)
			}
		}
		for j, u := range step.Append {
			if _, err := model.ParseEntityType(u.Type); err != nil {
				return fmt.Errorf("steps[%d].append[%d]: %w", i, j, err)
			}
			if _, err := parseOffset(u.At); err != nil {
				return fmt.Errorf("steps[%d].append[%d]: %w", i, j, err)
			}
			if u.Data == nil {
				return fmt.Errorf("steps[%d].append[%d]: data is required", i, j)
			}
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertVersions, AssertVersionAt, AssertCurrent:
		if _, err := model.ParseEntityType(a.EntityType); err != nil {
			return fmt.Errorf("assertions[%d]: entity_type: %w", index, err)
		}
		if a.Type == AssertVersionAt {
			if _, err := parseOffset(a.At); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
		if a.Type == AssertCurrent && a.Data == nil {
			return fmt.Errorf("assertions[%d]: data is required for current", index)
		}
	case AssertObservations, AssertObjects:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertConsistent:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// parseOffset reads a Go duration relative to the scenario start.
func parseOffset(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("at is required")
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("at: %w", err)
	}
	return d, nil
}
