package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/evtrack/internal/policy"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreBatch  = "batch"
)

// Scenario defines one tracker run and its expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Policy is "manual", "limit:N" or "interval:D". Empty means manual.
	Policy string `yaml:"policy,omitempty"`

	Store StoreSpec `yaml:"store,omitempty"`

	// FailDeliveries lists 1-based delivery attempts that fail.
	FailDeliveries []int `yaml:"fail_deliveries,omitempty"`

	Steps []Step `yaml:"steps"`

	// ExpectStored lists the names of the events left in the store at the
	// end. Omitted means unchecked.
	ExpectStored []string `yaml:"expect_stored,omitempty"`

	// ExpectDelivered lists the event names of every successful delivery.
	// Omitted means unchecked.
	ExpectDelivered [][]string `yaml:"expect_delivered,omitempty"`
}

// StoreSpec selects the event store.
type StoreSpec struct {
	// Kind is memory or batch. Empty means memory.
	Kind string `yaml:"kind"`

	// BatchSize is required for batch.
	BatchSize int `yaml:"batch_size,omitempty"`
}

// Step is exactly one tracker action.
type Step struct {
	// Track submits an event with this name.
	Track string            `yaml:"track,omitempty"`
	Props map[string]string `yaml:"props,omitempty"`

	Flush   bool `yaml:"flush,omitempty"`
	Clear   bool `yaml:"clear,omitempty"`
	Tick    bool `yaml:"tick,omitempty"`
	Restart bool `yaml:"restart,omitempty"`

	// ExpectError is the code the step must fail with (see tracker.Code).
	// Empty means the step must succeed.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// action names the step's single action, or "" if none or several are set.
func (s Step) action() string {
	var set []string
	if s.Track != "" {
		set = append(set, "track")
	}
	if s.Flush {
		set = append(set, "flush")
	}
	if s.Clear {
		set = append(set, "clear")
	}
	if s.Tick {
		set = append(set, "tick")
	}
	if s.Restart {
		set = append(set, "restart")
	}
	if len(set) != 1 {
		return ""
	}
	return set[0]
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or fails validation.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns every .yaml and .yml file under dir whose base name
// (without extension) matches filter, in lexical order. An empty filter
// matches everything.
func FindScenarios(dir, filter string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
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

	if _, err := policy.Parse(s.Policy); err != nil {
		return fmt.Errorf("policy: %w", err)
	}

	switch s.Store.Kind {
	case "", StoreMemory:
	case StoreBatch:
		if s.Store.BatchSize <= 0 {
			return fmt.Errorf("store.batch_size must be positive for the batch store")
		}
	default:
		return fmt.Errorf("store.kind %q: must be memory or batch", s.Store.Kind)
	}

	for i, n := range s.FailDeliveries {
		if n <= 0 {
			return fmt.Errorf("fail_deliveries[%d]: attempts are numbered from 1", i)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		action := step.action()
		if action == "" {
			return fmt.Errorf("steps[%d]: exactly one of track, flush, clear, tick, restart is required", i)
		}
		if len(step.Props) > 0 && action != "track" {
			return fmt.Errorf("steps[%d]: props only apply to track", i)
		}
		if step.ExpectError != "" && (action == "tick" || action == "restart") {
			return fmt.Errorf("steps[%d]: expect_error does not apply to %s", i, action)
		}
	}

	return nil
}
