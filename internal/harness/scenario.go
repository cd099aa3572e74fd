package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/socialstories/internal/protocol"
	"github.com/roach88/socialstories/internal/script"
	"github.com/roach88/socialstories/internal/store"
)

// Scenario defines one scripted session and what it must produce.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Participant defaults to DefaultParticipant.
	Participant string `yaml:"participant,omitempty"`

	// Session is the session number recorded in the store. Defaults to 1.
	Session int `yaml:"session,omitempty"`

	// Level is the participant's level before the session. Defaults to 1.
	Level int `yaml:"level,omitempty"`

	// Main is the session script to play. It must be one of Scripts.
	Main string `yaml:"main"`

	// Scripts holds every file the session reads, by name: session and
	// story scripts, repeat scripts, response pools, and object lists.
	Scripts map[string]string `yaml:"scripts"`

	// Stories is the story library imported before the session.
	Stories []store.Story `yaml:"stories,omitempty"`

	// Responses answer WAIT lines in order. Once they run out every wait
	// times out.
	Responses []protocol.Response `yaml:"responses,omitempty"`

	// Controls are game commands delivered between steps. START is
	// always applied before the first step.
	Controls []Control `yaml:"controls,omitempty"`

	// Settings override the engine defaults.
	Settings Settings `yaml:"settings,omitempty"`

	// Assertions validate the final trace and store state.
	Assertions []Assertion `yaml:"assertions"`
}

// Control is a game command applied once Step steps have been played.
type Control struct {
	Step    int    `yaml:"step"`
	Message string `yaml:"message"`
}

// Settings are the session limits a scenario can change.
type Settings struct {
	MatchMode             string        `yaml:"match_mode,omitempty"`
	MaxIncorrectResponses int           `yaml:"max_incorrect_responses,omitempty"`
	MaxStories            *int          `yaml:"max_stories,omitempty"`
	MaxGameTime           time.Duration `yaml:"max_game_time,omitempty"`
	LevelThreshold        float64       `yaml:"level_threshold,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": a command with Channel, Action and Payload appears
	// - "trace_order": Actions appear in order
	// - "trace_count": a command appears exactly Count times
	// - "final_state": query Table and verify expected values
	Type string `yaml:"type"`

	// Channel is robot, opal or state. Empty matches any channel.
	Channel string `yaml:"channel,omitempty"`

	// Action is the command action (used by trace_contains and trace_count).
	Action string `yaml:"action,omitempty"`

	// Payload must be contained in the command payload (used by
	// trace_contains and trace_count).
	Payload string `yaml:"payload,omitempty"`

	// Table is the store table name (used by final_state).
	Table string `yaml:"table,omitempty"`

	// Where specifies query filters (used by final_state).
	// All fields must match exactly.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected field values (used by final_state).
	// Subset match - only specified fields are validated.
	Expect map[string]any `yaml:"expect,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Actions is the expected action order (used by trace_order). Entries
	// are "channel:action" or a bare action.
	Actions []string `yaml:"actions,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// DefaultParticipant is used when a scenario names no participant.
const DefaultParticipant = "harness"

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML and applies defaults.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Participant == "" {
		scenario.Participant = DefaultParticipant
	}
	if scenario.Session == 0 {
		scenario.Session = 1
	}
	if scenario.Level == 0 {
		scenario.Level = 1
	}
	for i := range scenario.Stories {
		if scenario.Stories[i].Level == 0 {
			scenario.Stories[i].Level = 1
		}
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

	if s.Main == "" {
		return fmt.Errorf("main script is required")
	}

	if _, ok := s.Scripts[s.Main]; !ok {
		return fmt.Errorf("main script %q is not in scripts", s.Main)
	}

	if s.Level < 1 {
		return fmt.Errorf("level must be at least 1, got %d", s.Level)
	}

	if _, err := script.ParseMatchMode(s.Settings.MatchMode); err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	for i, st := range s.Stories {
		if err := st.Validate(); err != nil {
			return fmt.Errorf("stories[%d]: %w", i, err)
		}
		if _, ok := s.Scripts[st.Name]; !ok {
			return fmt.Errorf("stories[%d]: script %q is not in scripts", i, st.Name)
		}
	}

	for i, r := range s.Responses {
		if _, ok := protocol.ParseResponse(string(r)); !ok {
			return fmt.Errorf("responses[%d]: unknown response %q", i, r)
		}
	}

	for i, c := range s.Controls {
		if c.Step < 0 {
			return fmt.Errorf("controls[%d]: step must be non-negative", i)
		}
		if c.Message == "" {
			return fmt.Errorf("controls[%d]: message is required", i)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
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
	case AssertTraceContains:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Actions) == 0 {
			return fmt.Errorf("assertions[%d]: actions list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Action == "" {
			return fmt.Errorf("assertions[%d]: action is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
