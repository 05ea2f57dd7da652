package agent

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed roster.yaml
var defaultRoster []byte

// Roster describes the participants of a group chat and who opens and closes each cycle.
type Roster struct {
	// Start speaks first after every user message.
	Start string `yaml:"start"`
	// Terminal is the participant whose replies are checked for completion.
	Terminal     string        `yaml:"terminal"`
	Participants []Participant `yaml:"participants"`
}

// DefaultRoster returns the built-in SEO, SEM, CSR and SDR roster.
func DefaultRoster() (*Roster, error) {
	return ParseRoster(defaultRoster)
}

// LoadRoster reads a roster from a YAML file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes a YAML roster. Start and Terminal default to the
// first and last participant.
func ParseRoster(data []byte) (*Roster, error) {
	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster: %w", err)
	}

	if n := len(roster.Participants); n > 0 {
		if roster.Start == "" {
			roster.Start = roster.Participants[0].Name
		}
		if roster.Terminal == "" {
			roster.Terminal = roster.Participants[n-1].Name
		}
	}

	return &roster, nil
}

// Registry builds the participant registry and checks that the start and
// terminal participants are part of it.
func (r *Roster) Registry() (*Registry, error) {
	registry, err := NewRegistry(r.Participants...)
	if err != nil {
		return nil, err
	}
	if _, err := registry.Get(r.Start); err != nil {
		return nil, fmt.Errorf("start participant: %w", err)
	}
	if _, err := registry.Get(r.Terminal); err != nil {
		return nil, fmt.Errorf("terminal participant: %w", err)
	}
	return registry, nil
}

// Validate reports whether the roster can be turned into a registry.
func (r *Roster) Validate() error {
	_, err := r.Registry()
	return err
}
