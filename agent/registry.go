package agent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrParticipantNotFound = errors.New("participant not found")
	ErrEmptyRoster         = errors.New("roster has no participants")
	ErrDuplicateName       = errors.New("duplicate participant name")
)

// Registry is the ordered set of participants taking part in the chat.
// It is built once at startup and only read afterwards, so it needs no locking.
type Registry struct {
	participants []Participant
	index        map[string]int
}

// NewRegistry validates the participants and indexes them by name.
// Name lookups are case-insensitive; registration order is kept.
func NewRegistry(participants ...Participant) (*Registry, error) {
	if len(participants) == 0 {
		return nil, ErrEmptyRoster
	}

	index := make(map[string]int, len(participants))
	for i, p := range participants {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid participant %q: %w", p.Name, err)
		}
		key := strings.ToLower(p.Name)
		if _, exists := index[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		index[key] = i
	}

	return &Registry{
		participants: append([]Participant(nil), participants...),
		index:        index,
	}, nil
}

// Get returns the participant registered under name.
func (r *Registry) Get(name string) (Participant, error) {
	i := r.Index(name)
	if i < 0 {
		return Participant{}, fmt.Errorf("%w: %q", ErrParticipantNotFound, name)
	}
	return r.participants[i], nil
}

// All returns the participants in registration order.
func (r *Registry) All() []Participant {
	return append([]Participant(nil), r.participants...)
}

// Names returns the participant names in registration order.
func (r *Registry) Names() []string {
	return lo.Map(r.participants, func(p Participant, _ int) string {
		return p.Name
	})
}

// Index returns the position of name in the registry, or -1.
func (r *Registry) Index(name string) int {
	i, ok := r.index[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return -1
	}
	return i
}

// At returns the participant at position i, wrapping around the roster.
func (r *Registry) At(i int) Participant {
	n := len(r.participants)
	return r.participants[((i%n)+n)%n]
}

// Len returns the number of participants.
func (r *Registry) Len() int {
	return len(r.participants)
}
