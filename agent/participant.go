package agent

import (
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// UserAuthor is the author recorded on messages typed by the user.
const UserAuthor = "user"

// Participant is a named role in the group chat with a fixed system instruction.
// Participants are values and are never modified after the registry is built.
type Participant struct {
	Name         string `yaml:"name" validate:"required,max=64,participant_name"`
	Instructions string `yaml:"instructions" validate:"required"`
}

// Message is one entry of the conversation history. Messages are append-only.
type Message struct {
	ID      string
	Ordinal int
	Author  string
	Content string
	At      time.Time
}

// FromUser reports whether the message was typed by the user rather than a participant.
func (m Message) FromUser() bool {
	return m.Author == UserAuthor
}

// Chat completion APIs only accept these characters in the author name field.
var participantNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("participant_name", func(fl validator.FieldLevel) bool {
		name := fl.Field().String()
		return participantNamePattern.MatchString(name) && !strings.EqualFold(name, UserAuthor)
	})
	return v
}

// Validate checks the participant's name and instructions.
func (p Participant) Validate() error {
	return validate.Struct(p)
}
