package router

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"github.com/samber/lo"

	"marketing-groupchat/agent"
)

var ErrUnknownParticipant = errors.New("routing answer does not name a known participant")

type selection struct {
	Participant string `json:"participant" jsonschema_description:"Name of the participant who takes the next turn"`
}

// Parse resolves a routing answer to a registered participant name. It
// accepts a JSON selection object, a bare name with stray quoting or
// punctuation, or free text naming exactly one participant.
func Parse(text string, registry *agent.Registry) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrUnknownParticipant
	}

	if strings.HasPrefix(text, "{") {
		var sel selection
		if err := json.Unmarshal([]byte(text), &sel); err == nil {
			if i := registry.Index(sel.Participant); i >= 0 {
				return registry.At(i).Name, nil
			}
			return "", ErrUnknownParticipant
		}
	}

	if i := registry.Index(strings.Trim(text, "\"'`*.:#- \t\n")); i >= 0 {
		return registry.At(i).Name, nil
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' && r != '-'
	})
	named := lo.Uniq(lo.FilterMap(words, func(w string, _ int) (int, bool) {
		i := registry.Index(w)
		return i, i >= 0
	}))
	if len(named) != 1 {
		return "", ErrUnknownParticipant
	}
	return registry.At(named[0]).Name, nil
}
