// Package termination decides whether the terminal participant's reply ends a round.
package termination

import (
	"context"
	"slices"
	"strings"
	"unicode"

	"marketing-groupchat/agent"
)

// DefaultKeyword is the word that marks content as satisfactory.
const DefaultKeyword = "yes"

// Oracle judges the terminal participant's latest message.
type Oracle interface {
	Satisfied(ctx context.Context, last agent.Message) (bool, error)
}

// Func adapts a plain function to Oracle.
type Func func(ctx context.Context, last agent.Message) (bool, error)

func (f Func) Satisfied(ctx context.Context, last agent.Message) (bool, error) {
	return f(ctx, last)
}

// KeywordPolicy matches the keyword anywhere in the text, ignoring case, so
// "Yes." and "yesterday" both match. With WholeWord set the keyword must
// appear as whole consecutive words instead.
type KeywordPolicy struct {
	Keyword   string
	WholeWord bool
}

func (p KeywordPolicy) keyword() string {
	if strings.TrimSpace(p.Keyword) == "" {
		return DefaultKeyword
	}
	return p.Keyword
}

func (p KeywordPolicy) Match(text string) bool {
	if !p.WholeWord {
		return strings.Contains(strings.ToLower(text), strings.ToLower(p.keyword()))
	}

	want := words(p.keyword())
	if len(want) == 0 {
		return false
	}

	got := words(text)
	for i := 0; i+len(want) <= len(got); i++ {
		if slices.Equal(got[i:i+len(want)], want) {
			return true
		}
	}
	return false
}

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// ReplyOracle applies the keyword policy to the reply itself without
// asking the model.
type ReplyOracle struct {
	Policy KeywordPolicy
}

func NewReplyOracle(policy KeywordPolicy) *ReplyOracle {
	return &ReplyOracle{Policy: policy}
}

func (o *ReplyOracle) Satisfied(_ context.Context, last agent.Message) (bool, error) {
	return o.Policy.Match(last.Content), nil
}
