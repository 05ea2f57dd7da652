package client

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Counter estimates how many tokens a text costs.
type Counter interface {
	Count(text string) int
}

// TiktokenCounter counts tokens with the model's BPE encoding. The encoding
// is loaded on first use; if it cannot be loaded, counts fall back to a
// four-characters-per-token estimate.
type TiktokenCounter struct {
	model string

	once     sync.Once
	encoding *tiktoken.Tiktoken
}

func NewTiktokenCounter(model string) *TiktokenCounter {
	return &TiktokenCounter{model: model}
}

func (c *TiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}

	c.once.Do(c.load)
	if c.encoding == nil {
		return (len(text) + 3) / 4
	}
	return len(c.encoding.Encode(text, nil, nil))
}

func (c *TiktokenCounter) load() {
	encoding, err := tiktoken.EncodingForModel(c.model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return
		}
	}
	c.encoding = encoding
}

// countPromptTokens mirrors the chat format overhead: four tokens per
// message plus two to prime the reply.
func countPromptTokens(counter Counter, texts ...string) int {
	total := 0
	for _, text := range texts {
		total += counter.Count(text) + 4
	}
	return total + 2
}
