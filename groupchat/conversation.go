package groupchat

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"marketing-groupchat/agent"
)

// Conversation is the ordered history of one chat plus the bookkeeping for
// the invocation in progress. Ordinals start at 1 and only grow until Reset.
type Conversation struct {
	mu       sync.RWMutex
	id       string
	messages []agent.Message
	cycles   int
	complete bool
}

func NewConversation() *Conversation {
	return &Conversation{id: uuid.NewString()}
}

func (c *Conversation) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Append records a message and returns it with its ID and ordinal set.
func (c *Conversation) Append(author, content string) agent.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := agent.Message{
		ID:      uuid.NewString(),
		Ordinal: len(c.messages) + 1,
		Author:  author,
		Content: content,
		At:      time.Now(),
	}
	c.messages = append(c.messages, msg)
	return msg
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []agent.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]agent.Message(nil), c.messages...)
}

func (c *Conversation) Last() (agent.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.messages) == 0 {
		return agent.Message{}, false
	}
	return c.messages[len(c.messages)-1], true
}

func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Reset drops the history and starts a new conversation ID.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.id = uuid.NewString()
	c.messages = nil
	c.cycles = 0
	c.complete = false
}

func (c *Conversation) Cycles() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cycles
}

func (c *Conversation) beginInvocation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles = 0
	c.complete = false
}

func (c *Conversation) completeCycle() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cycles++
	return c.cycles
}

func (c *Conversation) SetComplete(complete bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.complete = complete
}

func (c *Conversation) Complete() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.complete
}
