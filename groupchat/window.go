package groupchat

import (
	"github.com/samber/lo"

	"marketing-groupchat/agent"
)

// DefaultHistoryWindow is how many recent messages a participant sees.
const DefaultHistoryWindow = 5

// Window returns a copy of the most recent k messages, oldest first. A
// non-positive k keeps the whole history.
func Window(messages []agent.Message, k int) []agent.Message {
	if k <= 0 {
		k = len(messages)
	}
	return append([]agent.Message(nil), lo.Slice(messages, len(messages)-k, len(messages))...)
}
