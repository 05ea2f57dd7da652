package client

import (
	"sort"
	"sync"
	"time"
)

// TokenUsage is token consumption and expected cost.
type TokenUsage struct {
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	Cost         float64 `json:"cost_usd"`
}

func (t *TokenUsage) add(input, output int, cost float64) {
	t.InputTokens += input
	t.OutputTokens += output
	t.TotalTokens += input + output
	t.Cost += cost
}

// CallerUsage is the usage attributed to one caller, a participant or an oracle.
type CallerUsage struct {
	Caller      string     `json:"caller"`
	Usage       TokenUsage `json:"usage"`
	CallCount   int        `json:"call_count"`
	LastUpdated time.Time  `json:"last_updated"`
}

// UsageSnapshot is a point-in-time copy of a UsageTracker.
type UsageSnapshot struct {
	SessionStart time.Time     `json:"session_start"`
	Total        TokenUsage    `json:"total_usage"`
	Callers      []CallerUsage `json:"callers"`
}

// UsageTracker accumulates token usage across all callers of a client.
type UsageTracker struct {
	mu           sync.RWMutex
	total        TokenUsage
	callers      map[string]*CallerUsage
	sessionStart time.Time
}

func NewUsageTracker() *UsageTracker {
	return &UsageTracker{
		callers:      make(map[string]*CallerUsage),
		sessionStart: time.Now(),
	}
}

// Record adds one call's usage.
func (u *UsageTracker) Record(caller string, inputTokens, outputTokens int, cost float64) {
	u.mu.Lock()
	defer u.mu.Unlock()

	cu, ok := u.callers[caller]
	if !ok {
		cu = &CallerUsage{Caller: caller}
		u.callers[caller] = cu
	}
	cu.Usage.add(inputTokens, outputTokens, cost)
	cu.CallCount++
	cu.LastUpdated = time.Now()

	u.total.add(inputTokens, outputTokens, cost)
}

func (u *UsageTracker) TotalCost() float64 {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total.Cost
}

func (u *UsageTracker) TotalTokens() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.total.TotalTokens
}

// Caller returns a copy of the usage recorded for caller.
func (u *UsageTracker) Caller(caller string) CallerUsage {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if cu, ok := u.callers[caller]; ok {
		return *cu
	}
	return CallerUsage{Caller: caller}
}

// Snapshot returns a copy of all usage, callers sorted by name.
func (u *UsageTracker) Snapshot() UsageSnapshot {
	u.mu.RLock()
	defer u.mu.RUnlock()

	callers := make([]CallerUsage, 0, len(u.callers))
	for _, cu := range u.callers {
		callers = append(callers, *cu)
	}
	sort.Slice(callers, func(i, j int) bool {
		return callers[i].Caller < callers[j].Caller
	})

	return UsageSnapshot{
		SessionStart: u.sessionStart,
		Total:        u.total,
		Callers:      callers,
	}
}

func (u *UsageTracker) SessionDuration() time.Duration {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return time.Since(u.sessionStart)
}
