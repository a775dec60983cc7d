package types

import (
	"strings"
	"sync"
)

// Reply is the normalized backend response.
type Reply struct {
	Text     string
	Provider string
	Model    string
	Usage    *TokenUsage
}

// TokenUsage captures token accounting across backends.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	TotalTokens     int64
	ReasoningTokens int64
	CacheReadTokens int64
}

// IsZero reports whether all token counters are unset/zero.
func (u TokenUsage) IsZero() bool {
	return u.InputTokens == 0 &&
		u.OutputTokens == 0 &&
		u.TotalTokens == 0 &&
		u.ReasoningTokens == 0 &&
		u.CacheReadTokens == 0
}

// Conversations maps a local conversation key, usually a chat id, to the
// backend's remote session id.
type Conversations struct {
	mu  sync.Mutex
	ids map[string]string
}

func (c *Conversations) Lookup(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.ids[strings.TrimSpace(key)]
	return id, ok
}

func (c *Conversations) Store(key, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ids == nil {
		c.ids = make(map[string]string)
	}
	c.ids[strings.TrimSpace(key)] = id
}

// Forget drops the mapping so the next prompt opens a fresh remote session.
func (c *Conversations) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, strings.TrimSpace(key))
}
