package testfixtures

import (
	"fmt"
	"sync/atomic"
)

// IDGenerator yields "<prefix>-<n>" so tests can predict the ids services assign.
type IDGenerator struct {
	prefix string
	issued atomic.Uint64
}

// NewIDGenerator defaults prefix to "id".
func NewIDGenerator(prefix string) *IDGenerator {
	if prefix == "" {
		prefix = "id"
	}
	return &IDGenerator{prefix: prefix}
}

func (g *IDGenerator) Next() string {
	return g.format(g.issued.Add(1))
}

// Peek returns the id the next call to Next will return.
func (g *IDGenerator) Peek() string {
	return g.format(g.issued.Load() + 1)
}

// Issued counts the ids handed out so far.
func (g *IDGenerator) Issued() uint64 {
	return g.issued.Load()
}

// NextFunc returns Next for injection into application.Deps.
func (g *IDGenerator) NextFunc() func() string {
	if g == nil {
		return func() string { return "" }
	}
	return g.Next
}

func (g *IDGenerator) format(n uint64) string {
	return fmt.Sprintf("%s-%d", g.prefix, n)
}
