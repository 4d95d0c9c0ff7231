package memory

import (
	"context"
	"sync"
)

// Cursors keeps replication cursors in process memory. It forgets them on
// restart, after which compaction waits until each consumer pulls again.
type Cursors struct {
	mu      sync.Mutex
	cursors map[string]int64
}

func NewCursors() *Cursors {
	return &Cursors{cursors: make(map[string]int64)}
}

func (c *Cursors) Ack(ctx context.Context, consumer string, cursor int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cursors[consumer] = cursor
	return nil
}

func (c *Cursors) Cursors(ctx context.Context) (map[string]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int64, len(c.cursors))
	for k, v := range c.cursors {
		out[k] = v
	}
	return out, nil
}
