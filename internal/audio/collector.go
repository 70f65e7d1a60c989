package audio

import (
	"bytes"
	"errors"
	"fmt"
)

// DefaultMaxSize caps one synthesized payload held in memory
const DefaultMaxSize = 50 * 1024 * 1024 // 50MB

// ErrTooLarge is returned when appending a chunk would exceed the collector limit
var ErrTooLarge = errors.New("audio payload exceeds size limit")

// Collector accumulates streamed audio chunks, in arrival order, into one buffer.
// It is owned by a single request and is not safe for concurrent use.
type Collector struct {
	buf    bytes.Buffer
	limit  int
	chunks int
}

// NewCollector creates a collector holding at most limit bytes (DefaultMaxSize if limit <= 0)
func NewCollector(limit int) *Collector {
	if limit <= 0 {
		limit = DefaultMaxSize
	}
	return &Collector{limit: limit}
}

// Write appends one chunk. Empty chunks are ignored.
func (c *Collector) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.buf.Len()+len(p) > c.limit {
		return 0, fmt.Errorf("%w: %d bytes (max %d)", ErrTooLarge, c.buf.Len()+len(p), c.limit)
	}
	c.chunks++
	return c.buf.Write(p)
}

// Bytes returns the accumulated payload
func (c *Collector) Bytes() []byte {
	return c.buf.Bytes()
}

// Len returns the number of bytes collected
func (c *Collector) Len() int {
	return c.buf.Len()
}

// Chunks returns the number of non-empty chunks collected
func (c *Collector) Chunks() int {
	return c.chunks
}

// IsEmpty returns true if nothing has been collected
func (c *Collector) IsEmpty() bool {
	return c.buf.Len() == 0
}
