// Package tokencount provides the default config.TokenCounter
// implementation, a GPT-family BPE counter backed by tiktoken-go.
package tokencount

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// defaultEncoding names the tiktoken-go encoding to load. cl100k_base covers the
// GPT-3.5/GPT-4 family and is the default.
const defaultEncoding = "cl100k_base"

// BPECounter counts tokens using a tiktoken-go BPE encoding. It is safe for
// concurrent use; the underlying encoder is loaded once and reused.
type BPECounter struct {
	mu  sync.Mutex
	enc *tiktoken.Tiktoken
}

// NewBPECounter loads the cl100k_base encoding and returns a ready counter.
func NewBPECounter() (*BPECounter, error) {
	enc, err := tiktoken.GetEncoding(defaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokencount: load encoding %s: %w", defaultEncoding, err)
	}
	return &BPECounter{enc: enc}, nil
}

// CountTokens returns the number of BPE tokens text would encode to.
func (c *BPECounter) CountTokens(text string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.enc.Encode(text, nil, nil)), nil
}
