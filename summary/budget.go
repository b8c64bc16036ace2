package summary

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens in prompt text.
type TokenCounter interface {
	Count(text string) int
}

// tiktokenCounter counts with cl100k_base, loading the encoding on first
// use. When the encoding cannot be loaded it estimates four bytes per token.
type tiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTokenCounter returns a tiktoken-backed counter for encoding. An empty
// encoding selects cl100k_base.
func NewTokenCounter(encoding string) TokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &tiktokenCounter{encoding: encoding}
}

func (c *tiktokenCounter) init() error {
	c.once.Do(func() {
		c.enc, c.initErr = tiktoken.GetEncoding(c.encoding)
	})
	return c.initErr
}

func (c *tiktokenCounter) Count(text string) int {
	if err := c.init(); err != nil {
		return estimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// TrimToBudget drops the oldest entries until the rendered transcript fits
// in maxTokens. A non-positive budget disables trimming. The newest entry is
// always kept.
func TrimToBudget(entries []TranscriptEntry, counter TokenCounter, maxTokens int) []TranscriptEntry {
	if maxTokens <= 0 || len(entries) == 0 {
		return entries
	}
	total := 0
	start := len(entries)
	for i := len(entries) - 1; i >= 0; i-- {
		n := counter.Count(formatEntry(entries[i])) + 1
		if total+n > maxTokens && start < len(entries) {
			break
		}
		total += n
		start = i
	}
	return entries[start:]
}
