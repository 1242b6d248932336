package rag

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// tokenEstimate counts tokens with the cl100k_base encoding, falling
// back to a word count when the encoding is unavailable.
func tokenEstimate(text string) int {
	encodingOnce.Do(func() {
		encoding, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if encoding != nil {
		return len(encoding.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}
