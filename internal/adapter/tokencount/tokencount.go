// Package tokencount estimates prompt sizes in tokens.
//
// It uses tiktoken-go, a Go port of OpenAI's tiktoken tokenizer. The horde's
// transformer models almost all descend from GPT-style BPE vocabularies, so
// model families map onto the nearest tiktoken encoding. When an encoding
// cannot be loaded the estimate falls back to the four-characters-per-token
// rule the queue's accounting historically used.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// charsPerToken is the fallback ratio, matching the chars-to-tokens
// conversion applied to pre-token snapshot files.
const charsPerToken = 4

// Counter estimates token counts, caching one loaded encoding per name.
type Counter struct {
	mu            sync.RWMutex
	encodingCache map[string]*tiktoken.Tiktoken
}

func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// encodingNameFor maps a horde model id to a tiktoken encoding. GPT-2 and
// its descendants (gpt-neo, gpt-j, fairseq, opt, pythia) share the r50k
// vocabulary; anything newer or unknown gets cl100k_base.
func encodingNameFor(model string) string {
	m := strings.ToLower(model)
	if i := strings.LastIndex(m, "/"); i >= 0 {
		m = m[i+1:]
	}
	switch {
	case strings.Contains(m, "gpt-neo"),
		strings.Contains(m, "gpt-j"),
		strings.Contains(m, "fairseq"),
		strings.Contains(m, "pythia"),
		strings.HasPrefix(m, "gpt2"),
		strings.HasPrefix(m, "opt-"):
		return "r50k_base"
	default:
		return "cl100k_base"
	}
}

func (c *Counter) encoding(name string) (*tiktoken.Tiktoken, error) {
	c.mu.RLock()
	if enc, ok := c.encodingCache[name]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encodingCache[name]; ok {
		return enc, nil
	}
	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	c.encodingCache[name] = enc
	return enc, nil
}

// EstimateTokens counts the tokens in text using the default encoding.
func (c *Counter) EstimateTokens(text string) int {
	return c.EstimateTokensForModel(text, "")
}

// EstimateTokensForModel counts the tokens in text with the encoding closest
// to the given model's vocabulary. Non-empty text never estimates to zero.
func (c *Counter) EstimateTokensForModel(text, model string) int {
	if text == "" {
		return 0
	}
	name := encodingNameFor(model)
	enc, err := c.encoding(name)
	if err != nil {
		slog.Debug("token encoding unavailable, estimating by length",
			slog.String("encoding", name),
			slog.Any("error", err))
		return (len(text) + charsPerToken - 1) / charsPerToken
	}
	return len(enc.Encode(text, nil, nil))
}
