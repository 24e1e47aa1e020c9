// Package tokens estimates the token cost of conversation messages and
// trims histories to fit a context budget. Counting uses the cl100k_base
// encoding via github.com/pkoukk/tiktoken-go; when the encoding cannot be
// loaded the estimator degrades to the 4-characters-per-token heuristic.
package tokens

import (
	"github.com/pkoukk/tiktoken-go"

	"github.com/martinemde/conductor/llmclient"
)

// messageOverhead approximates the per-message framing cost (role markers,
// separators) providers add on top of the content tokens.
const messageOverhead = 4

// Estimator counts tokens in text and messages.
type Estimator struct {
	encoding *tiktoken.Tiktoken
}

// NewEstimator creates an Estimator. Failure to load the encoding is not an
// error; the estimator falls back to a character heuristic.
func NewEstimator() *Estimator {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return &Estimator{}
	}
	return &Estimator{encoding: enc}
}

// Count returns the estimated token count of text.
func (e *Estimator) Count(text string) int {
	if e.encoding == nil {
		return len(text) / 4
	}
	return len(e.encoding.Encode(text, nil, nil))
}

// CountMessage returns the estimated cost of one message, including its
// tool-call payloads and framing overhead.
func (e *Estimator) CountMessage(msg llmclient.Message) int {
	n := e.Count(msg.Content) + messageOverhead
	for _, tc := range msg.ToolCalls {
		n += e.Count(tc.Name) + e.Count(tc.RawArguments)
	}
	return n
}

// CountMessages returns the estimated total cost of a message slice.
func (e *Estimator) CountMessages(msgs []llmclient.Message) int {
	total := 0
	for _, m := range msgs {
		total += e.CountMessage(m)
	}
	return total
}
