package tokens

import (
	"github.com/martinemde/conductor/llmclient"
)

// ResponseReserve is the token allowance held back for the model's response
// when fitting history into a context budget.
const ResponseReserve = 1000

// minKeepTokens is the smallest budget worth spending on a truncated
// message; below this the message is dropped instead.
const minKeepTokens = 50

// Budget trims conversation history to a context-token allowance.
type Budget struct {
	MaxContextTokens int // 0 disables trimming entirely
	est              *Estimator
}

// NewBudget creates a Budget backed by the given estimator.
func NewBudget(maxContextTokens int, est *Estimator) Budget {
	if est == nil {
		est = NewEstimator()
	}
	return Budget{MaxContextTokens: maxContextTokens, est: est}
}

// Fit returns the suffix of history that fits the budget after reserving
// room for the system prompt and the model's response. Messages are dropped
// oldest-first; when partial room remains, the oldest retained message is
// truncated to its trailing characters rather than dropped whole. A zero
// MaxContextTokens returns history unchanged.
func (b Budget) Fit(systemPrompt string, history []llmclient.Message) []llmclient.Message {
	if b.MaxContextTokens <= 0 {
		return history
	}

	available := b.MaxContextTokens - b.est.Count(systemPrompt) - ResponseReserve
	if available <= 0 {
		return nil
	}

	// Walk newest to oldest, keeping whole messages while they fit.
	kept := 0
	remaining := available
	for i := len(history) - 1; i >= 0; i-- {
		cost := b.est.CountMessage(history[i])
		if cost > remaining {
			break
		}
		remaining -= cost
		kept++
	}

	result := history[len(history)-kept:]

	// Spend leftover budget on the tail of the next-oldest message.
	cut := len(history) - kept - 1
	if cut >= 0 && remaining >= minKeepTokens {
		if truncated, ok := b.truncateTail(history[cut], remaining); ok {
			result = append([]llmclient.Message{truncated}, result...)
		}
	}

	return result
}

// truncateTail keeps the trailing portion of a message's content that fits
// in budget tokens. Messages carrying tool calls are not truncated; their
// payload is not divisible without breaking the call/result pairing.
func (b Budget) truncateTail(msg llmclient.Message, budget int) (llmclient.Message, bool) {
	if len(msg.ToolCalls) > 0 {
		return msg, false
	}

	// Estimate how many trailing characters fit, then verify.
	keepChars := budget * 4
	if keepChars >= len(msg.Content) {
		return msg, false // would have fit whole; budget accounting said otherwise
	}

	truncated := msg
	truncated.Content = msg.Content[len(msg.Content)-keepChars:]
	for b.est.CountMessage(truncated) > budget && len(truncated.Content) > 0 {
		// Encoding density beat the heuristic; shave further.
		drop := len(truncated.Content) / 4
		if drop == 0 {
			drop = 1
		}
		truncated.Content = truncated.Content[drop:]
	}
	if truncated.Content == "" {
		return msg, false
	}
	return truncated, true
}
