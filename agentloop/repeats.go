package agentloop

import (
	"crypto/sha256"
	"fmt"

	"github.com/martinemde/conductor/llmclient"
)

// callSignature produces a deterministic fingerprint for one tool call
// from its name and raw argument text.
func callSignature(call llmclient.ToolCall) string {
	h := sha256.Sum256([]byte(call.RawArguments))
	return fmt.Sprintf("%s:%x", call.Name, h[:8])
}

// recentCallSignatures collects fingerprints of the most recent count tool
// calls in history, in chronological order.
func recentCallSignatures(history []llmclient.Message, count int) []string {
	var sigs []string
	for i := len(history) - 1; i >= 0 && len(sigs) < count; i-- {
		msg := history[i]
		if msg.Role != llmclient.RoleAssistant {
			continue
		}
		for j := len(msg.ToolCalls) - 1; j >= 0 && len(sigs) < count; j-- {
			sigs = append(sigs, callSignature(msg.ToolCalls[j]))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectRepeats reports whether the last windowSize tool calls in history
// follow a repeating pattern of length 1, 2, or 3. Fewer than windowSize
// calls never counts as a repeat.
func DetectRepeats(history []llmclient.Message, windowSize int) bool {
	sigs := recentCallSignatures(history, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		pattern := sigs[:patternLen]
		match := true
		for i := patternLen; i < windowSize && match; i += patternLen {
			for j := 0; j < patternLen; j++ {
				if sigs[i+j] != pattern[j] {
					match = false
					break
				}
			}
		}
		if match {
			return true
		}
	}
	return false
}
