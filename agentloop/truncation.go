package agentloop

import (
	"fmt"
	"strings"
)

// TruncationMode specifies how over-limit tool output is cut.
type TruncationMode string

const (
	TruncateHeadTail TruncationMode = "head_tail"
	TruncateTail     TruncationMode = "tail"
)

// Per-tool character limits applied to tool output before it re-enters the
// conversation. Tools not listed fall back to defaultToolCharLimit.
var toolCharLimits = map[string]int{
	"read_file":  50000,
	"shell":      30000,
	"grep":       20000,
	"glob":       20000,
	"edit_file":  10000,
	"write_file": 1000,
	"list_dir":   10000,
}

var toolTruncationModes = map[string]TruncationMode{
	"read_file": TruncateHeadTail,
	"shell":     TruncateHeadTail,
	"grep":      TruncateTail,
	"glob":      TruncateTail,
}

// Line limits applied after character truncation, for tools whose output
// is line-oriented.
var toolLineLimits = map[string]int{
	"shell": 256,
	"grep":  200,
	"glob":  500,
}

const defaultToolCharLimit = 30000

// TruncateOutput cuts output to maxChars using the given mode, inserting a
// marker so the model knows content was removed.
func TruncateOutput(output string, maxChars int, mode TruncationMode) string {
	if len(output) <= maxChars {
		return output
	}
	removed := len(output) - maxChars

	if mode == TruncateTail {
		return fmt.Sprintf("[WARNING: Tool output was truncated. First %d characters were removed.]\n\n", removed) +
			output[len(output)-maxChars:]
	}

	half := maxChars / 2
	return output[:half] +
		fmt.Sprintf("\n\n[WARNING: Tool output was truncated. %d characters were removed from the middle. "+
			"Re-run the tool with more targeted parameters if you need the removed parts.]\n\n", removed) +
		output[len(output)-half:]
}

// TruncateLines cuts output to maxLines using a head/tail split.
func TruncateLines(output string, maxLines int) string {
	lines := strings.Split(output, "\n")
	if len(lines) <= maxLines {
		return output
	}

	head := maxLines / 2
	tail := maxLines - head
	omitted := len(lines) - head - tail

	return strings.Join(lines[:head], "\n") +
		fmt.Sprintf("\n[... %d lines omitted ...]\n", omitted) +
		strings.Join(lines[len(lines)-tail:], "\n")
}

// TruncateToolOutput applies the character stage then the line stage for
// the named tool. Character truncation bounds pathological outputs; line
// truncation keeps the result readable.
func TruncateToolOutput(output, toolName string) string {
	maxChars, ok := toolCharLimits[toolName]
	if !ok {
		maxChars = defaultToolCharLimit
	}
	mode, ok := toolTruncationModes[toolName]
	if !ok {
		mode = TruncateHeadTail
	}
	result := TruncateOutput(output, maxChars, mode)

	if maxLines, ok := toolLineLimits[toolName]; ok {
		result = TruncateLines(result, maxLines)
	}
	return result
}
