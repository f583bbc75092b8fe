package summarizer

import (
	"fmt"
	"strings"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
	"github.com/crystaldolphin/ctxbudget/internal/shared/llmutils"
)

// SystemPrompt instructs the model how to condense history.
const SystemPrompt = `You are a context compaction agent. The transcript you receive is the older part of a conversation between a user and an AI assistant that used tools. It will be removed from the conversation and replaced by your summary. The user's own messages are kept separately, so do not repeat them.

Write a dense summary that lets the assistant continue the work without the original messages:

1. Decisions made and the reasons given for them
2. Facts learned from tool results: file paths, identifiers, values, error messages
3. Work completed and work still pending
4. Anything the assistant promised to do

Write plain prose or short bullet lists. Be specific. Never invent details that are not in the transcript. Reply with the summary only.`

// maxToolResultChars bounds each tool result in the transcript.
const maxToolResultChars = 2000

// BuildUserPrompt wraps the rendered transcript in the request text.
func BuildUserPrompt(transcript string) string {
	return "Summarize the following conversation history.\n\n<history>\n" +
		transcript +
		"\n</history>"
}

// FormatTranscript renders messages into labelled text lines. Tool requests
// become a one-line hint and long tool results are truncated.
func FormatTranscript(msgs schema.Log) string {
	var lines []string
	for _, m := range msgs {
		switch m.Kind() {
		case schema.KindToolRequest:
			line := "ASSISTANT [tools: " + llmutils.ToolHint(m.ToolCalls) + "]"
			if c := strings.TrimSpace(m.Content); c != "" {
				line += ": " + c
			}
			lines = append(lines, line)
		case schema.KindToolResult:
			lines = append(lines, fmt.Sprintf("TOOL %s: %s",
				llmutils.StringOrDefault(m.Name, m.ToolCallID),
				llmutils.Truncate(m.Content, maxToolResultChars)))
		default:
			content := strings.TrimSpace(m.Content)
			if content == "" {
				continue
			}
			lines = append(lines, fmt.Sprintf("%s: %s", strings.ToUpper(string(m.Role)), content))
		}
	}
	return strings.Join(lines, "\n")
}
