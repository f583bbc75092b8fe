package schema

import "strings"

// Model describes the model a conversation is sent to.
type Model struct {
	Name          string
	ContextTokens int
}

// NewModel returns a Model for name. A non-positive contextTokens is resolved
// from the family table.
func NewModel(name string, contextTokens int) Model {
	if contextTokens <= 0 {
		contextTokens = ContextWindowForModel(name)
	}
	return Model{Name: name, ContextTokens: contextTokens}
}

// DefaultContextWindow is used for models that match no known family.
const DefaultContextWindow = 128_000

// contextWindows maps model-name prefixes to context sizes in tokens. Longer
// prefixes are listed before the shorter ones they would otherwise shadow.
var contextWindows = []struct {
	prefix string
	tokens int
}{
	{"claude-", 200_000},
	{"gpt-4o", 128_000},
	{"gpt-4-turbo", 128_000},
	{"gpt-4-32k", 32_768},
	{"gpt-4.1", 1_047_576},
	{"gpt-4", 8_192},
	{"gpt-5", 400_000},
	{"o1-mini", 128_000},
	{"o1", 200_000},
	{"o3", 200_000},
	{"o4-mini", 200_000},
	{"deepseek-", 64_000},
	{"gemini-1.5-pro", 2_097_152},
	{"gemini-", 1_048_576},
	{"mistral-large", 128_000},
	{"mistral-small", 32_000},
	{"llama-3", 128_000},
	{"qwen", 131_072},
	{"kimi", 131_072},
}

// ContextWindowForModel returns the context window for a model name.
// Routing prefixes such as "anthropic/" or "openrouter/openai/" are ignored.
func ContextWindowForModel(name string) int {
	n := strings.ToLower(name)
	if i := strings.LastIndex(n, "/"); i >= 0 {
		n = n[i+1:]
	}
	for _, w := range contextWindows {
		if strings.HasPrefix(n, w.prefix) {
			return w.tokens
		}
	}
	return DefaultContextWindow
}
