package compaction

import (
	"github.com/zeebo/blake3"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// extractIdentity removes the first system message matching the identity
// pattern. The returned log is a fresh slice.
func (e *Engine) extractIdentity(log schema.Log) (schema.Message, bool, schema.Log) {
	for i, m := range log {
		if m.Role != schema.RoleSystem || !e.cfg.IdentityPattern.MatchString(m.Content) {
			continue
		}
		rest := make(schema.Log, 0, len(log)-1)
		rest = append(rest, log[:i]...)
		rest = append(rest, log[i+1:]...)
		return m, true, rest
	}
	return schema.Message{}, false, log.Clone()
}

// filter separates user messages, which are kept verbatim, from the messages
// that go to the summarizer. Reasoning-only completions and noise tool
// traffic are dropped.
func (e *Engine) filter(older schema.Log) (users, rest schema.Log) {
	noise := make(map[string]bool)
	for _, m := range older {
		switch m.Kind() {
		case schema.KindUser:
			users = append(users, m)
		case schema.KindReasoning:
			// dropped
		case schema.KindToolRequest:
			kept := make([]schema.ToolCall, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				if e.cfg.isNoise(tc.Name) {
					noise[tc.ID] = true
					continue
				}
				kept = append(kept, tc)
			}
			switch {
			case len(kept) == len(m.ToolCalls):
				rest = append(rest, m)
			case len(kept) > 0:
				rest = append(rest, schema.NewToolRequestMessage(kept...))
			}
		case schema.KindToolResult:
			if noise[m.ToolCallID] || e.cfg.isNoise(m.Name) {
				continue
			}
			rest = append(rest, m)
		default:
			rest = append(rest, m)
		}
	}
	return users, rest
}

// echoes reports whether m repeats a message in any of logs, compared by
// role, name and content. Only the summary is checked; every other message
// in a reassembled log comes from the input and is kept as it was.
func echoes(m schema.Message, logs ...schema.Log) bool {
	key := fingerprint(m)
	for _, l := range logs {
		for _, o := range l {
			if o.Role == m.Role && fingerprint(o) == key {
				return true
			}
		}
	}
	return false
}

func fingerprint(m schema.Message) [32]byte {
	b := make([]byte, 0, len(m.Role)+len(m.Name)+len(m.Content)+2)
	b = append(b, m.Role...)
	b = append(b, 0)
	b = append(b, m.Name...)
	b = append(b, 0)
	b = append(b, m.Content...)
	return blake3.Sum256(b)
}
