package schema

import "fmt"

// Log is an ordered conversation. Functions that rewrite a log return a new
// slice; the caller's backing array is never written to.
type Log []Message

// NewLog returns a Log holding a copy of msgs.
func NewLog(msgs ...Message) Log {
	out := make(Log, len(msgs))
	copy(out, msgs)
	return out
}

// AddUser appends a user message.
func (l *Log) AddUser(content string) {
	*l = append(*l, NewUserMessage(content))
}

// AddAssistant appends an assistant completion.
func (l *Log) AddAssistant(content string) {
	*l = append(*l, NewAssistantMessage(content))
}

// AddToolRequest appends an assistant message requesting calls.
func (l *Log) AddToolRequest(calls ...ToolCall) {
	*l = append(*l, NewToolRequestMessage(calls...))
}

// AddToolResult appends a tool-result message.
func (l *Log) AddToolResult(toolCallID, toolName, result string) {
	*l = append(*l, NewToolResultMessage(toolCallID, toolName, result))
}

// Clone returns a copy of l with an independent backing slice.
func (l Log) Clone() Log {
	return NewLog(l...)
}

// Equal reports whether both logs hold the same messages in the same order.
func (l Log) Equal(o Log) bool {
	if len(l) != len(o) {
		return false
	}
	for i := range l {
		if !l[i].Equal(o[i]) {
			return false
		}
	}
	return true
}

// Validate checks every message's shape.
func (l Log) Validate() error {
	for i, m := range l {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	return nil
}

// Users returns the user messages of l in order.
func (l Log) Users() Log {
	var out Log
	for _, m := range l {
		if m.Role == RoleUser {
			out = append(out, m)
		}
	}
	return out
}

// Bytes returns the total byte length of the text the log carries.
func (l Log) Bytes() int {
	n := 0
	for _, m := range l {
		n += len(m.Text())
	}
	return n
}
