package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleDeveloper Role = "developer"
	RoleTool      Role = "tool"
)

// ReasoningMarker prefixes assistant content that carries internal reasoning
// rather than an answer. Such messages never count as a completion.
const ReasoningMarker = "<think>"

// Kind is the closed set of message shapes the engine dispatches on.
type Kind uint8

const (
	KindUser Kind = iota
	KindCompletion
	KindReasoning
	KindToolRequest
	KindToolResult
	KindSystem
	KindDeveloper
)

func (k Kind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindCompletion:
		return "completion"
	case KindReasoning:
		return "reasoning"
	case KindToolRequest:
		return "tool_request"
	case KindToolResult:
		return "tool_result"
	case KindSystem:
		return "system"
	case KindDeveloper:
		return "developer"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

var (
	ErrUnknownRole      = errors.New("unknown role")
	ErrMisplacedCalls   = errors.New("tool calls are only valid on assistant messages")
	ErrCallsWithContent = errors.New("tool request must not carry content")
	ErrMissingCallID    = errors.New("tool result requires a tool_call_id")
	ErrMisplacedCallID  = errors.New("tool_call_id is only valid on tool messages")
)

// ToolCall represents one function call in an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToWireMap serialises a ToolCall into the OpenAI wire-format map.
func (tc ToolCall) ToWireMap() map[string]any {
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": tc.ArgumentsJSON(),
		},
	}
}

// ArgumentsJSON returns the arguments as a JSON object string.
func (tc ToolCall) ArgumentsJSON() string {
	if len(tc.Arguments) == 0 {
		return "{}"
	}
	b, err := json.Marshal(tc.Arguments)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Message is one entry in a conversation log. Messages are values: code that
// rewrites a log builds new slices and never edits a message in place.
//
// Content is empty when absent. ToolCalls is set only on assistant messages
// that request tool execution; ToolCallID only on tool results.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
	Name       string
}

func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func NewDeveloperMessage(content string) Message {
	return Message{Role: RoleDeveloper, Content: content}
}

func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewToolRequestMessage builds an assistant message that asks for the given
// calls to be executed.
func NewToolRequestMessage(calls ...ToolCall) Message {
	out := make([]ToolCall, len(calls))
	copy(out, calls)
	return Message{Role: RoleAssistant, ToolCalls: out}
}

func NewToolResultMessage(toolCallID, toolName, result string) Message {
	return Message{
		Role:       RoleTool,
		Content:    result,
		ToolCallID: toolCallID,
		Name:       toolName,
	}
}

// Validate checks the role-specific shape of m.
func (m Message) Validate() error {
	switch m.Role {
	case RoleUser, RoleSystem, RoleDeveloper:
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("%s message: %w", m.Role, ErrMisplacedCalls)
		}
	case RoleAssistant:
		if len(m.ToolCalls) > 0 && m.Content != "" {
			return ErrCallsWithContent
		}
	case RoleTool:
		if len(m.ToolCalls) > 0 {
			return fmt.Errorf("tool message: %w", ErrMisplacedCalls)
		}
		if m.ToolCallID == "" {
			return ErrMissingCallID
		}
		return nil
	default:
		return fmt.Errorf("%w %q", ErrUnknownRole, m.Role)
	}
	if m.ToolCallID != "" {
		return fmt.Errorf("%s message: %w", m.Role, ErrMisplacedCallID)
	}
	return nil
}

// Kind classifies m. An assistant message with no calls and no content counts
// as reasoning: it carries nothing a reader would treat as an answer.
func (m Message) Kind() Kind {
	switch m.Role {
	case RoleUser:
		return KindUser
	case RoleSystem:
		return KindSystem
	case RoleDeveloper:
		return KindDeveloper
	case RoleTool:
		return KindToolResult
	}
	if len(m.ToolCalls) > 0 {
		return KindToolRequest
	}
	if m.Content == "" || strings.HasPrefix(strings.TrimSpace(m.Content), ReasoningMarker) {
		return KindReasoning
	}
	return KindCompletion
}

// IsCompletion reports whether m is a substantive assistant answer.
func (m Message) IsCompletion() bool { return m.Kind() == KindCompletion }

// IsToolRequest reports whether m asks for tool execution.
func (m Message) IsToolRequest() bool { return m.Kind() == KindToolRequest }

// CallIDs returns the IDs of every call the message requests or answers.
func (m Message) CallIDs() []string {
	if m.Role == RoleTool {
		return []string{m.ToolCallID}
	}
	ids := make([]string, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		ids = append(ids, tc.ID)
	}
	return ids
}

// Text returns every piece of text the message carries: its content followed
// by each tool call's name and JSON arguments.
func (m Message) Text() string {
	if len(m.ToolCalls) == 0 {
		return m.Content
	}
	var b strings.Builder
	b.WriteString(m.Content)
	for _, tc := range m.ToolCalls {
		b.WriteString(tc.Name)
		b.WriteString(tc.ArgumentsJSON())
	}
	return b.String()
}

// Equal reports whether a and b are the same value.
func (m Message) Equal(o Message) bool {
	if m.Role != o.Role || m.Content != o.Content || m.ToolCallID != o.ToolCallID || m.Name != o.Name {
		return false
	}
	if len(m.ToolCalls) != len(o.ToolCalls) {
		return false
	}
	for i := range m.ToolCalls {
		a, b := m.ToolCalls[i], o.ToolCalls[i]
		if a.ID != b.ID || a.Name != b.Name || a.ArgumentsJSON() != b.ArgumentsJSON() {
			return false
		}
	}
	return true
}
