package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

// AnthropicProvider calls the Anthropic Messages API through the official SDK.
// The SDK's own retries are disabled; Transport owns the retry policy.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider builds a provider. httpClient may be nil.
func NewAnthropicProvider(apiKey, apiBase, defaultModel string, extraHeaders map[string]string, httpClient *http.Client) *AnthropicProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if base := strings.TrimSpace(apiBase); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	for k, v := range extraHeaders {
		opts = append(opts, option.WithHeader(k, v))
	}
	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: defaultModel,
	}
}

func (p *AnthropicProvider) DefaultModel() string { return p.defaultModel }

// Chat implements schema.LLMProvider.
func (p *AnthropicProvider) Chat(ctx context.Context, messages schema.Log, opts schema.ChatOptions) (schema.LLMResponse, error) {
	model := opts.Model
	if model == "" {
		model = p.defaultModel
	}
	model = strings.TrimPrefix(model, "anthropic/")

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	system, converted := convertMessagesToAnthropic(messages)
	if len(converted) == 0 {
		return schema.LLMResponse{}, errors.New("anthropic: no user or assistant messages to send")
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    converted,
		Temperature: anthropic.Float(opts.Temperature),
	}
	if system != "" {
		req.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := p.client.Messages.New(ctx, req)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return schema.LLMResponse{}, &HTTPError{StatusCode: apiErr.StatusCode, Body: apiErr.Error()}
		}
		return schema.LLMResponse{}, fmt.Errorf("anthropic: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			content.WriteString(text.Text)
		}
	}

	finish := "stop"
	if sr := string(msg.StopReason); sr != "" && sr != "end_turn" {
		finish = sr
	}

	in, out := int(msg.Usage.InputTokens), int(msg.Usage.OutputTokens)
	return schema.LLMResponse{
		Content:      content.String(),
		FinishReason: finish,
		Usage: map[string]int{
			"prompt_tokens":     in,
			"completion_tokens": out,
			"total_tokens":      in + out,
		},
	}, nil
}

// convertMessagesToAnthropic splits system and developer text into the system
// prompt and converts the rest. Tool traffic is rendered as text because no
// tools are declared on the request. Consecutive messages with the same role
// are merged into one turn.
func convertMessagesToAnthropic(messages schema.Log) (string, []anthropic.MessageParam) {
	var system []string
	var out []anthropic.MessageParam

	add := func(role anthropic.MessageParamRole, text string) {
		if strings.TrimSpace(text) == "" {
			return
		}
		block := anthropic.NewTextBlock(text)
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Content = append(out[n-1].Content, block)
			return
		}
		if role == anthropic.MessageParamRoleUser {
			out = append(out, anthropic.NewUserMessage(block))
		} else {
			out = append(out, anthropic.NewAssistantMessage(block))
		}
	}

	for _, m := range messages {
		switch m.Kind() {
		case schema.KindSystem, schema.KindDeveloper:
			if s := strings.TrimSpace(m.Content); s != "" {
				system = append(system, s)
			}
		case schema.KindUser:
			add(anthropic.MessageParamRoleUser, m.Content)
		case schema.KindToolResult:
			add(anthropic.MessageParamRoleUser, fmt.Sprintf("[tool result %s] %s", m.Name, m.Content))
		case schema.KindToolRequest:
			add(anthropic.MessageParamRoleAssistant, m.Text())
		default:
			add(anthropic.MessageParamRoleAssistant, m.Content)
		}
	}
	return strings.Join(system, "\n\n"), out
}
