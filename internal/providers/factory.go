package providers

import (
	"os"
	"time"

	"github.com/crystaldolphin/ctxbudget/internal/schema"
)

const defaultRequestTimeout = 120 * time.Second

// Params are the raw values needed to construct any schema.LLMProvider.
// Extracted from config.Config by the caller to avoid an import cycle.
type Params struct {
	APIKey       string
	APIBase      string
	ExtraHeaders map[string]string
	DefaultModel string
	ProviderName string // registry name, e.g. "openrouter", "anthropic"
	MaxRetries   int    // Transport retries; 0 selects the default, <0 disables
	Timeout      time.Duration
}

// Spec resolves the registry entry for p: explicit name first, then gateway
// detection, then the model name.
func (p Params) Spec() *ProviderSpec {
	if p.ProviderName != "" {
		if s := FindByName(p.ProviderName); s != nil {
			return s
		}
	}
	if s := FindGateway("", p.APIKey, p.APIBase); s != nil {
		return s
	}
	return FindByModel(p.DefaultModel)
}

// ResolvedAPIKey returns the configured key or, failing that, the value of
// the provider's conventional environment variable.
func (p Params) ResolvedAPIKey() string {
	if p.APIKey != "" {
		return p.APIKey
	}
	if s := p.Spec(); s != nil && s.EnvKey != "" {
		return os.Getenv(s.EnvKey)
	}
	return ""
}

// New creates the appropriate schema.LLMProvider for the given params.
//
//   - providers marked Native (Anthropic) → AnthropicProvider via the SDK
//   - everything else                     → OpenAIProvider over HTTP
func New(p Params) schema.LLMProvider {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	client := NewHTTPClient(timeout, p.MaxRetries)
	key := p.ResolvedAPIKey()

	if s := p.Spec(); s != nil && s.Native {
		return NewAnthropicProvider(key, p.APIBase, p.DefaultModel, p.ExtraHeaders, client)
	}
	return NewOpenAIProvider(key, p.APIBase, p.DefaultModel, p.ProviderName, p.ExtraHeaders, client)
}
