package providers

import "strings"

// ModelOverride applies extra parameters for a specific model pattern.
type ModelOverride struct {
	Pattern   string         // case-insensitive substring to match in model name
	Overrides map[string]any // parameters to merge into the request body
}

// ProviderSpec is the metadata record for one LLM provider.
type ProviderSpec struct {
	Name        string   // config field name, e.g. "dashscope"
	Keywords    []string // model-name keywords for matching (lowercase)
	EnvKey      string   // env var consulted when no api key is configured
	DisplayName string   // shown in `ctxbudget status`

	// RoutePrefix is the "<prefix>/" some model names carry for routing.
	RoutePrefix string

	// Gateway / local detection
	IsGateway           bool   // routes any model (OpenRouter, AiHubMix, …)
	IsLocal             bool   // local deployment (vLLM, Ollama)
	DetectByKeyPrefix   string // match api_key prefix to identify gateway
	DetectByBaseKeyword string // match substring in api_base URL
	DefaultAPIBase      string // fallback base URL when none is configured

	// StripModelPrefix strips "provider/" before using the model name.
	StripModelPrefix bool

	ModelOverrides []ModelOverride

	// Native selects the vendor SDK instead of the OpenAI-compatible client.
	Native bool

	// EmbeddingModel is used when the config names none.
	EmbeddingModel string
}

// Label returns the display name, defaulting to Title-cased Name.
func (s ProviderSpec) Label() string {
	if s.DisplayName != "" {
		return s.DisplayName
	}
	return strings.ToUpper(s.Name[:1]) + s.Name[1:]
}

// Providers is the registry. Order = match priority.
var Providers = []ProviderSpec{
	{
		Name:        "custom",
		DisplayName: "Custom",
	},
	{
		Name:                "openrouter",
		Keywords:            []string{"openrouter"},
		EnvKey:              "OPENROUTER_API_KEY",
		DisplayName:         "OpenRouter",
		RoutePrefix:         "openrouter",
		IsGateway:           true,
		DetectByKeyPrefix:   "sk-or-",
		DetectByBaseKeyword: "openrouter",
		DefaultAPIBase:      "https://openrouter.ai/api/v1",
	},
	{
		Name:                "aihubmix",
		Keywords:            []string{"aihubmix"},
		EnvKey:              "OPENAI_API_KEY",
		DisplayName:         "AiHubMix",
		RoutePrefix:         "openai",
		IsGateway:           true,
		DetectByBaseKeyword: "aihubmix",
		DefaultAPIBase:      "https://aihubmix.com/v1",
		StripModelPrefix:    true,
	},
	{
		Name:        "anthropic",
		Keywords:    []string{"anthropic", "claude"},
		EnvKey:      "ANTHROPIC_API_KEY",
		DisplayName: "Anthropic",
		Native:      true,
	},
	{
		Name:           "openai",
		Keywords:       []string{"openai", "gpt"},
		EnvKey:         "OPENAI_API_KEY",
		DisplayName:    "OpenAI",
		EmbeddingModel: "text-embedding-3-small",
	},
	{
		Name:           "deepseek",
		Keywords:       []string{"deepseek"},
		EnvKey:         "DEEPSEEK_API_KEY",
		DisplayName:    "DeepSeek",
		RoutePrefix:    "deepseek",
		DefaultAPIBase: "https://api.deepseek.com/v1",
	},
	{
		Name:           "gemini",
		Keywords:       []string{"gemini"},
		EnvKey:         "GEMINI_API_KEY",
		DisplayName:    "Gemini",
		RoutePrefix:    "gemini",
		DefaultAPIBase: "https://generativelanguage.googleapis.com/v1beta/openai",
		EmbeddingModel: "text-embedding-004",
	},
	{
		Name:           "dashscope",
		Keywords:       []string{"qwen", "dashscope"},
		EnvKey:         "DASHSCOPE_API_KEY",
		DisplayName:    "DashScope",
		RoutePrefix:    "dashscope",
		DefaultAPIBase: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	},
	{
		Name:           "moonshot",
		Keywords:       []string{"moonshot", "kimi"},
		EnvKey:         "MOONSHOT_API_KEY",
		DisplayName:    "Moonshot",
		RoutePrefix:    "moonshot",
		DefaultAPIBase: "https://api.moonshot.ai/v1",
		ModelOverrides: []ModelOverride{
			{Pattern: "kimi-k2.5", Overrides: map[string]any{"temperature": 1.0}},
		},
	},
	{
		Name:           "groq",
		Keywords:       []string{"groq"},
		EnvKey:         "GROQ_API_KEY",
		DisplayName:    "Groq",
		RoutePrefix:    "groq",
		DefaultAPIBase: "https://api.groq.com/openai/v1",
	},
	{
		Name:                "vllm",
		Keywords:            []string{"vllm"},
		DisplayName:         "vLLM/Local",
		RoutePrefix:         "hosted_vllm",
		IsLocal:             true,
		DetectByBaseKeyword: ":8000",
	},
	{
		Name:                "ollama",
		Keywords:            []string{"ollama"},
		DisplayName:         "Ollama",
		RoutePrefix:         "ollama",
		IsLocal:             true,
		DetectByBaseKeyword: ":11434",
		DefaultAPIBase:      "http://localhost:11434/v1",
		EmbeddingModel:      "nomic-embed-text",
	},
}

// FindByModel matches a standard provider by model-name keyword (case-insensitive).
// Gateways and local providers are skipped; those are matched by api_key/api_base.
func FindByModel(model string) *ProviderSpec {
	modelLower := strings.ToLower(model)
	modelNorm := strings.ReplaceAll(modelLower, "-", "_")
	modelPrefix, _, _ := strings.Cut(modelLower, "/")
	normalizedPrefix := strings.ReplaceAll(modelPrefix, "-", "_")

	var std []int
	for i := range Providers {
		if !Providers[i].IsGateway && !Providers[i].IsLocal {
			std = append(std, i)
		}
	}

	// Prefer explicit provider prefix.
	if strings.Contains(modelLower, "/") {
		for _, i := range std {
			if normalizedPrefix == Providers[i].Name {
				return &Providers[i]
			}
		}
	}

	for _, i := range std {
		spec := &Providers[i]
		for _, kw := range spec.Keywords {
			kw = strings.ToLower(kw)
			kwNorm := strings.ReplaceAll(kw, "-", "_")
			if strings.Contains(modelLower, kw) || strings.Contains(modelNorm, kwNorm) {
				return spec
			}
		}
	}
	return nil
}

// FindGateway detects the gateway or local provider.
// Priority: (1) explicit provider name, (2) api_key prefix, (3) api_base keyword.
func FindGateway(providerName, apiKey, apiBase string) *ProviderSpec {
	if providerName != "" {
		if s := FindByName(providerName); s != nil && (s.IsGateway || s.IsLocal) {
			return s
		}
	}
	for i := range Providers {
		spec := &Providers[i]
		if spec.DetectByKeyPrefix != "" && strings.HasPrefix(apiKey, spec.DetectByKeyPrefix) {
			return spec
		}
		if spec.DetectByBaseKeyword != "" && strings.Contains(apiBase, spec.DetectByBaseKeyword) {
			return spec
		}
	}
	return nil
}

// FindByName returns the ProviderSpec whose Name equals name.
func FindByName(name string) *ProviderSpec {
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}
