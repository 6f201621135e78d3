// Package provider adapts the daemon's chat-completion call to
// DeepSeek-compatible and OpenAI-compatible HTTP backends, picked by
// model-name prefix.
package provider

import "sort"

// Spec is the fixed per-model request-shaping metadata from spec.md §4.F.
type Spec struct {
	APIModel              string
	MaxOutputTokens       int
	IsReasoning           bool
	SupportsSystemPrompt  bool
	Temperature           *float64
	ReasoningEffort       string
	UseMaxCompletionToken bool
	BaseURL               string
}

var temperatureZero = 0.0

// models is the fixed table of supported models. Keys are the model name
// as accepted in requests; lookup accepts only these names, so an
// unlisted gpt-* or deepseek-* name is an unknown model.
var models = map[string]Spec{
	"deepseek-chat": {
		APIModel:             "deepseek-chat",
		MaxOutputTokens:      8192,
		IsReasoning:          false,
		SupportsSystemPrompt: true,
		BaseURL:              "https://api.deepseek.com/v1",
	},
	"deepseek-reasoner": {
		APIModel:              "deepseek-reasoner",
		MaxOutputTokens:       64000,
		IsReasoning:           true,
		SupportsSystemPrompt:  false,
		Temperature:           &temperatureZero,
		UseMaxCompletionToken: true,
		BaseURL:               "https://api.deepseek.com/v1",
	},
	"gpt-5.2": {
		APIModel:             "gpt-5.2",
		MaxOutputTokens:      400000,
		IsReasoning:          true,
		SupportsSystemPrompt: true,
		ReasoningEffort:      "medium",
		BaseURL:              "https://api.openai.com/v1",
	},
	"gpt-5.2-pro": {
		APIModel:             "gpt-5.2-pro",
		MaxOutputTokens:      400000,
		IsReasoning:          true,
		SupportsSystemPrompt: true,
		ReasoningEffort:      "high",
		BaseURL:              "https://api.openai.com/v1",
	},
}

// Family identifies which adapter owns a model name.
type Family int

const (
	FamilyUnknown Family = iota
	FamilyDeepSeek
	FamilyOpenAI
)

func familyOf(modelName string) Family {
	switch {
	case hasPrefix(modelName, "deepseek-"):
		return FamilyDeepSeek
	case hasPrefix(modelName, "gpt-"):
		return FamilyOpenAI
	default:
		return FamilyUnknown
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// lookup returns the Spec for modelName, or false if the model is unknown.
func lookup(modelName string) (Spec, bool) {
	spec, ok := models[modelName]
	return spec, ok
}

// Exists reports whether modelName is in the fixed catalogue.
func Exists(modelName string) bool {
	_, ok := lookup(modelName)
	return ok
}

// ModelNames returns every catalogued model name, sorted.
func ModelNames() []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
