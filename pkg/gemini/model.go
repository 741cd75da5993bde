package gemini

import "strings"

const modelNamePrefix = "models/"

// Model is one entry of the model catalog.
type Model struct {
	Name string `json:"name"`
	// BaseModelID is Name without the "models/" prefix. It is filled in by
	// ListModels and is not part of the wire format.
	BaseModelID                string   `json:"-"`
	Version                    string   `json:"version,omitempty"`
	DisplayName                string   `json:"displayName,omitempty"`
	Description                string   `json:"description,omitempty"`
	InputTokenLimit            int      `json:"inputTokenLimit,omitempty"`
	OutputTokenLimit           int      `json:"outputTokenLimit,omitempty"`
	SupportedGenerationMethods []string `json:"supportedGenerationMethods,omitempty"`
	Thinking                   bool     `json:"thinking,omitempty"`
	Temperature                *float64 `json:"temperature,omitempty"`
	MaxTemperature             *float64 `json:"maxTemperature,omitempty"`
	TopP                       *float64 `json:"topP,omitempty"`
	TopK                       *int     `json:"topK,omitempty"`
}

// SupportsMethod reports whether the model lists method, e.g. "generateContent".
func (m Model) SupportsMethod(method string) bool {
	for _, s := range m.SupportedGenerationMethods {
		if s == method {
			return true
		}
	}
	return false
}

type listModelsResponse struct {
	Models        []Model `json:"models"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
}

// baseModelID strips the resource prefix from a model name.
func baseModelID(name string) string {
	return strings.TrimPrefix(name, modelNamePrefix)
}
