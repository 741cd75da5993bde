package gemini

import (
	"encoding/json"
)

// GenerateContentRequest is the body of generateContent and
// streamGenerateContent.
type GenerateContentRequest struct {
	SystemInstruction *Content          `json:"systemInstruction,omitempty"`
	Contents          []Content         `json:"contents"`
	Tools             Tools             `json:"tools,omitempty"`
	ToolConfig        *ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig  *GenerationConfig `json:"generationConfig,omitempty"`
}

// UnmarshalJSON accepts both camelCase and snake_case top-level keys.
func (r *GenerateContentRequest) UnmarshalJSON(data []byte) error {
	type plain GenerateContentRequest
	var aux struct {
		plain
		SystemInstructionAlias *Content          `json:"system_instruction"`
		ToolConfigAlias        *ToolConfig       `json:"tool_config"`
		GenerationConfigAlias  *GenerationConfig `json:"generation_config"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	out := GenerateContentRequest(aux.plain)
	if out.SystemInstruction == nil {
		out.SystemInstruction = aux.SystemInstructionAlias
	}
	if out.ToolConfig == nil {
		out.ToolConfig = aux.ToolConfigAlias
	}
	if out.GenerationConfig == nil {
		out.GenerationConfig = aux.GenerationConfigAlias
	}
	*r = out
	return nil
}

// Clone returns a copy whose conversation can grow without touching r.
// Tool declarations and configs are shared.
func (r *GenerateContentRequest) Clone() *GenerateContentRequest {
	if r == nil {
		return nil
	}
	out := *r
	if r.Contents != nil {
		out.Contents = make([]Content, len(r.Contents))
		for i, c := range r.Contents {
			out.Contents[i] = c.clone()
		}
	}
	if r.SystemInstruction != nil {
		si := r.SystemInstruction.clone()
		out.SystemInstruction = &si
	}
	return &out
}

// FunctionCallingMode controls whether the model may or must call functions.
type FunctionCallingMode string

const (
	FunctionCallingModeUnspecified FunctionCallingMode = "MODE_UNSPECIFIED"
	FunctionCallingModeAuto        FunctionCallingMode = "AUTO"
	FunctionCallingModeAny         FunctionCallingMode = "ANY"
	FunctionCallingModeNone        FunctionCallingMode = "NONE"
)

// ToolConfig is the tool-invocation policy for a request.
type ToolConfig struct {
	FunctionCallingConfig *FunctionCallingConfig `json:"functionCallingConfig,omitempty"`
}

type FunctionCallingConfig struct {
	Mode                 FunctionCallingMode `json:"mode,omitempty"`
	AllowedFunctionNames []string            `json:"allowedFunctionNames,omitempty"`
}

// ThinkingConfig enables and budgets model reasoning.
type ThinkingConfig struct {
	ThinkingBudget  *int  `json:"thinkingBudget,omitempty"`
	IncludeThoughts *bool `json:"includeThoughts,omitempty"`
}

// GenerationConfig holds sampling parameters and output constraints.
// Nil fields are omitted and take the service defaults.
type GenerationConfig struct {
	StopSequences              []string        `json:"stopSequences,omitempty"`
	ResponseMimeType           string          `json:"responseMimeType,omitempty"`
	ResponseSchema             json.RawMessage `json:"responseSchema,omitempty"`
	ResponseModalities         []string        `json:"responseModalities,omitempty"`
	CandidateCount             *int            `json:"candidateCount,omitempty"`
	MaxOutputTokens            *int            `json:"maxOutputTokens,omitempty"`
	Temperature                *float64        `json:"temperature,omitempty"`
	TopP                       *float64        `json:"topP,omitempty"`
	TopK                       *int            `json:"topK,omitempty"`
	Seed                       *int64          `json:"seed,omitempty"`
	PresencePenalty            *float64        `json:"presencePenalty,omitempty"`
	FrequencyPenalty           *float64        `json:"frequencyPenalty,omitempty"`
	ResponseLogprobs           *bool           `json:"responseLogprobs,omitempty"`
	Logprobs                   *int            `json:"logprobs,omitempty"`
	EnableEnhancedCivicAnswers *bool           `json:"enableEnhancedCivicAnswers,omitempty"`
	SpeechConfig               json.RawMessage `json:"speechConfig,omitempty"`
	ThinkingConfig             *ThinkingConfig `json:"thinkingConfig,omitempty"`
	MediaResolution            string          `json:"mediaResolution,omitempty"`
}

// Ptr returns a pointer to v, for optional config fields.
func Ptr[T any](v T) *T { return &v }
