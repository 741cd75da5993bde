package gemini

import "strings"

// GenerateContentResponse is one full reply, or one chunk of a stream.
// An empty Candidates list means the prompt itself was blocked; see
// PromptFeedback.
type GenerateContentResponse struct {
	Candidates     []Candidate     `json:"candidates,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	ResponseID     string          `json:"responseId,omitempty"`
}

// FirstPart returns the first part of the first candidate.
func (r *GenerateContentResponse) FirstPart() (Part, bool) {
	if r == nil || len(r.Candidates) == 0 || len(r.Candidates[0].Content.Parts) == 0 {
		return Part{}, false
	}
	return r.Candidates[0].Content.Parts[0], true
}

// Text concatenates the non-thought text parts of the first candidate.
func (r *GenerateContentResponse) Text() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	return r.Candidates[0].Content.Text()
}

// Thoughts concatenates the thought parts of the first candidate.
func (r *GenerateContentResponse) Thoughts() string {
	if r == nil || len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		if t, ok := p.Data.(Text); ok && p.Thought {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// FunctionCalls lists every function call in the first candidate.
func (r *GenerateContentResponse) FunctionCalls() []FunctionCall {
	if r == nil || len(r.Candidates) == 0 {
		return nil
	}
	var calls []FunctionCall
	for _, p := range r.Candidates[0].Content.Parts {
		if fc, ok := p.Data.(FunctionCall); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

// FinishReason is why a candidate stopped generating.
type FinishReason string

const (
	FinishReasonUnspecified           FinishReason = "FINISH_REASON_UNSPECIFIED"
	FinishReasonStop                  FinishReason = "STOP"
	FinishReasonMaxTokens             FinishReason = "MAX_TOKENS"
	FinishReasonSafety                FinishReason = "SAFETY"
	FinishReasonRecitation            FinishReason = "RECITATION"
	FinishReasonLanguage              FinishReason = "LANGUAGE"
	FinishReasonBlocklist             FinishReason = "BLOCKLIST"
	FinishReasonProhibitedContent     FinishReason = "PROHIBITED_CONTENT"
	FinishReasonSPII                  FinishReason = "SPII"
	FinishReasonMalformedFunctionCall FinishReason = "MALFORMED_FUNCTION_CALL"
	FinishReasonImageSafety           FinishReason = "IMAGE_SAFETY"
	FinishReasonOther                 FinishReason = "OTHER"
)

// Candidate is one generated alternative.
type Candidate struct {
	Content               Content                `json:"content"`
	FinishReason          FinishReason           `json:"finishReason,omitempty"`
	SafetyRatings         []SafetyRating         `json:"safetyRatings,omitempty"`
	CitationMetadata      *CitationMetadata      `json:"citationMetadata,omitempty"`
	GroundingAttributions []GroundingAttribution `json:"groundingAttributions,omitempty"`
	GroundingMetadata     *GroundingMetadata     `json:"groundingMetadata,omitempty"`
	AvgLogprobs           *float64               `json:"avgLogprobs,omitempty"`
	Index                 *int                   `json:"index,omitempty"`
}

// SafetyRating is the probability of harm for one category.
type SafetyRating struct {
	Category    string `json:"category"`
	Probability string `json:"probability"`
	Blocked     bool   `json:"blocked,omitempty"`
}

// PromptFeedback is set when the prompt was blocked.
type PromptFeedback struct {
	BlockReason   string         `json:"blockReason,omitempty"`
	SafetyRatings []SafetyRating `json:"safetyRatings,omitempty"`
}

type CitationMetadata struct {
	CitationSources []CitationSource `json:"citationSources,omitempty"`
}

type CitationSource struct {
	StartIndex *int   `json:"startIndex,omitempty"`
	EndIndex   *int   `json:"endIndex,omitempty"`
	URI        string `json:"uri,omitempty"`
	License    string `json:"license,omitempty"`
}

// GroundingAttribution ties a span of the answer to a retrieved source.
type GroundingAttribution struct {
	SourceID *AttributionSourceID `json:"sourceId,omitempty"`
	Content  *Content             `json:"content,omitempty"`
}

type AttributionSourceID struct {
	GroundingPassage *GroundingPassageID `json:"groundingPassage,omitempty"`
}

type GroundingPassageID struct {
	PassageID string `json:"passageId,omitempty"`
	PartIndex int    `json:"partIndex,omitempty"`
}

// GroundingMetadata is returned when search grounding was used.
type GroundingMetadata struct {
	WebSearchQueries  []string           `json:"webSearchQueries,omitempty"`
	SearchEntryPoint  *SearchEntryPoint  `json:"searchEntryPoint,omitempty"`
	GroundingChunks   []GroundingChunk   `json:"groundingChunks,omitempty"`
	GroundingSupports []GroundingSupport `json:"groundingSupports,omitempty"`
}

type SearchEntryPoint struct {
	RenderedContent string `json:"renderedContent,omitempty"`
	SDKBlob         string `json:"sdkBlob,omitempty"`
}

type GroundingChunk struct {
	Web *WebChunk `json:"web,omitempty"`
}

type WebChunk struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title,omitempty"`
}

type GroundingSupport struct {
	Segment               *Segment  `json:"segment,omitempty"`
	GroundingChunkIndices []int     `json:"groundingChunkIndices,omitempty"`
	ConfidenceScores      []float64 `json:"confidenceScores,omitempty"`
}

type Segment struct {
	PartIndex  int    `json:"partIndex,omitempty"`
	StartIndex int    `json:"startIndex,omitempty"`
	EndIndex   int    `json:"endIndex,omitempty"`
	Text       string `json:"text,omitempty"`
}

// UsageMetadata is the token accounting for a request.
type UsageMetadata struct {
	PromptTokenCount        int `json:"promptTokenCount,omitempty"`
	CachedContentTokenCount int `json:"cachedContentTokenCount,omitempty"`
	CandidatesTokenCount    int `json:"candidatesTokenCount,omitempty"`
	ToolUsePromptTokenCount int `json:"toolUsePromptTokenCount,omitempty"`
	ThoughtsTokenCount      int `json:"thoughtsTokenCount,omitempty"`
	TotalTokenCount         int `json:"totalTokenCount,omitempty"`
}

// Total returns TotalTokenCount, or the sum of the parts when the service
// left it unset.
func (u *UsageMetadata) Total() int {
	if u == nil {
		return 0
	}
	if u.TotalTokenCount > 0 {
		return u.TotalTokenCount
	}
	return u.PromptTokenCount + u.CandidatesTokenCount + u.ThoughtsTokenCount + u.ToolUsePromptTokenCount
}
