package geminitest

import (
	"encoding/json"
	"net/http"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

// JSONReply serves v encoded as JSON with status 200.
func JSONReply(v any) Reply {
	body, err := json.Marshal(v)
	if err != nil {
		panic("geminitest: encode reply: " + err.Error())
	}
	return Reply{Status: http.StatusOK, Body: string(body)}
}

// ResponseReply serves a full response.
func ResponseReply(resp *gemini.GenerateContentResponse) Reply {
	return JSONReply(resp)
}

// TextReply serves a single model turn containing text.
func TextReply(text string) Reply {
	return ResponseReply(TextResponse(text))
}

// FunctionCallReply serves a single model turn asking for one function call.
func FunctionCallReply(name string, args json.RawMessage) Reply {
	return ResponseReply(PartsResponse(gemini.NewFunctionCallPart(name, args)))
}

// ErrorReply serves a Google style error envelope.
func ErrorReply(status int, message string) Reply {
	body, _ := json.Marshal(apiError(status, message, http.StatusText(status)))
	return Reply{Status: status, Body: string(body)}
}

// TextResponse builds a response with one text candidate that finished with STOP.
func TextResponse(text string) *gemini.GenerateContentResponse {
	return PartsResponse(gemini.NewTextPart(text))
}

// PartsResponse builds a response with one model candidate holding parts.
func PartsResponse(parts ...gemini.Part) *gemini.GenerateContentResponse {
	return &gemini.GenerateContentResponse{
		Candidates: []gemini.Candidate{{
			Content:      gemini.NewContent(gemini.RoleModel, parts...),
			FinishReason: gemini.FinishReasonStop,
			Index:        gemini.Ptr(0),
		}},
		UsageMetadata: &gemini.UsageMetadata{PromptTokenCount: 4, CandidatesTokenCount: 1, TotalTokenCount: 5},
		ModelVersion:  "gemini-test-001",
	}
}

// EventStream serves each response as one SSE message event.
func EventStream(responses ...*gemini.GenerateContentResponse) StreamReply {
	events := make([]string, 0, len(responses))
	for _, r := range responses {
		body, err := json.Marshal(r)
		if err != nil {
			panic("geminitest: encode stream event: " + err.Error())
		}
		events = append(events, string(body))
	}
	return StreamReply{Status: http.StatusOK, Events: events}
}
