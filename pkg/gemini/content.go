package gemini

// --- Generative Language API content types ---
// Reference: https://ai.google.dev/api/caching#Content
//
// A Content is one turn of a conversation. Its parts are a closed set of
// variants; each part carries exactly one of them on the wire:
//
//	{"text": "..."}
//	{"inlineData": {"mimeType": "...", "data": "<base64>"}}
//	{"functionCall": {"name": "...", "args": {...}}}

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Role tags who produced a Content turn.
type Role string

const (
	RoleUser   Role = "user"
	RoleSystem Role = "system"
	RoleModel  Role = "model"
	RoleTool   Role = "tool" // only produced by the orchestrator for function responses
)

// Content is an ordered list of parts attributed to one role.
type Content struct {
	Parts []Part `json:"parts"`
	Role  Role   `json:"role,omitempty"`
}

// NewContent builds a turn from parts.
func NewContent(role Role, parts ...Part) Content {
	return Content{Role: role, Parts: parts}
}

// NewUserText builds a single-part user turn.
func NewUserText(text string) Content {
	return NewContent(RoleUser, NewTextPart(text))
}

// Text concatenates every non-thought text part of the turn.
func (c Content) Text() string {
	var sb strings.Builder
	for _, p := range c.Parts {
		if t, ok := p.Data.(Text); ok && !p.Thought {
			sb.WriteString(string(t))
		}
	}
	return sb.String()
}

// clone copies the parts slice; part payloads are immutable values and are shared.
func (c Content) clone() Content {
	out := Content{Role: c.Role}
	if c.Parts != nil {
		out.Parts = make([]Part, len(c.Parts))
		copy(out.Parts, c.Parts)
	}
	return out
}

// PartData is the payload of a Part. The set of implementations is closed.
type PartData interface {
	partKey() string
}

// Text is a plain text payload.
type Text string

// InlineData is a base64 encoded blob sent inline with the request.
type InlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

// Bytes decodes the base64 payload.
func (d InlineData) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(d.Data)
}

// FileData references a file uploaded through the Files API.
type FileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

// FunctionCall is the model asking the caller to run a declared function.
// Args is kept as raw JSON because its schema is only known at runtime.
type FunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// FunctionResponse carries a function result back to the model.
type FunctionResponse struct {
	Name     string                  `json:"name"`
	Response FunctionResponsePayload `json:"response"`
}

// FunctionResponsePayload wraps the handler output.
type FunctionResponsePayload struct {
	Content json.RawMessage `json:"content"`
}

// Language of generated code.
type Language string

const (
	LanguageUnspecified Language = "LANGUAGE_UNSPECIFIED"
	LanguagePython      Language = "PYTHON"
)

// ExecutableCode is code produced by the model for the code execution tool.
type ExecutableCode struct {
	Language Language `json:"language,omitempty"`
	Code     string   `json:"code"`
}

// Outcome of a code execution.
type Outcome string

const (
	OutcomeUnspecified      Outcome = "OUTCOME_UNSPECIFIED"
	OutcomeOK               Outcome = "OUTCOME_OK"
	OutcomeFailed           Outcome = "OUTCOME_FAILED"
	OutcomeDeadlineExceeded Outcome = "OUTCOME_DEADLINE_EXCEEDED"
)

// CodeExecutionResult is the result of running ExecutableCode.
type CodeExecutionResult struct {
	Outcome Outcome `json:"outcome,omitempty"`
	Output  string  `json:"output,omitempty"`
}

func (Text) partKey() string                { return "text" }
func (InlineData) partKey() string          { return "inlineData" }
func (FileData) partKey() string            { return "fileData" }
func (FunctionCall) partKey() string        { return "functionCall" }
func (FunctionResponse) partKey() string    { return "functionResponse" }
func (ExecutableCode) partKey() string      { return "executableCode" }
func (CodeExecutionResult) partKey() string { return "codeExecutionResult" }

// partVariant maps a wire key (and its snake_case alias) to a decoder.
type partVariant struct {
	key    string
	alias  string
	decode func(raw []byte) (PartData, error)
}

func decodeAs[T PartData](raw []byte) (PartData, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var partVariants = []partVariant{
	{key: "text", decode: decodeAs[Text]},
	{key: "inlineData", alias: "inline_data", decode: decodeAs[InlineData]},
	{key: "fileData", alias: "file_data", decode: decodeAs[FileData]},
	{key: "functionCall", alias: "function_call", decode: decodeAs[FunctionCall]},
	{key: "functionResponse", alias: "function_response", decode: decodeAs[FunctionResponse]},
	{key: "executableCode", alias: "executable_code", decode: decodeAs[ExecutableCode]},
	{key: "codeExecutionResult", alias: "code_execution_result", decode: decodeAs[CodeExecutionResult]},
}

// Part is the smallest unit of content. Data holds exactly one variant.
//
// Metadata is accepted when decoding but is never encoded.
type Part struct {
	Data     PartData
	Thought  bool
	Metadata json.RawMessage
}

func NewTextPart(text string) Part { return Part{Data: Text(text)} }

// NewInlineDataPart base64-encodes data.
func NewInlineDataPart(mimeType string, data []byte) Part {
	return Part{Data: InlineData{MimeType: mimeType, Data: base64.StdEncoding.EncodeToString(data)}}
}

func NewFileDataPart(mimeType, fileURI string) Part {
	return Part{Data: FileData{MimeType: mimeType, FileURI: fileURI}}
}

func NewFunctionCallPart(name string, args json.RawMessage) Part {
	return Part{Data: FunctionCall{Name: name, Args: args}}
}

// NewFunctionResponsePart wraps a function result. A nil content is stored as
// the JSON literal null, which is what it encodes to.
func NewFunctionResponsePart(name string, content json.RawMessage) Part {
	if content == nil {
		content = json.RawMessage("null")
	}
	return Part{Data: FunctionResponse{Name: name, Response: FunctionResponsePayload{Content: content}}}
}

func NewExecutableCodePart(language Language, code string) Part {
	return Part{Data: ExecutableCode{Language: language, Code: code}}
}

func NewCodeExecutionResultPart(outcome Outcome, output string) Part {
	return Part{Data: CodeExecutionResult{Outcome: outcome, Output: output}}
}

// MarshalJSON writes the single variant key plus "thought" when set.
func (p Part) MarshalJSON() ([]byte, error) {
	if p.Data == nil {
		return nil, fmt.Errorf("gemini: part has no data")
	}
	out := map[string]any{p.Data.partKey(): p.Data}
	if p.Thought {
		out["thought"] = true
	}
	return json.Marshal(out)
}

// UnmarshalJSON requires exactly one recognised variant key.
func (p *Part) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("gemini: invalid part JSON")
	}
	obj := gjson.ParseBytes(data)
	if !obj.IsObject() {
		return fmt.Errorf("gemini: part must be an object, got %s", obj.Type)
	}

	var (
		found   []string
		decoded PartData
	)
	for _, v := range partVariants {
		field := obj.Get(v.key)
		if !field.Exists() && v.alias != "" {
			field = obj.Get(v.alias)
		}
		if !field.Exists() {
			continue
		}
		found = append(found, v.key)
		d, err := v.decode([]byte(field.Raw))
		if err != nil {
			return fmt.Errorf("gemini: decode %s part: %w", v.key, err)
		}
		decoded = d
	}

	switch len(found) {
	case 0:
		return fmt.Errorf("gemini: part has no recognised data field")
	case 1:
	default:
		return fmt.Errorf("gemini: part has multiple data fields: %s", strings.Join(found, ", "))
	}

	*p = Part{Data: decoded, Thought: obj.Get("thought").Bool()}
	if m := obj.Get("metadata"); m.Exists() {
		p.Metadata = json.RawMessage(m.Raw)
	}
	return nil
}
