package gemini

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Tool is one capability offered to the model for an exchange.
// The set of implementations is closed.
type Tool interface {
	isTool()
}

// FunctionDeclarationsTool offers a set of locally executed functions.
type FunctionDeclarationsTool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

// DynamicRetrievalTool enables search grounding gated by a relevance threshold.
// Only supported by 1.x models.
type DynamicRetrievalTool struct {
	GoogleSearchRetrieval GoogleSearchRetrieval `json:"googleSearchRetrieval"`
}

type GoogleSearchRetrieval struct {
	DynamicRetrievalConfig DynamicRetrievalConfig `json:"dynamicRetrievalConfig"`
}

// DynamicRetrievalMode is MODE_DYNAMIC or MODE_UNSPECIFIED.
type DynamicRetrievalMode string

const (
	DynamicRetrievalModeUnspecified DynamicRetrievalMode = "MODE_UNSPECIFIED"
	DynamicRetrievalModeDynamic     DynamicRetrievalMode = "MODE_DYNAMIC"
)

type DynamicRetrievalConfig struct {
	Mode             DynamicRetrievalMode `json:"mode,omitempty"`
	DynamicThreshold *float64             `json:"dynamicThreshold,omitempty"`
}

// GoogleSearchTool enables built-in search on 2.x models.
type GoogleSearchTool struct{}

// CodeExecutionTool enables the built-in code interpreter.
type CodeExecutionTool struct{}

func (FunctionDeclarationsTool) isTool() {}
func (DynamicRetrievalTool) isTool()     {}
func (GoogleSearchTool) isTool()         {}
func (CodeExecutionTool) isTool()        {}

func (GoogleSearchTool) MarshalJSON() ([]byte, error) {
	return []byte(`{"googleSearch":{}}`), nil
}

func (CodeExecutionTool) MarshalJSON() ([]byte, error) {
	return []byte(`{"codeExecution":{}}`), nil
}

// NewFunctionTool wraps declarations into a tool entry.
func NewFunctionTool(decls ...FunctionDeclaration) FunctionDeclarationsTool {
	return FunctionDeclarationsTool{FunctionDeclarations: decls}
}

// NewDynamicRetrievalTool builds a MODE_DYNAMIC retrieval tool.
func NewDynamicRetrievalTool(threshold float64) DynamicRetrievalTool {
	return DynamicRetrievalTool{GoogleSearchRetrieval: GoogleSearchRetrieval{
		DynamicRetrievalConfig: DynamicRetrievalConfig{
			Mode:             DynamicRetrievalModeDynamic,
			DynamicThreshold: &threshold,
		},
	}}
}

// Tools is the ordered list of tools on a request.
//
// The wire format carries no variant tag, so decoding probes each entry
// structurally in a fixed order and keeps the first match:
// function declarations, dynamic retrieval, google search, code execution.
// Reordering the probes changes which variant wins for overlapping shapes.
type Tools []Tool

type toolProbe struct {
	keys   []string
	decode func(field gjson.Result) (Tool, error)
}

var toolProbes = []toolProbe{
	{
		keys: []string{"functionDeclarations", "function_declarations"},
		decode: func(field gjson.Result) (Tool, error) {
			var decls []FunctionDeclaration
			if err := json.Unmarshal([]byte(field.Raw), &decls); err != nil {
				return nil, err
			}
			return FunctionDeclarationsTool{FunctionDeclarations: decls}, nil
		},
	},
	{
		keys: []string{"googleSearchRetrieval", "google_search_retrieval"},
		decode: func(field gjson.Result) (Tool, error) {
			if !field.IsObject() {
				return nil, fmt.Errorf("expected object, got %s", field.Type)
			}
			var r GoogleSearchRetrieval
			cfg := field.Get("dynamicRetrievalConfig")
			if !cfg.Exists() {
				cfg = field.Get("dynamic_retrieval_config")
			}
			if cfg.Exists() {
				if !cfg.IsObject() {
					return nil, fmt.Errorf("dynamicRetrievalConfig: expected object, got %s", cfg.Type)
				}
				if mode := cfg.Get("mode"); mode.Exists() {
					if mode.Type != gjson.String {
						return nil, fmt.Errorf("mode: expected string, got %s", mode.Type)
					}
					r.DynamicRetrievalConfig.Mode = DynamicRetrievalMode(mode.Str)
				}
				th := cfg.Get("dynamicThreshold")
				if !th.Exists() {
					th = cfg.Get("dynamic_threshold")
				}
				if th.Exists() {
					if th.Type != gjson.Number {
						return nil, fmt.Errorf("dynamicThreshold: expected number, got %s", th.Type)
					}
					v := th.Float()
					r.DynamicRetrievalConfig.DynamicThreshold = &v
				}
			}
			return DynamicRetrievalTool{GoogleSearchRetrieval: r}, nil
		},
	},
	{
		keys:   []string{"googleSearch", "google_search"},
		decode: func(gjson.Result) (Tool, error) { return GoogleSearchTool{}, nil },
	},
	{
		keys:   []string{"codeExecution", "code_execution"},
		decode: func(gjson.Result) (Tool, error) { return CodeExecutionTool{}, nil },
	},
}

// decodeTool runs the probes in order against one entry. The first probe
// whose field is present and decodes cleanly wins; a failing probe falls
// through to the next one.
func decodeTool(entry gjson.Result) (Tool, error) {
	if !entry.IsObject() {
		return nil, fmt.Errorf("gemini: tool must be an object, got %s", entry.Type)
	}
	var errs []error
	for _, probe := range toolProbes {
		for _, key := range probe.keys {
			field := entry.Get(key)
			if !field.Exists() {
				continue
			}
			t, err := probe.decode(field)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				continue
			}
			return t, nil
		}
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("gemini: tool matches no known variant: %w", errors.Join(errs...))
	}
	return nil, fmt.Errorf("gemini: tool matches no known variant: %s", entry.Raw)
}

func (ts *Tools) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("gemini: invalid tools JSON")
	}
	arr := gjson.ParseBytes(data)
	if arr.Type == gjson.Null {
		*ts = nil
		return nil
	}
	if !arr.IsArray() {
		return fmt.Errorf("gemini: tools must be an array, got %s", arr.Type)
	}
	out := Tools{}
	var err error
	arr.ForEach(func(_, entry gjson.Result) bool {
		var t Tool
		t, err = decodeTool(entry)
		if err != nil {
			return false
		}
		out = append(out, t)
		return true
	})
	if err != nil {
		return err
	}
	*ts = out
	return nil
}

// FunctionDeclaration describes one callable offered to the model.
type FunctionDeclaration struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Parameters  *FunctionParameters `json:"parameters,omitempty"`
	Response    *FunctionParameters `json:"response,omitempty"`
}

// FunctionParameters is the JSON-Schema subset used for parameters and
// responses. Every name in Required should be a key of Properties; this is
// not checked.
type FunctionParameters struct {
	Type       string                       `json:"type"`
	Properties map[string]ParameterProperty `json:"properties"`
	Required   []string                     `json:"required,omitempty"`
}

// NewObjectParameters builds an "object" schema.
func NewObjectParameters(props map[string]ParameterProperty, required ...string) *FunctionParameters {
	return &FunctionParameters{Type: "object", Properties: props, Required: required}
}

// MarshalJSON always emits "properties" as an object.
func (fp FunctionParameters) MarshalJSON() ([]byte, error) {
	type wire FunctionParameters
	w := wire(fp)
	if w.Properties == nil {
		w.Properties = map[string]ParameterProperty{}
	}
	return json.Marshal(w)
}

func (fp *FunctionParameters) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type       string                     `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
		Required   []string                   `json:"required"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := FunctionParameters{Type: raw.Type, Required: raw.Required}
	if raw.Properties != nil {
		out.Properties = make(map[string]ParameterProperty, len(raw.Properties))
		for name, msg := range raw.Properties {
			prop, err := DecodeParameterProperty(msg)
			if err != nil {
				return fmt.Errorf("property %q: %w", name, err)
			}
			out.Properties[name] = prop
		}
	}
	*fp = out
	return nil
}

// ParameterProperty is one property schema, tagged on the wire by "type".
// The set of implementations is closed.
type ParameterProperty interface {
	propertyType() string
}

type StringProperty struct {
	Description string
	Enum        []string
}

type IntegerProperty struct {
	Description string
}

type BooleanProperty struct {
	Description string
}

// ArrayProperty owns the schema of its items. Nesting depth is unbounded.
type ArrayProperty struct {
	Description string
	Items       ParameterProperty
}

func (StringProperty) propertyType() string  { return "string" }
func (IntegerProperty) propertyType() string { return "integer" }
func (BooleanProperty) propertyType() string { return "boolean" }
func (ArrayProperty) propertyType() string   { return "array" }

type schemaWire struct {
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Enum        []string        `json:"enum,omitempty"`
	Items       json.RawMessage `json:"items,omitempty"`
}

func (p StringProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaWire{Type: p.propertyType(), Description: p.Description, Enum: p.Enum})
}

func (p IntegerProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaWire{Type: p.propertyType(), Description: p.Description})
}

func (p BooleanProperty) MarshalJSON() ([]byte, error) {
	return json.Marshal(schemaWire{Type: p.propertyType(), Description: p.Description})
}

func (p ArrayProperty) MarshalJSON() ([]byte, error) {
	if p.Items == nil {
		return nil, fmt.Errorf("gemini: array property has no items schema")
	}
	items, err := json.Marshal(p.Items)
	if err != nil {
		return nil, err
	}
	return json.Marshal(schemaWire{Type: p.propertyType(), Description: p.Description, Items: items})
}

// DecodeParameterProperty decodes one property schema by its "type" tag.
// Tags are matched case-insensitively so OpenAPI style "STRING" is accepted.
func DecodeParameterProperty(data []byte) (ParameterProperty, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("gemini: invalid property schema JSON")
	}
	obj := gjson.ParseBytes(data)
	desc := obj.Get("description").String()

	switch typ := strings.ToLower(obj.Get("type").String()); typ {
	case "string":
		var enum []string
		obj.Get("enum").ForEach(func(_, v gjson.Result) bool {
			enum = append(enum, v.String())
			return true
		})
		return StringProperty{Description: desc, Enum: enum}, nil
	case "integer":
		return IntegerProperty{Description: desc}, nil
	case "boolean":
		return BooleanProperty{Description: desc}, nil
	case "array":
		items := obj.Get("items")
		if !items.Exists() {
			return nil, fmt.Errorf("gemini: array property has no items schema")
		}
		inner, err := DecodeParameterProperty([]byte(items.Raw))
		if err != nil {
			return nil, fmt.Errorf("items: %w", err)
		}
		return ArrayProperty{Description: desc, Items: inner}, nil
	case "":
		return nil, fmt.Errorf("gemini: property schema has no type")
	default:
		return nil, fmt.Errorf("gemini: unsupported property type %q", typ)
	}
}
