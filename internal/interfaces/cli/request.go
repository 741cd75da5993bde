package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/ngoclaw/gemini-go/pkg/errors"
	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

// LoadRequest reads a request file. ".yaml" and ".yml" files are parsed as
// YAML, everything else as JSON. path "-" reads stdin and accepts either.
// Keys follow the wire format in camelCase or snake_case.
func LoadRequest(path string, stdin io.Reader) (*gemini.GenerateContentRequest, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("request file not found: " + path)
		}
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "read request "+path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeYAMLRequest(data)
	case ".json":
		return decodeJSONRequest(data)
	}
	if json.Valid(bytes.TrimSpace(data)) {
		return decodeJSONRequest(data)
	}
	return decodeYAMLRequest(data)
}

func decodeJSONRequest(data []byte) (*gemini.GenerateContentRequest, error) {
	var req gemini.GenerateContentRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request JSON", err)
	}
	return &req, nil
}

// decodeYAMLRequest goes through a generic tree so that the JSON decoders
// of the request types apply unchanged.
func decodeYAMLRequest(data []byte) (*gemini.GenerateContentRequest, error) {
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request YAML", err)
	}
	raw, err := json.Marshal(jsonCompatible(tree))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid request YAML", err)
	}
	return decodeJSONRequest(raw)
}

// jsonCompatible rewrites map[any]any nodes, which yaml.v3 produces for
// non-string keys, into map[string]any.
func jsonCompatible(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = jsonCompatible(child)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[fmt.Sprint(k)] = jsonCompatible(child)
		}
		return out
	case []any:
		for i, child := range t {
			t[i] = jsonCompatible(child)
		}
		return t
	}
	return v
}

// BuildRequest appends prompt as a user turn to base (or to an empty
// request) and sets the system instruction when system is not empty.
func BuildRequest(base *gemini.GenerateContentRequest, prompt, system string) (*gemini.GenerateContentRequest, error) {
	req := &gemini.GenerateContentRequest{}
	if base != nil {
		req = base.Clone()
	}
	if system != "" {
		si := gemini.NewContent("", gemini.NewTextPart(system))
		req.SystemInstruction = &si
	}
	if strings.TrimSpace(prompt) != "" {
		req.Contents = append(req.Contents, gemini.NewUserText(prompt))
	}
	if len(req.Contents) == 0 {
		return nil, apperrors.NewInvalidInputError("nothing to send: give a prompt or --request")
	}
	return req, nil
}
