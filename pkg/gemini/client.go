package gemini

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the public Generative Language API endpoint.
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// APIKeyEnv is read by NewClientFromEnv.
	APIKeyEnv = "GEMINI_API_KEY"

	listModelsPageSize = 1000
)

// Client talks to the Generative Language REST API. It holds no
// per-exchange state and is safe for concurrent use.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL. A trailing slash is ignored.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient replaces the default HTTP client, e.g. to set timeouts or a proxy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: DefaultBaseURL,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Transport: defaultTransport()}
	}
	c.logger = c.logger.With(zap.String("component", "gemini"))
	return c
}

// NewClientFromEnv creates a client with the key from GEMINI_API_KEY.
func NewClientFromEnv(opts ...Option) (*Client, error) {
	key := os.Getenv(APIKeyEnv)
	if key == "" {
		return nil, ErrMissingAPIKey
	}
	return NewClient(key, opts...), nil
}

func defaultTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ResponseHeaderTimeout: 300 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   5,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

// BaseURL returns the configured endpoint root.
func (c *Client) BaseURL() string { return c.baseURL }

// modelPath returns "/models/<id>:<method>" for either "id" or "models/id".
func modelPath(model, method string) string {
	return "/" + modelNamePrefix + baseModelID(model) + ":" + method
}

// endpoint joins path and query. The key is always added to the query.
func (c *Client) endpoint(path string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", c.apiKey)
	return c.baseURL + path + "?" + query.Encode()
}

// send performs one request. The key never reaches the logs: only the
// path is logged.
func (c *Client) send(ctx context.Context, method, path string, query url.Values, body any, accept string) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, newTransportError("encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, newTransportError("create request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		httpReq.Header.Set("Accept", accept)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		err = redactURLError(err)
		c.logger.Debug("Gemini request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, newTransportError(fmt.Sprintf("%s %s", method, path), err)
	}
	c.logger.Debug("Gemini request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)),
	)
	return resp, nil
}

// redactURLError hides the key in the URL that net/http puts into its
// errors.
func redactURLError(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		ue.URL = "<redacted>"
		return err
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "REDACTED")
		u.RawQuery = q.Encode()
	}
	ue.URL = u.String()
	return err
}

// doJSON sends a request and decodes a success body into out.
func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	resp, err := c.send(ctx, method, path, query, body, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return newTransportError("read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newStatusError(resp.StatusCode, string(respBody))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return newDecodeError("decode response", err)
	}
	return nil
}

// GenerateContent performs one non-streaming generateContent call.
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	var out GenerateContentResponse
	if err := c.doJSON(ctx, http.MethodPost, modelPath(model, "generateContent"), nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListModels returns the whole catalog, following page tokens until the
// service stops returning one.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var (
		models []Model
		token  string
	)
	for {
		query := url.Values{"pageSize": {fmt.Sprint(listModelsPageSize)}}
		if token != "" {
			query.Set("pageToken", token)
		}

		var page listModelsResponse
		if err := c.doJSON(ctx, http.MethodGet, "/models", query, nil, &page); err != nil {
			return nil, err
		}
		for i := range page.Models {
			page.Models[i].BaseModelID = baseModelID(page.Models[i].Name)
		}
		models = append(models, page.Models...)

		if page.NextPageToken == "" {
			return models, nil
		}
		token = page.NextPageToken
	}
}

// GetModel fetches a single catalog entry.
func (c *Client) GetModel(ctx context.Context, name string) (*Model, error) {
	var m Model
	if err := c.doJSON(ctx, http.MethodGet, "/"+modelNamePrefix+baseModelID(name), nil, nil, &m); err != nil {
		return nil, err
	}
	m.BaseModelID = baseModelID(m.Name)
	return &m, nil
}

// GenerateContentWithFunctionCalling runs the function-calling loop with
// default orchestrator settings. See Orchestrator.Run.
func (c *Client) GenerateContentWithFunctionCalling(ctx context.Context, model string, req *GenerateContentRequest, handlers HandlerLookup) (*GenerateContentResponse, error) {
	return NewOrchestrator(c, handlers, WithOrchestratorLogger(c.logger)).Run(ctx, model, req)
}
