// Package geminitest provides an in-process fake of the Generative Language
// REST API for tests.
//
//	srv := geminitest.NewServer(t)
//	srv.QueueGenerate(geminitest.TextReply("4"))
//	client := gemini.NewClient(srv.APIKey, gemini.WithBaseURL(srv.BaseURL()))
package geminitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
)

const (
	apiVersion  = "/v1beta"
	tokenPrefix = "page-"

	// DefaultAPIKey is the key NewServer expects.
	DefaultAPIKey = "test-key"
)

// Reply is a canned non-streaming response.
type Reply struct {
	Status      int
	ContentType string
	Body        string
}

// StreamReply is a canned streaming response. When Raw is set it is written
// verbatim instead of Events.
type StreamReply struct {
	Status      int
	ContentType string
	Events      []string
	Raw         string
}

// RecordedRequest is one request received by the server.
type RecordedRequest struct {
	Method string
	Path   string
	Model  string
	Action string
	Query  url.Values
	Body   []byte
}

// GenerateRequest decodes the recorded body.
func (r RecordedRequest) GenerateRequest() (*gemini.GenerateContentRequest, error) {
	var req gemini.GenerateContentRequest
	if err := json.Unmarshal(r.Body, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// Server is a fake API server backed by gin and httptest.
type Server struct {
	*httptest.Server
	APIKey string

	mu       sync.Mutex
	generate []Reply
	streams  []StreamReply
	pages    [][]gemini.Model
	requests []RecordedRequest
}

// NewServer starts a server that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{APIKey: DefaultAPIKey}
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group(apiVersion)
	v1.Use(s.record, s.checkKey)
	v1.GET("/models", s.handleListModels)
	v1.GET("/models/:action", s.handleGetModel)
	v1.POST("/models/:action", s.handleModelAction)

	s.Server = httptest.NewServer(router)
	t.Cleanup(s.Close)
	return s
}

// BaseURL is the value to pass to gemini.WithBaseURL.
func (s *Server) BaseURL() string {
	return s.URL + apiVersion
}

// QueueGenerate appends replies served, in order, to generateContent calls.
func (s *Server) QueueGenerate(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generate = append(s.generate, replies...)
}

// QueueStream appends replies served, in order, to streamGenerateContent calls.
func (s *Server) QueueStream(replies ...StreamReply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streams = append(s.streams, replies...)
}

// SetModelPages configures the catalog, one slice per page.
func (s *Server) SetModelPages(pages ...[]gemini.Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = pages
}

// Requests returns a copy of every recorded request.
func (s *Server) Requests() []RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]RecordedRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsFor returns the recorded requests for one action, e.g. "generateContent".
func (s *Server) RequestsFor(action string) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range s.Requests() {
		if r.Action == action {
			out = append(out, r)
		}
	}
	return out
}

func (s *Server) record(c *gin.Context) {
	body, _ := io.ReadAll(c.Request.Body)
	model, action, _ := strings.Cut(c.Param("action"), ":")
	if c.Param("action") == "" && strings.HasSuffix(c.Request.URL.Path, "/models") {
		action = "listModels"
	}

	s.mu.Lock()
	s.requests = append(s.requests, RecordedRequest{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Model:  model,
		Action: action,
		Query:  c.Request.URL.Query(),
		Body:   body,
	})
	s.mu.Unlock()
	c.Next()
}

func (s *Server) checkKey(c *gin.Context) {
	if s.APIKey != "" && c.Query("key") != s.APIKey {
		c.AbortWithStatusJSON(http.StatusBadRequest, apiError(http.StatusBadRequest, "API key not valid. Please pass a valid API key.", "INVALID_ARGUMENT"))
		return
	}
	c.Next()
}

func (s *Server) handleModelAction(c *gin.Context) {
	_, action, _ := strings.Cut(c.Param("action"), ":")
	switch action {
	case "generateContent":
		s.serveGenerate(c)
	case "streamGenerateContent":
		s.serveStream(c)
	default:
		c.JSON(http.StatusNotFound, apiError(http.StatusNotFound, fmt.Sprintf("unknown action %q", action), "NOT_FOUND"))
	}
}

func (s *Server) serveGenerate(c *gin.Context) {
	s.mu.Lock()
	if len(s.generate) == 0 {
		s.mu.Unlock()
		c.JSON(http.StatusInternalServerError, apiError(http.StatusInternalServerError, "no generate reply queued", "INTERNAL"))
		return
	}
	reply := s.generate[0]
	s.generate = s.generate[1:]
	s.mu.Unlock()

	c.Data(statusOr(reply.Status), contentTypeOr(reply.ContentType, "application/json"), []byte(reply.Body))
}

func (s *Server) serveStream(c *gin.Context) {
	s.mu.Lock()
	if len(s.streams) == 0 {
		s.mu.Unlock()
		c.JSON(http.StatusInternalServerError, apiError(http.StatusInternalServerError, "no stream reply queued", "INTERNAL"))
		return
	}
	reply := s.streams[0]
	s.streams = s.streams[1:]
	s.mu.Unlock()

	if reply.Raw != "" || reply.Status >= 300 || (reply.ContentType != "" && reply.ContentType != "text/event-stream") {
		c.Data(statusOr(reply.Status), contentTypeOr(reply.ContentType, "text/event-stream"), []byte(reply.Raw))
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Status(statusOr(reply.Status))
	for _, data := range reply.Events {
		c.SSEvent("message", data)
		c.Writer.Flush()
	}
}

func (s *Server) handleListModels(c *gin.Context) {
	s.mu.Lock()
	pages := s.pages
	s.mu.Unlock()

	idx := 0
	if token := c.Query("pageToken"); token != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(token, tokenPrefix))
		if err != nil || n < 0 || n >= len(pages) {
			c.JSON(http.StatusBadRequest, apiError(http.StatusBadRequest, "invalid page token", "INVALID_ARGUMENT"))
			return
		}
		idx = n
	}

	resp := gin.H{"models": []gemini.Model{}}
	if idx < len(pages) {
		resp["models"] = pages[idx]
	}
	if idx+1 < len(pages) {
		resp["nextPageToken"] = tokenPrefix + strconv.Itoa(idx+1)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetModel(c *gin.Context) {
	name := "models/" + c.Param("action")

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range s.pages {
		for _, m := range page {
			if m.Name == name {
				c.JSON(http.StatusOK, m)
				return
			}
		}
	}
	c.JSON(http.StatusNotFound, apiError(http.StatusNotFound, fmt.Sprintf("model %s not found", name), "NOT_FOUND"))
}

func apiError(code int, message, status string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message, "status": status}}
}

func statusOr(status int) int {
	if status == 0 {
		return http.StatusOK
	}
	return status
}

func contentTypeOr(ct, fallback string) string {
	if ct == "" {
		return fallback
	}
	return ct
}
