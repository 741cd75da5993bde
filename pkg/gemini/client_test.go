package gemini_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ngoclaw/gemini-go/pkg/gemini"
	"github.com/ngoclaw/gemini-go/pkg/gemini/geminitest"
)

func newTestClient(t *testing.T) (*gemini.Client, *geminitest.Server) {
	t.Helper()
	srv := geminitest.NewServer(t)
	logger, _ := zap.NewDevelopment()
	client := gemini.NewClient(srv.APIKey,
		gemini.WithBaseURL(srv.BaseURL()+"/"),
		gemini.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
		gemini.WithLogger(logger),
	)
	return client, srv
}

func TestClient_GenerateContent(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(geminitest.TextReply("4"))

	req := &gemini.GenerateContentRequest{Contents: []gemini.Content{gemini.NewUserText("2+2?")}}
	resp, err := client.GenerateContent(context.Background(), "gemini-2.0-flash", req)
	require.NoError(t, err)
	assert.Equal(t, "4", resp.Text())
	assert.Equal(t, gemini.FinishReasonStop, resp.Candidates[0].FinishReason)
	assert.Equal(t, 5, resp.UsageMetadata.Total())

	calls := srv.RequestsFor("generateContent")
	require.Len(t, calls, 1)
	assert.Equal(t, http.MethodPost, calls[0].Method)
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", calls[0].Path)
	assert.Equal(t, geminitest.DefaultAPIKey, calls[0].Query.Get("key"))

	sent, err := calls[0].GenerateRequest()
	require.NoError(t, err)
	assert.Equal(t, req.Contents, sent.Contents)
}

func TestClient_ModelPrefixIsStripped(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(geminitest.TextReply("ok"))

	_, err := client.GenerateContent(context.Background(), "models/gemini-pro", &gemini.GenerateContentRequest{})
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro", srv.RequestsFor("generateContent")[0].Model)
}

func TestClient_APIError(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(geminitest.ErrorReply(http.StatusTooManyRequests, "quota exceeded"))

	_, err := client.GenerateContent(context.Background(), "gemini-pro", &gemini.GenerateContentRequest{})
	require.Error(t, err)
	assert.True(t, gemini.IsAPI(err))

	apiErr, ok := gemini.AsError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "quota exceeded")
	assert.Contains(t, err.Error(), "status 429")
}

func TestClient_WrongKeyIsAPIError(t *testing.T) {
	srv := geminitest.NewServer(t)
	client := gemini.NewClient("wrong&key=other", gemini.WithBaseURL(srv.BaseURL()))

	_, err := client.GenerateContent(context.Background(), "gemini-pro", &gemini.GenerateContentRequest{})
	require.Error(t, err)
	assert.True(t, gemini.IsAPI(err))

	// The key is escaped, so it cannot inject query parameters.
	got := srv.Requests()[0].Query
	assert.Equal(t, "wrong&key=other", got.Get("key"))
	assert.Len(t, got["key"], 1)
}

func TestClient_DecodeError(t *testing.T) {
	client, srv := newTestClient(t)
	srv.QueueGenerate(geminitest.Reply{Status: http.StatusOK, Body: `{"candidates":[{"content":{"parts":[{}]}}]}`})

	_, err := client.GenerateContent(context.Background(), "gemini-pro", &gemini.GenerateContentRequest{})
	require.Error(t, err)
	assert.True(t, gemini.IsDecode(err))
}

func TestClient_TransportError(t *testing.T) {
	srv := geminitest.NewServer(t)
	base := srv.BaseURL()
	srv.Close()

	client := gemini.NewClient("very-secret-key", gemini.WithBaseURL(base))
	_, err := client.GenerateContent(context.Background(), "gemini-pro", &gemini.GenerateContentRequest{})
	require.Error(t, err)
	assert.True(t, gemini.IsTransport(err))
	assert.False(t, gemini.IsAPI(err))
	assert.NotContains(t, err.Error(), "very-secret-key")
	assert.Contains(t, err.Error(), "key=REDACTED")
}

func TestClient_EncodeFailureIsTransport(t *testing.T) {
	client, srv := newTestClient(t)
	req := &gemini.GenerateContentRequest{Contents: []gemini.Content{{Role: gemini.RoleUser, Parts: []gemini.Part{{}}}}}

	_, err := client.GenerateContent(context.Background(), "gemini-pro", req)
	require.Error(t, err)
	assert.True(t, gemini.IsTransport(err))
	assert.Empty(t, srv.Requests(), "nothing should be sent")
}

func TestClient_ContextCancelled(t *testing.T) {
	client, _ := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GenerateContent(ctx, "gemini-pro", &gemini.GenerateContentRequest{})
	require.Error(t, err)
	assert.True(t, gemini.IsTransport(err))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_ListModelsAccumulatesPages(t *testing.T) {
	client, srv := newTestClient(t)
	page1 := []gemini.Model{
		{Name: "models/gemini-1.5-pro", DisplayName: "Gemini 1.5 Pro", SupportedGenerationMethods: []string{"generateContent"}},
		{Name: "models/gemini-1.5-flash", InputTokenLimit: 1048576},
	}
	page2 := []gemini.Model{
		{Name: "models/embedding-001", SupportedGenerationMethods: []string{"embedContent"}},
	}
	srv.SetModelPages(page1, page2)

	models, err := client.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 3)

	want := []string{"gemini-1.5-pro", "gemini-1.5-flash", "embedding-001"}
	for i, m := range models {
		assert.Equal(t, want[i], m.BaseModelID)
	}
	assert.Equal(t, "Gemini 1.5 Pro", models[0].DisplayName)
	assert.True(t, models[0].SupportsMethod("generateContent"))
	assert.False(t, models[2].SupportsMethod("generateContent"))

	calls := srv.RequestsFor("listModels")
	require.Len(t, calls, 2)
	assert.Equal(t, "1000", calls[0].Query.Get("pageSize"))
	assert.Empty(t, calls[0].Query.Get("pageToken"))
	assert.Equal(t, "page-1", calls[1].Query.Get("pageToken"))
}

func TestClient_ListModelsErrorAborts(t *testing.T) {
	client, srv := newTestClient(t)
	srv.APIKey = "other"

	models, err := client.ListModels(context.Background())
	require.Error(t, err)
	assert.Nil(t, models)
	assert.True(t, gemini.IsAPI(err))
}

func TestClient_GetModel(t *testing.T) {
	client, srv := newTestClient(t)
	srv.SetModelPages([]gemini.Model{{Name: "models/gemini-pro", Version: "001"}})

	m, err := client.GetModel(context.Background(), "models/gemini-pro")
	require.NoError(t, err)
	assert.Equal(t, "gemini-pro", m.BaseModelID)
	assert.Equal(t, "001", m.Version)

	_, err = client.GetModel(context.Background(), "missing")
	assert.True(t, gemini.IsAPI(err))
}

func TestNewClientFromEnv(t *testing.T) {
	t.Setenv(gemini.APIKeyEnv, "")
	_, err := gemini.NewClientFromEnv()
	assert.ErrorIs(t, err, gemini.ErrMissingAPIKey)

	t.Setenv(gemini.APIKeyEnv, "from-env")
	client, err := gemini.NewClientFromEnv(gemini.WithBaseURL("http://localhost:1/v1beta/"))
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1/v1beta", client.BaseURL())
}
