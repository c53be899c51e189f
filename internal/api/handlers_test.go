package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"persona.dev/recruiter-persona/internal/core"
	"persona.dev/recruiter-persona/internal/logging"
	"persona.dev/recruiter-persona/internal/persona"
	"persona.dev/recruiter-persona/internal/store"
	"persona.dev/recruiter-persona/internal/utils"
)

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, core.Prompt, core.SamplingParams) (string, error) {
	return "", errors.New("unavailable")
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return newTestServerWithLogger(t, logging.Discard())
}

func newTestServerWithLogger(t *testing.T, logger *slog.Logger) *httptest.Server {
	t.Helper()
	profile := persona.Profile{
		PersonalDetails: &persona.PersonalDetails{Name: "Jordan"},
		WorkAuthorization: &persona.WorkAuthorization{
			Status:                "US Citizen",
			RelocationWillingness: "Open to relocation",
		},
		ProfessionalSummary: &persona.ProfessionalSummary{KeySkills: []string{"Python", "ML"}},
	}

	ix := core.NewKnowledgeIndex(utils.NewHashEmbedder(0), core.WithIndexLogger(logger))
	_, err := ix.Ingest(context.Background(), core.BuildChunks(profile))
	require.NoError(t, err)

	svc := core.NewChatService(store.NewMemorySessionStore(), ix, failingGenerator{},
		persona.NewConfig(profile, persona.ConversationExamples{}), core.WithChatLogger(logger))

	srv := httptest.NewServer(NewRouter(NewAPIHandler(svc, logger)))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestConversationFlow(t *testing.T) {
	srv := newTestServer(t)

	resp, body := do(t, srv, http.MethodPost, "/api/conversation", `{"message":"tell me about yourself"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body["message"], "Jordan")
	id, _ := body["conversation_id"].(string)
	require.NotEmpty(t, id)
	meta, _ := body["metadata"].(map[string]any)
	assert.EqualValues(t, 2, meta["message_count"])
	assert.Equal(t, true, meta["degraded"])

	resp, body = do(t, srv, http.MethodPost, "/api/conversation", `{"message":"do you need visa sponsorship?","conversation_id":"`+id+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, id, body["conversation_id"])
	assert.Contains(t, body["message"], "US Citizen")

	resp, body = do(t, srv, http.MethodGet, "/api/conversation/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	messages, _ := body["messages"].([]any)
	require.Len(t, messages, 4)
	assert.Equal(t, "user", messages[0].(map[string]any)["role"])
	assert.Equal(t, "assistant", messages[1].(map[string]any)["role"])
	assert.NotEmpty(t, body["created_at"])
	assert.NotEmpty(t, body["last_updated"])
}

func TestConversation_Errors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"unknown conversation", http.MethodPost, "/api/conversation", `{"message":"hi","conversation_id":"nope"}`, http.StatusNotFound},
		{"empty message", http.MethodPost, "/api/conversation", `{"message":"  "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/conversation", `{"message":`, http.StatusBadRequest},
		{"history of unknown id", http.MethodGet, "/api/conversation/nope", "", http.StatusNotFound},
		{"search without query", http.MethodGet, "/api/knowledge/search", "", http.StatusBadRequest},
		{"search with bad limit", http.MethodGet, "/api/knowledge/search?query=x&limit=abc", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestCreateSession(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodPost, "/api/sessions", "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["session_id"].(string)
	require.NotEmpty(t, id)

	resp, body = do(t, srv, http.MethodGet, "/api/conversation/"+id, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["messages"])
}

func TestKnowledgeSearch(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/api/knowledge/search?query=relocation&limit=3", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "relocation", body["query"])

	results, _ := body["results"].([]any)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.EqualValues(t, len(results), body["count"])
	first := results[0].(map[string]any)
	assert.Contains(t, first["content"], "relocation")
	assert.Equal(t, "work_authorization", first["metadata"].(map[string]any)["type"])

	resp, body = do(t, srv, http.MethodGet, "/api/knowledge/search?query=relocation&limit=0", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 0, body["count"])
}

// syncBuffer is written by the server goroutine and read by the test.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRequestLogging(t *testing.T) {
	var text, jsonOut syncBuffer
	srv := newTestServerWithLogger(t, logging.WithWriters(&text, &jsonOut, slog.LevelInfo))

	resp, _ := do(t, srv, http.MethodGet, "/api/health", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = do(t, srv, http.MethodGet, "/api/conversation/nope", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	var lines []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(jsonOut.String()), "\n") {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "request completed" {
			lines = append(lines, entry)
		}
	}
	require.Len(t, lines, 2)
	assert.Equal(t, "/api/health", lines[0]["path"])
	assert.EqualValues(t, http.StatusOK, lines[0]["status"])
	assert.Equal(t, "/api/conversation/nope", lines[1]["path"])
	assert.EqualValues(t, http.StatusNotFound, lines[1]["status"])
	assert.NotEmpty(t, lines[1]["request_id"])
	assert.Contains(t, text.String(), "request completed")
}

func TestPersonalInfo(t *testing.T) {
	srv := newTestServer(t)
	resp, body := do(t, srv, http.MethodGet, "/api/personal-info/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	details, _ := body["personal_details"].(map[string]any)
	assert.Equal(t, "Jordan", details["name"])
}
