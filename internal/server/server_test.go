package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"ragdesk/internal/agent"
	"ragdesk/internal/app"
	"ragdesk/internal/registry"
	"ragdesk/pkg/store"
)

type stubGenerator struct{ reply string }

func (g stubGenerator) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.reply, nil
}

type stubEmbedder struct{}

func (stubEmbedder) EmbedText(ctx context.Context, text, taskType string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	mem := store.NewMemoryStore()
	gen := stubGenerator{reply: "stub answer"}
	reg := registry.New(50, 50, 100)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg.App = app.New(context.Background(), log, app.Options{
		Store:        mem,
		Embedder:     stubEmbedder{},
		Generator:    gen,
		Registry:     reg,
		Orchestrator: agent.NewOrchestrator(gen, mem, stubEmbedder{}, 3),
		ChunkSize:    800,
		ChunkOverlap: 150,
		TopK:         3,
	})
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return ts
}

func postMultipart(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	mw.Close()

	resp, err := http.Post(url+"/api/ingest", mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatalf("post multipart: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestIngestQueryDeleteFlow(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := postMultipart(t, ts.URL, "manual.txt", "the service listens on port 8080 by default")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ingest status: %d", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["filename"] != "manual.txt" {
		t.Fatalf("unexpected ingest payload: %v", payload)
	}
	if payload["chunks_ingested"].(float64) < 1 {
		t.Fatalf("expected chunks_ingested >= 1: %v", payload)
	}

	// Duplicate upload conflicts.
	resp = postMultipart(t, ts.URL, "manual-copy.txt", "the service listens on port 8080 by default")
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	// Query hits the stub model.
	resp, err := http.PostForm(ts.URL+"/api/query", url.Values{"query": {"which port?"}, "session_id": {"s1"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("query status: %d", resp.StatusCode)
	}
	if payload = decodeBody(t, resp); payload["answer"] != "stub answer" {
		t.Fatalf("unexpected answer: %v", payload)
	}

	// List then delete.
	resp, err = http.Get(ts.URL + "/api/documents")
	if err != nil {
		t.Fatalf("list documents: %v", err)
	}
	payload = decodeBody(t, resp)
	docs := payload["documents"].([]any)
	if len(docs) != 1 {
		t.Fatalf("expected one document: %v", payload)
	}
	id := docs[0].(map[string]any)["id"].(string)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	req, _ = http.NewRequest(http.MethodDelete, ts.URL+"/api/documents/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete status: %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestIngestRejectsUnsupportedExtension(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := postMultipart(t, ts.URL, "slides.pptx", "not ingestible")
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if !strings.Contains(payload["error"].(string), "unsupported file type") {
		t.Fatalf("unexpected error: %v", payload)
	}
}

func TestQueryRequiresNonEmptyQuery(t *testing.T) {
	ts := newTestServer(t, Config{})

	for _, path := range []string{"/api/query", "/api/query/agents"} {
		resp, err := http.PostForm(ts.URL+path, url.Values{"query": {"  "}, "session_id": {"s1"}})
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
		resp.Body.Close()
	}
}

func TestQueryRequiresSessionID(t *testing.T) {
	ts := newTestServer(t, Config{})

	for _, path := range []string{"/api/query", "/api/query/agents"} {
		resp, err := http.PostForm(ts.URL+path, url.Values{"query": {"which port?"}})
		if err != nil {
			t.Fatalf("post %s: %v", path, err)
		}
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, resp.StatusCode)
		}
		payload := decodeBody(t, resp)
		if !strings.Contains(payload["error"].(string), "session_id") {
			t.Fatalf("%s: unexpected error: %v", path, payload)
		}
	}
}

func TestQueryAgentsShortCircuitsOnEmptyStore(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp, err := http.PostForm(ts.URL+"/api/query/agents", url.Values{"query": {"anything"}, "session_id": {"s1"}})
	if err != nil {
		t.Fatalf("query agents: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	payload := decodeBody(t, resp)
	if payload["answer"] != "No relevant information found in documents" {
		t.Fatalf("unexpected answer: %v", payload)
	}
	if payload["reasoning"] != "No documents retrieved" {
		t.Fatalf("unexpected reasoning: %v", payload)
	}
	if payload["agent_reasoning"] != true {
		t.Fatalf("agent_reasoning not set: %v", payload)
	}
	if plan := payload["plan"].([]any); len(plan) != 1 {
		t.Fatalf("expected one-element plan: %v", payload)
	}
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp, err := http.Post(ts.URL+"/api/chat/new_session", "application/x-www-form-urlencoded", nil)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	payload := decodeBody(t, resp)
	id := payload["session_id"].(string)
	if id == "" {
		t.Fatal("empty session id")
	}

	resp, err = http.PostForm(ts.URL+"/api/chat/sessions/"+id+"/message",
		url.Values{"role": {"user"}, "message": {"hello"}})
	if err != nil {
		t.Fatalf("append message: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("append status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/chat/sessions/" + id)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	payload = decodeBody(t, resp)
	history := payload["history"].([]any)
	if len(history) != 1 {
		t.Fatalf("expected one message: %v", payload)
	}
	first := history[0].(map[string]any)
	if first["role"] != "user" || first["content"] != "hello" {
		t.Fatalf("unexpected message: %v", first)
	}

	resp, err = http.Get(ts.URL + "/api/chat/sessions")
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	payload = decodeBody(t, resp)
	if sessions := payload["sessions"].([]any); len(sessions) != 1 {
		t.Fatalf("expected one session: %v", payload)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/chat/clear_session/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("clear session: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("clear status: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/api/chat/sessions/" + id)
	if err != nil {
		t.Fatalf("history after clear: %v", err)
	}
	payload = decodeBody(t, resp)
	if history := payload["history"].([]any); len(history) != 0 {
		t.Fatalf("history not cleared: %v", payload)
	}
}

func TestQueryRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	ts := newTestServer(t, Config{
		RedisAddr:               mr.Addr(),
		QueryRateLimitPerMinute: 2,
	})

	form := url.Values{"query": {"hello"}, "session_id": {"s1"}}
	for i := 0; i < 2; i++ {
		resp, err := http.PostForm(ts.URL+"/api/query", form)
		if err != nil {
			t.Fatalf("query %d: %v", i, err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("query %d status: %d", i, resp.StatusCode)
		}
		resp.Body.Close()
	}

	resp, err := http.PostForm(ts.URL+"/api/query", form)
	if err != nil {
		t.Fatalf("limited query: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") != "60" {
		t.Fatalf("missing Retry-After header")
	}
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp, err := http.Get(ts.URL + "/health-check")
	if err != nil {
		t.Fatalf("health check: %v", err)
	}
	payload := decodeBody(t, resp)
	if payload["status"] != "ok" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["uptime_seconds"]; !ok {
		t.Fatalf("missing uptime: %v", payload)
	}
}
