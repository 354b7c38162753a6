package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func newOpenAIClientAgainst(t *testing.T, upstream string) OpenAIClient {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", upstream)
	t.Setenv("OPENAI_MODEL", "test-model")
	t.Setenv("OPENAI_TIMEOUT_SECONDS", "5")
	t.Setenv("OPENAI_MAX_RETRIES", "2")
	client, err := NewOpenAIClient(testLogger(t))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	return client
}

func TestGenerateJSONDecodesStructuredOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth=%q", got)
		}
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req["stream"] == true {
			t.Error("structured call must not stream")
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"name\":\"Acme\",\"industry\":\"Tech\"}"}]}]}`))
	}))
	defer srv.Close()

	client := newOpenAIClientAgainst(t, srv.URL)
	obj, err := client.GenerateJSON(context.Background(), "sys", "user", "company_profile", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["name"] != "Acme" || obj["industry"] != "Tech" {
		t.Fatalf("obj=%v", obj)
	}
}

func TestGenerateJSONRetriesOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"{\"ok\":true}"}]}]}`))
	}))
	defer srv.Close()

	client := newOpenAIClientAgainst(t, srv.URL)
	obj, err := client.GenerateJSON(context.Background(), "sys", "user", "s", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if obj["ok"] != true {
		t.Fatalf("obj=%v", obj)
	}
	if got := atomic.LoadInt32(&calls); got != 2 {
		t.Fatalf("calls=%d, want 2", got)
	}
}

func TestStreamTextForwardsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["stream"] != true {
			t.Error("stream flag not set")
		}

		w.Header().Set("Content-Type", "text/event-stream")
		body := "event: response.output_text.delta\n" +
			"data: {\"type\":\"response.output_text.delta\",\"delta\":\"hello \"}\n\n" +
			": keep-alive comment\n" +
			"data: {\"type\":\"response.output_text.delta\",\"delta\":\"world\"}\n\n" +
			"data: {\"type\":\"response.completed\"}\n\n" +
			"data: [DONE]\n\n"
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := newOpenAIClientAgainst(t, srv.URL)
	var deltas []string
	full, err := client.StreamText(context.Background(), "sys", "user", func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("StreamText: %v", err)
	}
	if full != "hello world" {
		t.Fatalf("full=%q", full)
	}
	if len(deltas) != 2 || deltas[0] != "hello " || deltas[1] != "world" {
		t.Fatalf("deltas=%v", deltas)
	}
}

func TestStreamTextSurfacesStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("data: {\"error\":{\"message\":\"rate limited\"}}\n\n"))
	}))
	defer srv.Close()

	client := newOpenAIClientAgainst(t, srv.URL)
	_, err := client.StreamText(context.Background(), "sys", "user", nil)
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err=%v, want stream error", err)
	}
}
