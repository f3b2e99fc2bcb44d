package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestQuery(t *testing.T) {
	var gotAuth, gotPath string
	var gotReq chatRequest

	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decoding request: %v", err)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "done"}},
			},
		})
	})

	c := NewClient(Config{BaseURL: srv.URL, APIKey: "secret", Model: "test-model"})
	got, err := c.Query(context.Background(), "do the thing")
	if err != nil {
		t.Fatalf("Query: %v", err)
	}

	if got != "done" {
		t.Errorf("unexpected reply: %q", got)
	}
	if gotPath != "/v1/chat/completions" {
		t.Errorf("unexpected path: %q", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("unexpected auth header: %q", gotAuth)
	}
	if gotReq.Model != "test-model" {
		t.Errorf("unexpected model: %q", gotReq.Model)
	}
	if len(gotReq.Messages) != 1 || gotReq.Messages[0].Content != "do the thing" {
		t.Errorf("unexpected messages: %+v", gotReq.Messages)
	}
}

func TestQueryServerError(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	})

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	_, err := c.Query(context.Background(), "prompt")
	if err == nil || !strings.Contains(err.Error(), "status 503") {
		t.Errorf("expected status error, got %v", err)
	}
}

func TestQueryEmptyChoices(t *testing.T) {
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	if _, err := c.Query(context.Background(), "prompt"); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestQueryWithRetryEventuallySucceeds(t *testing.T) {
	attempts := 0
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"role": "assistant", "content": "recovered"}},
			},
		})
	})

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	got, err := c.QueryWithRetry(context.Background(), "prompt", 2)
	if err != nil {
		t.Fatalf("QueryWithRetry: %v", err)
	}
	if got != "recovered" || attempts != 2 {
		t.Errorf("got %q after %d attempts", got, attempts)
	}
}

func TestQueryWithRetryDoesNotRetryAuthErrors(t *testing.T) {
	attempts := 0
	srv := chatServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		http.Error(w, "bad key", http.StatusUnauthorized)
	})

	c := NewClient(Config{BaseURL: srv.URL, Model: "m"})
	if _, err := c.QueryWithRetry(context.Background(), "prompt", 3); err == nil {
		t.Fatal("expected auth error")
	}
	if attempts != 1 {
		t.Errorf("auth errors must not retry, got %d attempts", attempts)
	}
}
