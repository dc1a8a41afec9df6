package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestOllamaResolver_ResolveName(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("Expected path /api/generate, got %s", r.URL.Path)
		}
		var req ollamaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "llama3.1" || req.Stream || req.System != systemPrompt {
			t.Errorf("unexpected request %+v", req)
		}
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: "llama3.1", Response: " Estanco Central \n", Done: true})
	}))
	defer server.Close()

	r, err := NewOllamaResolver(Config{BaseURL: server.URL + "/", Model: "llama3.1"})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	name, err := r.ResolveName(context.Background(), testHints)
	if err != nil {
		t.Fatalf("ResolveName failed: %v", err)
	}
	if name != "Estanco Central" {
		t.Errorf("unexpected name %q", name)
	}
}

func TestOllamaResolver_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(ollamaError{Error: "model 'llama3.1' not found"})
	}))
	defer server.Close()

	r, err := NewOllamaResolver(Config{BaseURL: server.URL, Model: "llama3.1"})
	if err != nil {
		t.Fatalf("Failed to create resolver: %v", err)
	}
	_, err = r.ResolveName(context.Background(), testHints)
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
}

func TestNewOllamaResolver_RequiresModel(t *testing.T) {
	if _, err := NewOllamaResolver(Config{}); err == nil {
		t.Error("expected error without model")
	}
}
