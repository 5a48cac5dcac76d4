package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatReturnsAssistantContent(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ChatMessage{Role: "assistant", Content: "hello there"},
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	reply, err := client.Chat(context.Background(), "m1", []ChatMessage{{Role: "user", Content: "Hi"}})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "hello there" {
		t.Fatalf("unexpected reply %q", reply)
	}
	if gotReq.Stream {
		t.Fatal("chat request must not stream")
	}
	if gotReq.Model != "m1" {
		t.Fatalf("unexpected model %q", gotReq.Model)
	}
}

func TestChatSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(ollamaErrorResponse{Error: "model exploded"})
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if _, err := client.Chat(context.Background(), "m1", []ChatMessage{{Role: "user", Content: "Hi"}}); err == nil {
		t.Fatal("expected error from backend failure")
	}
}

func TestWarmupUsesGenerateEndpoint(t *testing.T) {
	var gotReq ollamaGenerateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	if err := client.Warmup(context.Background(), "m1"); err != nil {
		t.Fatalf("warmup: %v", err)
	}
	if gotReq.Prompt != "." || gotReq.Stream {
		t.Fatalf("unexpected warmup request %+v", gotReq)
	}
}

func TestTagsParsesModelNames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/tags" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"model":"phi3:mini"},{"name":""}]}`))
	}))
	defer srv.Close()

	client := NewOllamaClient(srv.URL)
	names, err := client.Tags(context.Background())
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	want := []string{"llama3:8b", "phi3:mini"}
	if len(names) != len(want) {
		t.Fatalf("unexpected names %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("unexpected names %v", names)
		}
	}
}
