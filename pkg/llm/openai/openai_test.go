package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kaiwa-labs/kaiwa-relay/pkg/llm"
)

func sseChunk(content string) string {
	payload := map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion.chunk",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{
			{"index": 0, "delta": map[string]any{"content": content}},
		},
	}
	b, _ := json.Marshal(payload)
	return fmt.Sprintf("data: %s\n\n", b)
}

func TestStreamChat_YieldsDeltas(t *testing.T) {
	var gotReq struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
		Stream bool `json:"stream"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, sseChunk("はい。"))
		_, _ = io.WriteString(w, sseChunk("元気です！"))
		_, _ = io.WriteString(w, sseChunk("ありがとう"))
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL), WithModel("gpt-4o-mini"))
	stream, err := c.StreamChat(context.Background(), []llm.Message{
		{Role: llm.RoleSystem, Content: "あなたは電話オペレーターです。"},
		{Role: llm.RoleUser, Content: "こんにちは"},
	})
	if err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	defer stream.Close()

	var tokens []string
	for {
		tok, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next error: %v", err)
		}
		tokens = append(tokens, tok)
	}

	want := []string{"はい。", "元気です！", "ありがとう"}
	if len(tokens) != len(want) {
		t.Fatalf("tokens=%v, want %v", tokens, want)
	}
	for i := range want {
		if tokens[i] != want[i] {
			t.Fatalf("tokens[%d]=%q, want %q", i, tokens[i], want[i])
		}
	}

	if gotReq.Model != "gpt-4o-mini" {
		t.Fatalf("request model=%q, want gpt-4o-mini", gotReq.Model)
	}
	if !gotReq.Stream {
		t.Fatalf("request stream=false, want true")
	}
	if len(gotReq.Messages) != 2 || gotReq.Messages[0].Role != "system" || gotReq.Messages[1].Role != "user" {
		t.Fatalf("request messages=%+v, want system then user", gotReq.Messages)
	}
}

func TestStreamChat_SurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"boom","type":"server_error"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New("test-key", WithBaseURL(srv.URL))
	stream, err := c.StreamChat(context.Background(), []llm.Message{{Role: llm.RoleUser, Content: "こんにちは"}})
	if err != nil {
		t.Fatalf("StreamChat error: %v", err)
	}
	defer stream.Close()

	if _, err := stream.Next(); err == nil || errors.Is(err, io.EOF) {
		t.Fatalf("Next error=%v, want provider error", err)
	}
}
