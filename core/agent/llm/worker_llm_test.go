package llm

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/pkg/apperr"
)

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"envelope", `{"results":[{"id":"a"},{"id":"b"}]}`, 2, false},
		{"fenced", "```json\n{\"results\":[{\"id\":\"a\"}]}\n```", 1, false},
		{"bare array", `[{"id":"a"}]`, 1, false},
		{"bad record kept raw", `{"results":[{"id":"a"},"junk",42]}`, 3, false},
		{"empty results", `{"results":[]}`, 0, false},
		{"no results key", `{"category":"other"}`, 0, true},
		{"not json", `sorry, I cannot help`, 0, true},
		{"empty", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeRecords(tt.content)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got %d records", len(got))
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	batch := []out.ClassificationRequest{
		{EmailID: "m1", Sender: "boss@example.com", Subject: "Standup", Body: "at 9am", ReceivedAt: time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC)},
		{EmailID: "m2"},
	}
	prompt, err := buildPrompt(batch, "America/New_York")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{
		"meeting, task, newsletter, junk, other",
		"America/New_York",
		`"id":"m1"`,
		`"date":"2024-05-01T13:00:00Z"`,
		`"from":"Unknown"`,
		`"subject":"No subject"`,
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func chatServer(t *testing.T, status int, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("invalid request body: %v", err)
		}
		if rf, _ := req["response_format"].(map[string]any); rf["type"] != "json_object" {
			t.Errorf("expected json_object response format, got %v", req["response_format"])
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status != http.StatusOK {
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		resp := map[string]any{
			"id":     "chatcmpl-1",
			"object": "chat.completion",
			"model":  "gpt-4o-mini",
			"choices": []any{map[string]any{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestClassifyBatch(t *testing.T) {
	srv := chatServer(t, http.StatusOK, `{"results":[{"id":"m1","category":"task"}]}`)
	defer srv.Close()

	c := NewClassifier(NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}), "UTC")
	resp, err := c.ClassifyBatch(context.Background(), []out.ClassificationRequest{{EmailID: "m1"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(resp.Records))
	}
	if resp.PromptTokens != 120 || resp.CompletionTokens != 30 {
		t.Errorf("expected usage 120/30, got %d/%d", resp.PromptTokens, resp.CompletionTokens)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("expected gpt-4o-mini, got %s", resp.Model)
	}
}

func TestClassifyBatch_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		content string
	}{
		{"server error", http.StatusServiceUnavailable, ""},
		{"malformed reply", http.StatusOK, "not json"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := chatServer(t, tt.status, tt.content)
			defer srv.Close()

			c := NewClassifier(NewClient(ClientConfig{APIKey: "k", BaseURL: srv.URL + "/v1"}), "UTC")
			_, err := c.ClassifyBatch(context.Background(), []out.ClassificationRequest{{EmailID: "m1"}})
			if !apperr.IsCode(err, apperr.CodeTransportError) {
				t.Errorf("expected TRANSPORT_ERROR, got %v", err)
			}
		})
	}
}
