package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSubmit(t *testing.T) {
	var got geminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/models/gemini-2.0-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		if r.URL.Query().Get("key") != "" {
			t.Errorf("api key leaked into the query string")
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":""},{"text":"{\"classification\":\"Normal\"}"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient("test-key", "gemini-2.0-flash", time.Second).WithBaseURL(server.URL)
	text, err := client.Submit(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0}, "classify this")
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if text != `{"classification":"Normal"}` {
		t.Errorf("unexpected text %q", text)
	}

	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 2 {
		t.Fatalf("unexpected request shape: %+v", got)
	}
	if got.Contents[0].Parts[0].InlineData == nil || got.Contents[0].Parts[0].InlineData.MimeType != "image/jpeg" {
		t.Errorf("image part missing or wrong mime type: %+v", got.Contents[0].Parts[0])
	}
	if got.Contents[0].Parts[1].Text != "classify this" {
		t.Errorf("prompt part = %q", got.Contents[0].Parts[1].Text)
	}
	if got.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("response mime type = %q", got.GenerationConfig.ResponseMimeType)
	}
}

func TestSubmitErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`, nil},
		{"plain api error", http.StatusInternalServerError, `oops`, nil},
		{"no candidates", http.StatusOK, `{"candidates":[]}`, ErrEmptyResponse},
		{"no text", http.StatusOK, `{"candidates":[{"content":{"parts":[]}}]}`, ErrEmptyResponse},
		{"prompt blocked", http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`, ErrBlocked},
		{"answer blocked", http.StatusOK, `{"candidates":[{"finishReason":"SAFETY","content":{"parts":[]}}]}`, ErrBlocked},
		{"bad json", http.StatusOK, `not json`, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls++
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer server.Close()

			client := NewClient("k", "m", time.Second).WithBaseURL(server.URL)
			_, err := client.Submit(context.Background(), nil, "p")
			if err == nil {
				t.Fatalf("expected error")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("error = %v, want %v", err, tc.wantErr)
			}
			if calls != 1 {
				t.Errorf("expected a single attempt, got %d", calls)
			}
		})
	}
}

func TestStatusErrorUsesAPIMessage(t *testing.T) {
	err := statusError(http.StatusForbidden, []byte(`{"error":{"code":403,"message":"API key not valid","status":"PERMISSION_DENIED"}}`))
	if !strings.Contains(err.Error(), "API key not valid") || !strings.Contains(err.Error(), "PERMISSION_DENIED") {
		t.Errorf("unexpected error %q", err)
	}
}
