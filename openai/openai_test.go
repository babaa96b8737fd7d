package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmit(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"choices":[{"message":{"content":"{\"summary\":\"ok\"}"}}]}`))
	}))
	defer server.Close()

	client := NewClient("sk-test", "gpt-4o", time.Second).WithEndpoint(server.URL)
	text, err := client.Submit(context.Background(), []byte("\x89PNG\r\n\x1a\n0000"), "report please")
	require.NoError(t, err)
	assert.Equal(t, `{"summary":"ok"}`, text)

	assert.Equal(t, "gpt-4o", captured["model"])
	messages := captured["messages"].([]any)
	require.Len(t, messages, 1)
	parts := messages[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	imageURL := parts[0].(map[string]any)["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(imageURL, "data:image/png;base64,"), imageURL)
	assert.Equal(t, "report please", parts[1].(map[string]any)["text"])
	assert.Equal(t, map[string]any{"type": "json_object"}, captured["response_format"])
}

func TestMessageText(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"string content", `{"choices":[{"message":{"content":"{}"}}]}`, "{}", false},
		{"part array", `{"choices":[{"message":{"content":[{"type":"text","text":"{\"a\":"},{"type":"text","text":"1}"}]}}]}`, `{"a":1}`, false},
		{"null content", `{"choices":[{"message":{"content":null}}]}`, "", true},
		{"refusal", `{"choices":[{"message":{"content":null,"refusal":"cannot help"}}]}`, "", true},
		{"no choices", `{"choices":[]}`, "", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var resp chatResponse
			require.NoError(t, json.Unmarshal([]byte(tc.body), &resp))
			got, err := messageText(resp)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrEmptyResponse)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSubmitErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	_, err := NewClient("bad", "gpt-4o", time.Second).WithEndpoint(server.URL).Submit(context.Background(), nil, "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
	assert.Contains(t, err.Error(), "Incorrect API key provided")

	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer empty.Close()

	_, err = NewClient("k", "gpt-4o", time.Second).WithEndpoint(empty.URL).Submit(context.Background(), nil, "p")
	assert.Error(t, err)
}
