package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openAIEndpoint   = "https://api.openai.com/v1/chat/completions"
	maxResponseBytes = 1 << 20
	maxTokens        = 800
	temperature      = 0.2
)

// ErrEmptyResponse is returned when the completion carries no text
var ErrEmptyResponse = errors.New("openai: empty response")

type message struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// contentPart is either a text or an image_url part
type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []message      `json:"messages"`
	MaxTokens      int            `json:"max_tokens"`
	Temperature    float64        `json:"temperature"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		FinishReason string `json:"finish_reason"`
		Message      struct {
			Content json.RawMessage `json:"content"`
			Refusal string          `json:"refusal"`
		} `json:"message"`
	} `json:"choices"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client represents an OpenAI API client
type Client struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewClient creates a new OpenAI client
func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey:   apiKey,
		model:    model,
		endpoint: openAIEndpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// WithEndpoint overrides the chat completions URL
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = strings.TrimRight(endpoint, "/")
	return c
}

// SourceName identifies this provider in logs and metrics
func (c *Client) SourceName() string {
	return "ChatGPT"
}

func dataURL(imageData []byte) string {
	return "data:" + http.DetectContentType(imageData) + ";base64," + base64.StdEncoding.EncodeToString(imageData)
}

// Submit sends the frame as a data URL next to the prompt and asks for a JSON object
func (c *Client) Submit(ctx context.Context, imageData []byte, prompt string) (string, error) {
	parts := make([]contentPart, 0, 2)
	if len(imageData) > 0 {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(imageData), Detail: "auto"},
		})
	}
	parts = append(parts, contentPart{Type: "text", Text: prompt})

	payload, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []message{{Role: "user", Content: parts}},
		MaxTokens:      maxTokens,
		Temperature:    temperature,
		ResponseFormat: responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var ae apiError
		if json.Unmarshal(body, &ae) == nil && ae.Error.Message != "" {
			return "", fmt.Errorf("openai API error (status %d, %s): %s", resp.StatusCode, ae.Error.Type, ae.Error.Message)
		}
		return "", fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return messageText(chatResp)
}

// messageText accepts both a plain string and an array of text parts as content
func messageText(chatResp chatResponse) (string, error) {
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}
	msg := chatResp.Choices[0].Message
	if msg.Refusal != "" {
		return "", fmt.Errorf("%w: refused: %s", ErrEmptyResponse, msg.Refusal)
	}

	var text string
	if err := json.Unmarshal(msg.Content, &text); err == nil {
		if strings.TrimSpace(text) == "" {
			return "", fmt.Errorf("%w: blank content", ErrEmptyResponse)
		}
		return text, nil
	}

	var parts []contentPart
	if err := json.Unmarshal(msg.Content, &parts); err != nil {
		return "", fmt.Errorf("%w: unexpected content shape", ErrEmptyResponse)
	}
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == "text" {
			sb.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: no text part", ErrEmptyResponse)
	}
	return sb.String(), nil
}
