package gemini

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
	defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	// Scene and report answers are short JSON objects
	maxResponseBytes = 1 << 20
	temperature      = 0.2
)

var (
	// ErrBlocked is returned when the prompt or the answer was withheld by safety filters
	ErrBlocked = errors.New("gemini: response blocked")
	// ErrEmptyResponse is returned when the answer carries no text
	ErrEmptyResponse = errors.New("gemini: empty response")
)

type blob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inline_data,omitempty"`
}

type content struct {
	Role  string `json:"role"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature      float64 `json:"temperature"`
	ResponseMimeType string  `json:"response_mime_type,omitempty"`
}

type geminiRequest struct {
	GenerationConfig generationConfig `json:"generationConfig"`
	Contents         []content        `json:"contents"`
}

type candidate struct {
	FinishReason string `json:"finishReason"`
	Content      struct {
		Parts []part `json:"parts"`
	} `json:"content"`
}

type geminiResponse struct {
	Candidates     []candidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// Client calls the generateContent endpoint once per Submit
type Client struct {
	apiKey  string
	model   string
	baseURL string
	http    *http.Client
}

func NewClient(apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		model:   model,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithBaseURL points the client at a different API root, e.g. a regional proxy
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

func (c *Client) SourceName() string {
	return "Gemini"
}

// Submit sends the frame inline next to the prompt and asks for a JSON answer
func (c *Client) Submit(ctx context.Context, imageData []byte, prompt string) (string, error) {
	parts := make([]part, 0, 2)
	if len(imageData) > 0 {
		parts = append(parts, part{InlineData: &blob{
			MimeType: http.DetectContentType(imageData),
			Data:     base64.StdEncoding.EncodeToString(imageData),
		}})
	}
	parts = append(parts, part{Text: prompt})

	return c.generateContent(ctx, geminiRequest{
		GenerationConfig: generationConfig{
			Temperature:      temperature,
			ResponseMimeType: "application/json",
		},
		Contents: []content{{Role: "user", Parts: parts}},
	})
}

func (c *Client) generateContent(ctx context.Context, body geminiRequest) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", statusError(resp.StatusCode, raw)
	}

	var gr geminiResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	return firstText(gr)
}

func firstText(gr geminiResponse) (string, error) {
	if reason := gr.PromptFeedback.BlockReason; reason != "" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, reason)
	}
	if len(gr.Candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrEmptyResponse)
	}

	cand := gr.Candidates[0]
	for _, p := range cand.Content.Parts {
		if strings.TrimSpace(p.Text) != "" {
			return p.Text, nil
		}
	}
	if cand.FinishReason == "SAFETY" {
		return "", fmt.Errorf("%w: %s", ErrBlocked, cand.FinishReason)
	}
	return "", fmt.Errorf("%w: no text part", ErrEmptyResponse)
}

func statusError(status int, raw []byte) error {
	var ae apiError
	if err := json.Unmarshal(raw, &ae); err == nil && ae.Error.Message != "" {
		return fmt.Errorf("gemini API error (status %d, %s): %s", status, ae.Error.Status, ae.Error.Message)
	}
	return fmt.Errorf("gemini API error (status %d): %s", status, strings.TrimSpace(string(raw)))
}
