package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/apex/log"
)

var (
	// ErrModelUnavailable means the model server could not be reached or failed internally
	ErrModelUnavailable = errors.New("vision model unavailable")
	// ErrImageDecode means the image bytes could not be decoded
	ErrImageDecode = errors.New("image could not be decoded")
)

// Prediction is one ranked classifier label
type Prediction struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier maps an image to ranked labels
type Classifier interface {
	Classify(ctx context.Context, imageData []byte) ([]Prediction, error)
}

// PersonCounter counts people visible in an image
type PersonCounter interface {
	CountPeople(ctx context.Context, imageData []byte) (int, error)
}

type imageRequest struct {
	Image string `json:"image"`
	TopK  int    `json:"top_k,omitempty"`
}

type classifyResponse struct {
	Predictions []Prediction `json:"predictions"`
}

// ClassifierClient talks to an image classification model server
type ClassifierClient struct {
	baseURL    string
	topK       int
	httpClient *http.Client
}

// NewClassifierClient creates a classifier client for the server at baseURL
func NewClassifierClient(baseURL string, topK int, timeout time.Duration) *ClassifierClient {
	return &ClassifierClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		topK:    topK,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Classify sends the image to the model server and returns predictions ordered by descending score
func (c *ClassifierClient) Classify(ctx context.Context, imageData []byte) ([]Prediction, error) {
	var response classifyResponse
	if err := postImage(ctx, c.httpClient, c.baseURL+"/classify", imageRequest{
		Image: base64.StdEncoding.EncodeToString(imageData),
		TopK:  c.topK,
	}, &response); err != nil {
		return nil, err
	}

	preds := response.Predictions
	sort.SliceStable(preds, func(i, j int) bool { return preds[i].Score > preds[j].Score })

	log.Debugf("Classifier returned %d predictions", len(preds))
	return preds, nil
}

// postImage posts a JSON payload and decodes the JSON answer into out.
// Transport failures and 5xx answers wrap ErrModelUnavailable, 4xx answers wrap ErrImageDecode.
func postImage(ctx context.Context, client *http.Client, url string, payload any, out any) error {
	requestBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned status %d", ErrModelUnavailable, url, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %s returned status %d: %s", ErrImageDecode, url, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
