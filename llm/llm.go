package llm

import "context"

// Client abstracts the multimodal provider behind the thinking tier.
// Implementations must be concurrency-safe; every call is a single, billable attempt.
type Client interface {
	// Submit sends raw image bytes together with a prompt and returns the model's text answer.
	Submit(ctx context.Context, imageData []byte, prompt string) (string, error)
	// SourceName returns a short provider label for logs and metrics (e.g., "Gemini").
	SourceName() string
}
