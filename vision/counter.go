package vision

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
)

type countResponse struct {
	PeopleCount int `json:"people_count"`
}

// CounterClient talks to a person detection model server
type CounterClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewCounterClient creates a person counter client for the server at baseURL
func NewCounterClient(baseURL string, timeout time.Duration) *CounterClient {
	return &CounterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// CountPeople returns the number of people the detector found in the image
func (c *CounterClient) CountPeople(ctx context.Context, imageData []byte) (int, error) {
	var response countResponse
	if err := postImage(ctx, c.httpClient, c.baseURL+"/count", imageRequest{
		Image: base64.StdEncoding.EncodeToString(imageData),
	}, &response); err != nil {
		return 0, err
	}

	if response.PeopleCount < 0 {
		log.Warnf("Person counter returned negative count %d, using 0", response.PeopleCount)
		return 0, nil
	}
	return response.PeopleCount, nil
}
