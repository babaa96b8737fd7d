package analyst

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"threatsense/models"
	"threatsense/stubllm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var frame = []byte("not-a-real-jpeg")

type failingClient struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (f *failingClient) Submit(ctx context.Context, imageData []byte, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return "", f.err
}

func (f *failingClient) SourceName() string { return "Failing" }

type recordingClient struct {
	response string
	prompts  []string
}

func (r *recordingClient) Submit(ctx context.Context, imageData []byte, prompt string) (string, error) {
	r.prompts = append(r.prompts, prompt)
	return r.response, nil
}

func (r *recordingClient) SourceName() string { return "Recording" }

func TestGenerateReport(t *testing.T) {
	client := &recordingClient{
		response: "```json\n{\"summary\": \"Boats on a flooded street.\", \"severity_score\": 7, \"actions\": [\"Evacuate\", \"Send boats\", \"Close roads\"]}\n```",
	}
	a := New(client, 0)

	report := a.GenerateReport(context.Background(), frame, models.Flood, 4)

	assert.Equal(t, "Boats on a flooded street.", report.Summary)
	assert.Equal(t, 7, report.SeverityScore)
	assert.Equal(t, []string{"Evacuate", "Send boats", "Close roads"}, report.Actions)
	require.Len(t, client.prompts, 1)
	assert.Contains(t, client.prompts[0], "Primary Detection: Flood")
	assert.Contains(t, client.prompts[0], "People Count: 4")
}

func TestGenerateReportServiceFailure(t *testing.T) {
	client := &failingClient{err: errors.New("quota exceeded")}
	a := New(client, 0)

	report := a.GenerateReport(context.Background(), frame, models.Wildfire, 0)

	assert.Equal(t, "Analysis failed: quota exceeded", report.Summary)
	assert.Equal(t, 0, report.SeverityScore)
	assert.Equal(t, []string{"Manual review required"}, report.Actions)
	assert.Equal(t, 1, client.calls)
}

func TestGenerateReportMalformedResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"prose", "This looks dangerous."},
		{"severity out of range", `{"summary": "x", "severity_score": 42, "actions": ["a"]}`},
		{"empty summary", `{"summary": "", "severity_score": 3, "actions": ["a"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(stubllm.NewClientWithResponse(tt.response), 0)
			report := a.GenerateReport(context.Background(), frame, models.Earthquake, 1)
			assert.True(t, strings.HasPrefix(report.Summary, "Analysis failed: "), report.Summary)
			assert.Equal(t, 0, report.SeverityScore)
			assert.Equal(t, []string{"Manual review required"}, report.Actions)
		})
	}
}

func TestGenerateReportWithoutClient(t *testing.T) {
	a := New(nil, 0)
	assert.False(t, a.Available())

	report := a.GenerateReport(context.Background(), frame, models.Flood, 2)

	assert.Equal(t, models.Report{
		Summary:       "AI Analyst unavailable (Missing API Key)",
		SeverityScore: 0,
		Actions:       []string{"Check server configuration"},
	}, report)
}

func TestAnalyzeScene(t *testing.T) {
	tests := []struct {
		name     string
		response string
		expected SceneResult
	}{
		{
			name:     "normal scene",
			response: `{"classification": "Normal", "people_count": 3}`,
			expected: SceneResult{Classification: models.Normal, PeopleCount: 3},
		},
		{
			name:     "disaster with summary and severity",
			response: `{"classification": "Wildfire", "people_count": 1, "summary": "Forest fire.", "severity_score": 9}`,
			expected: SceneResult{
				Classification: models.Wildfire,
				PeopleCount:    1,
				Report: &models.Report{
					Summary:       "Forest fire.",
					SeverityScore: 9,
					Actions:       []string{"Verify camera feed", "Deploy response team"},
				},
			},
		},
		{
			name:     "disaster with defaults",
			response: `{"classification": "flood"}`,
			expected: SceneResult{
				Classification: models.Flood,
				Report: &models.Report{
					Summary:       "Disaster detected by Thinking Agent",
					SeverityScore: 5,
					Actions:       []string{"Verify camera feed", "Deploy response team"},
				},
			},
		},
		{
			name:     "severity clamped",
			response: `{"classification": "Earthquake", "people_count": 0, "summary": "Collapsed wall.", "severity_score": 15}`,
			expected: SceneResult{
				Classification: models.Earthquake,
				Report: &models.Report{
					Summary:       "Collapsed wall.",
					SeverityScore: 10,
					Actions:       []string{"Verify camera feed", "Deploy response team"},
				},
			},
		},
		{
			name:     "unknown classification coerced",
			response: `{"classification": "Tornado", "people_count": 5, "summary": "Funnel cloud.", "severity_score": 8}`,
			expected: SceneResult{Classification: models.Normal, PeopleCount: 5},
		},
		{
			name:     "sentinel is not a verdict",
			response: `{"classification": "Model Load Error", "people_count": 2}`,
			expected: SceneResult{Classification: models.Normal, PeopleCount: 2},
		},
		{
			name:     "negative count",
			response: `{"classification": "Normal", "people_count": -4}`,
			expected: SceneResult{Classification: models.Normal},
		},
		{
			name:     "unparseable answer",
			response: "I am not sure what this is.",
			expected: SceneResult{Classification: models.Normal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(stubllm.NewClientWithResponse(tt.response), 0)
			assert.Equal(t, tt.expected, a.AnalyzeScene(context.Background(), frame))
		})
	}
}

func TestAnalyzeSceneFailures(t *testing.T) {
	client := &failingClient{err: errors.New("connection reset")}
	assert.Equal(t, SceneResult{Classification: models.Normal}, New(client, 0).AnalyzeScene(context.Background(), frame))
	assert.Equal(t, 1, client.calls)

	assert.Equal(t, SceneResult{Classification: models.Normal}, New(nil, 0).AnalyzeScene(context.Background(), frame))
}

func TestAnalyzeSceneStaysInTaxonomy(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		classification := rapid.OneOf(
			rapid.SampledFrom([]string{"Wildfire", "Earthquake", "Flood", "Normal", "Prediction Error", "wildfire ", ""}),
			rapid.String(),
		).Draw(rt, "classification")
		count := rapid.IntRange(-100, 100).Draw(rt, "count")
		severity := rapid.IntRange(-20, 20).Draw(rt, "severity")

		response := fmt.Sprintf(`{"classification": %q, "people_count": %d, "severity_score": %d}`, classification, count, severity)
		result := New(stubllm.NewClientWithResponse(response), 0).AnalyzeScene(context.Background(), frame)

		if _, ok := models.ParseClassification(string(result.Classification)); !ok || result.Classification.IsError() {
			rt.Fatalf("classification %q outside the allowed categories", result.Classification)
		}
		if result.PeopleCount < 0 {
			rt.Fatalf("negative people count %d", result.PeopleCount)
		}
		if (result.Report != nil) != result.Classification.IsDisaster() {
			rt.Fatalf("report presence %v does not match classification %s", result.Report != nil, result.Classification)
		}
		if result.Report != nil && (result.Report.SeverityScore < 1 || result.Report.SeverityScore > 10) {
			rt.Fatalf("severity %d outside [1,10]", result.Report.SeverityScore)
		}
	})
}
