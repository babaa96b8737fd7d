package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"threatsense/imgproc"
	"threatsense/llm"
	"threatsense/metrics"
	"threatsense/models"
	"threatsense/parser"

	"github.com/apex/log"
)

const (
	operationReport = "report"
	operationScene  = "scene"

	defaultSceneSummary  = "Disaster detected by Thinking Agent"
	defaultSceneSeverity = 5
)

var (
	unavailableActions = []string{"Check server configuration"}
	failedActions      = []string{"Manual review required"}
	sceneActions       = []string{"Verify camera feed", "Deploy response team"}
)

var errNoClient = errors.New("thinking tier not configured")

// SceneResult is the thinking tier's own verdict on a frame.
// Report is non-nil only when Classification is a disaster.
type SceneResult struct {
	Classification models.Classification
	PeopleCount    int
	Report         *models.Report
}

// Analyst is the thinking tier adapter. It owns prompt construction, response parsing and every
// default that is substituted when the provider fails; callers never see provider errors.
type Analyst struct {
	client       llm.Client
	maxDimension int
}

// New creates an Analyst. A nil client leaves the thinking tier unavailable.
func New(client llm.Client, maxDimension int) *Analyst {
	return &Analyst{
		client:       client,
		maxDimension: maxDimension,
	}
}

// Available reports whether a provider is configured
func (a *Analyst) Available() bool {
	return a.client != nil
}

// GenerateReport asks the thinking tier to validate a vision detection and write a severity report.
// It always returns a report; failures produce a conservative report with severity 0.
func (a *Analyst) GenerateReport(ctx context.Context, imageData []byte, label models.Classification, peopleCount int) models.Report {
	if a.client == nil {
		metrics.ThinkingCallsTotal.WithLabelValues(operationReport, "unavailable").Inc()
		return models.Report{
			Summary:       "AI Analyst unavailable (Missing API Key)",
			SeverityScore: 0,
			Actions:       cloneActions(unavailableActions),
		}
	}

	start := time.Now()
	defer metrics.ObserveSince(metrics.ThinkingCallDurationSeconds.WithLabelValues(operationReport), start)

	report, err := a.generateReport(ctx, imageData, label, peopleCount)
	if err != nil {
		metrics.ThinkingCallsTotal.WithLabelValues(operationReport, "error").Inc()
		log.WithFields(log.Fields{
			"provider": a.client.SourceName(),
			"label":    string(label),
		}).Errorf("Smart analyst error: %v", err)
		return models.Report{
			Summary:       fmt.Sprintf("Analysis failed: %v", err),
			SeverityScore: 0,
			Actions:       cloneActions(failedActions),
		}
	}

	metrics.ThinkingCallsTotal.WithLabelValues(operationReport, "ok").Inc()
	return report
}

func (a *Analyst) generateReport(ctx context.Context, imageData []byte, label models.Classification, peopleCount int) (models.Report, error) {
	response, err := a.client.Submit(ctx, a.prepare(imageData), reportPrompt(label, peopleCount))
	if err != nil {
		return models.Report{}, err
	}

	parsed, err := parser.ParseReport(response)
	if err != nil {
		return models.Report{}, err
	}

	return models.Report{
		Summary:       parsed.Summary,
		SeverityScore: int(parsed.SeverityScore),
		Actions:       parsed.Actions,
	}, nil
}

// AnalyzeScene asks the thinking tier to classify the frame on its own. The classification is
// always one of the four allowed categories; failures yield (Normal, 0, nil).
func (a *Analyst) AnalyzeScene(ctx context.Context, imageData []byte) SceneResult {
	if a.client == nil {
		metrics.ThinkingCallsTotal.WithLabelValues(operationScene, "unavailable").Inc()
		log.Warnf("Thinking agent error: %v", errNoClient)
		return SceneResult{Classification: models.Normal}
	}

	start := time.Now()
	defer metrics.ObserveSince(metrics.ThinkingCallDurationSeconds.WithLabelValues(operationScene), start)

	result, err := a.analyzeScene(ctx, imageData)
	if err != nil {
		metrics.ThinkingCallsTotal.WithLabelValues(operationScene, "error").Inc()
		log.WithField("provider", a.client.SourceName()).Errorf("Thinking agent error: %v", err)
		return SceneResult{Classification: models.Normal}
	}

	metrics.ThinkingCallsTotal.WithLabelValues(operationScene, "ok").Inc()
	return result
}

func (a *Analyst) analyzeScene(ctx context.Context, imageData []byte) (SceneResult, error) {
	response, err := a.client.Submit(ctx, a.prepare(imageData), scenePrompt)
	if err != nil {
		return SceneResult{}, err
	}

	parsed, err := parser.ParseScene(response)
	if err != nil {
		return SceneResult{}, err
	}

	return coerceScene(parsed), nil
}

// coerceScene maps a loosely-typed scene answer onto the allowed value space
func coerceScene(parsed *parser.SceneResponse) SceneResult {
	classification, ok := models.ParseClassification(parsed.Classification)
	if !ok {
		if parsed.Classification != "" {
			log.Warnf("Thinking agent returned unknown classification %q, using Normal", parsed.Classification)
		}
		classification = models.Normal
	}

	result := SceneResult{Classification: classification}
	if parsed.PeopleCount != nil && *parsed.PeopleCount > 0 {
		result.PeopleCount = int(*parsed.PeopleCount)
	}

	if classification == models.Normal {
		return result
	}

	summary := parsed.Summary
	if summary == "" {
		summary = defaultSceneSummary
	}
	severity := defaultSceneSeverity
	if parsed.SeverityScore != nil {
		severity = clamp(int(*parsed.SeverityScore), 1, 10)
	}
	result.Report = &models.Report{
		Summary:       summary,
		SeverityScore: severity,
		Actions:       cloneActions(sceneActions),
	}
	return result
}

// prepare downsizes the frame for upload, falling back to the original bytes
func (a *Analyst) prepare(imageData []byte) []byte {
	compressed, err := imgproc.Compress(imageData, a.maxDimension)
	if err != nil {
		log.Debugf("Frame preprocessing skipped: %v", err)
		return imageData
	}
	return compressed
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func cloneActions(actions []string) []string {
	out := make([]string, len(actions))
	copy(out, actions)
	return out
}
