package agents

import (
	"context"

	"threatsense/analyst"
	"threatsense/metrics"
	"threatsense/models"

	"github.com/apex/log"
)

// VisionTier is the fast classifier tier
type VisionTier interface {
	Predict(ctx context.Context, imageData []byte) models.Classification
	CountPeople(ctx context.Context, imageData []byte) int
}

// ThinkingTier is the slow multimodal tier
type ThinkingTier interface {
	GenerateReport(ctx context.Context, imageData []byte, label models.Classification, peopleCount int) models.Report
	AnalyzeScene(ctx context.Context, imageData []byte) analyst.SceneResult
}

// Manager decides, per frame, which tier's verdict to trust.
type Manager struct {
	vision   VisionTier
	thinking ThinkingTier
}

func NewManager(vision VisionTier, thinking ThinkingTier) *Manager {
	return &Manager{
		vision:   vision,
		thinking: thinking,
	}
}

// ProcessFrame classifies a single frame.
//
// A disaster from the vision tier is confirmed with a severity report. Otherwise the vision verdict
// stands as Normal unless allowFallback is set, in which case the thinking tier classifies the scene
// and its verdict replaces the vision one entirely. At most one thinking-tier call is made.
func (m *Manager) ProcessFrame(ctx context.Context, imageData []byte, allowFallback bool) models.FrameResult {
	label := m.vision.Predict(ctx, imageData)
	count := m.vision.CountPeople(ctx, imageData)

	var result models.FrameResult
	switch {
	case label.IsDisaster():
		log.Infof("Vision agent detected %s, requesting analyst report", label)
		report := m.thinking.GenerateReport(ctx, imageData, label, count)
		result = models.FrameResult{
			Classification: label,
			PeopleCount:    count,
			AnalystReport:  &report,
			Source:         models.SourceVisionAgent,
		}

	case !allowFallback:
		result = models.FrameResult{
			Classification: models.Normal,
			PeopleCount:    count,
			Source:         models.SourceVisionAgent,
		}

	default:
		log.Infof("Vision agent returned %s, escalating to thinking agent", label)
		scene := m.thinking.AnalyzeScene(ctx, imageData)
		result = models.FrameResult{
			Classification: scene.Classification,
			PeopleCount:    scene.PeopleCount,
			AnalystReport:  scene.Report,
			Source:         models.SourceThinkingAgent,
		}
	}

	if label.IsError() {
		metrics.VisionErrorsTotal.WithLabelValues(string(label)).Inc()
		result.VisionError = string(label)
	}
	metrics.FramesProcessedTotal.WithLabelValues(string(result.Source), string(result.Classification)).Inc()

	return result
}
