package video

import (
	"context"
	"errors"
	"fmt"
	"io"

	"threatsense/analyst"
	"threatsense/metrics"
	"threatsense/models"

	"github.com/apex/log"
)

// FrameProcessor classifies one frame
type FrameProcessor interface {
	ProcessFrame(ctx context.Context, imageData []byte, allowFallback bool) models.FrameResult
}

// Verifier is the thinking tier as seen by the aggregator
type Verifier interface {
	GenerateReport(ctx context.Context, imageData []byte, label models.Classification, peopleCount int) models.Report
	AnalyzeScene(ctx context.Context, imageData []byte) analyst.SceneResult
}

// Processor turns a video into a single verdict: a cheap vision-only scan of sampled frames that
// stops at the first disaster, or one thinking-tier verification of the last sampled frame.
type Processor struct {
	opener   Opener
	frames   FrameProcessor
	verifier Verifier
}

func NewProcessor(opener Opener, frames FrameProcessor, verifier Verifier) *Processor {
	return &Processor{
		opener:   opener,
		frames:   frames,
		verifier: verifier,
	}
}

// ProcessVideo samples every sampleRate-th frame of the video at path.
// Only ErrInvalidSampleRate, ErrVideoOpen and context cancellation are returned as errors.
func (p *Processor) ProcessVideo(ctx context.Context, path string, sampleRate int) (models.VideoResult, error) {
	if sampleRate < 1 {
		return models.VideoResult{}, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}

	src, err := p.opener.Open(ctx, path, sampleRate)
	if err != nil {
		if !errors.Is(err, ErrVideoOpen) {
			err = fmt.Errorf("%w: %v", ErrVideoOpen, err)
		}
		return models.VideoResult{}, err
	}
	defer src.Close()

	var (
		maxPeople int
		sampled   int
		candidate []byte
		lastRead  []byte
	)

	for {
		frame, err := src.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return models.VideoResult{}, ctxErr
			}
			if !errors.Is(err, io.EOF) {
				log.Warnf("Stopped reading %s after %d sampled frames: %v", path, sampled, err)
			}
			break
		}
		lastRead = frame.Data

		if frame.Index%sampleRate != 0 {
			continue
		}
		sampled++

		result := p.frames.ProcessFrame(ctx, frame.Data, false)
		log.Debugf("Frame %d (Vision): %s, Count: %d", frame.Index, result.Classification, result.PeopleCount)

		maxPeople = max(maxPeople, result.PeopleCount)
		candidate = frame.Data

		if result.Classification != models.Normal {
			log.Infof("Vision agent found %s at frame %d of %s", result.Classification, frame.Index, path)
			report := result.AnalystReport
			if report == nil {
				r := p.verifier.GenerateReport(ctx, frame.Data, result.Classification, result.PeopleCount)
				report = &r
			}
			return p.finish(models.VideoResult{
				Classification: result.Classification,
				PeopleCount:    maxPeople,
				AnalystReport:  report,
				Source:         models.SourceVisionAgent,
				FramesSampled:  sampled,
			}), nil
		}
	}

	if candidate == nil {
		candidate = lastRead
	}
	if candidate == nil {
		log.Warnf("No decodable frames in %s", path)
		return p.finish(models.VideoResult{
			Classification: models.Normal,
			Source:         models.SourceVisionAgent,
		}), nil
	}

	log.Infof("Vision agent saw Normal in %d sampled frames of %s, verifying last frame with thinking agent", sampled, path)
	scene := p.verifier.AnalyzeScene(ctx, candidate)

	return p.finish(models.VideoResult{
		Classification: scene.Classification,
		PeopleCount:    max(maxPeople, scene.PeopleCount),
		AnalystReport:  scene.Report,
		Source:         models.SourceThinkingAgent,
		FramesSampled:  sampled,
	}), nil
}

func (p *Processor) finish(result models.VideoResult) models.VideoResult {
	metrics.VideosProcessedTotal.WithLabelValues(string(result.Source), string(result.Classification)).Inc()
	metrics.VideoFramesSampled.Observe(float64(result.FramesSampled))
	return result
}
