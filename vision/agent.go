package vision

import (
	"context"
	"errors"
	_ "image/jpeg"
	_ "image/png"

	"threatsense/imgproc"
	"threatsense/models"
	"threatsense/proxy"

	"github.com/apex/log"
	_ "golang.org/x/image/webp"
)

// Agent is the fast vision tier: a classifier read through the proxy table, plus a person counter.
// The underlying clients are shared and read-only, so an Agent is safe for concurrent use.
type Agent struct {
	classifier Classifier
	counter    PersonCounter
	table      *proxy.Table
}

// NewAgent creates a vision agent. A nil classifier puts the agent in degraded mode where every
// prediction is models.ModelLoadError; a nil counter counts zero people.
func NewAgent(classifier Classifier, counter PersonCounter, table *proxy.Table) *Agent {
	if table == nil {
		table = proxy.DefaultTable()
	}
	return &Agent{
		classifier: classifier,
		counter:    counter,
		table:      table,
	}
}

// Predict classifies the image into the disaster taxonomy.
// Failures are reported as sentinel classifications, never as models.Normal.
func (a *Agent) Predict(ctx context.Context, imageData []byte) models.Classification {
	if a.classifier == nil {
		log.Error("Vision classifier is not configured")
		return models.ModelLoadError
	}

	if _, err := imgproc.CheckDimensions(imageData); err != nil {
		log.Errorf("Error opening image (%d bytes): %v", len(imageData), err)
		return models.ImageLoadError
	}

	preds, err := a.classifier.Classify(ctx, imageData)
	if err != nil {
		switch {
		case errors.Is(err, ErrModelUnavailable):
			log.Errorf("Vision classifier unavailable: %v", err)
			return models.ModelLoadError
		case errors.Is(err, ErrImageDecode):
			log.Errorf("Vision classifier rejected image: %v", err)
			return models.ImageLoadError
		default:
			log.Errorf("Prediction error: %v", err)
			return models.PredictionError
		}
	}

	labels := make([]string, 0, len(preds))
	for _, p := range preds {
		labels = append(labels, p.Label)
	}

	label := a.table.MapLabels(labels)
	if label != models.Normal {
		log.Infof("Disaster detected via proxy labels %v -> %s", labels, label)
	}
	return label
}

// CountPeople returns the number of people in the image, or 0 when the counter fails
func (a *Agent) CountPeople(ctx context.Context, imageData []byte) int {
	if a.counter == nil {
		return 0
	}
	count, err := a.counter.CountPeople(ctx, imageData)
	if err != nil {
		log.Warnf("Person counter failed, assuming 0 people: %v", err)
		return 0
	}
	return count
}
