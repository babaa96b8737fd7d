package models

import (
	"strings"
	"time"
)

// Classification is the threat verdict for a frame or a video
type Classification string

const (
	Wildfire   Classification = "Wildfire"
	Earthquake Classification = "Earthquake"
	Flood      Classification = "Flood"
	Normal     Classification = "Normal"

	// Vision tier failure sentinels. They never leave the orchestrator as a verdict.
	ModelLoadError  Classification = "Model Load Error"
	ImageLoadError  Classification = "Image Load Error"
	PredictionError Classification = "Prediction Error"
)

// Categories lists the verdicts a caller can receive, in declaration order.
var Categories = []Classification{Wildfire, Earthquake, Flood, Normal}

// IsDisaster reports whether c is one of the detected disaster categories
func (c Classification) IsDisaster() bool {
	switch c {
	case Wildfire, Earthquake, Flood:
		return true
	}
	return false
}

// IsError reports whether c is a vision tier failure sentinel
func (c Classification) IsError() bool {
	switch c {
	case ModelLoadError, ImageLoadError, PredictionError:
		return true
	}
	return false
}

func (c Classification) String() string {
	return string(c)
}

// ParseClassification canonicalizes s to one of the four verdict categories.
// The second return value is false when s is not a known category, in which case Normal is returned.
func ParseClassification(s string) (Classification, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c, true
		}
	}
	return Normal, false
}

// Source tells which tier produced a result
type Source string

const (
	SourceVisionAgent   Source = "Vision Agent"
	SourceThinkingAgent Source = "Thinking Agent"
)

// Report is the structured severity report produced by the thinking tier
type Report struct {
	Summary       string   `json:"summary"`
	SeverityScore int      `json:"severity_score"`
	Actions       []string `json:"actions"`
}

// FrameResult is the normalized outcome of analyzing one image
type FrameResult struct {
	Classification Classification `json:"classification"`
	PeopleCount    int            `json:"people_count"`
	AnalystReport  *Report        `json:"analyst_report"`
	Source         Source         `json:"source"`
	VisionError    string         `json:"vision_error,omitempty"`
}

// VideoResult is the aggregated outcome of analyzing a whole video.
// PeopleCount is the maximum observed across all analyzed frames.
type VideoResult struct {
	Classification Classification `json:"classification"`
	PeopleCount    int            `json:"people_count"`
	AnalystReport  *Report        `json:"analyst_report"`
	Source         Source         `json:"source"`
	FramesSampled  int            `json:"frames_sampled"`
}

// User is a registered uploader
type User struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// AnalysisLog is one append-only audit entry
type AnalysisLog struct {
	ID             string    `json:"id" db:"id"`
	UserID         *string   `json:"user_id" db:"user_id"`
	Filename       string    `json:"filename" db:"filename"`
	Classification string    `json:"classification" db:"classification"`
	PeopleCount    int       `json:"people_count" db:"people_count"`
	Source         string    `json:"source" db:"source"`
	ReportSummary  *string   `json:"report_summary" db:"report_summary"`
	SeverityScore  int       `json:"severity_score" db:"severity_score"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
}

// AnalysisEvent is published to the message broker for every logged verdict
type AnalysisEvent struct {
	LogID          string    `json:"log_id"`
	UserID         string    `json:"user_id,omitempty"`
	Filename       string    `json:"filename"`
	MediaType      string    `json:"media_type"`
	Classification string    `json:"classification"`
	PeopleCount    int       `json:"people_count"`
	Source         string    `json:"source"`
	Report         *Report   `json:"analyst_report,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
