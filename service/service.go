package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"threatsense/database"
	"threatsense/metrics"
	"threatsense/models"

	"github.com/apex/log"
)

const (
	mediaImage = "image"
	mediaVideo = "video"

	liveFramePrefix = "live_frame_"
)

var (
	// ErrInvalidUser is returned when a registration lacks a name or a plausible email
	ErrInvalidUser = errors.New("name and email are required")
	// ErrStoreUnavailable is returned by history operations when no database is configured
	ErrStoreUnavailable = errors.New("audit log is not configured")
)

// Store is the audit log
type Store interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetOrCreateGuestUser(ctx context.Context, name, email string) (*models.User, error)
	SaveAnalysisLog(ctx context.Context, entry *models.AnalysisLog) error
	GetAnalysisLogs(ctx context.Context, userID string, limit int) ([]models.AnalysisLog, error)
}

// EventPublisher receives every logged verdict
type EventPublisher interface {
	Publish(ctx context.Context, message interface{}) error
}

// FrameAnalyzer classifies one image
type FrameAnalyzer interface {
	ProcessFrame(ctx context.Context, imageData []byte, allowFallback bool) models.FrameResult
}

// VideoAnalyzer classifies a whole video file
type VideoAnalyzer interface {
	ProcessVideo(ctx context.Context, path string, sampleRate int) (models.VideoResult, error)
}

// Options tune request handling
type Options struct {
	SampleRate int
	GuestName  string
	GuestEmail string
	LogsLimit  int
}

// Service runs analyses on behalf of HTTP requests and records their verdicts.
// Recording is best-effort: audit log and publisher failures never change a result.
type Service struct {
	frames    FrameAnalyzer
	videos    VideoAnalyzer
	store     Store
	publisher EventPublisher
	opts      Options

	guestMu sync.Mutex
	guestID string
}

// NewService creates the service. store and publisher may be nil.
func NewService(frames FrameAnalyzer, videos VideoAnalyzer, store Store, publisher EventPublisher, opts Options) *Service {
	return &Service{
		frames:    frames,
		videos:    videos,
		store:     store,
		publisher: publisher,
		opts:      opts,
	}
}

// AnalyzeFrame classifies a live or uploaded image with thinking-tier fallback.
// Only threats are recorded, since live camera feeds would flood the log with Normal frames.
func (s *Service) AnalyzeFrame(ctx context.Context, imageData []byte, filename, userID string) models.FrameResult {
	result := s.frames.ProcessFrame(ctx, imageData, true)

	log.WithFields(log.Fields{
		"filename":       filename,
		"classification": string(result.Classification),
		"source":         string(result.Source),
		"people_count":   result.PeopleCount,
	}).Info("Frame analyzed")

	if result.Classification != models.Normal {
		var uid *string
		if s.knownUser(ctx, userID) {
			uid = &userID
		}
		s.record(ctx, uid, liveFramePrefix+filename, mediaImage, result.Classification, result.PeopleCount, result.Source, result.AnalystReport)
	}
	return result
}

// AnalyzeVideo classifies a stored video and always records the verdict, attributing anonymous
// uploads to the guest user.
func (s *Service) AnalyzeVideo(ctx context.Context, path, filename, userID string) (models.VideoResult, error) {
	start := time.Now()
	result, err := s.videos.ProcessVideo(ctx, path, s.opts.SampleRate)
	if err != nil {
		return models.VideoResult{}, err
	}

	log.WithFields(log.Fields{
		"filename":       filename,
		"classification": string(result.Classification),
		"source":         string(result.Source),
		"people_count":   result.PeopleCount,
		"frames_sampled": result.FramesSampled,
		"duration":       time.Since(start).String(),
	}).Info("Video analyzed")

	uid := s.resolveUser(ctx, userID)
	s.record(ctx, uid, filename, mediaVideo, result.Classification, result.PeopleCount, result.Source, result.AnalystReport)
	return result, nil
}

// RegisterUser creates a user, or returns the existing one with created=false when the email is taken
func (s *Service) RegisterUser(ctx context.Context, name, email string) (user *models.User, created bool, err error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, false, ErrInvalidUser
	}
	if s.store == nil {
		return nil, false, ErrStoreUnavailable
	}

	existing, err := s.store.GetUserByEmail(ctx, email)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, false, fmt.Errorf("registration failed: %w", err)
	}

	user, err = s.store.CreateUser(ctx, name, email)
	if err != nil {
		return nil, false, fmt.Errorf("registration failed: %w", err)
	}
	log.Infof("New user registration: %s -> ID: %s", email, user.ID)
	return user, true, nil
}

// RecentLogs returns the newest analysis log entries of a user
func (s *Service) RecentLogs(ctx context.Context, userID string) ([]models.AnalysisLog, error) {
	if s.store == nil {
		return nil, ErrStoreUnavailable
	}
	return s.store.GetAnalysisLogs(ctx, userID, s.opts.LogsLimit)
}

// knownUser reports whether userID can be referenced by an analysis log entry.
// A failed lookup keeps the id so the entry is not silently reattributed.
func (s *Service) knownUser(ctx context.Context, userID string) bool {
	if userID == "" || s.store == nil {
		return false
	}
	_, err := s.store.GetUserByID(ctx, userID)
	if errors.Is(err, database.ErrNotFound) {
		log.Warnf("Unknown user id %q, not attributing the analysis", userID)
		return false
	}
	if err != nil {
		log.Warnf("Failed to look up user %q: %v", userID, err)
	}
	return true
}

// resolveUser returns the requesting user, or the guest user when the id is absent or unknown
func (s *Service) resolveUser(ctx context.Context, userID string) *string {
	if s.store == nil {
		return nil
	}
	if s.knownUser(ctx, userID) {
		return &userID
	}

	s.guestMu.Lock()
	defer s.guestMu.Unlock()
	if s.guestID == "" {
		guest, err := s.store.GetOrCreateGuestUser(ctx, s.opts.GuestName, s.opts.GuestEmail)
		if err != nil {
			log.Errorf("Failed to resolve guest user: %v", err)
			return nil
		}
		s.guestID = guest.ID
		log.Infof("Using guest user ID: %s", s.guestID)
	}
	id := s.guestID
	return &id
}

func (s *Service) record(ctx context.Context, userID *string, filename, mediaType string, classification models.Classification, peopleCount int, source models.Source, report *models.Report) {
	entry := &models.AnalysisLog{
		UserID:         userID,
		Filename:       filename,
		Classification: string(classification),
		PeopleCount:    peopleCount,
		Source:         string(source),
		Timestamp:      time.Now().UTC(),
	}
	if report != nil {
		summary := report.Summary
		entry.ReportSummary = &summary
		entry.SeverityScore = report.SeverityScore
	}

	if s.store != nil {
		if err := s.store.SaveAnalysisLog(ctx, entry); err != nil {
			metrics.AuditLogErrorsTotal.Inc()
			log.Errorf("Failed to save analysis log for %s: %v", filename, err)
		}
	}

	if s.publisher == nil {
		return
	}
	event := models.AnalysisEvent{
		LogID:          entry.ID,
		Filename:       filename,
		MediaType:      mediaType,
		Classification: entry.Classification,
		PeopleCount:    peopleCount,
		Source:         entry.Source,
		Report:         report,
		Timestamp:      entry.Timestamp,
	}
	if userID != nil {
		event.UserID = *userID
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Warnf("Failed to publish analysis event for %s: %v", filename, err)
	}
}
