package handlers

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strings"

	"threatsense/models"
	"threatsense/service"
	"threatsense/video"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

// Analyzer is the application service behind the HTTP routes
type Analyzer interface {
	AnalyzeFrame(ctx context.Context, imageData []byte, filename, userID string) models.FrameResult
	AnalyzeVideo(ctx context.Context, path, filename, userID string) (models.VideoResult, error)
	RegisterUser(ctx context.Context, name, email string) (*models.User, bool, error)
	RecentLogs(ctx context.Context, userID string) ([]models.AnalysisLog, error)
}

// Handlers represents the HTTP handlers
type Handlers struct {
	svc            Analyzer
	maxUploadBytes int64
	uploadDir      string
}

// NewHandlers creates new HTTP handlers
func NewHandlers(svc Analyzer, maxUploadBytes int64, uploadDir string) *Handlers {
	return &Handlers{
		svc:            svc,
		maxUploadBytes: maxUploadBytes,
		uploadDir:      uploadDir,
	}
}

// RegisterRequest is the body of POST /register
type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "threatsense",
	})
}

// AnalyzeFrame classifies a single image from the "image" field, escalating to the thinking tier
func (h *Handlers) AnalyzeFrame(c *gin.Context) {
	fh, err := h.formFile(c, "image", isImage)
	if err != nil {
		uploadError(c, err, "Allowed: png, jpg, jpeg, webp")
		return
	}
	h.analyzeImage(c, fh)
}

// AnalyzeVideo classifies a video from the "video" field
func (h *Handlers) AnalyzeVideo(c *gin.Context) {
	fh, err := h.formFile(c, "video", isVideo)
	if err != nil {
		uploadError(c, err, "Allowed: mp4, avi, mov")
		return
	}
	h.analyzeVideo(c, fh)
}

// Classify accepts either kind of media in the "file" field and dispatches on the extension
func (h *Handlers) Classify(c *gin.Context) {
	fh, err := h.formFile(c, "file", func(name string) bool { return isImage(name) || isVideo(name) })
	if err != nil {
		uploadError(c, err, "Allowed: png, jpg, jpeg, webp, mp4, avi, mov")
		return
	}
	if isVideo(fh.Filename) {
		h.analyzeVideo(c, fh)
		return
	}
	h.analyzeImage(c, fh)
}

func (h *Handlers) analyzeImage(c *gin.Context, fh *multipart.FileHeader) {
	data, err := readUpload(fh)
	if err != nil {
		log.Errorf("Frame analysis error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Frame analysis failed"})
		return
	}

	result := h.svc.AnalyzeFrame(c.Request.Context(), data, fh.Filename, requestUserID(c))
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) analyzeVideo(c *gin.Context, fh *multipart.FileHeader) {
	filename := fh.Filename
	path, cleanup, err := h.saveTemp(fh)
	if err != nil {
		log.Errorf("Video processing error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Video processing failed"})
		return
	}
	defer cleanup()

	result, err := h.svc.AnalyzeVideo(c.Request.Context(), path, filename, requestUserID(c))
	if err != nil {
		log.WithField("filename", filename).Errorf("Video processing error: %v", err)
		msg := "Video processing failed"
		if errors.Is(err, video.ErrVideoOpen) {
			msg = "Video processing failed: could not open video file"
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Register creates a user or returns the id of the existing user with the same email
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and email are required"})
		return
	}

	user, created, err := h.svc.RegisterUser(c.Request.Context(), req.Name, req.Email)
	switch {
	case errors.Is(err, service.ErrInvalidUser):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and email are required"})
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Registration unavailable"})
	case err != nil:
		log.Errorf("Registration error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
	case created:
		c.JSON(http.StatusCreated, gin.H{"message": "Registration successful", "user_id": user.ID})
	default:
		c.JSON(http.StatusOK, gin.H{"message": "Email already registered", "user_id": user.ID})
	}
}

// GetLogs returns the most recent analysis log entries of a user
func (h *Handlers) GetLogs(c *gin.Context) {
	userID := strings.TrimSpace(c.Param("user_id"))
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	logs, err := h.svc.RecentLogs(c.Request.Context(), userID)
	switch {
	case errors.Is(err, service.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analysis history unavailable"})
	case err != nil:
		log.Errorf("Failed to load logs for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load analysis logs"})
	default:
		if logs == nil {
			logs = []models.AnalysisLog{}
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID, "logs": logs})
	}
}

func requestUserID(c *gin.Context) string {
	if id := strings.TrimSpace(c.PostForm("user_id")); id != "" {
		return id
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

func uploadError(c *gin.Context, err error, allowed string) {
	msg := "Invalid upload"
	switch {
	case errors.Is(err, ErrMissingFile):
		msg = "No file provided"
	case errors.Is(err, ErrEmptyFilename):
		msg = "No selected file"
	case errors.Is(err, ErrDisallowedExtension):
		msg = "Invalid file type. " + allowed
	case errors.Is(err, ErrUploadTooLarge):
		msg = "File too large"
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
