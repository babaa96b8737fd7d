package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
)

var (
	// ErrUploadValidation is the parent of every upload rejection
	ErrUploadValidation = errors.New("invalid upload")

	ErrMissingFile         = fmt.Errorf("%w: no file provided", ErrUploadValidation)
	ErrEmptyFilename       = fmt.Errorf("%w: no selected file", ErrUploadValidation)
	ErrDisallowedExtension = fmt.Errorf("%w: invalid file type", ErrUploadValidation)
	ErrUploadTooLarge      = fmt.Errorf("%w: file too large", ErrUploadValidation)
)

var (
	imageExtensions = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".webp": true}
	videoExtensions = map[string]bool{".mp4": true, ".avi": true, ".mov": true}
)

func fileExtension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func isImage(name string) bool { return imageExtensions[fileExtension(name)] }

func isVideo(name string) bool { return videoExtensions[fileExtension(name)] }

// formFile returns the uploaded file of a multipart field after size, name and extension checks
func (h *Handlers) formFile(c *gin.Context, field string, allowed func(string) bool) (*multipart.FileHeader, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)

	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large") {
			return nil, ErrUploadTooLarge
		}
		return nil, ErrMissingFile
	}
	if fh.Size > h.maxUploadBytes {
		return nil, ErrUploadTooLarge
	}

	name := filepath.Base(fh.Filename)
	if fh.Filename == "" || name == "." || name == string(filepath.Separator) {
		return nil, ErrEmptyFilename
	}
	if !allowed(name) {
		return nil, fmt.Errorf("%w: %s", ErrDisallowedExtension, fileExtension(name))
	}
	fh.Filename = name
	return fh, nil
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	return data, nil
}

// saveTemp writes the upload to a per-request temporary file. The returned cleanup removes it.
func (h *Handlers) saveTemp(fh *multipart.FileHeader) (string, func(), error) {
	src, err := fh.Open()
	if err != nil {
		return "", nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(h.uploadDir, "threatsense-*"+fileExtension(fh.Filename))
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	cleanup := func() {
		os.Remove(dst.Name())
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		cleanup()
		return "", nil, fmt.Errorf("failed to save upload: %w", err)
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("failed to save upload: %w", err)
	}
	return dst.Name(), cleanup, nil
}
