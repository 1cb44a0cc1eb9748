// Package pdf validates and loads the source documents sent to the AI.
package pdf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

const maxSize = 100 * 1024 * 1024 // 100MB

var mimeTypes = map[string]string{
	".pdf":  "application/pdf",
	".txt":  "text/plain",
	".md":   "text/markdown",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
}

// Supported reports whether the file extension can be sent to the AI.
func Supported(path string) bool {
	_, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]
	return ok
}

// MIMEType returns the MIME type for a supported path.
func MIMEType(path string) string {
	return mimeTypes[strings.ToLower(filepath.Ext(path))]
}

// Validator provides input validation for source documents.
type Validator struct {
	logger *observability.Logger
}

// NewValidator creates a new validator instance.
func NewValidator(logger *observability.Logger) *Validator {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Validator{logger: logger}
}

// ValidatePath checks that path is a readable file of a supported type.
func (v *Validator) ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}
	if info.IsDir() {
		return domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}
	if !Supported(path) {
		return domain.ValidationError(fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil)
	}
	if info.Size() == 0 {
		return domain.ValidationError(fmt.Sprintf("file is empty: %s", path), nil)
	}
	if info.Size() > maxSize {
		v.logger.Warn().Str("path", path).Int64("size_mb", info.Size()/(1024*1024)).Msg("Source file is very large")
	}
	return nil
}
