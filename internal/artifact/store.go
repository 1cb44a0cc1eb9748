// Package artifact persists generated documents under the output root.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/docx"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// Store writes artifacts to <root>/<batch>/<name>.<ext>.
type Store struct {
	root    string
	retries int
	delay   time.Duration
	logger  *observability.Logger
}

// NewStore creates a store from output settings.
func NewStore(cfg config.OutputConfig, logger *observability.Logger) *Store {
	if logger == nil {
		logger = observability.Nop()
	}
	retries := cfg.SaveRetries
	if retries < 1 {
		retries = 1
	}
	root := cfg.Root
	if root == "" {
		root = "output"
	}
	return &Store{root: root, retries: retries, delay: cfg.RetryDelay, logger: logger.WithOperation("artifact")}
}

// Root returns the output root directory.
func (s *Store) Root() string {
	return s.root
}

// BatchDir creates the batch directory if needed and returns its path.
func (s *Store) BatchDir(batch string) (string, error) {
	dir := filepath.Join(s.root, SanitizeFilename(batch))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.PersistenceError("create batch directory", err)
	}
	return dir, nil
}

// Path returns where an artifact would be written, without touching disk.
func (s *Store) Path(batch, name, ext string) string {
	return filepath.Join(s.root, SanitizeFilename(batch), SanitizeFilename(name)+ext)
}

// SaveDocument encodes doc and writes <name>.docx, retrying failed writes.
func (s *Store) SaveDocument(ctx context.Context, batch, name string, doc *docx.Document) (string, error) {
	data, err := doc.Bytes()
	if err != nil {
		return "", domain.PersistenceError("encode document", err)
	}
	return s.save(ctx, batch, name, ".docx", data)
}

// SaveJSON writes v as indented JSON to <name>.json.
func (s *Store) SaveJSON(ctx context.Context, batch, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", domain.PersistenceError("encode json", err)
	}
	return s.save(ctx, batch, name, ".json", data)
}

func (s *Store) save(ctx context.Context, batch, name, ext string, data []byte) (string, error) {
	dir, err := s.BatchDir(batch)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, SanitizeFilename(name)+ext)

	var lastErr error
	for attempt := 1; attempt <= s.retries; attempt++ {
		if lastErr = writeAtomic(path, data); lastErr == nil {
			s.logger.Info().Str("path", path).Int("bytes", len(data)).Msg("Saved artifact")
			return path, nil
		}

		s.logger.Warn().Err(lastErr).Str("path", path).Int("attempt", attempt).Msg("Save failed")
		if attempt == s.retries {
			break
		}
		select {
		case <-ctx.Done():
			return "", domain.PersistenceError("save cancelled", ctx.Err())
		case <-time.After(s.delay):
		}
	}
	return "", domain.PersistenceError(fmt.Sprintf("save %s after %d attempts", filepath.Base(path), s.retries), lastErr)
}

// writeAtomic writes to a temp file in the target directory and renames it
// into place so a reader never sees a partial document.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}

const reservedChars = `/\:*?"'<>|`

// SanitizeFilename removes path separators, quotes and other characters that
// are unsafe in file names on common filesystems.
func SanitizeFilename(name string) string {
	name = norm.NFC.String(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case strings.ContainsRune(reservedChars, r):
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(strings.TrimSpace(b.String()), ". ")
	if out == "" {
		return "untitled"
	}
	return out
}
