package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"

	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// PageCounter opens a PDF and reports its page count.
type PageCounter interface {
	PageCount(path string) (int, error)
}

// FitzPageCounter counts pages with MuPDF.
type FitzPageCounter struct{}

// PageCount implements PageCounter.
func (FitzPageCounter) PageCount(path string) (int, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return 0, err
	}
	defer doc.Close()
	return doc.NumPage(), nil
}

// Loader reads source documents into memory for one AI request.
type Loader struct {
	validator *Validator
	pages     PageCounter
	logger    *observability.Logger
}

// NewLoader creates a loader. A nil counter uses MuPDF.
func NewLoader(pages PageCounter, logger *observability.Logger) *Loader {
	if logger == nil {
		logger = observability.Nop()
	}
	if pages == nil {
		pages = FitzPageCounter{}
	}
	return &Loader{validator: NewValidator(logger), pages: pages, logger: logger}
}

// Load validates and reads every path. PDFs that cannot be opened or have
// no pages are rejected.
func (l *Loader) Load(ctx context.Context, paths []string) ([]domain.Document, error) {
	if len(paths) == 0 {
		return nil, domain.ValidationError("task has no source documents", nil)
	}

	docs := make([]domain.Document, 0, len(paths))
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, domain.CancelledError("document loading cancelled", err)
		}
		if err := l.validator.ValidatePath(path); err != nil {
			return nil, err
		}

		mime := MIMEType(path)
		if mime == "application/pdf" {
			n, err := l.pages.PageCount(path)
			if err != nil {
				return nil, domain.ValidationError(fmt.Sprintf("cannot open PDF %s", filepath.Base(path)), err)
			}
			if n == 0 {
				return nil, domain.ValidationError(fmt.Sprintf("PDF has no pages: %s", filepath.Base(path)), nil)
			}
			l.logger.Debug().Str("path", path).Int("pages", n).Msg("Loaded PDF")
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.IOError(fmt.Sprintf("read %s", path), err)
		}
		docs = append(docs, domain.Document{Name: filepath.Base(path), MIMEType: mime, Data: data})
	}
	return docs, nil
}
