package equation

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

// MathNamespace is the OMML namespace URI.
const MathNamespace = "http://schemas.openxmlformats.org/officeDocument/2006/math"

const defaultTimeout = 10 * time.Second

var oMathRe = regexp.MustCompile(`(?s)<m:oMath(?:\s[^>]*)?>.*?</m:oMath>`)

// PandocConverter renders LaTeX through a pandoc subprocess.
type PandocConverter struct {
	path    string
	timeout time.Duration
	logger  *observability.Logger
}

// NewPandocConverter resolves the pandoc binary from the config or PATH.
// A converter without a binary returns nil for every span.
func NewPandocConverter(cfg config.EquationConfig, logger *observability.Logger) *PandocConverter {
	if logger == nil {
		logger = observability.Nop()
	}
	path := cfg.PandocPath
	if path == "" {
		if found, err := exec.LookPath("pandoc"); err == nil {
			path = found
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &PandocConverter{
		path:    path,
		timeout: timeout,
		logger:  logger.WithOperation("equation"),
	}
}

// Available reports whether a pandoc binary was found.
func (c *PandocConverter) Available() bool {
	return c.path != ""
}

// ToEquationObject converts one span. Failures are logged and yield nil.
func (c *PandocConverter) ToEquationObject(ctx context.Context, span string) *domain.EquationObject {
	if !c.Available() {
		return nil
	}

	latex := Normalize(span)
	omml, err := c.convert(ctx, latex)
	if err != nil {
		c.logger.Warn().Err(err).Str("latex", truncate(latex, 60)).Msg("Equation conversion failed")
		return nil
	}
	return &domain.EquationObject{Source: span, OMML: omml}
}

func (c *PandocConverter) convert(ctx context.Context, latex string) (string, error) {
	tmp, err := os.CreateTemp("", "quizgen-eq-*.docx")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.path, "--from=latex", "--to=docx", "-o", tmpPath)
	cmd.Stdin = strings.NewReader(latex)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("pandoc timed out after %s", c.timeout)
		}
		return "", fmt.Errorf("pandoc: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	xml, err := readDocumentXML(tmpPath)
	if err != nil {
		return "", err
	}

	omml := ExtractOMML(xml)
	if omml == "" {
		return "", errors.New("no equation in pandoc output")
	}
	return omml, nil
}

func readDocumentXML(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", fmt.Errorf("open pandoc output: %w", err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		return string(data), nil
	}
	return "", errors.New("document.xml missing from pandoc output")
}

// ExtractOMML returns the first m:oMath element of a document body, with the
// math namespace declared on it.
func ExtractOMML(documentXML string) string {
	m := oMathRe.FindString(documentXML)
	if m == "" {
		return ""
	}
	if !strings.Contains(m, "xmlns:m=") {
		m = strings.Replace(m, "<m:oMath", `<m:oMath xmlns:m="`+MathNamespace+`"`, 1)
	}
	return m
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
