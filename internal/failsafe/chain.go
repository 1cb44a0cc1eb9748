// Package failsafe guarantees that every task leaves an inspectable artifact,
// degrading through raw dumps and minimal failure notes as stages fail.
package failsafe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/spherical/quizgen/internal/docx"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
	"github.com/spherical/quizgen/internal/questions"
	"github.com/spherical/quizgen/internal/render"
)

// Output name suffixes for degraded artifacts.
const (
	SuffixParse     = "_loi_parse"
	SuffixRender    = "_loi_render"
	SuffixSave      = "_loi_luu"
	SuffixSystem    = "_loi_he_thong"
	SuffixTransport = "_loi_ai"
	SuffixInput     = "_loi_dau_vao"
)

// Parser turns AI text into a question set.
type Parser interface {
	ParseResponse(ctx context.Context, raw string, kind domain.QuestionKind) (*domain.QuestionSet, error)
}

// Renderer turns a question set into a document.
type Renderer interface {
	Render(ctx context.Context, set *domain.QuestionSet) (*docx.Document, render.Stats, error)
}

// Persister writes artifacts and returns their paths.
type Persister interface {
	SaveDocument(ctx context.Context, batch, name string, doc *docx.Document) (string, error)
	SaveJSON(ctx context.Context, batch, name string, v any) (string, error)
}

// Options toggles optional outputs.
type Options struct {
	DebugJSON bool
}

// Chain is the parse, render and persist pipeline for one AI response.
type Chain struct {
	parser   Parser
	renderer Renderer
	store    Persister
	opts     Options
	logger   *observability.Logger
}

// NewChain wires the pipeline stages.
func NewChain(parser Parser, renderer Renderer, store Persister, opts Options, logger *observability.Logger) *Chain {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Chain{parser: parser, renderer: renderer, store: store, opts: opts, logger: logger}
}

// attempt tracks one Produce call so no tier runs twice.
type attempt struct {
	c           *Chain
	ctx         context.Context
	task        domain.Task
	logger      *observability.Logger
	systemTried bool
}

// Produce runs the full chain. It never panics and always returns exactly one
// result; ArtifactPath is empty only when even the minimal note could not be
// written.
func (c *Chain) Produce(ctx context.Context, task domain.Task, aiText string) (result domain.TaskResult) {
	start := time.Now()
	a := &attempt{c: c, ctx: ctx, task: task, logger: c.logger.WithTask(task.ID, task.OutputName)}

	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error().
				Str("panic", fmt.Sprint(rec)).
				Str("stack", string(debug.Stack())).
				Msg("Pipeline panicked")
			result = a.system(fmt.Errorf("panic: %v", rec))
		}
		result.Duration = time.Since(start)
	}()

	return a.run(aiText)
}

// ProduceTransportFailure records an AI call that never returned text.
func (c *Chain) ProduceTransportFailure(ctx context.Context, task domain.Task, cause error) domain.TaskResult {
	return c.notice(ctx, task, SuffixTransport, "LỖI GỌI AI",
		"Không nhận được phản hồi từ AI: ", fmt.Errorf("ai call failed: %w", cause))
}

// ProduceInputFailure records a task whose source documents could not be read.
func (c *Chain) ProduceInputFailure(ctx context.Context, task domain.Task, cause error) domain.TaskResult {
	return c.notice(ctx, task, SuffixInput, "LỖI TÀI LIỆU ĐẦU VÀO",
		"Không đọc được tài liệu đầu vào: ", fmt.Errorf("load documents: %w", cause))
}

// notice writes a tier 3 note for a task that failed before the chain ran.
func (c *Chain) notice(ctx context.Context, task domain.Task, suffix, title, lead string, cause error) (result domain.TaskResult) {
	start := time.Now()
	a := &attempt{c: c, ctx: ctx, task: task, logger: c.logger.WithTask(task.ID, task.OutputName)}

	defer func() {
		if rec := recover(); rec != nil {
			result = a.base()
			result.ErrorMessage = fmt.Sprintf("%v; panic: %v", cause, rec)
			result.Tier = domain.TierNone
		}
		result.Duration = time.Since(start)
	}()

	a.logger.Error().Err(cause).Msg("Task failed before parsing")

	result = a.base()
	result.ErrorMessage = cause.Error()
	detail := cause.Error()
	if inner := errors.Unwrap(cause); inner != nil {
		detail = inner.Error()
	}
	path, err := c.store.SaveDocument(ctx, task.BatchName, task.OutputName+suffix, noticeDocument(title, lead+detail))
	if err != nil {
		a.logger.Error().Err(err).Msg("Could not save failure note")
		result.ErrorMessage = fmt.Sprintf("%v; save failure note: %v", cause, err)
		result.Tier = domain.TierNone
		return result
	}
	result.ArtifactPath = path
	result.Tier = domain.TierMinimal
	return result
}

func (a *attempt) base() domain.TaskResult {
	return domain.TaskResult{TaskID: a.task.ID, OutputName: a.task.OutputName, Kind: a.task.Kind}
}

func (a *attempt) run(aiText string) domain.TaskResult {
	c := a.c

	set, err := c.parser.ParseResponse(a.ctx, aiText, a.task.Kind)
	if err != nil {
		return a.parseFailure(aiText, err)
	}
	a.logger.Info().Int("questions", len(set.Questions)).Msg("Parsed AI response")

	result := a.base()
	if c.opts.DebugJSON {
		if path, err := c.store.SaveJSON(a.ctx, a.task.BatchName, a.task.OutputName, set); err != nil {
			a.logger.Warn().Err(err).Msg("Debug dump failed")
		} else {
			result.DebugPath = path
		}
	}

	doc, stats, err := a.render(set)
	if err != nil {
		return a.renderFailure(set, err, result.DebugPath)
	}
	a.logger.Info().
		Int("questions", stats.Questions).
		Int("placeholders", stats.Failed).
		Int("equation_misses", stats.EquationMisses).
		Msg("Rendered document")

	path, err := c.store.SaveDocument(a.ctx, a.task.BatchName, a.task.OutputName, doc)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Primary save failed, trying fallback name")
		path, err = c.store.SaveDocument(a.ctx, a.task.BatchName, a.task.OutputName+SuffixSave, doc)
		if err != nil {
			return a.system(fmt.Errorf("save document: %w", err))
		}
	}

	result.ArtifactPath = path
	result.Tier = domain.TierRendered
	return result
}

// render runs the renderer, turning a panic into an error so the validated
// data still reaches the tier 2 dump.
func (a *attempt) render(set *domain.QuestionSet) (doc *docx.Document, stats render.Stats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			a.logger.Error().
				Str("panic", fmt.Sprint(rec)).
				Str("stack", string(debug.Stack())).
				Msg("Renderer panicked")
			doc, err = nil, domain.RenderingError("renderer panicked", fmt.Errorf("panic: %v", rec))
		}
	}()
	return a.c.renderer.Render(a.ctx, set)
}

func (a *attempt) parseFailure(aiText string, cause error) domain.TaskResult {
	a.logger.Warn().Err(cause).Msg("Parse failed, saving raw response")

	raw := aiText
	var pe *questions.ParseError
	if errors.As(cause, &pe) && pe.RawText != "" {
		raw = pe.RawText
	}

	doc := docx.New()
	doc.Heading("ĐỀ "+a.task.Kind.Label(), 0)
	doc.Heading("PHẢN HỒI TỪ AI (RAW)", 2)
	codeBlock(doc, raw)
	doc.Heading("LỖI", 3)
	doc.Paragraph().Text("Dữ liệu từ AI không ở định dạng JSON hợp lệ và không thể xử lý.")
	doc.Paragraph().Styled("Chi tiết: "+cause.Error(), docx.Format{Italic: true, Color: docx.ColorRed})
	doc.Paragraph().Text("Vui lòng kiểm tra lại prompt hoặc nội dung file đầu vào.")

	return a.degraded(doc, SuffixParse, fmt.Sprintf("parse failed: %v", cause), "")
}

func (a *attempt) renderFailure(set *domain.QuestionSet, cause error, debugPath string) domain.TaskResult {
	a.logger.Warn().Err(cause).Msg("Render failed, saving validated data")

	dump, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		dump = []byte(fmt.Sprintf("%+v", set))
	}

	doc := docx.New()
	doc.Heading("ĐỀ "+a.task.Kind.Label(), 0)
	doc.Heading("DỮ LIỆU TỪ AI (RAW - JSON)", 2)
	codeBlock(doc, string(dump))
	doc.Heading("LỖI KHI XỬ LÝ", 3)
	doc.Paragraph().Styled("Lỗi render: "+cause.Error(), docx.Format{Italic: true, Color: docx.ColorRed})
	doc.Paragraph().Text("Dữ liệu thô đã được lưu. Vui lòng kiểm tra lại cấu trúc JSON.")

	return a.degraded(doc, SuffixRender, fmt.Sprintf("render failed: %v", cause), debugPath)
}

// degraded persists a tier-2 document, falling through to tier 3 on failure.
func (a *attempt) degraded(doc *docx.Document, suffix, msg, debugPath string) domain.TaskResult {
	path, err := a.c.store.SaveDocument(a.ctx, a.task.BatchName, a.task.OutputName+suffix, doc)
	if err != nil {
		return a.system(fmt.Errorf("%s; save fallback document: %w", msg, err))
	}
	result := a.base()
	result.ArtifactPath = path
	result.DebugPath = debugPath
	result.ErrorMessage = msg
	result.Tier = domain.TierRawDump
	return result
}

// system writes the minimal failure note. It runs at most once per attempt.
func (a *attempt) system(cause error) domain.TaskResult {
	result := a.base()
	result.ErrorMessage = cause.Error()
	result.Tier = domain.TierNone

	if a.systemTried {
		return result
	}
	a.systemTried = true

	a.logger.Error().Err(cause).Msg("Writing minimal failure note")
	doc := noticeDocument("LỖI HỆ THỐNG", "Lỗi nghiêm trọng: "+cause.Error())
	path, err := a.c.store.SaveDocument(a.ctx, a.task.BatchName, a.task.OutputName+SuffixSystem, doc)
	if err != nil {
		a.logger.Error().Err(err).Msg("Could not save failure note, task has no artifact")
		result.ErrorMessage = fmt.Sprintf("%s; save failure note: %v", cause, err)
		return result
	}
	result.ArtifactPath = path
	result.Tier = domain.TierMinimal
	return result
}

func noticeDocument(title, detail string) *docx.Document {
	doc := docx.New()
	doc.Heading(title, 0)
	doc.Paragraph().Styled(detail, docx.Format{Color: docx.ColorRed})
	doc.Paragraph().Text("Hệ thống không thể xử lý yêu cầu.")
	return doc
}

func codeBlock(doc *docx.Document, text string) {
	if text == "" {
		text = "(trống)"
	}
	p := doc.Paragraph().Text(text)
	p.Style = docx.StyleCode
}
