// Package render turns a validated question set into a Word document.
package render

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/spherical/quizgen/internal/docx"
	"github.com/spherical/quizgen/internal/domain"
	"github.com/spherical/quizgen/internal/observability"
)

const (
	labelSolution    = "Lời giải"
	labelSeparator   = "####"
	labelConclusion  = "Vậy đáp án đúng là: "
	labelShortAnswer = "Đáp án: "
	colorPlaceholder = "C80000"
)

// Options controls optional output.
type Options struct {
	// Bilingual renders English fields under the Vietnamese text.
	Bilingual bool
}

// Renderer renders question sets. It is safe for concurrent use.
type Renderer struct {
	equations domain.EquationConverter
	images    domain.ImageGenerator
	opts      Options
	logger    *observability.Logger
}

// New creates a renderer. A nil converter renders every LaTeX span as its
// bracketed source text.
func New(equations domain.EquationConverter, opts Options, logger *observability.Logger) *Renderer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &Renderer{equations: equations, opts: opts, logger: logger.WithOperation("render")}
}

// WithImages returns a copy of r that draws described illustrations with
// gen. A nil gen leaves every illustration as a placeholder.
func (r *Renderer) WithImages(gen domain.ImageGenerator) *Renderer {
	cp := *r
	cp.images = gen
	return &cp
}

// Stats summarises one render.
type Stats struct {
	Questions      int
	Failed         int
	Equations      int
	EquationMisses int
	Images         int
	ImagesDrawn    int
	ImageFailures  int
}

// Render builds the document for set. One bad question is replaced by a
// placeholder; only a nil set or a cancelled context fails the render.
func (r *Renderer) Render(ctx context.Context, set *domain.QuestionSet) (*docx.Document, Stats, error) {
	var stats Stats
	if set == nil {
		return nil, stats, domain.RenderingError("no question set to render", nil)
	}

	st := &state{r: r, ctx: ctx, doc: docx.New(), seq: &Sequence{}, stats: &stats}
	st.doc.Heading("ĐỀ "+set.Kind.Label(), 0)

	for _, section := range Group(set.Questions) {
		if err := ctx.Err(); err != nil {
			return nil, stats, domain.CancelledError("render cancelled", err)
		}
		st.doc.Heading(section.Bucket.Heading(), 2)

		var prevPath []string
		for _, q := range section.Questions {
			from := changedFrom(prevPath, q.HierarchyPath)
			for level := from; level < len(q.HierarchyPath); level++ {
				st.doc.Heading(strings.ToUpper(q.HierarchyPath[level]), 3+level)
			}
			prevPath = q.HierarchyPath

			st.doc.Append(st.question(q))
			stats.Questions++
		}
	}

	r.logger.Debug().
		Int("questions", stats.Questions).
		Int("failed", stats.Failed).
		Int("equations", stats.Equations).
		Int("equation_misses", stats.EquationMisses).
		Int("images", stats.Images).
		Int("images_drawn", stats.ImagesDrawn).
		Msg("Rendered question set")

	return st.doc, stats, nil
}

type state struct {
	r     *Renderer
	ctx   context.Context
	doc   *docx.Document
	seq   *Sequence
	stats *Stats
}

// question renders q into a scratch body. Errors and panics are contained
// here and replaced by a placeholder.
func (st *state) question(q domain.Question) (body *docx.Body) {
	scratch := &docx.Body{}

	defer func() {
		if rec := recover(); rec != nil {
			st.r.logger.Error().
				Int("question", q.Index).
				Str("panic", fmt.Sprint(rec)).
				Str("stack", string(debug.Stack())).
				Msg("Question render panicked")
			body = st.placeholder(q, fmt.Sprintf("panic: %v", rec))
		}
	}()

	if err := st.renderPayload(scratch, q); err != nil {
		st.r.logger.Warn().Int("question", q.Index).Err(err).Msg("Question rendered as placeholder")
		return st.placeholder(q, err.Error())
	}
	return scratch
}

func (st *state) renderPayload(b *docx.Body, q domain.Question) error {
	switch p := q.Payload.(type) {
	case domain.MultipleChoice:
		return st.multipleChoice(b, q, p)
	case domain.TrueFalseSet:
		return st.trueFalse(b, q, p)
	case domain.ShortAnswer:
		return st.shortAnswer(b, q, p)
	case domain.Essay:
		return st.essay(b, q, p)
	case domain.InvalidPayload:
		return domain.RenderingError(p.Reason, nil)
	case nil:
		return domain.RenderingError("question has no payload", nil)
	}
	return domain.RenderingError(fmt.Sprintf("unsupported payload %s", domain.PayloadKind(q.Payload)), nil)
}

func (st *state) placeholder(q domain.Question, reason string) *docx.Body {
	st.stats.Failed++
	b := &docx.Body{}

	raw := q.Body
	if inv, ok := q.Payload.(domain.InvalidPayload); ok && inv.Raw != "" {
		raw = inv.Raw
	}
	b.Paragraph().Bold(questionLabel(q.Index)).Text(CleanHTML(raw))
	b.Paragraph().Styled(fmt.Sprintf("⚠ [Lỗi hiển thị câu %d: %s]", q.Index, reason), docx.Format{
		Bold:   true,
		Italic: true,
		Color:  docx.ColorRed,
	})
	return b
}

func (st *state) multipleChoice(b *docx.Body, q domain.Question, mc domain.MultipleChoice) error {
	if mc.Correct < 1 || mc.Correct > len(mc.Choices) {
		return domain.RenderingError(fmt.Sprintf("correct choice %d out of range", mc.Correct), nil)
	}

	st.rich(b.Paragraph().Bold(questionLabel(q.Index)), q.Body, false)
	st.english(b, q.BodyEN)
	st.image(b, q.Image)

	for _, c := range mc.Choices {
		p := b.Paragraph().Text(c.Label + ". ")
		st.rich(p, c.Text, false)
		if st.r.opts.Bilingual && c.TextEN != "" {
			p.Styled(" / "+c.TextEN, docx.Format{Italic: true})
		}
	}

	b.Paragraph().Bold(labelSolution)
	b.Paragraph().Bold(mc.CorrectChoice().Label)
	b.Paragraph().Text(labelSeparator)

	st.lines(b, mc.Explanation, false)
	st.english(b, mc.ExplanationEN)

	st.rich(b.Paragraph().Bold(labelConclusion), mc.CorrectChoice().Text, true)
	return nil
}

func (st *state) trueFalse(b *docx.Body, q domain.Question, tf domain.TrueFalseSet) error {
	if len(tf.Items) == 0 {
		return domain.RenderingError("true/false question has no statements", nil)
	}

	b.Paragraph().Bold(strings.TrimSpace(questionLabel(q.Index)))
	if tf.Context != "" {
		st.rich(b.Paragraph(), tf.Context, false)
	}
	if q.Body != "" && q.Body != tf.Context {
		st.rich(b.Paragraph(), q.Body, false)
	}
	st.english(b, q.BodyEN)
	st.image(b, q.Image)

	for _, item := range tf.Items {
		st.rich(b.Paragraph().Text(item.Label+") "), item.Text, false)
	}

	b.Paragraph().Bold(labelSolution)
	b.Paragraph().Bold(tf.AnswerBits)
	b.Paragraph().Text(labelSeparator)

	explanations := tf.Explanations
	if len(explanations) == 0 {
		for _, item := range tf.Items {
			explanations = append(explanations, domain.TrueFalseExplanation{Label: item.Label, ItemText: item.Text})
		}
	}
	for _, ex := range explanations {
		text := ex.ItemText
		if text == "" {
			text = itemText(tf.Items, ex.Label)
		}
		p := b.Paragraph().Text("- ")
		st.rich(p, text, false)
		p.Bold(" - " + verdict(ex, tf.Items) + ".")

		if ex.Detail != "" {
			st.rich(b.Paragraph(), ex.Detail, false)
		}
	}
	return nil
}

func (st *state) shortAnswer(b *docx.Body, q domain.Question, sa domain.ShortAnswer) error {
	if strings.TrimSpace(sa.Answer) == "" {
		return domain.RenderingError("short answer is empty", nil)
	}

	b.Paragraph().Bold(questionLabel(q.Index))
	st.rich(b.Paragraph(), q.Body, false)
	st.english(b, q.BodyEN)
	st.image(b, q.Image)

	st.rich(b.Paragraph().Bold(labelShortAnswer), "[["+sa.Answer+"]]", true)

	b.Paragraph().Bold(labelSolution)
	b.Paragraph().Text(labelSeparator)
	st.solutionLines(b, sa.Explanation)
	st.english(b, sa.ExplanationEN)
	return nil
}

func (st *state) essay(b *docx.Body, q domain.Question, es domain.Essay) error {
	st.rich(b.Paragraph().Bold(questionLabel(q.Index)), q.Body, false)
	st.english(b, q.BodyEN)
	st.image(b, q.Image)

	b.Paragraph().Bold(labelSolution)
	b.Paragraph().Text(labelSeparator)
	st.solutionLines(b, es.ModelSolution)
	st.english(b, es.ModelSolutionEN)
	return nil
}

// rich appends text to p, converting LaTeX spans to equations.
func (st *state) rich(p *docx.Paragraph, text string, bold bool) {
	for _, seg := range SegmentText(CleanHTML(text)) {
		format := docx.Format{Bold: bold || seg.Bold}
		if seg.Kind == SegmentPlain {
			p.Styled(seg.Text, format)
			continue
		}
		st.equation(p, seg.Text, format)
	}
}

func (st *state) equation(p *docx.Paragraph, span string, format docx.Format) {
	st.stats.Equations++
	if st.r.equations != nil {
		if obj := st.r.equations.ToEquationObject(st.ctx, span); obj != nil {
			if err := p.Math(obj.OMML, span); err == nil {
				return
			}
		}
	}
	st.stats.EquationMisses++
	p.Styled("["+span+"]", format)
}

// lines renders each non-empty line of text as its own paragraph.
func (st *state) lines(b *docx.Body, text string, bold bool) {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			st.rich(b.Paragraph(), line, bold)
		}
	}
}

// solutionLines renders worked solutions: "####" lines are dropped, lines
// fully wrapped in ** and lines starting with "Vậy" are bold.
func (st *state) solutionLines(b *docx.Body, text string) {
	text = strings.ReplaceAll(text, `\n`, "\n")
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == labelSeparator {
			continue
		}
		bold := false
		if len(line) > 4 && strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") {
			line = line[2 : len(line)-2]
			bold = true
		}
		if strings.HasPrefix(Fold(strings.TrimSpace(strings.ReplaceAll(line, "*", ""))), "vay") {
			line = strings.ReplaceAll(line, "**", "")
			bold = true
		}
		st.rich(b.Paragraph(), line, bold)
	}
}

func (st *state) english(b *docx.Body, text string) {
	if !st.r.opts.Bilingual || strings.TrimSpace(text) == "" {
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			b.Paragraph().Styled(line, docx.Format{Italic: true})
		}
	}
}

func (st *state) image(b *docx.Body, img *domain.ImageDescriptor) {
	if img == nil || !img.HasImage {
		return
	}
	st.stats.Images++
	n := st.seq.Next()
	desc := strings.TrimSpace(img.Description)

	text := fmt.Sprintf("🖼️ [Cần chèn hình %d: %s]", n, desc)
	if st.r.images != nil && img.Drawable() {
		err := st.picture(b, desc)
		if err == nil {
			st.stats.ImagesDrawn++
			return
		}
		st.stats.ImageFailures++
		st.r.logger.Warn().Int("image", n).Err(err).Msg("Image generation failed, leaving a note")
		text = fmt.Sprintf("⚠️ [Lỗi sinh ảnh %d: %s] %s", n, desc, err)
	}

	p := b.Paragraph()
	p.Align = docx.AlignCenter
	p.Styled(text, docx.Format{
		Bold:   true,
		Italic: true,
		Color:  colorPlaceholder,
	})
}

// picture draws desc and appends it as a centred paragraph. Nothing is
// appended on failure.
func (st *state) picture(b *docx.Body, desc string) error {
	img, err := st.r.images.GenerateImage(st.ctx, desc)
	if err != nil {
		return err
	}
	if img == nil || len(img.Data) == 0 {
		return domain.RenderingError("image generator returned no data", nil)
	}
	p := &docx.Paragraph{Align: docx.AlignCenter}
	if _, err := p.Picture(img.Data); err != nil {
		return domain.RenderingError("unusable image", err)
	}
	b.AppendParagraph(p)
	return nil
}

func questionLabel(index int) string {
	return fmt.Sprintf("Câu %d. ", index)
}

func itemText(items []domain.TrueFalseItem, label string) string {
	for _, it := range items {
		if strings.EqualFold(it.Label, label) {
			return it.Text
		}
	}
	return ""
}

func verdict(ex domain.TrueFalseExplanation, items []domain.TrueFalseItem) string {
	if v := strings.TrimSpace(ex.Verdict); v != "" {
		return strings.ToUpper(v)
	}
	for _, it := range items {
		if strings.EqualFold(it.Label, ex.Label) {
			if it.Correct {
				return "ĐÚNG"
			}
			return "SAI"
		}
	}
	return "SAI"
}
