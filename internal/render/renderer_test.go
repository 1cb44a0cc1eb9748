package render

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/quizgen/internal/docx"
	"github.com/spherical/quizgen/internal/domain"
)

type fakeConverter struct {
	panicOn string
	calls   int
}

func (f *fakeConverter) ToEquationObject(ctx context.Context, span string) *domain.EquationObject {
	f.calls++
	if f.panicOn != "" && strings.Contains(span, f.panicOn) {
		panic("converter exploded")
	}
	return &domain.EquationObject{
		Source: span,
		OMML:   `<m:oMath xmlns:m="http://schemas.openxmlformats.org/officeDocument/2006/math"><m:r><m:t>eq</m:t></m:r></m:oMath>`,
	}
}

func mcQuestion(index int, tag string, path ...string) domain.Question {
	return domain.Question{
		Index:         index,
		DifficultyTag: tag,
		HierarchyPath: path,
		Body:          "Tính $x$",
		Payload: domain.MultipleChoice{
			Choices:     []domain.Choice{{Label: "A", Text: "1"}, {Label: "B", Text: "2"}},
			Correct:     2,
			Explanation: "Dòng 1\n\nDòng 2",
		},
	}
}

func render(t *testing.T, conv domain.EquationConverter, opts Options, set *domain.QuestionSet) (*docx.Document, Stats) {
	t.Helper()
	doc, stats, err := New(conv, opts, nil).Render(context.Background(), set)
	require.NoError(t, err)
	return doc, stats
}

func TestRenderMultipleChoiceWithoutConverter(t *testing.T) {
	set := &domain.QuestionSet{Kind: domain.KindMultipleChoice, Questions: []domain.Question{mcQuestion(1, "Nhận biết")}}

	doc, stats := render(t, nil, Options{}, set)

	want := strings.Join([]string{
		"ĐỀ TRẮC NGHIỆM 4 ĐÁP ÁN",
		"I. CÂU HỎI NHẬN BIẾT",
		"Câu 1. Tính [$x$]",
		"A. 1",
		"B. 2",
		"Lời giải",
		"B",
		"####",
		"Dòng 1",
		"Dòng 2",
		"Vậy đáp án đúng là: 2",
	}, "\n")
	assert.Equal(t, want, doc.PlainText())
	assert.Equal(t, 1, stats.EquationMisses)
	assert.Equal(t, 0, stats.Failed)
}

func TestRenderEmitsEquationObjects(t *testing.T) {
	q := mcQuestion(1, "Thông hiểu")
	q.Body = `Tính $\frac{1}{2}$`
	set := &domain.QuestionSet{Kind: domain.KindMultipleChoice, Questions: []domain.Question{q}}

	conv := &fakeConverter{}
	doc, stats := render(t, conv, Options{}, set)

	assert.Equal(t, 1, conv.calls)
	assert.Equal(t, 0, stats.EquationMisses)

	var found bool
	for _, p := range doc.Paragraphs() {
		for _, r := range p.Runs {
			if m, ok := r.(docx.MathRun); ok {
				found = true
				assert.Equal(t, `$\frac{1}{2}$`, m.Source)
			}
		}
	}
	assert.True(t, found, "expected an equation run")
	assert.NotContains(t, doc.PlainText(), `[$\frac{1}{2}$]`)
}

func TestRenderBadQuestionDoesNotAbortDocument(t *testing.T) {
	bad := domain.Question{
		Index:         2,
		DifficultyTag: "Nhận biết",
		Body:          "Câu hỏi hỏng",
		Payload:       domain.InvalidPayload{Raw: `{"stt":2}`, Reason: "too few choices"},
	}
	outOfRange := mcQuestion(3, "Nhận biết")
	mc := outOfRange.Payload.(domain.MultipleChoice)
	mc.Correct = 9
	outOfRange.Payload = mc

	set := &domain.QuestionSet{
		Kind:      domain.KindMultipleChoice,
		Questions: []domain.Question{mcQuestion(1, "Nhận biết"), bad, outOfRange, mcQuestion(4, "Nhận biết")},
	}

	doc, stats := render(t, nil, Options{}, set)
	text := doc.PlainText()

	assert.Equal(t, 4, stats.Questions)
	assert.Equal(t, 2, stats.Failed)
	assert.Contains(t, text, `Câu 2. {"stt":2}`)
	assert.Contains(t, text, "⚠ [Lỗi hiển thị câu 2: [rendering] too few choices]")
	assert.Contains(t, text, "⚠ [Lỗi hiển thị câu 3:")
	assert.Contains(t, text, "Câu 4. Tính")
}

func TestRenderRecoversFromPanics(t *testing.T) {
	q1 := mcQuestion(1, "Vận dụng")
	q1.Body = `Hỏng $boom$`
	set := &domain.QuestionSet{Kind: domain.KindMultipleChoice, Questions: []domain.Question{q1, mcQuestion(2, "Vận dụng")}}

	doc, stats := render(t, &fakeConverter{panicOn: "boom"}, Options{}, set)

	assert.Equal(t, 1, stats.Failed)
	assert.Contains(t, doc.PlainText(), "panic: converter exploded")
	assert.Contains(t, doc.PlainText(), "Câu 2. Tính")
}

func TestRenderGroupsByBucketAndPath(t *testing.T) {
	set := &domain.QuestionSet{
		Kind: domain.KindMultipleChoice,
		Questions: []domain.Question{
			mcQuestion(5, "Vận dụng cao", "Bài 1", "Dạng 1"),
			mcQuestion(1, "Nhận biết", "Bài 1", "Dạng 1"),
			mcQuestion(2, "Nhận biết", "Bài 1", "Dạng 2"),
			mcQuestion(3, "Nhận biết", "Bài 1", "Dạng 1"),
			mcQuestion(4, "lạ", "Bài 2"),
		},
	}

	doc, _ := render(t, nil, Options{}, set)

	var headings []string
	for _, p := range doc.Paragraphs() {
		if p.Style != "" {
			headings = append(headings, p.Style+":"+p.PlainText())
		}
	}
	assert.Equal(t, []string{
		"Title:ĐỀ TRẮC NGHIỆM 4 ĐÁP ÁN",
		"Heading2:I. CÂU HỎI NHẬN BIẾT",
		"Heading3:BÀI 1",
		"Heading4:DẠNG 1",
		"Heading4:DẠNG 2",
		"Heading2:III. CÂU HỎI VẬN DỤNG",
		"Heading3:BÀI 2",
		"Heading2:IV. CÂU HỎI VẬN DỤNG CAO",
		"Heading3:BÀI 1",
		"Heading4:DẠNG 1",
	}, headings)

	var order []string
	for _, p := range doc.Paragraphs() {
		if strings.HasPrefix(p.PlainText(), "Câu ") {
			order = append(order, strings.Fields(p.PlainText())[1])
		}
	}
	assert.Equal(t, []string{"1.", "3.", "2.", "4.", "5."}, order)
}

func TestRenderTrueFalse(t *testing.T) {
	set := &domain.QuestionSet{
		Kind: domain.KindTrueFalseSet,
		Questions: []domain.Question{{
			Index:         1,
			DifficultyTag: "Thông hiểu",
			Body:          "Cho đoạn văn",
			Payload: domain.TrueFalseSet{
				Context: "Cho đoạn văn",
				Items: []domain.TrueFalseItem{
					{Label: "a", Text: "Ý một", Correct: true},
					{Label: "b", Text: "Ý hai", Correct: false},
				},
				AnswerBits: "10",
				Explanations: []domain.TrueFalseExplanation{
					{Label: "a", ItemText: "Ý một", Verdict: "Đúng", Detail: "Vì thế"},
					{Label: "b"},
				},
			},
		}},
	}

	doc, _ := render(t, nil, Options{}, set)

	want := strings.Join([]string{
		"ĐỀ ĐÚNG SAI",
		"II. CÂU HỎI THÔNG HIỂU",
		"Câu 1.",
		"Cho đoạn văn",
		"a) Ý một",
		"b) Ý hai",
		"Lời giải",
		"10",
		"####",
		"- Ý một - ĐÚNG.",
		"Vì thế",
		"- Ý hai - SAI.",
	}, "\n")
	assert.Equal(t, want, doc.PlainText())
}

func TestRenderShortAnswerAndImages(t *testing.T) {
	img := &domain.ImageDescriptor{HasImage: true, Description: "đồ thị hàm số"}
	set := &domain.QuestionSet{
		Kind: domain.KindShortAnswer,
		Questions: []domain.Question{
			{
				Index: 1, DifficultyTag: "Vận dụng", Body: "Tìm x", Image: img,
				Payload: domain.ShortAnswer{Answer: "2,5", Explanation: `Bước 1\n####\n**Bước 2**\nVậy x = 2,5`},
			},
			{
				Index: 2, DifficultyTag: "Vận dụng", Body: "Tìm y", Image: img,
				Payload: domain.ShortAnswer{Answer: "3"},
			},
		},
	}

	doc, stats := render(t, nil, Options{}, set)
	paras := doc.Paragraphs()
	text := doc.PlainText()

	assert.Equal(t, 2, stats.Images)
	assert.Contains(t, text, "🖼️ [Cần chèn hình 1: đồ thị hàm số]")
	assert.Contains(t, text, "🖼️ [Cần chèn hình 2: đồ thị hàm số]")
	assert.Contains(t, text, "Đáp án: [[2,5]]")
	assert.Contains(t, text, "Bước 1\nBước 2\nVậy x = 2,5")
	assert.Equal(t, 1, strings.Count(text, "####\nBước 1"))

	for _, p := range paras {
		switch p.PlainText() {
		case "Bước 2", "Vậy x = 2,5":
			require.NotEmpty(t, p.Runs)
			assert.True(t, p.Runs[0].(docx.TextRun).Format.Bold, p.PlainText())
		case "Bước 1":
			assert.False(t, p.Runs[0].(docx.TextRun).Format.Bold)
		}
	}
}

func TestRenderEssayBilingual(t *testing.T) {
	set := &domain.QuestionSet{
		Kind: domain.KindEssay,
		Questions: []domain.Question{{
			Index: 1, DifficultyTag: "Vận dụng cao", Body: "Chứng minh", BodyEN: "Prove it",
			Payload: domain.Essay{ModelSolution: "Ta có\nVậy xong", ModelSolutionEN: "Done"},
		}},
	}

	doc, _ := render(t, nil, Options{Bilingual: true}, set)
	assert.Contains(t, doc.PlainText(), "Câu 1. Chứng minh\nProve it\nLời giải\n####\nTa có\nVậy xong\nDone")

	plain, _ := render(t, nil, Options{}, set)
	assert.NotContains(t, plain.PlainText(), "Prove it")
}

func TestRenderNilSetAndCancelledContext(t *testing.T) {
	r := New(nil, Options{}, nil)

	_, _, err := r.Render(context.Background(), nil)
	assert.True(t, domain.IsType(err, domain.ErrorTypeRendering))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = r.Render(ctx, &domain.QuestionSet{Kind: domain.KindEssay, Questions: []domain.Question{{Index: 1, Payload: domain.Essay{}}}})
	assert.True(t, domain.IsType(err, domain.ErrorTypeCancelled))
}
