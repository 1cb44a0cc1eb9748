package questions

import (
	"context"
	"time"

	"github.com/spherical/quizgen/internal/domain"
)

// AIRepairer sends broken JSON back to the AI collaborator with a
// syntax-only repair instruction.
type AIRepairer struct {
	generator domain.Generator
	model     string
	apiKey    string
	timeout   time.Duration
}

// NewAIRepairer creates a repairer. apiKey may be empty to use the
// generator's default key.
func NewAIRepairer(generator domain.Generator, model, apiKey string, timeout time.Duration) *AIRepairer {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &AIRepairer{generator: generator, model: model, apiKey: apiKey, timeout: timeout}
}

// Repair implements Repairer.
func (r *AIRepairer) Repair(ctx context.Context, broken string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	return r.generator.Generate(ctx, domain.GenerateRequest{
		Prompt:      RepairPrompt(broken),
		Model:       r.model,
		APIKey:      r.apiKey,
		Temperature: 0,
		TopP:        1,
	})
}

// RepairPrompt builds the syntax-only repair instruction.
func RepairPrompt(broken string) string {
	return `Đoạn JSON dưới đây bị lỗi cú pháp hoặc bị cắt cụt.
Hãy sửa LỖI CÚ PHÁP JSON và chỉ lỗi cú pháp:
- Giữ nguyên ngôn ngữ, nội dung câu hỏi và mọi công thức LaTeX.
- Trong chuỗi JSON, mỗi dấu gạch chéo ngược của LaTeX phải được nhân đôi (\\frac, \\sqrt).
- Nếu JSON bị cắt cụt, đóng lại các chuỗi, mảng và đối tượng còn dở.
- CHỈ TRẢ VỀ JSON ĐÃ SỬA, không lời dẫn, không markdown.

JSON lỗi:
` + broken + `

JSON đã sửa:`
}
