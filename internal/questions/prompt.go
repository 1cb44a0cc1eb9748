package questions

import (
	"strings"

	"github.com/spherical/quizgen/internal/domain"
)

var structureHints = map[domain.QuestionKind]string{
	domain.KindMultipleChoice: `{
  "loai_de": "trac_nghiem_4_dap_an",
  "tong_so_cau": 40,
  "cau_hoi": [
    {
      "stt": 1,
      "muc_do": "nhan_biet",
      "phan": ["Tên bài", "Tên mục", "Tên dạng"],
      "noi_dung": "Nội dung câu hỏi...",
      "hinh_anh": {"co_hinh": false, "loai": "tu_mo_ta", "mo_ta": ""},
      "cac_lua_chon": [
        {"ky_hieu": "A", "noi_dung": "..."},
        {"ky_hieu": "B", "noi_dung": "..."},
        {"ky_hieu": "C", "noi_dung": "..."},
        {"ky_hieu": "D", "noi_dung": "..."}
      ],
      "dap_an_dung": 2,
      "giai_thich": "Lời giải chi tiết..."
    }
  ]
}`,
	domain.KindTrueFalseSet: `{
  "loai_de": "dung_sai",
  "tong_so_cau": 20,
  "cau_hoi": [
    {
      "stt": 1,
      "muc_do": "thong_hieu",
      "phan": ["Tên bài", "Tên mục", "Tên dạng"],
      "doan_thong_tin": "Đoạn ngữ cảnh...",
      "hinh_anh": {"co_hinh": false, "loai": "tu_mo_ta", "mo_ta": ""},
      "cac_y": [
        {"ky_hieu": "a", "noi_dung": "...", "dung": true},
        {"ky_hieu": "b", "noi_dung": "...", "dung": false},
        {"ky_hieu": "c", "noi_dung": "...", "dung": true},
        {"ky_hieu": "d", "noi_dung": "...", "dung": false}
      ],
      "dap_an_dung_sai": "1010",
      "giai_thich": [
        {"y": "a", "noi_dung_y": "...", "ket_luan": "ĐÚNG", "giai_thich": "..."}
      ]
    }
  ]
}`,
	domain.KindShortAnswer: `{
  "loai_de": "tra_loi_ngan",
  "tong_so_cau": 20,
  "cau_hoi": [
    {
      "stt": 1,
      "muc_do": "van_dung",
      "phan": ["Tên bài", "Tên mục", "Tên dạng"],
      "noi_dung": "Nội dung câu hỏi...",
      "hinh_anh": {"co_hinh": false, "loai": "tu_mo_ta", "mo_ta": ""},
      "dap_an": "[[kết quả]]",
      "giai_thich": "Lời giải từng bước..."
    }
  ]
}`,
	domain.KindEssay: `{
  "loai_de": "tu_luan",
  "tong_so_cau": 10,
  "cau_hoi": [
    {
      "stt": 1,
      "muc_do": "van_dung_cao",
      "phan": ["Tên bài", "Tên mục", "Tên dạng"],
      "noi_dung": "Đề bài...",
      "hinh_anh": {"co_hinh": false, "loai": "tu_mo_ta", "mo_ta": ""},
      "giai_thich": "Hướng dẫn chấm / lời giải chi tiết..."
    }
  ]
}`,
}

// StructureHint returns the example JSON shown to the model for a kind.
func StructureHint(kind domain.QuestionKind) string {
	if h, ok := structureHints[kind]; ok {
		return h
	}
	return "{}"
}

// WrapPrompt appends the output rules and the expected JSON shape to a
// user prompt.
func WrapPrompt(userPrompt string, kind domain.QuestionKind) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(userPrompt))
	b.WriteString(`

----------------
### YÊU CẦU BẮT BUỘC VỀ ĐỊNH DẠNG ĐẦU RA

1. Chỉ trả về DUY NHẤT một chuỗi JSON, không lời mở đầu hay kết thúc, không markdown.
   Key và value dùng dấu ngoặc kép ("), không dùng dấu ngoặc đơn.
2. Công thức Toán/Lý/Hóa đặt trong cặp dấu $...$; trong chuỗi JSON dấu gạch chéo ngược
   phải nhân đôi, ví dụ "$\\frac{1}{2}$". Môn xã hội viết văn bản thường, không dùng $
   cho số, ngày tháng hay tên riêng.
3. Nếu câu hỏi cần hình minh họa (hình học, đồ thị, mạch điện, bản đồ, lược đồ...),
   đặt "co_hinh": true và mô tả chi tiết hình trong "mo_ta".
4. "muc_do" là một trong: nhan_biet, thong_hieu, van_dung, van_dung_cao.

### MẪU JSON MONG MUỐN
`)
	b.WriteString(StructureHint(kind))
	b.WriteString("\n")
	return b.String()
}

// SchemaHint returns a JSON schema describing the expected reply, for
// collaborators that support structured output.
func SchemaHint(kind domain.QuestionKind) map[string]any {
	str := map[string]any{"type": "string"}
	image := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"co_hinh": map[string]any{"type": "boolean"},
			"loai":    str,
			"mo_ta":   str,
		},
	}

	props := map[string]any{
		"stt":      map[string]any{"type": "integer"},
		"muc_do":   str,
		"phan":     map[string]any{"type": "array", "items": str},
		"hinh_anh": image,
	}
	required := []string{"stt", "muc_do", "phan"}

	switch kind {
	case domain.KindMultipleChoice:
		props["noi_dung"] = str
		props["cac_lua_chon"] = map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ky_hieu":  str,
					"noi_dung": str,
				},
				"required": []string{"ky_hieu", "noi_dung"},
			},
		}
		props["dap_an_dung"] = map[string]any{"type": "integer"}
		props["giai_thich"] = str
		required = append(required, "noi_dung", "cac_lua_chon", "dap_an_dung", "giai_thich")
	case domain.KindTrueFalseSet:
		props["doan_thong_tin"] = str
		props["cac_y"] = map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"ky_hieu":  str,
					"noi_dung": str,
					"dung":     map[string]any{"type": "boolean"},
				},
				"required": []string{"ky_hieu", "noi_dung", "dung"},
			},
		}
		props["dap_an_dung_sai"] = str
		props["giai_thich"] = map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"y":          str,
					"noi_dung_y": str,
					"ket_luan":   str,
					"giai_thich": str,
				},
			},
		}
		required = append(required, "doan_thong_tin", "cac_y", "dap_an_dung_sai")
	case domain.KindShortAnswer:
		props["noi_dung"] = str
		props["dap_an"] = str
		props["giai_thich"] = str
		required = append(required, "noi_dung", "dap_an", "giai_thich")
	case domain.KindEssay:
		props["noi_dung"] = str
		props["giai_thich"] = str
		required = append(required, "noi_dung", "giai_thich")
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"loai_de":     map[string]any{"type": "string", "enum": []string{kind.WireName()}},
			"tong_so_cau": map[string]any{"type": "integer"},
			"cau_hoi": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":       "object",
					"properties": props,
					"required":   required,
				},
			},
		},
		"required": []string{"loai_de", "tong_so_cau", "cau_hoi"},
	}
}
