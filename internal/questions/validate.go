// Package questions validates AI replies into typed question sets and
// builds the prompts that ask for them.
package questions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical/quizgen/internal/domain"
)

const maxHierarchyDepth = 3

// Validate decodes sanitized JSON into a QuestionSet. Set-level problems
// (undecodable JSON, no question list, unknown kind) are structural errors.
// Problems inside one question yield an InvalidPayload for that question.
func Validate(data []byte, expected domain.QuestionKind) (*domain.QuestionSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, domain.StructuralError("empty response", nil)
	}

	var ws wireSet
	if data[0] == '[' {
		ws.CauHoi = json.RawMessage(data)
	} else if err := json.Unmarshal(data, &ws); err != nil {
		return nil, domain.StructuralError("decode question set", err)
	}

	kind, err := resolveKind(ws.LoaiDe.String(), expected)
	if err != nil {
		return nil, err
	}

	list := ws.CauHoi
	if isNull(list) {
		list = ws.Questions
	}
	if isNull(list) {
		return nil, domain.StructuralError("missing cau_hoi list", nil)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, domain.StructuralError("cau_hoi is not an array", err)
	}

	set := &domain.QuestionSet{
		Kind:        kind,
		SubjectCode: ws.MaBai.String(),
		TotalCount:  ws.TongSoCau.Value,
	}

	objects := 0
	for i, item := range items {
		if looksLikeObject(item) {
			objects++
		}
		set.Questions = append(set.Questions, buildQuestion(kind, item, i+1))
	}
	if objects == 0 {
		return nil, domain.StructuralError("cau_hoi contains no question objects", nil)
	}

	if !ws.TongSoCau.Set {
		set.TotalCount = len(set.Questions)
	}
	return set, nil
}

func resolveKind(declared string, expected domain.QuestionKind) (domain.QuestionKind, error) {
	if declared != "" {
		if k, err := domain.ParseKind(declared); err == nil {
			return k, nil
		}
	}
	if expected.Valid() {
		return expected, nil
	}
	return "", domain.StructuralError(fmt.Sprintf("unknown question kind %q", declared), nil)
}

func looksLikeObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func buildQuestion(kind domain.QuestionKind, raw json.RawMessage, position int) domain.Question {
	invalid := func(reason string) domain.Question {
		return domain.Question{
			Index:   position,
			Payload: domain.InvalidPayload{Raw: compact(raw), Reason: reason},
		}
	}

	if !looksLikeObject(raw) {
		return invalid("question is not an object")
	}

	var wq wireQuestion
	if err := json.Unmarshal(raw, &wq); err != nil {
		return invalid(fmt.Sprintf("decode question: %v", err))
	}

	q := domain.Question{
		Index:         position,
		DifficultyTag: wq.MucDo.String(),
		HierarchyPath: foldPath(wq.Phan),
		Body:          wq.NoiDung.String(),
		BodyEN:        wq.NoiDungEN.String(),
		Image:         decodeImage(wq.HinhAnh),
	}
	if wq.STT.Set && wq.STT.Value > 0 {
		q.Index = wq.STT.Value
	}

	payload, err := buildPayload(kind, &wq)
	if err != nil {
		q.Payload = domain.InvalidPayload{Raw: compact(raw), Reason: err.Error()}
		return q
	}
	q.Payload = payload

	if q.Body == "" {
		if tf, ok := payload.(domain.TrueFalseSet); !ok || tf.Context == "" {
			q.Payload = domain.InvalidPayload{Raw: compact(raw), Reason: "missing noi_dung"}
		}
	}
	return q
}

func foldPath(p flexPath) []string {
	if len(p) <= maxHierarchyDepth {
		return []string(p)
	}
	out := append([]string{}, p[:maxHierarchyDepth-1]...)
	return append(out, strings.Join(p[maxHierarchyDepth-1:], " - "))
}

func decodeImage(raw json.RawMessage) *domain.ImageDescriptor {
	if isNull(raw) {
		return nil
	}

	t := bytes.TrimSpace(raw)
	switch t[0] {
	case '{':
		var wi wireImage
		if err := json.Unmarshal(t, &wi); err != nil {
			return nil
		}
		desc := wi.MoTa.String()
		has := wi.CoHinh.Value
		if !wi.CoHinh.Set {
			has = desc != ""
		}
		if !has {
			return nil
		}
		return &domain.ImageDescriptor{HasImage: true, SourceKind: wi.Loai.String(), Description: desc}
	case '"':
		var s flexString
		_ = s.UnmarshalJSON(t)
		if s.String() == "" {
			return nil
		}
		return &domain.ImageDescriptor{HasImage: true, Description: s.String()}
	}
	return nil
}

func buildPayload(kind domain.QuestionKind, wq *wireQuestion) (domain.Payload, error) {
	switch kind {
	case domain.KindMultipleChoice:
		return buildMultipleChoice(wq)
	case domain.KindTrueFalseSet:
		return buildTrueFalse(wq)
	case domain.KindShortAnswer:
		return buildShortAnswer(wq)
	case domain.KindEssay:
		return buildEssay(wq)
	}
	return nil, fmt.Errorf("unsupported kind %q", kind)
}

func buildMultipleChoice(wq *wireQuestion) (domain.Payload, error) {
	rawChoices := wq.CacLuaChon
	answerField := wq.DapAn
	if isNull(rawChoices) && looksLikeArray(wq.DapAn) {
		rawChoices = wq.DapAn
		answerField = nil
	}
	if isNull(rawChoices) {
		return nil, fmt.Errorf("missing choices")
	}

	choices, err := decodeChoices(rawChoices)
	if err != nil {
		return nil, err
	}
	if len(choices) < 2 {
		return nil, fmt.Errorf("need at least 2 choices, got %d", len(choices))
	}

	correctRaw := wq.DapAnDung
	if isNull(correctRaw) {
		correctRaw = answerField
	}
	correct, err := resolveCorrect(correctRaw, choices)
	if err != nil {
		return nil, err
	}

	return domain.MultipleChoice{
		Choices:       choices,
		Correct:       correct,
		Explanation:   rawText(wq.GiaiThich),
		ExplanationEN: wq.GiaiThichEN.String(),
	}, nil
}

func looksLikeArray(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '['
}

func decodeChoices(raw json.RawMessage) ([]domain.Choice, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("choices are not an array: %w", err)
	}

	choices := make([]domain.Choice, 0, len(items))
	for i, item := range items {
		label := string(rune('A' + i))
		if looksLikeObject(item) {
			var wc wireChoice
			if err := json.Unmarshal(item, &wc); err != nil {
				return nil, fmt.Errorf("choice %d: %w", i+1, err)
			}
			if l := strings.TrimRight(wc.KyHieu.String(), ".)"); l != "" {
				label = l
			}
			choices = append(choices, domain.Choice{Label: label, Text: wc.NoiDung.String(), TextEN: wc.NoiDungEN.String()})
			continue
		}
		var s flexString
		_ = s.UnmarshalJSON(item)
		choices = append(choices, domain.Choice{Label: label, Text: stripChoicePrefix(s.String(), label)})
	}
	return choices, nil
}

// stripChoicePrefix removes a leading "A. " or "A) " when a choice is a bare string.
func stripChoicePrefix(text, label string) string {
	for _, sep := range []string{". ", ") ", ": "} {
		if p := label + sep; strings.HasPrefix(text, p) {
			return strings.TrimSpace(text[len(p):])
		}
	}
	return text
}

// resolveCorrect accepts a 1-based number, a numeric string or a choice label.
func resolveCorrect(raw json.RawMessage, choices []domain.Choice) (int, error) {
	if isNull(raw) {
		return 0, fmt.Errorf("missing dap_an_dung")
	}

	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return 0, fmt.Errorf("decode dap_an_dung: %w", err)
	}
	v := strings.TrimRight(strings.TrimSpace(s.String()), ".)")

	if fields := strings.Fields(v); len(fields) > 1 {
		v = strings.TrimRight(fields[len(fields)-1], ".):")
	}
	for i, c := range choices {
		if strings.EqualFold(c.Label, v) {
			return i + 1, nil
		}
	}
	if n, ok := parseLooseInt(v); ok {
		if n >= 1 && n <= len(choices) {
			return n, nil
		}
		return 0, fmt.Errorf("dap_an_dung %d out of range 1..%d", n, len(choices))
	}
	if len(v) == 1 {
		idx := int(strings.ToUpper(v)[0]) - 'A' + 1
		if idx >= 1 && idx <= len(choices) {
			return idx, nil
		}
	}
	return 0, fmt.Errorf("unrecognised dap_an_dung %q", v)
}

func buildTrueFalse(wq *wireQuestion) (domain.Payload, error) {
	if isNull(wq.CacY) {
		return nil, fmt.Errorf("missing cac_y")
	}

	var wis []wireItem
	if err := json.Unmarshal(wq.CacY, &wis); err != nil {
		return nil, fmt.Errorf("decode cac_y: %w", err)
	}
	if len(wis) == 0 {
		return nil, fmt.Errorf("cac_y is empty")
	}

	bits := normalizeBits(wq.DapAnDungSai.String(), len(wis))

	items := make([]domain.TrueFalseItem, len(wis))
	derived := make([]byte, len(wis))
	for i, wi := range wis {
		label := strings.TrimRight(wi.KyHieu.String(), ".)")
		if label == "" {
			label = string(rune('a' + i))
		}
		correct := wi.Dung.Value
		if !wi.Dung.Set {
			if bits == "" {
				return nil, fmt.Errorf("item %s has no verdict", label)
			}
			correct = bits[i] == '1'
		}
		items[i] = domain.TrueFalseItem{Label: label, Text: wi.NoiDung.String(), Correct: correct}
		derived[i] = '0'
		if correct {
			derived[i] = '1'
		}
	}
	if bits == "" {
		bits = string(derived)
	}

	return domain.TrueFalseSet{
		Context:      wq.DoanThongTin.String(),
		Items:        items,
		AnswerBits:   bits,
		Explanations: decodeExplanations(wq.GiaiThich),
	}, nil
}

// normalizeBits accepts "1010", "1-0-1-0" or "ĐSĐS" and returns a 0/1 string
// of length n, or "" when it cannot.
func normalizeBits(s string, n int) string {
	var out []byte
	for _, r := range strings.ToUpper(s) {
		switch r {
		case '1', 'Đ', 'D', 'T':
			out = append(out, '1')
		case '0', 'S', 'F':
			out = append(out, '0')
		}
	}
	if len(out) != n {
		return ""
	}
	return string(out)
}

func decodeExplanations(raw json.RawMessage) []domain.TrueFalseExplanation {
	if isNull(raw) {
		return nil
	}
	if looksLikeArray(raw) {
		var wes []wireExplanation
		if err := json.Unmarshal(raw, &wes); err == nil {
			out := make([]domain.TrueFalseExplanation, 0, len(wes))
			for _, we := range wes {
				out = append(out, domain.TrueFalseExplanation{
					Label:    we.Y.String(),
					ItemText: we.NoiDungY.String(),
					Verdict:  we.KetLuan.String(),
					Detail:   we.GiaiThich.String(),
				})
			}
			return out
		}
	}
	if text := rawText(raw); text != "" {
		return []domain.TrueFalseExplanation{{Detail: text}}
	}
	return nil
}

func buildShortAnswer(wq *wireQuestion) (domain.Payload, error) {
	answer := rawText(wq.DapAn)
	answer = strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(answer, "[["), "]]"))
	if answer == "" {
		return nil, fmt.Errorf("missing dap_an")
	}
	return domain.ShortAnswer{
		Answer:        answer,
		Explanation:   rawText(wq.GiaiThich),
		ExplanationEN: wq.GiaiThichEN.String(),
	}, nil
}

func buildEssay(wq *wireQuestion) (domain.Payload, error) {
	solution := rawText(wq.GiaiThich)
	if solution == "" {
		solution = wq.LoiGiai.String()
	}
	return domain.Essay{
		ModelSolution:   solution,
		ModelSolutionEN: wq.GiaiThichEN.String(),
	}, nil
}

func rawText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s flexString
	if err := s.UnmarshalJSON(raw); err != nil {
		return ""
	}
	return s.String()
}
