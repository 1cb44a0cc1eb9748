package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spherical/quizgen/internal/config"
	"github.com/spherical/quizgen/internal/domain"
)

// PromptFile returns the prompt path for kind. Unset names default to
// <dir>/<suffix>.txt, for example prompts/TN.txt.
func PromptFile(cfg config.PromptsConfig, kind domain.QuestionKind) string {
	var name string
	switch kind {
	case domain.KindMultipleChoice:
		name = cfg.MultipleChoice
	case domain.KindTrueFalseSet:
		name = cfg.TrueFalse
	case domain.KindShortAnswer:
		name = cfg.ShortAnswer
	case domain.KindEssay:
		name = cfg.Essay
	}
	if name == "" {
		name = strings.TrimPrefix(kind.Suffix(), "_") + ".txt"
	}
	if filepath.IsAbs(name) || cfg.Dir == "" {
		return name
	}
	return filepath.Join(cfg.Dir, name)
}

// LoadPrompts reads the prompt for each requested kind. A missing or empty
// prompt is an error.
func LoadPrompts(cfg config.PromptsConfig, kinds []domain.QuestionKind) (map[domain.QuestionKind]string, error) {
	if len(kinds) == 0 {
		return nil, domain.ValidationError("no question kinds selected", nil)
	}
	out := make(map[domain.QuestionKind]string, len(kinds))
	for _, kind := range kinds {
		path := PromptFile(cfg, kind)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, domain.ConfigError(fmt.Sprintf("prompt for %s", kind), err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, domain.ConfigError(fmt.Sprintf("prompt file %s is empty", path), nil)
		}
		out[kind] = text
	}
	return out, nil
}

// ParseKinds parses a comma separated kind list. "all" selects every kind.
func ParseKinds(s string) ([]domain.QuestionKind, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return append([]domain.QuestionKind(nil), domain.AllKinds...), nil
	}
	var kinds []domain.QuestionKind
	seen := map[domain.QuestionKind]bool{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, err := domain.ParseKind(part)
		if err != nil {
			return nil, err
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return nil, domain.ValidationError("no question kinds selected", nil)
	}
	return kinds, nil
}
