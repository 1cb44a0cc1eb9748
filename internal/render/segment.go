package render

import (
	"regexp"
	"strings"
)

// SegmentKind distinguishes plain text from LaTeX.
type SegmentKind int

const (
	SegmentPlain SegmentKind = iota
	SegmentMath
)

// Segment is one run of question text.
type Segment struct {
	Kind SegmentKind
	Text string // plain text, or the raw LaTeX span including delimiters
	Bold bool
}

var (
	lineTagRe   = regexp.MustCompile(`(?i)<br\s*/?>`)
	inlineTagRe = regexp.MustCompile(`(?i)</?(div|p|u|span|font|i|b|strong|em)\b[^>]*>`)
	entities    = strings.NewReplacer("&nbsp;", " ", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&amp;", "&")
)

var mathDelims = [][2]string{{"$$", "$$"}, {`\[`, `\]`}, {`\(`, `\)`}, {"$", "$"}}

// CleanHTML normalises the HTML fragments models sometimes emit.
func CleanHTML(s string) string {
	s = lineTagRe.ReplaceAllString(s, "\n")
	s = inlineTagRe.ReplaceAllString(s, "")
	return entities.Replace(s)
}

// SegmentText splits text into LaTeX spans and plain runs. Markdown bold
// markers are honoured only in the plain runs so LaTeX is never altered.
func SegmentText(text string) []Segment {
	var raw []Segment
	var plain strings.Builder

	flush := func() {
		if plain.Len() > 0 {
			raw = append(raw, Segment{Kind: SegmentPlain, Text: plain.String()})
			plain.Reset()
		}
	}

	for i := 0; i < len(text); {
		if text[i] == '\\' && i+1 < len(text) && text[i+1] == '$' {
			plain.WriteByte('$')
			i += 2
			continue
		}
		if end, ok := matchMath(text, i); ok {
			flush()
			raw = append(raw, Segment{Kind: SegmentMath, Text: text[i:end]})
			i = end
			continue
		}
		plain.WriteByte(text[i])
		i++
	}
	flush()

	return applyBold(raw)
}

func matchMath(text string, i int) (int, bool) {
	for _, d := range mathDelims {
		if !strings.HasPrefix(text[i:], d[0]) {
			continue
		}
		start := i + len(d[0])
		rel := strings.Index(text[start:], d[1])
		if rel <= 0 {
			continue
		}
		inner := text[start : start+rel]
		if d[0] == "$" && strings.Contains(inner, "\n") {
			continue
		}
		if strings.TrimSpace(inner) == "" {
			continue
		}
		return start + rel + len(d[1]), true
	}
	return 0, false
}

// applyBold splits plain segments on "**". An unpaired final marker is kept
// as literal text.
func applyBold(segs []Segment) []Segment {
	markers := 0
	for _, s := range segs {
		if s.Kind == SegmentPlain {
			markers += strings.Count(s.Text, "**")
		}
	}
	literalLast := markers%2 == 1

	var out []Segment
	bold := false
	seen := 0
	for _, s := range segs {
		if s.Kind == SegmentMath {
			s.Bold = bold
			out = append(out, s)
			continue
		}
		parts := strings.Split(s.Text, "**")
		for j, part := range parts {
			if j > 0 {
				seen++
				if literalLast && seen == markers {
					part = "**" + part
				} else {
					bold = !bold
				}
			}
			if part == "" {
				continue
			}
			if n := len(out); n > 0 && out[n-1].Kind == SegmentPlain && out[n-1].Bold == bold {
				out[n-1].Text += part
				continue
			}
			out = append(out, Segment{Kind: SegmentPlain, Text: part, Bold: bold})
		}
	}
	return out
}
