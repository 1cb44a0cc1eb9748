// Package sanitize turns free-text AI replies into text that is likely to
// decode as JSON. Nothing in this package returns an error.
package sanitize

import (
	"strings"
)

// Sanitize strips code fences, extracts the outermost JSON span, repairs
// backslashes and control characters inside strings and drops trailing
// commas. It is idempotent on its own output and never panics.
func Sanitize(raw string) (out string) {
	defer func() {
		if r := recover(); r != nil {
			out = strings.TrimSpace(raw)
		}
	}()

	text := StripFences(raw)
	text = ExtractJSON(text)
	text = EscapeBackslashes(text)
	text = RemoveTrailingCommas(text)
	return text
}

// StripFences returns the body of the first fenced code block when the fence
// opens before any JSON bracket. Otherwise the trimmed input is returned.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	start := strings.Index(t, "```")
	if start < 0 {
		return t
	}
	if b := strings.IndexAny(t, "{["); b >= 0 && b < start {
		return t
	}

	body := t[start+3:]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isFenceTag(body[:nl]) {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isFenceTag(line string) bool {
	tag := strings.TrimSpace(line)
	if len(tag) > 20 {
		return false
	}
	return !strings.ContainsAny(tag, "{}[]\" ")
}

// scan outcomes for a bracket span starting at a given offset
const (
	spanBalanced = iota
	spanTruncated
	spanMismatched
)

type spanScan struct {
	outcome  int
	end      int    // exclusive end of a balanced span
	closers  string // closers still owed when truncated, innermost last
	inString bool
	braces   []int // offsets where an owed '}' is inserted before a ']'
}

// text returns the scanned span from start to end with owed braces inserted.
func (r spanScan) text(s string, start, end int) string {
	if len(r.braces) == 0 {
		return s[start:end]
	}
	var b strings.Builder
	b.Grow(end - start + len(r.braces))
	prev := start
	for _, at := range r.braces {
		b.WriteString(strings.TrimRight(s[prev:at], " \t\r\n,"))
		b.WriteByte('}')
		prev = at
	}
	b.WriteString(s[prev:end])
	return b.String()
}

func scanSpan(s string, start int) spanScan {
	var stack []byte
	var braces []int
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			// An object left open inside a list is closed where the list ends.
			if c == ']' && len(stack) > 0 && stack[len(stack)-1] == '}' && owes(stack, ']') {
				for stack[len(stack)-1] == '}' {
					stack = stack[:len(stack)-1]
					braces = append(braces, i)
				}
			}
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return spanScan{outcome: spanMismatched}
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return spanScan{outcome: spanBalanced, end: i + 1, braces: braces}
			}
		}
	}

	return spanScan{outcome: spanTruncated, closers: string(stack), inString: inString, braces: braces}
}

// owes reports whether closer is owed below a run of '}' on the stack.
func owes(stack []byte, closer byte) bool {
	for i := len(stack) - 1; i >= 0; i-- {
		switch stack[i] {
		case '}':
			continue
		case closer:
			return true
		default:
			return false
		}
	}
	return false
}

// ExtractJSON locates the longest top-level balanced {...} or [...] span.
// A span that runs off the end of the text is closed by appending the
// missing quote and brackets. When nothing balances, the text from the first
// '{' to the last '}' is returned.
func ExtractJSON(s string) string {
	s = strings.TrimSpace(s)

	bestStart, bestEnd := -1, -1
	best, truncated := "", ""

	for i := 0; i < len(s); {
		c := s[i]
		if (c != '{' && c != '[') || !plausibleStart(s, i) {
			i++
			continue
		}

		res := scanSpan(s, i)
		switch res.outcome {
		case spanBalanced:
			if res.end-i > bestEnd-bestStart {
				bestStart, bestEnd = i, res.end
				best = res.text(s, i, res.end)
			}
			i = res.end
			continue
		case spanTruncated:
			if len(s)-i > bestEnd-bestStart {
				truncated = closeTruncated(res.text(s, i, len(s)), res)
			}
			i = len(s)
			continue
		}
		i++
	}

	if truncated != "" {
		return truncated
	}
	if bestStart >= 0 {
		return best
	}

	first := strings.IndexByte(s, '{')
	last := strings.LastIndexByte(s, '}')
	if first >= 0 && last > first {
		return s[first : last+1]
	}
	return s
}

// plausibleStart rejects brackets that open prose rather than JSON, such as
// "[see below]" or "{x}".
func plausibleStart(s string, i int) bool {
	j := i + 1
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j >= len(s) {
		return true
	}
	next := s[j]
	if s[i] == '{' {
		return next == '"' || next == '}'
	}
	return strings.IndexByte("{[\"-0123456789tfn]", next) >= 0
}

func closeTruncated(span string, res spanScan) string {
	var b strings.Builder
	body := span
	if res.inString {
		if dangling := countTrailingBackslashes(body); dangling%2 == 1 {
			body = body[:len(body)-1]
		}
		b.WriteString(body)
		b.WriteByte('"')
	} else {
		body = strings.TrimRight(body, " \t\r\n")
		body = strings.TrimSuffix(body, ",")
		b.WriteString(body)
		if strings.HasSuffix(body, ":") {
			b.WriteString("null")
		}
	}

	for i := len(res.closers) - 1; i >= 0; i-- {
		b.WriteByte(res.closers[i])
	}
	return b.String()
}

func countTrailingBackslashes(s string) int {
	n := 0
	for i := len(s) - 1; i >= 0 && s[i] == '\\'; i-- {
		n++
	}
	return n
}

// RemoveTrailingCommas drops commas that directly precede a closing bracket,
// ignoring anything inside strings.
func RemoveTrailingCommas(s string) string {
	if !strings.Contains(s, ",") {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			b.WriteByte(c)
			continue
		}

		if c == '"' {
			inString = true
		}
		if c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
