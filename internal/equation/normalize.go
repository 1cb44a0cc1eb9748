// Package equation converts LaTeX spans into Word math objects through pandoc.
package equation

import (
	"regexp"
	"strings"
)

var (
	operatornameRe = regexp.MustCompile(`\\operatorname\s*\{\s*([^}]*)\}`)
	rootBracedRe   = regexp.MustCompile(`\\root\s*\{(\d+)\}\s*\\of\s*\{([^}]*)\}`)
	rootSqrtRe     = regexp.MustCompile(`\\root\s*(\d+)\s*\\sqrt\s*\{([^}]*)\}`)
	rootPlainRe    = regexp.MustCompile(`\\root\s*(\d+)\s*\{([^}]*)\}`)
	spRe           = regexp.MustCompile(`\\sp\s*\{([^}]*)\}`)
	boldRe         = regexp.MustCompile(`\{\\bf\s*([^}]*)\}`)
	spacedLogRe    = regexp.MustCompile(`\\\s+log`)
	cdotDigitRe    = regexp.MustCompile(`\\cdot([0-9])`)
	arrowRe        = regexp.MustCompile(`(\\Leftrightarrow|\\Rightarrow|\\rightarrow)([0-9A-Za-z])`)
)

var bareFunctions = []string{"sin", "cos", "tan", "log", "ln"}

// Normalize fixes LaTeX quirks common in AI output and wraps the result in a
// single pair of '$'.
func Normalize(span string) string {
	s := Unwrap(span)

	s = strings.ReplaceAll(s, `\/`, "")
	s = operatornameRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := operatornameRe.FindStringSubmatch(m)[1]
		return strings.ReplaceAll(inner, " ", "")
	})
	s = rootBracedRe.ReplaceAllString(s, `\sqrt[$1]{$2}`)
	s = rootSqrtRe.ReplaceAllString(s, `\sqrt[$1]{$2}`)
	s = rootPlainRe.ReplaceAllString(s, `\sqrt[$1]{$2}`)
	s = spRe.ReplaceAllString(s, `^{$1}`)
	s = boldRe.ReplaceAllString(s, `$1`)
	s = spacedLogRe.ReplaceAllString(s, `\log`)
	s = strings.ReplaceAll(s, `\bigskip`, "")
	s = strings.ReplaceAll(s, `\nonumber`, "")
	s = strings.ReplaceAll(s, `\?`, "?")
	s = strings.ReplaceAll(s, `\dotstan`, `\cdot \tan`)
	s = cdotDigitRe.ReplaceAllString(s, `\cdot $1`)
	s = arrowRe.ReplaceAllString(s, `$1 $2`)
	s = escapeBareFunctions(s)

	return "$" + strings.TrimSpace(s) + "$"
}

// Unwrap removes one layer of math delimiters: $$..$$, $..$, \(..\) or \[..\].
func Unwrap(span string) string {
	s := strings.TrimSpace(span)
	pairs := [][2]string{{"$$", "$$"}, {"$", "$"}, {`\(`, `\)`}, {`\[`, `\]`}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			return strings.TrimSpace(s[len(p[0]) : len(s)-len(p[1])])
		}
	}
	return s
}

// escapeBareFunctions prefixes sin, cos, tan, log and ln with a backslash when
// they stand alone as words.
func escapeBareFunctions(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(s); {
		name := matchFunction(s, i)
		if name == "" {
			b.WriteByte(s[i])
			i++
			continue
		}
		b.WriteByte('\\')
		b.WriteString(name)
		i += len(name)
	}
	return b.String()
}

func matchFunction(s string, i int) string {
	if i > 0 && (s[i-1] == '\\' || isLetter(s[i-1])) {
		return ""
	}
	for _, name := range bareFunctions {
		if !strings.HasPrefix(s[i:], name) {
			continue
		}
		end := i + len(name)
		if end < len(s) && isLetter(s[end]) {
			continue
		}
		return name
	}
	return ""
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
