package sanitize

import (
	"fmt"
	"strings"
)

// latexCommands lists LaTeX commands whose first letter collides with a JSON
// escape (\b \f \n \r \t). A backslash followed by one of these exact letter
// runs is LaTeX, not an escape.
var latexCommands = map[string]bool{
	"backslash": true, "bar": true, "because": true, "begin": true, "beta": true,
	"bf": true, "big": true, "bigcap": true, "bigcup": true, "bigg": true,
	"bigl": true, "bigr": true, "binom": true, "bmod": true, "boldsymbol": true,
	"bot": true, "boxed": true, "breve": true, "bullet": true,

	"fbox": true, "flat": true, "forall": true, "frac": true, "frown": true,

	"nabla": true, "ne": true, "nearrow": true, "neg": true, "neq": true,
	"newline": true, "ngeq": true, "nleq": true, "nmid": true, "nolimits": true,
	"nonumber": true, "not": true, "notin": true, "nparallel": true, "nu": true,
	"nwarrow": true,

	"rangle": true, "rbrace": true, "rceil": true, "rfloor": true, "rho": true,
	"right": true, "rightarrow": true, "rightharpoonup": true,
	"rightleftharpoons": true, "rm": true, "rvert": true,

	"tan": true, "tanh": true, "tau": true, "text": true, "textbf": true,
	"textcircled": true, "textit": true, "textrm": true, "textstyle": true,
	"tfrac": true, "therefore": true, "theta": true, "tilde": true, "times": true,
	"to": true, "top": true, "triangle": true, "triangleq": true, "tt": true,
}

// EscapeBackslashes doubles every backslash inside a JSON string that does
// not start a valid escape, or that starts one but actually spells a LaTeX
// command. Raw control characters inside strings are escaped. Text outside
// strings is copied unchanged.
func EscapeBackslashes(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/16)
	inString := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\\':
			i += writeEscape(&b, s, i)
		case c < 0x20:
			writeControl(&b, c, letterRun(s, i+1))
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// writeEscape handles the backslash at s[i] and returns how many extra bytes
// it consumed.
func writeEscape(b *strings.Builder, s string, i int) int {
	if i+1 >= len(s) {
		b.WriteString(`\\`)
		return 0
	}

	n := s[i+1]
	switch n {
	case '"', '\\', '/':
		b.WriteByte('\\')
		b.WriteByte(n)
		return 1
	case 'u':
		if i+5 < len(s) && isHex4(s[i+2:i+6]) {
			b.WriteString(s[i : i+6])
			return 5
		}
	case 'b', 'f', 'n', 'r', 't':
		if !latexCommands[letterRun(s, i+1)] {
			b.WriteByte('\\')
			b.WriteByte(n)
			return 1
		}
	}

	b.WriteString(`\\`)
	return 0
}

// writeControl escapes a raw control character. The short form is skipped
// when it would spell a LaTeX command with the letters that follow, so a
// second pass keeps the escape as it is.
func writeControl(b *strings.Builder, c byte, follow string) {
	var short byte
	switch c {
	case '\n':
		short = 'n'
	case '\r':
		short = 'r'
	case '\t':
		short = 't'
	}
	if short != 0 && !latexCommands[string(short)+follow] {
		b.WriteByte('\\')
		b.WriteByte(short)
		return
	}
	fmt.Fprintf(b, `\u%04x`, c)
}

func letterRun(s string, start int) string {
	end := start
	for end < len(s) && isLetter(s[end]) {
		end++
	}
	return s[start:end]
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isHex4(s string) bool {
	if len(s) != 4 {
		return false
	}
	for i := 0; i < 4; i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
