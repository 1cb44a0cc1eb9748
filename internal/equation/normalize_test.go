package equation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"wraps bare span", `x^2`, `$x^2$`},
		{"keeps single pair", `$x^2$`, `$x^2$`},
		{"collapses display dollars", `$$x^2$$`, `$x^2$`},
		{"bracket delimiters", `\[ a+b \]`, `$a+b$`},
		{"paren delimiters", `\(a\)`, `$a$`},
		{"strips italic correction", `f\/(x)`, `$f(x)$`},
		{"root plain", `\root 3 {x}`, `$\sqrt[3]{x}$`},
		{"root of", `\root{3}\of{x+1}`, `$\sqrt[3]{x+1}$`},
		{"root sqrt", `\root 4 \sqrt{y}`, `$\sqrt[4]{y}$`},
		{"operatorname", `\operatorname{ar g}(z)`, `$arg(z)$`},
		{"sp superscript", `x\sp{2}`, `$x^{2}$`},
		{"bold group", `{\bf v}`, `$v$`},
		{"spaced log", `\ log x`, `$\log x$`},
		{"drops spacing commands", `a\bigskip b\nonumber`, `$a b$`},
		{"escaped question mark", `x=\?`, `$x=?$`},
		{"cdot before digit", `2\cdot3`, `$2\cdot 3$`},
		{"cdots untouched", `1+\cdots+n`, `$1+\cdots+n$`},
		{"arrow spacing", `a\Rightarrowb`, `$a\Rightarrow b$`},
		{"bare functions", `sin x + cos(x) + ln 2`, `$\sin x + \cos(x) + \ln 2$`},
		{"escaped functions untouched", `\sin x + \log_2 y`, `$\sin x + \log_2 y$`},
		{"bare log subscript", `log_{2} 8`, `$\log_{2} 8$`},
		{"words containing functions", `\arcsin x + \sinh y + cost`, `$\arcsin x + \sinh y + cost$`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{`sin x`, `\root 3 {x}`, `$$\frac{1}{2}$$`, `a\Rightarrowb`}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), in)
	}
}

func TestExtractOMML(t *testing.T) {
	doc := `<w:document><w:body><w:p><m:oMathPara><m:oMath><m:r><m:t>x</m:t></m:r></m:oMath></m:oMathPara></w:p></w:body></w:document>`

	got := ExtractOMML(doc)
	assert.Equal(t, `<m:oMath xmlns:m="`+MathNamespace+`"><m:r><m:t>x</m:t></m:r></m:oMath>`, got)

	withNS := `<m:oMath xmlns:m="urn:x"><m:r/></m:oMath>`
	assert.Equal(t, withNS, ExtractOMML(withNS))

	assert.Empty(t, ExtractOMML(`<w:p>plain</w:p>`))
}
