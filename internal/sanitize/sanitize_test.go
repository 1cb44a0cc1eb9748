package sanitize

import (
	"encoding/json"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `  {"a":1}  `, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"prose around fence", "Here you go:\n```JSON\n{\"a\":1}\n```\nThanks!", `{"a":1}`},
		{"unterminated fence", "```json\n{\"a\":1}", `{"a":1}`},
		{"fence inside string is kept", "{\"code\":\"```go\"}", "{\"code\":\"```go\"}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripFences(tt.in))
		})
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"leading prose", `Sure! {"a":{"b":[1,2]}} hope this helps`, `{"a":{"b":[1,2]}}`},
		{"longest span wins", `{"x":1} and then {"loai_de":"dung_sai","cau_hoi":[]}`, `{"loai_de":"dung_sai","cau_hoi":[]}`},
		{"brackets inside strings", `{"a":"}{]["}`, `{"a":"}{]["}`},
		{"top-level array", `result: [{"stt":1}]`, `[{"stt":1}]`},
		{"missing closing brace", `{"a":[{"b":1}]`, `{"a":[{"b":1}]}`},
		{"truncated inside string", `{"a":"unfinished`, `{"a":"unfinished"}`},
		{"truncated after comma", `{"a":[1,2,`, `{"a":[1,2]}`},
		{"truncated after colon", `{"a":`, `{"a":null}`},
		{"prose bracket before json", `[see below] {"a":1}`, `{"a":1}`},
		{"no json", `I cannot answer that`, `I cannot answer that`},
		{"mismatched falls back", `{"a": [1, 2}`, `{"a": [1, 2}`},
		{"brace missing before list end", `{"a":[{"b":1]}`, `{"a":[{"b":1}]}`},
		{"brace missing before list end after comma", `{"a":[{"b":1},{"c":2,]}`, `{"a":[{"b":1},{"c":2}]}`},
		{"two braces missing before list end", `{"a":[{"b":{"c":1]}`, `{"a":[{"b":{"c":1}}]}`},
		{"brace missing before list end then truncated", `{"a":[{"b":1]`, `{"a":[{"b":1}]}`},
		{"brace missing keeps outer object", `{"cau_hoi":[{"stt":1},{"stt":2]}`, `{"cau_hoi":[{"stt":1},{"stt":2}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractJSON(tt.in))
		})
	}
}

func TestEscapeBackslashes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"latex frac", `{"q":"$\frac{1}{2}$"}`, `{"q":"$\\frac{1}{2}$"}`},
		{"latex sqrt", `{"q":"$\sqrt{x}$"}`, `{"q":"$\\sqrt{x}$"}`},
		{"latex theta and times", `{"q":"$\theta \times 2$"}`, `{"q":"$\\theta \\times 2$"}`},
		{"valid newline kept", `{"q":"line\nVậy"}`, `{"q":"line\nVậy"}`},
		{"valid tab kept", `{"q":"a\tb"}`, `{"q":"a\tb"}`},
		{"escaped quote kept", `{"q":"say \"hi\""}`, `{"q":"say \"hi\""}`},
		{"unicode kept", `{"q":"\u00e9"}`, `{"q":"\u00e9"}`},
		{"bad unicode doubled", `{"q":"\underline{x}"}`, `{"q":"\\underline{x}"}`},
		{"already doubled", `{"q":"$\\frac{1}{2}$"}`, `{"q":"$\\frac{1}{2}$"}`},
		{"raw newline escaped", "{\"q\":\"a\nb\"}", `{"q":"a\nb"}`},
		{"raw newline before nu", "{\"q\":\"a\nu\"}", `{"q":"a\u000au"}`},
		{"raw tab before to", "{\"q\":\"1\to 2\"}", `{"q":"1\u0009o 2"}`},
		{"raw carriage return before ho", "{\"q\":\"\rho\"}", `{"q":"\u000dho"}`},
		{"raw newline before plain word", "{\"q\":\"a\nuoc\"}", `{"q":"a\nuoc"}`},
		{"outside strings untouched", "{\"q\":1,\n\"r\":2}", "{\"q\":1,\n\"r\":2}"},
		{"trailing backslash", `{"q":"a\`, `{"q":"a\\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeBackslashes(tt.in))
		})
	}
}

func TestRemoveTrailingCommas(t *testing.T) {
	assert.Equal(t, `{"a":[1,2],"b":3}`, RemoveTrailingCommas(`{"a":[1,2,],"b":3,}`))
	assert.Equal(t, `{"a":",]"}`, RemoveTrailingCommas(`{"a":",]"}`))
}

func TestSanitizeProducesDecodableJSON(t *testing.T) {
	inputs := []string{
		"```json\n{\"loai_de\":\"tra_loi_ngan\",\"cau_hoi\":[{\"stt\":1,\"noi_dung\":\"Tính $\\frac{1}{2}+\\frac{1}{2}$\",\"dap_an\":\"1\"}]}\n```",
		"Đây là kết quả: {\"cau_hoi\":[{\"stt\":1,\"noi_dung\":\"$\\sqrt{4}$\",}],}",
		`{"cau_hoi":[{"stt":1,"noi_dung":"$\beta + \nabla$"}]`,
	}

	for _, in := range inputs {
		out := Sanitize(in)
		var v any
		require.NoError(t, json.Unmarshal([]byte(out), &v), "sanitized: %s", out)
	}
}

func TestSanitizeKeepsLatexContent(t *testing.T) {
	out := Sanitize(`{"q":"$\frac{1}{2}$"}`)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, `$\frac{1}{2}$`, v["q"])
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		`{"a":1}`,
		"```json\n{\"a\":\"$\\frac{1}{2}$\"}\n```",
		`prefix {"a":[1,2,],"b":"x\qy"} suffix`,
		`{"a":[{"b":"tab	here"`,
		`no json at all`,
		`{"a": [1, 2}`,
		`{"a":[{"b":1]}`,
		`{"q":"é \underline{x} \\ \/"}`,
		"{\"q\":\"a\nu b\to c\ne\"}",
		"{\"q\":\"x\tan\"}",
		"",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "input: %q", in)
	}
}

func TestSanitizeRawControlKeepsMeaning(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"newline then nu", "{\"q\":\"a\nu\"}", "a\nu"},
		{"tab then o", "{\"q\":\"1\to 2\"}", "1\to 2"},
		{"newline then ne", "{\"q\":\"x\ne y\"}", "x\ne y"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			twice := Sanitize(Sanitize(tt.in))
			var got struct {
				Q string `json:"q"`
			}
			require.NoError(t, json.Unmarshal([]byte(twice), &got), twice)
			assert.Equal(t, tt.want, got.Q)
		})
	}
}

func TestSanitizeNeverPanics(t *testing.T) {
	alphabet := []byte("{}[]\"\\:,abc$ \n\tu0f`")
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		n := rng.Intn(40)
		var sb strings.Builder
		for j := 0; j < n; j++ {
			sb.WriteByte(alphabet[rng.Intn(len(alphabet))])
		}
		in := sb.String()
		assert.NotPanics(t, func() { _ = Sanitize(in) }, "input: %q", in)
	}
}

func TestSanitizeDoesNotUnbalanceQuotes(t *testing.T) {
	in := `{"a":"x\"y","b":"$\frac{a}{b}$"}`
	out := Sanitize(in)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, `x"y`, v["a"])
}
