package questions

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/quizgen/internal/domain"
)

type fakeRepairer struct {
	reply string
	err   error
	calls int
	seen  string
}

func (f *fakeRepairer) Repair(ctx context.Context, broken string) (string, error) {
	f.calls++
	f.seen = broken
	return f.reply, f.err
}

const scenarioA = "```json\n" + `{
  "loai_de": "trac_nghiem_4_dap_an",
  "tong_so_cau": 3,
  "cau_hoi": [
    {"stt": 1, "muc_do": "nhan_biet", "phan": "Phần I", "noi_dung": "Câu một",
     "cac_lua_chon": [{"ky_hieu":"A","noi_dung":"x"},{"ky_hieu":"B","noi_dung":"y"}], "dap_an_dung": 1, "giai_thich": "g1"},
    {"stt": 2, "muc_do": "van_dung_cao", "phan": "Phần I", "noi_dung": "Câu hai",
     "cac_lua_chon": [{"ky_hieu":"A","noi_dung":"x"},{"ky_hieu":"B","noi_dung":"y"}], "dap_an_dung": 2, "giai_thich": "g2"},
    {"stt": 3, "muc_do": "thong_hieu", "phan": "Phần I", "noi_dung": "Câu ba",
     "cac_lua_chon": [{"ky_hieu":"A","noi_dung":"x"},{"ky_hieu":"B","noi_dung":"y"}], "dap_an_dung": 1, "giai_thich": "g3"}
  ]
}` + "\n```"

func TestParseResponseWellFormed(t *testing.T) {
	repairer := &fakeRepairer{}
	p := NewParser(repairer, nil)

	set, err := p.ParseResponse(context.Background(), scenarioA, domain.KindMultipleChoice)
	require.NoError(t, err)
	assert.Len(t, set.Questions, 3)
	assert.Equal(t, 0, repairer.calls)
}

func TestParseResponseUnescapedLatex(t *testing.T) {
	raw := `{"loai_de":"tra_loi_ngan","cau_hoi":[{"stt":1,"muc_do":"nhan_biet","noi_dung":"Tính $\frac{1}{2}+\frac{1}{2}$","dap_an":"1"}]}`
	repairer := &fakeRepairer{}
	p := NewParser(repairer, nil)

	set, err := p.ParseResponse(context.Background(), raw, domain.KindShortAnswer)
	require.NoError(t, err)
	assert.Equal(t, `Tính $\frac{1}{2}+\frac{1}{2}$`, set.Questions[0].Body)
	assert.Equal(t, 0, repairer.calls)
}

func TestParseResponseMissingClosingBraceNeedsNoRepair(t *testing.T) {
	complete := `{"loai_de":"tu_luan","cau_hoi":[{"stt":1,"noi_dung":"Đề","giai_thich":"Giải"}]}`
	cases := []string{
		strings.TrimSuffix(complete, "}"),
		strings.TrimSuffix(complete, "]}"),
		strings.TrimSuffix(complete, "}]}"),
	}

	for _, raw := range cases {
		repairer := &fakeRepairer{}
		p := NewParser(repairer, nil)

		set, err := p.ParseResponse(context.Background(), raw, domain.KindEssay)
		require.NoError(t, err, "input: %s", raw)
		assert.Len(t, set.Questions, 1)
		assert.Equal(t, 0, repairer.calls)
	}
}

func TestParseResponseBraceMissingBeforeListEnd(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{`{"loai_de":"tu_luan","cau_hoi":[{"stt":1,"noi_dung":"x","giai_thich":"y"]}`, 1},
		{`{"loai_de":"tu_luan","cau_hoi":[{"stt":1,"noi_dung":"x","giai_thich":"y"},` +
			`{"stt":2,"noi_dung":"v","giai_thich":"w"]}`, 2},
		{`{"loai_de":"trac_nghiem_4_dap_an","cau_hoi":[{"stt":1,"noi_dung":"x",` +
			`"cac_lua_chon":[{"ky_hieu":"A","noi_dung":"1"},{"ky_hieu":"B","noi_dung":"2"],"dap_an_dung":"B"}]}`, 1},
	}

	for _, tt := range cases {
		repairer := &fakeRepairer{}
		p := NewParser(repairer, nil)

		set, err := p.ParseResponse(context.Background(), tt.raw, domain.KindEssay)
		require.NoError(t, err, "input: %s", tt.raw)
		assert.Len(t, set.Questions, tt.want)
		assert.Equal(t, 0, repairer.calls)
	}
}

func TestParseResponseRepairsOnce(t *testing.T) {
	repairer := &fakeRepairer{reply: "```json\n" + `{"loai_de":"tu_luan","cau_hoi":[{"stt":1,"noi_dung":"Đề","giai_thich":"Giải"}]}` + "\n```"}
	p := NewParser(repairer, nil)

	set, err := p.ParseResponse(context.Background(), `{"loai_de": "tu_luan", "cau_hoi": [{"stt": 1 "noi_dung": "Đề"}]}`, domain.KindEssay)
	require.NoError(t, err)
	assert.Len(t, set.Questions, 1)
	assert.Equal(t, 1, repairer.calls)
	assert.Contains(t, repairer.seen, `"stt": 1 "noi_dung"`)
}

func TestParseResponseNonJSONFallsToParseError(t *testing.T) {
	repairer := &fakeRepairer{reply: "Sorry, still cannot."}
	p := NewParser(repairer, nil)

	_, err := p.ParseResponse(context.Background(), "I cannot answer that", domain.KindMultipleChoice)
	require.Error(t, err)

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "I cannot answer that", pe.RawText)
	assert.True(t, pe.RepairAttempted)
	assert.Equal(t, 1, repairer.calls)
}

func TestParseRepairTransportError(t *testing.T) {
	repairer := &fakeRepairer{err: errors.New("connection reset")}
	p := NewParser(repairer, nil)

	_, err := p.Parse(context.Background(), "not json", domain.KindEssay)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeTransport))
	assert.Equal(t, 1, repairer.calls)
}

func TestParseRepairSkippedIsNotTransport(t *testing.T) {
	repairer := &fakeRepairer{err: domain.CancelledError("stop requested, repair skipped", nil)}
	p := NewParser(repairer, nil)

	_, err := p.Parse(context.Background(), "not json", domain.KindEssay)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.RepairAttempted)
	assert.True(t, domain.IsType(err, domain.ErrorTypeCancelled))
	assert.False(t, domain.IsType(err, domain.ErrorTypeTransport))
	assert.True(t, domain.IsType(err, domain.ErrorTypeStructural))
}

func TestParseWithoutRepairer(t *testing.T) {
	p := NewParser(nil, nil)

	_, err := p.Parse(context.Background(), "{", domain.KindEssay)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.RepairAttempted)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStructural))
}

type recordingGenerator struct {
	req domain.GenerateRequest
}

func (g *recordingGenerator) Generate(ctx context.Context, req domain.GenerateRequest) (string, error) {
	g.req = req
	_, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return "", errors.New("expected deadline")
	}
	return "{}", nil
}

func TestAIRepairerRequest(t *testing.T) {
	gen := &recordingGenerator{}
	r := NewAIRepairer(gen, "repair/model", "key-2", 0)

	out, err := r.Repair(context.Background(), `{"a":`)
	require.NoError(t, err)
	assert.Equal(t, "{}", out)
	assert.Equal(t, "repair/model", gen.req.Model)
	assert.Equal(t, "key-2", gen.req.APIKey)
	assert.Contains(t, gen.req.Prompt, `{"a":`)
	assert.Contains(t, gen.req.Prompt, "LaTeX")
}
