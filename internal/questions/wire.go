package questions

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"unicode"
)

// Wire types mirror the JSON the AI is asked to produce. Field decoding is
// tolerant: models routinely quote numbers, swap strings for arrays and
// write answers as letters.

type wireSet struct {
	LoaiDe    flexString      `json:"loai_de"`
	TongSoCau flexInt         `json:"tong_so_cau"`
	MaBai     flexString      `json:"ma_bai"`
	CauHoi    json.RawMessage `json:"cau_hoi"`
	Questions json.RawMessage `json:"questions"`
}

type wireQuestion struct {
	STT          flexInt         `json:"stt"`
	MucDo        flexString      `json:"muc_do"`
	Phan         flexPath        `json:"phan"`
	NoiDung      flexString      `json:"noi_dung"`
	NoiDungEN    flexString      `json:"noi_dung_en"`
	HinhAnh      json.RawMessage `json:"hinh_anh"`
	CacLuaChon   json.RawMessage `json:"cac_lua_chon"`
	DapAn        json.RawMessage `json:"dap_an"`
	DapAnDung    json.RawMessage `json:"dap_an_dung"`
	GiaiThich    json.RawMessage `json:"giai_thich"`
	GiaiThichEN  flexString      `json:"giai_thich_en"`
	LoiGiai      flexString      `json:"loi_giai"`
	DoanThongTin flexString      `json:"doan_thong_tin"`
	CacY         json.RawMessage `json:"cac_y"`
	DapAnDungSai flexString      `json:"dap_an_dung_sai"`
}

type wireImage struct {
	CoHinh flexBool   `json:"co_hinh"`
	Loai   flexString `json:"loai"`
	MoTa   flexString `json:"mo_ta"`
}

type wireChoice struct {
	KyHieu    flexString `json:"ky_hieu"`
	NoiDung   flexString `json:"noi_dung"`
	NoiDungEN flexString `json:"noi_dung_en"`
}

type wireItem struct {
	KyHieu  flexString `json:"ky_hieu"`
	NoiDung flexString `json:"noi_dung"`
	Dung    flexBool   `json:"dung"`
}

type wireExplanation struct {
	Y         flexString `json:"y"`
	NoiDungY  flexString `json:"noi_dung_y"`
	KetLuan   flexString `json:"ket_luan"`
	GiaiThich flexString `json:"giai_thich"`
}

// flexString accepts strings, numbers, booleans and null. Arrays of strings
// are joined with newlines; any other composite keeps its compact JSON.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = ""
		return nil
	}

	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var parts []flexString
		if err := json.Unmarshal(b, &parts); err == nil {
			lines := make([]string, 0, len(parts))
			for _, p := range parts {
				if s := strings.TrimSpace(string(p)); s != "" {
					lines = append(lines, s)
				}
			}
			*f = flexString(strings.Join(lines, "\n"))
			return nil
		}
		*f = flexString(compact(b))
	default:
		*f = flexString(compact(b))
	}
	return nil
}

func (f flexString) String() string { return strings.TrimSpace(string(f)) }

// flexInt accepts numbers and strings containing a number ("3", "Câu 3").
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	*f = flexInt{}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return nil
	}
	if n, ok := parseLooseInt(s.String()); ok {
		*f = flexInt{Value: n, Set: true}
	}
	return nil
}

func parseLooseInt(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if fl, err := strconv.ParseFloat(s, 64); err == nil {
		return int(fl), true
	}
	start := strings.IndexFunc(s, unicode.IsDigit)
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	return n, err == nil
}

// flexBool accepts booleans, 0/1 and common Vietnamese and English verdicts.
type flexBool struct {
	Value bool
	Set   bool
}

func (f *flexBool) UnmarshalJSON(b []byte) error {
	*f = flexBool{}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return nil
	}
	if v, ok := parseVerdict(s.String()); ok {
		*f = flexBool{Value: v, Set: true}
	}
	return nil
}

func parseVerdict(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "đúng", "dung", "đ", "d", "t", "yes", "correct":
		return true, true
	case "false", "0", "sai", "s", "f", "no", "incorrect":
		return false, true
	}
	return false, false
}

// flexPath accepts "phan" as a single string or an array of levels.
type flexPath []string

func (f *flexPath) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	*f = nil
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '[' {
		var parts []flexString
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		for _, p := range parts {
			if s := p.String(); s != "" {
				*f = append(*f, s)
			}
		}
		return nil
	}
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	if v := s.String(); v != "" {
		*f = flexPath{v}
	}
	return nil
}

func compact(b []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return string(b)
	}
	return buf.String()
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || string(t) == "null"
}
