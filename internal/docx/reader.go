package docx

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadParagraph is one paragraph recovered from an existing document.
type ReadParagraph struct {
	Style    string
	Text     string
	HasMath  bool
	Pictures int
}

// ReadParagraphs extracts paragraph styles and text from a .docx package.
// Line breaks become newlines; equation text is included inline.
func ReadParagraphs(data []byte) ([]ReadParagraph, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}

	body, err := readPart(zr.File, "word/document.xml")
	if err != nil {
		return nil, err
	}

	dec := xml.NewDecoder(bytes.NewReader(body))
	var (
		out    []ReadParagraph
		cur    *ReadParagraph
		text   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode document.xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				cur = &ReadParagraph{}
				text.Reset()
			case "pStyle":
				if cur != nil {
					for _, a := range t.Attr {
						if a.Name.Local == "val" {
							cur.Style = a.Value
						}
					}
				}
			case "oMath":
				if cur != nil {
					cur.HasMath = true
				}
			case "drawing":
				if cur != nil {
					cur.Pictures++
				}
			case "br":
				if cur != nil {
					text.WriteByte('\n')
				}
			case "t":
				inText = cur != nil
			}
		case xml.CharData:
			if inText {
				text.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if cur != nil {
					cur.Text = text.String()
					out = append(out, *cur)
				}
				cur = nil
			}
		}
	}
	return out, nil
}

// ReadText returns all paragraph text joined with newlines.
func ReadText(data []byte) (string, error) {
	paras, err := ReadParagraphs(data)
	if err != nil {
		return "", err
	}
	lines := make([]string, len(paras))
	for i, p := range paras {
		lines[i] = p.Text
	}
	return strings.Join(lines, "\n"), nil
}

func readPart(files []*zip.File, name string) ([]byte, error) {
	for _, f := range files {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, fmt.Errorf("part not found: %s", name)
}

// ReadMedia returns the embedded media parts keyed by package path.
func ReadMedia(data []byte) (map[string][]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	out := map[string][]byte{}
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, "word/media/") {
			continue
		}
		part, err := readPart(zr.File, f.Name)
		if err != nil {
			return nil, err
		}
		out[f.Name] = part
	}
	return out, nil
}
