package docx

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	nsW = "http://schemas.openxmlformats.org/wordprocessingml/2006/main"
	nsM = "http://schemas.openxmlformats.org/officeDocument/2006/math"
	nsR = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
<Override PartName="/word/styles.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.styles+xml"/>
</Types>`

const packageRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`

const documentRelsXML = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/styles" Target="styles.xml"/>
</Relationships>`

// WriteTo writes the document as a .docx package.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	pics := d.pictures()
	parts := []struct {
		name string
		data []byte
	}{
		{"[Content_Types].xml", []byte(contentTypes(pics))},
		{"_rels/.rels", []byte(packageRelsXML)},
		{"word/_rels/document.xml.rels", []byte(documentRels(pics))},
		{"word/styles.xml", []byte(stylesXML())},
		{"word/document.xml", []byte(d.documentXML())},
	}
	for _, pic := range pics {
		parts = append(parts, struct {
			name string
			data []byte
		}{"word/" + pic.target, pic.Data})
	}
	for _, part := range parts {
		f, err := zw.Create(part.name)
		if err != nil {
			return 0, fmt.Errorf("create %s: %w", part.name, err)
		}
		if _, err := f.Write(part.data); err != nil {
			return 0, fmt.Errorf("write %s: %w", part.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close package: %w", err)
	}
	return buf.WriteTo(w)
}

// Bytes returns the encoded .docx package.
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := d.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Document) documentXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:document xmlns:w="` + nsW + `" xmlns:m="` + nsM + `" xmlns:r="` + nsR + `" xmlns:wp="` + nsWP + `"><w:body>`)
	for _, p := range d.paragraphs {
		p.writeXML(&b)
	}
	b.WriteString(`<w:sectPr><w:pgSz w:w="11906" w:h="16838"/>`)
	b.WriteString(`<w:pgMar w:top="1134" w:right="1134" w:bottom="1134" w:left="1418" w:header="708" w:footer="708" w:gutter="0"/>`)
	b.WriteString(`</w:sectPr></w:body></w:document>`)
	return b.String()
}

type styleDef struct {
	id     string
	name   string
	size   int // half-points
	bold   bool
	color  string
	font   string
	before int
}

var paragraphStyles = []styleDef{
	{id: StyleTitle, name: "Title", size: 36, bold: true, color: "1F3864", before: 0},
	{id: StyleHeading1, name: "heading 1", size: 30, bold: true, color: "2F5496", before: 360},
	{id: StyleHeading2, name: "heading 2", size: 28, bold: true, color: "2F5496", before: 240},
	{id: StyleHeading3, name: "heading 3", size: 26, bold: true, color: "1F3763", before: 200},
	{id: StyleHeading4, name: "heading 4", size: 24, bold: true, color: "1F3763", before: 160},
	{id: StyleHeading5, name: "heading 5", size: 24, color: "1F3763", before: 120},
	{id: StyleCode, name: "Code", size: 20, font: "Consolas"},
}

func stylesXML() string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8" standalone="yes"?>`)
	b.WriteString(`<w:styles xmlns:w="` + nsW + `">`)
	b.WriteString(`<w:docDefaults><w:rPrDefault><w:rPr>`)
	b.WriteString(`<w:rFonts w:ascii="Times New Roman" w:hAnsi="Times New Roman" w:cs="Times New Roman" w:eastAsia="Times New Roman"/>`)
	b.WriteString(`<w:sz w:val="26"/><w:szCs w:val="26"/><w:lang w:val="vi-VN"/>`)
	b.WriteString(`</w:rPr></w:rPrDefault><w:pPrDefault><w:pPr><w:spacing w:after="120" w:line="276" w:lineRule="auto"/></w:pPr></w:pPrDefault></w:docDefaults>`)
	b.WriteString(`<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:qFormat/></w:style>`)

	for _, s := range paragraphStyles {
		fmt.Fprintf(&b, `<w:style w:type="paragraph" w:styleId="%s"><w:name w:val="%s"/><w:basedOn w:val="Normal"/><w:next w:val="Normal"/><w:qFormat/>`, s.id, s.name)
		fmt.Fprintf(&b, `<w:pPr><w:keepNext/><w:spacing w:before="%d" w:after="120"/></w:pPr><w:rPr>`, s.before)
		if s.font != "" {
			fmt.Fprintf(&b, `<w:rFonts w:ascii="%[1]s" w:hAnsi="%[1]s" w:cs="%[1]s"/>`, s.font)
		}
		if s.bold {
			b.WriteString(`<w:b/><w:bCs/>`)
		}
		if s.color != "" {
			fmt.Fprintf(&b, `<w:color w:val="%s"/>`, s.color)
		}
		fmt.Fprintf(&b, `<w:sz w:val="%d"/><w:szCs w:val="%d"/></w:rPr></w:style>`, s.size, s.size)
	}
	b.WriteString(`</w:styles>`)
	return b.String()
}
