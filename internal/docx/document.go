// Package docx writes and reads minimal WordprocessingML documents.
package docx

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Alignment is a paragraph justification value.
type Alignment string

const (
	AlignLeft    Alignment = ""
	AlignCenter  Alignment = "center"
	AlignJustify Alignment = "both"
)

// Paragraph style IDs defined in styles.xml.
const (
	StyleTitle    = "Title"
	StyleHeading1 = "Heading1"
	StyleHeading2 = "Heading2"
	StyleHeading3 = "Heading3"
	StyleHeading4 = "Heading4"
	StyleHeading5 = "Heading5"
	StyleCode     = "Code"
)

// ColorRed is the hex color used for error markers.
const ColorRed = "FF0000"

// Format holds run-level formatting.
type Format struct {
	Bold   bool
	Italic bool
	Color  string
}

// Run is an inline element of a paragraph.
type Run interface {
	writeXML(b *strings.Builder)
	plainText() string
}

// TextRun is formatted text. Newlines become line breaks.
type TextRun struct {
	Text   string
	Format Format
}

// MathRun embeds a pre-built m:oMath element.
type MathRun struct {
	OMML   string
	Source string
}

// BreakRun is an explicit line break.
type BreakRun struct{}

// Paragraph is a block of runs.
type Paragraph struct {
	Style string
	Align Alignment
	Runs  []Run
}

// Text appends a plain text run.
func (p *Paragraph) Text(s string) *Paragraph {
	return p.Styled(s, Format{})
}

// Bold appends a bold text run.
func (p *Paragraph) Bold(s string) *Paragraph {
	return p.Styled(s, Format{Bold: true})
}

// Styled appends a run with the given formatting.
func (p *Paragraph) Styled(s string, f Format) *Paragraph {
	if s == "" {
		return p
	}
	p.Runs = append(p.Runs, TextRun{Text: s, Format: f})
	return p
}

// Break appends a line break.
func (p *Paragraph) Break() *Paragraph {
	p.Runs = append(p.Runs, BreakRun{})
	return p
}

// Math appends an equation. Malformed OMML is rejected so it can never
// corrupt the document part.
func (p *Paragraph) Math(omml, source string) error {
	if err := checkWellFormed(omml); err != nil {
		return fmt.Errorf("invalid equation markup: %w", err)
	}
	p.Runs = append(p.Runs, MathRun{OMML: omml, Source: source})
	return nil
}

// PlainText returns the paragraph text with equations shown as their source.
func (p *Paragraph) PlainText() string {
	var b strings.Builder
	for _, r := range p.Runs {
		b.WriteString(r.plainText())
	}
	return b.String()
}

// Body is an ordered list of paragraphs. Renderers fill a scratch Body per
// question and append it to the document once it is complete.
type Body struct {
	paragraphs []*Paragraph
}

// Paragraph adds an empty paragraph and returns it.
func (b *Body) Paragraph() *Paragraph {
	p := &Paragraph{}
	b.paragraphs = append(b.paragraphs, p)
	return p
}

// AppendParagraph adds a paragraph built elsewhere.
func (b *Body) AppendParagraph(p *Paragraph) {
	b.paragraphs = append(b.paragraphs, p)
}

// Heading adds a heading paragraph. Level 0 is the title style.
func (b *Body) Heading(text string, level int) *Paragraph {
	p := b.Paragraph()
	p.Style = headingStyle(level)
	if level == 0 {
		p.Align = AlignCenter
	}
	return p.Text(text)
}

// Append moves all paragraphs of other to the end of b.
func (b *Body) Append(other *Body) {
	if other == nil {
		return
	}
	b.paragraphs = append(b.paragraphs, other.paragraphs...)
}

// Paragraphs returns the paragraphs in order.
func (b *Body) Paragraphs() []*Paragraph {
	return b.paragraphs
}

// Len returns the number of paragraphs.
func (b *Body) Len() int {
	return len(b.paragraphs)
}

// PlainText joins paragraph text with newlines.
func (b *Body) PlainText() string {
	lines := make([]string, len(b.paragraphs))
	for i, p := range b.paragraphs {
		lines[i] = p.PlainText()
	}
	return strings.Join(lines, "\n")
}

// Document is a Word document under construction.
type Document struct {
	Body
}

// New creates an empty document.
func New() *Document {
	return &Document{}
}

func headingStyle(level int) string {
	switch {
	case level <= 0:
		return StyleTitle
	case level == 1:
		return StyleHeading1
	case level == 2:
		return StyleHeading2
	case level == 3:
		return StyleHeading3
	case level == 4:
		return StyleHeading4
	default:
		return StyleHeading5
	}
}

func (r TextRun) writeXML(b *strings.Builder) {
	b.WriteString("<w:r>")
	if r.Format.Bold || r.Format.Italic || r.Format.Color != "" {
		b.WriteString("<w:rPr>")
		if r.Format.Bold {
			b.WriteString("<w:b/><w:bCs/>")
		}
		if r.Format.Italic {
			b.WriteString("<w:i/><w:iCs/>")
		}
		if r.Format.Color != "" {
			b.WriteString(`<w:color w:val="` + escape(r.Format.Color) + `"/>`)
		}
		b.WriteString("</w:rPr>")
	}
	lines := strings.Split(strings.ReplaceAll(r.Text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		if i > 0 {
			b.WriteString("<w:br/>")
		}
		if line == "" {
			continue
		}
		b.WriteString(`<w:t xml:space="preserve">`)
		b.WriteString(escape(line))
		b.WriteString("</w:t>")
	}
	b.WriteString("</w:r>")
}

func (r TextRun) plainText() string { return r.Text }

func (r MathRun) writeXML(b *strings.Builder) { b.WriteString(r.OMML) }

func (r MathRun) plainText() string { return r.Source }

func (BreakRun) writeXML(b *strings.Builder) { b.WriteString("<w:r><w:br/></w:r>") }

func (BreakRun) plainText() string { return "\n" }

func (p *Paragraph) writeXML(b *strings.Builder) {
	b.WriteString("<w:p>")
	if p.Style != "" || p.Align != AlignLeft {
		b.WriteString("<w:pPr>")
		if p.Style != "" {
			b.WriteString(`<w:pStyle w:val="` + p.Style + `"/>`)
		}
		if p.Align != AlignLeft {
			b.WriteString(`<w:jc w:val="` + string(p.Align) + `"/>`)
		}
		b.WriteString("</w:pPr>")
	}
	for _, r := range p.Runs {
		r.writeXML(b)
	}
	b.WriteString("</w:p>")
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func checkWellFormed(fragment string) error {
	if strings.TrimSpace(fragment) == "" {
		return errors.New("empty fragment")
	}
	dec := xml.NewDecoder(strings.NewReader(fragment))
	depth := 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	if depth != 0 {
		return errors.New("unbalanced elements")
	}
	return nil
}
