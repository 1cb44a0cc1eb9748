package docx

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
)

const (
	nsWP  = "http://schemas.openxmlformats.org/drawingml/2006/wordprocessingDrawing"
	nsA   = "http://schemas.openxmlformats.org/drawingml/2006/main"
	nsPic = "http://schemas.openxmlformats.org/drawingml/2006/picture"

	relImage = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/image"

	emuPerPixel = 9525
	// MaxPictureWidth is the widest a picture is laid out, 4 inches in EMU.
	MaxPictureWidth = 3657600
)

// imageFormats maps decoder names to package extension and content type.
var imageFormats = map[string]struct{ ext, contentType string }{
	"png":  {"png", "image/png"},
	"jpeg": {"jpeg", "image/jpeg"},
	"gif":  {"gif", "image/gif"},
}

// PictureRun is an inline picture stored under word/media.
type PictureRun struct {
	Data   []byte
	Format string // png, jpeg or gif
	Width  int64  // EMU
	Height int64  // EMU

	// assigned when the package is written
	id     int
	relID  string
	target string
}

// Picture decodes the image header, scales it to at most MaxPictureWidth
// and appends it. Data the standard decoders cannot read is rejected.
func (p *Paragraph) Picture(data []byte) (*PictureRun, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if _, ok := imageFormats[format]; !ok {
		return nil, fmt.Errorf("unsupported image format %q", format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("empty image %dx%d", cfg.Width, cfg.Height)
	}

	w := int64(cfg.Width) * emuPerPixel
	h := int64(cfg.Height) * emuPerPixel
	if w > MaxPictureWidth {
		h = h * MaxPictureWidth / w
		w = MaxPictureWidth
	}

	run := &PictureRun{Data: data, Format: format, Width: w, Height: h}
	p.Runs = append(p.Runs, run)
	return run, nil
}

func (r *PictureRun) writeXML(b *strings.Builder) {
	b.WriteString(`<w:r><w:drawing><wp:inline distT="0" distB="0" distL="0" distR="0">`)
	fmt.Fprintf(b, `<wp:extent cx="%d" cy="%d"/><wp:docPr id="%d" name="Picture %d"/>`, r.Width, r.Height, r.id, r.id)
	fmt.Fprintf(b, `<a:graphic xmlns:a="%s"><a:graphicData uri="%s">`, nsA, nsPic)
	fmt.Fprintf(b, `<pic:pic xmlns:pic="%s"><pic:nvPicPr><pic:cNvPr id="%d" name="image%d.%s"/><pic:cNvPicPr/></pic:nvPicPr>`,
		nsPic, r.id, r.id, imageFormats[r.Format].ext)
	fmt.Fprintf(b, `<pic:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></pic:blipFill>`, r.relID)
	fmt.Fprintf(b, `<pic:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm>`, r.Width, r.Height)
	b.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></pic:spPr></pic:pic></a:graphicData></a:graphic></wp:inline></w:drawing></w:r>`)
}

func (r *PictureRun) plainText() string { return "" }

// pictures numbers every picture in document order and returns them.
func (d *Document) pictures() []*PictureRun {
	var out []*PictureRun
	for _, p := range d.paragraphs {
		for _, run := range p.Runs {
			pic, ok := run.(*PictureRun)
			if !ok {
				continue
			}
			n := len(out) + 1
			pic.id = n
			// rId1 is the styles part.
			pic.relID = fmt.Sprintf("rId%d", n+1)
			pic.target = fmt.Sprintf("media/image%d.%s", n, imageFormats[pic.Format].ext)
			out = append(out, pic)
		}
	}
	return out
}

func contentTypes(pics []*PictureRun) string {
	seen := map[string]bool{}
	var extra strings.Builder
	for _, pic := range pics {
		f := imageFormats[pic.Format]
		if seen[f.ext] {
			continue
		}
		seen[f.ext] = true
		fmt.Fprintf(&extra, "<Default Extension=%q ContentType=%q/>\n", f.ext, f.contentType)
	}
	return strings.Replace(contentTypesXML, "<Override ", extra.String()+"<Override ", 1)
}

func documentRels(pics []*PictureRun) string {
	var extra strings.Builder
	for _, pic := range pics {
		fmt.Fprintf(&extra, "<Relationship Id=%q Type=%q Target=%q/>\n", pic.relID, relImage, pic.target)
	}
	return strings.Replace(documentRelsXML, "</Relationships>", extra.String()+"</Relationships>", 1)
}
