package render

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical/quizgen/internal/docx"
	"github.com/spherical/quizgen/internal/domain"
)

type fakeImages struct {
	data  []byte
	err   error
	calls []string
}

func (f *fakeImages) GenerateImage(ctx context.Context, description string) (*domain.Image, error) {
	f.calls = append(f.calls, description)
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Image{Data: f.data, MIMEType: "image/png"}, nil
}

func tinyPNG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func imageSet(img *domain.ImageDescriptor) *domain.QuestionSet {
	return &domain.QuestionSet{
		Kind: domain.KindShortAnswer,
		Questions: []domain.Question{{
			Index: 1, DifficultyTag: "Vận dụng", Body: "Tìm x", Image: img,
			Payload: domain.ShortAnswer{Answer: "2"},
		}},
	}
}

func TestRenderImages(t *testing.T) {
	described := &domain.ImageDescriptor{HasImage: true, SourceKind: domain.SourceDescribed, Description: " Trục số "}

	tests := []struct {
		name        string
		img         *domain.ImageDescriptor
		gen         func(t *testing.T) *fakeImages
		wantCalls   int
		wantDrawn   int
		wantFailure int
		wantText    string
	}{
		{
			name:      "described image is drawn",
			img:       described,
			gen:       func(t *testing.T) *fakeImages { return &fakeImages{data: tinyPNG(t)} },
			wantCalls: 1,
			wantDrawn: 1,
		},
		{
			name:        "generator error leaves a note",
			img:         described,
			gen:         func(t *testing.T) *fakeImages { return &fakeImages{err: errors.New("quota exceeded")} },
			wantCalls:   1,
			wantFailure: 1,
			wantText:    "⚠️ [Lỗi sinh ảnh 1: Trục số] quota exceeded",
		},
		{
			name:        "undecodable image leaves a note",
			img:         described,
			gen:         func(t *testing.T) *fakeImages { return &fakeImages{data: []byte("not a png")} },
			wantCalls:   1,
			wantFailure: 1,
			wantText:    "⚠️ [Lỗi sinh ảnh 1: Trục số]",
		},
		{
			name:     "image from a source document stays a placeholder",
			img:      &domain.ImageDescriptor{HasImage: true, SourceKind: "tu_tai_lieu", Description: "Hình 3"},
			gen:      func(t *testing.T) *fakeImages { return &fakeImages{data: tinyPNG(t)} },
			wantText: "🖼️ [Cần chèn hình 1: Hình 3]",
		},
		{
			name:     "empty description stays a placeholder",
			img:      &domain.ImageDescriptor{HasImage: true, SourceKind: domain.SourceDescribed},
			gen:      func(t *testing.T) *fakeImages { return &fakeImages{data: tinyPNG(t)} },
			wantText: "🖼️ [Cần chèn hình 1: ]",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := tt.gen(t)
			r := New(nil, Options{}, nil).WithImages(gen)

			doc, stats, err := r.Render(context.Background(), imageSet(tt.img))
			require.NoError(t, err)

			assert.Len(t, gen.calls, tt.wantCalls)
			assert.Equal(t, 1, stats.Images)
			assert.Equal(t, tt.wantDrawn, stats.ImagesDrawn)
			assert.Equal(t, tt.wantFailure, stats.ImageFailures)
			if tt.wantText != "" {
				assert.Contains(t, doc.PlainText(), tt.wantText)
			}

			data, err := doc.Bytes()
			require.NoError(t, err)
			paras, err := docx.ReadParagraphs(data)
			require.NoError(t, err)
			pictures := 0
			for _, p := range paras {
				pictures += p.Pictures
			}
			assert.Equal(t, tt.wantDrawn, pictures)
		})
	}
}

func TestRenderDrawnImageIsCentred(t *testing.T) {
	gen := &fakeImages{data: tinyPNG(t)}
	described := &domain.ImageDescriptor{HasImage: true, SourceKind: domain.SourceDescribed, Description: "Trục số"}

	doc, _, err := New(nil, Options{}, nil).WithImages(gen).Render(context.Background(), imageSet(described))
	require.NoError(t, err)

	assert.Equal(t, []string{"Trục số"}, gen.calls)
	var found bool
	for _, p := range doc.Paragraphs() {
		for _, run := range p.Runs {
			if _, ok := run.(*docx.PictureRun); ok {
				found = true
				assert.Equal(t, docx.AlignCenter, p.Align)
			}
		}
	}
	assert.True(t, found)
}

func TestWithImagesLeavesOriginalUntouched(t *testing.T) {
	base := New(nil, Options{}, nil)
	gen := &fakeImages{data: tinyPNG(t)}
	_ = base.WithImages(gen)

	described := &domain.ImageDescriptor{HasImage: true, SourceKind: domain.SourceDescribed, Description: "Trục số"}
	doc, stats, err := base.Render(context.Background(), imageSet(described))
	require.NoError(t, err)

	assert.Empty(t, gen.calls)
	assert.Zero(t, stats.ImagesDrawn)
	assert.Contains(t, doc.PlainText(), "🖼️ [Cần chèn hình 1: Trục số]")
}
