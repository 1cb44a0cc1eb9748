package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical/quizgen/internal/domain"
)

const imagePrompt = "Vẽ hình ảnh minh họa chính xác cho mô tả sau: "

// Images draws illustrations with the configured image model. It is bound
// to one API key so it can share the key a job leased.
type Images struct {
	c      *Client
	apiKey string
}

// Images returns an image generator using apiKey, or the client's default
// key when apiKey is empty.
func (c *Client) Images(apiKey string) *Images {
	if apiKey == "" {
		apiKey = c.apiKey
	}
	return &Images{c: c, apiKey: apiKey}
}

// GenerateImage implements domain.ImageGenerator.
func (im *Images) GenerateImage(ctx context.Context, description string) (*domain.Image, error) {
	if im.apiKey == "" {
		return nil, domain.ConfigError("no API key configured", nil)
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, domain.ValidationError("empty image description", nil)
	}
	if im.c.imageWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, im.c.imageWait)
		defer cancel()
	}

	body, err := json.Marshal(&Request{
		Model: im.c.imageModel,
		Messages: []Message{{
			Role:    "user",
			Content: []ContentPart{{Type: "text", Text: imagePrompt + description}},
		}},
		Modalities: []string{"image", "text"},
	})
	if err != nil {
		return nil, domain.TransportError("failed to marshal request", err)
	}

	resp, err := im.c.post(ctx, im.apiKey, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.TransportError("failed to read response", err)
	}
	if out.Error != nil {
		return nil, domain.TransportError("api error: "+out.Error.Message, nil)
	}
	for _, choice := range out.Choices {
		for _, img := range choice.Message.Images {
			decoded, err := decodeDataURL(img.ImageURL.URL)
			if err != nil {
				return nil, domain.TransportError("undecodable image", err)
			}
			im.c.logger.Debug().Int("bytes", len(decoded.Data)).Str("mime", decoded.MIMEType).Msg("Image generated")
			return decoded, nil
		}
	}
	return nil, domain.TransportError("model returned no image", nil)
}

// decodeDataURL parses a base64 data URL.
func decodeDataURL(url string) (*domain.Image, error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return nil, fmt.Errorf("not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("data URL has no payload")
	}
	mime, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, fmt.Errorf("data URL is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, err
	}
	return &domain.Image{Data: data, MIMEType: mime}, nil
}
