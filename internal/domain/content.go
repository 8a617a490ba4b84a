package domain

import (
	"encoding/json"
	"fmt"
)

// ContentKind tags the variant a Payload carries.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentStatic
	ContentAnimation
)

func (k ContentKind) String() string {
	switch k {
	case ContentStatic:
		return "static"
	case ContentAnimation:
		return "animation"
	default:
		return "none"
	}
}

// MediaKind is the stored media type of a media record.
type MediaKind string

const (
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaWebpage  MediaKind = "webpage"
	MediaPixelMap MediaKind = "pixelmap"
)

// IsStatic reports whether the kind renders as a single fetchable resource.
func (k MediaKind) IsStatic() bool {
	return k == MediaImage || k == MediaVideo || k == MediaWebpage
}

// ParseMediaKind validates a stored media type.
func ParseMediaKind(s string) (MediaKind, error) {
	switch k := MediaKind(s); k {
	case MediaImage, MediaVideo, MediaWebpage, MediaPixelMap:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMediaKind, s)
	}
}

// Payload is the fully resolved description of what a display client renders.
// Values are immutable once constructed; the zero value is the none variant.
type Payload struct {
	kind        ContentKind
	mediaKind   MediaKind
	url         string
	displayName string
	colors      []string
	overlayURL  string
	audioURL    string
}

// NoContent returns the none variant.
func NoContent() Payload {
	return Payload{}
}

// StaticContent returns a static payload for an image, video or webpage.
func StaticContent(url string, kind MediaKind, displayName string) Payload {
	return Payload{
		kind:        ContentStatic,
		mediaKind:   kind,
		url:         url,
		displayName: displayName,
	}
}

// AnimationContent returns an animation payload. An empty color list yields
// the none variant, a zero-length cycle is never produced.
func AnimationContent(colors []string, overlayURL, audioURL, displayName string) Payload {
	if len(colors) == 0 {
		return NoContent()
	}
	return Payload{
		kind:        ContentAnimation,
		mediaKind:   MediaPixelMap,
		displayName: displayName,
		colors:      append([]string(nil), colors...),
		overlayURL:  overlayURL,
		audioURL:    audioURL,
	}
}

func (p Payload) Kind() ContentKind    { return p.kind }
func (p Payload) MediaKind() MediaKind { return p.mediaKind }
func (p Payload) URL() string          { return p.url }
func (p Payload) DisplayName() string  { return p.displayName }
func (p Payload) OverlayURL() string   { return p.overlayURL }
func (p Payload) AudioURL() string     { return p.audioURL }
func (p Payload) IsNone() bool         { return p.kind == ContentNone }
func (p Payload) IsAnimation() bool    { return p.kind == ContentAnimation }
func (p Payload) ColorCount() int      { return len(p.colors) }

// Colors returns a copy of the animation color list.
func (p Payload) Colors() []string {
	return append([]string(nil), p.colors...)
}

type mediaContentJSON struct {
	MediaType      string              `json:"mediaType"`
	URL            string              `json:"url,omitempty"`
	OriginalName   string              `json:"originalName"`
	PixelMapConfig *pixelMapConfigJSON `json:"pixelMapConfig,omitempty"`
}

type pixelMapConfigJSON struct {
	Colors   []string `json:"colors"`
	LogoURL  string   `json:"logoUrl,omitempty"`
	AudioURL string   `json:"audioUrl,omitempty"`
}

// MarshalJSON encodes the payload in the mediaContent shape display clients
// consume. The none variant encodes as null.
func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.kind {
	case ContentStatic:
		return json.Marshal(mediaContentJSON{
			MediaType:    string(p.mediaKind),
			URL:          p.url,
			OriginalName: p.displayName,
		})
	case ContentAnimation:
		return json.Marshal(mediaContentJSON{
			MediaType:    string(MediaPixelMap),
			OriginalName: p.displayName,
			PixelMapConfig: &pixelMapConfigJSON{
				Colors:   p.colors,
				LogoURL:  p.overlayURL,
				AudioURL: p.audioURL,
			},
		})
	default:
		return []byte("null"), nil
	}
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = NoContent()
		return nil
	}

	var raw mediaContentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode media content: %w", err)
	}

	kind, err := ParseMediaKind(raw.MediaType)
	if err != nil {
		return err
	}

	if kind.IsStatic() {
		*p = StaticContent(raw.URL, kind, raw.OriginalName)
		return nil
	}

	if raw.PixelMapConfig == nil {
		*p = NoContent()
		return nil
	}
	cfg := raw.PixelMapConfig
	*p = AnimationContent(cfg.Colors, cfg.LogoURL, cfg.AudioURL, raw.OriginalName)
	return nil
}
