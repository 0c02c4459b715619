package hls

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"

	"github.com/grafov/m3u8"
)

// Variant is one quality rendition advertised by a multivariant
// playlist, in manifest order.
type Variant struct {
	Name      string
	URL       string
	Bandwidth uint32
}

// ParseMaster decodes a multivariant playlist into its quality
// variants, preserving manifest order.
func ParseMaster(data []byte) ([]Variant, error) {
	decoded, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if listType != m3u8.MASTER {
		return nil, &ParseError{Err: fmt.Errorf("expected multivariant playlist, got list type %d", listType)}
	}

	src := decoded.(*m3u8.MasterPlaylist)

	var variants []Variant
	for _, v := range src.Variants {
		if v == nil || v.URI == "" {
			continue
		}
		variants = append(variants, Variant{
			Name:      variantName(v),
			URL:       v.URI,
			Bandwidth: v.Bandwidth,
		})
	}
	return variants, nil
}

// variantName picks the rendition label: the rendition group's NAME
// attribute when present, else the VIDEO group id, else the raw
// resolution string.
func variantName(v *m3u8.Variant) string {
	for _, alt := range v.Alternatives {
		if alt != nil && alt.Name != "" {
			return alt.Name
		}
	}
	if v.Video != "" {
		return v.Video
	}
	if v.Name != "" {
		return v.Name
	}
	return v.Resolution
}

// qualityLabel matches labels of the form "{resolution}p{framerate?}",
// e.g. "720p60", "1080p", possibly followed by a suffix such as
// " (source)".
var qualityLabel = regexp.MustCompile(`^(\d+)p(\d+)?`)

// parseQuality splits a quality label into resolution and framerate.
// Framerate defaults to 30.
func parseQuality(label string) (res, fps int, ok bool) {
	m := qualityLabel.FindStringSubmatch(label)
	if m == nil {
		return 0, 0, false
	}
	res, _ = strconv.Atoi(m[1])
	fps = 30
	if m[2] != "" {
		fps, _ = strconv.Atoi(m[2])
	}
	return res, fps, true
}

// SelectVariant resolves the requested quality label against the
// variant list. A candidate matches when its resolution equals the
// target with a framerate not above the target, or when its resolution
// is below the target; the first matching entry in manifest order wins.
// With no match (or an unparseable label) the manifest's first entry is
// returned. Pure function.
func SelectVariant(variants []Variant, quality string) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}

	targetRes, targetFps, ok := parseQuality(quality)
	if ok {
		for _, v := range variants {
			candRes, candFps, ok := parseQuality(v.Name)
			if !ok {
				continue
			}
			if (targetRes == candRes && targetFps >= candFps) || targetRes > candRes {
				return v, true
			}
		}
	}

	return variants[0], true
}
