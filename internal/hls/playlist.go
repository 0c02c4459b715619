// Package hls parses and serializes HLS media playlists and implements
// the timing and quality-selection logic built on top of them.
package hls

import (
	"bytes"
	"fmt"
	"math"
	"net/url"
	"time"

	"github.com/grafov/m3u8"
)

// defaultTargetDuration is assumed when a playlist omits
// EXT-X-TARGETDURATION.
const defaultTargetDuration = 10 * time.Second

// ParseError reports an unusable playlist document. Errors local to a
// single segment never produce a ParseError; the segment is dropped
// instead.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("playlist parse failed: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Segment is one media segment of a playlist. Immutable once parsed.
type Segment struct {
	URI             string
	Duration        time.Duration
	ProgramDateTime time.Time
	Discontinuity   bool
}

// MediaPlaylist is the in-memory model of one rendition's media
// playlist. A new fetch produces a new value; existing values are never
// mutated.
type MediaPlaylist struct {
	TargetDuration time.Duration
	InitSegmentURI string
	Ended          bool
	Segments       []Segment
}

// ParseMedia decodes a media playlist leniently: unknown tags are
// ignored and segments without a usable duration are dropped.
func ParseMedia(data []byte) (*MediaPlaylist, error) {
	decoded, listType, err := m3u8.DecodeFrom(bytes.NewReader(data), false)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	if listType != m3u8.MEDIA {
		return nil, &ParseError{Err: fmt.Errorf("expected media playlist, got list type %d", listType)}
	}

	src := decoded.(*m3u8.MediaPlaylist)

	p := &MediaPlaylist{
		TargetDuration: secondsToDuration(src.TargetDuration),
		Ended:          src.Closed,
	}
	if p.TargetDuration <= 0 {
		p.TargetDuration = defaultTargetDuration
	}
	if src.Map != nil {
		p.InitSegmentURI = src.Map.URI
	}

	for _, seg := range src.Segments {
		if seg == nil {
			continue
		}
		if p.InitSegmentURI == "" && seg.Map != nil {
			p.InitSegmentURI = seg.Map.URI
		}
		d := secondsToDuration(seg.Duration)
		if d <= 0 {
			// Missing EXTINF is fatal for the segment only.
			continue
		}
		p.Segments = append(p.Segments, Segment{
			URI:             seg.URI,
			Duration:        d,
			ProgramDateTime: seg.ProgramDateTime,
			Discontinuity:   seg.Discontinuity,
		})
	}

	return p, nil
}

// Encode serializes the playlist back to m3u8 text. The output decodes
// to an equal MediaPlaylist value provided durations carry at most
// millisecond precision and the target duration is a whole number of
// seconds, which holds for everything this package produces.
func (p *MediaPlaylist) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString("#EXTM3U\n")
	buf.WriteString("#EXT-X-VERSION:3\n")
	fmt.Fprintf(&buf, "#EXT-X-TARGETDURATION:%d\n", int(math.Ceil(p.TargetDuration.Seconds())))
	buf.WriteString("#EXT-X-MEDIA-SEQUENCE:0\n")
	if p.InitSegmentURI != "" {
		fmt.Fprintf(&buf, "#EXT-X-MAP:URI=%q\n", p.InitSegmentURI)
	}
	for _, seg := range p.Segments {
		if seg.Discontinuity {
			buf.WriteString("#EXT-X-DISCONTINUITY\n")
		}
		if !seg.ProgramDateTime.IsZero() {
			fmt.Fprintf(&buf, "#EXT-X-PROGRAM-DATE-TIME:%s\n", seg.ProgramDateTime.Format(time.RFC3339Nano))
		}
		fmt.Fprintf(&buf, "#EXTINF:%.3f,\n", seg.Duration.Seconds())
		buf.WriteString(seg.URI)
		buf.WriteByte('\n')
	}
	if p.Ended {
		buf.WriteString("#EXT-X-ENDLIST\n")
	}
	return buf.Bytes()
}

// Duration returns the total playing time of all segments.
func (p *MediaPlaylist) Duration() time.Duration {
	var total time.Duration
	for _, seg := range p.Segments {
		total += seg.Duration
	}
	return total
}

// Slice returns a copy containing segments [from, to] inclusive.
func (p *MediaPlaylist) Slice(from, to int) *MediaPlaylist {
	out := &MediaPlaylist{
		TargetDuration: p.TargetDuration,
		InitSegmentURI: p.InitSegmentURI,
		Ended:          true,
	}
	if from < 0 {
		from = 0
	}
	if to >= len(p.Segments) {
		to = len(p.Segments) - 1
	}
	for i := from; i <= to; i++ {
		out.Segments = append(out.Segments, p.Segments[i])
	}
	return out
}

// ResolveURL resolves a relative segment reference against the playlist URL.
func ResolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref // fallback
	}
	return base.ResolveReference(refURL).String()
}

// secondsToDuration converts to time.Duration at millisecond precision
// so encode/decode round-trips are stable.
func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s*1000)) * time.Millisecond
}
