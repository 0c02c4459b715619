package hls

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseMedia(t *testing.T) {
	playlist := `#EXTM3U
#EXT-X-VERSION:3
#EXT-X-TARGETDURATION:6
#EXT-X-MEDIA-SEQUENCE:0
#EXTINF:6.000,
seg0.ts
#EXT-X-DISCONTINUITY
#EXTINF:5.500,
seg1.ts
#EXTINF:2.000,
seg2.ts
#EXT-X-ENDLIST
`

	p, err := ParseMedia([]byte(playlist))
	require.NoError(t, err)
	require.Equal(t, 6*time.Second, p.TargetDuration)
	require.True(t, p.Ended)
	require.Len(t, p.Segments, 3)
	require.Equal(t, "seg0.ts", p.Segments[0].URI)
	require.Equal(t, 6*time.Second, p.Segments[0].Duration)
	require.True(t, p.Segments[1].Discontinuity)
	require.Equal(t, 5500*time.Millisecond, p.Segments[1].Duration)
}

func TestParseMediaLenient(t *testing.T) {
	// Unknown tags are ignored and a missing target duration gets a
	// sane default.
	playlist := `#EXTM3U
#EXT-X-SESSION-DATA:DATA-ID="com.example.session"
#EXTINF:4.000,
seg0.ts
#EXTINF:4.000,
seg1.ts
`

	p, err := ParseMedia([]byte(playlist))
	require.NoError(t, err)
	require.Equal(t, defaultTargetDuration, p.TargetDuration)
	require.False(t, p.Ended)
	require.Len(t, p.Segments, 2)
}

func TestParseMediaRejectsGarbage(t *testing.T) {
	_, err := ParseMedia([]byte("this is not a playlist"))
	require.Error(t, err)

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseMediaRejectsMaster(t *testing.T) {
	master := `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1280000,RESOLUTION=1280x720
720p.m3u8
`
	_, err := ParseMedia([]byte(master))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestEncodeRoundTrip(t *testing.T) {
	pdt := time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC)
	p := &MediaPlaylist{
		TargetDuration: 6 * time.Second,
		Ended:          true,
		Segments: []Segment{
			{URI: "seg0.ts", Duration: 6 * time.Second, ProgramDateTime: pdt},
			{URI: "seg1.ts", Duration: 5500 * time.Millisecond, Discontinuity: true},
			{URI: "seg2.ts", Duration: 2 * time.Second},
		},
	}

	decoded, err := ParseMedia(p.Encode())
	require.NoError(t, err)

	require.Equal(t, p.TargetDuration, decoded.TargetDuration)
	require.Equal(t, p.InitSegmentURI, decoded.InitSegmentURI)
	require.Equal(t, p.Ended, decoded.Ended)
	require.Len(t, decoded.Segments, len(p.Segments))
	for i, want := range p.Segments {
		got := decoded.Segments[i]
		require.Equal(t, want.URI, got.URI)
		require.Equal(t, want.Duration, got.Duration)
		require.Equal(t, want.Discontinuity, got.Discontinuity)
		require.True(t, want.ProgramDateTime.Equal(got.ProgramDateTime),
			"segment %d program date time mismatch: %v vs %v", i, want.ProgramDateTime, got.ProgramDateTime)
	}
}

func TestEncodeOpenPlaylistHasNoEndTag(t *testing.T) {
	p := &MediaPlaylist{
		TargetDuration: 2 * time.Second,
		Segments:       []Segment{{URI: "seg0.ts", Duration: 2 * time.Second}},
	}
	out := string(p.Encode())
	require.NotContains(t, out, "#EXT-X-ENDLIST")
	require.Contains(t, out, "#EXTINF:2.000,")
}

func TestSlice(t *testing.T) {
	p := &MediaPlaylist{
		TargetDuration: 2 * time.Second,
		Segments: []Segment{
			{URI: "a.ts", Duration: 2 * time.Second},
			{URI: "b.ts", Duration: 2 * time.Second},
			{URI: "c.ts", Duration: 2 * time.Second},
			{URI: "d.ts", Duration: 2 * time.Second},
		},
	}

	trimmed := p.Slice(1, 2)
	require.Len(t, trimmed.Segments, 2)
	require.Equal(t, "b.ts", trimmed.Segments[0].URI)
	require.Equal(t, "c.ts", trimmed.Segments[1].URI)
	require.True(t, trimmed.Ended)

	clamped := p.Slice(-1, 99)
	require.Len(t, clamped.Segments, 4)
}

func TestDuration(t *testing.T) {
	p := &MediaPlaylist{
		Segments: []Segment{
			{Duration: 2 * time.Second},
			{Duration: 1500 * time.Millisecond},
		},
	}
	require.Equal(t, 3500*time.Millisecond, p.Duration())
}

func TestSegmentRange(t *testing.T) {
	// 100 segments of 2s each.
	p := &MediaPlaylist{TargetDuration: 2 * time.Second}
	for i := 0; i < 100; i++ {
		p.Segments = append(p.Segments, Segment{URI: "seg.ts", Duration: 2 * time.Second})
	}

	from, to := p.SegmentRange(10*time.Second, 50*time.Second)

	// The bracket may start up to one target duration early and end up
	// to one target duration late, but must cover [10s, 50s].
	fromStart := time.Duration(from) * 2 * time.Second
	toStart := time.Duration(to) * 2 * time.Second
	require.LessOrEqual(t, fromStart, 10*time.Second)
	require.GreaterOrEqual(t, fromStart, 8*time.Second)
	require.GreaterOrEqual(t, toStart, 50*time.Second)
	require.LessOrEqual(t, toStart, 52*time.Second)
}

func TestSegmentRangeClampsToEnd(t *testing.T) {
	p := &MediaPlaylist{TargetDuration: 2 * time.Second}
	for i := 0; i < 10; i++ {
		p.Segments = append(p.Segments, Segment{URI: "seg.ts", Duration: 2 * time.Second})
	}

	from, to := p.SegmentRange(0, time.Hour)
	require.Equal(t, 0, from)
	require.Equal(t, 9, to)
}

func TestSegmentRangeEmpty(t *testing.T) {
	p := &MediaPlaylist{TargetDuration: 2 * time.Second}
	from, to := p.SegmentRange(0, 10*time.Second)
	require.Equal(t, 0, from)
	require.Equal(t, -1, to)
}

func TestResolveURL(t *testing.T) {
	base, err := url.Parse("https://cdn.example.com/vods/123/index.m3u8")
	require.NoError(t, err)

	require.Equal(t,
		"https://cdn.example.com/vods/123/seg0.ts",
		ResolveURL(base, "seg0.ts"))
	require.Equal(t,
		"https://other.example.com/seg0.ts",
		ResolveURL(base, "https://other.example.com/seg0.ts"))
}
