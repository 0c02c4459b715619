package hls

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleMaster = `#EXTM3U
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="chunked",NAME="1080p60 (source)",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=6000000,RESOLUTION=1920x1080,FRAME-RATE=60.000,VIDEO="chunked"
https://cdn.example.com/chunked/index.m3u8
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="720p60",NAME="720p60",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=3400000,RESOLUTION=1280x720,FRAME-RATE=60.000,VIDEO="720p60"
https://cdn.example.com/720p60/index.m3u8
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="720p30",NAME="720p30",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=2400000,RESOLUTION=1280x720,FRAME-RATE=30.000,VIDEO="720p30"
https://cdn.example.com/720p30/index.m3u8
#EXT-X-MEDIA:TYPE=VIDEO,GROUP-ID="480p30",NAME="480p30",AUTOSELECT=YES,DEFAULT=YES
#EXT-X-STREAM-INF:BANDWIDTH=1300000,RESOLUTION=852x480,FRAME-RATE=30.000,VIDEO="480p30"
https://cdn.example.com/480p30/index.m3u8
`

func TestParseMaster(t *testing.T) {
	variants, err := ParseMaster([]byte(sampleMaster))
	require.NoError(t, err)
	require.Len(t, variants, 4)
	require.Equal(t, "1080p60 (source)", variants[0].Name)
	require.Equal(t, "https://cdn.example.com/chunked/index.m3u8", variants[0].URL)
	require.Equal(t, "720p60", variants[1].Name)
	require.Equal(t, "480p30", variants[3].Name)
}

func TestParseMasterRejectsMedia(t *testing.T) {
	media := `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.000,
seg0.ts
`
	_, err := ParseMaster([]byte(media))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParseQuality(t *testing.T) {
	tests := []struct {
		label   string
		wantRes int
		wantFps int
		wantOK  bool
	}{
		{"720p60", 720, 60, true},
		{"720p", 720, 30, true},
		{"1080p60 (source)", 1080, 60, true},
		{"480p30", 480, 30, true},
		{"audio_only", 0, 0, false},
		{"", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			res, fps, ok := parseQuality(tt.label)
			require.Equal(t, tt.wantOK, ok)
			if ok {
				require.Equal(t, tt.wantRes, res)
				require.Equal(t, tt.wantFps, fps)
			}
		})
	}
}

func TestSelectVariant(t *testing.T) {
	variants := []Variant{
		{Name: "720p60", URL: "u720p60"},
		{Name: "720p30", URL: "u720p30"},
		{Name: "480p30", URL: "u480p30"},
	}

	tests := []struct {
		name    string
		quality string
		wantURL string
	}{
		{
			// Exact match wins over the lower-resolution fallback.
			name:    "exact match",
			quality: "720p30",
			wantURL: "u720p30",
		},
		{
			name:    "exact match with framerate headroom",
			quality: "720p60",
			wantURL: "u720p60",
		},
		{
			name:    "higher resolution than available falls through to first lower",
			quality: "1080p60",
			wantURL: "u720p60",
		},
		{
			name:    "lower resolution than available",
			quality: "480p30",
			wantURL: "u480p30",
		},
		{
			name:    "no candidate matches falls back to first entry",
			quality: "144p",
			wantURL: "u720p60",
		},
		{
			name:    "unparseable label falls back to first entry",
			quality: "best",
			wantURL: "u720p60",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, ok := SelectVariant(variants, tt.quality)
			require.True(t, ok)
			require.Equal(t, tt.wantURL, v.URL)
		})
	}
}

func TestSelectVariantEmpty(t *testing.T) {
	_, ok := SelectVariant(nil, "720p30")
	require.False(t, ok)
}

func TestSelectVariantIsDeterministic(t *testing.T) {
	variants := []Variant{
		{Name: "720p30", URL: "first"},
		{Name: "720p30", URL: "second"},
	}

	for i := 0; i < 10; i++ {
		v, ok := SelectVariant(variants, "720p30")
		require.True(t, ok)
		require.Equal(t, "first", v.URL)
	}
}
