package transcript

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stream-archiver/internal/transcript/mocks"
	"stream-archiver/pkg/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeEmoteLookup map[string][]byte

func (f fakeEmoteLookup) Get(_ context.Context, id string) ([]byte, error) {
	data, ok := f[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return data, nil
}

type fakeBadgeLookup map[string][]byte

func (f fakeBadgeLookup) Get(_ context.Context, setID, version string) ([]byte, error) {
	data, ok := f[setID+"/"+version]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return data, nil
}

func testLookups() Lookups {
	return Lookups{
		Emotes: fakeEmoteLookup{
			"emote-1": []byte("img1"),
			"emote-2": []byte("img2"),
		},
		Badges: fakeBadgeLookup{
			"subscriber/12": []byte("badge1"),
		},
	}
}

func testMessage(id string, offset float64, emoteIDs ...string) models.ChatMessage {
	msg := models.ChatMessage{
		ID:            id,
		OffsetSeconds: offset,
		Commenter:     "viewer",
		Body:          "hello",
	}
	for _, e := range emoteIDs {
		msg.Emotes = append(msg.Emotes, models.EmoteRef{ID: e, Name: "Kappa"})
	}
	return msg
}

func archivePath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "chat.json")
}

func fileSize(t *testing.T, path string) int64 {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.Size()
}

// parseWithBrace completes the on-disk prefix with a closing brace and
// decodes it, mirroring what resume does.
func parseWithBrace(t *testing.T, path string) document {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(append(data, '}'), &doc))
	return doc
}

func TestPositionMatchesFileLength(t *testing.T) {
	path := archivePath(t)
	a, err := Create(path, Header{Title: "vod"}, time.Now().UTC(), testLookups())
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, fileSize(t, path), a.Position())

	for i, msg := range []models.ChatMessage{
		testMessage("m1", 1, "emote-1"),
		testMessage("m2", 2),
		testMessage("m3", 3, "emote-1", "emote-2"),
	} {
		require.NoError(t, a.WriteMessage(context.Background(), msg))
		require.Equal(t, fileSize(t, path), a.Position(), "after message %d", i+1)
	}
}

func TestFilePrefixIsOneBraceShortOfValid(t *testing.T) {
	path := archivePath(t)
	a, err := Create(path, Header{Title: "vod"}, time.Now().UTC(), testLookups())
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m1", 1, "emote-1")))
	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m2", 2)))

	doc := parseWithBrace(t, path)
	require.Len(t, doc.Comments, 2)
	require.Len(t, doc.TwitchEmotes, 1)
	require.Equal(t, "emote-1", doc.TwitchEmotes[0].ID)
}

func TestAssetsEmbeddedOnce(t *testing.T) {
	path := archivePath(t)
	a, err := Create(path, Header{}, time.Now().UTC(), testLookups())
	require.NoError(t, err)
	defer a.Close()

	msg1 := testMessage("m1", 1, "emote-1")
	msg1.Badges = []models.BadgeRef{{SetID: "subscriber", Version: "12"}}
	msg2 := testMessage("m2", 2, "emote-1")
	msg2.Badges = []models.BadgeRef{{SetID: "subscriber", Version: "12"}}

	require.NoError(t, a.WriteMessage(context.Background(), msg1))
	require.NoError(t, a.WriteMessage(context.Background(), msg2))

	doc := parseWithBrace(t, path)
	require.Len(t, doc.TwitchEmotes, 1)
	require.Len(t, doc.TwitchBadges, 1)
}

func TestFinalizeProducesValidJSON(t *testing.T) {
	path := archivePath(t)
	a, err := Create(path, Header{Title: "vod", Channel: "streamer"}, time.Now().UTC(), testLookups())
	require.NoError(t, err)

	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m1", 1)))
	require.NoError(t, a.Finalize())
	require.NoError(t, a.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc document
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Equal(t, "vod", doc.Video.Title)
	require.Len(t, doc.Comments, 1)
}

func TestResumeAfterCrash(t *testing.T) {
	path := archivePath(t)
	start := time.Now().UTC()

	a, err := Create(path, Header{Title: "vod"}, start, testLookups())
	require.NoError(t, err)

	msg3 := testMessage("m3", 3, "emote-2")
	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m1", 1, "emote-1")))
	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m2", 2)))
	require.NoError(t, a.WriteMessage(context.Background(), msg3))
	position := a.Position()
	require.NoError(t, a.Close())

	// Simulate a crash mid-4th-message: partial bytes past the last
	// committed position.
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`,{"id":"m4","offsetSec`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	resumed, err := Resume(path, position, Header{Title: "vod"}, start, testLookups())
	require.NoError(t, err)
	defer resumed.Close()

	// Uncommitted bytes are gone and the position anchor holds.
	require.Equal(t, position, resumed.Position())
	require.Equal(t, position, fileSize(t, path))

	// The de-dup sets cover exactly the embedded assets of the first 3
	// messages.
	_, seen1 := resumed.seenEmoteIDs["emote-1"]
	_, seen2 := resumed.seenEmoteIDs["emote-2"]
	require.True(t, seen1)
	require.True(t, seen2)
	require.Len(t, resumed.seenEmoteIDs, 2)

	// A redelivered boundary message is dropped without growing the file.
	require.NoError(t, resumed.WriteMessage(context.Background(), msg3))
	require.Equal(t, position, resumed.Position())

	// A genuinely new message referencing an already-embedded emote does
	// not embed it again.
	require.NoError(t, resumed.WriteMessage(context.Background(), testMessage("m4", 4, "emote-2")))
	require.Greater(t, resumed.Position(), position)
	require.Equal(t, fileSize(t, path), resumed.Position())

	doc := parseWithBrace(t, path)
	require.Len(t, doc.Comments, 4)
	require.Len(t, doc.TwitchEmotes, 2)
}

func TestResumeCorruptFileStartsFresh(t *testing.T) {
	path := archivePath(t)
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	a, err := Resume(path, 10, Header{Title: "vod"}, time.Now().UTC(), testLookups())
	require.NoError(t, err)
	defer a.Close()

	// A fresh archive was started in place of the corrupt one.
	require.Equal(t, fileSize(t, path), a.Position())
	doc := parseWithBrace(t, path)
	require.Empty(t, doc.Comments)
	require.Equal(t, "vod", doc.Video.Title)
}

func TestResumePositionBeyondFileStartsFresh(t *testing.T) {
	path := archivePath(t)
	require.NoError(t, os.WriteFile(path, []byte(`{"video":{}`), 0o644))

	a, err := Resume(path, 10_000, Header{}, time.Now().UTC(), testLookups())
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, fileSize(t, path), a.Position())
}

func TestLookupMissMarkedSeen(t *testing.T) {
	ctrl := gomock.NewController(t)
	emotes := mocks.NewMockEmoteLookup(ctrl)

	// The catalogue misses once; the archive records the miss and never
	// asks again.
	emotes.EXPECT().Get(gomock.Any(), "ghost").Return(nil, ErrAssetNotFound).Times(1)

	path := archivePath(t)
	a, err := Create(path, Header{}, time.Now().UTC(), Lookups{Emotes: emotes})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m1", 1, "ghost")))
	require.NoError(t, a.WriteMessage(context.Background(), testMessage("m2", 2, "ghost")))

	doc := parseWithBrace(t, path)
	require.Empty(t, doc.TwitchEmotes)
	require.Len(t, doc.Comments, 2)
}

func TestCheerNames(t *testing.T) {
	names := cheerNames("Cheer100 great run PogChamp Cheer1000")
	require.Equal(t, []string{"Cheer", "Cheer"}, names)
}
