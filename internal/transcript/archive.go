// Package transcript writes the resumable JSON chat archive that
// accompanies a downloaded video.
//
// The file is a single JSON object. At every commit point it holds the
// complete object minus only its final closing brace, so a crashed run
// can be reconciled by truncating to the last committed position,
// appending one brace, and parsing the result.
package transcript

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"stream-archiver/pkg/models"
)

// Header is the video metadata object written once at the front of the
// archive.
type Header struct {
	ID              string  `json:"id,omitempty"`
	Title           string  `json:"title,omitempty"`
	Channel         string  `json:"channel,omitempty"`
	DurationSeconds float64 `json:"durationSeconds,omitempty"`
}

// EmbeddedEmote is a platform emote with its image inlined once.
type EmbeddedEmote struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

// EmbeddedBadge is a badge set/version with its image inlined once.
type EmbeddedBadge struct {
	SetID   string `json:"setId"`
	Version string `json:"version"`
	Data    string `json:"data"`
}

// EmbeddedNamed is a cheer or third-party emote keyed by name.
type EmbeddedNamed struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

// document mirrors the on-disk object; used only when reconciling a
// crashed run.
type document struct {
	Video        Header               `json:"video"`
	StartTime    time.Time            `json:"startTime"`
	Comments     []models.ChatMessage `json:"comments"`
	TwitchEmotes []EmbeddedEmote      `json:"twitchEmotes"`
	TwitchBadges []EmbeddedBadge      `json:"twitchBadges"`
	CheerEmotes  []EmbeddedNamed      `json:"cheerEmotes"`
	Emotes       []EmbeddedNamed      `json:"emotes"`
}

// Archive is the append-only transcript writer. Not safe for concurrent
// use; one controller owns one archive.
type Archive struct {
	file    *os.File
	logger  *slog.Logger
	lookups Lookups

	// position is the file length at the last commit; the file content
	// up to position is the archive object minus its final brace.
	position int64
	// commentsEnd is the offset just past the last comment element,
	// where the serialized asset tail begins.
	commentsEnd int64
	hasComments bool

	twitchEmotes []EmbeddedEmote
	twitchBadges []EmbeddedBadge
	cheerEmotes  []EmbeddedNamed
	emotes       []EmbeddedNamed

	seenEmoteIDs  map[string]struct{}
	seenBadgeKeys map[string]struct{}
	seenNames     map[string]struct{}

	// Redelivery guard: messages already recorded at the resume
	// boundary offset.
	resumeOffset float64
	resumeIDs    map[string]struct{}
}

// Create starts a fresh archive file, overwriting any previous content.
func Create(path string, video Header, startTime time.Time, lookups Lookups) (*Archive, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create transcript: %w", err)
	}

	a := newArchive(file, lookups)
	if err := a.writeHead(video, startTime); err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

// Resume reopens an archive after a crash or restart. It truncates the
// file to the last committed position, appends a closing brace to make
// the content valid JSON, parses it to rebuild the de-dup sets and the
// redelivery guard, then truncates the brace away and continues
// appending. If reconstruction fails the archive is restarted from
// scratch rather than failing the task.
func Resume(path string, position int64, video Header, startTime time.Time, lookups Lookups) (*Archive, error) {
	a, err := resume(path, position, lookups)
	if err == nil {
		return a, nil
	}

	slog.Warn("Transcript reconstruction failed, starting fresh archive",
		"path", path, "position", position, "error", err)
	return Create(path, video, startTime, lookups)
}

func resume(path string, position int64, lookups Lookups) (*Archive, error) {
	if position <= 0 {
		return nil, fmt.Errorf("no committed position")
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}

	a, err := reconcile(file, position, lookups)
	if err != nil {
		file.Close()
		return nil, err
	}
	return a, nil
}

func reconcile(file *os.File, position int64, lookups Lookups) (*Archive, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < position {
		return nil, fmt.Errorf("file shorter than committed position (%d < %d)", info.Size(), position)
	}

	// Drop any uncommitted trailing bytes from the crashed run, then
	// complete the object so it parses.
	if err := file.Truncate(position); err != nil {
		return nil, err
	}
	if _, err := file.WriteAt([]byte("}"), position); err != nil {
		return nil, err
	}

	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var doc document
	if err := json.NewDecoder(file).Decode(&doc); err != nil {
		return nil, fmt.Errorf("archive corrupt: %w", err)
	}

	// Remove the synthetic brace again; appending continues at position.
	if err := file.Truncate(position); err != nil {
		return nil, err
	}

	a := newArchive(file, lookups)
	a.position = position
	a.hasComments = len(doc.Comments) > 0
	a.twitchEmotes = emptyIfNil(doc.TwitchEmotes)
	a.twitchBadges = emptyIfNilBadges(doc.TwitchBadges)
	a.cheerEmotes = emptyIfNilNamed(doc.CheerEmotes)
	a.emotes = emptyIfNilNamed(doc.Emotes)

	for _, e := range a.twitchEmotes {
		a.seenEmoteIDs[e.ID] = struct{}{}
	}
	for _, b := range a.twitchBadges {
		a.seenBadgeKeys[badgeKey(b.SetID, b.Version)] = struct{}{}
	}
	for _, n := range a.cheerEmotes {
		a.seenNames[n.Name] = struct{}{}
	}
	for _, n := range a.emotes {
		a.seenNames[n.Name] = struct{}{}
	}

	// Live and historical sources may redeliver messages at the resume
	// boundary; remember what is already recorded there.
	a.resumeIDs = make(map[string]struct{})
	for _, c := range doc.Comments {
		if c.OffsetSeconds > a.resumeOffset {
			a.resumeOffset = c.OffsetSeconds
		}
	}
	for _, c := range doc.Comments {
		if c.OffsetSeconds == a.resumeOffset {
			a.resumeIDs[c.ID] = struct{}{}
		}
	}

	a.commentsEnd = position - int64(len(a.marshalTail()))
	if a.commentsEnd <= 0 {
		return nil, fmt.Errorf("archive corrupt: tail longer than file")
	}

	return a, nil
}

func newArchive(file *os.File, lookups Lookups) *Archive {
	return &Archive{
		file:          file,
		logger:        slog.Default(),
		lookups:       lookups,
		twitchEmotes:  []EmbeddedEmote{},
		twitchBadges:  []EmbeddedBadge{},
		cheerEmotes:   []EmbeddedNamed{},
		emotes:        []EmbeddedNamed{},
		seenEmoteIDs:  make(map[string]struct{}),
		seenBadgeKeys: make(map[string]struct{}),
		seenNames:     make(map[string]struct{}),
	}
}

// Position returns the committed byte length of the archive file; the
// caller persists it as the resume point.
func (a *Archive) Position() int64 {
	return a.position
}

// writeHead emits the document prefix: video header, start time, and
// the opening of the comments array followed by the empty asset tail.
func (a *Archive) writeHead(video Header, startTime time.Time) error {
	videoJSON, err := json.Marshal(video)
	if err != nil {
		return fmt.Errorf("failed to marshal video header: %w", err)
	}
	startJSON, err := json.Marshal(startTime)
	if err != nil {
		return fmt.Errorf("failed to marshal start time: %w", err)
	}

	var head strings.Builder
	head.WriteString(`{"video":`)
	head.Write(videoJSON)
	head.WriteString(`,"startTime":`)
	head.Write(startJSON)
	head.WriteString(`,"comments":[`)

	n, err := a.file.WriteAt([]byte(head.String()), 0)
	if err != nil {
		return fmt.Errorf("failed to write transcript head: %w", err)
	}
	a.commentsEnd = int64(n)

	tail := a.marshalTail()
	if _, err := a.file.WriteAt(tail, a.commentsEnd); err != nil {
		return fmt.Errorf("failed to write transcript tail: %w", err)
	}
	a.position = a.commentsEnd + int64(len(tail))
	return nil
}

// marshalTail serializes everything after the last comment: the close
// of the comments array plus the four asset arrays. The tail is
// rewritten on every commit, so embedded assets discovered later still
// land in the file while the object stays one brace short of valid.
func (a *Archive) marshalTail() []byte {
	var b strings.Builder
	b.WriteString(`],"twitchEmotes":`)
	b.Write(mustMarshal(a.twitchEmotes))
	b.WriteString(`,"twitchBadges":`)
	b.Write(mustMarshal(a.twitchBadges))
	b.WriteString(`,"cheerEmotes":`)
	b.Write(mustMarshal(a.cheerEmotes))
	b.WriteString(`,"emotes":`)
	b.Write(mustMarshal(a.emotes))
	return []byte(b.String())
}

// WriteMessage embeds any assets the message references that have not
// been embedded yet, then commits the message. Messages redelivered at
// the resume boundary are dropped.
func (a *Archive) WriteMessage(ctx context.Context, msg models.ChatMessage) error {
	if a.resumeIDs != nil && msg.OffsetSeconds <= a.resumeOffset {
		if _, dup := a.resumeIDs[msg.ID]; dup {
			return nil
		}
	}

	a.embedAssets(ctx, msg)

	comment, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	var buf strings.Builder
	if a.hasComments {
		buf.WriteString(",")
	}
	buf.Write(comment)
	tail := a.marshalTail()

	// Rewrite from the end of the committed comments: new comment, then
	// the refreshed asset tail. The new content is always at least as
	// long as the old tail, so nothing stale can survive past it.
	if err := a.file.Truncate(a.commentsEnd); err != nil {
		return fmt.Errorf("failed to truncate transcript: %w", err)
	}
	n, err := a.file.WriteAt([]byte(buf.String()), a.commentsEnd)
	if err != nil {
		return fmt.Errorf("failed to append message: %w", err)
	}
	a.commentsEnd += int64(n)
	m, err := a.file.WriteAt(tail, a.commentsEnd)
	if err != nil {
		return fmt.Errorf("failed to append transcript tail: %w", err)
	}

	a.hasComments = true
	a.position = a.commentsEnd + int64(m)
	return nil
}

// embedAssets looks up and embeds first-occurrence emotes, badges, and
// cheer/third-party emotes. Lookup failures degrade to an archive
// without that inline asset; they never fail the message.
func (a *Archive) embedAssets(ctx context.Context, msg models.ChatMessage) {
	if a.lookups.Emotes != nil {
		for _, ref := range msg.Emotes {
			if _, seen := a.seenEmoteIDs[ref.ID]; seen {
				continue
			}
			data, err := a.lookups.Emotes.Get(ctx, ref.ID)
			if err != nil {
				if err == ErrAssetNotFound {
					a.seenEmoteIDs[ref.ID] = struct{}{}
				} else {
					a.logger.Debug("Emote lookup failed", "emote_id", ref.ID, "error", err)
				}
				continue
			}
			a.seenEmoteIDs[ref.ID] = struct{}{}
			a.twitchEmotes = append(a.twitchEmotes, EmbeddedEmote{
				ID:   ref.ID,
				Name: ref.Name,
				Data: base64.StdEncoding.EncodeToString(data),
			})
		}
	}

	if a.lookups.Badges != nil {
		for _, ref := range msg.Badges {
			key := badgeKey(ref.SetID, ref.Version)
			if _, seen := a.seenBadgeKeys[key]; seen {
				continue
			}
			data, err := a.lookups.Badges.Get(ctx, ref.SetID, ref.Version)
			if err != nil {
				if err == ErrAssetNotFound {
					a.seenBadgeKeys[key] = struct{}{}
				} else {
					a.logger.Debug("Badge lookup failed", "badge", key, "error", err)
				}
				continue
			}
			a.seenBadgeKeys[key] = struct{}{}
			a.twitchBadges = append(a.twitchBadges, EmbeddedBadge{
				SetID:   ref.SetID,
				Version: ref.Version,
				Data:    base64.StdEncoding.EncodeToString(data),
			})
		}
	}

	if msg.Bits > 0 && a.lookups.Cheers != nil {
		for _, name := range cheerNames(msg.Body) {
			a.embedNamed(ctx, a.lookups.Cheers, name, &a.cheerEmotes)
		}
	}

	if a.lookups.ThirdParty != nil {
		for _, word := range strings.Fields(msg.Body) {
			a.embedNamed(ctx, a.lookups.ThirdParty, word, &a.emotes)
		}
	}
}

func (a *Archive) embedNamed(ctx context.Context, lookup NamedLookup, name string, dst *[]EmbeddedNamed) {
	if _, seen := a.seenNames[name]; seen {
		return
	}
	data, err := lookup.Get(ctx, name)
	if err != nil {
		if err == ErrAssetNotFound {
			a.seenNames[name] = struct{}{}
		} else {
			a.logger.Debug("Named asset lookup failed", "name", name, "error", err)
		}
		return
	}
	a.seenNames[name] = struct{}{}
	*dst = append(*dst, EmbeddedNamed{
		Name: name,
		Data: base64.StdEncoding.EncodeToString(data),
	})
}

// Finalize closes the JSON object. The archive must not be written
// after finalizing.
func (a *Archive) Finalize() error {
	n, err := a.file.WriteAt([]byte("}"), a.position)
	if err != nil {
		return fmt.Errorf("failed to finalize transcript: %w", err)
	}
	a.position += int64(n)
	return nil
}

// Close closes the underlying file without finalizing, leaving the
// archive resumable.
func (a *Archive) Close() error {
	return a.file.Close()
}

// cheerPattern matches cheermote uses such as "Cheer100".
var cheerPattern = regexp.MustCompile(`^([A-Za-z]+)\d+$`)

func cheerNames(body string) []string {
	var names []string
	for _, word := range strings.Fields(body) {
		if m := cheerPattern.FindStringSubmatch(word); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

func badgeKey(setID, version string) string {
	return setID + "/" + version
}

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Only reachable with unmarshalable types, which the embedded
		// asset structs are not.
		panic(err)
	}
	return data
}

func emptyIfNil(s []EmbeddedEmote) []EmbeddedEmote {
	if s == nil {
		return []EmbeddedEmote{}
	}
	return s
}

func emptyIfNilBadges(s []EmbeddedBadge) []EmbeddedBadge {
	if s == nil {
		return []EmbeddedBadge{}
	}
	return s
}

func emptyIfNilNamed(s []EmbeddedNamed) []EmbeddedNamed {
	if s == nil {
		return []EmbeddedNamed{}
	}
	return s
}
