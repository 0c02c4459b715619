package models

// ChatMessage is one chat event, from either the historical paginated
// source or the live socket. OffsetSeconds is relative to the video
// (or transcript) start time.
type ChatMessage struct {
	ID            string     `json:"id"`
	OffsetSeconds float64    `json:"offsetSeconds"`
	Commenter     string     `json:"commenter"`
	Body          string     `json:"body"`
	Color         string     `json:"color,omitempty"`
	Emotes        []EmoteRef `json:"emotes,omitempty"`
	Badges        []BadgeRef `json:"badges,omitempty"`
	Bits          int        `json:"bits,omitempty"`
}

// EmoteRef references a platform emote used inside a message body.
type EmoteRef struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// BadgeRef references a badge worn by the commenter.
type BadgeRef struct {
	SetID   string `json:"setId"`
	Version string `json:"version"`
}
