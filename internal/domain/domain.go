package domain

import (
	"time"
)

// UserID identifies an operator of the transfer service.
type UserID int64

// ChatID identifies a conversation on the remote platform. Private chats use
// the numeric "-100..." form, public ones their username.
type ChatID string

// MediaKind is the closed set of transferable content kinds, produced once at
// classification time and threaded through the transfer worker.
type MediaKind int

const (
	KindNone MediaKind = iota
	KindText
	KindDocument
	KindVideo
	KindAudio
	KindPhoto
	KindVoice
	KindAnimation
	KindSticker
)

func (k MediaKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindDocument:
		return "document"
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindPhoto:
		return "photo"
	case KindVoice:
		return "voice"
	case KindAnimation:
		return "animation"
	case KindSticker:
		return "sticker"
	default:
		return "none"
	}
}

// HasThumbnail reports whether the kind supports a carried-over thumbnail.
func (k MediaKind) HasThumbnail() bool {
	switch k {
	case KindDocument, KindVideo, KindAudio:
		return true
	default:
		return false
	}
}

// Destination is where transferred items are delivered. Thread is zero when
// the destination is not a forum topic.
type Destination struct {
	Chat   ChatID
	Thread int64
}

// TextEntity is one formatting span of a text item, carried verbatim to the
// destination.
type TextEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
}

// Item is one transferable content unit read from the remote platform. It is
// never mutated after the fetch.
type Item struct {
	Chat      ChatID
	ID        int64
	Thread    int64
	Kind      MediaKind
	Size      int64
	FileName  string
	Caption   string
	Text      string
	Entities  []TextEntity
	ThumbRef  string
	Duration  int
	Width     int
	Height    int
	Protected bool
}

// ChatInfo describes a chat resolved from an invite link.
type ChatInfo struct {
	ID    ChatID
	Title string
}

// Credentials is the per-user saved session read from the credential store.
type Credentials struct {
	Session string
	APIID   int64
	APIHash string
}

// TaskRecord describes one running transfer job.
type TaskRecord struct {
	ID        string
	Owner     UserID
	Dest      Destination
	Label     string
	StartedAt time.Time
}

// BatchRequest is everything needed to start one batch transfer.
type BatchRequest struct {
	Spec   string
	Dest   Destination
	Delay  time.Duration
	Owner  UserID
	Handle string
}

// Summary is the terminal outcome of a batch.
type Summary struct {
	TotalRequested int
	Success        int
	Failed         int
	Skipped        int
	Cancelled      bool
}
