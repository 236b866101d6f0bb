package model

import "time"

// Kind discriminates message variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Status is the delivery state of a message authored locally.
// Remote messages carry StatusSent.
type Status string

const (
	StatusSending Status = "sending"
	StatusSent    Status = "sent"
	StatusError   Status = "error"
)

// Message is one entry in a conversation's list. Identity is ID; once a
// server id is assigned it never changes. Text holds decrypted plaintext
// (or the body caption of an image message).
type Message struct {
	ID        string    `json:"id"`
	SenderID  string    `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text,omitempty"`
	ImageURL  string    `json:"imageUrl,omitempty"`
	LocalPath string    `json:"localPath,omitempty"`
	Status    Status    `json:"status"`

	ReplyToID   string `json:"replyToId,omitempty"`
	ReplyToText string `json:"replyToText,omitempty"`
	ReplyToKind Kind   `json:"replyToKind,omitempty"`
}

// ConversationSnapshot is the persisted message list for one conversation.
// Messages are sorted descending by CreatedAt and contain no duplicate ids.
type ConversationSnapshot struct {
	ConversationID string    `json:"conversationId"`
	Messages       []Message `json:"messages"`
	LastSyncAt     time.Time `json:"lastSyncAt"`
}

// AttachmentCacheEntry maps a remote image url to its local cached copy.
// LocalPath referred to an existing file at write time; it may go stale
// if the file is evicted externally.
type AttachmentCacheEntry struct {
	RemoteURL string    `json:"remoteUrl"`
	LocalPath string    `json:"localPath,omitempty"`
	CachedAt  time.Time `json:"cachedAt"`
}

// ReplyTarget is the message a pending send replies to.
type ReplyTarget struct {
	ID   string
	Text string
	Kind Kind
}
