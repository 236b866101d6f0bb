// Package feed defines the narrow surface of the remote real-time message
// store: push-delivered record batches per conversation, single-record
// writes, and a best-effort conversation summary update.
package feed

import (
	"context"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/model"
)

// Record is one message as the remote feed carries it. Text holds
// ciphertext; for image records it is the encrypted caption, when present.
type Record struct {
	ID        string     `json:"id"`
	SenderID  string     `json:"senderId"`
	CreatedAt time.Time  `json:"createdAt"`
	Kind      model.Kind `json:"kind"`
	Text      string     `json:"text,omitempty"`
	ImageURL  string     `json:"imageUrl,omitempty"`

	ReplyToID   string     `json:"replyToId,omitempty"`
	ReplyToText string     `json:"replyToText,omitempty"`
	ReplyToKind model.Kind `json:"replyToKind,omitempty"`
}

// Summary is the denormalized "last message" shown on conversation lists.
type Summary struct {
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Feed is the remote message store. On every change the feed pushes the
// full current ordered record set for the conversation, newest first, not
// a delta.
type Feed interface {
	// Subscribe starts pushing batches for a conversation. The returned
	// function detaches the subscription; work already pushed still runs.
	Subscribe(conversationID string, onBatch func([]Record), onErr func(error)) (func(), error)
	// Write appends one record and returns the server-assigned id.
	Write(ctx context.Context, conversationID string, rec Record) (string, error)
	// UpdateSummary refreshes the conversation's last-message summary.
	UpdateSummary(ctx context.Context, conversationID string, s Summary) error
}

// Uploader pushes a local file to remote blob storage and returns the
// public URL other clients download it from.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}
