// Package cache persists per-conversation message snapshots. It is the
// only writer of the snapshot keys; the reconciler and the send pipeline
// both go through it.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/attachfs"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

// ConversationCache reads and writes conversation snapshots and owns the
// last-sync watermark.
type ConversationCache struct {
	kv     store.KV
	fs     attachfs.FS
	logger *zap.Logger
}

// New creates a conversation cache over the given store.
func New(kv store.KV, fs attachfs.FS, logger *zap.Logger) *ConversationCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConversationCache{kv: kv, fs: fs, logger: logger}
}

// Load returns the persisted snapshot for a conversation, or nil on a
// miss or any decode failure. It never returns an error: absent data and
// broken data are the same thing to the caller.
func (c *ConversationCache) Load(ctx context.Context, conversationID string) *model.ConversationSnapshot {
	raw, err := c.kv.Get(ctx, store.MessagesKey(conversationID))
	if err != nil {
		if err != store.ErrNotFound {
			c.logger.Warn("snapshot read failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
		return nil
	}
	var snap model.ConversationSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		c.logger.Warn("snapshot decode failed", zap.String("conversation_id", conversationID), zap.Error(err))
		return nil
	}
	snap.ConversationID = conversationID
	return &snap
}

// Save overwrites the persisted message list and advances lastSyncAt.
func (c *ConversationCache) Save(ctx context.Context, conversationID string, messages []model.Message) error {
	now := time.Now()
	snap := model.ConversationSnapshot{
		ConversationID: conversationID,
		Messages:       messages,
		LastSyncAt:     now,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := c.kv.Set(ctx, store.MessagesKey(conversationID), string(raw)); err != nil {
		return err
	}
	return c.kv.Set(ctx, store.LastSyncKey(conversationID), now.Format(time.RFC3339Nano))
}

// LastSyncAt returns the conversation's sync watermark, zero when unknown.
func (c *ConversationCache) LastSyncAt(ctx context.Context, conversationID string) time.Time {
	raw, err := c.kv.Get(ctx, store.LastSyncKey(conversationID))
	if err != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clear removes the message list, attachment index, and sync watermark for
// a conversation, and best-effort deletes every attachment file the index
// references.
func (c *ConversationCache) Clear(ctx context.Context, conversationID string) error {
	index := media.LoadIndex(ctx, c.kv, conversationID)
	for _, entry := range index {
		if entry.LocalPath == "" {
			continue
		}
		if err := c.fs.Unlink(ctx, entry.LocalPath); err != nil {
			c.logger.Warn("attachment delete failed", zap.String("path", entry.LocalPath), zap.Error(err))
		}
	}
	return c.kv.Remove(ctx,
		store.MessagesKey(conversationID),
		store.AttachmentsKey(conversationID),
		store.LastSyncKey(conversationID),
	)
}
