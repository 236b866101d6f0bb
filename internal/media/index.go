package media

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/store"
)

// LoadIndex reads a conversation's attachment index from the store.
// Any read or decode failure yields an empty index.
func LoadIndex(ctx context.Context, kv store.KV, conversationID string) map[string]model.AttachmentCacheEntry {
	raw, err := kv.Get(ctx, store.AttachmentsKey(conversationID))
	if err != nil {
		return map[string]model.AttachmentCacheEntry{}
	}
	var index map[string]model.AttachmentCacheEntry
	if err := json.Unmarshal([]byte(raw), &index); err != nil || index == nil {
		return map[string]model.AttachmentCacheEntry{}
	}
	return index
}

// SaveIndexEntry upserts one entry in a conversation's attachment index.
// An empty localPath records a failed download, so lookups keep answering
// "not cached" without consulting the disk.
func SaveIndexEntry(ctx context.Context, kv store.KV, conversationID, remoteURL, localPath string) error {
	index := LoadIndex(ctx, kv, conversationID)
	index[remoteURL] = model.AttachmentCacheEntry{
		RemoteURL: remoteURL,
		LocalPath: localPath,
		CachedAt:  time.Now(),
	}
	raw, err := json.Marshal(index)
	if err != nil {
		return err
	}
	return kv.Set(ctx, store.AttachmentsKey(conversationID), string(raw))
}
