// Package sync reconciles pushed remote batches with the in-memory list
// and the persisted conversation cache.
package sync

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/cache"
	"github.com/Andrew-022/michatapp-sub000/internal/conv"
	"github.com/Andrew-022/michatapp-sub000/internal/feed"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/payload"
)

// Engine merges an incoming remote batch with the current in-memory list
// and the persisted cache into one deduplicated, ordered, decrypted list.
// One Engine serves the whole process; per-conversation state lives in the
// registry, never in package variables.
type Engine struct {
	registry *conv.Registry
	cache    *cache.ConversationCache
	codec    *payload.Codec
	images   *media.Queue
	selfID   string
	logger   *zap.Logger
}

// NewEngine creates a reconciler. selfID is the local user id; records it
// authored are excluded from remote-derived processing.
func NewEngine(registry *conv.Registry, c *cache.ConversationCache, codec *payload.Codec, images *media.Queue, selfID string, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		registry: registry,
		cache:    c,
		codec:    codec,
		images:   images,
		selfID:   selfID,
		logger:   logger,
	}
}

// Reconcile runs the merge for one pushed batch. At most one reconciliation
// runs per conversation; a batch arriving while another is in flight is
// dropped, not queued — the feed pushes the full record set on every
// change, so the next push carries whatever a dropped batch had.
func (e *Engine) Reconcile(ctx context.Context, conversationID string, records []feed.Record) {
	st := e.registry.Get(conversationID)
	if !st.TryBeginReconcile() {
		e.logger.Debug("reconcile already running, batch dropped",
			zap.String("conversation_id", conversationID),
			zap.Int("records", len(records)))
		return
	}
	defer st.EndReconcile()
	defer st.SetLoading(false)

	inMemory := st.Messages()

	var persisted []model.Message
	if snap := e.cache.Load(ctx, conversationID); snap != nil {
		persisted = snap.Messages
	}

	known := make(map[string]bool, len(inMemory)+len(persisted))
	for _, m := range inMemory {
		known[m.ID] = true
	}
	for _, m := range persisted {
		known[m.ID] = true
	}

	// Locally-authored records never take the remote-derived path: the
	// send pipeline is their source of truth and already holds plaintext.
	var trulyNew []feed.Record
	for _, rec := range records {
		if rec.SenderID == e.selfID {
			continue
		}
		if known[rec.ID] {
			continue
		}
		trulyNew = append(trulyNew, rec)
	}

	if len(trulyNew) == 0 {
		// Nothing to decrypt or download; just fold cache-only entries in.
		st.Rebuild(func(current []model.Message) []model.Message {
			return mergeSorted(current, persisted, nil)
		})
		return
	}

	processed := make([]model.Message, 0, len(trulyNew))
	for _, rec := range trulyNew {
		processed = append(processed, e.processRecord(ctx, conversationID, rec))
	}

	// Merge against the live list at publish time, not the snapshot taken
	// before the downloads ran. A send that landed in between stays in the
	// published list and gets persisted with it.
	merged := st.Rebuild(func(current []model.Message) []model.Message {
		return mergeSorted(current, persisted, processed)
	})

	if err := e.cache.Save(ctx, conversationID, merged); err != nil {
		e.logger.Error("snapshot save failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err))
	}

	e.logger.Info("reconciled",
		zap.String("conversation_id", conversationID),
		zap.Int("batch", len(records)),
		zap.Int("new", len(trulyNew)),
		zap.Int("total", len(merged)))
}

// processRecord turns a remote record into a display-ready message. A
// per-record failure leaves the original fields in place; a message is
// never dropped for failing to localize or decrypt.
func (e *Engine) processRecord(ctx context.Context, conversationID string, rec feed.Record) model.Message {
	m := model.Message{
		ID:          rec.ID,
		SenderID:    rec.SenderID,
		CreatedAt:   rec.CreatedAt,
		Kind:        rec.Kind,
		Text:        rec.Text,
		ImageURL:    rec.ImageURL,
		Status:      model.StatusSent,
		ReplyToID:   rec.ReplyToID,
		ReplyToText: rec.ReplyToText,
		ReplyToKind: rec.ReplyToKind,
	}

	switch rec.Kind {
	case model.KindImage:
		if rec.ImageURL != "" {
			local, err := e.images.EnqueueDownload(ctx, rec.ImageURL, conversationID)
			if err != nil {
				e.logger.Warn("image localize interrupted",
					zap.String("url", rec.ImageURL), zap.Error(err))
			}
			// The remote url stays in place as source of truth when the
			// local copy is unavailable.
			m.LocalPath = local
		}
	case model.KindText:
	default:
		// Malformed record: best-effort construct as text.
		m.Kind = model.KindText
	}

	// Captions ride on image records, so decrypt is independent of kind.
	if rec.Text != "" {
		m.Text = e.codec.Decrypt(rec.Text, conversationID)
	}

	return m
}

// mergeSorted deduplicates by id, earlier slices winning, and sorts
// descending by CreatedAt. Messages without a resolved timestamp sort as
// oldest; ties keep their original relative order.
func mergeSorted(inMemory, persisted, processed []model.Message) []model.Message {
	seen := make(map[string]bool, len(inMemory)+len(persisted)+len(processed))
	merged := make([]model.Message, 0, len(inMemory)+len(persisted)+len(processed))
	for _, group := range [][]model.Message{inMemory, persisted, processed} {
		for _, m := range group {
			if seen[m.ID] {
				continue
			}
			seen[m.ID] = true
			merged = append(merged, m)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}
