// Package outbox gives outgoing messages an optimistic local lifecycle:
// the message appears in the list immediately with status sending, and a
// tracked background task carries the encrypt, write, and confirmation.
package outbox

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/cache"
	"github.com/Andrew-022/michatapp-sub000/internal/conv"
	"github.com/Andrew-022/michatapp-sub000/internal/feed"
	"github.com/Andrew-022/michatapp-sub000/internal/media"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/payload"
)

// Task is the handle for one in-flight send. It is never cancelled;
// Done closes when the background work has run to completion.
type Task struct {
	TempID string
	done   chan struct{}
}

// Done returns a channel closed when the send has reached a terminal state.
func (t *Task) Done() <-chan struct{} { return t.done }

// Pipeline performs optimistic sends and reconciles them with the
// server-confirmed record.
type Pipeline struct {
	registry *conv.Registry
	cache    *cache.ConversationCache
	codec    *payload.Codec
	images   *media.Queue
	feed     feed.Feed
	uploader feed.Uploader
	selfID   string
	logger   *zap.Logger

	mu    sync.Mutex
	tasks map[string]*Task
}

// NewPipeline creates a send pipeline for the local user selfID.
func NewPipeline(registry *conv.Registry, c *cache.ConversationCache, codec *payload.Codec, images *media.Queue, f feed.Feed, up feed.Uploader, selfID string, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		registry: registry,
		cache:    c,
		codec:    codec,
		images:   images,
		feed:     f,
		uploader: up,
		selfID:   selfID,
		logger:   logger,
		tasks:    make(map[string]*Task),
	}
}

// SendText echoes the message locally with status sending, then encrypts
// and writes it to the feed in a background task. On confirmation the
// temporary id is swapped for the server id and the snapshot persisted;
// on failure the message stays in place with status error. No retry.
func (p *Pipeline) SendText(conversationID, plaintext string) *Task {
	st := p.registry.Get(conversationID)
	now := time.Now()
	msg := model.Message{
		ID:        tempID(now),
		SenderID:  p.selfID,
		CreatedAt: now,
		Kind:      model.KindText,
		Text:      plaintext,
		Status:    model.StatusSending,
	}
	applyReply(&msg, st.TakeReplyTarget())
	st.Prepend(msg)

	task := p.track(msg.ID)
	go func() {
		defer p.finish(task)
		ctx := context.Background()

		rec := feed.Record{
			SenderID:    p.selfID,
			CreatedAt:   now,
			Kind:        model.KindText,
			Text:        p.codec.Encrypt(plaintext, conversationID),
			ReplyToID:   msg.ReplyToID,
			ReplyToText: msg.ReplyToText,
			ReplyToKind: msg.ReplyToKind,
		}
		serverID, err := p.feed.Write(ctx, conversationID, rec)
		if err != nil {
			p.fail(st, msg.ID, err)
			return
		}

		p.confirm(ctx, st, conversationID, msg.ID, serverID)
		p.updateSummary(conversationID, plaintext, now)
	}()
	return task
}

// SendImage echoes the message with the local asset path for instant
// display, then uploads the asset, registers the local copy in the
// attachment cache, and writes the metadata record, all in the tracked
// background task. Caption follows the same encrypt path as text.
func (p *Pipeline) SendImage(conversationID, localAsset, caption string) *Task {
	st := p.registry.Get(conversationID)
	now := time.Now()
	msg := model.Message{
		ID:        tempID(now),
		SenderID:  p.selfID,
		CreatedAt: now,
		Kind:      model.KindImage,
		Text:      caption,
		LocalPath: localAsset,
		Status:    model.StatusSending,
	}
	applyReply(&msg, st.TakeReplyTarget())
	st.Prepend(msg)

	task := p.track(msg.ID)
	go func() {
		defer p.finish(task)
		ctx := context.Background()

		remoteURL, err := p.uploader.Upload(ctx, localAsset)
		if err != nil {
			p.fail(st, msg.ID, err)
			return
		}

		// The asset is already on disk; adopt it as the cached copy so
		// lookups for the uploaded url hit without a download.
		p.images.AdoptLocal(ctx, remoteURL, conversationID, localAsset)

		rec := feed.Record{
			SenderID:    p.selfID,
			CreatedAt:   now,
			Kind:        model.KindImage,
			ImageURL:    remoteURL,
			ReplyToID:   msg.ReplyToID,
			ReplyToText: msg.ReplyToText,
			ReplyToKind: msg.ReplyToKind,
		}
		if caption != "" {
			rec.Text = p.codec.Encrypt(caption, conversationID)
		}
		serverID, err := p.feed.Write(ctx, conversationID, rec)
		if err != nil {
			p.fail(st, msg.ID, err)
			return
		}

		st.Update(msg.ID, func(m *model.Message) { m.ImageURL = remoteURL })
		p.confirm(ctx, st, conversationID, msg.ID, serverID)
		summary := caption
		if summary == "" {
			summary = "[image]"
		}
		p.updateSummary(conversationID, summary, now)
	}()
	return task
}

// Outstanding returns the temporary ids of sends whose background work has
// not yet reached a terminal state.
func (p *Pipeline) Outstanding() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.tasks))
	for id := range p.tasks {
		ids = append(ids, id)
	}
	return ids
}

func (p *Pipeline) confirm(ctx context.Context, st *conv.State, conversationID, clientID, serverID string) {
	st.Update(clientID, func(m *model.Message) {
		if !transitionOK(m.Status, model.StatusSent) {
			return
		}
		m.ID = serverID
		m.Status = model.StatusSent
	})
	if err := p.cache.Save(ctx, conversationID, st.Messages()); err != nil {
		p.logger.Warn("snapshot save after send failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
	p.logger.Info("message sent",
		zap.String("client_msg_id", clientID),
		zap.String("server_msg_id", serverID))
}

// fail marks the optimistic echo with status error. The temporary id is
// retained so the UI can still identify the entry.
func (p *Pipeline) fail(st *conv.State, clientID string, err error) {
	p.logger.Error("send failed", zap.String("client_msg_id", clientID), zap.Error(err))
	st.Update(clientID, func(m *model.Message) {
		if transitionOK(m.Status, model.StatusError) {
			m.Status = model.StatusError
		}
	})
}

// updateSummary refreshes the conversation's last-message denormalization.
// Fire-and-forget: a failed summary write never affects the send.
func (p *Pipeline) updateSummary(conversationID, text string, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.feed.UpdateSummary(ctx, conversationID, feed.Summary{Text: text, CreatedAt: at}); err != nil {
		p.logger.Warn("summary update failed",
			zap.String("conversation_id", conversationID), zap.Error(err))
	}
}

func (p *Pipeline) track(clientID string) *Task {
	t := &Task{TempID: clientID, done: make(chan struct{})}
	p.mu.Lock()
	p.tasks[clientID] = t
	p.mu.Unlock()
	return t
}

func (p *Pipeline) finish(t *Task) {
	p.mu.Lock()
	delete(p.tasks, t.TempID)
	p.mu.Unlock()
	close(t.done)
}

func applyReply(m *model.Message, t *model.ReplyTarget) {
	if t == nil {
		return
	}
	m.ReplyToID = t.ID
	m.ReplyToText = t.Text
	m.ReplyToKind = t.Kind
}

// tempID derives the temporary id from the wall clock. Two sends within
// the same millisecond collide; callers have no workaround.
func tempID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}
