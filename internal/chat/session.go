// Package chat is the surface the UI talks to: per-conversation sessions
// exposing the observable message list and the send mutators.
package chat

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Andrew-022/michatapp-sub000/internal/conv"
	"github.com/Andrew-022/michatapp-sub000/internal/feed"
	"github.com/Andrew-022/michatapp-sub000/internal/model"
	"github.com/Andrew-022/michatapp-sub000/internal/outbox"
	intsync "github.com/Andrew-022/michatapp-sub000/internal/sync"
)

// Manager opens conversation sessions and tracks which one is current.
type Manager struct {
	feed     feed.Feed
	engine   *intsync.Engine
	pipeline *outbox.Pipeline
	registry *conv.Registry
	logger   *zap.Logger

	mu      sync.Mutex
	current *Session
}

// NewManager creates a session manager.
func NewManager(f feed.Feed, engine *intsync.Engine, pipeline *outbox.Pipeline, registry *conv.Registry, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		feed:     f,
		engine:   engine,
		pipeline: pipeline,
		registry: registry,
		logger:   logger,
	}
}

// Open attaches to a conversation: subscribes to its feed pushes and hands
// every batch to the reconciler. The session becomes the current one.
func (m *Manager) Open(conversationID string) (*Session, error) {
	s := &Session{
		manager:        m,
		conversationID: conversationID,
		state:          m.registry.Get(conversationID),
	}

	unsubscribe, err := m.feed.Subscribe(conversationID,
		func(records []feed.Record) {
			// Reconciliation blocks on downloads; run off the feed's read
			// loop. The per-conversation guard drops overlapping batches.
			go m.engine.Reconcile(context.Background(), conversationID, records)
		},
		func(err error) {
			m.logger.Error("feed subscription error",
				zap.String("conversation_id", conversationID), zap.Error(err))
		},
	)
	if err != nil {
		return nil, fmt.Errorf("attach %s: %w", conversationID, err)
	}
	s.unsubscribe = unsubscribe

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}

// Current returns the session the user is looking at, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	if m.current == s {
		m.current = nil
	}
	m.mu.Unlock()
}

// Session is one attached conversation.
type Session struct {
	manager        *Manager
	conversationID string
	state          *conv.State
	unsubscribe    func()
}

// ConversationID returns the attached conversation's id.
func (s *Session) ConversationID() string { return s.conversationID }

// Messages returns the observable list, newest first.
func (s *Session) Messages() []model.Message { return s.state.Messages() }

// Loading reports whether the first reconciliation is still pending.
func (s *Session) Loading() bool { return s.state.Loading() }

// SendText sends a text message with optimistic local echo.
func (s *Session) SendText(plaintext string) *outbox.Task {
	return s.manager.pipeline.SendText(s.conversationID, plaintext)
}

// SendImage sends an image message; the local asset shows immediately.
func (s *Session) SendImage(localAsset, caption string) *outbox.Task {
	return s.manager.pipeline.SendImage(s.conversationID, localAsset, caption)
}

// SetReplyTarget stamps the next outgoing message as a reply. Nil clears.
func (s *Session) SetReplyTarget(t *model.ReplyTarget) {
	s.state.SetReplyTarget(t)
}

// Cleanup detaches from the feed and resets the current-conversation
// pointer. Async work already scheduled runs to completion; its cache
// writes still land.
func (s *Session) Cleanup() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
	s.manager.release(s)
}
