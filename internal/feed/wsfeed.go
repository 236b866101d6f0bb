package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// frame is the wire format of the websocket feed protocol. The server
// pushes "batch" frames for subscribed conversations and answers "write"
// and "summary" frames with an "ack" carrying the same seq.
type frame struct {
	Op             string   `json:"op"`
	Seq            int64    `json:"seq,omitempty"`
	ConversationID string   `json:"conversationId,omitempty"`
	Record         *Record  `json:"record,omitempty"`
	Records        []Record `json:"records,omitempty"`
	Summary        *Summary `json:"summary,omitempty"`
	ID             string   `json:"id,omitempty"`
	Error          string   `json:"error,omitempty"`
}

type subscriber struct {
	onBatch func([]Record)
	onErr   func(error)
}

// WSFeed implements Feed over a single websocket connection.
type WSFeed struct {
	conn   *websocket.Conn
	logger *zap.Logger

	writeMu sync.Mutex // gorilla allows one concurrent writer

	mu      sync.Mutex
	nextSeq int64
	pending map[int64]chan frame
	subs    map[string]*subscriber
	closed  bool
}

// DialWS connects to the feed endpoint and starts the read loop.
func DialWS(ctx context.Context, url string, logger *zap.Logger) (*WSFeed, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial feed: %w", err)
	}
	f := &WSFeed{
		conn:    conn,
		logger:  logger,
		pending: make(map[int64]chan frame),
		subs:    make(map[string]*subscriber),
	}
	go f.readLoop()
	return f, nil
}

// Close tears down the connection. Subscribers get their onErr callback.
func (f *WSFeed) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return f.conn.Close()
}

func (f *WSFeed) readLoop() {
	for {
		var fr frame
		if err := f.conn.ReadJSON(&fr); err != nil {
			f.fanOutError(err)
			return
		}
		switch fr.Op {
		case "batch":
			f.mu.Lock()
			sub := f.subs[fr.ConversationID]
			f.mu.Unlock()
			if sub != nil {
				sub.onBatch(fr.Records)
			}
		case "ack", "error":
			f.mu.Lock()
			ch := f.pending[fr.Seq]
			delete(f.pending, fr.Seq)
			f.mu.Unlock()
			if ch != nil {
				ch <- fr
			}
		default:
			f.logger.Warn("unknown feed frame", zap.String("op", fr.Op))
		}
	}
}

func (f *WSFeed) fanOutError(err error) {
	f.mu.Lock()
	closed := f.closed
	subs := make([]*subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()
	if closed {
		return
	}
	f.logger.Error("feed connection lost", zap.Error(err))
	for _, s := range subs {
		if s.onErr != nil {
			s.onErr(err)
		}
	}
}

func (f *WSFeed) send(fr frame) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()
	data, err := json.Marshal(fr)
	if err != nil {
		return err
	}
	return f.conn.WriteMessage(websocket.TextMessage, data)
}

// call sends a frame with a fresh seq and waits for the matching ack.
func (f *WSFeed) call(ctx context.Context, fr frame) (frame, error) {
	ch := make(chan frame, 1)
	f.mu.Lock()
	f.nextSeq++
	fr.Seq = f.nextSeq
	f.pending[fr.Seq] = ch
	f.mu.Unlock()

	if err := f.send(fr); err != nil {
		f.mu.Lock()
		delete(f.pending, fr.Seq)
		f.mu.Unlock()
		return frame{}, err
	}

	select {
	case resp := <-ch:
		if resp.Op == "error" {
			return frame{}, fmt.Errorf("feed: %s", resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		f.mu.Lock()
		delete(f.pending, fr.Seq)
		f.mu.Unlock()
		return frame{}, ctx.Err()
	}
}

// Subscribe registers for batches of a conversation.
func (f *WSFeed) Subscribe(conversationID string, onBatch func([]Record), onErr func(error)) (func(), error) {
	f.mu.Lock()
	f.subs[conversationID] = &subscriber{onBatch: onBatch, onErr: onErr}
	f.mu.Unlock()

	if err := f.send(frame{Op: "subscribe", ConversationID: conversationID}); err != nil {
		f.mu.Lock()
		delete(f.subs, conversationID)
		f.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", conversationID, err)
	}

	return func() {
		f.mu.Lock()
		delete(f.subs, conversationID)
		f.mu.Unlock()
		if err := f.send(frame{Op: "unsubscribe", ConversationID: conversationID}); err != nil {
			f.logger.Warn("unsubscribe failed", zap.String("conversation_id", conversationID), zap.Error(err))
		}
	}, nil
}

// Write appends one record and returns the server-assigned id.
func (f *WSFeed) Write(ctx context.Context, conversationID string, rec Record) (string, error) {
	resp, err := f.call(ctx, frame{Op: "write", ConversationID: conversationID, Record: &rec})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// UpdateSummary refreshes the conversation's last-message denormalization.
func (f *WSFeed) UpdateSummary(ctx context.Context, conversationID string, s Summary) error {
	_, err := f.call(ctx, frame{Op: "summary", ConversationID: conversationID, Summary: &s})
	return err
}

var _ Feed = (*WSFeed)(nil)

// dialTimeout bounds the initial handshake only; established connections
// have no read deadline, matching the push model.
const dialTimeout = 15 * time.Second

// DialWSDefault dials with the package's default handshake timeout.
func DialWSDefault(url string, logger *zap.Logger) (*WSFeed, error) {
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	return DialWS(ctx, url, logger)
}
