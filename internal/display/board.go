package display

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/serverwatch/internal/domain"
)

// DefaultMaxLabelLen matches the longest channel name chat platforms accept.
const DefaultMaxLabelLen = 100

var _ Sink = (*Board)(nil)

type Label struct {
	Ref       domain.DisplayRef `json:"ref"`
	Text      string            `json:"text"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Board is an in-process Sink. Every change is pushed to connected
// websocket clients so a status page can mirror the labels live.
type Board struct {
	mu     sync.RWMutex
	labels map[domain.DisplayRef]Label
	maxLen int
	hub    *hub
	logger *zap.Logger
}

func NewBoard(logger *zap.Logger, maxLen int) *Board {
	if maxLen <= 0 {
		maxLen = DefaultMaxLabelLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Board{
		labels: make(map[domain.DisplayRef]Label),
		maxLen: maxLen,
		hub:    newHub(logger),
		logger: logger,
	}
}

func (b *Board) MaxLabelLen() int { return b.maxLen }

func (b *Board) Create(_ context.Context, text string) (domain.DisplayRef, error) {
	if utf8.RuneCountInString(text) > b.maxLen {
		return "", ErrLabelTooLong
	}
	l := Label{Ref: domain.DisplayRef(uuid.NewString()), Text: text, UpdatedAt: time.Now().UTC()}
	b.mu.Lock()
	b.labels[l.Ref] = l
	b.mu.Unlock()
	b.hub.broadcast(message{Type: messageCreated, Label: l})
	return l.Ref, nil
}

func (b *Board) Rename(_ context.Context, ref domain.DisplayRef, text string) error {
	if utf8.RuneCountInString(text) > b.maxLen {
		return ErrLabelTooLong
	}
	b.mu.Lock()
	l, ok := b.labels[ref]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownDisplay
	}
	l.Text = text
	l.UpdatedAt = time.Now().UTC()
	b.labels[ref] = l
	b.mu.Unlock()
	b.hub.broadcast(message{Type: messageRenamed, Label: l})
	return nil
}

func (b *Board) Delete(_ context.Context, ref domain.DisplayRef) error {
	b.mu.Lock()
	l, ok := b.labels[ref]
	if !ok {
		b.mu.Unlock()
		return ErrUnknownDisplay
	}
	delete(b.labels, ref)
	b.mu.Unlock()
	b.hub.broadcast(message{Type: messageDeleted, Label: l})
	return nil
}

func (b *Board) Label(ref domain.DisplayRef) (Label, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.labels[ref]
	return l, ok
}

// Labels returns every label sorted by text.
func (b *Board) Labels() []Label {
	b.mu.RLock()
	out := make([]Label, 0, len(b.labels))
	for _, l := range b.labels {
		out = append(out, l)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Text == out[j].Text {
			return out[i].Ref < out[j].Ref
		}
		return out[i].Text < out[j].Text
	})
	return out
}

// ServeHTTP upgrades to a websocket, sends the current labels, then streams changes.
func (b *Board) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// read-only feed, served to any origin
		InsecureSkipVerify: true,
	})
	if err != nil {
		b.logger.Warn("board_ws_accept_failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan message, 256), logger: b.logger}

	// register before taking the snapshot so no change slips between the two
	b.hub.register(c)
	for _, l := range b.Labels() {
		select {
		case c.send <- message{Type: messageSnapshot, Label: l}:
		default:
		}
	}

	ctx := r.Context()
	done := make(chan struct{})
	go func() {
		c.writePump(ctx)
		close(done)
	}()

	c.readPump(ctx)

	b.hub.unregister(c)
	conn.Close(websocket.StatusNormalClosure, "")
	<-done
}

func (b *Board) Clients() int { return b.hub.count() }
