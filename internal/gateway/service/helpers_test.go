package service

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/campusgate/gatekeeper/internal/gateway/store"
)

// recordingBroadcaster captures published events for assertions.
type recordingBroadcaster struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	Type string
	Data any
}

func (b *recordingBroadcaster) Publish(eventType string, data any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, publishedEvent{Type: eventType, Data: data})
}

func (b *recordingBroadcaster) all() []publishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]publishedEvent, len(b.events))
	copy(out, b.events)
	return out
}

func (b *recordingBroadcaster) typesSeen() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, e := range b.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeConn is a DeviceConn that records control pushes.
type fakeConn struct {
	mu       sync.Mutex
	sent     []any
	failSend error
}

func (c *fakeConn) SendControl(msg any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSend != nil {
		return c.failSend
	}
	c.sent = append(c.sent, msg)
	return nil
}

func (c *fakeConn) pushes() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.sent))
	copy(out, c.sent)
	return out
}

func testLogger() *zap.Logger { return zap.NewNop() }

func validCard(cardID string) store.CardRecord {
	now := time.Now().UTC()
	return store.CardRecord{
		CardID:     cardID,
		HolderName: "Ada Lovelace",
		OrgName:    "Campus",
		DeptName:   "Computer Science",
		Type:       "student",
		ValidFrom:  now.AddDate(0, -1, 0),
		ValidUntil: now.AddDate(1, 0, 0),
		Active:     true,
	}
}
