package collab

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

// Session is one connected client's membership in a document room. The
// hub delivers ordered events on Events(); a closed Resync() channel
// tells the transport the session fell behind and must rejoin from a
// snapshot.
type Session struct {
	clientID   string
	documentID string
	joinedAt   time.Time
	lastAckSeq atomic.Uint64

	events chan models.BroadcastEvent
	resync chan struct{}

	closeOnce  sync.Once
	resyncOnce sync.Once
}

func newSession(clientID, documentID string, buffer int) *Session {
	return &Session{
		clientID:   clientID,
		documentID: documentID,
		joinedAt:   time.Now().UTC(),
		events:     make(chan models.BroadcastEvent, buffer),
		resync:     make(chan struct{}),
	}
}

// Events is the session's ordered event stream. The channel closes when
// the session leaves the room or is dropped for falling behind.
func (s *Session) Events() <-chan models.BroadcastEvent {
	return s.events
}

// Resync is closed when the session's send queue overflowed. The
// transport must discard the session and join again with a snapshot.
func (s *Session) Resync() <-chan struct{} {
	return s.resync
}

// Ack records the highest sequence number the client has confirmed.
func (s *Session) Ack(seq uint64) {
	for {
		current := s.lastAckSeq.Load()
		if seq <= current || s.lastAckSeq.CompareAndSwap(current, seq) {
			return
		}
	}
}

// Membership returns a point-in-time view of the session.
func (s *Session) Membership() models.CollaborationSession {
	return models.CollaborationSession{
		ClientID:   s.clientID,
		DocumentID: s.documentID,
		LastAckSeq: s.lastAckSeq.Load(),
		JoinedAt:   s.joinedAt,
	}
}

// send enqueues without blocking. A false return means the buffer is
// full and the session can no longer keep the ordering guarantee.
func (s *Session) send(event models.BroadcastEvent) bool {
	select {
	case s.events <- event:
		return true
	default:
		return false
	}
}

func (s *Session) close() {
	s.closeOnce.Do(func() {
		close(s.events)
	})
}

func (s *Session) forceResync() {
	s.resyncOnce.Do(func() {
		close(s.resync)
	})
}
