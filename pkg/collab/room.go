package collab

import (
	"sync"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

// room holds the ordered event log and live sessions for one document.
// Every mutation runs under r.mu; sequence assignment inside that
// section is what makes the order total and gapless.
type room struct {
	mu sync.Mutex

	documentID string

	seq      uint64
	log      []models.BroadcastEvent
	sessions map[string]*Session
	snapshot *models.DocumentSnapshot
	closed   bool
}

func newRoom(documentID string) *room {
	return &room{
		documentID: documentID,
		sessions:   make(map[string]*Session),
	}
}

// firstRetainedSeq is the oldest sequence number still replayable from
// the in-memory log. When the log is empty nothing is replayable and
// the next published event will carry seq+1.
func (r *room) firstRetainedSeq() uint64 {
	if len(r.log) == 0 {
		return r.seq + 1
	}

	return r.log[0].Seq
}

// backlogAfter copies the retained events with sequence number > since.
func (r *room) backlogAfter(since uint64) []models.BroadcastEvent {
	start := len(r.log)

	for i, event := range r.log {
		if event.Seq > since {
			start = i

			break
		}
	}

	return append([]models.BroadcastEvent(nil), r.log[start:]...)
}

// nextEvent assigns the room's next sequence number and appends the
// event to the log.
func (r *room) nextEvent(clientID string, payload []byte) models.BroadcastEvent {
	r.seq++

	event := models.BroadcastEvent{
		Seq:        r.seq,
		DocumentID: r.documentID,
		ClientID:   clientID,
		Payload:    payload,
		AppliedAt:  time.Now().UTC(),
	}
	r.log = append(r.log, event)

	return event
}

// evictBeyond trims the log to the retention window and returns the
// evicted prefix, oldest first.
func (r *room) evictBeyond(retention int) []models.BroadcastEvent {
	if len(r.log) <= retention {
		return nil
	}

	cut := len(r.log) - retention
	evicted := r.log[:cut]
	r.log = append([]models.BroadcastEvent(nil), r.log[cut:]...)

	return evicted
}
