// Package collab provides total-order broadcast of document edits. Each
// document gets one room; the hub assigns a monotonic, gapless sequence
// number per room and fans events out to every connected session.
//
// The hub never interprets payloads. Conflict resolution between
// concurrent edits belongs to the document layer; the hub's obligation
// is that every client observes the same events in the same order, and
// that a client rejoining with its last-seen sequence number receives
// exactly the missed events.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storycut/storycut/pkg/models"
)

// SnapshotStore persists compacted document snapshots for joiners whose
// last-seen sequence fell out of the retained log.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, snapshot models.DocumentSnapshot) error
	LoadSnapshot(ctx context.Context, documentID string) (models.DocumentSnapshot, error)
}

// Compactor folds evicted events into a document snapshot. Supplied by
// the document layer; the hub only moves opaque bytes.
type Compactor interface {
	Compact(prev models.DocumentSnapshot, evicted []models.BroadcastEvent) (json.RawMessage, error)
}

// Config holds hub tuning knobs.
type Config struct {
	// Retention is how many events each room keeps replayable in memory.
	// Eviction is amortized: the log may grow to twice this size before
	// the excess is folded into a snapshot in one batch.
	Retention int
	// SessionBuffer is the per-session send queue depth. A session that
	// overflows it is dropped and must resynchronize via snapshot.
	SessionBuffer int
}

// DefaultConfig returns the hub defaults.
func DefaultConfig() Config {
	return Config{
		Retention:     1024,
		SessionBuffer: 64,
	}
}

// JoinResult is what a joining client needs to catch up: an optional
// snapshot to rebuild state from, the retained events after it, and the
// live session for everything that follows.
type JoinResult struct {
	Session  *Session
	Snapshot *models.DocumentSnapshot
	Backlog  []models.BroadcastEvent
}

// Hub owns every document room in the process.
type Hub struct {
	logger    *slog.Logger
	store     SnapshotStore
	compactor Compactor
	config    Config

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(logger *slog.Logger, store SnapshotStore, compactor Compactor, config Config) *Hub {
	if config.Retention <= 0 {
		config.Retention = DefaultConfig().Retention
	}

	if config.SessionBuffer <= 0 {
		config.SessionBuffer = DefaultConfig().SessionBuffer
	}

	return &Hub{
		logger:    logger.With("module", "collab"),
		store:     store,
		compactor: compactor,
		config:    config,
		rooms:     make(map[string]*room),
	}
}

// Join registers a session in the document's room, creating the room on
// first join. The returned backlog holds every retained event with
// sequence number > sinceSeq in increasing order; when sinceSeq is
// older than the retained window the result also carries a snapshot,
// and the backlog starts after the snapshot's sequence number.
func (h *Hub) Join(ctx context.Context, documentID, clientID string, sinceSeq uint64) (JoinResult, error) {
	for {
		r := h.roomFor(ctx, documentID)

		result, err := h.join(ctx, r, clientID, sinceSeq)
		if IsRoomClosed(err) {
			// Lost the race with a concurrent teardown; the next pass
			// creates a fresh room.
			h.evict(documentID, r)

			continue
		}

		return result, err
	}
}

func (h *Hub) join(ctx context.Context, r *room, clientID string, sinceSeq uint64) (JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return JoinResult{}, ErrRoomClosed
	}

	// A sinceSeq the room never issued means the client saw a later
	// epoch than this room knows about; an empty backlog would silently
	// drop events, so the join is refused instead.
	if sinceSeq > r.seq {
		return JoinResult{}, fmt.Errorf("%w: document %s: since %d, room at %d",
			ErrSeqAhead, r.documentID, sinceSeq, r.seq)
	}

	if previous, ok := r.sessions[clientID]; ok {
		// Reconnect with the same client id replaces the old session.
		previous.forceResync()
		previous.close()
		delete(r.sessions, clientID)
	}

	result := JoinResult{}

	if sinceSeq+1 < r.firstRetainedSeq() {
		snapshot, err := h.snapshotFor(ctx, r)
		if err != nil {
			return JoinResult{}, err
		}

		result.Snapshot = &snapshot
		sinceSeq = snapshot.Seq
	}

	result.Backlog = r.backlogAfter(sinceSeq)

	session := newSession(clientID, r.documentID, h.config.SessionBuffer)
	r.sessions[clientID] = session
	result.Session = session

	h.logger.InfoContext(ctx, "Client joined document room",
		"document_id", r.documentID,
		"client_id", clientID,
		"backlog", len(result.Backlog),
		"via_snapshot", result.Snapshot != nil,
	)

	return result, nil
}

// snapshotFor resolves a snapshot covering everything before the
// retained window. Must hold the room lock.
func (h *Hub) snapshotFor(ctx context.Context, r *room) (models.DocumentSnapshot, error) {
	if r.snapshot != nil {
		return *r.snapshot, nil
	}

	if h.store == nil {
		return models.DocumentSnapshot{}, fmt.Errorf("%w: document %s", ErrSnapshotRequired, r.documentID)
	}

	snapshot, err := h.store.LoadSnapshot(ctx, r.documentID)
	if err != nil {
		return models.DocumentSnapshot{}, fmt.Errorf("%w: document %s: %w", ErrSnapshotRequired, r.documentID, err)
	}

	r.snapshot = &snapshot

	return snapshot, nil
}

// Publish assigns the next sequence number for the room, appends the
// event to the room log and fans it out to every other session. Sends
// never block: a session whose queue is full is dropped from the room
// and told to resynchronize.
func (h *Hub) Publish(ctx context.Context, documentID, clientID string, payload json.RawMessage) (models.BroadcastEvent, error) {
	r := h.lookup(documentID)
	if r == nil {
		return models.BroadcastEvent{}, fmt.Errorf("%w: document %s", ErrRoomClosed, documentID)
	}

	r.mu.Lock()

	if r.closed {
		r.mu.Unlock()

		return models.BroadcastEvent{}, fmt.Errorf("%w: document %s", ErrRoomClosed, documentID)
	}

	if _, ok := r.sessions[clientID]; !ok {
		r.mu.Unlock()

		return models.BroadcastEvent{}, fmt.Errorf("%w: client %s in document %s", ErrSessionNotFound, clientID, documentID)
	}

	event := r.nextEvent(clientID, payload)

	for id, session := range r.sessions {
		if id == clientID {
			continue
		}

		if !session.send(event) {
			h.logger.WarnContext(ctx, "Session fell behind, forcing resync",
				"document_id", documentID, "client_id", id, "seq", event.Seq)
			session.forceResync()
			session.close()
			delete(r.sessions, id)
		}
	}

	// Eviction is amortized: the log grows to twice the window before
	// the excess is folded in one batch, so the fold cost is paid once
	// per window rather than on every publish.
	var snapshot *models.DocumentSnapshot
	if len(r.log) > 2*h.config.Retention {
		snapshot = h.fold(ctx, r, r.evictBeyond(h.config.Retention))
	}

	r.mu.Unlock()

	if snapshot != nil {
		h.persist(ctx, *snapshot)
	}

	return event, nil
}

// Leave removes the client's session. When the last session leaves, the
// remaining log is folded into a snapshot and the room is torn down.
func (h *Hub) Leave(ctx context.Context, documentID, clientID string) error {
	r := h.lookup(documentID)
	if r == nil {
		return fmt.Errorf("%w: document %s", ErrRoomClosed, documentID)
	}

	r.mu.Lock()

	session, ok := r.sessions[clientID]
	if !ok {
		r.mu.Unlock()

		return fmt.Errorf("%w: client %s in document %s", ErrSessionNotFound, clientID, documentID)
	}

	session.close()
	delete(r.sessions, clientID)

	var snapshot *models.DocumentSnapshot

	empty := len(r.sessions) == 0
	if empty {
		r.closed = true

		if len(r.log) > 0 {
			snapshot = h.fold(ctx, r, r.log)
			r.log = nil
		}
	}

	r.mu.Unlock()

	if snapshot != nil {
		h.persist(ctx, *snapshot)
	}

	if empty {
		h.evict(documentID, r)
		h.logger.InfoContext(ctx, "Document room torn down", "document_id", documentID)
	}

	return nil
}

// Sessions returns a point-in-time view of the room's members.
func (h *Hub) Sessions(documentID string) []models.CollaborationSession {
	r := h.lookup(documentID)
	if r == nil {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]models.CollaborationSession, 0, len(r.sessions))
	for _, session := range r.sessions {
		members = append(members, session.Membership())
	}

	return members
}

// Close tears down every room, folding retained logs into snapshots.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()
	rooms := make([]*room, 0, len(h.rooms))

	for _, r := range h.rooms {
		rooms = append(rooms, r)
	}

	h.rooms = make(map[string]*room)
	h.mu.Unlock()

	for _, r := range rooms {
		r.mu.Lock()

		r.closed = true

		for id, session := range r.sessions {
			session.close()
			delete(r.sessions, id)
		}

		var snapshot *models.DocumentSnapshot
		if len(r.log) > 0 {
			snapshot = h.fold(ctx, r, r.log)
			r.log = nil
		}

		r.mu.Unlock()

		if snapshot != nil {
			h.persist(ctx, *snapshot)
		}
	}

	return nil
}

// fold compacts evicted events into the room's in-memory snapshot and
// returns it for persistence. Must hold the room lock; the store write
// happens outside it so the room is never held across the network.
func (h *Hub) fold(ctx context.Context, r *room, evicted []models.BroadcastEvent) *models.DocumentSnapshot {
	if h.compactor == nil || len(evicted) == 0 {
		// Without a compactor evicted events are simply discarded;
		// out-of-window joiners rely on whatever the store holds.
		return nil
	}

	var prev models.DocumentSnapshot
	if r.snapshot != nil {
		prev = *r.snapshot
	} else {
		prev.DocumentID = r.documentID
	}

	state, err := h.compactor.Compact(prev, evicted)
	if err != nil {
		h.logger.ErrorContext(ctx, "Snapshot compaction failed",
			"document_id", r.documentID, "error", err)

		return nil
	}

	snapshot := models.DocumentSnapshot{
		DocumentID: r.documentID,
		Seq:        evicted[len(evicted)-1].Seq,
		State:      state,
		TakenAt:    time.Now().UTC(),
	}
	r.snapshot = &snapshot

	return &snapshot
}

// persist writes a folded snapshot to the store. Best-effort: a store
// failure keeps the in-memory snapshot so joiners in this process are
// still served.
func (h *Hub) persist(ctx context.Context, snapshot models.DocumentSnapshot) {
	if h.store == nil {
		return
	}

	if err := h.store.SaveSnapshot(ctx, snapshot); err != nil {
		h.logger.ErrorContext(ctx, "Failed to persist document snapshot",
			"document_id", snapshot.DocumentID, "seq", snapshot.Seq, "error", err)
	}
}

// roomFor returns the live room for the document, creating and seeding
// it from the snapshot store on first join.
func (h *Hub) roomFor(ctx context.Context, documentID string) *room {
	h.mu.Lock()

	r, ok := h.rooms[documentID]
	if ok {
		h.mu.Unlock()

		return r
	}

	r = newRoom(documentID)
	h.rooms[documentID] = r
	h.mu.Unlock()

	// Resume the sequence counter from the stored snapshot so numbering
	// stays gapless across room teardowns.
	if h.store != nil {
		if snapshot, err := h.store.LoadSnapshot(ctx, documentID); err == nil {
			r.mu.Lock()

			if r.seq == 0 {
				r.seq = snapshot.Seq
				r.snapshot = &snapshot
			}

			r.mu.Unlock()
		}
	}

	return r
}

func (h *Hub) lookup(documentID string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rooms[documentID]
}

// evict removes the room from the map only if it is still the same
// instance, so a freshly created replacement is never discarded.
func (h *Hub) evict(documentID string, r *room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, ok := h.rooms[documentID]; ok && current == r {
		delete(h.rooms, documentID)
	}
}
