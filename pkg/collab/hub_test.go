package collab_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/storycut/storycut/pkg/collab"
	"github.com/storycut/storycut/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string]models.DocumentSnapshot
	saves     int
}

func newMemorySnapshotStore() *memorySnapshotStore {
	return &memorySnapshotStore{snapshots: make(map[string]models.DocumentSnapshot)}
}

func (s *memorySnapshotStore) SaveSnapshot(_ context.Context, snapshot models.DocumentSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots[snapshot.DocumentID] = snapshot
	s.saves++

	return nil
}

func (s *memorySnapshotStore) LoadSnapshot(_ context.Context, documentID string) (models.DocumentSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot, ok := s.snapshots[documentID]
	if !ok {
		return models.DocumentSnapshot{}, collab.ErrSnapshotNotFound
	}

	return snapshot, nil
}

// seqCompactor folds evicted events into a state blob recording the
// highest folded sequence number.
type seqCompactor struct{}

func (seqCompactor) Compact(_ models.DocumentSnapshot, evicted []models.BroadcastEvent) (json.RawMessage, error) {
	state, err := json.Marshal(map[string]uint64{"folded_up_to": evicted[len(evicted)-1].Seq})

	return state, err
}

func newTestHub(config collab.Config) *collab.Hub {
	return collab.NewHub(slog.Default(), nil, nil, config)
}

func payload(s string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"op":%q}`, s))
}

func seqs(events []models.BroadcastEvent) []uint64 {
	out := make([]uint64, 0, len(events))
	for _, event := range events {
		out = append(out, event.Seq)
	}

	return out
}

func TestLateJoinerReceivesExactlyMissedEvents(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		event, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), event.Seq)
	}

	// Rejoin with since_seq=2: events 3..5, increasing, no gaps.
	result, err := hub.Join(ctx, "doc-1", "reader", 2)
	require.NoError(t, err)
	assert.Nil(t, result.Snapshot)
	assert.Equal(t, []uint64{3, 4, 5}, seqs(result.Backlog))
}

func TestPublishFansOutToOtherSessionsOnly(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	writer, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	reader, err := hub.Join(ctx, "doc-1", "reader", 0)
	require.NoError(t, err)

	_, err = hub.Publish(ctx, "doc-1", "writer", payload("edit"))
	require.NoError(t, err)

	select {
	case event := <-reader.Session.Events():
		assert.Equal(t, uint64(1), event.Seq)
		assert.Equal(t, "writer", event.ClientID)
	default:
		t.Fatal("reader did not receive the broadcast")
	}

	select {
	case event := <-writer.Session.Events():
		t.Fatalf("publisher received its own event: %+v", event)
	default:
	}
}

func TestConcurrentPublishersObserveOneTotalOrder(t *testing.T) {
	hub := newTestHub(collab.Config{SessionBuffer: 256})
	ctx := context.Background()

	const publishers = 3
	const perPublisher = 20

	watcher, err := hub.Join(ctx, "doc-1", "watcher", 0)
	require.NoError(t, err)

	clients := make([]string, publishers)
	for i := range clients {
		clients[i] = fmt.Sprintf("client-%d", i)

		_, err := hub.Join(ctx, "doc-1", clients[i], 0)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup

	for _, clientID := range clients {
		wg.Add(1)

		go func(clientID string) {
			defer wg.Done()

			for i := 0; i < perPublisher; i++ {
				_, err := hub.Publish(ctx, "doc-1", clientID, payload(clientID))
				assert.NoError(t, err)
			}
		}(clientID)
	}

	wg.Wait()

	total := publishers * perPublisher

	// The watcher's live stream is gapless and strictly increasing.
	watched := make([]models.BroadcastEvent, 0, total)
	for i := 0; i < total; i++ {
		select {
		case event := <-watcher.Session.Events():
			watched = append(watched, event)
		case <-time.After(time.Second):
			t.Fatalf("watcher stream stalled at %d of %d events", i, total)
		}
	}

	for i, event := range watched {
		require.Equal(t, uint64(i+1), event.Seq, "gap or reorder at position %d", i)
	}

	// A late joiner's replay carries the same events in the same order.
	replay, err := hub.Join(ctx, "doc-1", "late", 0)
	require.NoError(t, err)
	require.Len(t, replay.Backlog, total)

	for i, event := range replay.Backlog {
		assert.Equal(t, watched[i].Seq, event.Seq)
		assert.Equal(t, watched[i].ClientID, event.ClientID)
	}
}

func TestPublishRequiresSession(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	_, err = hub.Publish(ctx, "doc-1", "ghost", payload("edit"))
	assert.ErrorIs(t, err, collab.ErrSessionNotFound)
	assert.True(t, collab.IsSessionNotFound(err))
}

func TestPublishToUnknownRoom(t *testing.T) {
	hub := newTestHub(collab.Config{})

	_, err := hub.Publish(context.Background(), "nowhere", "writer", payload("edit"))
	assert.ErrorIs(t, err, collab.ErrRoomClosed)
	assert.True(t, collab.IsRoomClosed(err))
}

func TestLastLeaveTearsDownRoom(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	writer, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	_, err = hub.Publish(ctx, "doc-1", "writer", payload("edit"))
	require.NoError(t, err)

	require.NoError(t, hub.Leave(ctx, "doc-1", "writer"))

	// Session channel closed, room gone.
	_, open := <-writer.Session.Events()
	assert.False(t, open)
	assert.Nil(t, hub.Sessions("doc-1"))

	_, err = hub.Publish(ctx, "doc-1", "writer", payload("edit"))
	assert.ErrorIs(t, err, collab.ErrRoomClosed)
}

func TestLeaveKeepsOtherSessionsAlive(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	_, err = hub.Join(ctx, "doc-1", "reader", 0)
	require.NoError(t, err)

	require.NoError(t, hub.Leave(ctx, "doc-1", "reader"))

	_, err = hub.Publish(ctx, "doc-1", "writer", payload("edit"))
	require.NoError(t, err)
	assert.Len(t, hub.Sessions("doc-1"), 1)
}

func TestSlowSessionIsDroppedAndToldToResync(t *testing.T) {
	hub := newTestHub(collab.Config{SessionBuffer: 2})
	ctx := context.Background()

	slow, err := hub.Join(ctx, "doc-1", "slow", 0)
	require.NoError(t, err)

	_, err = hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	// Third publish overflows the slow session's queue of two.
	for i := 0; i < 3; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	select {
	case <-slow.Session.Resync():
	default:
		t.Fatal("slow session was not told to resync")
	}

	// The room carries on with the remaining session.
	members := hub.Sessions("doc-1")
	require.Len(t, members, 1)
	assert.Equal(t, "writer", members[0].ClientID)

	_, err = hub.Publish(ctx, "doc-1", "writer", payload("after"))
	assert.NoError(t, err)
}

func TestJoinBeyondWindowServedBySnapshot(t *testing.T) {
	store := newMemorySnapshotStore()
	hub := collab.NewHub(slog.Default(), store, seqCompactor{}, collab.Config{Retention: 4})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 10; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	// since_seq=2 fell out of the retained window: snapshot bridges the
	// gap and the backlog resumes right after it. The ninth publish grew
	// the log past twice the window and folded events 1..5.
	result, err := hub.Join(ctx, "doc-1", "reader", 2)
	require.NoError(t, err)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, uint64(5), result.Snapshot.Seq)
	assert.Equal(t, []uint64{6, 7, 8, 9, 10}, seqs(result.Backlog))

	var state map[string]uint64
	require.NoError(t, json.Unmarshal(result.Snapshot.State, &state))
	assert.Equal(t, uint64(5), state["folded_up_to"])
}

func TestEvictionBatchedPastRetention(t *testing.T) {
	store := newMemorySnapshotStore()
	hub := collab.NewHub(slog.Default(), store, seqCompactor{}, collab.Config{Retention: 4})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 12; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	// Twelve publishes past a 4-event window fold once, not once per
	// edit: the store sees a single batched snapshot write.
	store.mu.Lock()
	saves := store.saves
	store.mu.Unlock()
	assert.Equal(t, 1, saves)

	snapshot, err := store.LoadSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), snapshot.Seq)
}

// blockingSnapshotStore parks every save until released, so tests can
// observe what the room serves while a snapshot write is in flight.
type blockingSnapshotStore struct {
	saving  chan struct{}
	release chan struct{}
}

func (s *blockingSnapshotStore) SaveSnapshot(_ context.Context, _ models.DocumentSnapshot) error {
	s.saving <- struct{}{}
	<-s.release

	return nil
}

func (s *blockingSnapshotStore) LoadSnapshot(_ context.Context, _ string) (models.DocumentSnapshot, error) {
	return models.DocumentSnapshot{}, collab.ErrSnapshotNotFound
}

func TestPublishNotGatedByStoreWrite(t *testing.T) {
	store := &blockingSnapshotStore{
		saving:  make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	hub := collab.NewHub(slog.Default(), store, seqCompactor{}, collab.Config{Retention: 2})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 4; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	// The fifth publish grows the log past twice the window, folds and
	// blocks inside the store write.
	folding := make(chan struct{})

	go func() {
		defer close(folding)

		_, err := hub.Publish(ctx, "doc-1", "writer", payload("folds"))
		assert.NoError(t, err)
	}()

	<-store.saving

	// The room keeps serving publishes while the write is in flight.
	published := make(chan error, 1)

	go func() {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload("concurrent"))
		published <- err
	}()

	select {
	case err := <-published:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish blocked behind the snapshot store write")
	}

	close(store.release)
	<-folding
}

func TestJoinBeyondWindowWithoutSnapshotFails(t *testing.T) {
	hub := newTestHub(collab.Config{Retention: 2})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	_, err = hub.Join(ctx, "doc-1", "reader", 0)
	assert.ErrorIs(t, err, collab.ErrSnapshotRequired)
}

func TestSequenceResumesAcrossTeardown(t *testing.T) {
	store := newMemorySnapshotStore()
	hub := collab.NewHub(slog.Default(), store, seqCompactor{}, collab.Config{Retention: 8})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	// Teardown folds the remaining log into the stored snapshot.
	require.NoError(t, hub.Leave(ctx, "doc-1", "writer"))

	snapshot, err := store.LoadSnapshot(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snapshot.Seq)

	// A fresh room resumes numbering after the snapshot, keeping the
	// sequence gapless for clients that saw the earlier events.
	_, err = hub.Join(ctx, "doc-1", "writer", 3)
	require.NoError(t, err)

	event, err := hub.Publish(ctx, "doc-1", "writer", payload("after-teardown"))
	require.NoError(t, err)
	assert.Equal(t, uint64(4), event.Seq)
}

func TestRejoinAheadOfRoomIsRejected(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	_, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	for i := 1; i <= 2; i++ {
		_, err := hub.Publish(ctx, "doc-1", "writer", payload(fmt.Sprintf("edit-%d", i)))
		require.NoError(t, err)
	}

	// Teardown discards the log; with no store the recreated room starts
	// a fresh epoch at seq 0.
	require.NoError(t, hub.Leave(ctx, "doc-1", "writer"))

	// A client that saw seq 2 must not get a silently empty backlog.
	_, err = hub.Join(ctx, "doc-1", "writer", 2)
	assert.ErrorIs(t, err, collab.ErrSeqAhead)
	assert.True(t, collab.IsSeqAhead(err))
}

func TestRejoinReplacesExistingSession(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	first, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	second, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	select {
	case <-first.Session.Resync():
	default:
		t.Fatal("replaced session was not signalled")
	}

	assert.Len(t, hub.Sessions("doc-1"), 1)
	assert.NotSame(t, first.Session, second.Session)
}

func TestSessionAckTracking(t *testing.T) {
	hub := newTestHub(collab.Config{})
	ctx := context.Background()

	result, err := hub.Join(ctx, "doc-1", "writer", 0)
	require.NoError(t, err)

	result.Session.Ack(7)
	result.Session.Ack(3) // stale ack, ignored

	membership := result.Session.Membership()
	assert.Equal(t, uint64(7), membership.LastAckSeq)
	assert.Equal(t, "writer", membership.ClientID)
	assert.Equal(t, "doc-1", membership.DocumentID)
}
