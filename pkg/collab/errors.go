package collab

import "errors"

var (
	// ErrRoomClosed indicates the document room has no active sessions and
	// is being torn down, or was never open.
	ErrRoomClosed = errors.New("document room closed")

	// ErrSessionNotFound indicates the client has no session in the room.
	ErrSessionNotFound = errors.New("session not found in room")

	// ErrSnapshotRequired indicates the requested sequence number fell out
	// of the room's retained log and no snapshot is available to bridge
	// the gap.
	ErrSnapshotRequired = errors.New("requested sequence outside retained window and no snapshot available")

	// ErrSnapshotNotFound indicates the snapshot store holds no snapshot
	// for the document.
	ErrSnapshotNotFound = errors.New("document snapshot not found")

	// ErrSeqAhead indicates the client claims a sequence number the room
	// has never issued, so no backlog can bridge from it.
	ErrSeqAhead = errors.New("client sequence ahead of room sequence")
)

// IsRoomClosed checks if the error indicates a closed room.
func IsRoomClosed(err error) bool {
	return errors.Is(err, ErrRoomClosed)
}

// IsSessionNotFound checks if the error indicates a missing session.
func IsSessionNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}

// IsSeqAhead checks if the error indicates a client ahead of the room.
func IsSeqAhead(err error) bool {
	return errors.Is(err, ErrSeqAhead)
}
