package models

import (
	"encoding/json"
	"time"
)

// CollaborationSession is one connected client's membership in a document
// room. Created on connect, destroyed on disconnect, never persisted.
type CollaborationSession struct {
	ClientID   string    `json:"client_id"`
	DocumentID string    `json:"document_id"`
	LastAckSeq uint64    `json:"last_ack_seq"`
	JoinedAt   time.Time `json:"joined_at"`
}

// BroadcastEvent is an atomic mutation to a shared document. The hub
// assigns the sequence number; the payload stays opaque to the hub and is
// interpreted only by the document layer.
type BroadcastEvent struct {
	Seq        uint64          `json:"seq"`
	DocumentID string          `json:"document_id"`
	ClientID   string          `json:"client_id"`
	Payload    json.RawMessage `json:"payload"`
	AppliedAt  time.Time       `json:"applied_at"`
}

// DocumentSnapshot is a compacted view of a room's document state, served
// to joiners whose last seen sequence fell out of the retained log.
type DocumentSnapshot struct {
	DocumentID string          `json:"document_id"`
	Seq        uint64          `json:"seq"` // Sequence number the snapshot is current up to
	State      json.RawMessage `json:"state"`
	TakenAt    time.Time       `json:"taken_at"`
}
