package collab

import (
	"encoding/json"
	"fmt"

	"github.com/storycut/storycut/pkg/models"
)

// LogCompactor folds evicted events into a snapshot by appending their
// payloads to an ordered JSON array. A joiner replays the array exactly
// as it would have replayed the live events, so the hub stays
// payload-opaque: no merge semantics, just order preservation.
type LogCompactor struct{}

// NewLogCompactor creates the default compactor used by the gateway.
func NewLogCompactor() *LogCompactor {
	return &LogCompactor{}
}

func (lc *LogCompactor) Compact(prev models.DocumentSnapshot, evicted []models.BroadcastEvent) (json.RawMessage, error) {
	var payloads []json.RawMessage

	if len(prev.State) > 0 {
		if err := json.Unmarshal(prev.State, &payloads); err != nil {
			return nil, fmt.Errorf("failed to decode previous snapshot state: %w", err)
		}
	}

	for _, event := range evicted {
		payloads = append(payloads, event.Payload)
	}

	state, err := json.Marshal(payloads)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot state: %w", err)
	}

	return state, nil
}
