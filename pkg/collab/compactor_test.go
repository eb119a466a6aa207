package collab_test

import (
	"encoding/json"
	"testing"

	"github.com/storycut/storycut/pkg/collab"
	"github.com/storycut/storycut/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogCompactorAppendsInOrder(t *testing.T) {
	compactor := collab.NewLogCompactor()

	state, err := compactor.Compact(models.DocumentSnapshot{}, []models.BroadcastEvent{
		{Seq: 1, Payload: json.RawMessage(`{"op":"insert","pos":0}`)},
		{Seq: 2, Payload: json.RawMessage(`{"op":"delete","pos":3}`)},
	})
	require.NoError(t, err)

	// A second round folds on top of the first.
	state, err = compactor.Compact(models.DocumentSnapshot{State: state}, []models.BroadcastEvent{
		{Seq: 3, Payload: json.RawMessage(`{"op":"insert","pos":7}`)},
	})
	require.NoError(t, err)

	var payloads []map[string]any

	require.NoError(t, json.Unmarshal(state, &payloads))
	require.Len(t, payloads, 3)
	assert.Equal(t, "insert", payloads[0]["op"])
	assert.Equal(t, "delete", payloads[1]["op"])
	assert.Equal(t, float64(7), payloads[2]["pos"])
}

func TestLogCompactorRejectsCorruptState(t *testing.T) {
	compactor := collab.NewLogCompactor()

	_, err := compactor.Compact(models.DocumentSnapshot{State: json.RawMessage(`{`)}, nil)
	assert.Error(t, err)
}
