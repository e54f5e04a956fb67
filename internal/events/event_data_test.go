package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventData_Types(t *testing.T) {
	tests := []struct {
		data EventData
		want EventType
	}{
		{&RunSubmittedData{}, RunSubmitted},
		{&RunStartedData{}, RunStarted},
		{&FeedbackAppliedData{}, FeedbackApplied},
		{&RunCompletedData{}, RunCompleted},
		{&RunFailedData{}, RunFailed},
		{&ErrorEventData{}, ErrorOccurred},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.data.EventType())
	}
}

func TestEvent_JSON(t *testing.T) {
	event := Event{
		Type:   RunCompleted,
		Module: "runs",
		Data: &RunCompletedData{
			RunID:       "abc",
			Status:      "converged",
			Iterations:  12,
			FinalEnergy: -9.995,
		},
	}

	raw, err := json.Marshal(event)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"type":"RUN_COMPLETED"`)
	assert.Contains(t, string(raw), `"run_id":"abc"`)
	assert.Contains(t, string(raw), `"final_energy":-9.995`)
}

func TestManager_FanOut(t *testing.T) {
	m := NewManager(zerolog.Nop())

	a, unsubA := m.Subscribe()
	b, unsubB := m.Subscribe()
	defer unsubB()
	assert.Equal(t, 2, m.Subscribers())

	m.Emit("runs", &RunStartedData{RunID: "r1", Backend: "exact"})

	for _, ch := range []<-chan Event{a, b} {
		ev := <-ch
		assert.Equal(t, RunStarted, ev.Type)
		assert.Equal(t, "runs", ev.Module)
		assert.Equal(t, "r1", ev.Data.(*RunStartedData).RunID)
	}

	unsubA()
	unsubA()
	_, open := <-a
	assert.False(t, open)
	assert.Equal(t, 1, m.Subscribers())

	m.EmitError("runs", errors.New("disk full"), map[string]interface{}{"run_id": "r1"})
	ev := <-b
	assert.Equal(t, ErrorOccurred, ev.Type)
	assert.Equal(t, "disk full", ev.Data.(*ErrorEventData).Error)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager(zerolog.Nop())
	ch, unsub := m.Subscribe()
	defer unsub()

	for i := 0; i < subscriberBuffer+10; i++ {
		m.Emit("runs", &RunSubmittedData{RunID: "r", Pending: i})
	}
	assert.Len(t, ch, subscriberBuffer)
}
