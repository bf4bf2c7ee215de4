package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RecordsInOrder(t *testing.T) {
	store := NewMemoryStore()

	Record(store, VesselBerthedEvent, "scheduler", VesselBerthed{Day: 3, LDRText: "1-3 Oct"})
	Record(store, VesselDeferredEvent, "scheduler", VesselDeferred{Day: 4, NextDay: 5})
	Record(store, VesselBerthedEvent, "scheduler", VesselBerthed{Day: 5})

	all := store.Events()
	require.Len(t, all, 3)
	assert.Equal(t, VesselBerthedEvent, all[0].Type())
	assert.Equal(t, "scheduler", all[0].StreamID())
	assert.False(t, all[0].Timestamp().IsZero())

	berthed := store.ByType(VesselBerthedEvent)
	require.Len(t, berthed, 2)
	data, ok := berthed[0].Data().(VesselBerthed)
	require.True(t, ok)
	assert.Equal(t, 3, data.Day)
	assert.Equal(t, "1-3 Oct", data.LDRText)

	assert.Empty(t, store.ByType(InventoryExceededEvent))
}

func TestRecord_NilRecorder(t *testing.T) {
	assert.NotPanics(t, func() {
		Record(nil, SolveFailedEvent, "vesselopt", SolveFailed{Message: "no solution"})
	})
}
