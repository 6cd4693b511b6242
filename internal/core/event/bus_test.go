package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventsArriveNextTickInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	Subscribe(b, func(e SnapshotSaved) { got = append(got, "saved:"+e.Name) })
	Subscribe(b, func(e InstantiationFinished) { got = append(got, "loaded:"+e.Source) })

	Emit(b, SnapshotSaved{Name: "a"})
	Emit(b, InstantiationFinished{Source: "scene.yaml"})
	Emit(b, SnapshotSaved{Name: "b"})
	b.DispatchAll()
	assert.Empty(t, got, "nothing is delivered before the swap")
	assert.Equal(t, 3, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, []string{"saved:a", "loaded:scene.yaml", "saved:b"}, got)
	assert.Zero(t, b.Pending())

	b.SwapBuffers()
	b.DispatchAll()
	assert.Len(t, got, 3, "events are delivered once")
}

func TestEmitFromHandlerIsDeferred(t *testing.T) {
	b := NewBus()
	var failed int
	Subscribe(b, func(e SnapshotSaved) { Emit(b, SnapshotFailed{Name: e.Name}) })
	Subscribe(b, func(SnapshotFailed) { failed++ })

	Emit(b, SnapshotSaved{Name: "x"})
	b.SwapBuffers()
	b.DispatchAll()
	assert.Zero(t, failed)

	b.SwapBuffers()
	b.DispatchAll()
	assert.Equal(t, 1, failed)
}
