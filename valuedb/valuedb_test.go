package valuedb

/*
Copyright (C) 2017 Jan Kasiak

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testID() ID {
	return ID{NodeID: 5, EndpointIndex: 0, CCID: 0x26, Property: "currentValue"}
}

func TestSetEmitsOnFirstWrite(t *testing.T) {
	s := New(zap.NewNop())
	id := testID()

	emitted := s.Set(id, float64(80))
	assert.True(t, emitted)

	v, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, float64(80), v)

	ev := <-s.Events()
	assert.Equal(t, ChangeUpdated, ev.Kind)
	assert.Nil(t, ev.OldValue)
	assert.Equal(t, float64(80), ev.NewValue)
}

// ValueDB idempotence (spec.md §8): two successive set(id, v) with equal
// v emit exactly one change event.
func TestSetWithUnchangedPayloadDoesNotEmitTwice(t *testing.T) {
	s := New(zap.NewNop())
	id := testID()

	require.True(t, s.Set(id, float64(80)))
	<-s.Events()

	emitted := s.Set(id, float64(80))
	assert.False(t, emitted)

	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected second event: %+v", ev)
	default:
	}
}

func TestSetWithChangedPayloadEmitsAgain(t *testing.T) {
	s := New(zap.NewNop())
	id := testID()

	require.True(t, s.Set(id, float64(80)))
	<-s.Events()

	emitted := s.Set(id, float64(40))
	assert.True(t, emitted)

	ev := <-s.Events()
	assert.Equal(t, float64(80), ev.OldValue)
	assert.Equal(t, float64(40), ev.NewValue)
}

func TestRemovePreservesMetadata(t *testing.T) {
	s := New(zap.NewNop())
	id := testID()
	meta := &Metadata{Readable: true, Writable: true, Type: TypeNumber, Label: "Current Value"}
	s.SetMetadata(id, meta)
	s.Set(id, float64(80))
	<-s.Events()

	removed := s.Remove(id)
	assert.True(t, removed)
	assert.False(t, s.Has(id))

	ev := <-s.Events()
	assert.Equal(t, ChangeRemoved, ev.Kind)
	assert.Equal(t, float64(80), ev.OldValue)

	got, ok := s.Metadata(id)
	require.True(t, ok)
	assert.Same(t, meta, got)
}

func TestNotifyDoesNotMutateStoredValue(t *testing.T) {
	s := New(zap.NewNop())
	id := testID()
	s.Set(id, float64(80))
	<-s.Events()

	s.Notify(id, "scene activated")
	ev := <-s.Events()
	assert.Equal(t, ChangeNotification, ev.Kind)

	v, ok := s.Get(id)
	require.True(t, ok)
	assert.Equal(t, float64(80), v)
}

func TestRemoveNodeDropsOnlyThatNodesEntries(t *testing.T) {
	s := New(zap.NewNop())
	idA := ID{NodeID: 5, Property: "currentValue"}
	idB := ID{NodeID: 6, Property: "currentValue"}
	s.Set(idA, float64(1))
	<-s.Events()
	s.Set(idB, float64(2))
	<-s.Events()

	s.RemoveNode(5)
	<-s.Events()

	assert.False(t, s.Has(idA))
	assert.True(t, s.Has(idB))
}

func TestForNodeReturnsOnlyThatNodesValues(t *testing.T) {
	s := New(zap.NewNop())
	idA := ID{NodeID: 5, Property: "currentValue"}
	idB := ID{NodeID: 5, Property: "targetValue"}
	idC := ID{NodeID: 6, Property: "currentValue"}
	s.Set(idA, float64(1))
	<-s.Events()
	s.Set(idB, float64(2))
	<-s.Events()
	s.Set(idC, float64(3))
	<-s.Events()

	snapshot := s.ForNode(5)
	require.Len(t, snapshot, 2)
	assert.Equal(t, float64(1), snapshot[idA])
	assert.Equal(t, float64(2), snapshot[idB])
	_, ok := snapshot[idC]
	assert.False(t, ok)
}
