// Package valuedb implements the value store the driver exposes to
// applications: every CC-derived value is addressed by a stable ValueID
// and carries separately-stored metadata describing its shape (spec.md
// §3/§4.6).
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
	"reflect"
	"sync"

	"go.uber.org/zap"
)

// ValueType is the shape of a Value's payload (spec.md §3).
type ValueType int

const (
	TypeBoolean ValueType = iota
	TypeNumber
	TypeString
	TypeBuffer
	TypeDuration
)

func (t ValueType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeBuffer:
		return "buffer"
	case TypeDuration:
		return "duration"
	default:
		return "unknown"
	}
}

// ID addresses a single value: (nodeId, endpointIndex, ccId, property,
// propertyKey?). PropertyKey is empty for values that don't need one
// (spec.md §3, §9 "dynamically keyed values").
type ID struct {
	NodeID        uint8
	EndpointIndex uint8
	CCID          uint8
	Property      string
	PropertyKey   string
}

// Metadata describes a value's schema, independent of whether the value
// itself is currently set (spec.md §4.6: "metadata is stored separately
// from values so that values can be removed while preserving their
// schema").
type Metadata struct {
	Readable bool
	Writable bool
	Type     ValueType
	Min      *float64
	Max      *float64
	Label    string
	Units    string
	Stateful bool
}

// ChangeKind distinguishes the three event shapes the ValueDB emits
// (spec.md §5 "value updated/removed/notification").
type ChangeKind int

const (
	ChangeUpdated ChangeKind = iota
	ChangeRemoved
	ChangeNotification
)

// ChangeEvent is emitted on Events() whenever a value is added, changed,
// removed, or fires a stateless notification.
type ChangeEvent struct {
	ID       ID
	Kind     ChangeKind
	OldValue interface{}
	NewValue interface{}
}

// Store is the ValueDB: get/set/has/remove keyed by ID, with metadata
// kept in a separate map and a change-event stream for listeners
// (spec.md §4.6).
type Store struct {
	logger *zap.Logger

	mu       sync.RWMutex
	values   map[ID]interface{}
	metadata map[ID]*Metadata

	events chan ChangeEvent
}

// New returns an empty Store. logger may be zap.NewNop().
func New(logger *zap.Logger) *Store {
	return &Store{
		logger:   logger,
		values:   map[ID]interface{}{},
		metadata: map[ID]*Metadata{},
		events:   make(chan ChangeEvent, 256),
	}
}

// Events returns the channel change events are published on. Callers
// must drain it; a full channel causes the oldest-pending event to be
// dropped to make room (a warning is logged only if the new event still
// cannot be queued) rather than blocking the driver thread
// (spec.md §5: the core is single-writer and must never block on an
// application listener).
func (s *Store) Events() <-chan ChangeEvent {
	return s.events
}

// Get returns the value at id and whether it is present.
func (s *Store) Get(id ID) (interface{}, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[id]
	return v, ok
}

// Has reports whether id currently has a value set.
func (s *Store) Has(id ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.values[id]
	return ok
}

// Set stores v at id, emitting ChangeUpdated iff the payload differs
// from what was previously stored (spec.md §8 "ValueDB idempotence:
// two successive set(id, v) with equal v emit exactly one change
// event"). Returns whether an event was emitted.
func (s *Store) Set(id ID, v interface{}) bool {
	s.mu.Lock()
	old, existed := s.values[id]
	if existed && reflect.DeepEqual(old, v) {
		s.mu.Unlock()
		return false
	}
	s.values[id] = v
	s.mu.Unlock()

	s.publish(ChangeEvent{ID: id, Kind: ChangeUpdated, OldValue: old, NewValue: v})
	return true
}

// Remove deletes id's value, preserving its metadata, and emits
// ChangeRemoved if a value was present.
func (s *Store) Remove(id ID) bool {
	s.mu.Lock()
	old, existed := s.values[id]
	if !existed {
		s.mu.Unlock()
		return false
	}
	delete(s.values, id)
	s.mu.Unlock()

	s.publish(ChangeEvent{ID: id, Kind: ChangeRemoved, OldValue: old})
	return true
}

// Notify emits a stateless ChangeNotification event without storing v
// (e.g. a Notification CC report or a scene activation) and without
// touching the stored value at id, if any.
func (s *Store) Notify(id ID, v interface{}) {
	s.publish(ChangeEvent{ID: id, Kind: ChangeNotification, NewValue: v})
}

// SetMetadata records id's schema, independent of whether id has a
// value set.
func (s *Store) SetMetadata(id ID, m *Metadata) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[id] = m
}

// Metadata returns id's schema, if recorded.
func (s *Store) Metadata(id ID) (*Metadata, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.metadata[id]
	return m, ok
}

// RemoveNode drops every value and metadata entry for nodeID, as
// happens when a node is excluded from the network.
func (s *Store) RemoveNode(nodeID uint8) {
	s.mu.Lock()
	var removed []ID
	for id := range s.values {
		if id.NodeID == nodeID {
			removed = append(removed, id)
		}
	}
	for _, id := range removed {
		delete(s.values, id)
	}
	for id := range s.metadata {
		if id.NodeID == nodeID {
			delete(s.metadata, id)
		}
	}
	s.mu.Unlock()

	for _, id := range removed {
		s.publish(ChangeEvent{ID: id, Kind: ChangeRemoved})
	}
}

// ForNode returns a snapshot of every value currently set for nodeID, for
// callers that want to print or export a node's state (e.g. a CLI
// inspector) rather than reacting to Events().
func (s *Store) ForNode(nodeID uint8) map[ID]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := map[ID]interface{}{}
	for id, v := range s.values {
		if id.NodeID == nodeID {
			out[id] = v
		}
	}
	return out
}

func (s *Store) publish(ev ChangeEvent) {
	select {
	case s.events <- ev:
	default:
		select {
		case <-s.events:
		default:
		}
		select {
		case s.events <- ev:
		default:
			s.logger.Warn("valuedb: dropping change event, listener too slow",
				zap.Uint8("nodeId", ev.ID.NodeID), zap.String("property", ev.ID.Property))
		}
	}
}
