package driver

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
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/valuedb"
)

// EventKind identifies the shape of an Event (spec.md §6 event stream).
type EventKind int

const (
	EventNodeAdded EventKind = iota
	EventNodeRemoved
	EventNodeInterviewStageChanged
	EventValueUpdated
	EventValueRemoved
	EventValueNotification
	EventMetadataUpdated
	EventDriverReady
	EventDriverError
)

func (k EventKind) String() string {
	switch k {
	case EventNodeAdded:
		return "NodeAdded"
	case EventNodeRemoved:
		return "NodeRemoved"
	case EventNodeInterviewStageChanged:
		return "NodeInterviewStageChanged"
	case EventValueUpdated:
		return "ValueUpdated"
	case EventValueRemoved:
		return "ValueRemoved"
	case EventValueNotification:
		return "ValueNotification"
	case EventMetadataUpdated:
		return "MetadataUpdated"
	case EventDriverReady:
		return "DriverReady"
	case EventDriverError:
		return "DriverError"
	default:
		return "Unknown"
	}
}

// Event is a single application-facing notification. Only the fields
// relevant to Kind are populated; spec.md §6 limits value-shaped events
// to a valueId plus its new/previous value.
type Event struct {
	Kind     EventKind
	NodeID   uint8
	Stage    node.InterviewStage
	ValueID  valuedb.ID
	OldValue interface{}
	NewValue interface{}
	Err      error
}

// publish delivers ev without blocking the driver thread, dropping the
// oldest pending event when the channel is full (same policy as
// valuedb.Store.publish; spec.md §5: "the core must never block on an
// application listener").
func (d *Driver) publish(ev Event) {
	select {
	case d.events <- ev:
	default:
		select {
		case <-d.events:
		default:
		}
		select {
		case d.events <- ev:
		default:
			d.logger.Warn("driver: dropping event, listener too slow", zap.String("kind", ev.Kind.String()))
		}
	}
}

// Events returns the channel application-facing events are published on.
// Callers must drain it.
func (d *Driver) Events() <-chan Event { return d.events }
