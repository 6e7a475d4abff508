package cc

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
	"fmt"

	"github.com/zwavelink/corezwave/device"
)

const (
	wakeupCommandIntervalSet       uint8 = 0x04
	wakeupCommandIntervalGet       uint8 = 0x05
	wakeupCommandIntervalReport    uint8 = 0x06
	wakeupCommandNotification      uint8 = 0x07
	wakeupCommandNoMoreInformation uint8 = 0x08
)

// WakeUpIntervalSet configures a node's wake-up interval and the
// controller node it should notify.
type WakeUpIntervalSet struct {
	Seconds      uint32 // 24-bit on the wire
	NotifyNodeID uint8
}

// WakeUpIntervalGet requests the node's configured wake-up interval.
type WakeUpIntervalGet struct{}

// WakeUpIntervalReport carries the node's configured wake-up interval.
type WakeUpIntervalReport struct {
	Seconds      uint32
	NotifyNodeID uint8
}

// WakeUpNotification signals the node has woken up; the send queue
// releases its pending-wakeup transactions on receipt (spec.md §4.5).
type WakeUpNotification struct{}

// WakeUpNoMoreInformation tells the node it may return to sleep; sent
// once the pending queue for that node has drained.
type WakeUpNoMoreInformation struct{}

func encode24(v uint32) []uint8 {
	return []uint8{uint8(v >> 16), uint8(v >> 8), uint8(v)}
}

func decode24(b []uint8) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassWakeup, CCCommand: wakeupCommandIntervalSet,
		Name: "WakeUp.IntervalSet", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 4, "WakeUp.IntervalSet: payload too short"); err != nil {
				return nil, err
			}
			return &WakeUpIntervalSet{Seconds: decode24(payload[0:3]), NotifyNodeID: payload[3]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*WakeUpIntervalSet)
			if !ok {
				return nil, fmt.Errorf("cc: WakeUp.IntervalSet: bad type %T", v)
			}
			return append(encode24(s.Seconds), s.NotifyNodeID), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassWakeup, CCCommand: wakeupCommandIntervalGet,
		Name: "WakeUp.IntervalGet", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &WakeUpIntervalGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: wakeupCommandIntervalReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassWakeup, CCCommand: wakeupCommandIntervalReport,
		Name: "WakeUp.IntervalReport", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 4, "WakeUp.IntervalReport: payload too short"); err != nil {
				return nil, err
			}
			return &WakeUpIntervalReport{Seconds: decode24(payload[0:3]), NotifyNodeID: payload[3]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*WakeUpIntervalReport)
			if !ok {
				return nil, fmt.Errorf("cc: WakeUp.IntervalReport: bad type %T", v)
			}
			return append(encode24(r.Seconds), r.NotifyNodeID), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassWakeup, CCCommand: wakeupCommandNotification,
		Name: "WakeUp.Notification", Version: 2,
		Parse:     func(payload []uint8) (interface{}, error) { return &WakeUpNotification{}, nil },
		Serialize: func(v interface{}) ([]uint8, error) { return nil, nil },
	})

	Register(&Descriptor{
		CCID: device.CommandClassWakeup, CCCommand: wakeupCommandNoMoreInformation,
		Name: "WakeUp.NoMoreInformation", Version: 2,
		Parse:     func(payload []uint8) (interface{}, error) { return &WakeUpNoMoreInformation{}, nil },
		Serialize: func(v interface{}) ([]uint8, error) { return nil, nil },
	})
}
