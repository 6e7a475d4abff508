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
	multilevelSwitchCommandSet              uint8 = 0x01
	multilevelSwitchCommandGet              uint8 = 0x02
	multilevelSwitchCommandReport           uint8 = 0x03
	multilevelSwitchCommandStartLevelChange uint8 = 0x04
	multilevelSwitchCommandStopLevelChange  uint8 = 0x05
)

// MultilevelSwitchSet is Multilevel Switch CC's Set command. Value is in
// [0, 99] or 0xff ("restore last non-zero level").
type MultilevelSwitchSet struct {
	Value    uint8
	Duration uint8 // V2+, 0 = use device default
}

// MultilevelSwitchGet is Multilevel Switch CC's Get command.
type MultilevelSwitchGet struct{}

// MultilevelSwitchReport is Multilevel Switch CC's Report command.
type MultilevelSwitchReport struct {
	CurrentValue uint8
	TargetValue  uint8 // V4+
	Duration     uint8 // V4+
}

// MultilevelSwitchStartLevelChange starts a ramping level change.
type MultilevelSwitchStartLevelChange struct {
	Up          bool
	IgnoreStart bool
	StartLevel  uint8
	Duration    uint8 // V2+, 0 = use device default
}

// MultilevelSwitchStopLevelChange stops an ongoing level change.
type MultilevelSwitchStopLevelChange struct{}

func validValue(v uint8) bool { return v <= 99 || v == 0xff }

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSwitch, CCCommand: multilevelSwitchCommandSet,
		Name: "MultilevelSwitch.Set", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "MultilevelSwitch.Set: payload too short"); err != nil {
				return nil, err
			}
			if err := validatePayload(validValue(payload[0]), "MultilevelSwitch.Set: bad value %d", payload[0]); err != nil {
				return nil, err
			}
			s := &MultilevelSwitchSet{Value: payload[0]}
			if len(payload) >= 2 {
				s.Duration = payload[1]
			}
			return s, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*MultilevelSwitchSet)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSwitch.Set: bad type %T", v)
			}
			if !validValue(s.Value) {
				return nil, fmt.Errorf("cc: MultilevelSwitch.Set: value must be in [0,99] or 255")
			}
			if s.Duration == 0 {
				return []uint8{s.Value}, nil
			}
			return []uint8{s.Value, s.Duration}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSwitch, CCCommand: multilevelSwitchCommandGet,
		Name: "MultilevelSwitch.Get", Version: 4,
		Parse:                   func(payload []uint8) (interface{}, error) { return &MultilevelSwitchGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: multilevelSwitchCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSwitch, CCCommand: multilevelSwitchCommandReport,
		Name: "MultilevelSwitch.Report", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "MultilevelSwitch.Report: payload too short"); err != nil {
				return nil, err
			}
			r := &MultilevelSwitchReport{CurrentValue: payload[0]}
			if len(payload) >= 3 {
				r.TargetValue = payload[1]
				r.Duration = payload[2]
			}
			return r, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*MultilevelSwitchReport)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSwitch.Report: bad type %T", v)
			}
			return []uint8{r.CurrentValue, r.TargetValue, r.Duration}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSwitch, CCCommand: multilevelSwitchCommandStartLevelChange,
		Name: "MultilevelSwitch.StartLevelChange", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "MultilevelSwitch.StartLevelChange: payload too short"); err != nil {
				return nil, err
			}
			flags := payload[0]
			s := &MultilevelSwitchStartLevelChange{
				Up:          flags&(1<<6) != 0,
				IgnoreStart: flags&(1<<5) != 0,
				StartLevel:  payload[1],
			}
			if len(payload) >= 3 {
				s.Duration = payload[2]
			}
			return s, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*MultilevelSwitchStartLevelChange)
			if !ok {
				return nil, fmt.Errorf("cc: MultilevelSwitch.StartLevelChange: bad type %T", v)
			}
			flags := uint8(0)
			if s.Up {
				flags |= 1 << 6
			}
			if s.IgnoreStart {
				flags |= 1 << 5
			}
			out := []uint8{flags, s.StartLevel}
			if s.Duration != 0 {
				out = append(out, s.Duration)
			}
			return out, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassMultilevelSwitch, CCCommand: multilevelSwitchCommandStopLevelChange,
		Name: "MultilevelSwitch.StopLevelChange", Version: 4,
		Parse:     func(payload []uint8) (interface{}, error) { return &MultilevelSwitchStopLevelChange{}, nil },
		Serialize: func(v interface{}) ([]uint8, error) { return nil, nil },
	})
}
