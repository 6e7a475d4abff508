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
	"encoding/binary"
	"fmt"

	"github.com/zwavelink/corezwave/device"
)

const (
	configurationCommandSet    uint8 = 0x04
	configurationCommandGet    uint8 = 0x05
	configurationCommandReport uint8 = 0x06
)

// ConfigurationSet sets one configuration parameter.
type ConfigurationSet struct {
	Parameter uint8
	Size      uint8 // 1, 2, or 4 bytes
	Value     int32
	Default   bool
}

// ConfigurationGet requests one configuration parameter's value.
type ConfigurationGet struct {
	Parameter uint8
}

// ConfigurationReport carries one configuration parameter's value. If a
// parameter does not exist some devices report a single zero byte; Size
// reflects what was actually on the wire.
type ConfigurationReport struct {
	Parameter uint8
	Size      uint8
	Value     int32
}

func encodeSignedValue(value int32, size uint8) ([]uint8, error) {
	switch size {
	case 1:
		return []uint8{uint8(int8(value))}, nil
	case 2:
		b := make([]uint8, 2)
		binary.BigEndian.PutUint16(b, uint16(int16(value)))
		return b, nil
	case 4:
		b := make([]uint8, 4)
		binary.BigEndian.PutUint32(b, uint32(value))
		return b, nil
	default:
		return nil, fmt.Errorf("cc: Configuration: bad size %d", size)
	}
}

func decodeSignedValue(b []uint8) int32 {
	switch len(b) {
	case 1:
		return int32(int8(b[0]))
	case 2:
		return int32(int16(binary.BigEndian.Uint16(b)))
	case 4:
		return int32(binary.BigEndian.Uint32(b))
	default:
		return 0
	}
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassConfiguration, CCCommand: configurationCommandSet,
		Name: "Configuration.Set", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "Configuration.Set: payload too short"); err != nil {
				return nil, err
			}
			size := payload[1] & 0x07
			isDefault := payload[1]&0x80 != 0
			s := &ConfigurationSet{Parameter: payload[0], Size: size, Default: isDefault}
			if !isDefault {
				if err := validatePayload(len(payload) >= int(2+size), "Configuration.Set: value truncated"); err != nil {
					return nil, err
				}
				s.Value = decodeSignedValue(payload[2 : 2+size])
			}
			return s, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*ConfigurationSet)
			if !ok {
				return nil, fmt.Errorf("cc: Configuration.Set: bad type %T", v)
			}
			flags := s.Size & 0x07
			if s.Default {
				flags |= 0x80
			}
			out := []uint8{s.Parameter, flags}
			if !s.Default {
				enc, err := encodeSignedValue(s.Value, s.Size)
				if err != nil {
					return nil, err
				}
				out = append(out, enc...)
			}
			return out, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassConfiguration, CCCommand: configurationCommandGet,
		Name: "Configuration.Get", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Configuration.Get: payload too short"); err != nil {
				return nil, err
			}
			return &ConfigurationGet{Parameter: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*ConfigurationGet)
			if !ok {
				return nil, fmt.Errorf("cc: Configuration.Get: bad type %T", v)
			}
			return []uint8{g.Parameter}, nil
		},
		ExpectedResponseCommand: configurationCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassConfiguration, CCCommand: configurationCommandReport,
		Name: "Configuration.Report", Version: 4,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "Configuration.Report: payload too short"); err != nil {
				return nil, err
			}
			size := payload[1] & 0x07
			if err := validatePayload(len(payload) >= int(2+size), "Configuration.Report: value truncated"); err != nil {
				return nil, err
			}
			return &ConfigurationReport{
				Parameter: payload[0],
				Size:      size,
				Value:     decodeSignedValue(payload[2 : 2+size]),
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*ConfigurationReport)
			if !ok {
				return nil, fmt.Errorf("cc: Configuration.Report: bad type %T", v)
			}
			enc, err := encodeSignedValue(r.Value, r.Size)
			if err != nil {
				return nil, err
			}
			return append([]uint8{r.Parameter, r.Size}, enc...), nil
		},
	})
}
