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
	versionCommandGet                uint8 = 0x11
	versionCommandReport             uint8 = 0x12
	versionCommandCommandClassGet    uint8 = 0x13
	versionCommandCommandClassReport uint8 = 0x14
)

// VersionGet requests the node's library/protocol/application version.
type VersionGet struct{}

// VersionReport carries the node's library/protocol/application version.
type VersionReport struct {
	ZWaveLibraryType        uint8
	ZWaveProtocolVersion    uint8
	ZWaveProtocolSubVersion uint8
	ApplicationVersion      uint8
	ApplicationSubVersion   uint8
}

// VersionCommandClassGet requests the version a node implements a single
// command class at.
type VersionCommandClassGet struct {
	CCID uint8
}

// VersionCommandClassReport carries one command class's implemented
// version.
type VersionCommandClassReport struct {
	CCID    uint8
	Version uint8
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassVersion, CCCommand: versionCommandGet,
		Name: "Version.Get", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &VersionGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: versionCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassVersion, CCCommand: versionCommandReport,
		Name: "Version.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 5, "Version.Report: payload too short"); err != nil {
				return nil, err
			}
			return &VersionReport{
				ZWaveLibraryType:        payload[0],
				ZWaveProtocolVersion:    payload[1],
				ZWaveProtocolSubVersion: payload[2],
				ApplicationVersion:      payload[3],
				ApplicationSubVersion:   payload[4],
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*VersionReport)
			if !ok {
				return nil, fmt.Errorf("cc: Version.Report: bad type %T", v)
			}
			return []uint8{r.ZWaveLibraryType, r.ZWaveProtocolVersion, r.ZWaveProtocolSubVersion,
				r.ApplicationVersion, r.ApplicationSubVersion}, nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassVersion, CCCommand: versionCommandCommandClassGet,
		Name: "Version.CommandClassGet", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Version.CommandClassGet: payload too short"); err != nil {
				return nil, err
			}
			return &VersionCommandClassGet{CCID: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*VersionCommandClassGet)
			if !ok {
				return nil, fmt.Errorf("cc: Version.CommandClassGet: bad type %T", v)
			}
			return []uint8{g.CCID}, nil
		},
		ExpectedResponseCommand: versionCommandCommandClassReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassVersion, CCCommand: versionCommandCommandClassReport,
		Name: "Version.CommandClassReport", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 2, "Version.CommandClassReport: payload too short"); err != nil {
				return nil, err
			}
			return &VersionCommandClassReport{CCID: payload[0], Version: payload[1]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*VersionCommandClassReport)
			if !ok {
				return nil, fmt.Errorf("cc: Version.CommandClassReport: bad type %T", v)
			}
			return []uint8{r.CCID, r.Version}, nil
		},
	})
}
