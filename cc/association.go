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
	associationCommandSet             uint8 = 0x01
	associationCommandGet             uint8 = 0x02
	associationCommandReport          uint8 = 0x03
	associationCommandRemove          uint8 = 0x04
	associationCommandGroupingsGet    uint8 = 0x05
	associationCommandGroupingsReport uint8 = 0x06
)

// AssociationSet adds NodeIDs to GroupingIdentifier.
type AssociationSet struct {
	GroupingIdentifier uint8
	NodeIDs            []uint8
}

// AssociationGet requests the members of GroupingIdentifier.
type AssociationGet struct {
	GroupingIdentifier uint8
}

// AssociationReport lists GroupingIdentifier's members.
type AssociationReport struct {
	GroupingIdentifier uint8
	MaxNodesSupported  uint8
	ReportsToFollow    uint8
	NodeIDs            []uint8
}

// AssociationRemove removes NodeIDs from GroupingIdentifier (all nodes if
// NodeIDs is empty, per the CC spec's "remove all" convention).
type AssociationRemove struct {
	GroupingIdentifier uint8
	NodeIDs            []uint8
}

// AssociationGroupingsGet requests the number of association groups.
type AssociationGroupingsGet struct{}

// AssociationGroupingsReport carries the number of association groups.
type AssociationGroupingsReport struct {
	SupportedGroupings uint8
}

func init() {
	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandSet,
		Name: "Association.Set", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Association.Set: payload too short"); err != nil {
				return nil, err
			}
			nodes := make([]uint8, len(payload)-1)
			copy(nodes, payload[1:])
			return &AssociationSet{GroupingIdentifier: payload[0], NodeIDs: nodes}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			s, ok := v.(*AssociationSet)
			if !ok {
				return nil, fmt.Errorf("cc: Association.Set: bad type %T", v)
			}
			return append([]uint8{s.GroupingIdentifier}, s.NodeIDs...), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandGet,
		Name: "Association.Get", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Association.Get: payload too short"); err != nil {
				return nil, err
			}
			return &AssociationGet{GroupingIdentifier: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			g, ok := v.(*AssociationGet)
			if !ok {
				return nil, fmt.Errorf("cc: Association.Get: bad type %T", v)
			}
			return []uint8{g.GroupingIdentifier}, nil
		},
		ExpectedResponseCommand: associationCommandReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandReport,
		Name: "Association.Report", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 3, "Association.Report: payload too short"); err != nil {
				return nil, err
			}
			nodes := make([]uint8, len(payload)-3)
			copy(nodes, payload[3:])
			return &AssociationReport{
				GroupingIdentifier: payload[0],
				MaxNodesSupported:  payload[1],
				ReportsToFollow:    payload[2],
				NodeIDs:            nodes,
			}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*AssociationReport)
			if !ok {
				return nil, fmt.Errorf("cc: Association.Report: bad type %T", v)
			}
			out := []uint8{r.GroupingIdentifier, r.MaxNodesSupported, r.ReportsToFollow}
			return append(out, r.NodeIDs...), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandRemove,
		Name: "Association.Remove", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Association.Remove: payload too short"); err != nil {
				return nil, err
			}
			nodes := make([]uint8, len(payload)-1)
			copy(nodes, payload[1:])
			return &AssociationRemove{GroupingIdentifier: payload[0], NodeIDs: nodes}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*AssociationRemove)
			if !ok {
				return nil, fmt.Errorf("cc: Association.Remove: bad type %T", v)
			}
			return append([]uint8{r.GroupingIdentifier}, r.NodeIDs...), nil
		},
	})

	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandGroupingsGet,
		Name: "Association.GroupingsGet", Version: 2,
		Parse:                   func(payload []uint8) (interface{}, error) { return &AssociationGroupingsGet{}, nil },
		Serialize:               func(v interface{}) ([]uint8, error) { return nil, nil },
		ExpectedResponseCommand: associationCommandGroupingsReport,
	})

	Register(&Descriptor{
		CCID: device.CommandClassAssociation, CCCommand: associationCommandGroupingsReport,
		Name: "Association.GroupingsReport", Version: 2,
		Parse: func(payload []uint8) (interface{}, error) {
			if err := validatePayload(len(payload) >= 1, "Association.GroupingsReport: payload too short"); err != nil {
				return nil, err
			}
			return &AssociationGroupingsReport{SupportedGroupings: payload[0]}, nil
		},
		Serialize: func(v interface{}) ([]uint8, error) {
			r, ok := v.(*AssociationGroupingsReport)
			if !ok {
				return nil, fmt.Errorf("cc: Association.GroupingsReport: bad type %T", v)
			}
			return []uint8{r.SupportedGroupings}, nil
		},
	})
}
