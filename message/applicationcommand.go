package message

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
	"github.com/zwavelink/corezwave/frame"
)

// ApplicationCommand is the callback carrying an unsolicited or
// response Command Class frame received from a node. Body is the raw
// command class payload (ccId, ccCommand, cc payload...); the cc package
// decodes it further.
type ApplicationCommand struct {
	Status uint8
	NodeID uint8
	Body   []uint8
}

func registerApplicationCommand() {
	Register(FuncApplicationCommandHandler, &Descriptor{
		Name: "ApplicationCommandHandler",
		ParseRequest: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) < 2 {
				return nil, errTooShort(FuncApplicationCommandHandler, len(f.Payload), 2)
			}
			status := f.Payload[0]
			nodeID := f.Payload[1]
			var body []uint8
			if len(f.Payload) > 3 {
				// Payload: status | nodeId | length | cc bytes...
				length := int(f.Payload[2])
				if 3+length > len(f.Payload) {
					return nil, errMalformed(FuncApplicationCommandHandler, "declared length exceeds payload")
				}
				body = f.Payload[3 : 3+length]
			}
			return &ApplicationCommand{Status: status, NodeID: nodeID, Body: body}, nil
		},
	})
}
