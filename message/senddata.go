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
	"fmt"

	"github.com/zwavelink/corezwave/frame"
)

// ZWSendData is both the request to transmit a command class frame to a
// node, and (via FuncZWSendData's Response) the immediate
// accepted/rejected acknowledgement from the controller. The eventual
// transmit-complete status arrives later as a callback carrying the same
// CallbackID (spec.md §3 Message, §4.5).
type ZWSendData struct {
	NodeID          uint8
	Payload         []uint8 // command class + command + cc payload, opaque here
	TransmitOptions uint8
	CallbackID      uint8
}

// ZWSendDataResponse is the immediate Response payload: whether the
// controller accepted the request for transmission.
type ZWSendDataResponse struct {
	Accepted bool
}

// ZWSendDataCallback is the later Request-typed callback carrying the
// terminal TransmitStatus for a given CallbackID.
type ZWSendDataCallback struct {
	CallbackID uint8
	Status     uint8
}

func registerZWSendData() {
	Register(FuncZWSendData, &Descriptor{
		Name: "ZWSendData",
		SerializeRequest: func(v interface{}) (*frame.Frame, error) {
			m, ok := v.(*ZWSendData)
			if !ok {
				return nil, fmt.Errorf("message: ZWSendData serialize: bad type %T", v)
			}
			// Body: NodeID | len(Payload) | Payload... | TransmitOptions | CallbackID
			body := make([]uint8, 0, 3+len(m.Payload))
			body = append(body, m.NodeID, uint8(len(m.Payload)))
			body = append(body, m.Payload...)
			body = append(body, m.TransmitOptions, m.CallbackID)
			return &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWSendData), Payload: body}, nil
		},
		ParseResponse: func(f *frame.Frame) (interface{}, error) {
			if len(f.Payload) != 1 {
				return nil, errTooShort(FuncZWSendData, len(f.Payload), 1)
			}
			return &ZWSendDataResponse{Accepted: f.Payload[0] != 0}, nil
		},
		ParseRequest: func(f *frame.Frame) (interface{}, error) {
			// Controller delivers the SendData callback as a Request frame
			// with the same Function byte, body: CallbackID | TxStatus | ...
			if len(f.Payload) < 2 {
				return nil, errTooShort(FuncZWSendData, len(f.Payload), 2)
			}
			return &ZWSendDataCallback{CallbackID: f.Payload[0], Status: f.Payload[1]}, nil
		},
	})
}
