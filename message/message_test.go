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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwavelink/corezwave/frame"
)

func TestZWSendDataRoundTrip(t *testing.T) {
	req := &ZWSendData{
		NodeID:          5,
		Payload:         []uint8{CommandClassBasic, BasicCommandSet, 0xff},
		TransmitOptions: TransmitOptionACK | TransmitOptionAutoRoute | TransmitOptionExplore,
		CallbackID:      7,
	}

	f, err := SerializeRequest(FuncZWSendData, req)
	require.NoError(t, err)
	assert.Equal(t, frame.TypeRequest, f.Type)
	assert.Equal(t, uint8(FuncZWSendData), f.Function)

	bytes, err := f.Bytes()
	require.NoError(t, err)
	assert.NotEmpty(t, bytes)
}

func TestSerialAPIGetInitDataResponseParsesNodeBitmap(t *testing.T) {
	payload := make([]uint8, 34)
	payload[0] = 6      // version
	payload[1] = 0      // capabilities
	payload[2] = 29     // bitmap length
	payload[3] = 0x01   // node 1 present
	payload[3+1] = 0x01 // node 9 present

	f := &frame.Frame{Type: frame.TypeResponse, Function: uint8(FuncSerialAPIGetInitData), Payload: payload}
	v, err := ParseResponse(FuncSerialAPIGetInitData, f)
	require.NoError(t, err)

	out := v.(*SerialAPIGetInitData)
	assert.Equal(t, uint8(6), out.Version)
	assert.Contains(t, out.Nodes, uint8(1))
	assert.Contains(t, out.Nodes, uint8(9))
}

func TestZWApplicationUpdateSplitsCommandClassesAtMark(t *testing.T) {
	payload := []uint8{
		ApplicationUpdateStateReceived, 5, 0x02, // status, nodeId, length (unused here)
		0x01, 0x10, 0x11, // basic, generic, specific device class
		0x25, 0x70, // supported: BinarySwitch, Configuration
		0xef, // mark
		0x26, // controlled: MultilevelSwitch
	}
	f := &frame.Frame{Type: frame.TypeRequest, Function: uint8(FuncZWApplicationUpdate), Payload: payload}

	v, err := ParseRequest(FuncZWApplicationUpdate, f)
	require.NoError(t, err)

	out := v.(*ZWApplicationUpdate)
	assert.Equal(t, []uint8{0x25, 0x70}, out.SupportedCCs)
	assert.Equal(t, []uint8{0x26}, out.ControlledCCs)
}

func TestLookupUnknownFunction(t *testing.T) {
	_, err := Lookup(Function(0xfe))
	require.Error(t, err)
	var uf *ErrUnknownFunction
	require.ErrorAs(t, err, &uf)
}
