package frame

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
)

func TestParserShortFrames(t *testing.T) {
	parser := Parser{}

	for _, b := range []uint8{ACK, NAK, CAN} {
		f, err := parser.Parse(b)
		require.NoError(t, err)
		require.NotNil(t, f)
		assert.Equal(t, b, f.Preamble)

		bytes, err := f.Bytes()
		require.NoError(t, err)
		assert.Equal(t, []byte{b}, bytes)
	}
}

func TestParserBadPreambleDiscarded(t *testing.T) {
	parser := Parser{}
	f, err := parser.Parse(0x23)
	assert.Nil(t, f)
	assert.NoError(t, err)
}

func TestParserBadLength(t *testing.T) {
	for _, length := range []uint8{0, 1, 2} {
		parser := Parser{}
		f, err := parser.Parse(SOF)
		require.NoError(t, err)
		require.Nil(t, f)

		f, err = parser.Parse(length)
		assert.Nil(t, f)
		assert.Error(t, err)
	}
}

func TestParserRoundTripDataFrame(t *testing.T) {
	src := &Frame{Type: TypeRequest, Function: 0x15, Payload: []uint8{0x01, 0x02, 0x03}}
	bytes, err := src.Bytes()
	require.NoError(t, err)

	parser := Parser{}
	var got *Frame
	for _, b := range bytes {
		f, err := parser.Parse(b)
		require.NoError(t, err)
		if f != nil {
			got = f
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, src.Type, got.Type)
	assert.Equal(t, src.Function, got.Function)
	assert.Equal(t, src.Payload, got.Payload)
}

func TestParserBadChecksum(t *testing.T) {
	parser := Parser{}
	bad := []byte{SOF, 0x04, TypeRequest, 0x02, 0x03, 0xff}
	var lastErr error
	for _, b := range bad {
		_, err := parser.Parse(b)
		if err != nil {
			lastErr = err
		}
	}
	assert.Error(t, lastErr)
}

func TestChecksumOffByOneBitChangesChecksum(t *testing.T) {
	payload := []uint8{0x01, 0x02, 0x03, 0x04}
	base := checksum(3+uint8(len(payload)), TypeRequest, 0x10, payload)

	for i := range payload {
		for bit := uint8(0); bit < 8; bit++ {
			mutated := make([]uint8, len(payload))
			copy(mutated, payload)
			mutated[i] ^= 1 << bit
			got := checksum(3+uint8(len(mutated)), TypeRequest, 0x10, mutated)
			assert.NotEqual(t, base, got, "bit %d of byte %d did not change checksum", bit, i)
		}
	}
}

func TestGarbageSurroundingValidFrameExtractsUnchanged(t *testing.T) {
	inner := &Frame{Type: TypeResponse, Function: 0x07, Payload: []uint8{0xaa, 0xbb}}
	innerBytes, err := inner.Bytes()
	require.NoError(t, err)

	stream := append([]byte{0x02, 0x03, 0x04, NAK, CAN}, innerBytes...)
	stream = append(stream, 0x09, 0x0a)

	parser := Parser{}
	var got *Frame
	for _, b := range stream {
		f, err := parser.Parse(b)
		if err != nil {
			continue
		}
		if f != nil && !f.IsShort() {
			got = f
		}
	}

	require.NotNil(t, got)
	assert.Equal(t, inner.Function, got.Function)
	assert.Equal(t, inner.Payload, got.Payload)
}

func TestResetDiscardsPartialFrame(t *testing.T) {
	parser := Parser{}
	_, err := parser.Parse(SOF)
	require.NoError(t, err)
	_, err = parser.Parse(0x05)
	require.NoError(t, err)
	require.True(t, parser.InProgress())

	parser.Reset()
	assert.False(t, parser.InProgress())
}
