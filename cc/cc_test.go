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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/security"
)

func TestBinarySwitchSetRoundTrip(t *testing.T) {
	set := &BinarySwitchSet{TargetValue: true, Duration: 5}
	wire, err := SerializeApplicationCC(device.CommandClassBinarySwitch, binarySwitchCommandSet, set)
	require.NoError(t, err)

	inst, err := ParseApplicationCC(7, 0, wire)
	require.NoError(t, err)
	got, ok := inst.Parsed.(*BinarySwitchSet)
	require.True(t, ok)
	assert.Equal(t, set, got)
}

func TestMultilevelSwitchReportRoundTrip(t *testing.T) {
	report := &MultilevelSwitchReport{CurrentValue: 80, TargetValue: 99, Duration: 3}
	wire, err := SerializeApplicationCC(device.CommandClassMultilevelSwitch, multilevelSwitchCommandReport, report)
	require.NoError(t, err)

	inst, err := ParseApplicationCC(9, 0, wire)
	require.NoError(t, err)
	got, ok := inst.Parsed.(*MultilevelSwitchReport)
	require.True(t, ok)
	assert.Equal(t, report, got)
}

func TestConfigurationSetRoundTripAllSizes(t *testing.T) {
	for _, size := range []uint8{1, 2, 4} {
		set := &ConfigurationSet{Parameter: 12, Size: size, Value: -5}
		wire, err := SerializeApplicationCC(device.CommandClassConfiguration, configurationCommandSet, set)
		require.NoError(t, err)

		inst, err := ParseApplicationCC(3, 0, wire)
		require.NoError(t, err)
		got, ok := inst.Parsed.(*ConfigurationSet)
		require.True(t, ok)
		assert.Equal(t, set, got)
	}
}

func TestParseApplicationCCUnregisteredStillCarriesRawPayload(t *testing.T) {
	inst, err := ParseApplicationCC(1, 0, []uint8{0x99, 0x01, 0xaa, 0xbb})
	require.NoError(t, err)
	assert.Nil(t, inst.Parsed)
	assert.Equal(t, []uint8{0xaa, 0xbb}, inst.Payload)
}

func TestParseApplicationCCTooShortIsMalformed(t *testing.T) {
	_, err := ParseApplicationCC(1, 0, []uint8{0x20})
	require.Error(t, err)
}

// Multi Channel encap scenario (spec.md §8 scenario 3): encoding a
// BinarySwitch Get with endpointIndex=2 begins 0x60 0x0D 0x00 0x02
// followed by the inner CC bytes 0x25 0x02.
func TestMultiChannelEncapByteLayout(t *testing.T) {
	frames, err := Encode(device.CommandClassBinarySwitch, binarySwitchCommandGet, &BinarySwitchGet{},
		EncodeOptions{EndpointIndex: 2}, nil)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []uint8{0x60, 0x0D, 0x00, 0x02, 0x25, 0x02}, frames[0])
}

func TestDecodeMultiChannelEncapRecoversInnerAndEndpoint(t *testing.T) {
	wire := []uint8{0x60, 0x0D, 0x00, 0x02, 0x25, 0x02}
	got, err := Decode(9, wire, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, device.CommandClassBinarySwitch, got.Inner.CCID)
	assert.Equal(t, uint8(2), got.Inner.EndpointIndex)
	require.Len(t, got.Stack, 1)
	assert.Equal(t, WrapMultiChannel, got.Stack[0].Kind)
	assert.Equal(t, uint8(2), got.Stack[0].DestEndpoint)
}

// Supervised Multilevel Switch scenario (spec.md §8 scenario 6): decoding
// a Supervision-wrapped MultilevelSwitch Set recovers the inner Set and
// the session metadata needed to reply with a Report.
func TestDecodeSupervisionWrappedMultilevelSwitchSet(t *testing.T) {
	frames, err := Encode(device.CommandClassMultilevelSwitch, multilevelSwitchCommandSet,
		&MultilevelSwitchSet{Value: 80}, EncodeOptions{UseSupervision: true, SupervisionID: 4}, nil)
	require.NoError(t, err)
	require.Len(t, frames, 1)

	got, err := Decode(5, frames[0], nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	set, ok := got.Inner.Parsed.(*MultilevelSwitchSet)
	require.True(t, ok)
	assert.Equal(t, uint8(80), set.Value)
	require.Len(t, got.Stack, 1)
	assert.Equal(t, WrapSupervision, got.Stack[0].Kind)
	assert.Equal(t, uint8(4), got.Stack[0].SupervisionSessionID)
}

// A Supervision Report is the terminal reply to our own Set, not an
// envelope wrapping an inner CC: decode must not try to unwrap it as a
// Get (regression test for a decode path that always treated Supervision
// as an encapsulation and rejected every Report with "unsupported
// command 0x02").
func TestDecodeSupervisionReportIsTerminalNotAnEnvelope(t *testing.T) {
	wire, err := SerializeApplicationCC(device.CommandClassSupervision, supervisionCommandReport,
		&SupervisionReport{SessionID: 4, Status: SupervisionStatusSuccess, Duration: 0})
	require.NoError(t, err)

	got, err := Decode(5, wire, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got.Stack, "a Report is not an encapsulation wrapper")

	report, ok := got.Inner.Parsed.(*SupervisionReport)
	require.True(t, ok)
	assert.Equal(t, uint8(4), report.SessionID)
	assert.Equal(t, SupervisionStatusSuccess, report.Status)
}

func TestCRC16EncapRoundTrip(t *testing.T) {
	inner := []uint8{0x20, 0x01, 0x63}
	wire := encodeCRC16Encap(inner)
	got, err := decodeCRC16Encap(wire)
	require.NoError(t, err)
	assert.Equal(t, inner, got)
}

func TestCRC16EncapBadChecksumRejected(t *testing.T) {
	wire := encodeCRC16Encap([]uint8{0x20, 0x01, 0x63})
	wire[len(wire)-1] ^= 0xff
	_, err := decodeCRC16Encap(wire)
	require.Error(t, err)
}

func TestTransportServiceAssemblerReassemblesAcrossSegments(t *testing.T) {
	inner := make([]uint8, 0)
	inner = append(inner, 0x20, 0x01)
	for i := 0; i < 80; i++ {
		inner = append(inner, uint8(i))
	}
	segments := segmentDatagram(3, inner)
	require.Greater(t, len(segments), 1)

	asm := NewAssembler()
	var out []uint8
	var complete bool
	var err error
	for _, seg := range segments {
		out, complete, err = asm.Accept(seg)
		require.NoError(t, err)
	}
	assert.True(t, complete)
	assert.Equal(t, inner, out)
}

func TestTransportServiceAssemblerHandlesOutOfOrderSegments(t *testing.T) {
	inner := make([]uint8, 90)
	for i := range inner {
		inner[i] = uint8(i)
	}
	segments := segmentDatagram(1, inner)
	require.Greater(t, len(segments), 1)

	reversed := make([][]uint8, len(segments))
	for i, s := range segments {
		reversed[len(segments)-1-i] = s
	}

	asm := NewAssembler()
	var out []uint8
	var complete bool
	for _, seg := range reversed {
		var err error
		out, complete, err = asm.Accept(seg)
		require.NoError(t, err)
	}
	assert.True(t, complete)
	assert.Equal(t, inner, out)
}

// stubSecureContext records the arguments Decode hands to DecryptS2 and
// returns a fixed inner CC, standing in for the driver's security engine.
type stubSecureContext struct {
	sequence  uint8
	groupID   uint8
	multicast bool
	inner     []uint8
}

func (s *stubSecureContext) DecryptS0(senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, ccCommand, sourceNode, destNode uint8) ([]uint8, error) {
	return s.inner, nil
}

func (s *stubSecureContext) EncryptS0(ccCommand, sourceNode, destNode uint8, plaintext []uint8) (senderNonce [security.NonceSize]byte, receiverNonceID uint8, ciphertext []uint8, mac [8]byte, err error) {
	return senderNonce, 0, plaintext, mac, nil
}

func (s *stubSecureContext) DecryptS2(sequence, groupID uint8, multicast bool, sealed []uint8, sourceNode, destNode uint8) ([]uint8, error) {
	s.sequence = sequence
	s.groupID = groupID
	s.multicast = multicast
	return s.inner, nil
}

func (s *stubSecureContext) EncryptS2(sourceNode, destNode uint8, plaintext []uint8) (sequence uint8, sealed []uint8, err error) {
	return 0, plaintext, nil
}

func TestDecodeSecurityS2SinglecastEnvelope(t *testing.T) {
	secure := &stubSecureContext{inner: []uint8{0x25, 0x03, 0xff}}
	wire := []uint8{device.CommandClassSecurity2, 0x03, 0x07, 0x00, 0xde, 0xad}

	got, err := Decode(9, wire, nil, secure)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, uint8(0x07), secure.sequence)
	assert.False(t, secure.multicast)
	require.Len(t, got.Stack, 1)
	assert.Equal(t, WrapSecurityS2, got.Stack[0].Kind)
	assert.False(t, got.Stack[0].S2Multicast)
	assert.Equal(t, device.CommandClassBinarySwitch, got.Inner.CCID)
}

// A multicast frame carries its MPAN group id in an MGRP extension;
// Decode must surface it so the security engine opens the frame against
// the group's MPAN chain rather than the sender's singlecast SPAN.
func TestDecodeSecurityS2MulticastMGRPExtensionSelectsGroup(t *testing.T) {
	secure := &stubSecureContext{inner: []uint8{0x25, 0x03, 0xff}}
	// extensionFlag set; one extension: length=3, type=MGRP, groupId=4.
	wire := []uint8{device.CommandClassSecurity2, 0x03, 0x07, 0x01, 0x03, 0x03, 0x04, 0xde, 0xad}

	got, err := Decode(9, wire, nil, secure)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, secure.multicast)
	assert.Equal(t, uint8(4), secure.groupID)
	require.Len(t, got.Stack, 1)
	assert.True(t, got.Stack[0].S2Multicast)
	assert.Equal(t, uint8(4), got.Stack[0].S2GroupID)
}

func TestAssociationReportRoundTrip(t *testing.T) {
	report := &AssociationReport{
		GroupingIdentifier: 2, MaxNodesSupported: 5, ReportsToFollow: 0,
		NodeIDs: []uint8{3, 7, 12},
	}
	wire, err := SerializeApplicationCC(device.CommandClassAssociation, associationCommandReport, report)
	require.NoError(t, err)

	inst, err := ParseApplicationCC(4, 0, wire)
	require.NoError(t, err)
	got, ok := inst.Parsed.(*AssociationReport)
	require.True(t, ok)
	assert.Equal(t, report, got)
}

func TestAssociationGroupingsReportRoundTrip(t *testing.T) {
	report := &AssociationGroupingsReport{SupportedGroupings: 3}
	wire, err := SerializeApplicationCC(device.CommandClassAssociation, associationCommandGroupingsReport, report)
	require.NoError(t, err)

	inst, err := ParseApplicationCC(4, 0, wire)
	require.NoError(t, err)
	got, ok := inst.Parsed.(*AssociationGroupingsReport)
	require.True(t, ok)
	assert.Equal(t, report, got)
}
