package node

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
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/security"
)

func TestListeningImpliesNotFrequentListening(t *testing.T) {
	n := New(5, zap.NewNop())
	n.SetProtocolInfo(DeviceClass{}, true, true, false, 40000, false, 4)
	assert.True(t, n.IsListening())
	assert.False(t, n.IsFrequentListening())
}

func TestFrequentListeningHonoredWhenNotListening(t *testing.T) {
	n := New(5, zap.NewNop())
	n.SetProtocolInfo(DeviceClass{}, false, true, false, 40000, false, 4)
	assert.False(t, n.IsListening())
	assert.True(t, n.IsFrequentListening())
}

func TestAdvanceInterviewStageRefusesNonMonotonic(t *testing.T) {
	n := New(5, zap.NewNop())
	assert.True(t, n.AdvanceInterviewStage(StageProtocolInfo))
	assert.True(t, n.AdvanceInterviewStage(StageNodeInfo))
	assert.False(t, n.AdvanceInterviewStage(StageProtocolInfo))
	assert.Equal(t, StageNodeInfo, n.InterviewStage())
}

func TestResetInterviewStageForcesBackward(t *testing.T) {
	n := New(5, zap.NewNop())
	n.AdvanceInterviewStage(StageComplete)
	n.ResetInterviewStage(StageNone)
	assert.Equal(t, StageNone, n.InterviewStage())
}

func TestSupportsCCChecksRecordedList(t *testing.T) {
	n := New(5, zap.NewNop())
	n.SetSupportedCCs([]uint8{0x25, 0x26}, []uint8{})
	assert.True(t, n.SupportsCC(0x26))
	assert.False(t, n.SupportsCC(0x70))
}

func TestSetSecurityClassMarksSecure(t *testing.T) {
	n := New(5, zap.NewNop())
	assert.False(t, n.IsSecure())
	n.SetSecurityClass(security.ClassS2Authenticated)
	assert.True(t, n.IsSecure())
	assert.Equal(t, security.ClassS2Authenticated, n.SecurityClass())
}

func TestEndpointIsCreatedLazily(t *testing.T) {
	n := New(5, zap.NewNop())
	ep := n.Endpoint(2)
	assert.Equal(t, uint8(2), ep.Index)
	assert.Contains(t, n.Endpoints(), uint8(0))
	assert.Contains(t, n.Endpoints(), uint8(2))
}
