package driver

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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/cc"
	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/frame"
	"github.com/zwavelink/corezwave/message"
	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/transport"
	"github.com/zwavelink/corezwave/valuedb"
)

func TestDeliverSupervisionReportDeliversToRegisteredChannel(t *testing.T) {
	d := newTestDriver(t)
	ch := make(chan *cc.SupervisionReport, 1)
	key := supervisionKey{nodeID: 5, sessionID: 3}
	d.mu.Lock()
	d.supervisionWaiters[key] = ch
	d.mu.Unlock()

	report := &cc.SupervisionReport{SessionID: 3, Status: cc.SupervisionStatusSuccess}
	d.deliverSupervisionReport(5, report)

	select {
	case got := <-ch:
		assert.Same(t, report, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered supervision report")
	}
}

func TestDeliverSupervisionReportIsNonBlockingWithoutARegisteredWaiter(t *testing.T) {
	d := newTestDriver(t)
	assert.NotPanics(t, func() {
		d.deliverSupervisionReport(5, &cc.SupervisionReport{SessionID: 1})
	})
}

// scheduleVerifyPoll/cancelVerifyPoll drive the non-supervised half of
// spec.md §9's optimistic-update policy: a fallback Get fires after
// duration+1s unless something cancels it first.
func TestScheduleVerifyPollFiresVerifyGetAfterWait(t *testing.T) {
	d := newTestDriver(t)
	d.runCtx = context.Background()
	n := node.New(4, zap.NewNop())
	id := valuedb.ID{NodeID: 4, CCID: device.CommandClassBinarySwitch, Property: "currentValue"}

	fired := make(chan struct{})
	d.scheduleVerifyPoll(n, id, -990*time.Millisecond, func(ctx context.Context) error {
		close(fired)
		return nil
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("verify poll did not fire")
	}
}

func TestCancelVerifyPollPreventsFire(t *testing.T) {
	d := newTestDriver(t)
	d.runCtx = context.Background()
	n := node.New(4, zap.NewNop())
	id := valuedb.ID{NodeID: 4, CCID: device.CommandClassBinarySwitch, Property: "currentValue"}

	fired := make(chan struct{}, 1)
	d.scheduleVerifyPoll(n, id, 5*time.Second, func(ctx context.Context) error {
		fired <- struct{}{}
		return nil
	})
	d.cancelVerifyPoll(id)

	select {
	case <-fired:
		t.Fatal("verify poll fired after cancellation")
	case <-time.After(50 * time.Millisecond):
	}
}

// An unsolicited Report is itself confirmation (spec.md §9: "cancelled by
// an intervening unsolicited report"), so applyCC must cancel any
// verification poll pending for the same value.
func TestApplyCCBinarySwitchReportCancelsPendingVerifyPoll(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(9, zap.NewNop())
	id := valuedb.ID{NodeID: 9, CCID: device.CommandClassBinarySwitch, Property: "currentValue"}

	cancelled := false
	d.mu.Lock()
	d.verifyPolls[id] = func() { cancelled = true }
	d.mu.Unlock()

	d.applyCC(n, encapsulated(9, device.CommandClassBinarySwitch, &cc.BinarySwitchReport{CurrentValue: true, TargetValue: true}))

	assert.True(t, cancelled)
}

func TestApplyCCMultilevelSwitchReportSetsValuesAndCancelsPoll(t *testing.T) {
	d := newTestDriver(t)
	n := node.New(9, zap.NewNop())
	ccID := device.CommandClassMultilevelSwitch
	id := valuedb.ID{NodeID: 9, CCID: ccID, Property: "currentValue"}

	cancelled := false
	d.mu.Lock()
	d.verifyPolls[id] = func() { cancelled = true }
	d.mu.Unlock()

	d.applyCC(n, encapsulated(9, ccID, &cc.MultilevelSwitchReport{CurrentValue: 80, TargetValue: 80}))

	cur, ok := d.values.Get(id)
	require.True(t, ok)
	assert.Equal(t, uint8(80), cur)

	tgt, ok := d.values.Get(valuedb.ID{NodeID: 9, CCID: ccID, Property: "targetValue"})
	require.True(t, ok)
	assert.Equal(t, uint8(80), tgt)

	assert.True(t, cancelled)
}

// parseSentFrame decodes one raw wire frame written by the driver back
// into a *frame.Frame, mirroring how the peer controller would read it.
func parseSentFrame(t *testing.T, raw []byte) *frame.Frame {
	t.Helper()
	var p frame.Parser
	var got *frame.Frame
	for _, b := range raw {
		f, err := p.Parse(b)
		require.NoError(t, err)
		if f != nil {
			got = f
		}
	}
	require.NotNil(t, got, "incomplete frame")
	return got
}

func waitForSentFrame(t *testing.T, tr *transport.Fake) *frame.Frame {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sent := tr.Sent(); len(sent) > 0 {
			return parseSentFrame(t, sent[0])
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("timed out waiting for a sent frame")
	return nil
}

func feedFrame(t *testing.T, tr *transport.Fake, f *frame.Frame) {
	t.Helper()
	b, err := f.Bytes()
	require.NoError(t, err)
	tr.Feed(b)
}

// Scenario 6 (spec.md §8): a supervised Multilevel Switch / Binary
// Switch Set answered with SupervisionReport(status=Success) updates
// currentValue exactly once and schedules no verification poll.
func TestSetBinarySwitchSupervisedSuccessUpdatesCurrentValueOnceWithNoPoll(t *testing.T) {
	tr := transport.NewFake()
	require.NoError(t, tr.Open(context.Background()))
	d := New(tr, nil, nil, Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Open(ctx))
	defer d.Close()

	n := node.New(9, zap.NewNop())
	n.SetSupportedCCs([]uint8{device.CommandClassSupervision, device.CommandClassBinarySwitch}, nil)
	d.mu.Lock()
	d.nodes[9] = n
	d.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- d.SetBinarySwitch(ctx, n, true, 0) }()

	req := waitForSentFrame(t, tr)
	tr.Feed([]byte{frame.ACK})

	feedFrame(t, tr, &frame.Frame{
		Type: frame.TypeResponse, Function: uint8(message.FuncZWSendData), Payload: []byte{0x01},
	})

	callbackID := req.Payload[len(req.Payload)-1]
	feedFrame(t, tr, &frame.Frame{
		Type: frame.TypeRequest, Function: uint8(message.FuncZWSendData),
		Payload: []byte{callbackID, message.TransmitStatusOK},
	})

	// req.Payload: nodeId | len(ccBody) | ccBody... | txOptions | callbackId.
	// ccBody is a Supervision.Get envelope: ccId | cmd | sessionFlags | len | inner...
	ccBodyLen := int(req.Payload[1])
	ccBody := req.Payload[2 : 2+ccBodyLen]
	sessionID := ccBody[2] & 0x7f

	supervisionBody := []uint8{device.CommandClassSupervision, 0x02, sessionID, cc.SupervisionStatusSuccess, 0x00}
	feedFrame(t, tr, &frame.Frame{
		Type: frame.TypeRequest, Function: uint8(message.FuncApplicationCommandHandler),
		Payload: append([]uint8{0x00, 9, uint8(len(supervisionBody))}, supervisionBody...),
	})

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SetBinarySwitch did not return")
	}

	id := valuedb.ID{NodeID: 9, CCID: device.CommandClassBinarySwitch, Property: "currentValue"}
	v, ok := d.values.Get(id)
	require.True(t, ok)
	assert.Equal(t, true, v)

	d.mu.Lock()
	_, polling := d.verifyPolls[id]
	d.mu.Unlock()
	assert.False(t, polling, "a successful supervised write must not schedule a verification poll")
}

// Without Supervision support, a write's optimistic currentValue update
// is deferred to a verification poll rather than applied immediately
// (spec.md §9).
func TestSetBinarySwitchNonSupervisedSchedulesVerifyPollInsteadOfUpdatingImmediately(t *testing.T) {
	tr := transport.NewFake()
	require.NoError(t, tr.Open(context.Background()))
	d := New(tr, nil, nil, Options{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, d.Open(ctx))
	defer d.Close()

	n := node.New(10, zap.NewNop())
	n.SetSupportedCCs([]uint8{device.CommandClassBinarySwitch}, nil)
	d.mu.Lock()
	d.nodes[10] = n
	d.mu.Unlock()

	result := make(chan error, 1)
	go func() { result <- d.SetBinarySwitch(ctx, n, true, 0) }()

	req := waitForSentFrame(t, tr)
	tr.Feed([]byte{frame.ACK})
	feedFrame(t, tr, &frame.Frame{
		Type: frame.TypeResponse, Function: uint8(message.FuncZWSendData), Payload: []byte{0x01},
	})
	callbackID := req.Payload[len(req.Payload)-1]
	feedFrame(t, tr, &frame.Frame{
		Type: frame.TypeRequest, Function: uint8(message.FuncZWSendData),
		Payload: []byte{callbackID, message.TransmitStatusOK},
	})

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("SetBinarySwitch did not return")
	}

	id := valuedb.ID{NodeID: 10, CCID: device.CommandClassBinarySwitch, Property: "currentValue"}
	_, ok := d.values.Get(id)
	assert.False(t, ok, "currentValue must wait for the verification poll, not update immediately")

	d.mu.Lock()
	_, polling := d.verifyPolls[id]
	d.mu.Unlock()
	assert.True(t, polling, "a non-supervised write must schedule a verification poll")
}
