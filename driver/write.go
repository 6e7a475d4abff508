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
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/cc"
	"github.com/zwavelink/corezwave/device"
	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/node"
	"github.com/zwavelink/corezwave/sendqueue"
	"github.com/zwavelink/corezwave/valuedb"
)

// supervisionKey identifies an in-flight supervised Set a writeSet call
// is blocked waiting on, mirroring ccWaitKey's role for Get/Report pairs.
type supervisionKey struct {
	nodeID    uint8
	sessionID uint8
}

// nextSupervisionSessionID returns the next Supervision SessionID, a
// 7-bit field (the top bit of its wire byte carries statusUpdates).
func (d *Driver) nextSupervisionSessionID() uint8 {
	seq := atomic.AddUint32(&d.supervisionSeq, 1)
	return uint8(seq % 128)
}

// deliverSupervisionReport hands report to a pending writeSet call for
// the same node/session, if one is registered. Like deliverCCWaiter,
// delivery never blocks and an unmatched report is dropped.
func (d *Driver) deliverSupervisionReport(nodeID uint8, report *cc.SupervisionReport) {
	key := supervisionKey{nodeID: nodeID, sessionID: report.SessionID}
	d.mu.RLock()
	ch, ok := d.supervisionWaiters[key]
	d.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case ch <- report:
	default:
	}
}

// scheduleVerifyPoll arranges a Get at duration+1s to resolve id when a
// write was not confirmed by a Supervision Success (spec.md §9). Any
// earlier poll pending for id is replaced. cancelVerifyPoll stops it
// early if an unsolicited Report resolves the value first; Close stops
// every pending poll by cancelling d.runCtx.
func (d *Driver) scheduleVerifyPoll(n *node.Node, id valuedb.ID, duration time.Duration, verifyGet func(ctx context.Context) error) {
	d.cancelVerifyPoll(id)

	pollCtx, cancel := context.WithCancel(d.runCtx)
	d.mu.Lock()
	d.verifyPolls[id] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		timer := time.NewTimer(duration + time.Second)
		defer timer.Stop()
		select {
		case <-pollCtx.Done():
			return
		case <-timer.C:
		}

		d.mu.Lock()
		delete(d.verifyPolls, id)
		d.mu.Unlock()

		if err := verifyGet(pollCtx); err != nil {
			d.logger.Warn("driver: verification poll failed", zap.Uint8("nodeId", n.ID()), zap.Error(err))
		}
	}()
}

// cancelVerifyPoll stops id's pending verification poll, if any. Called
// both when a write resolves by Supervision Success and whenever an
// unsolicited Report for the same value arrives (applyCC).
func (d *Driver) cancelVerifyPoll(id valuedb.ID) {
	d.mu.Lock()
	cancel, ok := d.verifyPolls[id]
	if ok {
		delete(d.verifyPolls, id)
	}
	d.mu.Unlock()
	if ok {
		cancel()
	}
}

// writeSet drives a host-initiated Set against id's owning CC: it wraps
// the command in Supervision whenever n supports it, then resolves
// spec.md §9's optimistic-update policy from the outcome (scenario 6 in
// §8). targetValue is written immediately regardless of supervision,
// matching a real controller's UI showing the requested state right
// away; currentValue only follows it immediately on a Supervision
// Success. Every other outcome - no supervision support, Fail, or a
// response timeout - schedules verifyGet after duration+1s instead,
// unless DisableOptimisticValueUpdate is set.
func (d *Driver) writeSet(ctx context.Context, n *node.Node, ccID, ccCommand uint8, body interface{}, id valuedb.ID, targetValue interface{}, duration time.Duration, verifyGet func(ctx context.Context) error) error {
	targetID := id
	targetID.Property = "targetValue"
	d.values.Set(targetID, targetValue)

	supervised := n.SupportsCC(device.CommandClassSupervision)
	sessionID := d.nextSupervisionSessionID()

	opts := cc.EncodeOptions{
		NodeIsSecure:   n.IsSecure(),
		SecurityClass:  ccSecurityClass(n.SecurityClass()),
		UseSupervision: supervised,
		SupervisionID:  sessionID,
	}

	var ch chan *cc.SupervisionReport
	if supervised {
		ch = make(chan *cc.SupervisionReport, 1)
		key := supervisionKey{nodeID: n.ID(), sessionID: sessionID}
		d.mu.Lock()
		d.supervisionWaiters[key] = ch
		d.mu.Unlock()
		defer func() {
			d.mu.Lock()
			delete(d.supervisionWaiters, key)
			d.mu.Unlock()
		}()
	}

	if err := d.encodeAndSend(ctx, n, opts, ccID, ccCommand, body, sendqueue.PriorityNormal); err != nil {
		return err
	}

	if !supervised {
		if !d.opts.DisableOptimisticValueUpdate {
			d.scheduleVerifyPoll(n, id, duration, verifyGet)
		}
		return nil
	}

	deadline := d.opts.Timeouts.Response
	for {
		timer := time.NewTimer(deadline)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zwerror.ErrCancelled

		case report := <-ch:
			timer.Stop()
			switch report.Status {
			case cc.SupervisionStatusWorking:
				deadline = cc.DecodeDuration(report.Duration)
				if deadline <= 0 {
					deadline = d.opts.Timeouts.Response
				}
				continue
			case cc.SupervisionStatusSuccess:
				if !d.opts.DisableOptimisticValueUpdate {
					d.values.Set(id, targetValue)
				}
				d.cancelVerifyPoll(id)
				return nil
			default: // Fail, NoSupport
				if !d.opts.DisableOptimisticValueUpdate {
					d.scheduleVerifyPoll(n, id, duration, verifyGet)
				}
				return nil
			}

		case <-timer.C:
			if !d.opts.DisableOptimisticValueUpdate {
				d.scheduleVerifyPoll(n, id, duration, verifyGet)
			}
			return nil
		}
	}
}

// SetBinarySwitch writes targetValue to n's Binary Switch, wrapped in
// Supervision when n supports it (spec.md §8 scenario 6).
func (d *Driver) SetBinarySwitch(ctx context.Context, n *node.Node, targetValue bool, duration time.Duration) error {
	durByte, err := cc.EncodeDuration(duration)
	if err != nil {
		return err
	}
	ccID := device.CommandClassBinarySwitch
	id := valuedb.ID{NodeID: n.ID(), CCID: ccID, Property: "currentValue"}
	return d.writeSet(ctx, n, ccID, binarySwitchCommandSet,
		&cc.BinarySwitchSet{TargetValue: targetValue, Duration: durByte},
		id, targetValue, duration,
		func(pollCtx context.Context) error {
			enc, err := d.requestCC(pollCtx, n, 0, ccID, binarySwitchCommandGet, &cc.BinarySwitchGet{}, sendqueue.PriorityPoll)
			if err != nil {
				return err
			}
			d.applyCC(n, enc)
			return nil
		})
}

// SetMultilevelSwitch writes targetValue (0-99, or 0xff for "last on
// level") to n's Multilevel Switch, wrapped in Supervision when n
// supports it (spec.md §8 scenario 6).
func (d *Driver) SetMultilevelSwitch(ctx context.Context, n *node.Node, targetValue uint8, duration time.Duration) error {
	durByte, err := cc.EncodeDuration(duration)
	if err != nil {
		return err
	}
	ccID := device.CommandClassMultilevelSwitch
	id := valuedb.ID{NodeID: n.ID(), CCID: ccID, Property: "currentValue"}
	return d.writeSet(ctx, n, ccID, multilevelSwitchCommandSet,
		&cc.MultilevelSwitchSet{Value: targetValue, Duration: durByte},
		id, targetValue, duration,
		func(pollCtx context.Context) error {
			enc, err := d.requestCC(pollCtx, n, 0, ccID, multilevelSwitchCommandGet, &cc.MultilevelSwitchGet{}, sendqueue.PriorityPoll)
			if err != nil {
				return err
			}
			d.applyCC(n, enc)
			return nil
		})
}
