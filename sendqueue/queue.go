// Package sendqueue implements the priority-ordered send queue and
// per-transaction lifecycle state machine that schedules every frame the
// driver writes to the controller (spec.md §4.5).
package sendqueue

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
	"container/heap"
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/frame"
	"github.com/zwavelink/corezwave/internal/zwerror"
	"github.com/zwavelink/corezwave/transport"
)

// Timing defaults from spec.md §4.5.
const (
	DefaultACKTimeout      = 1600 * time.Millisecond
	DefaultResponseTimeout = 10 * time.Second
	DefaultCallbackTimeout = 65 * time.Second
)

// Queue schedules Transactions one at a time against a single transport,
// enforcing spec.md §4.5's "at most one transaction in flight" invariant.
type Queue struct {
	logger    *zap.Logger
	transport transport.Transport

	mu            sync.Mutex
	ready         txHeap
	pendingByNode map[uint8][]*Transaction
	nextSeq       int64

	wake chan struct{}

	acks      chan uint8 // frame.ACK / frame.NAK / frame.CAN
	responses chan *frame.Frame
	callbacks chan *frame.Frame

	ackTimeout      time.Duration
	responseTimeout time.Duration
}

// NewQueue returns a Queue writing frames to tr and logging via logger.
func NewQueue(tr transport.Transport, logger *zap.Logger) *Queue {
	q := &Queue{
		logger:          logger,
		transport:       tr,
		pendingByNode:   map[uint8][]*Transaction{},
		wake:            make(chan struct{}, 1),
		acks:            make(chan uint8, 1),
		responses:       make(chan *frame.Frame, 1),
		callbacks:       make(chan *frame.Frame, 8),
		ackTimeout:      DefaultACKTimeout,
		responseTimeout: DefaultResponseTimeout,
	}
	heap.Init(&q.ready)
	return q
}

// SetTimeouts overrides the ACK/response timeouts, applying a driver's
// configured Options in place of the spec.md §4.5 defaults. Zero values
// leave the corresponding timeout unchanged.
func (q *Queue) SetTimeouts(ack, response time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if ack > 0 {
		q.ackTimeout = ack
	}
	if response > 0 {
		q.responseTimeout = response
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Enqueue adds t to the queue. If parkForWakeup is true, t is held in a
// per-node pending set instead of the ready heap (non-listening/battery
// node, spec.md §4.5); call Release once that node wakes.
func (q *Queue) Enqueue(t *Transaction, parkForWakeup bool) {
	q.mu.Lock()
	t.seq = atomic.AddInt64(&q.nextSeq, 1)
	t.enqueuedAt = time.Now()
	if parkForWakeup {
		q.pendingByNode[t.NodeID] = append(q.pendingByNode[t.NodeID], t)
		q.mu.Unlock()
		return
	}
	heap.Push(&q.ready, t)
	q.mu.Unlock()
	q.signal()
}

// Release moves every transaction parked for nodeID's wakeup into the
// ready heap, in their original enqueue order (spec.md §4.5).
func (q *Queue) Release(nodeID uint8) {
	q.mu.Lock()
	parked := q.pendingByNode[nodeID]
	delete(q.pendingByNode, nodeID)
	for _, t := range parked {
		heap.Push(&q.ready, t)
	}
	q.mu.Unlock()
	if len(parked) > 0 {
		q.signal()
	}
}

// Park moves t (already Sending/WaitingFor*) into nodeID's pending set,
// used when a SendData callback reports NoAck against a non-listening
// node (spec.md §4.5).
func (q *Queue) Park(t *Transaction, nodeID uint8) {
	q.mu.Lock()
	t.State = StateQueued
	q.pendingByNode[nodeID] = append(q.pendingByNode[nodeID], t)
	q.mu.Unlock()
}

// Cancel removes t from the ready heap or a pending set before it starts
// Sending. It has no effect once t has begun Sending (spec.md §5).
func (q *Queue) Cancel(t *Transaction) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, x := range q.ready {
		if x == t {
			heap.Remove(&q.ready, i)
			t.finish(Result{}, zwerror.ErrCancelled)
			return true
		}
	}
	for node, list := range q.pendingByNode {
		for i, x := range list {
			if x == t {
				q.pendingByNode[node] = append(list[:i], list[i+1:]...)
				t.finish(Result{}, zwerror.ErrCancelled)
				return true
			}
		}
	}
	return false
}

func (q *Queue) popNext() *Transaction {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ready.Len() == 0 {
		return nil
	}
	return heap.Pop(&q.ready).(*Transaction)
}

// DeliverACK feeds an ACK/NAK/CAN preamble byte observed on the wire to
// the in-flight transaction.
func (q *Queue) DeliverACK(preamble uint8) {
	select {
	case q.acks <- preamble:
	default:
	}
}

// DeliverResponse feeds a parsed Response-typed frame to the in-flight
// transaction.
func (q *Queue) DeliverResponse(f *frame.Frame) {
	select {
	case q.responses <- f:
	default:
	}
}

// DeliverCallback feeds a parsed Request-typed callback frame. Callbacks
// may arrive for a transaction no longer in WaitingForCallback (e.g.
// after a restart); unmatched callbacks are silently dropped by the
// caller checking callbackId.
func (q *Queue) DeliverCallback(f *frame.Frame) {
	select {
	case q.callbacks <- f:
	default:
	}
}

// Run executes the scheduler loop until ctx is cancelled. Exactly one
// Transaction is in flight at a time.
func (q *Queue) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			q.drainAll()
			return
		default:
		}

		t := q.popNext()
		if t == nil {
			select {
			case <-ctx.Done():
				q.drainAll()
				return
			case <-q.wake:
				continue
			}
		}

		q.runTransaction(ctx, t)
	}
}

func (q *Queue) drainAll() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, t := range q.ready {
		t.finish(Result{}, zwerror.ErrCancelled)
	}
	q.ready = nil
	for _, list := range q.pendingByNode {
		for _, t := range list {
			t.finish(Result{}, zwerror.ErrCancelled)
		}
	}
	q.pendingByNode = map[uint8][]*Transaction{}
}

// runTransaction drives one transaction through Sending -> WaitingForACK
// -> WaitingForResponse -> WaitingForCallback -> terminal, blocking the
// scheduler loop the entire time (spec.md §4.5 invariant 1).
func (q *Queue) runTransaction(ctx context.Context, t *Transaction) {
	for {
		t.State = StateSending
		wire, err := t.Frame.Bytes()
		if err != nil {
			t.finish(Result{}, zwerror.Wrap(zwerror.KindMalformedMessage, "encode transaction frame", err))
			return
		}
		if err := q.transport.Write(wire); err != nil {
			t.finish(Result{}, zwerror.Wrap(zwerror.KindTransportClosed, "write transaction frame", err))
			return
		}

		t.State = StateWaitingForACK
		ackTimer := time.NewTimer(q.ackTimeout)
		var preamble uint8
		var timedOut bool
		select {
		case <-ctx.Done():
			ackTimer.Stop()
			t.finish(Result{}, zwerror.ErrCancelled)
			return
		case preamble = <-q.acks:
			ackTimer.Stop()
		case <-ackTimer.C:
			timedOut = true
		}

		if timedOut || preamble != frame.ACK {
			t.AttemptsLeft--
			if t.AttemptsLeft <= 0 {
				if timedOut {
					t.finish(Result{}, zwerror.ErrACKTimeout)
				} else {
					t.finish(Result{}, zwerror.ErrCanNak)
				}
				return
			}
			q.logger.Warn("transaction ack retry",
				zap.String("id", t.ID), zap.Int("attemptsLeft", t.AttemptsLeft))
			backoff(t.MaxAttempts - t.AttemptsLeft)
			continue
		}

		if !t.ExpectResponse {
			break
		}

		// Response phase. A CAN (or stray NAK) arriving here is treated
		// as equivalent to a NAK on the frame we just sent: consume an
		// attempt and resend, rather than leaving the byte queued where
		// the next transaction's ACK wait would misread it.
		t.State = StateWaitingForResponse
		result, err := q.awaitResponse(ctx, t)
		if err == nil {
			res, cbErr := q.awaitCallback(ctx, t, result)
			t.finish(res, cbErr)
			return
		}
		if err != errResendAfterCan {
			t.finish(result, err)
			return
		}

		t.AttemptsLeft--
		if t.AttemptsLeft <= 0 {
			t.finish(Result{}, zwerror.ErrCanNak)
			return
		}
		q.logger.Warn("transaction response-phase CAN, resending",
			zap.String("id", t.ID), zap.Int("attemptsLeft", t.AttemptsLeft))
		backoff(t.MaxAttempts - t.AttemptsLeft)
	}

	result, err := q.awaitCallback(ctx, t, Result{})
	t.finish(result, err)
}

// errResendAfterCan signals runTransaction to consume an attempt and
// resend after a CAN/NAK observed during the response phase.
var errResendAfterCan = zwerror.New(zwerror.KindCanNak, "can during response phase")

func (q *Queue) awaitResponse(ctx context.Context, t *Transaction) (Result, error) {
	var result Result
	timer := time.NewTimer(q.responseTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return result, zwerror.ErrCancelled
		case preamble := <-q.acks:
			if preamble == frame.CAN || preamble == frame.NAK {
				return result, errResendAfterCan
			}
			// A duplicate ACK carries no information here.
		case f := <-q.responses:
			parsed, matched := q.matchResponse(t, f)
			if !matched {
				continue
			}
			result.Response = parsed
			return result, nil
		case <-timer.C:
			return result, zwerror.ErrResponseTimeout
		}
	}
}

func (q *Queue) awaitCallback(ctx context.Context, t *Transaction, result Result) (Result, error) {
	if t.ExpectCallback {
		t.State = StateWaitingForCallback
		timeout := t.CallbackTimeout
		if timeout == 0 {
			timeout = DefaultCallbackTimeout
		}
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		for {
			select {
			case <-ctx.Done():
				return result, zwerror.ErrCancelled
			case f := <-q.callbacks:
				if len(f.Payload) < 1 || f.Payload[0] != t.CallbackID {
					continue
				}
				result.Callback = f
				if len(f.Payload) >= 2 {
					result.TransmitStatus = f.Payload[1]
					result.HasTransmitStatus = true
				}
				return result, nil
			case <-timer.C:
				return result, zwerror.ErrCallbackTimeout
			}
		}
	}

	return result, nil
}

func (q *Queue) matchResponse(t *Transaction, f *frame.Frame) (*frame.Frame, bool) {
	if f.Function != uint8(t.Function) {
		return nil, false
	}
	if t.ResponseMatches != nil && !t.ResponseMatches(f) {
		return nil, false
	}
	return f, true
}

// backoff sleeps a jittered 100ms*attempt^2 delay, keyed off the number
// of attempts already consumed (spec.md §4.5): it must grow on each
// successive retry, not shrink as AttemptsLeft counts down.
func backoff(attemptsConsumed int) {
	base := 100 * time.Millisecond * time.Duration(attemptsConsumed*attemptsConsumed)
	jitter := time.Duration(rand.Int63n(int64(base) / 4))
	time.Sleep(base + jitter)
}
