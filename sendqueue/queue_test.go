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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zwavelink/corezwave/frame"
	"github.com/zwavelink/corezwave/message"
	"github.com/zwavelink/corezwave/transport"
)

func newTestQueue(t *testing.T) (*Queue, *transport.Fake) {
	t.Helper()
	tr := transport.NewFake()
	require.NoError(t, tr.Open(context.Background()))
	q := NewQueue(tr, zap.NewNop())
	q.ackTimeout = 50 * time.Millisecond
	q.responseTimeout = 100 * time.Millisecond
	return q, tr
}

// ACK/NAK retry scenario (spec.md §8 scenario 1): a NAK followed by a
// second attempt that succeeds resolves with attempt count 2.
func TestTransactionRetriesOnceAfterNAK(t *testing.T) {
	q, tr := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	f := &frame.Frame{Type: frame.TypeRequest, Function: uint8(message.FuncZWGetVersion)}
	tx := NewTransaction(PriorityController, 0, message.FuncZWGetVersion, f, 2).
		WithResponse(nil)
	q.Enqueue(tx, false)

	time.Sleep(10 * time.Millisecond)
	q.DeliverACK(frame.NAK)

	time.Sleep(10 * time.Millisecond)
	q.DeliverACK(frame.ACK)
	q.DeliverResponse(&frame.Frame{Type: frame.TypeResponse, Function: uint8(message.FuncZWGetVersion)})

	result, err := tx.Wait()
	require.NoError(t, err)
	assert.NotNil(t, result.Response)
	assert.Equal(t, 2, len(tr.Sent()))
}

func TestTransactionFailsAfterExhaustingAttempts(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	f := &frame.Frame{Type: frame.TypeRequest, Function: uint8(message.FuncZWGetVersion)}
	tx := NewTransaction(PriorityController, 0, message.FuncZWGetVersion, f, 1)
	q.Enqueue(tx, false)

	_, err := tx.Wait()
	require.Error(t, err)
}

// A CAN received while waiting for the response is treated like a NAK on
// the frame just sent: the transaction resends instead of leaving the
// byte queued for the next transaction's ACK wait.
func TestCanDuringResponsePhaseResendsFrame(t *testing.T) {
	q, tr := newTestQueue(t)
	// The resend's ACK arrives after the 300ms sleep below, so its ACK
	// window has to outlast the 100-125ms backoff plus that wait.
	q.ackTimeout = 500 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	f := &frame.Frame{Type: frame.TypeRequest, Function: uint8(message.FuncZWGetVersion)}
	tx := NewTransaction(PriorityController, 0, message.FuncZWGetVersion, f, 2).
		WithResponse(nil)
	q.Enqueue(tx, false)

	time.Sleep(10 * time.Millisecond)
	q.DeliverACK(frame.ACK)
	time.Sleep(10 * time.Millisecond)
	q.DeliverACK(frame.CAN)

	time.Sleep(300 * time.Millisecond) // past the resend backoff
	q.DeliverACK(frame.ACK)
	q.DeliverResponse(&frame.Frame{Type: frame.TypeResponse, Function: uint8(message.FuncZWGetVersion)})

	result, err := tx.Wait()
	require.NoError(t, err)
	assert.NotNil(t, result.Response)
	assert.Equal(t, 2, len(tr.Sent()))
}

func TestControllerPriorityPreemptsNormalAtQueueBoundary(t *testing.T) {
	q, _ := newTestQueue(t)
	q.ackTimeout = 20 * time.Millisecond

	first := NewTransaction(PriorityNormal, 1, message.FuncZWGetVersion,
		&frame.Frame{Function: uint8(message.FuncZWGetVersion)}, 1)
	second := NewTransaction(PriorityController, 0, message.FuncZWGetVersion,
		&frame.Frame{Function: uint8(message.FuncZWGetVersion)}, 1)

	q.Enqueue(first, false)
	q.Enqueue(second, false)

	popped := q.popNext()
	assert.Same(t, second, popped)
}

func TestCancelBeforeSendingRejectsWithCancelled(t *testing.T) {
	q, _ := newTestQueue(t)
	tx := NewTransaction(PriorityNormal, 1, message.FuncZWGetVersion,
		&frame.Frame{Function: uint8(message.FuncZWGetVersion)}, 1)
	q.Enqueue(tx, false)

	ok := q.Cancel(tx)
	assert.True(t, ok)

	_, err := tx.Wait()
	require.Error(t, err)
}

// ACK-phase backoff must escalate across retries (spec.md §4.5:
// "100ms x attempt^2"), not shrink as AttemptsLeft counts down.
func TestBackoffEscalatesAcrossRetries(t *testing.T) {
	tx := NewTransaction(PriorityController, 0, message.FuncZWGetVersion,
		&frame.Frame{Function: uint8(message.FuncZWGetVersion)}, 5)

	var consumed []int
	for tx.AttemptsLeft > 0 {
		tx.AttemptsLeft--
		consumed = append(consumed, tx.MaxAttempts-tx.AttemptsLeft)
	}

	require.Equal(t, []int{1, 2, 3, 4, 5}, consumed, "attempt number must grow, not shrink, as retries accumulate")
}

func TestParkAndReleaseMovesTransactionIntoReadyHeap(t *testing.T) {
	q, _ := newTestQueue(t)
	tx := NewTransaction(PriorityWakeUp, 9, message.FuncZWSendData,
		&frame.Frame{Function: uint8(message.FuncZWSendData)}, 1)
	q.Enqueue(tx, true)

	assert.Equal(t, 0, q.ready.Len())
	q.Release(9)
	assert.Equal(t, 1, q.ready.Len())
}
