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
	"time"

	"github.com/google/uuid"

	"github.com/zwavelink/corezwave/frame"
	"github.com/zwavelink/corezwave/message"
)

// State is a Transaction's position in its lifecycle (spec.md §4.5).
type State int

const (
	StateQueued State = iota
	StateSending
	StateWaitingForACK
	StateWaitingForResponse
	StateWaitingForCallback
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateQueued:
		return "Queued"
	case StateSending:
		return "Sending"
	case StateWaitingForACK:
		return "WaitingForACK"
	case StateWaitingForResponse:
		return "WaitingForResponse"
	case StateWaitingForCallback:
		return "WaitingForCallback"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// ResponsePredicate matches an incoming Response-typed frame against a
// transaction's expectation, beyond the Function match the queue already
// performs (spec.md §4.5: "matches on function and optionally on content").
type ResponsePredicate func(f *frame.Frame) bool

// Result is what a Transaction resolves to: the last relevant message and,
// for SendData-class transactions, the terminal TransmitStatus.
type Result struct {
	Response          *frame.Frame
	Callback          *frame.Frame
	TransmitStatus    uint8
	HasTransmitStatus bool
}

// Transaction is one outstanding request against the controller.
type Transaction struct {
	ID       string
	Priority Priority
	NodeID   uint8 // 0 for controller-directed transactions (no node)
	Function message.Function
	Frame    *frame.Frame

	ExpectResponse  bool
	ResponseMatches ResponsePredicate
	ExpectCallback  bool
	CallbackID      uint8
	CallbackTimeout time.Duration

	AttemptsLeft int
	MaxAttempts  int

	State  State
	done   chan struct{}
	result Result
	err    error

	enqueuedAt time.Time
	seq        int64 // assigned by Queue.Enqueue; breaks priority ties in FIFO order
}

// NewTransaction builds a Queued transaction ready for Queue.Enqueue.
// attempts is the retry budget for the ACK phase (spec.md §4.5); pass 1
// for no retries.
func NewTransaction(priority Priority, nodeID uint8, fn message.Function, f *frame.Frame, attempts int) *Transaction {
	return &Transaction{
		ID:           uuid.NewString(),
		Priority:     priority,
		NodeID:       nodeID,
		Function:     fn,
		Frame:        f,
		AttemptsLeft: attempts,
		MaxAttempts:  attempts,
		State:        StateQueued,
		done:         make(chan struct{}),
	}
}

// WithResponse configures a response-matched transaction. The wait before
// ResponseTimeout is the queue's response timeout (default 10s, see
// Queue.SetTimeouts); it is not set per transaction.
func (t *Transaction) WithResponse(match ResponsePredicate) *Transaction {
	t.ExpectResponse = true
	t.ResponseMatches = match
	return t
}

// WithCallback configures a callback-matched SendData-class transaction.
// timeout defaults to 65s (spec.md §4.5) when zero.
func (t *Transaction) WithCallback(callbackID uint8, timeout time.Duration) *Transaction {
	t.ExpectCallback = true
	t.CallbackID = callbackID
	if timeout == 0 {
		timeout = 65 * time.Second
	}
	t.CallbackTimeout = timeout
	return t
}

// Wait blocks until the transaction reaches a terminal state and returns
// its result.
func (t *Transaction) Wait() (Result, error) {
	<-t.done
	return t.result, t.err
}

func (t *Transaction) finish(result Result, err error) {
	t.result = result
	t.err = err
	if err != nil {
		t.State = StateFailed
	} else {
		t.State = StateCompleted
	}
	close(t.done)
}
