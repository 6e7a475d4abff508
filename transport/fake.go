package transport

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
	"fmt"
	"sync"
)

// Fake is an in-memory Transport for tests: Write appends to Sent, and
// test code feeds bytes in via Feed to simulate the peer (spec.md §6:
// "the contract is identical in production and test").
type Fake struct {
	mu     sync.Mutex
	open   bool
	sent   [][]byte
	bytes  chan []byte
	closed chan error
	once   sync.Once
}

// NewFake returns an unopened Fake transport.
func NewFake() *Fake {
	return &Fake{
		bytes:  make(chan []byte, 64),
		closed: make(chan error, 1),
	}
}

// Open marks the fake transport open.
func (f *Fake) Open(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = true
	return nil
}

// Close marks the fake transport closed and unblocks Bytes/Closed.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return nil
	}
	f.open = false
	f.once.Do(func() {
		close(f.bytes)
		f.closed <- nil
		close(f.closed)
	})
	return nil
}

// Write records b in Sent for test assertions.
func (f *Fake) Write(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.open {
		return fmt.Errorf("transport: fake: write while closed")
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.sent = append(f.sent, cp)
	return nil
}

// Bytes implements Transport.
func (f *Fake) Bytes() <-chan []byte { return f.bytes }

// Closed implements Transport.
func (f *Fake) Closed() <-chan error { return f.closed }

// Sent returns every byte slice passed to Write so far, in order.
func (f *Fake) Sent() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

// Feed delivers b to the transport's Bytes channel as if received from
// the peer.
func (f *Fake) Feed(b []byte) {
	cp := make([]byte, len(b))
	copy(cp, b)
	f.bytes <- cp
}
