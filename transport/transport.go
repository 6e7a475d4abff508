// Package transport implements the duplex byte-stream contract the driver
// core requires: open/close/write plus an incoming byte event, identical
// in production and test (spec.md §6).
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

import "context"

// Transport is a duplex byte stream to a Z-Wave controller chip. Write
// must be ordered and non-lossy. Implementations report closure through
// the channel returned by Closed, and deliver every received byte in
// order through Bytes.
type Transport interface {
	// Open establishes the underlying connection.
	Open(ctx context.Context) error

	// Close tears down the connection. Close is idempotent.
	Close() error

	// Write writes b in full or returns an error; it does not partially
	// write and silently drop the remainder.
	Write(b []byte) error

	// Bytes streams every byte received from the peer, in order, one
	// slice per underlying read. The channel is closed when the
	// transport closes.
	Bytes() <-chan []byte

	// Closed reports the reason the transport stopped, or nil on a
	// clean Close. It is closed exactly once.
	Closed() <-chan error
}
