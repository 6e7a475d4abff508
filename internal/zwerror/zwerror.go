// Package zwerror enumerates the error kinds the driver core distinguishes
// per the recovery policy: every recoverable error is handled at the
// closest layer with enough context, and only TransportClosed and
// programmer errors propagate to the driver's top level.
package zwerror

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

import "errors"

// Kind identifies the broad class of error so callers can branch on
// recovery policy with errors.Is rather than string matching.
type Kind int

const (
	// KindUnknown is the zero value; never returned by the driver itself.
	KindUnknown Kind = iota
	// KindTransportClosed is fatal: the driver stops.
	KindTransportClosed
	// KindFrameChecksumMismatch is recovered by NAK and caller retry.
	KindFrameChecksumMismatch
	// KindFrameTimeout is recovered by NAK and caller retry.
	KindFrameTimeout
	// KindACKTimeout causes a transaction retry up to attempts.controller.
	KindACKTimeout
	// KindCanNak causes a transaction retry up to attempts.controller.
	KindCanNak
	// KindResponseTimeout fails the transaction; the driver continues.
	KindResponseTimeout
	// KindCallbackTimeout fails the transaction; the driver continues.
	KindCallbackTimeout
	// KindMalformedMessage is logged and the message is dropped, no retry.
	KindMalformedMessage
	// KindUnknownFunction is logged and the message is dropped, no retry.
	KindUnknownFunction
	// KindMalformedCC is logged and the message is dropped, no retry.
	KindMalformedCC
	// KindNodeTimeout marks the node as possibly dead in the interview stage.
	KindNodeTimeout
	// KindSecurityNonceMissing is recovered once via resync.
	KindSecurityNonceMissing
	// KindSecurityMACFailed is recovered once via resync; second failure fails.
	KindSecurityMACFailed
	// KindCancelled is a user-requested cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransportClosed:
		return "TransportClosed"
	case KindFrameChecksumMismatch:
		return "FrameChecksumMismatch"
	case KindFrameTimeout:
		return "FrameTimeout"
	case KindACKTimeout:
		return "ACKTimeout"
	case KindCanNak:
		return "CanNak"
	case KindResponseTimeout:
		return "ResponseTimeout"
	case KindCallbackTimeout:
		return "CallbackTimeout"
	case KindMalformedMessage:
		return "MalformedMessage"
	case KindUnknownFunction:
		return "UnknownFunction"
	case KindMalformedCC:
		return "MalformedCC"
	case KindNodeTimeout:
		return "NodeTimeout"
	case KindSecurityNonceMissing:
		return "SecurityNonceMissing"
	case KindSecurityMACFailed:
		return "SecurityMACFailed"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Error is the concrete error type carried across layer boundaries. It
// wraps an underlying cause (if any) so callers can still errors.As into
// it while also unwrapping to whatever caused it.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Kind.String() + ": " + e.Msg + ": " + e.Cause.Error()
	}
	return e.Kind.String() + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any target *Error with an equal Kind, so errors.Is against
// one of the package-level sentinels below checks an error's Kind. A bare
// Kind is not an error value and cannot be passed to errors.Is.
func (e *Error) Is(target error) bool {
	var te *Error
	if errors.As(target, &te) {
		return te.Kind == e.Kind
	}
	return false
}

// New constructs an *Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap constructs an *Error of the given kind around a cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Sentinels usable with errors.Is(err, zwerror.ErrTransportClosed).
var (
	ErrTransportClosed       = &Error{Kind: KindTransportClosed, Msg: "transport closed"}
	ErrFrameChecksumMismatch = &Error{Kind: KindFrameChecksumMismatch, Msg: "frame checksum mismatch"}
	ErrFrameTimeout          = &Error{Kind: KindFrameTimeout, Msg: "frame timeout"}
	ErrACKTimeout            = &Error{Kind: KindACKTimeout, Msg: "ack timeout"}
	ErrCanNak                = &Error{Kind: KindCanNak, Msg: "can or nak"}
	ErrResponseTimeout       = &Error{Kind: KindResponseTimeout, Msg: "response timeout"}
	ErrCallbackTimeout       = &Error{Kind: KindCallbackTimeout, Msg: "callback timeout"}
	ErrMalformedMessage      = &Error{Kind: KindMalformedMessage, Msg: "malformed message"}
	ErrUnknownFunction       = &Error{Kind: KindUnknownFunction, Msg: "unknown function"}
	ErrMalformedCC           = &Error{Kind: KindMalformedCC, Msg: "malformed command class"}
	ErrNodeTimeout           = &Error{Kind: KindNodeTimeout, Msg: "node timeout"}
	ErrSecurityNonceMissing  = &Error{Kind: KindSecurityNonceMissing, Msg: "security nonce missing"}
	ErrSecurityMACFailed     = &Error{Kind: KindSecurityMACFailed, Msg: "security mac failed"}
	ErrCancelled             = &Error{Kind: KindCancelled, Msg: "cancelled"}
)
