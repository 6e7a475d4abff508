// Package message converts frame.Frame payloads to and from typed
// host<->controller messages. The codec is pure: it performs no I/O, and
// every function is registered in a table so the set of supported
// functions is extensible without touching the dispatch logic
// (spec.md §4.2).
package message

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
	"fmt"

	"github.com/zwavelink/corezwave/frame"
)

// Function identifies a Serial API function (the frame's Function byte).
type Function uint8

// Serial API function identifiers this core implements.
const (
	FuncSerialAPIGetInitData        Function = 0x02
	FuncApplicationCommandHandler   Function = 0x04
	FuncZWGetControllerCapabilities Function = 0x05
	FuncSerialAPIGetCapabilities    Function = 0x07
	FuncMemoryGetID                 Function = 0x20
	FuncZWSendData                  Function = 0x13
	FuncZWGetVersion                Function = 0x15
	FuncZWGetNodeProtocolInfo       Function = 0x41
	FuncZWRequestNodeInfo           Function = 0x60
	FuncZWApplicationUpdate         Function = 0x49
)

func (f Function) String() string {
	switch f {
	case FuncSerialAPIGetInitData:
		return "SerialAPIGetInitData"
	case FuncApplicationCommandHandler:
		return "ApplicationCommandHandler"
	case FuncZWGetControllerCapabilities:
		return "ZWGetControllerCapabilities"
	case FuncSerialAPIGetCapabilities:
		return "SerialAPIGetCapabilities"
	case FuncMemoryGetID:
		return "MemoryGetID"
	case FuncZWSendData:
		return "ZWSendData"
	case FuncZWGetVersion:
		return "ZWGetVersion"
	case FuncZWGetNodeProtocolInfo:
		return "ZWGetNodeProtocolInfo"
	case FuncZWRequestNodeInfo:
		return "ZWRequestNodeInfo"
	case FuncZWApplicationUpdate:
		return "ZWApplicationUpdate"
	default:
		return fmt.Sprintf("Function(0x%02x)", uint8(f))
	}
}

// Command Class identifiers used directly by the message layer (ZWSendData
// addresses a command class payload opaquely; everything above the
// command class byte is the cc package's concern).
const (
	CommandClassBasic uint8 = 0x20
)

// Basic Command.
const (
	BasicCommandSet    uint8 = 0x01
	BasicCommandGet    uint8 = 0x02
	BasicCommandReport uint8 = 0x03
)

// TransmitOption flags for ZWSendData (spec.md §4.5).
const (
	TransmitOptionACK       uint8 = 0x01
	TransmitOptionLowPower  uint8 = 0x02
	TransmitOptionAutoRoute uint8 = 0x04
	TransmitOptionNoRoute   uint8 = 0x10
	TransmitOptionExplore   uint8 = 0x20
)

// TransmitStatus values carried by a ZWSendData callback (spec.md §4.5).
const (
	TransmitStatusOK      uint8 = 0x00
	TransmitStatusNoAck   uint8 = 0x01
	TransmitStatusFail    uint8 = 0x02
	TransmitStatusNotIdle uint8 = 0x03
	TransmitStatusNoRoute uint8 = 0x04
)

// ApplicationUpdate status values for FuncZWApplicationUpdate.
const (
	ApplicationUpdateStateReceived uint8 = 0x84
)

// MalformedPayload, UnknownFunction and PayloadTooShort are the error
// kinds the message codec itself reports (spec.md §4.2); they are plain
// errors here, wrapped into zwerror.KindMalformedMessage /
// zwerror.KindUnknownFunction by the caller that has transaction context.
type CodecError struct {
	Function Function
	Reason   string
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("message: function %s: %s", e.Function, e.Reason)
}

func errTooShort(fn Function, got, want int) error {
	return &CodecError{Function: fn, Reason: fmt.Sprintf("payload too short: got %d want >= %d", got, want)}
}

func errMalformed(fn Function, reason string) error {
	return &CodecError{Function: fn, Reason: reason}
}

// ErrUnknownFunction is returned by Lookup for an unregistered function.
type ErrUnknownFunction struct{ Function Function }

func (e *ErrUnknownFunction) Error() string {
	return fmt.Sprintf("message: unknown function 0x%02x", uint8(e.Function))
}

// Descriptor is the per-function table entry spec.md §4.2 requires:
// parse/serialize pairs for both directions of a function, any of which
// may be nil if that function never appears in that role.
type Descriptor struct {
	Name             string
	ParseRequest     func(f *frame.Frame) (interface{}, error)
	ParseResponse    func(f *frame.Frame) (interface{}, error)
	SerializeRequest func(v interface{}) (*frame.Frame, error)
}

var registry = map[Function]*Descriptor{}

// Register adds or replaces a function's descriptor. Called from this
// package's init() for built-in functions; exported so an application
// can extend the table with vendor-specific functions without touching
// dispatch logic, per spec.md §4.2's extensibility requirement.
func Register(fn Function, d *Descriptor) {
	registry[fn] = d
}

// Lookup returns the descriptor for fn, or ErrUnknownFunction.
func Lookup(fn Function) (*Descriptor, error) {
	d, ok := registry[fn]
	if !ok {
		return nil, &ErrUnknownFunction{Function: fn}
	}
	return d, nil
}

// ParseResponse parses f's payload as fn's response type.
func ParseResponse(fn Function, f *frame.Frame) (interface{}, error) {
	d, err := Lookup(fn)
	if err != nil {
		return nil, err
	}
	if d.ParseResponse == nil {
		return nil, errMalformed(fn, "function has no response parser")
	}
	return d.ParseResponse(f)
}

// ParseRequest parses f's payload as fn's request type (used for
// controller-originated callbacks delivered as Requests).
func ParseRequest(fn Function, f *frame.Frame) (interface{}, error) {
	d, err := Lookup(fn)
	if err != nil {
		return nil, err
	}
	if d.ParseRequest == nil {
		return nil, errMalformed(fn, "function has no request parser")
	}
	return d.ParseRequest(f)
}

// SerializeRequest builds a Request frame.Frame for fn from v.
func SerializeRequest(fn Function, v interface{}) (*frame.Frame, error) {
	d, err := Lookup(fn)
	if err != nil {
		return nil, err
	}
	if d.SerializeRequest == nil {
		return nil, errMalformed(fn, "function has no request serializer")
	}
	return d.SerializeRequest(v)
}

func init() {
	registerSerialAPI()
	registerZWSendData()
	registerNodeInfo()
	registerApplicationCommand()
}
