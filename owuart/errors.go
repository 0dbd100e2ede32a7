// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"context"
	"errors"
)

// Kind identifies the class of a transport failure.
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ConfigurationFailed means the serial peripheral rejected a bit rate
	// change. It indicates a platform mismatch, retrying will not help.
	ConfigurationFailed Kind = "configuration failed"
	// TransmitFailed means the serial peripheral failed to send characters.
	TransmitFailed Kind = "transmit failed"
	// ReceiveFailed means reading back a time slot failed.
	ReceiveFailed Kind = "receive failed"
	// ReceiveTimeout means the read back of a time slot did not arrive in
	// time.
	ReceiveTimeout Kind = "receive timeout"
)

// Sentinel values usable with errors.Is.
var (
	ErrConfigurationFailed error = ConfigurationFailed
	ErrTransmitFailed      error = TransmitFailed
	ErrReceiveFailed       error = ReceiveFailed
	ErrReceiveTimeout      error = ReceiveTimeout
)

// Error is returned by Dev when the serial peripheral misbehaves.
//
// It does not implement onewire.BusError: the fault is in the UART, not on
// the 1-wire bus.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	s := "owuart: " + e.Op + ": " + string(e.Kind)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind carried by err, or "" if err was not produced by
// this package.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func newError(k Kind, op string, err error) error {
	return &Error{Kind: k, Op: op, Err: err}
}

// receiveError classifies a read failure as a timeout or a plain failure.
func receiveError(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(ReceiveTimeout, op, err)
	}
	return newError(ReceiveFailed, op, err)
}

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }
