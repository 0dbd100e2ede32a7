// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package serialport binds serial peripherals to owuart.Transmitter and
// owuart.Receiver.
//
// Bugst and Tarm open a serial device on a host (e.g. a USB UART adapter)
// with go.bug.st/serial and github.com/tarm/serial respectively. UARTX wraps
// a TinyGo RP2040 UART and is only built with the rp2040 tag.
//
// Each type implements both interfaces, pass the same value twice to
// owuart.New.
package serialport

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

// someReader is the part of owuart.Receiver that ReadExact is built on.
type someReader interface {
	ReadSome(ctx context.Context, p []byte) (int, error)
}

// readFull calls ReadSome until p is full or an error occurs.
func readFull(ctx context.Context, r someReader, p []byte) error {
	for len(p) != 0 {
		n, err := r.ReadSome(ctx, p)
		p = p[n:]
		if err != nil && len(p) != 0 {
			return err
		}
	}
	return nil
}

// baud converts a bit rate to the integer rate serial drivers expect.
func baud(f physic.Frequency) (int, error) {
	b := int(f / physic.Hertz)
	if b <= 0 {
		return 0, fmt.Errorf("serialport: invalid bit rate %s", f)
	}
	return b, nil
}

// errClosed is returned when using a port after Close.
var errClosed = errors.New("serialport: port closed")
