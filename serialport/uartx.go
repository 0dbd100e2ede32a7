// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build rp2040

package serialport

import (
	"context"

	"github.com/jangala-dev/tinygo-uartx/uartx"
	"periph.io/x/conn/v3/physic"
)

// UARTX is an RP2040 UART driven by the interrupt and ring buffer based
// uartx package.
//
// The UART must already be configured with its TX and RX pins connected to
// the 1-wire line.
type UARTX struct {
	u *uartx.UART
}

// NewUARTX wraps a configured UART, e.g. uartx.UART0.
func NewUARTX(u *uartx.UART) *UARTX {
	return &UARTX{u: u}
}

// Write implements owuart.Transmitter.
func (x *UARTX) Write(p []byte) (int, error) {
	return x.u.Write(p)
}

// SetBitRate implements owuart.Transmitter and owuart.Receiver.
func (x *UARTX) SetBitRate(f physic.Frequency) error {
	b, err := baud(f)
	if err != nil {
		return err
	}
	x.u.SetBaudRate(uint32(b))
	return nil
}

// ReadSome implements owuart.Receiver.
func (x *UARTX) ReadSome(ctx context.Context, p []byte) (int, error) {
	return x.u.RecvSomeContext(ctx, p)
}

// ReadExact implements owuart.Receiver.
func (x *UARTX) ReadExact(ctx context.Context, p []byte) error {
	return readFull(ctx, x, p)
}
