// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !tinygo

package serialport

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"periph.io/x/conn/v3/physic"
)

// bugstPort is the subset of serial.Port used by Bugst.
type bugstPort interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Drain() error
	ResetInputBuffer() error
	SetMode(mode *serial.Mode) error
	SetReadTimeout(t time.Duration) error
	Close() error
}

// Bugst is a host serial port opened with go.bug.st/serial.
//
// The bit rate is changed in place without closing the port.
type Bugst struct {
	name string
	port bugstPort
	mode serial.Mode
}

// OpenBugst opens the serial device name at rate, 8N1.
func OpenBugst(name string, rate physic.Frequency) (*Bugst, error) {
	b, err := baud(rate)
	if err != nil {
		return nil, err
	}
	mode := serial.Mode{
		BaudRate: b,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, &mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: failed to open %s: %w", name, err)
	}
	if err := p.ResetInputBuffer(); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serialport: %s: %w", name, err)
	}
	return &Bugst{name: name, port: p, mode: mode}, nil
}

func (b *Bugst) String() string {
	return fmt.Sprintf("bugst(%s@%d)", b.name, b.mode.BaudRate)
}

// Write implements owuart.Transmitter.
//
// It waits for the output buffer to drain so that the characters are on the
// wire when it returns.
func (b *Bugst) Write(p []byte) (int, error) {
	n, err := b.port.Write(p)
	if err != nil {
		return n, err
	}
	if n != len(p) {
		return n, io.ErrShortWrite
	}
	return n, b.port.Drain()
}

// SetBitRate implements owuart.Transmitter and owuart.Receiver.
func (b *Bugst) SetBitRate(f physic.Frequency) error {
	r, err := baud(f)
	if err != nil {
		return err
	}
	if r == b.mode.BaudRate {
		return nil
	}
	mode := b.mode
	mode.BaudRate = r
	if err := b.port.SetMode(&mode); err != nil {
		return err
	}
	b.mode = mode
	return nil
}

// ReadSome implements owuart.Receiver.
func (b *Bugst) ReadSome(ctx context.Context, p []byte) (int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		t := serial.NoTimeout
		if dl, ok := ctx.Deadline(); ok {
			if t = time.Until(dl); t <= 0 {
				return 0, context.DeadlineExceeded
			}
		}
		if err := b.port.SetReadTimeout(t); err != nil {
			return 0, err
		}
		// A timeout returns 0 bytes and no error.
		n, err := b.port.Read(p)
		if n != 0 || err != nil {
			return n, err
		}
	}
}

// ReadExact implements owuart.Receiver.
func (b *Bugst) ReadExact(ctx context.Context, p []byte) error {
	return readFull(ctx, b, p)
}

// Close closes the serial port.
func (b *Bugst) Close() error {
	if b.port == nil {
		return errClosed
	}
	err := b.port.Close()
	b.port = nil
	return err
}
