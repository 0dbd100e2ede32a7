// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

//go:build !tinygo

package serialport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
	"periph.io/x/conn/v3/physic"
)

// tarmPoll is the read timeout of the underlying port. On POSIX systems
// tarm/serial rounds it to tenths of a second, so reads may overrun a context
// deadline by up to this much.
const tarmPoll = 100 * time.Millisecond

// Tarm is a host serial port opened with github.com/tarm/serial.
//
// tarm/serial cannot change the rate of an open port: SetBitRate closes and
// reopens it, discarding pending input.
type Tarm struct {
	cfg  serial.Config
	port io.ReadWriteCloser
}

// OpenTarm opens the serial device name at rate, 8N1.
func OpenTarm(name string, rate physic.Frequency) (*Tarm, error) {
	b, err := baud(rate)
	if err != nil {
		return nil, err
	}
	t := &Tarm{cfg: serial.Config{
		Name:        name,
		Baud:        b,
		ReadTimeout: tarmPoll,
		Size:        serial.DefaultSize,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
	}}
	if err := t.open(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Tarm) String() string {
	return fmt.Sprintf("tarm(%s@%d)", t.cfg.Name, t.cfg.Baud)
}

// Write implements owuart.Transmitter.
func (t *Tarm) Write(p []byte) (int, error) {
	if t.port == nil {
		return 0, errClosed
	}
	n, err := t.port.Write(p)
	if err == nil && n != len(p) {
		err = io.ErrShortWrite
	}
	return n, err
}

// SetBitRate implements owuart.Transmitter and owuart.Receiver.
func (t *Tarm) SetBitRate(f physic.Frequency) error {
	b, err := baud(f)
	if err != nil {
		return err
	}
	if b == t.cfg.Baud && t.port != nil {
		return nil
	}
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return err
		}
		t.port = nil
	}
	t.cfg.Baud = b
	return t.open()
}

// ReadSome implements owuart.Receiver.
func (t *Tarm) ReadSome(ctx context.Context, p []byte) (int, error) {
	if t.port == nil {
		return 0, errClosed
	}
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := t.port.Read(p)
		if n != 0 {
			return n, nil
		}
		// POSIX reports a read timeout as io.EOF, Windows as no data.
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, err
		}
	}
}

// ReadExact implements owuart.Receiver.
func (t *Tarm) ReadExact(ctx context.Context, p []byte) error {
	return readFull(ctx, t, p)
}

// Close closes the serial port.
func (t *Tarm) Close() error {
	if t.port == nil {
		return errClosed
	}
	err := t.port.Close()
	t.port = nil
	return err
}

func (t *Tarm) open() error {
	cfg := t.cfg
	p, err := serial.OpenPort(&cfg)
	if err != nil {
		return fmt.Errorf("serialport: failed to open %s: %w", t.cfg.Name, err)
	}
	t.port = p
	return nil
}
