// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owuarttest is meant to be used to test drivers using owuart
// without a serial port.
package owuarttest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/physic"
)

// Pulled is what a character reads back as when a device holds the line low
// from about 15µs into the slot: the start bit and the first data bit are
// low, the master released the rest.
const Pulled byte = 0xFC

// Wire simulates a UART in half-duplex mode connected to a 1-wire line.
//
// Tx and Rx return its owuart.Transmitter and owuart.Receiver halves. Every
// character written is echoed into the receive buffer, modified by the
// simulated device:
//
//   - at ResetRate, the echo of each character is Presence if Device is set,
//     otherwise the character itself;
//   - at any other rate, each write is processed 8 characters at a time; the
//     next mask popped from Pulls tells which slots a device pulls low, bit i
//     for slot i.
//
// A character written while the transmit and receive rates differ is echoed
// as 0x00, like a framing error.
type Wire struct {
	sync.Mutex
	// ResetRate identifies the reset pulse rate.
	ResetRate physic.Frequency
	// Device enables the simulated device.
	Device bool
	// Presence is the echo of the reset pulse when Device is set.
	Presence byte
	// Silent drops all echoes, as if RX was disconnected.
	Silent bool
	// Pulls lists per byte exchange masks of slots pulled low by the device.
	Pulls []byte
	// Pending is read before any echo, as stale input.
	Pending []byte

	// Errors returned by every matching call while set.
	WriteErr  error
	ReadErr   error
	TxRateErr error
	RxRateErr error

	// Recorded activity.
	TxRate    physic.Frequency
	RxRate    physic.Frequency
	TxRates   []physic.Frequency
	RxRates   []physic.Frequency
	Writes    [][]byte
	Exchanges int

	rx []byte
}

// NewWire returns a Wire with a device answering resets with presence, both
// halves already at bitRate.
func NewWire(presence byte, resetRate, bitRate physic.Frequency) *Wire {
	return &Wire{
		ResetRate: resetRate,
		Device:    true,
		Presence:  presence,
		TxRate:    bitRate,
		RxRate:    bitRate,
	}
}

// Tx returns the transmitting half.
func (w *Wire) Tx() *Tx { return &Tx{w: w} }

// Rx returns the receiving half.
func (w *Wire) Rx() *Rx { return &Rx{w: w} }

// Tx is the transmitting half of a Wire.
type Tx struct{ w *Wire }

// Write implements owuart.Transmitter.
func (t *Tx) Write(p []byte) (int, error) { return t.w.write(p) }

// SetBitRate implements owuart.Transmitter.
func (t *Tx) SetBitRate(f physic.Frequency) error {
	w := t.w
	w.Lock()
	defer w.Unlock()
	if w.TxRateErr != nil {
		return w.TxRateErr
	}
	w.TxRate = f
	w.TxRates = append(w.TxRates, f)
	return nil
}

// Rx is the receiving half of a Wire.
type Rx struct{ w *Wire }

// ReadSome implements owuart.Receiver.
func (r *Rx) ReadSome(ctx context.Context, p []byte) (int, error) {
	return r.w.readSome(ctx, p)
}

// ReadExact implements owuart.Receiver.
func (r *Rx) ReadExact(ctx context.Context, p []byte) error {
	return r.w.readExact(ctx, p)
}

// SetBitRate implements owuart.Receiver.
func (r *Rx) SetBitRate(f physic.Frequency) error {
	w := r.w
	w.Lock()
	defer w.Unlock()
	if w.RxRateErr != nil {
		return w.RxRateErr
	}
	w.RxRate = f
	w.RxRates = append(w.RxRates, f)
	return nil
}

// Reply queues bytes that the device sends during the next read slots.
func (w *Wire) Reply(data ...byte) {
	w.Lock()
	defer w.Unlock()
	for _, b := range data {
		w.Pulls = append(w.Pulls, ^b)
	}
}

// Skip queues n exchanges during which the device does not pull the line.
func (w *Wire) Skip(n int) {
	w.Lock()
	defer w.Unlock()
	for i := 0; i < n; i++ {
		w.Pulls = append(w.Pulls, 0)
	}
}

// Buffered returns the number of characters waiting to be read.
func (w *Wire) Buffered() int {
	w.Lock()
	defer w.Unlock()
	return len(w.Pending) + len(w.rx)
}

func (w *Wire) write(p []byte) (int, error) {
	w.Lock()
	defer w.Unlock()
	if w.WriteErr != nil {
		return 0, w.WriteErr
	}
	w.Writes = append(w.Writes, append([]byte(nil), p...))
	if w.Silent {
		return len(p), nil
	}
	if w.TxRate != w.RxRate {
		w.rx = append(w.rx, make([]byte, len(p))...)
		return len(p), nil
	}
	if w.TxRate == w.ResetRate {
		for _, c := range p {
			if w.Device {
				c = w.Presence
			}
			w.rx = append(w.rx, c)
		}
		return len(p), nil
	}
	for i := 0; i < len(p); i += 8 {
		var mask byte
		if len(w.Pulls) != 0 {
			mask = w.Pulls[0]
			w.Pulls = w.Pulls[1:]
		}
		for j := i; j < i+8 && j < len(p); j++ {
			c := p[j]
			if mask&(1<<uint(j-i)) != 0 {
				c &= Pulled
			}
			w.rx = append(w.rx, c)
		}
		w.Exchanges++
	}
	return len(p), nil
}

func (w *Wire) readSome(ctx context.Context, p []byte) (int, error) {
	w.Lock()
	if w.ReadErr != nil {
		w.Unlock()
		return 0, w.ReadErr
	}
	n := w.take(p)
	w.Unlock()
	if n != 0 || len(p) == 0 {
		return n, nil
	}
	return 0, w.wait(ctx)
}

func (w *Wire) readExact(ctx context.Context, p []byte) error {
	w.Lock()
	if w.ReadErr != nil {
		w.Unlock()
		return w.ReadErr
	}
	if w.available() < len(p) {
		w.Unlock()
		return w.wait(ctx)
	}
	w.take(p)
	w.Unlock()
	return nil
}

// Close verifies that all scripted device replies were consumed.
func (w *Wire) Close() error {
	w.Lock()
	defer w.Unlock()
	if len(w.Pulls) != 0 {
		return fmt.Errorf("owuarttest: %d exchanges not consumed", len(w.Pulls))
	}
	return nil
}

//

func (w *Wire) available() int {
	return len(w.Pending) + len(w.rx)
}

func (w *Wire) take(p []byte) int {
	n := copy(p, w.Pending)
	w.Pending = w.Pending[n:]
	m := copy(p[n:], w.rx)
	w.rx = w.rx[m:]
	return n + m
}

// wait blocks until ctx is done. Data never arrives asynchronously on a Wire
// so without a deadline it fails right away instead of hanging the test.
func (w *Wire) wait(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		return io.ErrUnexpectedEOF
	}
	<-ctx.Done()
	return ctx.Err()
}

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("owuarttest: injected failure")
