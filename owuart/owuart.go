// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

// 1-wire ROM commands usable as the first byte after a reset.
const (
	// SkipROM addresses all devices on the bus at once.
	SkipROM byte = 0xCC
	// ReadROM reads the address of the only device on the bus.
	ReadROM byte = 0x33
	// MatchROM addresses the device whose 64 bit address follows.
	MatchROM byte = 0x55
)

// Transmitter is the sending half of a serial peripheral.
type Transmitter interface {
	// Write sends all of p and returns once the characters left the
	// peripheral. It returns a non-nil error if n < len(p).
	Write(p []byte) (n int, err error)
	// SetBitRate changes the transmit rate.
	SetBitRate(f physic.Frequency) error
}

// Receiver is the receiving half of a serial peripheral.
type Receiver interface {
	// ReadSome reads at most len(p) bytes, waiting for at least one until ctx
	// is done. On expiry it returns the number of bytes read so far and
	// ctx.Err().
	ReadSome(ctx context.Context, p []byte) (int, error)
	// ReadExact fills p or returns an error. It waits until ctx is done.
	ReadExact(ctx context.Context, p []byte) error
	// SetBitRate changes the receive rate.
	SetBitRate(f physic.Frequency) error
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// ResetRate is the bit rate used to generate the reset pulse. At 9600 bps
	// the ResetPulse character holds the line low for 520µs.
	ResetRate physic.Frequency
	// BitRate is the bit rate used for time slots. At 115200 bps one
	// character lasts about one 1-wire time slot.
	BitRate physic.Frequency

	// ResetSettle is how long to wait after queuing the reset pulse before
	// reading the response. It must cover a full character at ResetRate,
	// 1040µs at 9600 bps.
	ResetSettle time.Duration
	// DrainTimeout bounds each read while stale input is discarded before a
	// reset.
	DrainTimeout time.Duration
	// PresenceTimeout bounds the read of the reset response.
	PresenceTimeout time.Duration
	// SlotTimeout bounds reading back the 8 slots of one byte. 0 waits
	// forever.
	SlotTimeout time.Duration

	// The reset response is classified as "no device" if any bit of
	// AbsentLowMask is set, or if all bits of AbsentHighMask are set. These
	// are empirical and depend on the line capacitance and pull-up.
	AbsentLowMask  byte
	AbsentHighMask byte

	// Logger receives progress messages. nil disables logging.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ResetRate:       9600 * physic.Hertz,
	BitRate:         115200 * physic.Hertz,
	ResetSettle:     1100 * time.Microsecond,
	DrainTimeout:    time.Millisecond,
	PresenceTimeout: 10 * time.Millisecond,
	SlotTimeout:     10 * time.Millisecond,
	AbsentLowMask:   0x0F,
	AbsentHighMask:  0xF0,
}

// Present returns true if the character read back after a reset pulse shows
// that at least one device answered with a presence pulse.
//
// With no device the ResetPulse character is echoed unchanged (0xF0). A
// device stretches the low period into the high nibble. Bits set in the low
// nibble mean the reset pulse itself was cut short, which is treated as no
// device too.
func (o *Opts) Present(resp byte) bool {
	if resp&o.AbsentLowMask != 0 {
		return false
	}
	return resp&o.AbsentHighMask != o.AbsentHighMask
}

// New returns a 1-wire bus master driving the line through tx and rx.
//
// tx and rx are owned by the returned Dev; nothing else may use them while it
// is alive. They are commonly the same serial port.
func New(tx Transmitter, rx Receiver, opts *Opts) *Dev {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{tx: tx, rx: rx, opts: *opts}
	if d.opts.Logger == nil {
		d.opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d
}

// Dev is a 1-wire bus master on a half-duplex UART.
//
// It holds no state besides its two serial handles and is not safe for
// concurrent use: a single goroutine must own it and issue operations one at
// a time.
type Dev struct {
	tx   Transmitter
	rx   Receiver
	opts Opts
}

func (d *Dev) String() string {
	return "owuart"
}

// Halt implements conn.Resource.
func (d *Dev) Halt() error {
	return nil
}

// Reset issues a reset pulse and returns true if any device answered with a
// presence pulse.
//
// No answer, a read error or a malformed answer all report false without an
// error: an empty bus is a normal condition. An error is only returned when
// the bit rate could not be changed or the pulse could not be sent. In every
// case the time slot bit rate is restored before returning, if possible.
func (d *Dev) Reset(ctx context.Context) (present bool, err error) {
	log := d.opts.Logger
	log.Debug("owuart: reset")
	defer func() {
		if err2 := d.setBitRate("reset", d.opts.BitRate); err2 != nil && err == nil {
			present, err = false, err2
		}
	}()
	if err := d.setBitRate("reset", d.opts.ResetRate); err != nil {
		return false, err
	}

	d.drain(ctx)

	if err := d.write("reset", []byte{ResetPulse}); err != nil {
		return false, err
	}
	sleep(d.opts.ResetSettle)

	var buf [1]byte
	rctx, cancel := context.WithTimeout(ctx, d.opts.PresenceTimeout)
	n, rerr := d.rx.ReadSome(rctx, buf[:])
	cancel()
	switch {
	case rerr != nil && n == 0:
		log.Warn("owuart: no reset response", "err", rerr)
		buf[0] = 0xFF
	case n == 0:
		log.Warn("owuart: empty reset response")
		buf[0] = 0xFF
	}

	if !d.opts.Present(buf[0]) {
		log.Warn("owuart: no device present", "response", buf[0])
		return false, nil
	}
	log.Info("owuart: device present", "response", buf[0])
	return true, nil
}

// WriteReadByte sends b on the bus, least significant bit first, and returns
// what was observed on the line during the 8 time slots.
//
// A 0 bit always reads back as 0. A 1 bit reads back as 0 if a device pulled
// the line low during the slot, which is how devices send data.
func (d *Dev) WriteReadByte(ctx context.Context, b byte) (byte, error) {
	slots := EncodeByte(b)
	if err := d.write("write", slots[:]); err != nil {
		return 0, err
	}
	if d.opts.SlotTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.SlotTimeout)
		defer cancel()
	}
	if err := d.rx.ReadExact(ctx, slots[:]); err != nil {
		return 0, receiveError("read", err)
	}
	return DecodeSlots(slots), nil
}

// ReadByte reads one byte sent by a device. It is WriteReadByte(0xFF): the
// master only starts each slot and lets the device drive the line.
func (d *Dev) ReadByte(ctx context.Context) (byte, error) {
	return d.WriteReadByte(ctx, 0xFF)
}

// WriteRead sends w then reads len(r) bytes into r.
//
// It does not issue a reset.
func (d *Dev) WriteRead(ctx context.Context, w, r []byte) error {
	for _, b := range w {
		if _, err := d.WriteReadByte(ctx, b); err != nil {
			return err
		}
	}
	for i := range r {
		b, err := d.ReadByte(ctx)
		if err != nil {
			return err
		}
		r[i] = b
	}
	return nil
}

// Tx implements onewire.Bus.
//
// It resets the bus, sends w and reads len(r) bytes. A UART cannot source
// the current of a strong pull-up so power is ignored; parasite powered
// devices need an external pull-up strong enough for their conversions.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	ctx := context.Background()
	if present, err := d.Reset(ctx); err != nil {
		return err
	} else if !present {
		return busError("owuart: no device present")
	}
	if power == onewire.StrongPullup {
		d.opts.Logger.Debug("owuart: strong pull-up not supported, using weak pull-up")
	}
	return d.WriteRead(ctx, w, r)
}

// Search implements onewire.Bus.
//
// Enumerating devices requires the search algorithm's triplet operations
// which this bus master does not implement. Address all devices with SkipROM
// instead.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return nil, errors.New("owuart: ROM search is not supported")
}

//

// drain discards characters left in the receive buffer, e.g. line noise or
// echoes from a previous aborted exchange. It stops at the first read that
// returns nothing within DrainTimeout.
func (d *Dev) drain(ctx context.Context) {
	var buf [32]byte
	for ctx.Err() == nil {
		dctx, cancel := context.WithTimeout(ctx, d.opts.DrainTimeout)
		n, err := d.rx.ReadSome(dctx, buf[:])
		cancel()
		if n == 0 {
			return
		}
		d.opts.Logger.Debug("owuart: discarded stale input", "bytes", n)
		if err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return
		}
	}
}

func (d *Dev) write(op string, p []byte) error {
	if _, err := d.tx.Write(p); err != nil {
		return newError(TransmitFailed, op, err)
	}
	return nil
}

// setBitRate changes both halves of the peripheral.
func (d *Dev) setBitRate(op string, f physic.Frequency) error {
	if err := d.tx.SetBitRate(f); err != nil {
		return newError(ConfigurationFailed, op, err)
	}
	if err := d.rx.SetBitRate(f); err != nil {
		return newError(ConfigurationFailed, op, err)
	}
	d.opts.Logger.Debug("owuart: bit rate", "rate", f)
	return nil
}

var sleep = time.Sleep

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
