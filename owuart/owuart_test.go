// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owuart

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/GermanBionicSystems/uartwire/owuart/owuarttest"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/physic"
)

func TestEncodeByte(t *testing.T) {
	got := EncodeByte(0x01)
	want := [8]byte{Logic1, Logic0, Logic0, Logic0, Logic0, Logic0, Logic0, Logic0}
	if got != want {
		t.Fatalf("EncodeByte(0x01) = %#v, want %#v", got, want)
	}
	if got := EncodeByte(0xA0); got != [8]byte{0, 0, 0, 0, 0, 0xFF, 0, 0xFF} {
		t.Fatalf("EncodeByte(0xA0) = %#v", got)
	}
	for i := 0; i < 256; i++ {
		if b := DecodeSlots(EncodeByte(byte(i))); b != byte(i) {
			t.Fatalf("DecodeSlots(EncodeByte(%#x)) = %#x", i, b)
		}
	}
}

func TestDecodeSlots(t *testing.T) {
	data := []struct {
		slots [8]byte
		want  byte
	}{
		{[8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0xFF},
		{[8]byte{0xFE, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, 0xFE},
		{[8]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x7F}, 0x7F},
		{[8]byte{0xF0, 0x00, 0xFF, 0xE0, 0xFF, 0xFF, 0x80, 0xFF}, 0xB4},
	}
	for i, line := range data {
		if got := DecodeSlots(line.slots); got != line.want {
			t.Errorf("#%d: DecodeSlots() = %#x, want %#x", i, got, line.want)
		}
	}
}

func TestWriteReadByte_echo(t *testing.T) {
	w := newWire()
	d := New(w.Tx(), w.Rx(), &testOpts)
	for i := 0; i < 256; i++ {
		got, err := d.WriteReadByte(context.Background(), byte(i))
		if err != nil {
			t.Fatal(err)
		}
		if got != byte(i) {
			t.Fatalf("WriteReadByte(%#x) = %#x", i, got)
		}
	}
	if w.Buffered() != 0 {
		t.Fatalf("%d characters left unread", w.Buffered())
	}
	if len(w.Writes) != 256 || len(w.Writes[0]) != 8 {
		t.Fatalf("unexpected writes: %d", len(w.Writes))
	}
}

func TestWriteReadByte_pulled(t *testing.T) {
	masks := []byte{0x01, 0x80, 0x0F, 0x55, 0xAA, 0xFF}
	for _, m := range masks {
		w := newWire()
		d := New(w.Tx(), w.Rx(), &testOpts)
		for i := 0; i < 256; i++ {
			w.Pulls = append(w.Pulls, m)
			got, err := d.WriteReadByte(context.Background(), byte(i))
			if err != nil {
				t.Fatal(err)
			}
			if want := byte(i) &^ m; got != want {
				t.Fatalf("WriteReadByte(%#x) pulled %#x = %#x, want %#x", i, m, got, want)
			}
		}
		if err := w.Close(); err != nil {
			t.Fatal(err)
		}
	}
}

func TestWriteReadByte_scenarios(t *testing.T) {
	w := newWire()
	d := New(w.Tx(), w.Rx(), &testOpts)
	if got, err := d.WriteReadByte(context.Background(), 0x00); err != nil || got != 0x00 {
		t.Fatalf("recessive bus: %#x, %v", got, err)
	}
	w.Pulls = []byte{0xFF}
	if got, err := d.WriteReadByte(context.Background(), 0xFF); err != nil || got != 0x00 {
		t.Fatalf("all slots pulled: %#x, %v", got, err)
	}
}

func TestReadByte(t *testing.T) {
	w := newWire()
	d := New(w.Tx(), w.Rx(), &testOpts)
	if got, err := d.ReadByte(context.Background()); err != nil || got != 0xFF {
		t.Fatalf("ReadByte() = %#x, %v", got, err)
	}
	if !reflect.DeepEqual(w.Writes[0], []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Fatalf("read slots: %#v", w.Writes[0])
	}
	for i := uint(0); i < 8; i++ {
		w.Pulls = []byte{1 << i}
		got, err := d.ReadByte(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := ^byte(1 << i); got != want {
			t.Fatalf("bit %d pulled: %#x, want %#x", i, got, want)
		}
	}
	w.Reply(0x28)
	if got, _ := d.ReadByte(context.Background()); got != 0x28 {
		t.Fatalf("Reply(0x28) read %#x", got)
	}
}

func TestWriteReadByte_errors(t *testing.T) {
	w := newWire()
	w.WriteErr = owuarttest.ErrInjected
	d := New(w.Tx(), w.Rx(), &testOpts)
	_, err := d.WriteReadByte(context.Background(), 0x44)
	if !errors.Is(err, ErrTransmitFailed) || !errors.Is(err, owuarttest.ErrInjected) {
		t.Fatalf("expected transmit failure, got %v", err)
	}
	if KindOf(err) != TransmitFailed {
		t.Fatalf("KindOf() = %q", KindOf(err))
	}

	w = newWire()
	w.ReadErr = owuarttest.ErrInjected
	d = New(w.Tx(), w.Rx(), &testOpts)
	if _, err = d.ReadByte(context.Background()); !errors.Is(err, ErrReceiveFailed) {
		t.Fatalf("expected receive failure, got %v", err)
	}

	w = newWire()
	w.Silent = true
	d = New(w.Tx(), w.Rx(), &testOpts)
	_, err = d.ReadByte(context.Background())
	if !errors.Is(err, ErrReceiveTimeout) || errors.Is(err, ErrReceiveFailed) {
		t.Fatalf("expected receive timeout, got %v", err)
	}
	if s := err.Error(); s != "owuart: read: receive timeout: context deadline exceeded" {
		t.Fatal(s)
	}
	var e *Error
	if !errors.As(err, &e) || e.Op != "read" {
		t.Fatalf("errors.As() failed: %#v", e)
	}
}

func TestOpts_Present(t *testing.T) {
	data := []struct {
		resp byte
		want bool
	}{
		{0x00, true},
		{0xE0, true},
		{0xC0, true},
		{0x10, true},
		{0xF0, false},
		{0xFF, false},
		{0x01, false},
		{0xE8, false},
		{0x0F, false},
	}
	for _, line := range data {
		if got := DefaultOpts.Present(line.resp); got != line.want {
			t.Errorf("Present(%#x) = %t, want %t", line.resp, got, line.want)
		}
	}
	o := DefaultOpts
	o.AbsentHighMask = 0xE0
	if o.Present(0xE0) {
		t.Fatal("custom mask ignored")
	}
}

func TestReset_present(t *testing.T) {
	var sleeps []time.Duration
	sleep = func(d time.Duration) { sleeps = append(sleeps, d) }
	defer func() { sleep = func(time.Duration) {} }()

	w := newWire()
	w.Presence = 0x00
	d := New(w.Tx(), w.Rx(), &testOpts)
	present, err := d.Reset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected presence")
	}
	if !reflect.DeepEqual(w.Writes, [][]byte{{ResetPulse}}) {
		t.Fatalf("writes: %#v", w.Writes)
	}
	if !reflect.DeepEqual(sleeps, []time.Duration{1100 * time.Microsecond}) {
		t.Fatalf("sleeps: %v", sleeps)
	}
	checkRates(t, w)
}

func TestReset_absent(t *testing.T) {
	for _, resp := range []byte{0xF0, 0xFF, 0x01, 0xE8} {
		w := newWire()
		w.Presence = resp
		d := New(w.Tx(), w.Rx(), &testOpts)
		present, err := d.Reset(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if present {
			t.Fatalf("%#x: expected no device", resp)
		}
		checkRates(t, w)
	}

	// No device at all: the reset pulse echoes unchanged.
	w := newWire()
	w.Device = false
	d := New(w.Tx(), w.Rx(), &testOpts)
	if present, err := d.Reset(context.Background()); present || err != nil {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
}

func TestReset_timeout(t *testing.T) {
	w := newWire()
	w.Silent = true
	d := New(w.Tx(), w.Rx(), &testOpts)
	present, err := d.Reset(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected no device")
	}
	checkRates(t, w)
}

func TestReset_readError(t *testing.T) {
	w := newWire()
	w.ReadErr = owuarttest.ErrInjected
	d := New(w.Tx(), w.Rx(), &testOpts)
	if present, err := d.Reset(context.Background()); present || err != nil {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	checkRates(t, w)
}

func TestReset_drain(t *testing.T) {
	w := newWire()
	w.Pending = make([]byte, 50)
	d := New(w.Tx(), w.Rx(), &testOpts)
	present, err := d.Reset(context.Background())
	if err != nil || !present {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	if w.Buffered() != 0 {
		t.Fatalf("%d characters left", w.Buffered())
	}
}

func TestReset_configFailed(t *testing.T) {
	w := newWire()
	w.RxRateErr = owuarttest.ErrInjected
	d := New(w.Tx(), w.Rx(), &testOpts)
	present, err := d.Reset(context.Background())
	if present || !errors.Is(err, ErrConfigurationFailed) {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	if len(w.Writes) != 0 {
		t.Fatalf("reset pulse sent with inconsistent rates: %#v", w.Writes)
	}

	// Failing to restore the slot rate is reported too.
	w = newWire()
	d = New(w.Tx(), w.Rx(), &testOpts)
	tx := &failingRate{Transmitter: w.Tx(), after: 1}
	d.tx = tx
	if _, err := d.Reset(context.Background()); !errors.Is(err, ErrConfigurationFailed) {
		t.Fatalf("expected configuration failure, got %v", err)
	}
}

func TestReset_transmitFailed(t *testing.T) {
	w := newWire()
	w.WriteErr = owuarttest.ErrInjected
	d := New(w.Tx(), w.Rx(), &testOpts)
	present, err := d.Reset(context.Background())
	if present || !errors.Is(err, ErrTransmitFailed) {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	checkRates(t, w)
}

func TestTx(t *testing.T) {
	w := newWire()
	w.Skip(2)
	w.Reply(0x91, 0x01)
	d := New(w.Tx(), w.Rx(), &testOpts)
	var r [2]byte
	if err := d.Tx([]byte{SkipROM, 0xBE}, r[:], onewire.WeakPullup); err != nil {
		t.Fatal(err)
	}
	if r != [2]byte{0x91, 0x01} {
		t.Fatalf("read %#v", r)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	want := [][]byte{{ResetPulse}, slots(SkipROM), slots(0xBE), slots(0xFF), slots(0xFF)}
	if !reflect.DeepEqual(w.Writes, want) {
		t.Fatalf("writes: %#v", w.Writes)
	}

	// Strong pull-up is accepted.
	if err := d.Tx([]byte{SkipROM, 0x44}, nil, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
}

func TestTx_noDevice(t *testing.T) {
	w := newWire()
	w.Device = false
	d := New(w.Tx(), w.Rx(), &testOpts)
	err := d.Tx([]byte{SkipROM}, nil, onewire.WeakPullup)
	if err == nil {
		t.Fatal("expected error")
	}
	if be, ok := err.(onewire.BusError); !ok || !be.BusError() {
		t.Fatalf("expected onewire.BusError, got %#v", err)
	}
	if len(w.Writes) != 1 {
		t.Fatalf("unexpected writes after missing presence: %#v", w.Writes)
	}
}

func TestSearch(t *testing.T) {
	w := newWire()
	d := New(w.Tx(), w.Rx(), nil)
	if a, err := d.Search(false); a != nil || err == nil {
		t.Fatal("search is not supported")
	}
	if s := d.String(); s != "owuart" {
		t.Fatal(s)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
}

//

var testOpts = Opts{
	ResetRate:       DefaultOpts.ResetRate,
	BitRate:         DefaultOpts.BitRate,
	ResetSettle:     DefaultOpts.ResetSettle,
	DrainTimeout:    time.Millisecond,
	PresenceTimeout: time.Millisecond,
	SlotTimeout:     time.Millisecond,
	AbsentLowMask:   DefaultOpts.AbsentLowMask,
	AbsentHighMask:  DefaultOpts.AbsentHighMask,
}

func newWire() *owuarttest.Wire {
	return owuarttest.NewWire(0xE0, DefaultOpts.ResetRate, DefaultOpts.BitRate)
}

func slots(b byte) []byte {
	s := EncodeByte(b)
	return s[:]
}

func checkRates(t *testing.T, w *owuarttest.Wire) {
	t.Helper()
	want := []physic.Frequency{9600 * physic.Hertz, 115200 * physic.Hertz}
	if !reflect.DeepEqual(w.TxRates, want) {
		t.Fatalf("tx rates: %v", w.TxRates)
	}
	if !reflect.DeepEqual(w.RxRates, want) {
		t.Fatalf("rx rates: %v", w.RxRates)
	}
}

// failingRate fails SetBitRate after a number of successful calls.
type failingRate struct {
	Transmitter
	after int
}

func (f *failingRate) SetBitRate(r physic.Frequency) error {
	if f.after == 0 {
		return owuarttest.ErrInjected
	}
	f.after--
	return f.Transmitter.SetBitRate(r)
}

func init() {
	sleep = func(time.Duration) {}
}
