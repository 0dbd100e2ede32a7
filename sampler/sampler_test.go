// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sampler

import (
	"context"
	"errors"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestSample(t *testing.T) {
	s := &fakeSensor{raw: []int16{0x01e0}}
	smp := New(s, &Opts{Interval: time.Second})
	r, ok := smp.Latest().Peek()
	if !ok || !errors.Is(r.Err, ErrNoReading) {
		t.Fatalf("initial reading: %v", r.Err)
	}
	r = smp.Sample()
	if !r.Valid() {
		t.Fatal(r.Err)
	}
	if r.Raw != 0x01e0 {
		t.Fatalf("raw %#x", r.Raw)
	}
	if r.Temperature != 30*physic.Celsius+physic.ZeroCelsius {
		t.Fatalf("temperature %s", r.Temperature)
	}
	if !r.At.Equal(epoch) {
		t.Fatalf("at %s", r.At)
	}
	got, ok := smp.Latest().TryTake()
	if !ok || got != r {
		t.Fatalf("published %#v", got)
	}
	if s.converts != 1 {
		t.Fatalf("converts %d", s.converts)
	}
}

func TestSample_negative(t *testing.T) {
	s := &fakeSensor{raw: []int16{-0x0190}}
	r := New(s, nil).Sample()
	if r.Temperature != physic.ZeroCelsius-25*physic.Kelvin {
		t.Fatalf("temperature %s", r.Temperature)
	}
	if r.String() != "-25°C" {
		t.Fatal(r.String())
	}
}

func TestSample_retry(t *testing.T) {
	s := &fakeSensor{
		convertErr: []error{errBus, nil},
		raw:        []int16{0x0010},
	}
	r := New(s, &Opts{Interval: time.Second, Retries: 1}).Sample()
	if !r.Valid() {
		t.Fatal(r.Err)
	}
	if s.converts != 2 {
		t.Fatalf("converts %d", s.converts)
	}
}

func TestSample_fail(t *testing.T) {
	s := &fakeSensor{
		convertErr: []error{nil, nil, nil},
		readErr:    []error{errBus, errBus, errBus},
	}
	smp := New(s, &Opts{Interval: time.Second, Retries: 2})
	r := smp.Sample()
	if r.Valid() || !errors.Is(r.Err, errBus) {
		t.Fatalf("expected failure, got %v", r.Err)
	}
	if s.converts != 3 {
		t.Fatalf("converts %d", s.converts)
	}
	if r.String() != "invalid: bus" {
		t.Fatal(r.String())
	}
	got, _ := smp.Latest().Peek()
	if got.Valid() {
		t.Fatal("failure must replace the published reading")
	}
}

func TestRun(t *testing.T) {
	s := &fakeSensor{raw: []int16{1, 2, 3, 4, 5, 6, 7, 8}}
	smp := New(s, &Opts{Interval: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() { done <- smp.Run(ctx) }()

	// Skip the initial reading.
	for {
		r, err := smp.Latest().Wait(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if r.Valid() {
			break
		}
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() = %v", err)
	}
}

func TestRun_fail_interval(t *testing.T) {
	smp := New(&fakeSensor{}, &Opts{})
	if smp.Run(context.Background()) == nil {
		t.Fatal("invalid interval")
	}
}

//

var errBus = errors.New("bus")

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeSensor returns scripted results, then repeats the last raw value.
type fakeSensor struct {
	convertErr []error
	readErr    []error
	raw        []int16
	converts   int
}

func (f *fakeSensor) Convert() error {
	f.converts++
	if len(f.convertErr) == 0 {
		return nil
	}
	err := f.convertErr[0]
	f.convertErr = f.convertErr[1:]
	return err
}

func (f *fakeSensor) RawTemp() (int16, error) {
	if len(f.readErr) != 0 {
		err := f.readErr[0]
		f.readErr = f.readErr[1:]
		if err != nil {
			return 0, err
		}
	}
	if len(f.raw) == 0 {
		return 0, nil
	}
	v := f.raw[0]
	if len(f.raw) > 1 {
		f.raw = f.raw[1:]
	}
	return v, nil
}

func init() {
	now = func() time.Time { return epoch }
}
