// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sampler periodically reads a thermometer and publishes the latest
// reading for other goroutines.
//
// Each cycle runs a full conversion and read. A failed cycle publishes an
// invalid Reading instead of keeping the previous one, so consumers never
// mistake a stale value for a fresh one.
package sampler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/GermanBionicSystems/uartwire/latest"
	"periph.io/x/conn/v3/physic"
)

// Sensor is a thermometer reporting in 1/16°C units, like the DS18B20.
type Sensor interface {
	// Convert starts a conversion and waits for it to complete.
	Convert() error
	// RawTemp reads the result of the last conversion.
	RawTemp() (int16, error)
}

// ErrNoReading is the error of the Reading published before the first
// cycle completes.
var ErrNoReading = errors.New("sampler: no reading yet")

// Reading is one sampling cycle outcome.
type Reading struct {
	// Raw is the temperature in 1/16°C units.
	Raw         int16
	Temperature physic.Temperature
	// At is when the cycle completed.
	At time.Time
	// Err is set when the cycle failed. Raw and Temperature are then
	// meaningless.
	Err error
}

// Valid returns true if the reading holds a temperature.
func (r *Reading) Valid() bool {
	return r.Err == nil
}

func (r *Reading) String() string {
	if r.Err != nil {
		return "invalid: " + r.Err.Error()
	}
	return r.Temperature.String()
}

// Opts contains options to pass to the constructor.
type Opts struct {
	// Interval is the time between the start of two cycles.
	Interval time.Duration
	// Retries is the number of extra attempts of a failed cycle before an
	// invalid reading is published.
	Retries int
	// Logger receives one message per cycle. nil disables logging.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Interval: time.Second,
	Retries:  2,
}

// New returns a Sampler reading s.
//
// Its cell starts with a Reading carrying ErrNoReading.
func New(s Sensor, opts *Opts) *Sampler {
	if opts == nil {
		opts = &DefaultOpts
	}
	smp := &Sampler{sensor: s, opts: *opts}
	if smp.opts.Logger == nil {
		smp.opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	smp.cell.Signal(Reading{Err: ErrNoReading})
	return smp
}

// Sampler owns a Sensor and publishes its readings.
type Sampler struct {
	sensor Sensor
	opts   Opts
	cell   latest.Cell[Reading]
}

// Latest returns the cell readings are published to.
func (s *Sampler) Latest() *latest.Cell[Reading] {
	return &s.cell
}

// Run samples every Interval until ctx is done, then returns ctx.Err().
//
// The first cycle starts immediately. Run must not be called concurrently
// with itself or Sample.
func (s *Sampler) Run(ctx context.Context) error {
	if s.opts.Interval <= 0 {
		return errors.New("sampler: invalid interval")
	}
	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()
	for {
		s.Sample()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Sample runs one cycle, publishes its outcome and returns it.
func (s *Sampler) Sample() Reading {
	log := s.opts.Logger
	var r Reading
	for attempt := 0; ; attempt++ {
		r = s.read()
		if r.Err == nil || attempt >= s.opts.Retries {
			break
		}
		log.Debug("sampler: retrying", "attempt", attempt+1, "err", r.Err)
	}
	if r.Err != nil {
		log.Warn("sampler: reading failed", "err", r.Err)
	} else {
		log.Info("sampler: reading", "raw", r.Raw, "temperature", r.Temperature)
	}
	s.cell.Signal(r)
	return r
}

func (s *Sampler) read() Reading {
	if err := s.sensor.Convert(); err != nil {
		return Reading{At: now(), Err: err}
	}
	raw, err := s.sensor.RawTemp()
	if err != nil {
		return Reading{At: now(), Err: err}
	}
	return Reading{
		Raw:         raw,
		Temperature: physic.Temperature(raw)*physic.Kelvin/16 + physic.ZeroCelsius,
		At:          now(),
	}
}

var now = time.Now
