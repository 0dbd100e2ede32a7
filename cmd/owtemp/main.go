// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// owtemp reads a DS18B20 thermometer wired to a serial port used as a 1-wire
// bus master.
//
// TX and RX must be tied together through a diode or an open-drain buffer
// and pulled up to the sensor supply.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/GermanBionicSystems/uartwire/ds18b20"
	"github.com/GermanBionicSystems/uartwire/owuart"
	"github.com/GermanBionicSystems/uartwire/sampler"
	"github.com/GermanBionicSystems/uartwire/serialport"
	"github.com/GermanBionicSystems/uartwire/tempchart"
	"github.com/GermanBionicSystems/uartwire/thermobar"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

type port interface {
	owuart.Transmitter
	owuart.Receiver
	io.Closer
	fmt.Stringer
}

func openPort(backend, name string, rate physic.Frequency) (port, error) {
	switch backend {
	case "bugst":
		return serialport.OpenBugst(name, rate)
	case "tarm":
		return serialport.OpenTarm(name, rate)
	default:
		return nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func mainImpl() error {
	name := flag.String("port", "/dev/ttyUSB0", "serial port")
	backend := flag.String("backend", "bugst", "serial library: bugst or tarm")
	interval := flag.Duration("interval", time.Second, "sampling interval")
	resolution := flag.Int("resolution", 12, "DS18B20 resolution in bits, 9..12")
	retries := flag.Int("retries", sampler.DefaultOpts.Retries, "retries of a failed reading")
	count := flag.Int("count", 0, "stop after this many readings, 0 runs until interrupted")
	bar := flag.Bool("bar", false, "show readings as a color gauge")
	pngPath := flag.String("png", "", "write a chart of the readings to this PNG file on exit")
	verbose := flag.Bool("v", false, "verbose mode")
	flag.Parse()
	if flag.NArg() != 0 {
		return errors.New("unexpected argument, try -help")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if _, err := host.Init(); err != nil {
		return err
	}

	opts := owuart.DefaultOpts
	opts.Logger = logger
	p, err := openPort(*backend, *name, opts.BitRate)
	if err != nil {
		return err
	}
	defer p.Close()
	bus := owuart.New(p, p, &opts)

	dev, err := ds18b20.NewSingle(bus, *resolution)
	if err != nil {
		return fmt.Errorf("%s: %w", p, err)
	}
	logger.Info("found sensor", "dev", dev)

	var gauge *thermobar.Dev
	if *bar {
		if gauge, err = thermobar.New(&thermobar.DefaultOpts); err != nil {
			return err
		}
		defer gauge.Halt()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	smp := sampler.New(dev, &sampler.Opts{Interval: *interval, Retries: *retries, Logger: logger})
	done := make(chan error, 1)
	go func() { done <- smp.Run(ctx) }()

	var history tempchart.History
	for n := 0; *count == 0 || n < *count; {
		r, err := smp.Latest().Wait(ctx)
		if err != nil {
			break
		}
		if errors.Is(r.Err, sampler.ErrNoReading) {
			continue
		}
		n++
		if r.Valid() {
			history.Add(r.At, r.Temperature)
		} else {
			history.AddGap(r.At)
		}
		switch {
		case gauge == nil:
			fmt.Printf("%s %s\n", r.At.Format(time.RFC3339), &r)
		case r.Valid():
			err = gauge.Show(r.Temperature)
		default:
			err = gauge.ShowInvalid(r.Err.Error())
		}
		if err != nil {
			return err
		}
	}
	cancel()
	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if *pngPath != "" {
		f, err := os.Create(*pngPath)
		if err != nil {
			return err
		}
		if err := tempchart.WritePNG(f, history, &tempchart.DefaultOpts); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		log.Fatalf("owtemp: %s.", err)
	}
}
