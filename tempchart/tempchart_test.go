// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tempchart

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"time"

	"periph.io/x/conn/v3/physic"
)

func TestHistory_Range(t *testing.T) {
	var h History
	if _, _, ok := h.Range(); ok {
		t.Fatal("empty history")
	}
	h.AddGap(epoch)
	h.Add(epoch, celsius(21))
	h.Add(epoch, celsius(19))
	h.AddGap(epoch)
	h.Add(epoch, celsius(20))
	lo, hi, ok := h.Range()
	if !ok || lo != celsius(19) || hi != celsius(21) {
		t.Fatalf("Range() = %s, %s, %t", lo, hi, ok)
	}
	if len(h) != 5 {
		t.Fatal(len(h))
	}
}

func TestRender(t *testing.T) {
	img, err := Render(history(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b != image.Rect(0, 0, DefaultOpts.Width, DefaultOpts.Height) {
		t.Fatal(b)
	}
	// Background.
	if r, g, b, _ := img.At(DefaultOpts.Width-1, 0).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Fatalf("background %x %x %x", r, g, b)
	}
	// Vertical axis, antialiased over two columns.
	r1, _, _, _ := img.At(margin-1, DefaultOpts.Height/2).RGBA()
	r2, _, _, _ := img.At(margin, DefaultOpts.Height/2).RGBA()
	if r1 == 0xffff && r2 == 0xffff {
		t.Fatal("axis not drawn")
	}
}

func TestRender_fail(t *testing.T) {
	if _, err := Render(nil, nil); err == nil {
		t.Fatal("empty history")
	}
	var h History
	h.AddGap(epoch)
	if _, err := Render(h, nil); err == nil {
		t.Fatal("no valid sample")
	}
	if _, err := Render(history(), &Opts{Width: 100, Height: 100}); err == nil {
		t.Fatal("too small")
	}
}

func TestWritePNG(t *testing.T) {
	var buf bytes.Buffer
	opts := Opts{Width: 200, Height: 120, Title: "Test"}
	if err := WritePNG(&buf, history(), &opts); err != nil {
		t.Fatal(err)
	}
	cfg, err := png.DecodeConfig(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Width != 200 || cfg.Height != 120 {
		t.Fatalf("%dx%d", cfg.Width, cfg.Height)
	}
}

func TestScale(t *testing.T) {
	s := scale{
		x0: 10, x1: 110, y0: 100, y1: 0,
		lo: celsius(10), hi: celsius(20),
		start: epoch, end: epoch.Add(10 * time.Second),
	}
	if x := s.x(epoch.Add(5 * time.Second)); x != 60 {
		t.Fatal(x)
	}
	if y := s.y(celsius(15)); y != 50 {
		t.Fatal(y)
	}
	if y := s.y(celsius(20)); y != 0 {
		t.Fatal(y)
	}
	s.end = s.start
	if x := s.x(epoch); x != 60 {
		t.Fatal(x)
	}
}

//

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func history() History {
	var h History
	for i, c := range []physic.Temperature{20, 21, 22} {
		h.Add(epoch.Add(time.Duration(i)*time.Second), celsius(c))
	}
	h.AddGap(epoch.Add(3 * time.Second))
	h.Add(epoch.Add(4*time.Second), celsius(21))
	return h
}

func celsius(c physic.Temperature) physic.Temperature {
	return physic.ZeroCelsius + c*physic.Celsius
}
