// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package thermobar shows a temperature as a 1D gauge on a terminal using
// ANSI color codes.
//
// The gauge is also a display.Drawer one pixel high, so arbitrary images can
// be drawn on it.
package thermobar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
)

// Opts represents the options available for this display.
type Opts struct {
	// X is the gauge width in characters.
	X int
	// Min and Max are the temperatures at the ends of the gauge.
	Min physic.Temperature
	Max physic.Temperature
	// Palette defaults to ansi256.Default.
	Palette *ansi256.Palette
	// W defaults to the console.
	W io.Writer

	_ struct{}
}

// DefaultOpts is the recommended default options, for indoor temperatures.
var DefaultOpts = Opts{
	X:   40,
	Min: physic.ZeroCelsius + 10*physic.Celsius,
	Max: physic.ZeroCelsius + 40*physic.Celsius,
}

// Colors of the gauge.
var (
	Empty   = color.NRGBA{0x20, 0x20, 0x20, 255}
	Invalid = color.NRGBA{0x80, 0x80, 0x80, 255}
)

// Dev is a temperature gauge that outputs to the console.
type Dev struct {
	w        io.Writer
	l        int
	min, max physic.Temperature
	palette  ansi256.Palette

	label  string
	pixels []byte
	buf    bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.X <= 0 {
		return nil, errors.New("thermobar: invalid width")
	}
	if opts.Max <= opts.Min {
		return nil, errors.New("thermobar: invalid temperature range")
	}
	p := opts.Palette
	if p == nil {
		p = ansi256.Default
	}
	w := opts.W
	if w == nil {
		w = colorable.NewColorableStdout()
	}
	d := &Dev{
		w:       w,
		l:       opts.X,
		min:     opts.Min,
		max:     opts.Max,
		palette: *p,
		pixels:  make([]byte, 3*opts.X),
	}
	return d, nil
}

func (d *Dev) String() string {
	return "ThermoBar"
}

// Halt implements conn.Resource.
//
// It resets the colors and moves to the next line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\033[0m\n"))
	return err
}

// Show fills the gauge up to t, with a color going from blue at Min to red
// at Max, followed by t in text.
//
// Values out of range saturate the gauge.
func (d *Dev) Show(t physic.Temperature) error {
	n := d.Filled(t)
	for i := 0; i < d.l; i++ {
		c := Empty
		if i < n {
			c = Gradient(i, d.l)
		}
		d.set(i, c)
	}
	d.label = t.String()
	_, err := d.refresh()
	return err
}

// ShowInvalid greys out the gauge and shows reason instead of a temperature.
func (d *Dev) ShowInvalid(reason string) error {
	for i := 0; i < d.l; i++ {
		d.set(i, Invalid)
	}
	d.label = reason
	_, err := d.refresh()
	return err
}

// Filled returns the number of characters filled for t.
func (d *Dev) Filled(t physic.Temperature) int {
	if t <= d.min {
		return 0
	}
	if t >= d.max {
		return d.l
	}
	// Round to the nearest character.
	span := int64(d.max - d.min)
	return int((int64(t-d.min)*int64(d.l) + span/2) / span)
}

// Gradient returns the color of character i of a gauge n characters wide.
func Gradient(i, n int) color.NRGBA {
	if n <= 1 {
		return color.NRGBA{255, 0, 0, 255}
	}
	r := byte(255 * i / (n - 1))
	return color.NRGBA{r, 0, 255 - r, 255}
}

// Write accepts a stream of raw RGB pixels and writes it to the console.
func (d *Dev) Write(pixels []byte) (int, error) {
	if len(pixels)%3 != 0 {
		return 0, errors.New("thermobar: invalid RGB stream length")
	}
	copy(d.pixels, pixels)
	d.label = ""
	return d.refresh()
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: d.l, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	r = r.Intersect(d.Bounds())
	srcR := src.Bounds()
	srcR.Min = srcR.Min.Add(sp)
	if dX := r.Dx(); dX < srcR.Dx() {
		srcR.Max.X = srcR.Min.X + dX
	}
	if dY := r.Dy(); dY < srcR.Dy() {
		srcR.Max.Y = srcR.Min.Y + dY
	}
	deltaX := r.Min.X - srcR.Min.X
	for sX := srcR.Min.X; sX < srcR.Max.X; sX++ {
		r16, g16, b16, _ := src.At(sX, srcR.Min.Y).RGBA()
		d.set(sX+deltaX, color.NRGBA{byte(r16 >> 8), byte(g16 >> 8), byte(b16 >> 8), 255})
	}
	d.label = ""
	_, err := d.refresh()
	return err
}

//

func (d *Dev) set(i int, c color.NRGBA) {
	d.pixels[3*i] = c.R
	d.pixels[3*i+1] = c.G
	d.pixels[3*i+2] = c.B
}

func (d *Dev) refresh() (int, error) {
	// Reuse the buffer to not allocate on every update.
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	for i := 0; i < len(d.pixels)/3; i++ {
		c := color.NRGBA{d.pixels[3*i], d.pixels[3*i+1], d.pixels[3*i+2], 255}
		_, _ = io.WriteString(&d.buf, d.palette.Block(c))
	}
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(d.label)
	// Erase leftovers of a longer previous label.
	_, _ = d.buf.WriteString("\033[K")
	_, err := d.buf.WriteTo(d.w)
	return len(d.pixels), err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
