// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tempchart draws a temperature history as a line chart.
package tempchart

import (
	"errors"
	"image"
	"io"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"periph.io/x/conn/v3/physic"
)

// Point is one sample of the history.
type Point struct {
	At time.Time
	T  physic.Temperature
	// Valid is false for a failed sample, which breaks the line.
	Valid bool
}

// History is an append only list of samples.
type History []Point

// Add appends a valid sample.
func (h *History) Add(at time.Time, t physic.Temperature) {
	*h = append(*h, Point{At: at, T: t, Valid: true})
}

// AddGap appends a failed sample.
func (h *History) AddGap(at time.Time) {
	*h = append(*h, Point{At: at})
}

// Range returns the lowest and highest valid temperatures. ok is false if
// there is no valid sample.
func (h History) Range() (lo, hi physic.Temperature, ok bool) {
	for _, p := range h {
		if !p.Valid {
			continue
		}
		if !ok || p.T < lo {
			lo = p.T
		}
		if !ok || p.T > hi {
			hi = p.T
		}
		ok = true
	}
	return lo, hi, ok
}

// Opts represents the options available for a chart.
type Opts struct {
	Width  int
	Height int
	Title  string
	// FontSize is in points.
	FontSize float64
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Width:    640,
	Height:   320,
	Title:    "Temperature",
	FontSize: 12,
}

// Render draws h.
func Render(h History, opts *Opts) (image.Image, error) {
	dc, err := render(h, opts)
	if err != nil {
		return nil, err
	}
	return dc.Image(), nil
}

// WritePNG draws h and encodes it as PNG into w.
func WritePNG(w io.Writer, h History, opts *Opts) error {
	dc, err := render(h, opts)
	if err != nil {
		return err
	}
	return dc.EncodePNG(w)
}

//

const margin = 50

func render(h History, opts *Opts) (*gg.Context, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.Width <= 2*margin || opts.Height <= 2*margin {
		return nil, errors.New("tempchart: chart too small")
	}
	lo, hi, ok := h.Range()
	if !ok {
		return nil, errors.New("tempchart: no valid sample")
	}
	// Leave some room above and below the line.
	pad := (hi - lo) / 10
	if pad < physic.Kelvin/2 {
		pad = physic.Kelvin / 2
	}
	lo -= pad
	hi += pad
	face, err := newFace(opts.FontSize)
	if err != nil {
		return nil, err
	}

	w, ht := float64(opts.Width), float64(opts.Height)
	s := scale{
		x0: margin, x1: w - margin/2,
		y0: ht - margin, y1: margin,
		lo: lo, hi: hi,
		start: h[0].At, end: h[len(h)-1].At,
	}

	dc := gg.NewContext(opts.Width, opts.Height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()
	dc.SetFontFace(face)

	// Axes.
	dc.SetRGB(0, 0, 0)
	dc.SetLineWidth(1)
	dc.DrawLine(s.x0, s.y1, s.x0, s.y0)
	dc.DrawLine(s.x0, s.y0, s.x1, s.y0)
	dc.Stroke()
	dc.DrawStringAnchored(opts.Title, w/2, margin/2, 0.5, 0.5)
	dc.DrawStringAnchored(hi.String(), s.x0-4, s.y1, 1, 0.5)
	dc.DrawStringAnchored(lo.String(), s.x0-4, s.y0, 1, 0.5)
	dc.DrawStringAnchored(s.start.Format("15:04:05"), s.x0, s.y0+4, 0, 1)
	dc.DrawStringAnchored(s.end.Format("15:04:05"), s.x1, s.y0+4, 1, 1)

	// Data, one polyline per run of valid samples.
	dc.SetRGB(0.8, 0.1, 0.1)
	dc.SetLineWidth(2)
	drawing := false
	for _, p := range h {
		if !p.Valid {
			drawing = false
			continue
		}
		x, y := s.x(p.At), s.y(p.T)
		if drawing {
			dc.LineTo(x, y)
		} else {
			dc.NewSubPath()
			dc.MoveTo(x, y)
			drawing = true
		}
		dc.DrawPoint(x, y, 2)
		dc.MoveTo(x, y)
	}
	dc.Stroke()
	return dc, nil
}

// scale maps samples to pixels.
type scale struct {
	x0, x1, y0, y1 float64
	lo, hi         physic.Temperature
	start, end     time.Time
}

func (s *scale) x(t time.Time) float64 {
	span := s.end.Sub(s.start)
	if span <= 0 {
		return (s.x0 + s.x1) / 2
	}
	return s.x0 + (s.x1-s.x0)*float64(t.Sub(s.start))/float64(span)
}

func (s *scale) y(t physic.Temperature) float64 {
	return s.y0 + (s.y1-s.y0)*float64(t-s.lo)/float64(s.hi-s.lo)
}

var (
	fontOnce sync.Once
	fontTTF  *truetype.Font
	fontErr  error
)

func newFace(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		fontTTF, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fontErr
	}
	if size <= 0 {
		size = DefaultOpts.FontSize
	}
	return truetype.NewFace(fontTTF, &truetype.Options{Size: size}), nil
}
