// Copyright 2017 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package statusled emulates the reader's status LED on a terminal using ANSI
// color codes.
//
// The LED is a one pixel display.Drawer; Show picks its color from the
// presence state and prints a label next to it.
package statusled

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/GermanBionicSystems/ibuttond/presence"
	"github.com/maruel/ansi256"
	"github.com/mattn/go-colorable"
	"periph.io/x/conn/v3/display"
)

// Colors used by Show.
var (
	Absent        = color.NRGBA{0x60, 0x60, 0x60, 0xff}
	Seated        = color.NRGBA{0x00, 0xd0, 0x00, 0xff}
	PendingForget = color.NRGBA{0xff, 0xb0, 0x00, 0xff}
)

// Opts represents the options available for this display.
type Opts struct {
	Palette *ansi256.Palette

	_ struct{}
}

// Dev is a status LED emulator that outputs to the console.
type Dev struct {
	w       io.Writer
	palette ansi256.Palette

	c     color.NRGBA
	label string
	buf   bytes.Buffer
}

// New returns a Dev that displays at the console.
func New(opts *Opts) *Dev {
	return NewWriter(colorable.NewColorableStdout(), opts)
}

// NewWriter returns a Dev that writes to w.
func NewWriter(w io.Writer, opts *Opts) *Dev {
	p := ansi256.Default
	if opts != nil && opts.Palette != nil {
		p = opts.Palette
	}
	return &Dev{w: w, palette: *p, c: Absent}
}

func (d *Dev) String() string {
	return "StatusLED"
}

// Halt implements conn.Resource.
//
// It resets the terminal attributes and ends the status line.
func (d *Dev) Halt() error {
	_, err := d.w.Write([]byte("\n\033[0m"))
	return err
}

// Show sets the LED to the color of s and prints label next to it.
func (d *Dev) Show(s presence.State, label string) error {
	d.c = StateColor(s)
	d.label = label
	return d.refresh()
}

// StateColor returns the LED color for s.
func StateColor(s presence.State) color.NRGBA {
	switch s {
	case presence.Seated:
		return Seated
	case presence.PendingForget:
		return PendingForget
	default:
		return Absent
	}
}

// ColorModel implements display.Drawer.
func (d *Dev) ColorModel() color.Model {
	return color.NRGBAModel
}

// Bounds implements display.Drawer.
func (d *Dev) Bounds() image.Rectangle {
	return image.Rectangle{Max: image.Point{X: 1, Y: 1}}
}

// Draw implements display.Drawer.
func (d *Dev) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	if !sp.In(src.Bounds()) || r.Intersect(d.Bounds()).Empty() {
		return nil
	}
	d.c = color.NRGBAModel.Convert(src.At(sp.X, sp.Y)).(color.NRGBA)
	return d.refresh()
}

func (d *Dev) refresh() error {
	d.buf.Reset()
	_, _ = d.buf.WriteString("\r\033[0m")
	_, _ = io.WriteString(&d.buf, d.palette.Block(d.c))
	_, _ = d.buf.WriteString("\033[0m ")
	_, _ = d.buf.WriteString(d.label)
	// Clear what is left of a longer previous label.
	_, _ = d.buf.WriteString("\033[K")
	_, err := d.buf.WriteTo(d.w)
	return err
}

var _ display.Drawer = &Dev{}
var _ fmt.Stringer = &Dev{}
