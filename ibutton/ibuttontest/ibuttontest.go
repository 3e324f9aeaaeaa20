// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ibuttontest is meant to be used to test drivers of iButton readers
// without hardware.
//
// Wire models the probe's data line: an open-drain line with a pull-up, the
// bus master on one end and at most one iButton on the other. Time is virtual
// and only advances when the driver under test calls Delay, so a whole READ
// ROM transaction runs instantly and deterministically.
package ibuttontest

import (
	"errors"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// Timing of the simulated device, within the DS1990A datasheet ranges.
const (
	ResetMin      = 480 * time.Microsecond // shortest low pulse seen as a reset
	PresenceDelay = 15 * time.Microsecond  // tPDH
	PresenceWidth = 120 * time.Microsecond // tPDL
	Write0Min     = 15 * time.Microsecond  // shortest low pulse seen as a 0
	ZeroHold      = 30 * time.Microsecond  // how long a 0 is held in a read slot
)

// Wire is a simulated 1-Wire line with a virtual clock.
//
// It implements the In, Out and Read methods of gpio.PinIO and the Delay
// method of delay.Delayer.
type Wire struct {
	sync.Mutex
	// Delays records every call to Delay, in order.
	Delays []time.Duration
	// StuckLow simulates a shorted line: Read always returns Low.
	StuckLow bool
	// Resets counts the reset pulses seen on the line.
	Resets int

	now    time.Duration
	driven bool
	lowAt  time.Duration
	dev    *device
}

func (w *Wire) String() string {
	return "ibuttontest.Wire"
}

// Halt implements conn.Resource.
func (w *Wire) Halt() error {
	return nil
}

// Seat places an iButton with the given ROM code on the probe. It replaces
// any device already seated.
func (w *Wire) Seat(rom [8]byte) {
	w.Lock()
	defer w.Unlock()
	w.dev = &device{rom: rom}
}

// Lift removes the seated iButton, if any.
func (w *Wire) Lift() {
	w.Lock()
	defer w.Unlock()
	w.dev = nil
}

// Seated reports whether an iButton is on the probe.
func (w *Wire) Seated() bool {
	w.Lock()
	defer w.Unlock()
	return w.dev != nil
}

// Commands returns the command bytes the seated device received since it was
// seated.
func (w *Wire) Commands() []byte {
	w.Lock()
	defer w.Unlock()
	if w.dev == nil {
		return nil
	}
	return append([]byte(nil), w.dev.commands...)
}

// Now returns the virtual time elapsed since the Wire was created.
func (w *Wire) Now() time.Duration {
	w.Lock()
	defer w.Unlock()
	return w.now
}

// Delay advances the virtual clock.
func (w *Wire) Delay(d time.Duration) {
	w.Lock()
	defer w.Unlock()
	w.Delays = append(w.Delays, d)
	if d > 0 {
		w.now += d
	}
}

// In releases the line. Only gpio.NoEdge is supported.
func (w *Wire) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return errors.New("ibuttontest: edge detection not supported")
	}
	w.Lock()
	defer w.Unlock()
	w.release()
	return nil
}

// Out drives the line low. Driving it high is treated as releasing it, as the
// line is open-drain.
func (w *Wire) Out(l gpio.Level) error {
	w.Lock()
	defer w.Unlock()
	if l == gpio.High {
		w.release()
		return nil
	}
	if !w.driven {
		w.driven = true
		w.lowAt = w.now
		if w.dev != nil {
			w.dev.fall(w.now)
		}
	}
	return nil
}

// Read returns Low when the master, the device or a short holds the line
// down.
func (w *Wire) Read() gpio.Level {
	w.Lock()
	defer w.Unlock()
	if w.StuckLow || w.driven || (w.dev != nil && w.dev.holds(w.now)) {
		return gpio.Low
	}
	return gpio.High
}

func (w *Wire) release() {
	if !w.driven {
		return
	}
	w.driven = false
	width := w.now - w.lowAt
	if width >= ResetMin {
		w.Resets++
	}
	if w.dev != nil {
		w.dev.rise(w.now, width)
	}
}

type devState int

const (
	idle devState = iota
	command
	transmit
)

// device is the ROM function layer of a DS1990A. It only understands READ
// ROM (0x33).
type device struct {
	rom      [8]byte
	state    devState
	cmd      byte
	nbits    int
	commands []byte

	holdFrom  time.Duration
	holdUntil time.Duration
}

// fall handles the master pulling the line low at t.
func (d *device) fall(t time.Duration) {
	if d.state != transmit {
		return
	}
	bit := d.rom[d.nbits/8] >> uint(d.nbits%8) & 1
	if bit == 0 {
		d.holdFrom = t
		d.holdUntil = t + ZeroHold
	}
	if d.nbits++; d.nbits == 64 {
		d.state = idle
	}
}

// rise handles the master releasing the line at t after holding it low for
// width.
func (d *device) rise(t, width time.Duration) {
	if width >= ResetMin {
		d.state = command
		d.cmd = 0
		d.nbits = 0
		d.holdFrom = t + PresenceDelay
		d.holdUntil = t + PresenceDelay + PresenceWidth
		return
	}
	if d.state != command {
		return
	}
	if width < Write0Min {
		d.cmd |= 1 << uint(d.nbits)
	}
	if d.nbits++; d.nbits < 8 {
		return
	}
	d.commands = append(d.commands, d.cmd)
	d.nbits = 0
	if d.cmd == 0x33 {
		d.state = transmit
	} else {
		d.state = idle
	}
}

func (d *device) holds(t time.Duration) bool {
	return t >= d.holdFrom && t < d.holdUntil
}
