// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewirebb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/GermanBionicSystems/ibuttond/delay"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Line is the subset of gpio.PinIO needed to drive the bus.
//
// Out(gpio.Low) pulls the line down, In releases it, Read samples it.
type Line interface {
	In(pull gpio.Pull, edge gpio.Edge) error
	Out(l gpio.Level) error
	Read() gpio.Level
}

// Opts contains the slot timings.
type Opts struct {
	ResetLow     time.Duration // reset pulse width
	PresenceWait time.Duration // delay from release to presence sampling
	Slot         time.Duration // total duration of a read or write slot
	Write1Low    time.Duration // low time of a write-1 slot
	ReadLow      time.Duration // low time that starts a read slot
	ReadSample   time.Duration // delay from release to sampling in a read slot
	Recovery     time.Duration // gap after a write slot

	// Delay performs the waits. Defaults to delay.Spin.
	Delay delay.Delayer
}

// DefaultOpts is the recommended default options for a DS1990A at standard
// speed.
var DefaultOpts = Opts{
	ResetLow:     550 * time.Microsecond,
	PresenceWait: 100 * time.Microsecond,
	Slot:         80 * time.Microsecond,
	Write1Low:    5 * time.Microsecond,
	ReadLow:      2 * time.Microsecond,
	ReadSample:   8 * time.Microsecond,
	Recovery:     1 * time.Microsecond,
}

// New returns a bus master driving the line q.
//
// The line is released immediately so the bus idles high.
func New(q Line, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	if opts.PresenceWait >= opts.ResetLow {
		return nil, errors.New("onewirebb: PresenceWait must be shorter than ResetLow")
	}
	if opts.Write1Low >= opts.Slot || opts.ReadLow+opts.ReadSample >= opts.Slot {
		return nil, errors.New("onewirebb: slot too short")
	}
	d := &Dev{q: q, opts: *opts}
	if d.opts.Delay == nil {
		d.opts.Delay = delay.Spin{}
	}
	if err := q.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("onewirebb: failed to release line: %w", err)
	}
	return d, nil
}

// Dev is a 1-Wire bus master on one GPIO line. It implements onewire.Bus.
//
// Dev implements a persistent error model: if driving the line fails once,
// every later call returns the same error. A new Dev must be created to
// proceed.
type Dev struct {
	mu   sync.Mutex
	q    Line
	opts Opts
	err  error
}

func (d *Dev) String() string {
	if s, ok := d.q.(fmt.Stringer); ok {
		return "onewirebb{" + s.String() + "}"
	}
	return "onewirebb"
}

// Halt implements conn.Resource.
//
// It releases the line.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.q.In(gpio.PullNoChange, gpio.NoEdge)
}

// Q implements onewire.Pins.
func (d *Dev) Q() gpio.PinIO {
	if p, ok := d.q.(gpio.PinIO); ok {
		return p
	}
	return gpio.INVALID
}

// Reset issues a reset pulse and reports whether a device answered with a
// presence pulse.
func (d *Dev) Reset() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

// WriteBit writes the lowest bit of b in one slot.
func (d *Dev) WriteBit(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeBit(b & 1)
	return d.err
}

// ReadBit reads one bit in one slot.
func (d *Dev) ReadBit() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.readBit()
	return b, d.err
}

// WriteByte writes b least significant bit first. It implements
// io.ByteWriter.
func (d *Dev) WriteByte(b byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeByte(b)
	return d.err
}

// ReadByte reads a byte least significant bit first. It implements
// io.ByteReader.
func (d *Dev) ReadByte() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.readByte()
	return b, d.err
}

// Tx performs a bus transaction: a reset, then w is written and r is read.
//
// There is no strong pull-up on a bare GPIO, so onewire.StrongPullup is
// refused.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	if power == onewire.StrongPullup {
		return errors.New("onewirebb: strong pull-up not supported")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if present, err := d.reset(); err != nil {
		return err
	} else if !present {
		return noDevicesError("onewirebb: no device present")
	}
	for _, b := range w {
		d.writeByte(b)
	}
	for i := range r {
		r[i] = d.readByte()
	}
	return d.err
}

// Search implements onewire.Bus.
//
// This master only supports a single device on the bus; use READ ROM.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	return nil, errors.New("onewirebb: search not supported on a single-drop bus")
}

//

func (d *Dev) reset() (bool, error) {
	d.low()
	d.wait(d.opts.ResetLow)
	d.release()
	d.wait(d.opts.PresenceWait)
	present := d.q.Read() == gpio.Low
	d.wait(d.opts.ResetLow - d.opts.PresenceWait)
	if d.err != nil {
		return false, d.err
	}
	return present, nil
}

func (d *Dev) writeBit(b byte) {
	low := d.opts.Slot
	if b != 0 {
		low = d.opts.Write1Low
	}
	d.low()
	d.wait(low)
	d.release()
	d.wait(d.opts.Slot - low + d.opts.Recovery)
}

func (d *Dev) readBit() byte {
	d.low()
	d.wait(d.opts.ReadLow)
	d.release()
	d.wait(d.opts.ReadSample)
	l := d.q.Read()
	d.wait(d.opts.Slot - d.opts.ReadLow - d.opts.ReadSample)
	if l == gpio.High {
		return 1
	}
	return 0
}

func (d *Dev) writeByte(b byte) {
	for i := range 8 {
		d.writeBit(b >> uint(i) & 1)
	}
}

func (d *Dev) readByte() byte {
	var b byte
	for i := range 8 {
		b |= d.readBit() << uint(i)
	}
	return b
}

// low pulls the line down. It is a no-op once an error occurred.
func (d *Dev) low() {
	if d.err != nil {
		return
	}
	if err := d.q.Out(gpio.Low); err != nil {
		d.err = fmt.Errorf("onewirebb: failed to drive line: %w", err)
	}
}

func (d *Dev) release() {
	if d.err != nil {
		return
	}
	if err := d.q.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
		d.err = fmt.Errorf("onewirebb: failed to release line: %w", err)
	}
}

func (d *Dev) wait(t time.Duration) {
	if t > 0 && d.err == nil {
		d.opts.Delay.Delay(t)
	}
}

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.Pins = &Dev{}
