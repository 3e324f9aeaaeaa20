// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package gpiomem drives BCM283x GPIO lines by writing the memory mapped
// controller registers directly.
//
// This avoids the sysfs and character device paths, whose per call cost is
// too high for bit-banged 1-Wire time slots. The registers are mapped through
// /dev/gpiomem, which does not require root.
//
// # Datasheet
//
// https://datasheets.raspberrypi.com/bcm2835/bcm2835-peripherals.pdf
package gpiomem

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/host/v3/pmem"
)

// NumPins is the number of lines of the controller.
const NumPins = 54

// Register word offsets.
const (
	regFsel    = 0  // GPFSEL0..5, 3 bits per line
	regSet     = 7  // GPSET0..1
	regClr     = 10 // GPCLR0..1
	regLev     = 13 // GPLEV0..1
	regPud     = 37 // GPPUD
	regPudClk  = 38 // GPPUDCLK0..1
	regsNeeded = regPudClk + 2
)

const (
	fselInput  = 0
	fselOutput = 1
)

// Mem is the mapped register block.
type Mem struct {
	mu   sync.Mutex
	regs []uint32
	view *pmem.View
}

// Open maps the GPIO registers through /dev/gpiomem.
func Open() (*Mem, error) {
	v, err := pmem.MapGPIO()
	if err != nil {
		return nil, fmt.Errorf("gpiomem: failed to map registers: %w", err)
	}
	m, err := NewMem(v.Uint32())
	if err != nil {
		_ = v.Close()
		return nil, err
	}
	m.view = v
	return m, nil
}

// NewMem returns a Mem over regs, for example a fake register block in tests.
func NewMem(regs []uint32) (*Mem, error) {
	if len(regs) < regsNeeded {
		return nil, fmt.Errorf("gpiomem: register block too small: %d words", len(regs))
	}
	return &Mem{regs: regs}, nil
}

func (m *Mem) String() string {
	return "gpiomem"
}

// Close unmaps the registers. Pins must not be used afterward.
func (m *Mem) Close() error {
	if m.view == nil {
		return nil
	}
	err := m.view.Close()
	m.view = nil
	return err
}

// Pin returns the line number n.
func (m *Mem) Pin(n int) (*Pin, error) {
	if n < 0 || n >= NumPins {
		return nil, fmt.Errorf("gpiomem: invalid pin %d", n)
	}
	return &Pin{m: m, n: n}, nil
}

// Pin is a single line.
//
// It implements the In, Out and Read methods of gpio.PinIO. Edge detection is
// not supported.
type Pin struct {
	m *Mem
	n int
}

func (p *Pin) String() string {
	return p.Name()
}

// Name returns the BCM name of the line, like GPIO4.
func (p *Pin) Name() string {
	return "GPIO" + strconv.Itoa(p.n)
}

// Number returns the BCM line number.
func (p *Pin) Number() int {
	return p.n
}

// Halt implements conn.Resource.
func (p *Pin) Halt() error {
	return nil
}

// In switches the line to input. A pull other than gpio.PullNoChange goes
// through the legacy GPPUD sequence, which takes a few microseconds; do it
// once at setup, never inside a time slot.
func (p *Pin) In(pull gpio.Pull, edge gpio.Edge) error {
	if edge != gpio.NoEdge {
		return errors.New("gpiomem: edge detection not supported")
	}
	if pull != gpio.PullNoChange {
		if err := p.setPull(pull); err != nil {
			return err
		}
	}
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	p.fsel(fselInput)
	return nil
}

// Out drives the line. The output level is latched before the line is
// switched to output so it never glitches.
func (p *Pin) Out(l gpio.Level) error {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	reg := regClr
	if l == gpio.High {
		reg = regSet
	}
	p.m.regs[reg+p.n/32] = 1 << uint(p.n%32)
	p.fsel(fselOutput)
	return nil
}

// Read returns the current level of the line.
func (p *Pin) Read() gpio.Level {
	return gpio.Level(p.m.regs[regLev+p.n/32]>>uint(p.n%32)&1 != 0)
}

// Func returns the raw function select value of the line.
func (p *Pin) Func() uint32 {
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	return p.m.regs[regFsel+p.n/10] >> p.shift() & 7
}

//

func (p *Pin) fsel(f uint32) {
	i := regFsel + p.n/10
	p.m.regs[i] = p.m.regs[i]&^(7<<p.shift()) | f<<p.shift()
}

func (p *Pin) shift() uint {
	return uint(p.n%10) * 3
}

func (p *Pin) setPull(pull gpio.Pull) error {
	var v uint32
	switch pull {
	case gpio.Float:
		v = 0
	case gpio.PullDown:
		v = 1
	case gpio.PullUp:
		v = 2
	default:
		return fmt.Errorf("gpiomem: unsupported pull %s", pull)
	}
	p.m.mu.Lock()
	defer p.m.mu.Unlock()
	// The control signal needs 150 cycles to settle before and after being
	// clocked into the line.
	p.m.regs[regPud] = v
	sleep(time.Microsecond)
	p.m.regs[regPudClk+p.n/32] = 1 << uint(p.n%32)
	sleep(time.Microsecond)
	p.m.regs[regPud] = 0
	p.m.regs[regPudClk+p.n/32] = 0
	return nil
}

var sleep = time.Sleep
