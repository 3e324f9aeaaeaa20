// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/GermanBionicSystems/ibuttond/delay"
	"github.com/GermanBionicSystems/ibuttond/ds248x"
	"github.com/GermanBionicSystems/ibuttond/gpiomem"
	"github.com/GermanBionicSystems/ibuttond/onewirebb"
	"github.com/GermanBionicSystems/ibuttond/poller"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// bus is what the poller drives, plus its description and cleanup.
type bus interface {
	poller.Bus
	conn.Resource
}

// openBus opens the bus selected by c. The returned function releases it.
func openBus(c *config) (bus, func() error, error) {
	switch c.Driver {
	case "gpiomem":
		m, err := gpiomem.Open()
		if err != nil {
			return nil, nil, err
		}
		n, err := pinNumber(c.Pin)
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		p, err := m.Pin(n)
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		b, err := newBitBang(p, c)
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
		return b, func() error { _ = b.Halt(); return m.Close() }, nil

	case "ds248x":
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("could not init host: %w", err)
		}
		i, err := i2creg.Open(c.I2CBus)
		if err != nil {
			return nil, nil, fmt.Errorf("could not open i2c bus: %w", err)
		}
		d, err := ds248x.New(i, c.I2CAddr, &ds248x.DefaultOpts)
		if err != nil {
			_ = i.Close()
			return nil, nil, err
		}
		return d, i.Close, nil

	default:
		if _, err := host.Init(); err != nil {
			return nil, nil, fmt.Errorf("could not init host: %w", err)
		}
		p := gpioreg.ByName(c.Pin)
		if p == nil {
			return nil, nil, fmt.Errorf("no gpio line named %q", c.Pin)
		}
		b, err := newBitBang(p, c)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Halt, nil
	}
}

// newBitBang enables the internal pull-up once, then hands the line to the
// bit-banged master.
func newBitBang(p onewirebb.Line, c *config) (*onewirebb.Dev, error) {
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("could not enable pull-up on %s: %w", c.Pin, err)
	}
	d, _ := delay.ByName(c.Delay)
	opts := onewirebb.DefaultOpts
	opts.Delay = d
	return onewirebb.New(p, &opts)
}

// pinNumber accepts "GPIO4" or "4".
func pinNumber(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToUpper(name), "GPIO"))
	if err != nil || n < 0 || n >= gpiomem.NumPins {
		return 0, fmt.Errorf("invalid gpio line %q", name)
	}
	return n, nil
}
