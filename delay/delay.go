// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package delay provides microsecond scale waits for bit-banged protocols.
//
// time.Sleep wakes up far too late to time a 1-Wire slot, so the waits here
// never yield to the scheduler.
package delay

import (
	"time"

	"periph.io/x/host/v3/cpu"
)

// Delayer blocks the calling goroutine for the requested duration.
type Delayer interface {
	Delay(d time.Duration)
}

// Spin busy-waits against the monotonic clock.
//
// It is the most accurate Delayer on a lightly loaded host and the one used
// by default. It burns one CPU core for the duration.
type Spin struct{}

// Delay implements Delayer.
func (Spin) Delay(d time.Duration) {
	for start := time.Now(); time.Since(start) < d; {
	}
}

func (Spin) String() string {
	return "spin"
}

// Nanospin waits with cpu.Nanospin from periph's host package.
//
// On Linux this is a nanosleep system call, which is kinder to the CPU but
// typically overshoots by tens of microseconds. It is only suitable for
// hosts with a real-time kernel.
type Nanospin struct{}

// Delay implements Delayer.
func (Nanospin) Delay(d time.Duration) {
	cpu.Nanospin(d)
}

func (Nanospin) String() string {
	return "nanospin"
}

// Func adapts a plain function to the Delayer interface.
type Func func(d time.Duration)

// Delay implements Delayer.
func (f Func) Delay(d time.Duration) {
	f(d)
}

// ByName returns the Delayer registered under name: "spin" or "nanospin".
// The empty string selects Spin.
func ByName(name string) (Delayer, bool) {
	switch name {
	case "", "spin":
		return Spin{}, true
	case "nanospin":
		return Nanospin{}, true
	default:
		return nil, false
	}
}

var _ Delayer = Spin{}
var _ Delayer = Nanospin{}
var _ Delayer = Func(nil)
