// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"log"
	"os"

	"github.com/GermanBionicSystems/ibuttond/poller"
	"github.com/GermanBionicSystems/ibuttond/presence"
	"github.com/GermanBionicSystems/ibuttond/statusled"
	"github.com/mattn/go-isatty"
)

// reporter turns poller events into status output: the emulated LED on a
// terminal, log lines otherwise.
type reporter struct {
	led     *statusled.Dev
	logger  *log.Logger
	verbose bool
}

func newReporter(mode string, verbose bool, stdout *os.File) *reporter {
	if mode == "auto" {
		mode = "log"
		if fd := stdout.Fd(); isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
			mode = "led"
		}
	}
	r := &reporter{logger: log.Default(), verbose: verbose}
	switch mode {
	case "led":
		r.led = statusled.New(nil)
	case "off":
		r.logger = nil
	}
	return r
}

func (r *reporter) event(ev poller.Event) {
	if r.led != nil && ev.Kind != poller.Idle && ev.Kind != poller.Held {
		_ = r.led.Show(ev.State, label(ev))
	}
	if r.logger == nil {
		return
	}
	switch ev.Kind {
	case poller.Idle, poller.Held:
	case poller.NewKey:
		if ev.Err != nil || r.led == nil || r.verbose {
			r.logger.Print(ev)
		}
	case poller.Rejected, poller.Repeat:
		if r.verbose {
			r.logger.Print(ev)
		}
	default:
		if r.led == nil || r.verbose {
			r.logger.Print(ev)
		}
	}
}

func (r *reporter) halt() {
	if r.led != nil {
		_ = r.led.Halt()
	}
}

func label(ev poller.Event) string {
	switch ev.State {
	case presence.Seated:
		if ev.Kind == poller.Ignored {
			return ev.ROM.String() + " (ignored)"
		}
		return ev.ROM.String()
	case presence.PendingForget:
		return ev.ROM.String() + " (lifted)"
	default:
		return "no key"
	}
}
