// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package presence turns successive iButton readings into discrete "new
// identifier" events.
//
// A key that stays on the probe is read over and over; it must be reported
// once. A key that bounces off the contact for a moment must not be reported
// again either, so removal starts a forget timer instead of clearing the
// identifier right away.
package presence

import (
	"fmt"
	"time"

	"github.com/GermanBionicSystems/ibuttond/ibutton"
)

// State is the state of the probe as seen by the Tracker.
type State int

const (
	// Absent means no identifier is remembered.
	Absent State = iota
	// Seated means the remembered identifier is on the probe.
	Seated
	// PendingForget means the remembered identifier left the probe and will
	// be forgotten once the timeout elapses.
	PendingForget
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Seated:
		return "seated"
	case PendingForget:
		return "pending-forget"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// DefaultTimeout is how long a lifted identifier is remembered.
const DefaultTimeout = time.Second

// Tracker is the presence state machine. The zero value is not usable, use
// New.
//
// Tracker is not safe for concurrent use; it is meant to be owned by the poll
// loop.
type Tracker struct {
	timeout    time.Duration
	state      State
	rom        ibutton.ROM
	releasedAt time.Time
}

// New returns a Tracker in the Absent state that forgets a lifted identifier
// after timeout.
func New(timeout time.Duration) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{timeout: timeout}
}

func (t *Tracker) String() string {
	switch t.state {
	case Seated:
		return fmt.Sprintf("%s(%s)", t.state, t.rom)
	case PendingForget:
		return fmt.Sprintf("%s(%s, %s)", t.state, t.rom, t.releasedAt.Format(time.RFC3339Nano))
	default:
		return t.state.String()
	}
}

// State returns the current state.
func (t *Tracker) State() State {
	return t.state
}

// ROM returns the remembered identifier, if any.
func (t *Tracker) ROM() (ibutton.ROM, bool) {
	return t.rom, t.state != Absent
}

// Timeout returns the forget timeout.
func (t *Tracker) Timeout() time.Duration {
	return t.timeout
}

// Seen records a valid reading of rom at now and reports whether it is a new
// identifier that must be reported.
//
// Reading the remembered identifier again is never new, whether it stayed
// seated or came back before the forget timeout.
func (t *Tracker) Seen(rom ibutton.ROM, now time.Time) bool {
	t.Expire(now)
	isNew := t.state == Absent || rom != t.rom
	t.state = Seated
	t.rom = rom
	t.releasedAt = time.Time{}
	return isNew
}

// Lifted records that the seated identifier left the probe at now and starts
// the forget timer. It is a no-op in other states.
func (t *Tracker) Lifted(now time.Time) {
	if t.state != Seated {
		return
	}
	t.state = PendingForget
	t.releasedAt = now
}

// Expire forgets the identifier if it has been lifted for at least the
// timeout. It reports whether it did.
func (t *Tracker) Expire(now time.Time) bool {
	if t.state != PendingForget || now.Sub(t.releasedAt) < t.timeout {
		return false
	}
	t.state = Absent
	t.rom = ibutton.ROM{}
	t.releasedAt = time.Time{}
	return true
}

// Reset forgets everything, as on a restart.
func (t *Tracker) Reset() {
	t.state = Absent
	t.rom = ibutton.ROM{}
	t.releasedAt = time.Time{}
}
