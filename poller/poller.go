// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package poller runs the iButton reader loop: wait for a presence pulse,
// read and validate the ROM code, report it when it is new, then wait for the
// key to be lifted.
//
// The loop is an explicit state machine advanced by Step, so it can be driven
// one iteration at a time in tests; Run simply calls Step until the context
// ends.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GermanBionicSystems/ibuttond/ibutton"
	"github.com/GermanBionicSystems/ibuttond/presence"
	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/onewire"
)

// Bus is a single-drop 1-Wire bus.
//
// It is implemented by onewirebb.Dev and ds248x.Dev.
type Bus interface {
	Reset() (bool, error)
	ReadBit() (byte, error)
	ibutton.Conn
}

// Sender delivers a ROM code, formatted as 16 uppercase hex digits, to the
// consumer.
//
// It is implemented by forward.Client and forward.Async.
type Sender interface {
	Send(msg string) error
}

// Removal selects how a lifted key is detected.
type Removal int

const (
	// RemovalReset runs a full reset cycle; the key is gone when no presence
	// pulse answers.
	RemovalReset Removal = iota
	// RemovalReadBit samples a single read slot; the key is gone when the
	// slot reads 1.
	//
	// A seated key that finished sending its ROM code also leaves the slot
	// high, so in practice this moves on immediately and relies on the
	// next reset to notice the key again.
	RemovalReadBit
)

func (r Removal) String() string {
	switch r {
	case RemovalReset:
		return "reset"
	case RemovalReadBit:
		return "readbit"
	default:
		return fmt.Sprintf("Removal(%d)", int(r))
	}
}

// ParseRemoval parses the String form of a Removal.
func ParseRemoval(s string) (Removal, error) {
	switch s {
	case "", "reset":
		return RemovalReset, nil
	case "readbit":
		return RemovalReadBit, nil
	default:
		return 0, fmt.Errorf("poller: unknown removal probe %q", s)
	}
}

// Opts contains options to pass to the constructor.
type Opts struct {
	ForgetTimeout time.Duration // how long a lifted key is remembered
	PresencePoll  time.Duration // pause between resets while the probe is empty
	RemovalPoll   time.Duration // pause between removal probes while a key is seated
	Removal       Removal

	// Ignore lists keys that are tracked but never forwarded.
	Ignore []ibutton.ROM

	// Clock defaults to the real clock.
	Clock clockwork.Clock
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	ForgetTimeout: presence.DefaultTimeout,
	PresencePoll:  20 * time.Millisecond,
	RemovalPoll:   50 * time.Millisecond,
	Removal:       RemovalReset,
}

// Kind is the outcome of one Step.
type Kind int

const (
	// Idle means nobody answered the reset.
	Idle Kind = iota
	// Rejected means a device answered but its ROM code failed validation.
	Rejected
	// NewKey means a new key was read and forwarded.
	NewKey
	// Repeat means the remembered key was read again.
	Repeat
	// Ignored means a new key on the ignore list was read.
	Ignored
	// Held means the key is still on the probe.
	Held
	// Lifted means the key left the probe.
	Lifted
	// Forgotten means the forget timeout of a lifted key elapsed.
	Forgotten
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "idle"
	case Rejected:
		return "rejected"
	case NewKey:
		return "new"
	case Repeat:
		return "repeat"
	case Ignored:
		return "ignored"
	case Held:
		return "held"
	case Lifted:
		return "lifted"
	case Forgotten:
		return "forgotten"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event describes the outcome of one Step.
type Event struct {
	Kind  Kind
	ROM   ibutton.ROM    // key concerned, if any
	State presence.State // tracker state after the step
	// Err is the rejection or bus error for Rejected and the forwarding
	// failure, if any, for NewKey. Neither stops the loop.
	Err error
}

func (e Event) String() string {
	switch e.Kind {
	case Idle:
		return e.Kind.String()
	case Rejected:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s %s: %v", e.Kind, e.ROM, e.Err)
		}
		return fmt.Sprintf("%s %s", e.Kind, e.ROM)
	}
}

type phase int

const (
	waitPresence phase = iota
	waitRemoval
)

// New returns a Poller reading from bus and reporting new keys to s. s may
// be nil to only track keys.
func New(bus Bus, s Sender, opts *Opts) *Poller {
	if opts == nil {
		opts = &DefaultOpts
	}
	p := &Poller{
		bus:     bus,
		sender:  s,
		opts:    *opts,
		tracker: presence.New(opts.ForgetTimeout),
		ignore:  map[ibutton.ROM]struct{}{},
	}
	if p.opts.Clock == nil {
		p.opts.Clock = clockwork.NewRealClock()
	}
	for _, r := range opts.Ignore {
		p.ignore[r] = struct{}{}
	}
	return p
}

// Poller owns the bus and the presence tracker. It is not safe for
// concurrent use.
type Poller struct {
	bus     Bus
	sender  Sender
	opts    Opts
	tracker *presence.Tracker
	ignore  map[ibutton.ROM]struct{}
	phase   phase
}

// Tracker returns the presence tracker.
func (p *Poller) Tracker() *presence.Tracker {
	return p.tracker
}

// TryPresence resets the bus and reports whether a device answered.
func (p *Poller) TryPresence() (bool, error) {
	return p.bus.Reset()
}

// ReadIdentifier reads and validates the ROM code. TryPresence must have
// returned true just before.
func (p *Poller) ReadIdentifier() (ibutton.ROM, error) {
	return ibutton.Read(p.bus)
}

// Step runs one iteration of the loop.
//
// The only errors returned are failures of the bus master; rejected
// readings, 1-Wire level errors, absence and forwarding failures are reported
// in the Event.
func (p *Poller) Step(ctx context.Context) (Event, error) {
	if p.phase == waitRemoval {
		return p.stepRemoval(ctx)
	}
	present, err := p.TryPresence()
	if err != nil {
		return p.busError(ctx, err)
	}
	now := p.opts.Clock.Now()
	if !present {
		ev := Event{Kind: Idle}
		if r, ok := p.tracker.ROM(); ok && p.tracker.Expire(now) {
			ev = Event{Kind: Forgotten, ROM: r}
		}
		ev.State = p.tracker.State()
		p.sleep(ctx, p.opts.PresencePoll)
		return ev, nil
	}
	r, err := p.ReadIdentifier()
	if err != nil {
		if ibutton.IsRejected(err) {
			return Event{Kind: Rejected, State: p.tracker.State(), Err: err}, nil
		}
		return Event{}, err
	}
	p.phase = waitRemoval
	return p.seen(r, now), nil
}

// SetBus replaces the bus, for example after reopening a master that failed.
// The tracker is kept; the next Step looks for presence.
func (p *Poller) SetBus(bus Bus) {
	p.bus = bus
	p.phase = waitPresence
}

// Run calls Step until ctx is canceled or the bus fails, passing every event
// to fn. fn may be nil.
func (p *Poller) Run(ctx context.Context, fn func(Event)) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := p.Step(ctx)
		if err != nil {
			return err
		}
		if fn != nil {
			fn(ev)
		}
	}
}

//

func (p *Poller) stepRemoval(ctx context.Context) (Event, error) {
	held, err := p.probe()
	if err != nil {
		return p.busError(ctx, err)
	}
	r, _ := p.tracker.ROM()
	if held && p.opts.Removal == RemovalReset {
		// The reset left the seated device ready for READ ROM: check it is
		// still the same key.
		got, err := p.ReadIdentifier()
		if err != nil && !ibutton.IsRejected(err) {
			return Event{}, err
		}
		if err == nil && got != r {
			return p.seen(got, p.opts.Clock.Now()), nil
		}
	}
	if held {
		p.sleep(ctx, p.opts.RemovalPoll)
		return Event{Kind: Held, ROM: r, State: p.tracker.State()}, nil
	}
	p.tracker.Lifted(p.opts.Clock.Now())
	p.phase = waitPresence
	return Event{Kind: Lifted, ROM: r, State: p.tracker.State()}, nil
}

// seen feeds a valid reading to the tracker and forwards it when it is a new
// key.
func (p *Poller) seen(r ibutton.ROM, now time.Time) Event {
	ev := Event{Kind: Repeat, ROM: r}
	if p.tracker.Seen(r, now) {
		ev.Kind = NewKey
		if _, ok := p.ignore[r]; ok {
			ev.Kind = Ignored
		} else if p.sender != nil {
			ev.Err = p.sender.Send(r.String())
		}
	}
	ev.State = p.tracker.State()
	return ev
}

// busError turns a 1-Wire level failure, like a shorted bus, into a Rejected
// event. Anything else is a failure of the master itself and stops the loop.
func (p *Poller) busError(ctx context.Context, err error) (Event, error) {
	var be onewire.BusError
	if !errors.As(err, &be) || !be.BusError() {
		return Event{}, err
	}
	p.sleep(ctx, p.opts.PresencePoll)
	return Event{Kind: Rejected, State: p.tracker.State(), Err: err}, nil
}

// probe reports whether the key is still on the probe.
func (p *Poller) probe() (bool, error) {
	if p.opts.Removal == RemovalReadBit {
		b, err := p.bus.ReadBit()
		return b == 0, err
	}
	return p.bus.Reset()
}

func (p *Poller) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-p.opts.Clock.After(d):
	}
}
