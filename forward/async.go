// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package forward

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jonboulle/clockwork"
)

// AsyncOpts contains options to pass to NewAsync.
type AsyncOpts struct {
	Queue         int           // channel capacity
	RetryInterval time.Duration // how often pending messages are retried

	Clock  clockwork.Clock // defaults to the real clock
	Logger *log.Logger     // defaults to log.Default()
}

// DefaultAsyncOpts is the recommended default options.
var DefaultAsyncOpts = AsyncOpts{
	Queue:         64,
	RetryInterval: time.Second,
}

// NewAsync returns an Async delivering through c. Call Run to start it.
func NewAsync(c *Client, opts *AsyncOpts) *Async {
	if opts == nil {
		opts = &DefaultAsyncOpts
	}
	a := &Async{
		c:      c,
		ch:     make(chan string, opts.Queue),
		done:   make(chan struct{}),
		retry:  opts.RetryInterval,
		clock:  opts.Clock,
		logger: opts.Logger,
	}
	if a.retry <= 0 {
		a.retry = DefaultAsyncOpts.RetryInterval
	}
	if a.clock == nil {
		a.clock = clockwork.NewRealClock()
	}
	if a.logger == nil {
		a.logger = log.Default()
	}
	return a
}

// Async hands messages to a Client from its own goroutine, so that dialing a
// slow or absent consumer never stalls the caller.
//
// Messages go through a single channel and are delivered in the order Send
// was called.
type Async struct {
	c      *Client
	ch     chan string
	done   chan struct{}
	retry  time.Duration
	clock  clockwork.Clock
	logger *log.Logger
}

func (a *Async) String() string {
	return "async" + a.c.String()
}

// Send queues msg. It only blocks when the channel is full, and fails once
// Run has returned.
func (a *Async) Send(msg string) error {
	select {
	case <-a.done:
		return errStopped
	default:
	}
	select {
	case a.ch <- msg:
		return nil
	case <-a.done:
		return errStopped
	}
}

// Run delivers messages until ctx is canceled. It must be called exactly
// once.
//
// Failures are logged; undelivered messages stay queued in the Client and are
// retried every RetryInterval.
func (a *Async) Run(ctx context.Context) error {
	defer close(a.done)
	t := a.clock.NewTicker(a.retry)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-a.ch:
			if err := a.c.Send(msg); err != nil {
				a.logger.Printf("%v (%d pending)", err, a.c.Pending())
			}
		case <-t.Chan():
			n := a.c.Pending()
			if n == 0 {
				continue
			}
			if err := a.c.Flush(); err != nil {
				a.logger.Printf("%v (%d pending)", err, a.c.Pending())
				continue
			}
			a.logger.Printf("forward: delivered %d pending message(s) to %s", n, a.c.opts.Addr)
		}
	}
}

var errStopped = errors.New("forward: async sender stopped")
