// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// ibuttond reads iButton keys from a 1-Wire probe and forwards every newly
// seated key, as 16 uppercase hex digits, to a TCP consumer.
//
// By default it bit-bangs GPIO4 through periph and sends to 127.0.0.1:5000.
// Run with -h for the options; they can also be set in a YAML file passed
// with -config:
//
//	driver: gpiomem
//	pin: GPIO4
//	forward: 127.0.0.1:5000
//	forget_timeout: 1s
//	ignore:
//	  - 33-00000529fc15
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/GermanBionicSystems/ibuttond/forward"
	"github.com/GermanBionicSystems/ibuttond/poller"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("ibuttond: ")
	c, err := parseArgs(os.Args[1:], os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal(err)
	}
	if err := run(c); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err)
	}
}

func run(c *config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts, err := c.pollerOpts()
	if err != nil {
		return err
	}
	// Failing to open the bus at startup is fatal.
	b, closeBus, err := openBus(c)
	if err != nil {
		return err
	}

	client := forward.New(&forward.Opts{
		Network:      forward.DefaultOpts.Network,
		Addr:         c.Forward,
		DialTimeout:  forward.DefaultOpts.DialTimeout,
		WriteTimeout: forward.DefaultOpts.WriteTimeout,
	})
	defer client.Close()
	async := forward.NewAsync(client, &forward.AsyncOpts{Queue: c.Queue, RetryInterval: c.RetryInterval})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = async.Run(ctx)
	}()

	p := poller.New(b, async, opts)
	r := newReporter(c.Status, c.Verbose, os.Stdout)
	defer r.halt()

	log.Printf("reading %s, forwarding to %s", b, client)
	// Slot timing relies on busy-waits; keep them on one OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	reopen := func() (bus, func() error, error) { return openBus(c) }
	serve(ctx, p, closeBus, reopen, reopenDelay, r.event)
	stop()
	<-done
	if n := client.Pending(); n != 0 {
		log.Printf("dropping %d undelivered identifier(s)", n)
	}
	return nil
}

const reopenDelay = time.Second

// serve runs p until ctx ends. When the bus master fails it is closed and
// reopened every pause until that succeeds; the tracker state survives.
// The last bus is closed on return.
func serve(ctx context.Context, p *poller.Poller, closeBus func() error, reopen func() (bus, func() error, error), pause time.Duration, fn func(poller.Event)) {
	defer func() { _ = closeBus() }()
	for {
		err := p.Run(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		log.Printf("bus failure: %v", err)
		_ = closeBus()
		closeBus = func() error { return nil }
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pause):
			}
			b, c, err := reopen()
			if err != nil {
				log.Printf("could not reopen bus: %v", err)
				continue
			}
			p.SetBus(b)
			closeBus = c
			log.Printf("reading %s", b)
			break
		}
	}
}
