// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package forward delivers identifiers to a consumer process over a
// long-lived stream connection.
//
// Each message is written as is, without length prefix or delimiter; the
// consumer applies its own framing. The connection is opened lazily on the
// first send and reopened on the next send after any failure. Messages that
// could not be written stay queued, in order, until they are.
package forward

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Network      string        // "tcp" or "unix"
	Addr         string        // consumer endpoint
	DialTimeout  time.Duration // connection timeout
	WriteTimeout time.Duration // per message write timeout, 0 for none

	// Dial opens the connection. Defaults to a net.Dialer with DialTimeout.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultOpts is the recommended default options: the consumer listens on
// the loopback interface, port 5000.
var DefaultOpts = Opts{
	Network:      "tcp",
	Addr:         "127.0.0.1:5000",
	DialTimeout:  time.Second,
	WriteTimeout: time.Second,
}

// New returns a Client. No connection is made until the first Send.
func New(opts *Opts) *Client {
	if opts == nil {
		opts = &DefaultOpts
	}
	c := &Client{opts: *opts}
	if c.opts.Network == "" {
		c.opts.Network = DefaultOpts.Network
	}
	if c.opts.Dial == nil {
		d := &net.Dialer{Timeout: c.opts.DialTimeout}
		c.opts.Dial = d.DialContext
	}
	return c
}

// Client is a lazily connected, ordered message sender.
type Client struct {
	mu      sync.Mutex
	opts    Opts
	conn    net.Conn
	pending []string
	closed  bool
}

func (c *Client) String() string {
	return fmt.Sprintf("forward{%s://%s}", c.opts.Network, c.opts.Addr)
}

// Send queues msg behind any message still pending and tries to deliver the
// queue.
//
// An error means msg, and possibly earlier messages, are still queued; they
// are retried on the next Send or Flush. msg is never dropped.
func (c *Client) Send(msg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.pending = append(c.pending, msg)
	return c.flush()
}

// Flush tries to deliver the pending messages, connecting first if needed.
func (c *Client) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	return c.flush()
}

// Pending returns the number of messages waiting for delivery.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Connected reports whether a connection is currently open.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close closes the connection. Pending messages are discarded.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	return c.drop()
}

//

func (c *Client) flush() error {
	for len(c.pending) != 0 {
		if c.conn == nil {
			if err := c.dial(); err != nil {
				return err
			}
		}
		if c.opts.WriteTimeout > 0 {
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout)); err != nil {
				_ = c.drop()
				return fmt.Errorf("forward: %w", err)
			}
		}
		// A short write is resent whole on the next connection; framing is
		// per connection.
		if _, err := c.conn.Write([]byte(c.pending[0])); err != nil {
			_ = c.drop()
			return fmt.Errorf("forward: send to %s: %w", c.opts.Addr, err)
		}
		c.pending[0] = ""
		c.pending = c.pending[1:]
	}
	return nil
}

func (c *Client) dial() error {
	ctx := context.Background()
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}
	conn, err := c.opts.Dial(ctx, c.opts.Network, c.opts.Addr)
	if err != nil {
		return fmt.Errorf("forward: dial %s: %w", c.opts.Addr, err)
	}
	c.conn = conn
	return nil
}

func (c *Client) drop() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

var errClosed = errors.New("forward: client closed")
