// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package forward

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const msgA = "0123456789ABCDE9"
const msgB = "3315FC29050000B2"

func TestClient_Send(t *testing.T) {
	s := newSink(t)
	c := New(&Opts{Addr: s.addr(), DialTimeout: time.Second})
	assert.False(t, c.Connected(), "connection is lazy")
	require.NoError(t, c.Send(msgA))
	require.NoError(t, c.Send(msgB))
	assert.True(t, c.Connected())
	assert.Equal(t, 0, c.Pending())
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return s.String() == msgA+msgB }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, s.accepted())
	assert.Equal(t, "forward{tcp://"+s.addr()+"}", c.String())
}

func TestClient_lazyDial(t *testing.T) {
	d := &flakyDialer{}
	c := New(&Opts{Addr: "127.0.0.1:1", Dial: d.dial})
	assert.Equal(t, 0, d.calls())
	require.NoError(t, c.Flush(), "nothing to flush, nothing to dial")
	assert.Equal(t, 0, d.calls())
}

// Two failed attempts, then the consumer comes up: the message is delivered
// once.
func TestClient_retry(t *testing.T) {
	s := newSink(t)
	d := &flakyDialer{fail: 2}
	c := New(&Opts{Addr: s.addr(), Dial: d.dial})

	err := c.Send(msgA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forward: dial")
	assert.Equal(t, 1, c.Pending())
	require.Error(t, c.Flush())
	assert.Equal(t, 1, c.Pending())
	assert.False(t, c.Connected())

	require.NoError(t, c.Flush())
	assert.Equal(t, 0, c.Pending())
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return s.String() == msgA }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, d.calls())
}

func TestClient_retryKeepsOrder(t *testing.T) {
	s := newSink(t)
	d := &flakyDialer{fail: 2}
	c := New(&Opts{Addr: s.addr(), Dial: d.dial})
	require.Error(t, c.Send(msgA))
	require.Error(t, c.Send(msgB))
	require.NoError(t, c.Flush())
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return s.String() == msgA+msgB }, time.Second, 5*time.Millisecond)
}

func TestClient_brokenConnection(t *testing.T) {
	s := newSink(t)
	d := &flakyDialer{broken: 1}
	c := New(&Opts{Addr: s.addr(), Dial: d.dial, WriteTimeout: time.Second})
	err := c.Send(msgA)
	require.Error(t, err)
	assert.True(t, errors.Is(err, io.ErrClosedPipe))
	assert.False(t, c.Connected(), "a failed write drops the connection")
	assert.Equal(t, 1, c.Pending())

	require.NoError(t, c.Send(msgB))
	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return s.String() == msgA+msgB }, time.Second, 5*time.Millisecond)
}

func TestClient_closed(t *testing.T) {
	c := New(nil)
	require.NoError(t, c.Close())
	assert.Error(t, c.Send(msgA))
	assert.Error(t, c.Flush())
	assert.Equal(t, 0, c.Pending())
}

//

// sink is a consumer accepting connections one after the other and
// collecting everything written to it.
type sink struct {
	ln  net.Listener
	mu  sync.Mutex
	buf bytes.Buffer
	n   int
}

func newSink(t *testing.T) *sink {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &sink{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.mu.Lock()
			s.n++
			s.mu.Unlock()
			b, _ := io.ReadAll(conn)
			conn.Close()
			s.mu.Lock()
			s.buf.Write(b)
			s.mu.Unlock()
		}
	}()
	return s
}

func (s *sink) addr() string {
	return s.ln.Addr().String()
}

func (s *sink) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func (s *sink) accepted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// flakyDialer refuses the first fail dials, then hands out broken
// connections for the next broken dials, then really dials.
type flakyDialer struct {
	mu     sync.Mutex
	fail   int
	broken int
	n      int
}

func (f *flakyDialer) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	f.mu.Lock()
	f.n++
	n := f.n
	f.mu.Unlock()
	if n <= f.fail {
		return nil, errors.New("connection refused")
	}
	if n <= f.fail+f.broken {
		a, b := net.Pipe()
		b.Close()
		return a, nil
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

func (f *flakyDialer) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.n
}
