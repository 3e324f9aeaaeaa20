// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ds248x

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/ibuttond/ibutton"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/onewire"
)

var testROM = ibutton.ROM{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd, 0xe9}

func TestNew_ds2483(t *testing.T) {
	b := &testBus{Playback: &i2ctest.Playback{Ops: initOps()}}
	d, err := New(b, 0x18, &DefaultOpts)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); !strings.HasPrefix(s, "DS2483{") {
		t.Fatal(s)
	}
	if err := d.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_ds2482(t *testing.T) {
	b := &testBus{
		Playback: &i2ctest.Playback{Ops: initOps()[:3]},
		noPCR:    true,
	}
	d, err := New(b, 0x18, nil)
	if err != nil {
		t.Fatal(err)
	}
	if s := d.String(); !strings.HasPrefix(s, "DS2482-100{") {
		t.Fatal(s)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_fail(t *testing.T) {
	if _, err := New(&i2ctest.Playback{}, 0x30, nil); err == nil {
		t.Fatal("invalid address")
	}
	b := &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdReset}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x00}},
	}}
	if _, err := New(b, 0x18, nil); err == nil || !strings.Contains(err.Error(), "invalid status register") {
		t.Fatalf("unexpected error %v", err)
	}
	b = &i2ctest.Playback{Ops: []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdReset}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x18}},
		{Addr: 0x18, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x0f}},
	}}
	if _, err := New(b, 0x18, nil); err == nil || !strings.Contains(err.Error(), "device config register") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestReset(t *testing.T) {
	ops := append(initOps(),
		resetOps(0x02)...)
	ops = append(ops, resetOps(0x00)...)
	ops = append(ops, resetOps(0x04)...)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	if present, err := d.Reset(); err != nil || !present {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	if present, err := d.Reset(); err != nil || present {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	_, err := d.Reset()
	if s, ok := err.(onewire.ShortedBusError); !ok || !s.IsShorted() {
		t.Fatalf("expected shorted bus, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestBits(t *testing.T) {
	ops := append(initOps(),
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WBit, 0x00}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x00}},
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WBit, 0x80}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x20}},
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WBit, 0x80}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x00}},
	)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	if err := d.WriteBit(0); err != nil {
		t.Fatal(err)
	}
	if v, err := d.ReadBit(); err != nil || v != 1 {
		t.Fatalf("ReadBit() = %d, %v", v, err)
	}
	if v, err := d.ReadBit(); err != nil || v != 0 {
		t.Fatalf("ReadBit() = %d, %v", v, err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestReadIButton(t *testing.T) {
	ops := append(initOps(), resetOps(0x02)...)
	ops = append(ops, readROMOps()...)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	if present, err := d.Reset(); err != nil || !present {
		t.Fatalf("Reset() = %t, %v", present, err)
	}
	r, err := ibutton.Read(d)
	if err != nil {
		t.Fatal(err)
	}
	if r != testROM {
		t.Fatalf("got %s", r)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTx(t *testing.T) {
	ops := append(initOps(), resetOps(0x02)...)
	ops = append(ops, readROMOps()...)
	ops = append(ops, resetOps(0x00)...)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	r, err := ibutton.ReadROM(d)
	if err != nil {
		t.Fatal(err)
	}
	if r != testROM {
		t.Fatalf("got %s", r)
	}
	err = d.Tx([]byte{ibutton.CmdReadROM}, make([]byte, 8), onewire.WeakPullup)
	if n, ok := err.(onewire.NoDevicesError); !ok || !n.NoDevices() {
		t.Fatalf("expected no devices, got %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestTx_strongPullup(t *testing.T) {
	ops := append(initOps(), resetOps(0x02)...)
	ops = append(ops,
		i2ctest.IO{Addr: 0x18, W: []byte{cmdWriteConfig, 0xa5}},
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WWrite, 0x44}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x00}},
	)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	if err := d.Tx([]byte{0x44}, nil, onewire.StrongPullup); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSearchTriplet(t *testing.T) {
	ops := append(initOps(),
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WTriplet, 0x80}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x40 | 0x80}},
		i2ctest.IO{Addr: 0x18, W: []byte{cmd1WTriplet, 0x00}},
		i2ctest.IO{Addr: 0x18, R: []byte{0x20}},
	)
	b := &testBus{Playback: &i2ctest.Playback{Ops: ops}}
	d := newDev(t, b)
	tr, err := d.SearchTriplet(1)
	if err != nil {
		t.Fatal(err)
	}
	if !tr.GotZero || tr.GotOne || tr.Taken != 1 {
		t.Fatalf("unexpected %#v", tr)
	}
	tr, err = d.SearchTriplet(0)
	if err != nil {
		t.Fatal(err)
	}
	if tr.GotZero || !tr.GotOne || tr.Taken != 0 {
		t.Fatalf("unexpected %#v", tr)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestPersistentError(t *testing.T) {
	b := &testBus{Playback: &i2ctest.Playback{Ops: initOps()}}
	d := newDev(t, b)
	if _, err := d.Reset(); err == nil {
		t.Fatal("expected I²C failure")
	}
	if err := d.WriteByte(0x33); err == nil {
		t.Fatal("error must persist")
	}
	if _, err := d.ReadByte(); err == nil {
		t.Fatal("error must persist")
	}
	if b.failures != 1 {
		t.Fatalf("bus accessed %d times after the failure", b.failures-1)
	}
	if _, err := d.SearchTriplet(0); err == nil {
		t.Fatal("error must persist")
	}
}

//

func init() {
	sleep = func(time.Duration) {}
}

func newDev(t *testing.T, b *testBus) *Dev {
	d, err := New(b, 0x18, &DefaultOpts)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

// initOps is the DS2483 initialization with DefaultOpts.
func initOps() []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmdReset}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regStatus}, R: []byte{0x18}},
		{Addr: 0x18, W: []byte{cmdWriteConfig, 0xe1}, R: []byte{0x01}},
		{Addr: 0x18, W: []byte{cmdSetReadPtr, regPCR}},
		{Addr: 0x18, W: []byte{cmdAdjPort, 0x06, 0x26, 0x46, 0x66, 0x86}},
	}
}

func resetOps(status byte) []i2ctest.IO {
	return []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmd1WReset}},
		{Addr: 0x18, R: []byte{status}},
	}
}

func readROMOps() []i2ctest.IO {
	ops := []i2ctest.IO{
		{Addr: 0x18, W: []byte{cmd1WWrite, ibutton.CmdReadROM}},
		{Addr: 0x18, R: []byte{0x00}},
	}
	for _, v := range testROM {
		ops = append(ops,
			i2ctest.IO{Addr: 0x18, W: []byte{cmd1WRead}},
			i2ctest.IO{Addr: 0x18, R: []byte{0x00}},
			i2ctest.IO{Addr: 0x18, W: []byte{cmdSetReadPtr, regRDR}, R: []byte{v}},
		)
	}
	return ops
}

// testBus is a playback that can NACK the port configuration register, as a
// DS2482-100 does, and fails once every recorded operation was played.
type testBus struct {
	*i2ctest.Playback
	noPCR    bool
	failures int
}

func (b *testBus) Tx(addr uint16, w, r []byte) error {
	if b.noPCR && bytes.Equal(w, []byte{cmdSetReadPtr, regPCR}) {
		return errors.New("i2c: nack")
	}
	if b.Count >= len(b.Ops) {
		b.failures++
		return errors.New("i2c: bus failure")
	}
	return b.Playback.Tx(addr, w, r)
}
