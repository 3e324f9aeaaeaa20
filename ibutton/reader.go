// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ibutton

import (
	"errors"
	"fmt"
	"io"

	"github.com/GermanBionicSystems/ibuttond/common"
	"periph.io/x/conn/v3/onewire"
)

// CmdReadROM is the single-drop READ ROM command.
const CmdReadROM = 0x33

// MaxTrailing is the number of identical 0x00 or 0xff bytes at the end of a
// reading from which it is rejected as line noise.
const MaxTrailing = 6

// Conn is a 1-Wire bus on which a reset with presence was just performed.
type Conn interface {
	io.ByteReader
	io.ByteWriter
}

// Read issues READ ROM on c and returns the validated ROM code.
//
// The caller must have reset the bus and seen a presence pulse. Rejected
// readings return a *ChecksumError or a *DegenerateError.
func Read(c Conn) (ROM, error) {
	var r ROM
	if err := c.WriteByte(CmdReadROM); err != nil {
		return r, err
	}
	for i := range r {
		b, err := c.ReadByte()
		if err != nil {
			return ROM{}, err
		}
		r[i] = b
	}
	if err := Validate(r); err != nil {
		return ROM{}, err
	}
	return r, nil
}

// ReadROM performs a complete READ ROM transaction on a periph onewire.Bus,
// reset included.
func ReadROM(b onewire.Bus) (ROM, error) {
	var r ROM
	if err := b.Tx([]byte{CmdReadROM}, r[:], onewire.WeakPullup); err != nil {
		return ROM{}, err
	}
	if err := Validate(r); err != nil {
		return ROM{}, err
	}
	return r, nil
}

// Validate checks the CRC of r, then that it does not end with a run of
// MaxTrailing or more 0x00 or 0xff bytes.
//
// A floating line reads as all ones and a shorted one as all zeros; both can
// happen to satisfy the CRC (seven zero bytes have a zero CRC), so the tail
// check catches what the CRC lets through.
func Validate(r ROM) error {
	if c := common.CRC8(r[:7]); c != r[7] {
		return &ChecksumError{Want: c, Got: r[7]}
	}
	for _, fill := range []byte{0xff, 0x00} {
		if n := trailing(r, fill); n >= MaxTrailing {
			return &DegenerateError{Fill: fill, Count: n}
		}
	}
	return nil
}

// IsRejected reports whether err is a reading rejected by Validate.
//
// Rejections are expected while a device is being seated and are usually
// retried silently.
func IsRejected(err error) bool {
	var ce *ChecksumError
	var de *DegenerateError
	return errors.As(err, &ce) || errors.As(err, &de)
}

// ChecksumError is returned when the CRC byte does not match the first seven
// bytes. It implements onewire.BusError.
type ChecksumError struct {
	Want byte // computed
	Got  byte // read
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("ibutton: incorrect ROM CRC 0x%02x, expected 0x%02x", e.Got, e.Want)
}

// BusError implements onewire.BusError.
func (e *ChecksumError) BusError() bool { return true }

// DegenerateError is returned when a reading ends with too many identical
// fill bytes. It implements onewire.BusError.
type DegenerateError struct {
	Fill  byte // 0x00 or 0xff
	Count int  // number of trailing Fill bytes
}

func (e *DegenerateError) Error() string {
	return fmt.Sprintf("ibutton: ROM ends with %d bytes of 0x%02x, line noise", e.Count, e.Fill)
}

// BusError implements onewire.BusError.
func (e *DegenerateError) BusError() bool { return true }

func trailing(r ROM, fill byte) int {
	n := 0
	for i := len(r) - 1; i >= 0 && r[i] == fill; i-- {
		n++
	}
	return n
}

var _ onewire.BusError = &ChecksumError{}
var _ onewire.BusError = &DegenerateError{}
