// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package ibutton

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/GermanBionicSystems/ibuttond/common"
	"periph.io/x/conn/v3/onewire"
)

// Family is the first byte of a ROM code.
type Family byte

const (
	DS1990A Family = 0x01 // Serial number iButton
	DS1961S Family = 0x33 // SHA-1 iButton
	DS1971  Family = 0x14 // 256-bit EEPROM iButton
	DS1982  Family = 0x09 // 1Kb add-only iButton
)

func (f Family) String() string {
	switch f {
	case DS1990A:
		return "DS1990A"
	case DS1961S:
		return "DS1961S"
	case DS1971:
		return "DS1971"
	case DS1982:
		return "DS1982"
	default:
		return "unknown"
	}
}

// ROM is the 64-bit identifier of a device, in bus order.
type ROM [8]byte

// NewROM returns the ROM code made of family and serial with its CRC
// computed.
//
// serial is given least significant byte first, as it travels on the bus.
func NewROM(family Family, serial [6]byte) ROM {
	var r ROM
	r[0] = byte(family)
	copy(r[1:7], serial[:])
	r[7] = common.CRC8(r[:7])
	return r
}

// ParseROM parses a ROM code.
//
// Two forms are accepted: 16 hex digits in bus order as produced by String
// ("01B6A9D10C0000E2"), and the Linux w1 sysfs name made of the family code
// and the serial number most significant byte first ("01-00000cd1a9b6"). The
// CRC is verified in the first form and computed in the second.
func ParseROM(s string) (ROM, error) {
	var r ROM
	if fam, serial, ok := strings.Cut(s, "-"); ok {
		if len(fam) != 2 || len(serial) != 12 {
			return r, errors.New("ibutton: invalid w1 device name " + s)
		}
		if _, err := hex.Decode(r[:1], []byte(fam)); err != nil {
			return r, errors.New("ibutton: invalid w1 device name " + s)
		}
		var sn [6]byte
		if _, err := hex.Decode(sn[:], []byte(serial)); err != nil {
			return r, errors.New("ibutton: invalid w1 device name " + s)
		}
		for i := range sn {
			r[1+i] = sn[5-i]
		}
		r[7] = common.CRC8(r[:7])
		return r, nil
	}
	if len(s) != 16 {
		return r, errors.New("ibutton: invalid ROM code " + s)
	}
	if _, err := hex.Decode(r[:], []byte(s)); err != nil {
		return r, errors.New("ibutton: invalid ROM code " + s)
	}
	if c := common.CRC8(r[:7]); c != r[7] {
		return r, &ChecksumError{Want: c, Got: r[7]}
	}
	return r, nil
}

// FromAddress converts a periph onewire.Address to a ROM code.
func FromAddress(a onewire.Address) ROM {
	var r ROM
	binary.LittleEndian.PutUint64(r[:], uint64(a))
	return r
}

// Family returns the family code.
func (r ROM) Family() Family {
	return Family(r[0])
}

// Serial returns the 48-bit serial number.
func (r ROM) Serial() uint64 {
	var b [8]byte
	copy(b[:6], r[1:7])
	return binary.LittleEndian.Uint64(b[:])
}

// Address returns the ROM code as a periph onewire.Address, family code in
// the least significant byte.
func (r ROM) Address() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(r[:]))
}

// String returns the 16 uppercase hex digits of the ROM code in bus order.
//
// This is the form forwarded to consumers.
func (r ROM) String() string {
	return strings.ToUpper(hex.EncodeToString(r[:]))
}

// W1Name returns the name the Linux w1 subsystem gives the device, e.g.
// "01-00000cd1a9b6".
func (r ROM) W1Name() string {
	var sn [6]byte
	for i := range sn {
		sn[i] = r[6-i]
	}
	return hex.EncodeToString(r[:1]) + "-" + hex.EncodeToString(sn[:])
}

// IsZero reports whether r is the zero ROM code, which no device carries.
func (r ROM) IsZero() bool {
	return r == ROM{}
}
