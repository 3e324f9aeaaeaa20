// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package common

import (
	"testing"

	"periph.io/x/conn/v3/onewire"
)

func TestCRC8(t *testing.T) {
	var tests = []struct {
		bytes  []byte
		result byte
	}{
		{bytes: nil, result: 0x00},
		{bytes: []byte("123456789"), result: 0xa1},
		// DS18B20 ROM code 0x740000070e41ac28, family code first.
		{bytes: []byte{0x28, 0xac, 0x41, 0x0e, 0x07, 0x00, 0x00}, result: 0x74},
		{bytes: []byte{0, 0, 0, 0, 0, 0, 0}, result: 0x00},
	}
	for _, test := range tests {
		res := CRC8(test.bytes)
		if res != test.result {
			t.Errorf("CRC8(%#v)!=%#02x received %#02x", test.bytes, test.result, res)
		}
	}
}

func TestCRC8_matchesOnewire(t *testing.T) {
	buf := make([]byte, 7)
	for i := range 256 {
		for j := range buf {
			buf[j] = byte(i*31 + j*7)
		}
		if got, want := CRC8(buf), onewire.CalcCRC(buf); got != want {
			t.Fatalf("CRC8(%#v) = %#02x; onewire.CalcCRC = %#02x", buf, got, want)
		}
	}
}

func TestCRC8_appendedIsZero(t *testing.T) {
	buf := []byte{0x01, 0x23, 0x45, 0x67, 0x89, 0xab, 0xcd}
	buf = append(buf, CRC8(buf))
	if c := CRC8(buf); c != 0 {
		t.Fatalf("CRC8 over payload and checksum = %#02x; want 0", c)
	}
	if !onewire.CheckCRC(buf) {
		t.Fatal("onewire.CheckCRC rejected payload with appended CRC8")
	}
}
