// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewirebb implements a 1-Wire bus master by bit-banging a single
// GPIO line.
//
// The line must have an external pull-up resistor (4.7kΩ is typical); the
// driver pulls it low by switching the pin to output and releases it by
// switching the pin back to input, which gives an open-drain driver on hosts
// that have none.
//
// Every slot has a fixed total length independent of the bit value, only the
// low portion varies, so consecutive slots stay in step with the device.
// Timing relies on an injected delay.Delayer; the default busy-waits on the
// monotonic clock since kernel sleeps cannot deliver single microseconds.
//
// Only single-drop use is supported: Search returns an error.
//
// # Datasheet
//
// https://www.analog.com/en/resources/technical-articles/1wire-communication-through-software.html
package onewirebb
