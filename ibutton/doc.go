// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ibutton reads the ROM code of a Dallas/Maxim iButton (DS1990A and
// friends) seated alone on a 1-Wire bus.
//
// The ROM code is 8 bytes as they come off the bus: the family code, a 48-bit
// serial number least significant byte first, and a CRC-8 over the first 7
// bytes. A reading is only accepted when the CRC matches and the tail does not
// look like a floating or shorted line.
//
// # Datasheet
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/DS1990A.pdf
package ibutton
