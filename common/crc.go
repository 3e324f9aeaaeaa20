// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, the CRC8 used to protect 1-Wire ROM codes.
package common

// CRC8 calculates the Dallas/Maxim 8-bit CRC of the byte slice parameter and
// returns the calculated value.
//
// The polynomial is x⁸+x⁵+x⁴+1 and bits are processed least significant first,
// which is the order they travel on a 1-Wire bus. Appending the result to the
// input and running CRC8 over the whole slice yields 0.
func CRC8(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		for range 8 {
			mix := (crc ^ val) & 0x01
			crc >>= 1
			if mix != 0 {
				crc ^= 0x8c
			}
			val >>= 1
		}
	}
	return crc
}
