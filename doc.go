// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package ibuttond is a container for the packages of an unattended iButton
// reader: a bit-banged or I²C 1-Wire master, ROM code validation, presence
// tracking and forwarding of new keys over TCP.
//
// The daemon itself lives in cmd/ibuttond.
package ibuttond
