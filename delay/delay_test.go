// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package delay

import (
	"reflect"
	"testing"
	"time"
)

func TestSpin(t *testing.T) {
	for _, d := range []time.Duration{0, time.Microsecond, 80 * time.Microsecond, 550 * time.Microsecond} {
		start := time.Now()
		Spin{}.Delay(d)
		if e := time.Since(start); e < d {
			t.Errorf("Spin.Delay(%s) returned after %s", d, e)
		}
	}
}

func TestFunc(t *testing.T) {
	var got []time.Duration
	var d Delayer = Func(func(d time.Duration) { got = append(got, d) })
	d.Delay(5 * time.Microsecond)
	d.Delay(75 * time.Microsecond)
	if want := []time.Duration{5 * time.Microsecond, 75 * time.Microsecond}; !reflect.DeepEqual(got, want) {
		t.Fatalf("recorded %v; want %v", got, want)
	}
}

func TestByName(t *testing.T) {
	data := []struct {
		name string
		want string
		ok   bool
	}{
		{"", "spin", true},
		{"spin", "spin", true},
		{"nanospin", "nanospin", true},
		{"sleep", "", false},
	}
	for _, line := range data {
		d, ok := ByName(line.name)
		if ok != line.ok {
			t.Fatalf("ByName(%q) ok = %t", line.name, ok)
		}
		if !ok {
			continue
		}
		if s := d.(interface{ String() string }).String(); s != line.want {
			t.Errorf("ByName(%q) = %s; want %s", line.name, s, line.want)
		}
	}
}
