// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/GermanBionicSystems/ibuttond/delay"
	"github.com/GermanBionicSystems/ibuttond/forward"
	"github.com/GermanBionicSystems/ibuttond/ibutton"
	"github.com/GermanBionicSystems/ibuttond/poller"
	"gopkg.in/yaml.v3"
)

// config is the content of the optional YAML file. Flags override it.
type config struct {
	// Driver selects the bus: periph, gpiomem or ds248x.
	Driver string `yaml:"driver"`
	Pin    string `yaml:"pin"`
	Delay  string `yaml:"delay"`

	I2CBus  string `yaml:"i2c_bus"`
	I2CAddr uint16 `yaml:"i2c_addr"`

	Forward       string        `yaml:"forward"`
	Queue         int           `yaml:"queue"`
	RetryInterval time.Duration `yaml:"retry_interval"`

	ForgetTimeout time.Duration `yaml:"forget_timeout"`
	PresencePoll  time.Duration `yaml:"presence_poll"`
	RemovalPoll   time.Duration `yaml:"removal_poll"`
	Removal       string        `yaml:"removal"`
	// Ignore lists keys never forwarded, as 16 hex digits or in the w1 form.
	Ignore []string `yaml:"ignore"`

	// Status is auto, led, log or off.
	Status  string `yaml:"status"`
	Verbose bool   `yaml:"verbose"`
}

func defaultConfig() *config {
	return &config{
		Driver:        "periph",
		Pin:           "GPIO4",
		Delay:         "spin",
		I2CAddr:       0x18,
		Forward:       forward.DefaultOpts.Addr,
		Queue:         forward.DefaultAsyncOpts.Queue,
		RetryInterval: forward.DefaultAsyncOpts.RetryInterval,
		ForgetTimeout: poller.DefaultOpts.ForgetTimeout,
		PresencePoll:  poller.DefaultOpts.PresencePoll,
		RemovalPoll:   poller.DefaultOpts.RemovalPoll,
		Removal:       poller.DefaultOpts.Removal.String(),
		Status:        "auto",
	}
}

// loadConfig reads path over the defaults.
func loadConfig(path string) (*config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	c := defaultConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return c, nil
}

// parseArgs builds the configuration from the defaults, the file named by
// -config and the other flags, in increasing precedence.
func parseArgs(args []string, out io.Writer) (*config, error) {
	var path string
	fs := newFlagSet(defaultConfig(), &path, out)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() != 0 {
		return nil, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	c := defaultConfig()
	if path != "" {
		var err error
		if c, err = loadConfig(path); err != nil {
			return nil, err
		}
	}
	// Second pass so that flags win over the file.
	if err := newFlagSet(c, &path, out).Parse(args); err != nil {
		return nil, err
	}
	return c, c.validate()
}

func newFlagSet(c *config, path *string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("ibuttond", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(path, "config", *path, "YAML configuration file")
	fs.StringVar(&c.Driver, "driver", c.Driver, "bus driver: periph, gpiomem or ds248x")
	fs.StringVar(&c.Pin, "pin", c.Pin, "1-Wire GPIO line")
	fs.StringVar(&c.Delay, "delay", c.Delay, "slot delay: spin or nanospin")
	fs.StringVar(&c.I2CBus, "i2c", c.I2CBus, "I²C bus for the ds248x driver")
	fs.Func("i2c-addr", "I²C address of the ds248x (default 0x18)", func(s string) error {
		a, err := strconv.ParseUint(s, 0, 16)
		if err != nil {
			return err
		}
		c.I2CAddr = uint16(a)
		return nil
	})
	fs.StringVar(&c.Forward, "forward", c.Forward, "TCP address identifiers are sent to")
	fs.DurationVar(&c.ForgetTimeout, "forget", c.ForgetTimeout, "how long a lifted key is remembered")
	fs.StringVar(&c.Removal, "removal", c.Removal, "removal probe: reset or readbit")
	fs.Func("ignore", "key never forwarded; can be repeated", func(s string) error {
		c.Ignore = append(c.Ignore, s)
		return nil
	})
	fs.StringVar(&c.Status, "status", c.Status, "status output: auto, led, log or off")
	fs.BoolVar(&c.Verbose, "v", c.Verbose, "log every event, rejected reads included")
	return fs
}

func (c *config) validate() error {
	switch c.Driver {
	case "periph", "gpiomem", "ds248x":
	default:
		return fmt.Errorf("unknown driver %q", c.Driver)
	}
	if _, ok := delay.ByName(c.Delay); !ok {
		return fmt.Errorf("unknown delay %q", c.Delay)
	}
	switch c.Status {
	case "auto", "led", "log", "off":
	default:
		return fmt.Errorf("unknown status output %q", c.Status)
	}
	if c.Forward == "" {
		return errors.New("forward address is required")
	}
	for _, d := range []struct {
		name string
		v    time.Duration
	}{
		{"forget timeout", c.ForgetTimeout},
		{"presence poll", c.PresencePoll},
		{"removal poll", c.RemovalPoll},
		{"retry interval", c.RetryInterval},
	} {
		if d.v <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.v)
		}
	}
	if c.Queue <= 0 {
		return fmt.Errorf("queue must be positive, got %d", c.Queue)
	}
	if _, err := c.pollerOpts(); err != nil {
		return err
	}
	return nil
}

func (c *config) pollerOpts() (*poller.Opts, error) {
	r, err := poller.ParseRemoval(c.Removal)
	if err != nil {
		return nil, err
	}
	opts := &poller.Opts{
		ForgetTimeout: c.ForgetTimeout,
		PresencePoll:  c.PresencePoll,
		RemovalPoll:   c.RemovalPoll,
		Removal:       r,
	}
	for _, s := range c.Ignore {
		rom, err := ibutton.ParseROM(s)
		if err != nil {
			return nil, fmt.Errorf("ignore list: %w", err)
		}
		opts.Ignore = append(opts.Ignore, rom)
	}
	return opts, nil
}
