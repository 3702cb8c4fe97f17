// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config holds cmd/objeckvm's run-time settings (spec.md
// §4.1's optimization level, plus verbosity). Flags only -- no
// file-based configuration is needed by this core, and none is
// invented.
package config

import (
	"flag"

	"github.com/pkg/errors"
)

// Config is the set of flags shared by every objeckvm subcommand.
type Config struct {
	Level       int
	Verbose     bool
	VeryVerbose bool
	Target      string
	Iterations  int
}

// ParseArgs parses a subcommand's trailing arguments (everything
// after the subcommand name) into a Config, returning the remaining
// positional arguments (the program path).
func ParseArgs(args []string) (*Config, []string, error) {
	fs := flag.NewFlagSet("objeckvm", flag.ContinueOnError)
	cfg := &Config{}
	fs.IntVar(&cfg.Level, "level", 3, "optimizer level 0-3 (spec.md §4.1)")
	fs.BoolVar(&cfg.Verbose, "v", false, "enable verbose tracing")
	fs.BoolVar(&cfg.VeryVerbose, "vv", false, "enable very verbose (trace-level) tracing")
	fs.StringVar(&cfg.Target, "target", "x86_64", "JIT target triple (only x86_64 is implemented)")
	fs.IntVar(&cfg.Iterations, "n", 10, "bench: iterations per method")

	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	if cfg.Level < 0 || cfg.Level > 3 {
		return nil, nil, errors.Errorf("optimizer level must be 0-3, got %d", cfg.Level)
	}
	if cfg.Target != "x86_64" {
		return nil, nil, errors.Errorf("unsupported target %q", cfg.Target)
	}
	return cfg, fs.Args(), nil
}
