// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseArgsDefaults(t *testing.T) {
	cfg, rest, err := ParseArgs([]string{"program.obe"})
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Level)
	require.False(t, cfg.Verbose)
	require.Equal(t, []string{"program.obe"}, rest)
}

func TestParseArgsLevelAndVerbosity(t *testing.T) {
	cfg, rest, err := ParseArgs([]string{"-level", "1", "-vv", "program.obe"})
	require.NoError(t, err)
	require.Equal(t, 1, cfg.Level)
	require.True(t, cfg.VeryVerbose)
	require.Equal(t, []string{"program.obe"}, rest)
}

func TestParseArgsRejectsOutOfRangeLevel(t *testing.T) {
	_, _, err := ParseArgs([]string{"-level", "9", "program.obe"})
	require.Error(t, err)
}

func TestParseArgsRejectsUnsupportedTarget(t *testing.T) {
	_, _, err := ParseArgs([]string{"-target", "arm64", "program.obe"})
	require.Error(t, err)
}
