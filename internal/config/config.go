// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

// Config holds the zipkit command configuration, merged from flags,
// ZIPKIT_* environment variables and the optional TOML config file.
type Config struct {
	// Output is the archive written by create.
	Output string `mapstructure:"output"`

	// Method names the compression method: stored, deflated or zstd.
	Method string `mapstructure:"method"`

	// Level is the compression level passed to the codec.
	Level int `mapstructure:"level"`

	// Workers bounds how many entries are compressed at once.
	// Zero uses one worker per CPU.
	Workers int `mapstructure:"workers"`

	// SizeBudget bounds the total size in bytes of the files being
	// compressed at once. Zero disables the bound.
	SizeBudget int64 `mapstructure:"size_budget"`

	// Order names the submission order: default, large-last, large-first,
	// size-asc, size-desc, zip64 or name.
	Order string `mapstructure:"order"`

	// ScratchDir holds the temporary files of the scatter phase.
	// Empty uses the system temporary directory.
	ScratchDir string `mapstructure:"scratch_dir"`

	Comment     string `mapstructure:"comment"`
	LegacyNames bool   `mapstructure:"legacy_names"`

	LogLevel     string `mapstructure:"log_level"`
	LogOutputDir string `mapstructure:"log_output_dir"`
}
