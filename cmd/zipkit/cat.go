// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lemon4ksan/zipkit"
)

var catCmd = &cobra.Command{
	Use:   "cat archive.zip name",
	Short: "Write one decoded entry to stdout",
	Args:  cobra.ExactArgs(2),
	RunE:  cat,
}

func cat(cmd *cobra.Command, args []string) error {
	r, err := zipkit.OpenReader(args[0], zipkit.WithReaderLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer r.Close()

	er, err := r.Open(args[1])
	if err != nil {
		return err
	}
	defer er.Close()

	n, err := io.Copy(os.Stdout, er)
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}
	slog.Debug("entry written", slog.String("name", args[1]), slog.Int64("bytes", n))
	return nil
}
