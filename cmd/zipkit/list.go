// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/lemon4ksan/zipkit"
)

var listCmd = &cobra.Command{
	Use:   "list archive.zip",
	Short: "List the entries of an archive, including split archives",
	Args:  cobra.ExactArgs(1),
	RunE:  list,
}

func init() {
	listCmd.Flags().BoolP("test", "t", false, "decode every entry and verify its checksum")
}

func list(cmd *cobra.Command, args []string) error {
	verify, _ := cmd.Flags().GetBool("test")

	r, err := zipkit.OpenReader(args[0], zipkit.WithReaderLogger(slog.Default()))
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer r.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "Size\tCompressed\tMethod\tModified\tName\t")

	var errs []error
	for _, e := range r.Entries() {
		size, compressed := int64(e.UncompressedSize), int64(e.CompressedSize)
		if verify && !e.IsDir() {
			if size, compressed, err = testEntry(r, e); err != nil {
				errs = append(errs, err)
			}
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\t\n",
			size, compressed, e.Method, e.Modified.Format("2006-01-02 15:04"), e.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if c := r.Comment(); c != "" {
		fmt.Println(c)
	}
	return errors.Join(errs...)
}

// testEntry decodes e and returns the byte counts observed while reading.
func testEntry(r *zipkit.Reader, e *zipkit.Entry) (int64, int64, error) {
	er, err := r.OpenEntry(e)
	if err != nil {
		return 0, 0, fmt.Errorf("%s: %w", e.Name, err)
	}
	defer er.Close()

	if _, err := io.Copy(io.Discard, er); err != nil {
		return er.UncompressedCount(), er.CompressedCount(), fmt.Errorf("%s: %w", e.Name, err)
	}
	return er.UncompressedCount(), er.CompressedCount(), nil
}
