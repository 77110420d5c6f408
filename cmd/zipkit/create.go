// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lemon4ksan/zipkit"
	"github.com/lemon4ksan/zipkit/internal/config"
)

var createCmd = &cobra.Command{
	Use:   "create -o archive.zip path...",
	Short: "Compress files and directories into a new archive",
	Args:  cobra.MinimumNArgs(1),
	RunE:  create,
}

func init() {
	createCmd.Flags().StringP("output", "o", "", "path to the archive to write (required)")
	createCmd.Flags().StringP("method", "m", "deflated", "compression method (stored, deflated, zstd)")
	createCmd.Flags().IntP("level", "l", zipkit.DeflateNormal, "compression level")
	createCmd.Flags().IntP("workers", "w", 0, "entries compressed at once (0 = one per CPU)")
	createCmd.Flags().Int64("size-budget", 0, "max bytes of files compressed at once (0 = unbounded)")
	createCmd.Flags().String("order", "size-desc", "submission order (default, large-last, large-first, size-asc, size-desc, zip64, name)")
	createCmd.Flags().String("scratch-dir", "", "directory for temporary files")
	createCmd.Flags().StringP("comment", "c", "", "archive comment")
	createCmd.Flags().Bool("legacy-names", false, "store non-ASCII names as code page 437 plus Unicode path fields")
	createCmd.MarkFlagRequired("output")

	viper.BindPFlag("output", createCmd.Flags().Lookup("output"))
	viper.BindPFlag("method", createCmd.Flags().Lookup("method"))
	viper.BindPFlag("level", createCmd.Flags().Lookup("level"))
	viper.BindPFlag("workers", createCmd.Flags().Lookup("workers"))
	viper.BindPFlag("size_budget", createCmd.Flags().Lookup("size-budget"))
	viper.BindPFlag("order", createCmd.Flags().Lookup("order"))
	viper.BindPFlag("scratch_dir", createCmd.Flags().Lookup("scratch-dir"))
	viper.BindPFlag("comment", createCmd.Flags().Lookup("comment"))
	viper.BindPFlag("legacy_names", createCmd.Flags().Lookup("legacy-names"))
}

func parseMethod(name string) (zipkit.CompressionMethod, error) {
	for _, m := range []zipkit.CompressionMethod{zipkit.Stored, zipkit.Deflated, zipkit.ZStandard} {
		if strings.EqualFold(name, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", zipkit.ErrAlgorithm, name)
}

func create(cmd *cobra.Command, args []string) (err error) {
	method, err := parseMethod(cfg.Method)
	if err != nil {
		return err
	}
	order, err := zipkit.ParseSortStrategy(cfg.Order)
	if err != nil {
		return err
	}

	var reqs []zipkit.EntryRequest
	for _, root := range args {
		if reqs, err = collectTree(reqs, root, method); err != nil {
			return err
		}
	}

	start := time.Now()
	logger := slog.Default()

	pipeline, err := zipkit.NewFilePipeline(cfg.ScratchDir,
		zipkit.WithCompressionLevel(cfg.Level),
		zipkit.WithPipelineLogger(logger),
	)
	if err != nil {
		return fmt.Errorf("create scratch store: %w", err)
	}

	pc := zipkit.NewParallelCreator(cmd.Context(), pipeline,
		zipkit.WithWorkers(cfg.Workers),
		zipkit.WithSizeBudget(cfg.SizeBudget),
		zipkit.WithCreatorLogger(logger),
	)
	defer func() { err = errors.Join(err, pc.Close()) }()

	for _, req := range zipkit.SortRequests(reqs, order) {
		if err := pc.Submit(req); err != nil {
			return err
		}
	}

	if err := writeArchive(cfg, pc); err != nil {
		return err
	}

	slog.Info("archive created",
		slog.String("output", cfg.Output),
		slog.Int("entries", pipeline.Len()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// collectTree appends requests for root and, for directories, everything
// below it. Archive names are relative to root's parent.
func collectTree(reqs []zipkit.EntryRequest, root string, method zipkit.CompressionMethod) ([]zipkit.EntryRequest, error) {
	base := filepath.Dir(filepath.Clean(root))

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !d.Type().IsRegular() {
			slog.Warn("skipping special file", slog.String("path", path))
			return nil
		}

		rel, err := filepath.Rel(base, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		req, err := zipkit.FileRequest(path, filepath.ToSlash(rel), method)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
		return nil
	})
	return reqs, err
}

func writeArchive(cfg *config.Config, pc *zipkit.ParallelCreator) (err error) {
	out, err := os.Create(cfg.Output)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
		if err != nil {
			os.Remove(cfg.Output)
		}
	}()

	opts := []zipkit.WriterOption{
		zipkit.WithComment(cfg.Comment),
		zipkit.WithWriterLogger(slog.Default()),
	}
	if cfg.LegacyNames {
		opts = append(opts, zipkit.WithLegacyNames())
	}
	w := zipkit.NewWriter(out, opts...)

	if err := pc.WriteTo(w); err != nil {
		return errors.Join(err, w.Close())
	}
	return w.Close()
}
