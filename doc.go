// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package zipkit implements the container layer of the ZIP format: random
// access channels over files and split archives, the extra-field codec
// (ZIP64, Unicode path and comment, NTFS times), and a scatter/gather
// pipeline that compresses entries concurrently and writes them into one
// archive in a single sequential pass.
//
// # Key Features
//
// 1. Concurrency: entries are compressed on many goroutines into a
// [Pipeline] backed by a temporary file or memory, then gathered into a
// [Writer] without recompression. [ParallelCreator] drives the pipeline with
// a bounded worker pool and an optional size budget.
//
// 2. Split archives: [OpenSplitArchive] composes name.z01, name.z02, ... and
// name.zip into one [Channel], and [Reader] resolves disk numbers through it.
//
// 3. Compatibility: ZIP64 sizes and offsets, Unicode path and comment fields
// with CRC checks against the raw header bytes, code page 437 names, Unix
// permissions and NTFS timestamps.
//
// 4. Context awareness: scatter and directory scanning stop when their
// context.Context is done.
//
// # Basic Usage
//
// Creating an archive in parallel:
//
//	p, _ := zipkit.NewFilePipeline("")
//	pc := zipkit.NewParallelCreator(ctx, p, zipkit.WithWorkers(8))
//	defer pc.Close()
//
//	pc.SubmitFile("report.pdf", "docs/report.pdf", zipkit.Deflated)
//	pc.SubmitFile("data.bin", "data.bin", zipkit.ZStandard)
//
//	f, _ := os.Create("output.zip")
//	w := zipkit.NewWriter(f)
//	pc.WriteTo(w)
//	w.Close()
//
// Reading an entry, possibly from a split archive:
//
//	r, _ := zipkit.OpenReader("archive.zip")
//	defer r.Close()
//	data, _ := r.ReadAll("docs/report.pdf")
package zipkit
