// Copyright 2025 Lemon4ksan. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package zipkit

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// SortStrategy defines the order in which requests are submitted to a
// ParallelCreator. Submitting large payloads first keeps workers busy until
// the end; submitting them last keeps ZIP64 headers at the tail.
type SortStrategy int

const (
	SortDefault         SortStrategy = iota
	SortLargeFilesLast                // Payloads of 4GB or more at the end
	SortLargeFilesFirst               // Payloads of 4GB or more at the start
	SortSizeAscending                 // Smallest first
	SortSizeDescending                // Largest first
	SortZIP64Optimized                // Buckets: <10MB, <4GB, >=4GB (each sorted Asc)
	SortAlphabetical                  // A-Z by entry name
)

var sortStrategyNames = map[SortStrategy]string{
	SortDefault:         "default",
	SortLargeFilesLast:  "large-last",
	SortLargeFilesFirst: "large-first",
	SortSizeAscending:   "size-asc",
	SortSizeDescending:  "size-desc",
	SortZIP64Optimized:  "zip64",
	SortAlphabetical:    "name",
}

func (s SortStrategy) String() string {
	if name, ok := sortStrategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("strategy(%d)", int(s))
}

// ParseSortStrategy returns the strategy whose String form is name.
func ParseSortStrategy(name string) (SortStrategy, error) {
	for s, n := range sortStrategyNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return SortDefault, fmt.Errorf("unknown sort strategy %q", name)
}

// SortRequests returns the requests ordered by strategy, using SizeHint as
// the payload size. The input slice is not modified and the sort is stable.
func SortRequests(reqs []EntryRequest, strategy SortStrategy) []EntryRequest {
	sorted := slices.Clone(reqs)
	if len(sorted) <= 1 {
		return sorted
	}

	switch strategy {
	case SortLargeFilesLast:
		return partitionStable(sorted, func(r EntryRequest) bool { return !isLarge(r) })
	case SortLargeFilesFirst:
		return partitionStable(sorted, isLarge)
	case SortSizeAscending:
		slices.SortStableFunc(sorted, func(a, b EntryRequest) int { return compareHints(a, b) })
	case SortSizeDescending:
		slices.SortStableFunc(sorted, func(a, b EntryRequest) int { return compareHints(b, a) })
	case SortZIP64Optimized:
		slices.SortStableFunc(sorted, func(a, b EntryRequest) int {
			if pa, pb := sizePriority(a.SizeHint), sizePriority(b.SizeHint); pa != pb {
				return pa - pb
			}
			return compareHints(a, b)
		})
	case SortAlphabetical:
		slices.SortStableFunc(sorted, func(a, b EntryRequest) int {
			return strings.Compare(a.Entry.Name, b.Entry.Name)
		})
	}
	return sorted
}

// partitionStable moves the requests matching keepFirst to the front,
// preserving the relative order within both groups.
func partitionStable(reqs []EntryRequest, keepFirst func(EntryRequest) bool) []EntryRequest {
	result := make([]EntryRequest, 0, len(reqs))
	var rest []EntryRequest
	for _, r := range reqs {
		if keepFirst(r) {
			result = append(result, r)
		} else {
			rest = append(rest, r)
		}
	}
	return append(result, rest...)
}

// An unknown size (negative hint) may be arbitrarily large.
func isLarge(r EntryRequest) bool {
	return r.SizeHint < 0 || r.SizeHint >= math.MaxUint32
}

func compareHints(a, b EntryRequest) int {
	return cmpSize(a.SizeHint, b.SizeHint)
}

// cmpSize orders unknown sizes after every known size.
func cmpSize(a, b int64) int {
	switch {
	case a == b:
		return 0
	case a < 0:
		return 1
	case b < 0:
		return -1
	case a < b:
		return -1
	}
	return 1
}

func sizePriority(size int64) int {
	switch {
	case size < 0:
		return 2 // unknown, possibly ZIP64
	case size < 10*1024*1024:
		return 0
	case size < math.MaxUint32:
		return 1
	}
	return 2
}
