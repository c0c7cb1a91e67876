// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package untar extracts tar archives onto a filesystem target.
//
// An extraction run is built from two handles. An [Archive] decodes entries and
// data blocks from a [Source], which is either a file read incrementally in
// fixed-size chunks ([OpenFile]) or a caller-owned byte slice ([OpenMemory]).
// A [Writer] replays those entries onto a [Target], by default the local disk
// ([NewDiskWriter]). [Extract] drives one into the other, and [Cleanup]
// releases both handles afterwards.
//
// Extraction is fail-fast: the first error aborts the run and is returned as
// an [*Error] naming the failing operation and, where known, the entry path.
// There are no retries and no rollback. Entries written before the failure,
// including a partially written file, stay on the target.
//
// Configuration is done using the [Config], which follows the option pattern.
// The default configuration restores modification times and is designed to
// reject path traversal and symlink attacks.
package untar
