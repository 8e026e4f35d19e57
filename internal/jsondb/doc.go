// Package jsondb provides a synchronous key-value medium and typed JSON
// collections stored on top of it.
//
// # Overview
//
// A [Medium] maps a small set of well-known keys to opaque byte payloads.
// [DirMedium] keeps one file per key and replaces it atomically on write;
// [MemMedium] keeps everything in memory.
//
// [Table] stores a whole collection as one JSON array under a single key, and
// [Value] stores a single JSON object. Both re-read the medium on every
// access, so the medium is the only source of truth and whatever bytes it
// holds can be copied verbatim by a backup tool.
//
// # Failure Semantics
//
// [Table.Load] reports malformed payloads as [*DecodeError]. [Table.All]
// treats the same condition as an empty collection: the records are local,
// regenerable state and availability wins over strictness.
//
// # Concurrency
//
// Each Table serializes its read-modify-write cycles with a mutex. There is
// no coordination across tables; callers performing multi-table updates get
// per-table atomicity only.
package jsondb
