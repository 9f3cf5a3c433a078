// Package primitives defines the fixed-width identifier types shared by
// every layer of the engine.
//
// LSNs, page ids, and transaction ids are all a single byte, by design:
// this is a pedagogical engine, and keeping the on-disk widths fixed at
// one byte keeps test vectors comparable across runs. It also means every
// one of these counters wraps after 256 — that is intentional, not a bug
// to widen away.
package primitives

// LSN is a Log Sequence Number: a monotonically increasing identifier
// assigned to a log record at append time, and also stored in a page to
// gate redo (Page-LSN).
type LSN uint8

// PageID identifies a page within the single data file.
type PageID uint8

// TxnID identifies a transaction for the lifetime between Begin and its
// terminal Commit or Abort.
type TxnID uint8
