// Package recovery implements ARIES-lite crash recovery: analyze, redo,
// undo over the write-ahead log. Compensation log records are only ever
// emitted by a live transaction's Abort (see pkg/engine); undo here
// never writes new log records, by design — see spec.md §9.
package recovery

import (
	"fmt"

	"aries/pkg/buffer"
	"aries/pkg/logrecord"
	"aries/pkg/primitives"
	"aries/pkg/wal"
)

// Stats reports what one recovery run actually did, for observability.
type Stats struct {
	RecordsAnalyzed      int
	RecordsRedone        int
	RecordsSkippedOnRedo int
	LoserTransactions    int
	RecordsUndone        int
	UsedCheckpoint       bool
	CheckpointLSN        primitives.LSN
}

// Manager runs the three ARIES-lite passes against a log and a buffer
// pool over the same backing page store.
type Manager struct {
	wal  *wal.Manager
	pool *buffer.Pool
}

// NewManager builds a recovery manager over wal and pool.
func NewManager(w *wal.Manager, pool *buffer.Pool) *Manager {
	return &Manager{wal: w, pool: pool}
}

// Run executes analyze, then redo, then undo, and returns the highest
// transaction id observed in the log (so the caller can resume id
// assignment at maxTxnID+1) along with statistics about the run.
func (m *Manager) Run() (primitives.TxnID, Stats) {
	records := m.wal.ReadAll()
	lsnIndex := make(map[primitives.LSN]int, len(records))
	for i, rec := range records {
		lsnIndex[rec.LSN] = i
	}

	att, maxTxnID, stats := m.analyze(records)
	stats.RecordsRedone, stats.RecordsSkippedOnRedo = m.redo(records)
	stats.LoserTransactions = len(att)
	stats.RecordsUndone = m.undo(att, records, lsnIndex)

	fmt.Printf("recovery: analyzed %d records, redid %d, undid %d across %d loser transaction(s)\n",
		stats.RecordsAnalyzed, stats.RecordsRedone, stats.RecordsUndone, stats.LoserTransactions)
	return maxTxnID, stats
}

// analyze builds the active transaction table: the last LSN touched by
// each transaction still open (no Commit/Abort seen) by the end of the
// log. If a checkpoint exists, it seeds the table and lets analysis
// start partway through the log instead of at the very beginning — a
// pure speed optimization that must never change the resulting table.
func (m *Manager) analyze(records []logrecord.Record) (map[primitives.TxnID]primitives.LSN, primitives.TxnID, Stats) {
	att := make(map[primitives.TxnID]primitives.LSN)
	var maxTxnID primitives.TxnID
	var stats Stats

	startIdx := 0
	if ckpt, ok := m.wal.GetLastCheckpoint(); ok {
		stats.UsedCheckpoint = true
		stats.CheckpointLSN = ckpt.LSN
		for id, snap := range ckpt.ActiveTxns {
			att[id] = snap.LastLSN
			if id > maxTxnID {
				maxTxnID = id
			}
		}
		for i, rec := range records {
			if rec.LSN >= ckpt.LSN {
				startIdx = i
				break
			}
		}
		// Records before the checkpoint are skipped for the table, but
		// still count towards the highest transaction id seen.
		for _, rec := range records[:startIdx] {
			if rec.TxnID > maxTxnID {
				maxTxnID = rec.TxnID
			}
		}
	}

	for _, rec := range records[startIdx:] {
		stats.RecordsAnalyzed++
		switch rec.Type {
		case logrecord.Begin, logrecord.Insert, logrecord.CompensateInsert:
			att[rec.TxnID] = rec.LSN
			if rec.TxnID > maxTxnID {
				maxTxnID = rec.TxnID
			}
		case logrecord.Commit, logrecord.Abort:
			delete(att, rec.TxnID)
			if rec.TxnID > maxTxnID {
				maxTxnID = rec.TxnID
			}
		}
	}
	return att, maxTxnID, stats
}

// redo replays every Insert and CompensateInsert in the log in order,
// gated by comparing the record's LSN against the page's current LSN:
// if the page already reflects this record's effect (page LSN >= record
// LSN), it is skipped, making replay idempotent regardless of how many
// times recovery runs or where it starts reading from.
func (m *Manager) redo(records []logrecord.Record) (redone, skipped int) {
	for _, rec := range records {
		switch rec.Type {
		case logrecord.Insert:
			pg := m.pool.ReadPage(rec.PageID)
			dirty := false
			if pg.LSN() < rec.LSN {
				pg.Insert(rec.Tuple, nil)
				dirty = true
				redone++
			} else {
				skipped++
			}
			m.pool.UnpinPage(rec.PageID, dirty)
		case logrecord.CompensateInsert:
			pg := m.pool.ReadPage(rec.PageID)
			dirty := false
			if pg.LSN() < rec.LSN {
				pg.RollbackInsert(rec.SlotID, nil)
				dirty = true
				redone++
			} else {
				skipped++
			}
			m.pool.UnpinPage(rec.PageID, dirty)
		}
	}
	return redone, skipped
}

// undo rolls back every loser transaction (one still in att, meaning no
// Commit or Abort was ever logged for it) by walking its own prev-LSN
// chain backwards from its last known record to its Begin, undoing each
// Insert it finds along the way.
//
// If a loser's last record is itself a CompensateInsert (it crashed
// mid-abort, having logged some rollbacks already), the walk resumes
// from that CLR's next-undo-LSN instead of re-undoing what the CLR
// already covered.
//
// Crash-recovery undo never logs a new CompensateInsert — that is a
// deliberate asymmetry with transactional abort (pkg/engine), not an
// oversight; see spec.md §9.
func (m *Manager) undo(att map[primitives.TxnID]primitives.LSN, records []logrecord.Record, lsnIndex map[primitives.LSN]int) int {
	undone := 0
	for _, lastLSN := range att {
		undone += m.undoOne(lastLSN, records, lsnIndex)
	}
	return undone
}

// undoOne walks one loser transaction's chain back to its Begin,
// rolling back every Insert it finds.
func (m *Manager) undoOne(lastLSN primitives.LSN, records []logrecord.Record, lsnIndex map[primitives.LSN]int) int {
	undone := 0
	lsn := lastLSN
	if rec := records[lsnIndex[lsn]]; rec.Type == logrecord.CompensateInsert {
		lsn = rec.NextUndoLSN
	}

	for {
		rec := records[lsnIndex[lsn]]
		switch rec.Type {
		case logrecord.Insert:
			pg := m.pool.ReadPage(rec.PageID)
			pg.RollbackInsert(rec.SlotID, nil)
			m.pool.UnpinPage(rec.PageID, true)
			undone++
			lsn = rec.PrevLSN
		default:
			return undone
		}
	}
}
