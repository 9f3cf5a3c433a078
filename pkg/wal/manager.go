// Package wal implements the log manager, fuzzy checkpointing, automatic
// checkpoint scheduling, and archival truncation around the single log
// file. The append/flush/read-all core is the durability contract the
// rest of the engine depends on; checkpointing and truncation are purely
// accelerators layered on top (see SPEC_FULL.md §7).
package wal

import (
	"fmt"
	"os"
	"sync"

	"aries/pkg/logrecord"
	"aries/pkg/primitives"
)

// txnInfo is the bookkeeping WAL keeps per active transaction, enough to
// snapshot into a fuzzy checkpoint without re-scanning the whole log.
type txnInfo struct {
	FirstLSN    primitives.LSN
	LastLSN     primitives.LSN
	UndoNextLSN primitives.LSN
}

// Manager owns the log file, assigns LSNs in append order, and buffers
// unflushed records until Flush.
type Manager struct {
	mu sync.RWMutex

	file       *os.File
	currentLSN primitives.LSN
	buffer     []logrecord.Record

	// Bookkeeping for fuzzy checkpoints; see checkpoint.go.
	activeTxns map[primitives.TxnID]*txnInfo
	dirtyPages map[primitives.PageID]primitives.LSN

	checkpointPath string
}

// Init creates (truncating any existing file) the log file, starting LSN
// assignment at 0.
func Init(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: init %q: %w", path, err)
	}
	return &Manager{
		file:           f,
		activeTxns:     make(map[primitives.TxnID]*txnInfo),
		dirtyPages:     make(map[primitives.PageID]primitives.LSN),
		checkpointPath: path + ".checkpoint",
	}, nil
}

// Load opens an existing log file and resumes LSN assignment from the
// last persisted record — LSNs never reset across restarts.
func Load(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("wal: load %q: %w", path, err)
	}
	m := &Manager{
		file:           f,
		activeTxns:     make(map[primitives.TxnID]*txnInfo),
		dirtyPages:     make(map[primitives.PageID]primitives.LSN),
		checkpointPath: path + ".checkpoint",
	}

	records := m.ReadAll()
	if len(records) > 0 {
		m.currentLSN = records[len(records)-1].LSN + 1
	}
	for _, rec := range records {
		m.track(rec)
	}
	return m, nil
}

// Append stamps rec with the next LSN, buffers it, and returns the
// stamped record so the caller (a Transaction) can chain off its LSN.
func (m *Manager) Append(rec logrecord.Record) logrecord.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec.LSN = m.currentLSN
	m.currentLSN++
	m.buffer = append(m.buffer, rec)
	m.track(rec)
	return rec
}

// track updates the active-transaction and dirty-page bookkeeping used
// by fuzzy checkpoints. It never affects LSN assignment or durability.
func (m *Manager) track(rec logrecord.Record) {
	switch rec.Type {
	case logrecord.Begin:
		m.activeTxns[rec.TxnID] = &txnInfo{FirstLSN: rec.LSN, LastLSN: rec.LSN, UndoNextLSN: rec.LSN}
	case logrecord.Commit, logrecord.Abort:
		delete(m.activeTxns, rec.TxnID)
	case logrecord.Insert:
		if info, ok := m.activeTxns[rec.TxnID]; ok {
			info.LastLSN = rec.LSN
			info.UndoNextLSN = rec.LSN
		}
		if _, dirty := m.dirtyPages[rec.PageID]; !dirty {
			m.dirtyPages[rec.PageID] = rec.LSN
		}
	case logrecord.CompensateInsert:
		if info, ok := m.activeTxns[rec.TxnID]; ok {
			info.LastLSN = rec.LSN
			info.UndoNextLSN = rec.NextUndoLSN
		}
		if _, dirty := m.dirtyPages[rec.PageID]; !dirty {
			m.dirtyPages[rec.PageID] = rec.LSN
		}
	}
}

// Flush writes every buffered record to the end of the log file, fsyncs,
// and clears the buffer. commit and abort must call Flush before
// returning to honor WAL discipline.
func (m *Manager) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.buffer) == 0 {
		return
	}

	var out []byte
	for _, rec := range m.buffer {
		out = append(out, rec.Serialize()...)
	}

	if _, err := m.file.Seek(0, os.SEEK_END); err != nil {
		panic(fmt.Sprintf("wal: seek to end: %v", err))
	}
	if _, err := m.file.Write(out); err != nil {
		panic(fmt.Sprintf("wal: write: %v", err))
	}
	if err := m.file.Sync(); err != nil {
		panic(fmt.Sprintf("wal: fsync: %v", err))
	}
	m.buffer = nil
}

// ReadAll reads the entire log file and deserializes it into the
// sequence of records, in file order. An unknown type tag is fatal.
func (m *Manager) ReadAll() []logrecord.Record {
	data, err := os.ReadFile(m.file.Name())
	if err != nil {
		panic(fmt.Sprintf("wal: read all: %v", err))
	}

	var records []logrecord.Record
	for len(data) > 0 {
		rec, n := logrecord.Deserialize(data)
		records = append(records, rec)
		data = data[n:]
	}
	return records
}

// Close closes the underlying log file.
func (m *Manager) Close() error {
	return m.file.Close()
}
