package wal

import (
	"path/filepath"
	"testing"

	"aries/pkg/logrecord"
	"aries/pkg/primitives"
)

func TestAppendStampsMonotonicLSNs(t *testing.T) {
	m, err := Init(filepath.Join(t.TempDir(), "log.bin"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()

	r0 := m.Append(logrecord.NewBegin(0, 1))
	r1 := m.Append(logrecord.NewCommit(0, 1))
	if r0.LSN != 0 || r1.LSN != 1 {
		t.Fatalf("expected LSNs 0,1 got %d,%d", r0.LSN, r1.LSN)
	}
}

func TestFlushThenReadAllRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	m, err := Init(path)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}

	m.Append(logrecord.NewBegin(0, 1))
	m.Append(logrecord.NewInsert(0, 0, 1, 5, 0, 'x'))
	m.Append(logrecord.NewCommit(0, 1))
	m.Flush()
	m.Close()

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reopened.Close()

	records := reopened.ReadAll()
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Type != logrecord.Begin || records[2].Type != logrecord.Commit {
		t.Fatalf("unexpected record types: %+v", records)
	}
}

func TestLoadResumesLSNCounter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.bin")
	m, err := Init(path)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.Append(logrecord.NewBegin(0, 1))
	m.Append(logrecord.NewCommit(0, 1))
	m.Flush()
	m.Close()

	reopened, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer reopened.Close()

	rec := reopened.Append(logrecord.NewBegin(0, 2))
	if rec.LSN != 2 {
		t.Fatalf("expected resumed LSN 2, got %d", rec.LSN)
	}
}

func TestFlushNoopOnEmptyBuffer(t *testing.T) {
	m, err := Init(filepath.Join(t.TempDir(), "log.bin"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()

	m.Flush()
	records := m.ReadAll()
	if len(records) != 0 {
		t.Fatalf("expected no records, got %d", len(records))
	}
}

func TestTrackRemovesCommittedTxnFromActiveSet(t *testing.T) {
	m, err := Init(filepath.Join(t.TempDir(), "log.bin"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()

	m.Append(logrecord.NewBegin(0, 1))
	if _, ok := m.activeTxns[primitives.TxnID(1)]; !ok {
		t.Fatalf("expected txn 1 to be tracked active after begin")
	}
	m.Append(logrecord.NewCommit(0, 1))
	if _, ok := m.activeTxns[primitives.TxnID(1)]; ok {
		t.Fatalf("expected txn 1 to be removed from active set after commit")
	}
}

func TestTrackRecordsDirtyPageFirstTouchLSN(t *testing.T) {
	m, err := Init(filepath.Join(t.TempDir(), "log.bin"))
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer m.Close()

	m.Append(logrecord.NewBegin(0, 1))
	m.Append(logrecord.NewInsert(0, 0, 1, 7, 0, 'a'))
	m.Append(logrecord.NewInsert(0, 0, 1, 7, 1, 'b'))

	lsn, ok := m.dirtyPages[primitives.PageID(7)]
	if !ok {
		t.Fatalf("expected page 7 to be dirty")
	}
	if lsn != 1 {
		t.Fatalf("expected dirty-page LSN to stick at first touch (1), got %d", lsn)
	}
}
