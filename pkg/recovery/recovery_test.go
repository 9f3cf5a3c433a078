package recovery

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"aries/pkg/buffer"
	"aries/pkg/logrecord"
	"aries/pkg/pagestore"
	"aries/pkg/wal"
)

func setup(t *testing.T, dataPath, logPath string) (*pagestore.Manager, *wal.Manager, *buffer.Pool) {
	t.Helper()
	store, err := pagestore.Init(dataPath)
	if err != nil {
		t.Fatalf("pagestore.Init: %v", err)
	}
	store.AllocatePage()

	w, err := wal.Init(logPath)
	if err != nil {
		t.Fatalf("wal.Init: %v", err)
	}

	pool := buffer.NewPool(store, 4)
	return store, w, pool
}

func TestRedoReappliesUncommittedButLoggedInsert(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	logPath := filepath.Join(dir, "log.bin")

	store, w, pool := setup(t, dataPath, logPath)

	w.Append(logrecord.NewBegin(0, 1))
	w.Append(logrecord.NewInsert(0, 0, 1, 0, 0, 42))
	w.Flush()
	w.Close()
	store.Close()

	// Simulate a crash: reopen everything fresh, without ever applying
	// the insert to the on-disk page (the buffer pool never wrote it
	// back before the crash).
	store2, err := pagestore.Load(dataPath)
	if err != nil {
		t.Fatalf("pagestore.Load: %v", err)
	}
	defer store2.Close()
	w2, err := wal.Load(logPath)
	if err != nil {
		t.Fatalf("wal.Load: %v", err)
	}
	defer w2.Close()
	pool2 := buffer.NewPool(store2, 4)

	mgr := NewManager(w2, pool2)
	maxTxnID, stats := mgr.Run()

	require.EqualValues(t, 1, maxTxnID)
	require.Equal(t, 1, stats.RecordsRedone)
	// Transaction 1 never committed, so undo must remove the insert again.
	require.Equal(t, 1, stats.RecordsUndone)

	pg := pool2.ReadPage(0)
	require.Zero(t, pg.TupleCount(), "expected uncommitted insert to be undone")
	_ = pool
}

func TestRedoIsIdempotentAcrossMultipleRuns(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	logPath := filepath.Join(dir, "log.bin")

	store, w, _ := setup(t, dataPath, logPath)
	w.Append(logrecord.NewBegin(0, 1))
	w.Append(logrecord.NewInsert(0, 0, 1, 0, 0, 7))
	w.Append(logrecord.NewCommit(0, 1))
	w.Flush()
	w.Close()
	store.Close()

	runOnce := func() uint8 {
		s, err := pagestore.Load(dataPath)
		if err != nil {
			t.Fatalf("pagestore.Load: %v", err)
		}
		defer s.Close()
		lw, err := wal.Load(logPath)
		if err != nil {
			t.Fatalf("wal.Load: %v", err)
		}
		defer lw.Close()
		p := buffer.NewPool(s, 4)
		NewManager(lw, p).Run()
		return p.ReadPage(0).TupleCount()
	}

	first := runOnce()
	second := runOnce()
	if first != second || first != 1 {
		t.Fatalf("expected idempotent recovery to leave tuple count at 1, got %d then %d", first, second)
	}
}

func TestCommittedTransactionSurvivesRecovery(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	logPath := filepath.Join(dir, "log.bin")

	store, w, _ := setup(t, dataPath, logPath)
	w.Append(logrecord.NewBegin(0, 1))
	w.Append(logrecord.NewInsert(0, 0, 1, 0, 0, 9))
	w.Append(logrecord.NewCommit(0, 1))
	w.Flush()
	w.Close()
	store.Close()

	store2, err := pagestore.Load(dataPath)
	if err != nil {
		t.Fatalf("pagestore.Load: %v", err)
	}
	defer store2.Close()
	w2, err := wal.Load(logPath)
	if err != nil {
		t.Fatalf("wal.Load: %v", err)
	}
	defer w2.Close()
	pool2 := buffer.NewPool(store2, 4)

	_, stats := NewManager(w2, pool2).Run()
	if stats.LoserTransactions != 0 {
		t.Fatalf("expected no loser transactions, got %d", stats.LoserTransactions)
	}

	pg := pool2.ReadPage(0)
	if pg.TupleCount() != 1 || pg.Tuples()[0] != 9 {
		t.Fatalf("expected committed insert to survive, got count=%d tuples=%v", pg.TupleCount(), pg.Tuples())
	}
}

// A corrupted checkpoint file must not change recovery's outcome versus
// no checkpoint at all — it is purely an accelerator.
func TestCorruptCheckpointDoesNotChangeRecoveryOutcome(t *testing.T) {
	dir := t.TempDir()
	dataPath := filepath.Join(dir, "data.db")
	logPath := filepath.Join(dir, "log.bin")

	store, w, _ := setup(t, dataPath, logPath)
	w.Append(logrecord.NewBegin(0, 1))
	w.Append(logrecord.NewInsert(0, 0, 1, 0, 0, 5))
	w.Append(logrecord.NewCommit(0, 1))
	w.Append(logrecord.NewBegin(0, 2))
	w.Append(logrecord.NewInsert(0, 3, 2, 0, 1, 6))
	w.Flush()
	if _, err := w.WriteCheckpoint(); err != nil {
		t.Fatalf("WriteCheckpoint: %v", err)
	}
	w.Close()
	store.Close()

	// Corrupt the checkpoint file in place.
	checkpointPath := logPath + ".checkpoint"
	data, err := os.ReadFile(checkpointPath)
	if err != nil {
		t.Fatalf("read checkpoint: %v", err)
	}
	data[0] ^= 0xFF
	if err := os.WriteFile(checkpointPath, data, 0644); err != nil {
		t.Fatalf("corrupt checkpoint: %v", err)
	}

	store2, err := pagestore.Load(dataPath)
	if err != nil {
		t.Fatalf("pagestore.Load: %v", err)
	}
	defer store2.Close()
	w2, err := wal.Load(logPath)
	if err != nil {
		t.Fatalf("wal.Load: %v", err)
	}
	defer w2.Close()
	pool2 := buffer.NewPool(store2, 4)

	maxTxnID, stats := NewManager(w2, pool2).Run()
	require.False(t, stats.UsedCheckpoint, "expected corrupt checkpoint to be ignored")
	require.EqualValues(t, 2, maxTxnID)
	// txn 1 committed (tuple 5 survives); txn 2 never committed, undone.
	pg := pool2.ReadPage(0)
	require.Equal(t, uint8(1), pg.TupleCount())
	require.Equal(t, byte(5), pg.Tuples()[0])
}
