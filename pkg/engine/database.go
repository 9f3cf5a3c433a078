// Package engine provides the Database façade: init/load a single-file
// store plus its write-ahead log, begin/commit/abort transactions,
// insert tuples, and read everything back. It wires together
// pkg/pagestore, pkg/buffer, pkg/wal, pkg/txn, and pkg/recovery the way
// the original single-node storage engine does.
package engine

import (
	"fmt"
	"sync"

	"aries/pkg/buffer"
	"aries/pkg/logrecord"
	"aries/pkg/page"
	"aries/pkg/pagestore"
	"aries/pkg/primitives"
	"aries/pkg/recovery"
	"aries/pkg/txn"
	"aries/pkg/wal"
)

// Config controls the buffer pool size and optional background
// checkpointing for a Database.
type Config struct {
	// MaxFrames is the buffer pool's frame capacity.
	MaxFrames int

	// Checkpointing, if enabled, runs a background fuzzy-checkpoint
	// daemon on wal.CheckpointConfig.Schedule.
	Checkpointing wal.CheckpointConfig
}

// DefaultConfig returns a Database config with a small pool and
// checkpointing disabled, matching the teaching-scale defaults used
// throughout this engine (16-byte pages, single-byte ids).
func DefaultConfig() Config {
	return Config{MaxFrames: 10, Checkpointing: wal.CheckpointConfig{Enabled: false}}
}

// Database is the single-file relational storage engine façade.
//
// mu serializes Begin/Commit/Abort/Insert/ReadAll. This engine has no
// concurrency control or isolation between transactions (see
// spec.md's Non-goals) — the lock only protects the façade's own
// bookkeeping (currentTxnID, lastPageID) from concurrent callers; it
// does not give interleaved transactions any isolation from each
// other's writes.
type Database struct {
	mu sync.Mutex

	store *pagestore.Manager
	log   *wal.Manager
	pool  *buffer.Pool

	checkpointDaemon *wal.CheckpointDaemon

	currentTxnID primitives.TxnID
	lastPageID   primitives.PageID

	lastRecoveryStats recovery.Stats
}

// Init creates a brand new database at dataPath/logPath, allocating the
// first page. Any existing files at those paths are truncated.
func Init(dataPath, logPath string, config Config) (*Database, error) {
	store, err := pagestore.Init(dataPath)
	if err != nil {
		return nil, fmt.Errorf("engine: init data file: %w", err)
	}
	store.AllocatePage()

	logManager, err := wal.Init(logPath)
	if err != nil {
		return nil, fmt.Errorf("engine: init log file: %w", err)
	}

	db := &Database{
		store: store,
		log:   logManager,
		pool:  buffer.NewPool(store, config.MaxFrames),
	}
	db.startCheckpointing(config)
	return db, nil
}

// Load reopens an existing database, running crash recovery against the
// log before any further transaction is allowed to begin.
func Load(dataPath, logPath string, config Config) (*Database, error) {
	store, err := pagestore.Load(dataPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load data file: %w", err)
	}
	lastPageID := store.NextPageID() - 1

	logManager, err := wal.Load(logPath)
	if err != nil {
		return nil, fmt.Errorf("engine: load log file: %w", err)
	}

	pool := buffer.NewPool(store, config.MaxFrames)

	recoveryManager := recovery.NewManager(logManager, pool)
	maxTxnID, stats := recoveryManager.Run()

	db := &Database{
		store:             store,
		log:               logManager,
		pool:              pool,
		currentTxnID:      maxTxnID + 1,
		lastPageID:        lastPageID,
		lastRecoveryStats: stats,
	}
	db.startCheckpointing(config)
	return db, nil
}

func (db *Database) startCheckpointing(config Config) {
	if !config.Checkpointing.Enabled {
		return
	}
	db.checkpointDaemon = wal.NewCheckpointDaemon(db.log, config.Checkpointing)
	if err := db.checkpointDaemon.Start(); err != nil {
		fmt.Printf("engine: checkpoint daemon failed to start: %v\n", err)
		db.checkpointDaemon = nil
	}
}

// LastRecoveryStats reports what the most recent Load's recovery run
// did. Zero-valued if this Database was created with Init.
func (db *Database) LastRecoveryStats() recovery.Stats {
	return db.lastRecoveryStats
}

// BufferPoolStats reports current buffer pool activity.
func (db *Database) BufferPoolStats() buffer.Stats {
	return db.pool.Stats()
}

// Begin starts a new transaction and logs its Begin record.
func (db *Database) Begin() *txn.Transaction {
	db.mu.Lock()
	defer db.mu.Unlock()

	t := txn.New(db.currentTxnID, db.log)
	t.LogBegin()
	db.currentTxnID++
	return t
}

// Commit logs t's Commit record and flushes the log, honoring
// write-ahead logging: the commit is not durable until this returns.
func (db *Database) Commit(t *txn.Transaction) {
	db.mu.Lock()
	defer db.mu.Unlock()

	t.LogCommit()
	db.log.Flush()
}

// Abort rolls back every insert t has made, in reverse order, logging
// one CompensateInsert per rollback, then logs t's Abort record and
// flushes the log.
//
// Each insert is rolled back exactly once. An earlier version of this
// algorithm rolled back every insert twice — a latent bug in the
// reference implementation this engine is modeled on — which this
// engine does not reproduce (see spec.md §9).
func (db *Database) Abort(t *txn.Transaction) {
	db.mu.Lock()
	defer db.mu.Unlock()

	records := t.Records()
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if rec.Type != logrecord.Insert {
			continue
		}
		pg := db.pool.ReadPage(rec.PageID)
		pg.RollbackInsert(rec.SlotID, &page.RollbackUndo{Txn: t, NextUndoLSN: rec.PrevLSN})
		db.pool.UnpinPage(rec.PageID, true)
	}
	t.LogAbort()
	db.log.Flush()
}

// Insert appends tuple to the last page, allocating a new page first if
// the current one is full.
func (db *Database) Insert(t *txn.Transaction, tuple byte) {
	db.mu.Lock()
	defer db.mu.Unlock()

	pageID := db.lastPageID
	pg := db.pool.ReadPage(pageID)
	if pg.HasSpace() {
		pg.Insert(tuple, t)
		db.pool.UnpinPage(pageID, true)
		return
	}

	db.pool.UnpinPage(pageID, true)
	newPage := db.pool.AllocatePage()
	newPage.Insert(tuple, t)
	db.lastPageID = newPage.ID()
	db.pool.UnpinPage(newPage.ID(), true)
}

// ReadAll returns every tuple currently stored, across every page, in
// page then slot order. It does not filter by transaction visibility —
// concurrency control and isolation are out of scope for this engine.
func (db *Database) ReadAll() []byte {
	db.mu.Lock()
	defer db.mu.Unlock()

	var values []byte
	for pageID := primitives.PageID(0); ; pageID++ {
		pg := db.pool.ReadPage(pageID)
		values = append(values, pg.Tuples()...)
		db.pool.UnpinPage(pageID, false)
		if pageID >= db.lastPageID {
			break
		}
	}
	return values
}

// Close stops any background checkpointing and closes the underlying
// files. It does not flush dirty buffer pool frames — durability
// already comes from the write-ahead log, not from page writes.
func (db *Database) Close() error {
	if db.checkpointDaemon != nil {
		db.checkpointDaemon.Stop()
	}
	if err := db.log.Close(); err != nil {
		return fmt.Errorf("engine: close log: %w", err)
	}
	if err := db.store.Close(); err != nil {
		return fmt.Errorf("engine: close data file: %w", err)
	}
	return nil
}
