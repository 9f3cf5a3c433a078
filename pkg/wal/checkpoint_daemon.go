package wal

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"aries/pkg/primitives"
)

// CheckpointConfig configures automatic checkpoint scheduling.
type CheckpointConfig struct {
	// Schedule is a cron expression with a leading seconds field, or a
	// descriptor (e.g. "@every 30s", "0 */5 * * * *"), controlling how
	// often a fuzzy checkpoint is triggered. Schedules have one-second
	// granularity.
	Schedule string

	// Enabled turns automatic checkpointing on or off.
	Enabled bool

	// Truncate controls whether each checkpoint is immediately followed
	// by archiving the log records it proves are no longer needed.
	Truncate TruncateConfig
}

// DefaultCheckpointConfig returns a sensible default: a checkpoint every
// thirty seconds, followed by truncation of whatever it makes safe to
// archive.
func DefaultCheckpointConfig() CheckpointConfig {
	return CheckpointConfig{Schedule: "@every 30s", Enabled: true, Truncate: DefaultTruncateConfig()}
}

// CheckpointDaemonStats tracks daemon activity for observability.
type CheckpointDaemonStats struct {
	TotalCheckpoints     int64
	FailedCheckpoints    int64
	LastCheckpointLSN    primitives.LSN
	LastCheckpointTime   time.Time
	LastCheckpointTook   time.Duration
	LastTruncatedBytes   int64
}

// CheckpointDaemon triggers WriteCheckpoint on a cron schedule. The
// single-threaded execution model spec.md §5 describes applies to
// transaction processing, not to this background maintenance task — a
// checkpoint never observes a transaction mid-operation, only the
// snapshot-able active-txn/dirty-page tables.
type CheckpointDaemon struct {
	wal     *Manager
	config  CheckpointConfig
	cronJob *cron.Cron
	running atomic.Bool

	statsMu sync.Mutex
	stats   CheckpointDaemonStats
}

// NewCheckpointDaemon builds a daemon over wal, not yet started.
func NewCheckpointDaemon(w *Manager, config CheckpointConfig) *CheckpointDaemon {
	return &CheckpointDaemon{wal: w, config: config}
}

// Start begins the cron schedule. A no-op if the config disables
// automatic checkpointing; returns an error if the daemon is already
// running or the schedule does not parse.
func (d *CheckpointDaemon) Start() error {
	if !d.config.Enabled {
		fmt.Println("wal: checkpoint daemon disabled")
		return nil
	}
	if !d.running.CompareAndSwap(false, true) {
		return fmt.Errorf("wal: checkpoint daemon already running")
	}

	d.cronJob = cron.New(cron.WithSeconds())
	_, err := d.cronJob.AddFunc(d.config.Schedule, d.triggerCheckpoint)
	if err != nil {
		d.running.Store(false)
		return fmt.Errorf("wal: invalid checkpoint schedule %q: %w", d.config.Schedule, err)
	}

	fmt.Printf("wal: starting checkpoint daemon (schedule=%q)\n", d.config.Schedule)
	d.cronJob.Start()
	return nil
}

// Stop gracefully stops the cron schedule, waiting for any in-flight
// checkpoint to finish.
func (d *CheckpointDaemon) Stop() {
	if !d.running.Load() {
		return
	}
	fmt.Println("wal: stopping checkpoint daemon...")
	ctx := d.cronJob.Stop()
	<-ctx.Done()
	d.running.Store(false)
	fmt.Println("wal: checkpoint daemon stopped")
}

// IsRunning reports whether the daemon's cron schedule is active.
func (d *CheckpointDaemon) IsRunning() bool {
	return d.running.Load()
}

// TriggerManualCheckpoint runs a checkpoint immediately, outside the
// cron schedule, and updates the same statistics a scheduled run would.
func (d *CheckpointDaemon) TriggerManualCheckpoint() (primitives.LSN, error) {
	return d.checkpointOnce()
}

func (d *CheckpointDaemon) triggerCheckpoint() {
	if _, err := d.checkpointOnce(); err != nil {
		fmt.Printf("wal: scheduled checkpoint failed: %v\n", err)
	}
}

// checkpointOnce takes a checkpoint and, mirroring the teacher's
// TruncateAfterCheckpoint, immediately follows it with archival
// truncation of whatever the checkpoint just proved safe to discard.
// Truncation failure does not unwind the checkpoint — the checkpoint
// is still valid on its own, and truncation can simply be retried on
// the next scheduled run.
func (d *CheckpointDaemon) checkpointOnce() (primitives.LSN, error) {
	start := time.Now()
	lsn, err := d.wal.WriteCheckpoint()
	took := time.Since(start)

	d.statsMu.Lock()
	if err != nil {
		d.stats.FailedCheckpoints++
		d.statsMu.Unlock()
		return 0, err
	}
	d.stats.TotalCheckpoints++
	d.stats.LastCheckpointLSN = lsn
	d.stats.LastCheckpointTime = start
	d.stats.LastCheckpointTook = took
	d.statsMu.Unlock()

	if d.config.Truncate.Enabled {
		checkpoint, ok := d.wal.GetLastCheckpoint()
		if !ok {
			fmt.Println("wal: checkpoint just written could not be reloaded, skipping truncation")
			return lsn, nil
		}
		archived, err := d.wal.TruncateWAL(checkpoint, d.config.Truncate)
		if err != nil {
			fmt.Printf("wal: truncation after checkpoint failed: %v\n", err)
			return lsn, nil
		}
		d.statsMu.Lock()
		d.stats.LastTruncatedBytes = archived
		d.statsMu.Unlock()
	}
	return lsn, nil
}

// Stats returns a copy of the daemon's current statistics.
func (d *CheckpointDaemon) Stats() CheckpointDaemonStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}
