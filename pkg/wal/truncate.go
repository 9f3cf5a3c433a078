package wal

import (
	"fmt"
	"os"

	"github.com/klauspost/compress/gzip"

	"aries/pkg/logrecord"
	"aries/pkg/primitives"
)

// TruncateConfig configures archival truncation of the live log.
type TruncateConfig struct {
	// Enabled turns truncation on or off.
	Enabled bool

	// MinWALSizeForTruncation avoids compacting tiny logs where the
	// archival overhead isn't worth it.
	MinWALSizeForTruncation int64
}

// DefaultTruncateConfig returns sensible defaults.
func DefaultTruncateConfig() TruncateConfig {
	return TruncateConfig{Enabled: true, MinWALSizeForTruncation: 4096}
}

// TruncateWAL moves every record the given checkpoint proves is no
// longer needed for recovery into a gzip-compressed archive file, and
// rewrites the live log to hold only the records from the checkpoint's
// safe truncation point onward.
//
// This only ever touches records the checkpoint snapshot has already
// proven safe to discard — it does not change the live log's on-disk
// byte layout (still type-tag-framed, checksum-free, unsegmented, per
// spec.md §6) for whatever records remain live.
//
// Limitation: the safe-truncation-point comparison is an LSN ordering
// comparison, which is only meaningful before the u8 LSN counter wraps
// at 256 (spec.md §9). Truncation is meant to run well inside a single
// wrap; it is not safe to call once LSNs have wrapped past a checkpoint
// still referencing pre-wrap values.
func (m *Manager) TruncateWAL(checkpoint CheckpointRecord, config TruncateConfig) (int64, error) {
	if !config.Enabled {
		return 0, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	info, err := m.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("wal: stat before truncation: %w", err)
	}
	if info.Size() < config.MinWALSizeForTruncation {
		return 0, nil
	}

	truncateLSN := calculateTruncationPoint(checkpoint)
	if truncateLSN == 0 {
		return 0, nil
	}

	records := m.ReadAll()

	var archive, keep []logrecord.Record
	for _, rec := range records {
		if rec.LSN < truncateLSN {
			archive = append(archive, rec)
		} else {
			keep = append(keep, rec)
		}
	}
	if len(archive) == 0 {
		return 0, nil
	}

	var archiveBytes []byte
	for _, rec := range archive {
		archiveBytes = append(archiveBytes, rec.Serialize()...)
	}

	archivePath := fmt.Sprintf("%s.archive.%d.gz", m.file.Name(), truncateLSN)
	if err := writeGzip(archivePath, archiveBytes); err != nil {
		return 0, fmt.Errorf("wal: archive before truncation: %w", err)
	}

	var liveBytes []byte
	for _, rec := range keep {
		liveBytes = append(liveBytes, rec.Serialize()...)
	}

	oldPath := m.file.Name()
	tmpPath := oldPath + ".truncate.tmp"
	if err := os.WriteFile(tmpPath, liveBytes, 0644); err != nil {
		return 0, fmt.Errorf("wal: write truncated log: %w", err)
	}
	if err := m.file.Close(); err != nil {
		return 0, fmt.Errorf("wal: close old log before truncation: %w", err)
	}
	if err := os.Rename(tmpPath, oldPath); err != nil {
		return 0, fmt.Errorf("wal: activate truncated log: %w", err)
	}
	newFile, err := os.OpenFile(oldPath, os.O_RDWR, 0644)
	if err != nil {
		return 0, fmt.Errorf("wal: reopen truncated log: %w", err)
	}
	m.file = newFile

	fmt.Printf("wal: archived %d bytes (%d records before LSN %d) to %s\n",
		len(archiveBytes), len(archive), truncateLSN, archivePath)
	return int64(len(archiveBytes)), nil
}

// calculateTruncationPoint finds the oldest LSN still needed by an
// active transaction or a page in the dirty-page table; anything
// strictly older than that is safe to archive. The dirty-page table
// holds the first LSN that touched each page since the log was opened;
// entries are not removed when a page is written back.
func calculateTruncationPoint(checkpoint CheckpointRecord) primitives.LSN {
	minLSN := checkpoint.LSN
	for _, txn := range checkpoint.ActiveTxns {
		if txn.FirstLSN < minLSN {
			minLSN = txn.FirstLSN
		}
	}
	for _, lsn := range checkpoint.DirtyPages {
		if lsn < minLSN {
			minLSN = lsn
		}
	}
	return minLSN
}

func writeGzip(path string, data []byte) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
