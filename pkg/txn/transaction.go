// Package txn implements the per-transaction log record trail that
// drives prev-LSN chaining and abort.
package txn

import (
	"fmt"

	"aries/pkg/logrecord"
	"aries/pkg/primitives"
)

// Appender is the subset of the log manager a Transaction needs: append
// one record and get back its stamped LSN.
type Appender interface {
	Append(rec logrecord.Record) logrecord.Record
}

// Transaction holds a transaction id and the ordered list of its own log
// records. It is the source of prev-LSN for chaining: the LSN of its
// last record is always the prev-LSN for its next one.
type Transaction struct {
	id      primitives.TxnID
	log     Appender
	records []logrecord.Record
}

// New starts tracking a transaction against the given log appender. It
// does not itself log a Begin record — callers (the Database façade)
// call LogBegin once they hold the Transaction.
func New(id primitives.TxnID, log Appender) *Transaction {
	return &Transaction{id: id, log: log}
}

// ID returns the transaction's id.
func (t *Transaction) ID() primitives.TxnID {
	return t.id
}

// Records returns the transaction's own log records in append order.
func (t *Transaction) Records() []logrecord.Record {
	return t.records
}

// prevLSN returns the LSN of this transaction's most recent record. Only
// valid once at least one record (a Begin) has been logged.
func (t *Transaction) prevLSN() primitives.LSN {
	if len(t.records) == 0 {
		panic(fmt.Sprintf("txn %d: prevLSN with no records logged yet", t.id))
	}
	return t.records[len(t.records)-1].LSN
}

// LogBegin appends this transaction's Begin record.
func (t *Transaction) LogBegin() primitives.LSN {
	rec := t.log.Append(logrecord.NewBegin(0, t.id))
	t.records = append(t.records, rec)
	return rec.LSN
}

// LogCommit appends this transaction's Commit record.
func (t *Transaction) LogCommit() primitives.LSN {
	rec := t.log.Append(logrecord.NewCommit(0, t.id))
	t.records = append(t.records, rec)
	return rec.LSN
}

// LogAbort appends this transaction's Abort record.
func (t *Transaction) LogAbort() primitives.LSN {
	rec := t.log.Append(logrecord.NewAbort(0, t.id))
	t.records = append(t.records, rec)
	return rec.LSN
}

// LogInsert appends an Insert record for (pageID, slotID, tuple), filling
// prev_lsn from this transaction's current tail. Requires a Begin to
// already be present, since otherwise there is no prev-LSN.
func (t *Transaction) LogInsert(pageID primitives.PageID, slotID uint8, tuple byte) primitives.LSN {
	rec := t.log.Append(logrecord.NewInsert(0, t.prevLSN(), t.id, pageID, slotID, tuple))
	t.records = append(t.records, rec)
	return rec.LSN
}

// LogCompensateInsert appends a CompensateInsert CLR recording the next
// record to undo on behalf of this transaction.
func (t *Transaction) LogCompensateInsert(pageID primitives.PageID, slotID uint8, nextUndoLSN primitives.LSN) primitives.LSN {
	rec := t.log.Append(logrecord.NewCompensateInsert(0, nextUndoLSN, t.id, pageID, slotID))
	t.records = append(t.records, rec)
	return rec.LSN
}
