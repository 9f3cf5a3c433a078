// Package logrecord defines the five WAL record variants and their fixed
// byte layout. Every record begins with its LSN (1 byte) and a 1-byte
// type tag, followed by the fields from the table in spec.md §3.
package logrecord

import (
	"fmt"

	"aries/pkg/primitives"
)

// Type is the 1-byte tag identifying a record's variant.
type Type byte

const (
	Begin Type = iota
	Commit
	Abort
	Insert
	CompensateInsert
)

// Record is a tagged union over the five log record variants. Only the
// fields relevant to Type are meaningful; this mirrors the original
// Rust source's enum more than it mirrors idiomatic Go, deliberately —
// the wire format is a flat tagged struct, so the in-memory shape stays
// a flat tagged struct too.
type Record struct {
	LSN  primitives.LSN
	Type Type

	TxnID primitives.TxnID

	// Insert-only.
	PrevLSN primitives.LSN
	PageID  primitives.PageID
	SlotID  uint8
	Tuple   byte

	// CompensateInsert-only.
	NextUndoLSN primitives.LSN
}

// sizeOf returns the on-disk size of a record of the given type,
// including its LSN and type tag.
func sizeOf(t Type) int {
	switch t {
	case Begin, Commit, Abort:
		return 3
	case CompensateInsert:
		return 6
	case Insert:
		return 7
	default:
		panic(fmt.Sprintf("logrecord: unknown type %d", t))
	}
}

// NewBegin builds a Begin record.
func NewBegin(lsn primitives.LSN, txn primitives.TxnID) Record {
	return Record{LSN: lsn, Type: Begin, TxnID: txn}
}

// NewCommit builds a Commit record.
func NewCommit(lsn primitives.LSN, txn primitives.TxnID) Record {
	return Record{LSN: lsn, Type: Commit, TxnID: txn}
}

// NewAbort builds an Abort record.
func NewAbort(lsn primitives.LSN, txn primitives.TxnID) Record {
	return Record{LSN: lsn, Type: Abort, TxnID: txn}
}

// NewInsert builds an Insert record.
func NewInsert(lsn, prevLSN primitives.LSN, txn primitives.TxnID, pageID primitives.PageID, slotID uint8, tuple byte) Record {
	return Record{
		LSN: lsn, Type: Insert, TxnID: txn,
		PrevLSN: prevLSN, PageID: pageID, SlotID: slotID, Tuple: tuple,
	}
}

// NewCompensateInsert builds a CompensateInsert (CLR) record.
func NewCompensateInsert(lsn, nextUndoLSN primitives.LSN, txn primitives.TxnID, pageID primitives.PageID, slotID uint8) Record {
	return Record{
		LSN: lsn, Type: CompensateInsert, TxnID: txn,
		NextUndoLSN: nextUndoLSN, PageID: pageID, SlotID: slotID,
	}
}

// Serialize encodes r to its fixed-width wire form.
func (r Record) Serialize() []byte {
	buf := make([]byte, sizeOf(r.Type))
	buf[0] = byte(r.LSN)
	buf[1] = byte(r.Type)
	switch r.Type {
	case Begin, Commit, Abort:
		buf[2] = byte(r.TxnID)
	case Insert:
		buf[2] = byte(r.PrevLSN)
		buf[3] = byte(r.TxnID)
		buf[4] = byte(r.PageID)
		buf[5] = r.SlotID
		buf[6] = r.Tuple
	case CompensateInsert:
		buf[2] = byte(r.NextUndoLSN)
		buf[3] = byte(r.TxnID)
		buf[4] = byte(r.PageID)
		buf[5] = r.SlotID
	}
	return buf
}

// Deserialize decodes one record from the front of bytes and returns it
// along with the number of bytes it consumed. An unknown type tag is a
// fatal corruption condition.
func Deserialize(bytes []byte) (Record, int) {
	lsn := primitives.LSN(bytes[0])
	tag := Type(bytes[1])

	switch tag {
	case Begin, Commit, Abort:
		return Record{LSN: lsn, Type: tag, TxnID: primitives.TxnID(bytes[2])}, 3
	case Insert:
		return Record{
			LSN:     lsn,
			Type:    tag,
			PrevLSN: primitives.LSN(bytes[2]),
			TxnID:   primitives.TxnID(bytes[3]),
			PageID:  primitives.PageID(bytes[4]),
			SlotID:  bytes[5],
			Tuple:   bytes[6],
		}, 7
	case CompensateInsert:
		return Record{
			LSN:         lsn,
			Type:        tag,
			NextUndoLSN: primitives.LSN(bytes[2]),
			TxnID:       primitives.TxnID(bytes[3]),
			PageID:      primitives.PageID(bytes[4]),
			SlotID:      bytes[5],
		}, 6
	default:
		panic(fmt.Sprintf("logrecord: unknown log record type tag %d at LSN %d", tag, lsn))
	}
}
