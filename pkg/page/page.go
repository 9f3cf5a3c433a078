// Package page implements the fixed-size on-disk page layout: a 3-byte
// header (page id, page LSN, tuple count) followed by a dense array of
// one-byte tuple slots.
package page

import "aries/pkg/primitives"

// Size is the fixed page size in bytes. Chosen small (16B) so a handful
// of tuples force a page split, which is what the test vectors exercise.
const Size = 16

// HeaderSize is the number of header bytes preceding the slot array.
const HeaderSize = 3

// MaxTuples is the number of one-byte slots a page can hold.
const MaxTuples = Size - HeaderSize

// Logger is the subset of Transaction a Page needs to log an insert or a
// rollback. Defined here, not in pkg/txn, so Page depends only on the
// shape it needs rather than the whole Transaction type.
type Logger interface {
	LogInsert(pageID primitives.PageID, slotID uint8, tuple byte) primitives.LSN
	LogCompensateInsert(pageID primitives.PageID, slotID uint8, nextUndoLSN primitives.LSN) primitives.LSN
}

// Page is the in-memory view of one page's bytes.
type Page struct {
	bytes [Size]byte
}

// Init zeroes a fresh page and stamps its id.
func Init(id primitives.PageID) *Page {
	p := &Page{}
	p.bytes[0] = byte(id)
	return p
}

// Load adopts raw page bytes verbatim, as read from disk.
func Load(bytes [Size]byte) *Page {
	return &Page{bytes: bytes}
}

// Bytes returns the raw page bytes, suitable for writing straight to disk.
func (p *Page) Bytes() [Size]byte {
	return p.bytes
}

// ID returns the page id stamped in the header.
func (p *Page) ID() primitives.PageID {
	return primitives.PageID(p.bytes[0])
}

// LSN returns the LSN of the most recent log record whose effect is
// reflected in this page's bytes.
func (p *Page) LSN() primitives.LSN {
	return primitives.LSN(p.bytes[1])
}

// setLSN stamps the page's LSN; only Insert/RollbackInsert and redo
// should call this.
func (p *Page) setLSN(lsn primitives.LSN) {
	p.bytes[1] = byte(lsn)
}

// TupleCount returns the number of occupied slots.
func (p *Page) TupleCount() uint8 {
	return p.bytes[2]
}

// HasSpace reports whether one more tuple fits.
func (p *Page) HasSpace() bool {
	return p.TupleCount() < MaxTuples
}

// Tuples returns a copy of the occupied slots, in slot order.
func (p *Page) Tuples() []byte {
	count := p.TupleCount()
	out := make([]byte, count)
	copy(out, p.bytes[HeaderSize:HeaderSize+int(count)])
	return out
}

// Insert writes tuple at the next free slot and bumps the tuple count.
// Callers must check HasSpace first; Insert does not check it itself —
// that is the caller's contract to honor, not a recoverable condition.
//
// If txn is non-nil, the insert is first logged against txn and the
// page's LSN is stamped with the resulting log record's LSN, preserving
// WAL discipline (the log record always precedes the data mutation it
// describes, even though both happen before either is durable).
func (p *Page) Insert(tuple byte, txn Logger) {
	slotID := p.TupleCount()
	if txn != nil {
		lsn := txn.LogInsert(p.ID(), slotID, tuple)
		p.setLSN(lsn)
	}
	p.bytes[HeaderSize+int(slotID)] = tuple
	p.bytes[2]++
}

// RollbackUndo describes the transaction+next-undo-LSN pair needed to log
// a CompensateInsert CLR while rolling back an insert. Pass nil to apply
// the shift without logging (used by redo/undo during recovery, which
// must not emit new log records).
type RollbackUndo struct {
	Txn         Logger
	NextUndoLSN primitives.LSN
}

// RollbackInsert undoes the insert at slotID: shifts every later slot
// left by one and decrements the tuple count. If undo is non-nil, first
// appends a CompensateInsert CLR via undo.Txn carrying undo.NextUndoLSN,
// and stamps the page's LSN with the CLR's LSN.
func (p *Page) RollbackInsert(slotID uint8, undo *RollbackUndo) {
	if undo != nil {
		lsn := undo.Txn.LogCompensateInsert(p.ID(), slotID, undo.NextUndoLSN)
		p.setLSN(lsn)
	}
	count := p.TupleCount()
	for i := slotID; i < count-1; i++ {
		p.bytes[HeaderSize+int(i)] = p.bytes[HeaderSize+int(i)+1]
	}
	p.bytes[2]--
}
