// Package pagestore owns the single data file and moves whole pages
// between it and memory. All I/O errors here are fatal to the engine —
// the WAL is the recovery mechanism, not partial-failure handling at this
// layer.
package pagestore

import (
	"fmt"
	"os"

	"aries/pkg/page"
	"aries/pkg/primitives"
)

// Manager reads and writes fixed-size pages at offset page_id * page.Size
// in a flat data file, and allocates new pages by appending a zeroed one.
type Manager struct {
	file *os.File
}

// Init creates (truncating any existing file) the data file and returns a
// Manager over it.
func Init(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: init %q: %w", path, err)
	}
	return &Manager{file: f}, nil
}

// Load opens an existing data file for a Manager over it.
func Load(path string) (*Manager, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("pagestore: load %q: %w", path, err)
	}
	return &Manager{file: f}, nil
}

// NextPageID returns the id the next AllocatePage call would assign,
// i.e. file_length / page.Size.
func (m *Manager) NextPageID() primitives.PageID {
	info, err := m.file.Stat()
	if err != nil {
		panic(fmt.Sprintf("pagestore: stat: %v", err))
	}
	return primitives.PageID(info.Size() / page.Size)
}

// AllocatePage durably extends the data file by one zeroed page and
// returns its id.
func (m *Manager) AllocatePage() primitives.PageID {
	id := m.NextPageID()
	p := page.Init(id)
	m.WritePage(p)
	return id
}

// ReadPage reads exactly one page's worth of bytes at the given id.
// Reading a page past EOF is a fatal corruption condition, not a
// recoverable error — the caller asked for a page that was never
// allocated.
func (m *Manager) ReadPage(id primitives.PageID) *page.Page {
	var buf [page.Size]byte
	offset := int64(id) * page.Size
	n, err := m.file.ReadAt(buf[:], offset)
	if err != nil || n != page.Size {
		panic(fmt.Sprintf("pagestore: read page %d: %v (read %d bytes)", id, err, n))
	}
	return page.Load(buf)
}

// WritePage writes a page back to its slot and fsyncs the data file.
func (m *Manager) WritePage(p *page.Page) {
	bytes := p.Bytes()
	offset := int64(p.ID()) * page.Size
	if _, err := m.file.WriteAt(bytes[:], offset); err != nil {
		panic(fmt.Sprintf("pagestore: write page %d: %v", p.ID(), err))
	}
	if err := m.file.Sync(); err != nil {
		panic(fmt.Sprintf("pagestore: sync after writing page %d: %v", p.ID(), err))
	}
}

// Close closes the underlying data file.
func (m *Manager) Close() error {
	return m.file.Close()
}
