package buffer

import (
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"aries/pkg/page"
	"aries/pkg/pagestore"
	"aries/pkg/primitives"
)

// frame is one in-memory slot holding a page, its pin count, and
// whether it has been modified since it was loaded. Dirtiness is
// sticky: once true it stays true until the frame is written back on
// eviction, regardless of how many times the page is subsequently
// unpinned as "clean".
type frame struct {
	page     *page.Page
	pageID   primitives.PageID
	pinCount int
	dirty    bool
}

// Stats reports buffer pool activity for observability.
type Stats struct {
	FrameCount  int
	MaxFrames   int
	DirtyFrames int
	CacheHits   int64
	CacheMisses int64
	Evictions   int64
}

// Pool is the pinning buffer pool manager: it serves pages out of a
// fixed number of frames, fetching from the backing page store on a
// miss and evicting the oldest unpinned frame when full. Dirty frames
// are written back to disk only on eviction — durability comes from
// the write-ahead log, not from eagerly flushing pages.
type Pool struct {
	mu sync.Mutex

	store     *pagestore.Manager
	maxFrames int
	frames    []*frame
	pageTable map[primitives.PageID]int
	replacer  *replacer

	// sf collapses concurrent ReadPage misses for the same page id into
	// a single disk read.
	sf singleflight.Group

	hits, misses, evictions int64
}

// NewPool builds a pool of at most maxFrames frames over store.
func NewPool(store *pagestore.Manager, maxFrames int) *Pool {
	if maxFrames <= 0 {
		panic("buffer: pool requires at least one frame")
	}
	return &Pool{
		store:     store,
		maxFrames: maxFrames,
		frames:    make([]*frame, 0, maxFrames),
		pageTable: make(map[primitives.PageID]int, maxFrames),
		replacer:  newReplacer(),
	}
}

// ReadPage pins and returns the page with the given id, fetching it
// from disk (possibly evicting another frame) if it isn't already
// resident. Callers must call UnpinPage exactly once per ReadPage call.
func (p *Pool) ReadPage(id primitives.PageID) *page.Page {
	p.mu.Lock()
	if frameID, ok := p.pageTable[id]; ok {
		fr := p.frames[frameID]
		fr.pinCount++
		p.replacer.pin(frameID)
		p.hits++
		pg := fr.page
		p.mu.Unlock()
		return pg
	}
	p.mu.Unlock()

	loaded, _, _ := p.sf.Do(strconv.Itoa(int(id)), func() (any, error) {
		return p.store.ReadPage(id), nil
	})
	loadedPage := loaded.(*page.Page)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Another caller may have installed this page while we were
	// fetching it outside the lock; don't double-install a frame.
	if frameID, ok := p.pageTable[id]; ok {
		fr := p.frames[frameID]
		fr.pinCount++
		p.replacer.pin(frameID)
		p.hits++
		return fr.page
	}
	p.misses++

	newFrame := &frame{page: loadedPage, pageID: id, pinCount: 1}

	var frameID int
	if len(p.frames) < p.maxFrames {
		frameID = len(p.frames)
		p.frames = append(p.frames, newFrame)
	} else {
		frameID = p.replacer.victim()
		victim := p.frames[frameID]
		if victim.dirty {
			p.store.WritePage(victim.page)
		}
		delete(p.pageTable, victim.pageID)
		p.frames[frameID] = newFrame
		p.evictions++
	}
	p.pageTable[id] = frameID
	p.replacer.pin(frameID)
	return loadedPage
}

// AllocatePage allocates a fresh zeroed page on disk and pins it in
// the pool, returning it ready to use. Equivalent to ReadPage on a
// freshly allocated id.
func (p *Pool) AllocatePage() *page.Page {
	id := p.store.AllocatePage()
	return p.ReadPage(id)
}

// UnpinPage releases one pin on the given page. isDirty marks the
// frame as modified; it never clears a dirty flag already set. Panics
// if the page isn't resident or is already fully unpinned, since both
// indicate a caller bug in pin/unpin discipline.
func (p *Pool) UnpinPage(id primitives.PageID, isDirty bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	frameID, ok := p.pageTable[id]
	if !ok {
		panic(fmt.Sprintf("buffer: unpin of non-resident page %d", id))
	}
	fr := p.frames[frameID]
	if fr.pinCount == 0 {
		panic(fmt.Sprintf("buffer: unpin of already-unpinned page %d", id))
	}
	fr.pinCount--
	if isDirty {
		fr.dirty = true
	}
	if fr.pinCount == 0 {
		p.replacer.unpin(frameID)
	}
}

// FlushAll writes back every dirty frame without evicting it. Intended
// for a graceful shutdown path; recovery does not depend on it ever
// being called, since durability comes from the log.
func (p *Pool) FlushAll() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, fr := range p.frames {
		if fr.dirty {
			p.store.WritePage(fr.page)
			fr.dirty = false
		}
	}
}

// Stats returns a snapshot of pool activity.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	dirty := 0
	for _, fr := range p.frames {
		if fr.dirty {
			dirty++
		}
	}
	return Stats{
		FrameCount:  len(p.frames),
		MaxFrames:   p.maxFrames,
		DirtyFrames: dirty,
		CacheHits:   p.hits,
		CacheMisses: p.misses,
		Evictions:   p.evictions,
	}
}
