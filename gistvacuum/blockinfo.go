package gistvacuum

import "github.com/SimonWaldherr/gistvacuum/page"

// blockState is the per-entry lifecycle spec section 4.D names: Fresh is
// the absence of an entry, so it has no explicit value here.
type blockState int

const (
	stateDiscovered blockState = iota
	stateScheduled
	stateFinalized
)

// blockInfoEntry is one BlockInfoMap entry. The map keeps these fields
// private to this package.
type blockInfoEntry struct {
	parent       page.ID
	hasParent    bool
	leftBlock    page.ID
	hasLeftBlock bool
	toDelete     bool
	processed    bool
	state        blockState
}

// BlockInfoEntry mirrors the public fields of one map entry. Nothing in this
// package returns one, and the budget check (MemoryNeeded in fallback.go)
// uses the blockInfoEntrySize constant below rather than this type's size.
type BlockInfoEntry struct {
	Parent    page.ID
	LeftBlock page.ID
	ToDelete  bool
	Processed bool
}

// blockInfoEntrySize approximates the in-memory footprint of one entry:
// two page.ID (4 bytes each), four bools and the state field, plus the
// map's pointer to the entry and bucket overhead, rounded to a machine word. This is deliberately approximate — spec
// section 4.E only requires an order-of-magnitude budget check, not exact
// accounting.
const blockInfoEntrySize = 32

// BlockInfoMap is the process-local map from page id to {parent,
// left-sibling, to-delete, processed}, created per BulkDelete invocation
// and discarded at its end. Grounded on the teacher's reachable-page set in
// internal/storage/pager/gc.go (a map[PageID]struct{} built during a single
// scan), generalized here to a richer per-entry record.
type BlockInfoMap struct {
	entries map[page.ID]*blockInfoEntry
}

// NewBlockInfoMap creates a map sized with a capacity hint ≈ npages, per
// spec section 4.A.
func NewBlockInfoMap(capacityHint int) *BlockInfoMap {
	if capacityHint < 0 {
		capacityHint = 0
	}
	return &BlockInfoMap{entries: make(map[page.ID]*blockInfoEntry, capacityHint)}
}

func (m *BlockInfoMap) get(b page.ID) *blockInfoEntry {
	e, ok := m.entries[b]
	if !ok {
		e = &blockInfoEntry{state: stateDiscovered}
		m.entries[b] = e
	}
	return e
}

// RecordParent inserts or updates the parent of child.
func (m *BlockInfoMap) RecordParent(child, parent page.ID) {
	e := m.get(child)
	e.parent = parent
	e.hasParent = true
}

// GetParent returns the parent of child. It fails with ErrMissingParent if
// no parent was ever recorded and child is not the tree root.
func (m *BlockInfoMap) GetParent(child page.ID) (page.ID, error) {
	if child == page.Root {
		return page.Invalid, nil
	}
	e, ok := m.entries[child]
	if !ok || !e.hasParent {
		return page.Invalid, wrap(KindIntegrity, "GetParent", ErrMissingParent)
	}
	return e.parent, nil
}

// RecordLeftLink inserts or updates the page whose right-link equals right.
func (m *BlockInfoMap) RecordLeftLink(right, left page.ID) {
	e := m.get(right)
	e.leftBlock = left
	e.hasLeftBlock = true
}

// GetLeftLink returns the left-sibling of right, or page.Invalid if none
// was recorded. An entry that exists for other reasons (e.g. a recorded
// parent) but never had RecordLeftLink called on it must still report
// Invalid here — the zero value of page.ID collides with Root, so
// hasLeftBlock distinguishes "never recorded" from "recorded as Root".
func (m *BlockInfoMap) GetLeftLink(right page.ID) page.ID {
	e, ok := m.entries[right]
	if !ok || !e.hasLeftBlock {
		return page.Invalid
	}
	return e.leftBlock
}

// MarkToDelete schedules blk for reclamation, setting its processed flag.
// This drives the Discovered→Scheduled and Scheduled→Finalized transitions.
func (m *BlockInfoMap) MarkToDelete(blk page.ID, processed bool) {
	e := m.get(blk)
	e.toDelete = true
	e.processed = processed
	if processed {
		e.state = stateFinalized
	} else {
		e.state = stateScheduled
	}
}

// GetToDelete reports whether blk has been scheduled for reclamation.
// Default false for pages with no entry.
func (m *BlockInfoMap) GetToDelete(blk page.ID) bool {
	e, ok := m.entries[blk]
	return ok && e.toDelete
}

// IsProcessed reports whether blk has already been handled by the rescan
// pass — the idempotence guard spec section 4.D step 2 checks before
// redoing any work.
func (m *BlockInfoMap) IsProcessed(blk page.ID) bool {
	e, ok := m.entries[blk]
	return ok && e.processed
}

// Len returns the number of entries currently recorded, for stats and
// tests; not part of the spec's operation list.
func (m *BlockInfoMap) Len() int { return len(m.entries) }
