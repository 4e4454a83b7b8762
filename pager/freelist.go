package pager

import "github.com/SimonWaldherr/gistvacuum/page"

// freeManager tracks free page ids in memory, backed by free-list pages on
// disk. Adapted from the teacher's internal/storage/pager/freelist.go
// FreeManager; the on-disk chain format is unchanged (page.FreeListPage),
// the in-memory bookkeeping is the same set-based design.
type freeManager struct {
	free map[page.ID]struct{}
	head page.ID
}

func newFreeManager() *freeManager {
	return &freeManager{free: map[page.ID]struct{}{}, head: page.Invalid}
}

func (fm *freeManager) loadFromDisk(head page.ID, readPage func(page.ID) ([]byte, error)) error {
	fm.head = head
	pid := head
	for pid != page.Invalid {
		buf, err := readPage(pid)
		if err != nil {
			return err
		}
		fl := page.WrapFreeList(buf)
		for _, id := range fl.All() {
			fm.free[id] = struct{}{}
		}
		pid = fl.Next()
	}
	return nil
}

func (fm *freeManager) alloc() page.ID {
	for pid := range fm.free {
		delete(fm.free, pid)
		return pid
	}
	return page.Invalid
}

func (fm *freeManager) freePage(pid page.ID) {
	fm.free[pid] = struct{}{}
}

func (fm *freeManager) count() int { return len(fm.free) }

func (fm *freeManager) all() []page.ID {
	ids := make([]page.ID, 0, len(fm.free))
	for pid := range fm.free {
		ids = append(ids, pid)
	}
	return ids
}

// flushToDisk writes the in-memory free set into free-list pages, returning
// the new chain head and the page buffers to persist.
func (fm *freeManager) flushToDisk(pageSize int, allocPage func() (page.ID, []byte)) (page.ID, [][]byte) {
	ids := fm.all()
	if len(ids) == 0 {
		return page.Invalid, nil
	}
	cap := page.FreeListCapacity(pageSize)
	var pages [][]byte
	var head page.ID = page.Invalid
	var prev *page.FreeListPage

	for i := 0; i < len(ids); i += cap {
		end := i + cap
		if end > len(ids) {
			end = len(ids)
		}
		pid, buf := allocPage()
		fl := page.InitFreeList(buf, pid)
		for _, id := range ids[i:end] {
			fl.Add(id)
		}
		page.SetCRC(buf)
		pages = append(pages, buf)
		if prev != nil {
			prev.SetNext(pid)
			page.SetCRC(prev.Bytes())
		} else {
			head = pid
		}
		prev = fl
	}
	fm.head = head
	return head, pages
}
