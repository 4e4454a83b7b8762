package gistvacuum

import (
	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
	"github.com/SimonWaldherr/gistvacuum/wal"
)

// emitUpdate is the "WAL contract consumed: EmitUpdate(rel, buffer,
// toDelete[], addItems[], …) → LSN" interface spec section 6 names. The
// vacuum core never emits WAL record *format* itself (that is an external
// collaborator per spec Non-goals) — it only asks the pager to log the
// post-mutation page image and stamp the returned LSN back onto the page,
// atomically with the mutation's critical section (spec section 5 step 3).
func emitUpdate(pg *pager.Pager, id page.ID, buf []byte) (page.LSN, error) {
	rec := &wal.Record{Type: wal.RecordUpdate, PageID: id, Data: append([]byte(nil), buf...)}
	lsn, err := pg.AppendWAL(rec)
	if err != nil {
		return 0, wrap(KindIO, "emitUpdate", err)
	}
	pager.SetPageLSN(buf, lsn)
	pg.MarkDirty(id)
	return lsn, nil
}

// emitSplice logs a left-sibling right-link splice.
func emitSplice(pg *pager.Pager, id page.ID, buf []byte) (page.LSN, error) {
	rec := &wal.Record{Type: wal.RecordSplice, PageID: id, Data: append([]byte(nil), buf...)}
	lsn, err := pg.AppendWAL(rec)
	if err != nil {
		return 0, wrap(KindIO, "emitSplice", err)
	}
	pager.SetPageLSN(buf, lsn)
	pg.MarkDirty(id)
	return lsn, nil
}

// emitRootDemote logs the root-to-leaf conversion when the whole index
// empties (spec section 4.D step 6, "Sentinel-as-root" design note).
func emitRootDemote(pg *pager.Pager, buf []byte) (page.LSN, error) {
	rec := &wal.Record{Type: wal.RecordRootDemote, PageID: page.Root, Data: append([]byte(nil), buf...)}
	lsn, err := pg.AppendWAL(rec)
	if err != nil {
		return 0, wrap(KindIO, "emitRootDemote", err)
	}
	pager.SetPageLSN(buf, lsn)
	pg.MarkDirty(page.Root)
	return lsn, nil
}

// adjustedDeleteIndices converts ascending 0-based "dead at this original
// position" indices into the pre-adjusted form the page primitive requires
// (spec section 4.C: "offsets stored as i - ntodelete so that after
// sequential deletion the positions remain valid").
func adjustedDeleteIndices(raw []int) []int {
	out := make([]int, len(raw))
	for i, idx := range raw {
		out[i] = idx - i
	}
	return out
}

// sweepPredicate runs pred over every tuple on a leaf page, returning the
// 0-based indices of dead entries (ascending, not yet offset-adjusted) and
// counts for num_index_tuples/tuples_removed.
func sweepPredicate(gp *page.GistPage, pred Predicate) (dead []int, survivors int) {
	tuples := gp.AllLeafTuples()
	for i, t := range tuples {
		if pred(t.TID) {
			dead = append(dead, i)
		} else {
			survivors++
		}
	}
	return dead, survivors
}

// isNewOrEmpty implements spec section 4.C step 6: "page is uninitialized
// OR empty".
func isNewOrEmpty(buf []byte, gp *page.GistPage) bool {
	return page.IsNew(buf) || gp.IsEmpty()
}
