package gistvacuum

import (
	"context"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// RescanPass implements spec section 4.D: drains q, deleting downlinks to
// empty children, splicing right-link chains, and marking pages deleted.
// Grounded on the source's gistrescanvacuum loop; the child re-verification
// under exclusive lock (the "verify-before-delete" re-check spec section 9
// requires) is the one step a naive port would be tempted to skip.
func RescanPass(ctx context.Context, pg *pager.Pager, bim *BlockInfoMap, q *RescanQueue, pred Predicate, txid page.TxID, stats *Stats) error {
	for !q.Empty() {
		item, ok := q.Dequeue()
		if !ok {
			break
		}
		if err := rescanVisitItem(ctx, pg, bim, q, item, pred, txid, stats); err != nil {
			return err
		}
		if err := pager.Yield(ctx); err != nil {
			return wrap(KindTransient, "RescanPass", err)
		}
	}
	return nil
}

func rescanVisitItem(ctx context.Context, pg *pager.Pager, bim *BlockInfoMap, q *RescanQueue, item WorkItem, pred Predicate, txid page.TxID, stats *Stats) error {
	blkno := item.Blkno
	if item.IsParent {
		p, err := bim.GetParent(blkno)
		if err != nil {
			return err
		}
		blkno = p
	}

	if bim.IsProcessed(blkno) {
		return nil
	}

	buf, err := pg.ReadPage(blkno, pager.Normal)
	if err != nil {
		return wrap(KindIO, "ReadPage", err)
	}
	pg.PinShare(blkno)
	mode := pager.Share
	released := false
	release := func() {
		if !released {
			pg.Unlock(blkno, mode)
			pg.Release(blkno)
			released = true
		}
	}
	defer release()

	gp := page.Wrap(buf)
	if gp.IsDeleted() {
		return nil
	}

	// deadIdx collects 0-based slot indices to remove from this page: dead
	// leaf tuples for a leaf page, or downlinks whose child was reclaimed
	// for an inner page. Both share the same slot-directory deletion path.
	var deadIdx []int

	if gp.IsLeaf() {
		// Rare on this pass: only enqueued via a right-link sweep (spec
		// 4.D step 4). Run the same predicate sweep as the physical pass.
		pg.Unlock(blkno, mode)
		pg.PinExclusive(blkno)
		mode = pager.Exclusive
		deadIdx, _ = sweepPredicate(gp, pred)
	} else {
		rightlink := gp.RightLink()
		if blkno != page.Root && rightlink != page.Invalid && gp.NeedsRightSiblingVisit(0) {
			q.Enqueue(WorkItem{Blkno: rightlink, IsParent: false})
		}

		for i, dl := range gp.AllDownlinks() {
			if !bim.GetToDelete(dl.Child) {
				continue
			}
			reclaimed, err := reclaimChild(pg, bim, dl.Child, pred, txid, stats)
			if err != nil {
				return err
			}
			if reclaimed {
				deadIdx = append(deadIdx, i)
			}
		}
	}

	isNew := isNewOrEmpty(buf, gp)
	total := gp.Count()
	ntodelete := len(deadIdx)
	allGone := ntodelete > 0 && ntodelete == total

	if ntodelete > 0 || isNew {
		if ntodelete > 0 {
			adjusted := adjustedDeleteIndices(deadIdx)
			if err := gp.DeleteAt(adjusted); err != nil {
				return wrap(KindIntegrity, "DeleteAt", err)
			}
			if _, err := emitUpdate(pg, blkno, buf); err != nil {
				return err
			}
		}

		if allGone || isNewOrEmpty(buf, gp) {
			if blkno == page.Root {
				// Sentinel-as-root (spec section 9): convert to a leaf
				// rather than delete — the tree must always have a root.
				gp.SetLeaf(true)
				if _, err := emitRootDemote(pg, buf); err != nil {
					return err
				}
			} else {
				q.Enqueue(WorkItem{Blkno: blkno, IsParent: true})
				bim.MarkToDelete(blkno, true)
			}
		}
	}

	return nil
}

// reclaimChild pins+exclusive-locks child c, re-verifies it is actually
// empty (the race window between the physical pass scheduling it and this
// pass confirming it — spec section 9's "re-verification race"), and if
// still empty: logs the removal, stamps prune_xid, splices the right-link
// chain, marks it deleted, and increments pages_deleted. Returns whether
// the child was reclaimed; the caller removes the child's downlink from the
// parent when it was.
func reclaimChild(pg *pager.Pager, bim *BlockInfoMap, c page.ID, pred Predicate, txid page.TxID, stats *Stats) (bool, error) {
	buf, err := pg.ReadPage(c, pager.Normal)
	if err != nil {
		return false, wrap(KindIO, "ReadPage", err)
	}
	pg.PinExclusive(c)
	defer func() {
		pg.Unlock(c, pager.Exclusive)
		pg.Release(c)
	}()

	gp := page.Wrap(buf)
	var stillEmpty bool

	if gp.IsLeaf() {
		deadIdx, survivors := sweepPredicate(gp, pred)
		if len(deadIdx) > 0 {
			adjusted := adjustedDeleteIndices(deadIdx)
			if err := gp.DeleteAt(adjusted); err != nil {
				return false, wrap(KindIntegrity, "DeleteAt", err)
			}
			if _, err := emitUpdate(pg, c, buf); err != nil {
				return false, err
			}
		}
		if survivors > 0 {
			// Child received new inserts since the physical pass scheduled
			// it — do not reclaim; leave for a future vacuum invocation.
			return false, nil
		}
		stillEmpty = true
	} else {
		// An inner page reached here must already have had all its own
		// downlinks removed in earlier iterations (spec 4.D step 5b note).
		stillEmpty = gp.IsEmpty() || isNewOrEmpty(buf, gp)
	}

	if !stillEmpty {
		return false, nil
	}

	gp.SetPruneXid(txid)
	if _, err := emitUpdate(pg, c, buf); err != nil {
		return false, err
	}

	if err := spliceLeftLink(pg, bim, c, gp.RightLink()); err != nil {
		return false, err
	}

	gp.SetDeleted(true)
	if _, err := emitUpdate(pg, c, buf); err != nil {
		return false, err
	}

	stats.PagesDeleted++
	return true, nil
}

// spliceLeftLink implements the "right-link chain splice" spec section 4.D
// names: L := GetLeftLink(c); if L != Invalid, exclusive-lock L and set
// L.rightlink := c.rightlink, preserving the property that traversing
// right-links never enters a deleted page.
func spliceLeftLink(pg *pager.Pager, bim *BlockInfoMap, c, newRight page.ID) error {
	l := bim.GetLeftLink(c)
	if l == page.Invalid {
		return nil
	}
	buf, err := pg.ReadPage(l, pager.Normal)
	if err != nil {
		return wrap(KindIO, "ReadPage", err)
	}
	pg.PinExclusive(l)
	defer func() {
		pg.Unlock(l, pager.Exclusive)
		pg.Release(l)
	}()

	gp := page.Wrap(buf)
	gp.SetRightLink(newRight)
	if _, err := emitSplice(pg, l, buf); err != nil {
		return err
	}
	return nil
}
