package gistvacuum

import (
	"context"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// PhysicalPass implements spec section 4.C: the first pass over pages
// [Root, n) in storage order. It purges dead leaf entries outright, records
// parent/left-sibling relationships into bim, and enqueues work for the
// rescan pass. Grounded on the source's gistphysicalvacuum loop and on the
// teacher's sequential reachability scan in internal/storage/pager/gc.go,
// restructured around GiST's opaque area instead of a B+Tree page.
func PhysicalPass(ctx context.Context, pg *pager.Pager, bim *BlockInfoMap, q *RescanQueue, n page.ID, pred Predicate, strategy pager.Strategy, stats *Stats) error {
	for b := page.Root; b < n; b++ {
		if err := physicalVisitPage(ctx, pg, bim, q, b, pred, strategy, stats); err != nil {
			return err
		}
		if err := pager.Yield(ctx); err != nil {
			return wrap(KindTransient, "PhysicalPass", err)
		}
	}
	return nil
}

func physicalVisitPage(ctx context.Context, pg *pager.Pager, bim *BlockInfoMap, q *RescanQueue, b page.ID, pred Predicate, strategy pager.Strategy, stats *Stats) error {
	buf, err := pg.ReadPage(b, strategy)
	if err != nil {
		return wrap(KindIO, "ReadPage", err)
	}
	pg.PinShare(b)
	mode := pager.Share
	released := false
	release := func() {
		if !released {
			pg.Unlock(b, mode)
			pg.Release(b)
			released = true
		}
	}
	defer release()

	if err := pager.Checkpage(buf); err != nil {
		return wrap(KindIntegrity, "Checkpage", err)
	}

	gp := page.Wrap(buf)
	if gp.IsDeleted() {
		// Left over from a prior invocation: already unlinked from its
		// parent and sibling chain, nothing left for this pass to do. A
		// flat block-number scan revisits it every run until VacuumCleanup
		// frees the id, so this check is what keeps a repeated BulkDelete
		// idempotent.
		return nil
	}
	rightlink := gp.RightLink()
	if rightlink != page.Invalid {
		bim.RecordLeftLink(rightlink, b)
	}

	var (
		deadIdx   []int
		ntodelete int
	)

	if gp.IsLeaf() {
		// Upgrade to exclusive lock: never in place, release share first
		// (spec section 5: "never upgrade in place").
		pg.Unlock(b, pager.Share)
		pg.PinExclusive(b)
		mode = pager.Exclusive
		deadIdx, _ = sweepPredicate(gp, pred)
		ntodelete = len(deadIdx)
		stats.TuplesRemoved += ntodelete
		stats.NumIndexTuples += gp.Count() - ntodelete
	} else {
		// parentNSN is unknowable in a linear [Root, n) scan (unlike the
		// fallback's top-down descent, which threads a real parentNSN through
		// its stack): this pass has not visited any parent before its
		// children. We use 0 ("no information yet") so the sibling rule
		// falls back to "visit unless this page was never split", the
		// conservative choice spec section 9 requires ("the spec keeps the
		// full rule... required for correctness across concurrent splits") —
		// an extra rescan of an unchanged sibling is wasted work, a missed
		// one is a correctness bug.
		if b != page.Root && rightlink != page.Invalid && gp.NeedsRightSiblingVisit(0) {
			q.Enqueue(WorkItem{Blkno: rightlink, IsParent: false})
		}
		for _, dl := range gp.AllDownlinks() {
			bim.RecordParent(dl.Child, b)
		}
		// Exclusive lock needed below only if we end up mutating; inner
		// pages visited here never have ntodelete>0 (predicate only ever
		// applies to leaf tuples), so no lock upgrade is required for them.
	}

	isNew := isNewOrEmpty(buf, gp)

	if ntodelete > 0 || isNew {
		allGone := ntodelete > 0 && ntodelete == gp.Count()
		if allGone || isNew {
			q.Enqueue(WorkItem{Blkno: b, IsParent: true})
			bim.MarkToDelete(b, false)
			// Page stays addressable: the rescan pass relinks siblings and
			// marks it deleted, not this pass (spec 4.C: "the physical pass
			// never sets the deleted flag and never relinks siblings").
		} else {
			adjusted := adjustedDeleteIndices(deadIdx)
			if err := gp.DeleteAt(adjusted); err != nil {
				return wrap(KindIntegrity, "DeleteAt", err)
			}
			if _, err := emitUpdate(pg, b, buf); err != nil {
				return err
			}
		}
	}

	return nil
}
