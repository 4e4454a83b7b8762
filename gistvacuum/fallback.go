package gistvacuum

import (
	"context"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// MemoryNeeded estimates the BlockInfoMap's footprint for n pages, used by
// BulkDelete's budget check (spec section 4.E: "memoryNeeded ≈ N ×
// sizeof(BlockInfoEntry)").
func MemoryNeeded(n page.ID) int64 {
	return int64(n) * blockInfoEntrySize
}

// stackFrame is one FallbackDescent stack entry: the page to visit and the
// NSN its parent had last observed, threaded top-down exactly as the
// source's GistBDItem/pushStackIfSplited does.
type stackFrame struct {
	blkno     page.ID
	parentNSN page.NSN
}

// FallbackDescent implements spec section 4.E: a memory-budgeted top-down
// descent used when N × sizeof(BlockInfoEntry) exceeds the configured
// maintenance memory budget. It purges leaf entries only and never
// reclaims pages — weaker space reclamation in exchange for bounded
// auxiliary memory. Grounded on the source's gistbulkdeletelogical, a
// simple stack rather than the physical/rescan pair.
func FallbackDescent(ctx context.Context, pg *pager.Pager, pred Predicate, stats *Stats) error {
	stack := []stackFrame{{blkno: page.Root, parentNSN: 0}}

	for len(stack) > 0 {
		frame := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		next, err := fallbackVisitPage(pg, frame, pred, stats)
		if err != nil {
			return err
		}
		stack = append(stack, next...)

		if err := pager.Yield(ctx); err != nil {
			return wrap(KindTransient, "FallbackDescent", err)
		}
	}
	return nil
}

func fallbackVisitPage(pg *pager.Pager, frame stackFrame, pred Predicate, stats *Stats) ([]stackFrame, error) {
	buf, err := pg.ReadPage(frame.blkno, pager.Normal)
	if err != nil {
		return nil, wrap(KindIO, "ReadPage", err)
	}
	pg.PinShare(frame.blkno)
	mode := pager.Share
	released := false
	release := func() {
		if !released {
			pg.Unlock(frame.blkno, mode)
			pg.Release(frame.blkno)
			released = true
		}
	}
	defer release()

	if err := pager.Checkpage(buf); err != nil {
		return nil, wrap(KindIntegrity, "Checkpage", err)
	}

	gp := page.Wrap(buf)
	var pushed []stackFrame

	if gp.IsLeaf() {
		pg.Unlock(frame.blkno, mode)
		pg.PinExclusive(frame.blkno)
		mode = pager.Exclusive

		deadIdx, survivors := sweepPredicate(gp, pred)
		stats.NumIndexTuples += survivors
		stats.TuplesRemoved += len(deadIdx)
		if len(deadIdx) > 0 {
			adjusted := adjustedDeleteIndices(deadIdx)
			if err := gp.DeleteAt(adjusted); err != nil {
				return nil, wrap(KindIntegrity, "DeleteAt", err)
			}
			if _, err := emitUpdate(pg, frame.blkno, buf); err != nil {
				return nil, err
			}
		}
	} else {
		currentNSN := gp.NSN()
		for _, dl := range gp.AllDownlinks() {
			pushed = append(pushed, stackFrame{blkno: dl.Child, parentNSN: currentNSN})
		}
	}

	if rl := gp.RightLink(); rl != page.Invalid && gp.NeedsRightSiblingVisit(frame.parentNSN) {
		pushed = append(pushed, stackFrame{blkno: rl, parentNSN: frame.parentNSN})
	}

	return pushed, nil
}
