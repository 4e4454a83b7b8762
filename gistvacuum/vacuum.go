package gistvacuum

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// Stats is the aggregated statistics record spec section 6 names: output of
// BulkDelete. EstimatedCount is always false — this core always performs an
// exact count, never a sampled estimate.
type Stats struct {
	NumIndexTuples int
	TuplesRemoved  int
	PagesDeleted   int
	EstimatedCount bool
}

// VacuumInfo bundles the inputs spec section 6's "BulkDelete entry" names
// under "vacuum info": the buffer-access strategy hint and the maintenance
// memory budget that decides between the two-pass algorithm and the
// fallback descent. TxID stamps prune_xid on pages the rescan pass deletes.
type VacuumInfo struct {
	Strategy        pager.Strategy
	MemoryBudgetKiB int64
	TxID            page.TxID
}

// BulkDelete is the core entry point (spec section 6). Given a predicate
// identifying dead heap tuples, it purges leaf entries, reclaims empty
// pages, and removes their downlinks, returning an aggregated stats
// record. It takes no prior stats record: the returned totals cover this
// invocation only and are not added to any earlier run's figures.
func BulkDelete(ctx context.Context, pg *pager.Pager, info VacuumInfo, pred Predicate) (*Stats, error) {
	invocationID := uuid.New()
	n := pg.PageCount()
	stats := &Stats{}

	if n == 0 {
		log.Printf("gistvacuum[%s]: empty index, nothing to do", invocationID)
		return stats, nil
	}

	memNeeded := MemoryNeeded(n)
	budgetBytes := info.MemoryBudgetKiB * 1024

	if budgetBytes > 0 && memNeeded > budgetBytes {
		log.Printf("gistvacuum[%s]: memory budget %dKiB exceeded by estimate %d bytes for %d pages, using fallback descent",
			invocationID, info.MemoryBudgetKiB, memNeeded, n)
		if err := FallbackDescent(ctx, pg, pred, stats); err != nil {
			return nil, err
		}
		return stats, nil
	}

	bim := NewBlockInfoMap(int(n))
	q := NewRescanQueue()
	// Seed the queue with the root before the physical pass: the source's
	// gistbulkdelete does this (rescanstack starts as {GIST_ROOT_BLKNO,
	// isParent:false}) so a root that is itself a leaf with followRight set
	// still gets a rescan-pass visit even though nothing in the physical
	// pass would otherwise enqueue it (see SPEC_FULL.md's supplemented
	// features section).
	q.Enqueue(WorkItem{Blkno: page.Root, IsParent: false})

	if err := PhysicalPass(ctx, pg, bim, q, n, pred, info.Strategy, stats); err != nil {
		return nil, err
	}
	if err := RescanPass(ctx, pg, bim, q, pred, info.TxID, stats); err != nil {
		return nil, err
	}

	log.Printf("gistvacuum[%s]: tuples_removed=%d num_index_tuples=%d pages_deleted=%d",
		invocationID, stats.TuplesRemoved, stats.NumIndexTuples, stats.PagesDeleted)

	return stats, nil
}
