// Package cleanup implements VacuumCleanup, the external collaborator spec
// section 2 names as running "later" than BulkDelete: it scans pages and
// records free ones with the free-space map. It is explicitly outside the
// bulk-delete core's scope (spec Non-goals exclude "FSM maintenance
// algorithm") but still belongs in a complete repository, grounded on the
// teacher's reachability-scan GC (internal/storage/pager/gc.go) — the same
// "walk every allocated page, free what's unreachable/already deleted"
// shape, simplified to GiST's "deleted flag" instead of a B+Tree
// reachability walk.
package cleanup

import (
	"context"
	"fmt"
	"log"

	"github.com/SimonWaldherr/gistvacuum/page"
	"github.com/SimonWaldherr/gistvacuum/pager"
)

// Result summarizes one VacuumCleanup run.
type Result struct {
	TotalPages int
	FreedPages int
	Errors     []string
}

// VacuumCleanup scans every page in [Root, N) and frees the ones the bulk
// delete core left marked deleted, plus any page that was allocated but
// never initialized, returning them to the pager's free-list for reuse by
// future allocations. It must run only after a BulkDelete invocation has
// completed and checkpointed — this is the "FSM-update cleanup pass" spec
// section 1 calls an external collaborator out of bulk-delete's scope.
func VacuumCleanup(ctx context.Context, pg *pager.Pager) (*Result, error) {
	n := pg.PageCount()
	result := &Result{TotalPages: int(n)}

	for b := page.Root; b < n; b++ {
		if err := pager.Yield(ctx); err != nil {
			return result, fmt.Errorf("cleanup: %w", err)
		}
		if b == page.Root {
			continue // root is never freed, even when demoted to a leaf
		}

		buf, err := pg.ReadPage(b, pager.BulkScan)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("read page %d: %v", b, err))
			continue
		}
		pg.PinShare(b)

		gp := page.Wrap(buf)
		reclaim := page.IsNew(buf) || gp.IsDeleted()

		pg.Unlock(b, pager.Share)
		pg.Release(b)

		if reclaim {
			pg.FreePage(b)
			result.FreedPages++
		}
	}

	if result.FreedPages > 0 {
		if err := pg.Checkpoint(); err != nil {
			return result, fmt.Errorf("cleanup: checkpoint: %w", err)
		}
	}

	log.Printf("cleanup: scanned %d pages, freed %d", result.TotalPages, result.FreedPages)
	return result, nil
}
