package gistvacuum

import "github.com/SimonWaldherr/gistvacuum/page"

// Predicate reports whether the heap tuple a leaf entry points to is dead
// and should be removed. It must be pure: it may read caller state but may
// not mutate the index, and is invoked once per leaf tuple per pass (spec
// section 6).
type Predicate func(tid page.HeapTID) bool
