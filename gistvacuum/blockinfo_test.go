package gistvacuum

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimonWaldherr/gistvacuum/page"
)

func TestBlockInfoMapGetParentRootIsImplicit(t *testing.T) {
	bim := NewBlockInfoMap(4)
	parent, err := bim.GetParent(page.Root)
	require.NoError(t, err)
	assert.Equal(t, page.Invalid, parent)
}

func TestBlockInfoMapGetParentMissingFails(t *testing.T) {
	bim := NewBlockInfoMap(4)
	_, err := bim.GetParent(page.ID(7))
	require.Error(t, err)
	kind, ok := Kind(err)
	assert.True(t, ok)
	assert.Equal(t, KindIntegrity, kind)
}

func TestBlockInfoMapGetLeftLinkDistinguishesUnrecordedFromRoot(t *testing.T) {
	bim := NewBlockInfoMap(4)

	// Recording a parent for page 5 creates an entry for it, but never
	// calls RecordLeftLink — GetLeftLink must still report Invalid, not
	// page.Root's id (0), even though that's the zero value of page.ID.
	bim.RecordParent(page.ID(5), page.Root)
	assert.Equal(t, page.Invalid, bim.GetLeftLink(page.ID(5)))

	bim.RecordLeftLink(page.ID(5), page.Root)
	assert.Equal(t, page.Root, bim.GetLeftLink(page.ID(5)))
}

func TestBlockInfoMapMarkToDeleteStates(t *testing.T) {
	bim := NewBlockInfoMap(4)
	blk := page.ID(3)

	assert.False(t, bim.GetToDelete(blk))
	assert.False(t, bim.IsProcessed(blk))

	bim.MarkToDelete(blk, false)
	assert.True(t, bim.GetToDelete(blk))
	assert.False(t, bim.IsProcessed(blk))

	bim.MarkToDelete(blk, true)
	assert.True(t, bim.IsProcessed(blk))
}
