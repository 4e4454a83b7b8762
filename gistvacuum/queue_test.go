package gistvacuum

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SimonWaldherr/gistvacuum/page"
)

func TestRescanQueueFIFOOrder(t *testing.T) {
	q := NewRescanQueue()
	assert.True(t, q.Empty(), "expected new queue to be empty")

	q.Enqueue(WorkItem{Blkno: 1})
	q.Enqueue(WorkItem{Blkno: 2, IsParent: true})
	q.Enqueue(WorkItem{Blkno: 3})

	assert.Equal(t, 3, q.Len())

	want := []page.ID{1, 2, 3}
	for _, w := range want {
		item, ok := q.Dequeue()
		assert.True(t, ok, "expected an item for blkno %d", w)
		assert.Equal(t, w, item.Blkno)
	}

	assert.True(t, q.Empty(), "expected queue to be empty after draining")
	_, ok := q.Dequeue()
	assert.False(t, ok, "expected Dequeue on empty queue to report ok=false")
}

func TestRescanQueueEnqueueDuringDrain(t *testing.T) {
	q := NewRescanQueue()
	q.Enqueue(WorkItem{Blkno: 1})

	var seen []page.ID
	for !q.Empty() {
		item, _ := q.Dequeue()
		seen = append(seen, item.Blkno)
		if item.Blkno == 1 {
			q.Enqueue(WorkItem{Blkno: 2, IsParent: true})
		}
	}

	assert.Equal(t, []page.ID{1, 2}, seen)
}
