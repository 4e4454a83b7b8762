package gistvacuum

import "github.com/SimonWaldherr/gistvacuum/page"

// WorkItem is one RescanQueue entry: either "rescan this page" (IsParent
// false) or "rescan the parent of this page" (IsParent true) — the parent
// id is resolved at dequeue time because the child's parent is more stable
// at enqueue time than the child id itself (spec section 3).
type WorkItem struct {
	Blkno    page.ID
	IsParent bool
}

// queueNode is one link of the intrusive singly-linked FIFO, grounded on
// the source's ad-hoc GistBDSItem linked list (original_source gistvacuum.c)
// but owned end-to-end here instead of manually spliced.
type queueNode struct {
	item WorkItem
	next *queueNode
}

// RescanQueue is an owned FIFO of pending work items with O(1) enqueue at
// the tail and O(1) dequeue at the head. Enqueue may happen concurrently
// with consumption, since the rescan pass enqueues grandparent work while
// draining the same queue (spec section 4.B: "the queue grows").
type RescanQueue struct {
	head *queueNode
	tail *queueNode
	n    int
}

// NewRescanQueue returns an empty queue.
func NewRescanQueue() *RescanQueue { return &RescanQueue{} }

// Enqueue appends an item to the tail.
func (q *RescanQueue) Enqueue(item WorkItem) {
	node := &queueNode{item: item}
	if q.tail == nil {
		q.head, q.tail = node, node
	} else {
		q.tail.next = node
		q.tail = node
	}
	q.n++
}

// Dequeue removes and returns the item at the head. ok is false if the
// queue is empty.
func (q *RescanQueue) Dequeue() (WorkItem, bool) {
	if q.head == nil {
		return WorkItem{}, false
	}
	node := q.head
	q.head = node.next
	if q.head == nil {
		q.tail = nil
	}
	q.n--
	return node.item, true
}

// Len returns the number of items currently queued.
func (q *RescanQueue) Len() int { return q.n }

// Empty reports whether the queue has no pending items.
func (q *RescanQueue) Empty() bool { return q.head == nil }
