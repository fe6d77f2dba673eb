package history

import "container/heap"

// MaxQueueSize bounds EntryPriorityQueue. Pushes past it are dropped.
const MaxQueueSize = 10000

type queueItem struct {
	score int64
	seq   int
	entry *Entry
}

type entryHeap []queueItem

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].score != h[j].score {
		return h[i].score > h[j].score
	}
	return h[i].seq < h[j].seq
}

func (h entryHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *entryHeap) Push(x any) { *h = append(*h, x.(queueItem)) }

func (h *entryHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = queueItem{}
	*h = old[:n-1]
	return item
}

// EntryPriorityQueue pops the highest GetScore first. A (key, value) pair is
// queued at most once; equal scores pop in push order.
type EntryPriorityQueue struct {
	items entryHeap
	seen  map[uint32]struct{}
	seq   int
}

func NewEntryPriorityQueue() *EntryPriorityQueue {
	return &EntryPriorityQueue{seen: make(map[uint32]struct{})}
}

// NewEntry returns a scratch entry that belongs to no store.
func (q *EntryPriorityQueue) NewEntry() *Entry {
	return &Entry{}
}

// Push queues e and reports whether it was accepted.
func (q *EntryPriorityQueue) Push(e *Entry) bool {
	if e == nil || len(q.items) >= MaxQueueSize {
		return false
	}
	fp := EntryFingerprint(e)
	if _, ok := q.seen[fp]; ok {
		return false
	}
	q.seen[fp] = struct{}{}
	heap.Push(&q.items, queueItem{score: GetScore(e), seq: q.seq, entry: e})
	q.seq++
	return true
}

// Pop removes the best entry, or returns nil when empty.
func (q *EntryPriorityQueue) Pop() *Entry {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(queueItem).entry
}

func (q *EntryPriorityQueue) Size() int {
	return len(q.items)
}
