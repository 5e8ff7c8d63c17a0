package flusher

import "container/heap"

// timeoutHeap is the "min-heap of expirables" of §4.D "Timeouts", keyed
// by each entry's earliest active deadline. It lets the flusher find the
// next entry to expire in O(log n) without scanning the whole queue.
type timeoutHeap []*entry

func (h timeoutHeap) Len() int { return len(h) }

func (h timeoutHeap) Less(i, j int) bool {
	return h[i].deadline().Before(h[j].deadline())
}

func (h timeoutHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}

func (h *timeoutHeap) Push(x interface{}) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}

func (h *timeoutHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}

func (h *timeoutHeap) push(e *entry) { heap.Push(h, e) }

func (h *timeoutHeap) removeAt(i int) {
	heap.Remove(h, i)
}

func (h *timeoutHeap) peek() *entry {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}
