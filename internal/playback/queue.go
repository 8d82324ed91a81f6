package playback

import "container/heap"

// cmdQueue is a min-heap on fire time. Insertion order breaks ties, which
// keeps onset ahead of offset and light-on ahead of light-off for a note.
type cmdQueue []Command

func (q cmdQueue) Len() int { return len(q) }

func (q cmdQueue) Less(i, j int) bool {
	if q[i].At.Equal(q[j].At) {
		return q[i].seq < q[j].seq
	}
	return q[i].At.Before(q[j].At)
}

func (q cmdQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *cmdQueue) Push(x any) { *q = append(*q, x.(Command)) }

func (q *cmdQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

func (q *cmdQueue) push(c Command) { heap.Push(q, c) }

func (q *cmdQueue) pop() Command { return heap.Pop(q).(Command) }

func (q cmdQueue) peek() (Command, bool) {
	if len(q) == 0 {
		return Command{}, false
	}
	return q[0], true
}
