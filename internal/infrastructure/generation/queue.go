package generation

// Priority orders pending generation tasks. Interactive waiters always
// dequeue before predictive preloads, which dequeue before bulk warming.
type Priority int

const (
	PriorityWarming Priority = iota
	PriorityPredictive
	PriorityInteractive
)

func (p Priority) String() string {
	switch p {
	case PriorityInteractive:
		return "interactive"
	case PriorityPredictive:
		return "predictive"
	default:
		return "warming"
	}
}

// taskHeap is a max-heap over priority with FIFO order inside one priority
// band. Used through container/heap.
type taskHeap []*Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h taskHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *taskHeap) Push(x any) {
	t := x.(*Task)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
