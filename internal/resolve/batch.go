package resolve

// pendingBatch collects ids of moved images until their rows are deleted.
type pendingBatch struct {
	ids       []int64
	threshold int
}

func newPendingBatch(threshold int) *pendingBatch {
	return &pendingBatch{threshold: threshold, ids: make([]int64, 0, threshold+1)}
}

// add queues id and reports whether the batch is now over its threshold.
func (b *pendingBatch) add(id int64) bool {
	b.ids = append(b.ids, id)
	return len(b.ids) > b.threshold
}

func (b *pendingBatch) len() int {
	return len(b.ids)
}

// drain returns the queued ids and empties the batch.
func (b *pendingBatch) drain() []int64 {
	ids := b.ids
	b.ids = make([]int64, 0, b.threshold+1)
	return ids
}
