// Package s3fifo implements the S3-FIFO cache eviction algorithm as an
// in-memory admission and eviction policy for the preview registries.
// See: https://www.pdl.cmu.edu/ftp/Storage/CMU-CS-24-149-juncheny.pdf
package s3fifo

import (
	"container/list"
	"errors"
)

// ErrQueueEmpty is returned when popping from an empty queue.
var ErrQueueEmpty = errors.New("s3fifo: queue is empty")

// Queue name constants.
const (
	QueueSmall = "small"
	QueueMain  = "main"
)

// fifo is an insertion-ordered queue of keys with O(1) removal by key.
// Head is the newest entry, tail the oldest.
type fifo struct {
	order *list.List
	index map[string]*list.Element
}

func newFIFO() *fifo {
	return &fifo{order: list.New(), index: make(map[string]*list.Element)}
}

// PushHead inserts key at the head (newest position). A key already present is
// moved to the head.
func (q *fifo) PushHead(key string) {
	if el, ok := q.index[key]; ok {
		q.order.MoveToFront(el)
		return
	}
	q.index[key] = q.order.PushFront(key)
}

// PopTail removes and returns the oldest key.
func (q *fifo) PopTail() (string, error) {
	el := q.order.Back()
	if el == nil {
		return "", ErrQueueEmpty
	}
	key := q.order.Remove(el).(string)
	delete(q.index, key)
	return key, nil
}

// Remove deletes key, reporting whether it was present.
func (q *fifo) Remove(key string) bool {
	el, ok := q.index[key]
	if !ok {
		return false
	}
	q.order.Remove(el)
	delete(q.index, key)
	return true
}

// Contains reports whether key is queued.
func (q *fifo) Contains(key string) bool {
	_, ok := q.index[key]
	return ok
}

// Len returns the number of queued keys.
func (q *fifo) Len() int {
	return q.order.Len()
}

// TrimToMaxSize drops the oldest keys until at most maxEntries remain.
func (q *fifo) TrimToMaxSize(maxEntries int) {
	for q.order.Len() > maxEntries {
		if _, err := q.PopTail(); err != nil {
			return
		}
	}
}
