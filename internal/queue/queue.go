// Package queue holds captured images awaiting dispatch. The queue is an
// ordered, user-mutable collection with stable item identities: items live in
// an arena keyed by id while a separate order slice carries the user-visible
// ordering, so reordering never invalidates a dispatched item's back-reference.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// ErrInvalidOrder is returned by Reorder when the proposed id set does not
// match current queue membership exactly.
var ErrInvalidOrder = errors.New("queue: reorder id set does not match membership")

// Item is one captured image waiting for (or undergoing) analysis.
type Item struct {
	ID         string
	Raw        []byte
	Note       string
	CapturedAt time.Time

	fingerprint uint64
	dispatched  bool
	abandoned   bool
}

// Observer is notified with the new ordering after every queue mutation.
// It runs under the queue lock and must not call back into the queue.
type Observer func(orderedIDs []string)

// Queue is safe for concurrent use; user-initiated calls and orchestrator
// calls serialize on one mutex.
type Queue struct {
	mu       sync.Mutex
	items    map[string]*Item
	order    []string
	byHash   map[uint64]string
	observer Observer
}

func New() *Queue {
	return &Queue{
		items:  make(map[string]*Item),
		byHash: make(map[uint64]string),
	}
}

// SetObserver registers the presentation callback. Pass nil to detach.
func (q *Queue) SetObserver(fn Observer) {
	q.mu.Lock()
	q.observer = fn
	q.mu.Unlock()
}

// Enqueue appends a capture at the tail and returns its assigned id. If an
// item with the same content fingerprint already exists, no new item is
// created and the existing id is returned with existing=true.
func (q *Queue) Enqueue(raw []byte, note string, capturedAt time.Time) (id string, existing bool) {
	h := xxhash.Sum64(raw)

	q.mu.Lock()
	if prev, ok := q.byHash[h]; ok {
		q.mu.Unlock()
		return prev, true
	}
	item := &Item{
		ID:          uuid.NewString(),
		Raw:         raw,
		Note:        note,
		CapturedAt:  capturedAt,
		fingerprint: h,
	}
	q.items[item.ID] = item
	q.order = append(q.order, item.ID)
	q.byHash[h] = item.ID
	q.notifyLocked()
	q.mu.Unlock()
	return item.ID, false
}

// Reorder atomically replaces the queue ordering. The id set must equal the
// current membership or nothing changes and ErrInvalidOrder is returned.
func (q *Queue) Reorder(ids []string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(ids) != len(q.order) {
		return ErrInvalidOrder
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := q.items[id]; !ok || seen[id] {
			return ErrInvalidOrder
		}
		seen[id] = true
	}
	q.order = append(q.order[:0], ids...)
	q.notifyLocked()
	return nil
}

// Remove deletes the given items. Items already dispatched cannot be deleted
// out from under the orchestrator; they are marked abandoned instead and
// their eventual result is discarded.
func (q *Queue) Remove(ids ...string) {
	q.mu.Lock()
	changed := false
	for _, id := range ids {
		item, ok := q.items[id]
		if !ok {
			continue
		}
		if item.dispatched {
			item.abandoned = true
			continue
		}
		q.deleteLocked(item)
		changed = true
	}
	if changed {
		q.notifyLocked()
	}
	q.mu.Unlock()
}

// ClaimNext returns the first item in queue order that has not been
// dispatched yet and marks it dispatched. ok is false when nothing is
// dispatchable.
func (q *Queue) ClaimNext() (item *Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		it := q.items[id]
		if !it.dispatched {
			it.dispatched = true
			return it, true
		}
	}
	return nil, false
}

// Abandoned reports whether the item was removed by the user after dispatch.
// Unknown ids count as abandoned so a stale reference can never resurface.
func (q *Queue) Abandoned(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.items[id]
	return !ok || item.abandoned
}

// Release destroys an item once its terminal result has been delivered (or
// suppressed by abandonment). The content fingerprint is freed with it.
func (q *Queue) Release(id string) {
	q.mu.Lock()
	if item, ok := q.items[id]; ok {
		q.deleteLocked(item)
		q.notifyLocked()
	}
	q.mu.Unlock()
}

// Len reports current membership, dispatched items included.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the current ordering.
func (q *Queue) Snapshot() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.order))
	copy(out, q.order)
	return out
}

func (q *Queue) deleteLocked(item *Item) {
	delete(q.items, item.ID)
	delete(q.byHash, item.fingerprint)
	for i, id := range q.order {
		if id == item.ID {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
}

func (q *Queue) notifyLocked() {
	if q.observer == nil {
		return
	}
	out := make([]string, len(q.order))
	copy(out, q.order)
	q.observer(out)
}
