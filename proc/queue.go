package proc

import (
	"math/rand/v2"
	"time"
)

// TrackQueue holds pending refs and the current one. It is not safe for
// concurrent use; the room serializes every call.
type TrackQueue struct {
	pending []TrackRef
	current *TrackRef
	shuffle bool

	// pick pins the shuffled choice made by PeekNext so the lookahead and
	// the following PopNext agree. -1 when unpinned.
	pick int
	rng  *rand.Rand
}

func NewTrackQueue(rng *rand.Rand) *TrackQueue {
	if rng == nil {
		now := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(now, now>>17|1))
	}
	return &TrackQueue{pick: -1, rng: rng}
}

// Enqueue appends refs. Under shuffle the pinned pick is dropped so the new
// refs can be chosen next.
func (q *TrackQueue) Enqueue(refs ...TrackRef) {
	q.pending = append(q.pending, refs...)
	if q.shuffle && len(refs) > 0 {
		q.pick = -1
	}
}

func (q *TrackQueue) nextIndex() int {
	if !q.shuffle {
		return 0
	}
	if q.pick < 0 {
		q.pick = q.rng.IntN(len(q.pending))
	}
	return q.pick
}

// PopNext removes the next ref and makes it current.
func (q *TrackQueue) PopNext() (TrackRef, bool) {
	if len(q.pending) == 0 {
		return TrackRef{}, false
	}
	i := q.nextIndex()
	q.pick = -1

	ref := q.pending[i]
	q.pending = append(q.pending[:i], q.pending[i+1:]...)
	q.current = &ref
	return ref, true
}

// PeekNext reports what PopNext would return without removing it.
func (q *TrackQueue) PeekNext() (TrackRef, bool) {
	if len(q.pending) == 0 {
		return TrackRef{}, false
	}
	return q.pending[q.nextIndex()], true
}

// ToggleShuffle flips selection mode. Stored order is never changed.
func (q *TrackQueue) ToggleShuffle() bool {
	q.shuffle = !q.shuffle
	q.pick = -1
	return q.shuffle
}

// Clear drops every pending ref and leaves current alone.
func (q *TrackQueue) Clear() int {
	n := len(q.pending)
	q.pending = nil
	q.pick = -1
	return n
}

func (q *TrackQueue) RemoveCurrent() (TrackRef, bool) {
	if q.current == nil {
		return TrackRef{}, false
	}
	ref := *q.current
	q.current = nil
	return ref, true
}

// Remove deletes the pending ref at a zero-based index.
func (q *TrackQueue) Remove(index int) (TrackRef, error) {
	if index < 0 || index >= len(q.pending) {
		return TrackRef{}, ErrIndexOutOfRange
	}
	ref := q.pending[index]
	q.pending = append(q.pending[:index], q.pending[index+1:]...)

	switch {
	case q.pick == index:
		q.pick = -1
	case q.pick > index:
		q.pick--
	}
	return ref, nil
}

func (q *TrackQueue) Current() (TrackRef, bool) {
	if q.current == nil {
		return TrackRef{}, false
	}
	return *q.current, true
}

// Pending returns a copy of the pending refs in stored order.
func (q *TrackQueue) Pending() []TrackRef {
	out := make([]TrackRef, len(q.pending))
	copy(out, q.pending)
	return out
}

func (q *TrackQueue) Len() int { return len(q.pending) }

func (q *TrackQueue) Shuffle() bool { return q.shuffle }
