package proc

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seeded(seed uint64) *rand.Rand { return rand.New(rand.NewPCG(seed, seed+1)) }

func refs(urls ...string) []TrackRef {
	out := make([]TrackRef, len(urls))
	for i, u := range urls {
		out[i] = TrackRef{URL: u, Seq: uint64(i + 1)}
	}
	return out
}

func drain(q *TrackQueue) []string {
	var out []string
	for {
		r, ok := q.PopNext()
		if !ok {
			return out
		}
		out = append(out, r.URL)
	}
}

func TestTrackQueue_PopNextInsertionOrder(t *testing.T) {
	tests := []struct {
		name string
		urls []string
	}{
		{"empty", nil},
		{"single", []string{"a"}},
		{"several", []string{"a", "b", "c", "d"}},
		{"duplicates", []string{"a", "a", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewTrackQueue(seeded(1))
			q.Enqueue(refs(tt.urls...)...)
			assert.Equal(t, tt.urls, drain(q))
		})
	}
}

func TestTrackQueue_ShuffleReturnsEveryRefOnce(t *testing.T) {
	urls := []string{"a", "b", "c", "d", "e", "f", "g", "h"}

	for seed := uint64(0); seed < 20; seed++ {
		q := NewTrackQueue(seeded(seed))
		q.Enqueue(refs(urls...)...)
		require.True(t, q.ToggleShuffle())

		got := drain(q)
		assert.ElementsMatch(t, urls, got, "seed %d", seed)
	}
}

func TestTrackQueue_ShuffleOffRestoresOrder(t *testing.T) {
	q := NewTrackQueue(seeded(3))
	q.Enqueue(refs("a", "b", "c", "d")...)

	q.ToggleShuffle()
	first, ok := q.PopNext()
	require.True(t, ok)
	assert.False(t, q.ToggleShuffle())

	var want []string
	for _, u := range []string{"a", "b", "c", "d"} {
		if u != first.URL {
			want = append(want, u)
		}
	}
	assert.Equal(t, want, drain(q))
}

func TestTrackQueue_PeekMatchesPopInShuffle(t *testing.T) {
	q := NewTrackQueue(seeded(7))
	q.Enqueue(refs("a", "b", "c", "d", "e")...)
	q.ToggleShuffle()

	for q.Len() > 0 {
		peek, ok := q.PeekNext()
		require.True(t, ok)
		again, _ := q.PeekNext()
		assert.Equal(t, peek, again)

		pop, ok := q.PopNext()
		require.True(t, ok)
		assert.Equal(t, peek, pop)
	}
}

func TestTrackQueue_CurrentLifecycle(t *testing.T) {
	q := NewTrackQueue(nil)
	_, ok := q.Current()
	assert.False(t, ok)

	q.Enqueue(refs("a", "b")...)
	a, _ := q.PopNext()
	cur, ok := q.Current()
	require.True(t, ok)
	assert.Equal(t, a, cur)

	assert.Equal(t, 1, q.Clear())
	cur, ok = q.Current()
	assert.True(t, ok, "clear leaves current alone")
	assert.Equal(t, "a", cur.URL)

	removed, ok := q.RemoveCurrent()
	assert.True(t, ok)
	assert.Equal(t, "a", removed.URL)
	_, ok = q.RemoveCurrent()
	assert.False(t, ok)
}

func TestTrackQueue_Remove(t *testing.T) {
	q := NewTrackQueue(nil)
	q.Enqueue(refs("a", "b", "c")...)

	r, err := q.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "b", r.URL)

	_, err = q.Remove(5)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
	_, err = q.Remove(-1)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	assert.Equal(t, []string{"a", "c"}, drain(q))
}

func TestTrackQueue_RemoveKeepsPinnedPick(t *testing.T) {
	q := NewTrackQueue(seeded(11))
	q.Enqueue(refs("a", "b", "c", "d", "e")...)
	q.ToggleShuffle()

	peek, _ := q.PeekNext()
	for i, p := range q.Pending() {
		if p.Seq != peek.Seq {
			_, err := q.Remove(i)
			require.NoError(t, err)
			break
		}
	}

	pop, ok := q.PopNext()
	require.True(t, ok)
	assert.Equal(t, peek, pop)
}

func TestTrackQueue_EnqueueUnpinsShufflePick(t *testing.T) {
	late := 0
	for seed := uint64(0); seed < 50; seed++ {
		q := NewTrackQueue(seeded(seed))
		q.ToggleShuffle()
		q.Enqueue(refs("a", "b")...)
		_, ok := q.PeekNext()
		require.True(t, ok)

		q.Enqueue(TrackRef{URL: "c", Seq: 3})
		next, _ := q.PeekNext()
		got, _ := q.PopNext()
		assert.Equal(t, next, got)
		if got.URL == "c" {
			late++
		}
	}
	assert.Positive(t, late, "a ref enqueued after a peek was never picked")
}

func TestTrackQueue_EnqueueKeepsOrderedNext(t *testing.T) {
	q := NewTrackQueue(seeded(1))
	q.Enqueue(refs("a", "b")...)
	next, _ := q.PeekNext()
	q.Enqueue(TrackRef{URL: "c", Seq: 3})
	got, _ := q.PopNext()
	assert.Equal(t, next, got)
	assert.Equal(t, "a", got.URL)
}

func TestTrackQueue_PendingIsACopy(t *testing.T) {
	q := NewTrackQueue(nil)
	q.Enqueue(refs("a")...)
	p := q.Pending()
	p[0].URL = "changed"
	assert.Equal(t, "a", q.Pending()[0].URL)
}
