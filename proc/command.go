package proc

import (
	"context"
	"errors"
	"time"

	"github.com/leeineian/siren/sys"
)

type commandKind int

const (
	cmdEnqueue commandKind = iota
	cmdSkip
	cmdPause
	cmdResume
	cmdShuffle
	cmdLoop
	cmdClear
	cmdRemove
	cmdStop
)

func (k commandKind) String() string {
	return [...]string{"enqueue", "skip", "pause", "resume", "shuffle", "loop", "clear", "remove", "stop"}[k]
}

type command struct {
	kind  commandKind
	refs  []TrackRef
	index int
	reply chan result
}

type result struct {
	ref TrackRef
	n   int
	on  bool
	err error
}

// group is a run of commands applied as one. For pause/resume only the last
// command counts; for shuffle/loop toggles only the parity does.
type group struct {
	kind commandKind
	cmds []*command
}

func toggleKind(k commandKind) bool { return k == cmdShuffle || k == cmdLoop }

func pauseKind(k commandKind) bool { return k == cmdPause || k == cmdResume }

// coalesce folds a drained burst into groups, preserving submission order.
func coalesce(batch []*command) []group {
	var out []group
	for _, c := range batch {
		if n := len(out); n > 0 {
			last := &out[n-1]
			switch {
			case pauseKind(c.kind) && pauseKind(last.kind):
				last.kind = c.kind
				last.cmds = append(last.cmds, c)
				continue
			case toggleKind(c.kind) && c.kind == last.kind:
				last.cmds = append(last.cmds, c)
				continue
			}
		}
		out = append(out, group{kind: c.kind, cmds: []*command{c}})
	}
	return out
}

// --- Submission ---

func (r *Room) submit(ctx context.Context, c *command) result {
	c.reply = make(chan result, 1)
	if r.Closed() {
		return result{err: ErrRoomClosed}
	}

	select {
	case r.cmds <- c:
	case <-r.ctx.Done():
		return result{err: ErrRoomClosed}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}

	select {
	case res := <-c.reply:
		return res
	case <-r.done:
		select {
		case res := <-c.reply:
			return res
		default:
			return result{err: ErrRoomClosed}
		}
	case <-ctx.Done():
		return result{err: ctx.Err()}
	}
}

// Enqueue appends refs and returns the 1-based queue position of the first.
func (r *Room) Enqueue(ctx context.Context, refs ...TrackRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	res := r.submit(ctx, &command{kind: cmdEnqueue, refs: refs})
	return res.n, res.err
}

// Skip discards the current track, or the next one when between tracks.
func (r *Room) Skip(ctx context.Context) (TrackRef, error) {
	res := r.submit(ctx, &command{kind: cmdSkip})
	return res.ref, res.err
}

func (r *Room) Pause(ctx context.Context) error {
	return r.submit(ctx, &command{kind: cmdPause}).err
}

func (r *Room) Resume(ctx context.Context) error {
	return r.submit(ctx, &command{kind: cmdResume}).err
}

// ToggleShuffle returns the shuffle mode after the toggle.
func (r *Room) ToggleShuffle(ctx context.Context) (bool, error) {
	res := r.submit(ctx, &command{kind: cmdShuffle})
	return res.on, res.err
}

// ToggleLoop returns the loop mode after the toggle.
func (r *Room) ToggleLoop(ctx context.Context) (bool, error) {
	res := r.submit(ctx, &command{kind: cmdLoop})
	return res.on, res.err
}

// Clear empties the pending queue and returns how many refs were dropped.
func (r *Room) Clear(ctx context.Context) (int, error) {
	res := r.submit(ctx, &command{kind: cmdClear})
	return res.n, res.err
}

// Remove drops the pending ref at a zero-based index.
func (r *Room) Remove(ctx context.Context, index int) (TrackRef, error) {
	res := r.submit(ctx, &command{kind: cmdRemove, index: index})
	return res.ref, res.err
}

// Stop tears the room down and waits for its goroutines, bounded by
// TeardownTimeout. Stopping a closed room is a no-op.
func (r *Room) Stop(ctx context.Context) error {
	res := r.submit(ctx, &command{kind: cmdStop})
	if res.err != nil && !errors.Is(res.err, ErrRoomClosed) {
		return res.err
	}

	timer := time.NewTimer(TeardownTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return nil
	case <-timer.C:
		return errTeardownTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- Application ---

// run applies one group and replies to every command in it.
func (r *Room) run(g group) {
	res, stop := r.apply(g)
	for _, c := range g.cmds {
		c.reply <- res
	}
	if stop {
		r.close(nil)
	}
}

func (r *Room) apply(g group) (result, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return result{err: ErrRoomClosed}, false
	}

	switch g.kind {
	case cmdEnqueue:
		c := g.cmds[0]
		first := r.queue.Len() + 1
		now := time.Now()
		for _, ref := range c.refs {
			r.nextSeq++
			ref.Seq = r.nextSeq
			if ref.EnqueuedAt.IsZero() {
				ref.EnqueuedAt = now
			}
			r.queue.Enqueue(ref)
		}
		if r.queue.Shuffle() {
			r.invalidateNextLocked()
		}
		r.wakeLocked()
		r.refreshLookaheadLocked()
		return result{n: first}, false

	case cmdSkip:
		ref, ok := r.queue.RemoveCurrent()
		if ok {
			if r.playCancel != nil {
				r.playCancel()
			}
		} else if ref, ok = r.queue.PopNext(); ok {
			r.queue.RemoveCurrent()
		}
		if !ok {
			return result{err: ErrNothingPlaying}, false
		}
		if r.cache.Holds(ref.Seq) {
			r.cache.Invalidate()
			r.refreshLookaheadLocked()
		}
		return result{ref: ref}, false

	case cmdPause:
		if _, ok := r.queue.Current(); !ok {
			return result{err: ErrNothingPlaying}, false
		}
		if r.status == StatusPlaying {
			r.status = StatusPaused
			r.resume = make(chan struct{})
		}
		return result{on: true}, false

	case cmdResume:
		if _, ok := r.queue.Current(); !ok {
			return result{err: ErrNothingPlaying}, false
		}
		r.resumeLocked()
		return result{}, false

	case cmdShuffle:
		if len(g.cmds)%2 == 1 {
			r.queue.ToggleShuffle()
			r.invalidateNextLocked()
			r.refreshLookaheadLocked()
		}
		return result{on: r.queue.Shuffle()}, false

	case cmdLoop:
		if len(g.cmds)%2 == 1 {
			r.loop = !r.loop
		}
		return result{on: r.loop}, false

	case cmdClear:
		n := r.queue.Clear()
		r.invalidateNextLocked()
		return result{n: n}, false

	case cmdRemove:
		ref, err := r.queue.Remove(g.cmds[0].index)
		if err != nil {
			return result{err: err}, false
		}
		if r.cache.Holds(ref.Seq) {
			r.cache.Invalidate()
			r.refreshLookaheadLocked()
		}
		return result{ref: ref}, false

	case cmdStop:
		return result{}, true
	}
	return result{err: errors.New("unknown command " + g.kind.String())}, false
}

// invalidateNextLocked drops the lookahead unless it belongs to the current
// track, whose resolution does not depend on what comes next.
func (r *Room) invalidateNextLocked() {
	if cur, ok := r.queue.Current(); ok && r.cache.Holds(cur.Seq) {
		return
	}
	r.cache.Invalidate()
}

// refreshLookaheadLocked primes the next ref while a track is streaming.
func (r *Room) refreshLookaheadLocked() {
	if r.phase != PhaseStreaming {
		return
	}
	if next, ok := r.queue.PeekNext(); ok && r.cache.Prime(next, r.cache.Generation()) {
		sys.LogVoiceDebug(sys.MsgVoiceNextTrack, r.ID, next.URL)
	}
}

func (r *Room) wakeLocked() {
	close(r.wake)
	r.wake = make(chan struct{})
}

func (r *Room) resumeLocked() {
	if r.status == StatusPaused {
		r.status = StatusPlaying
		close(r.resume)
	}
}
