package proc

import (
	"context"
	"sync"

	"github.com/leeineian/siren/sys"
)

type CacheState int

const (
	CacheEmpty CacheState = iota
	CacheResolving
	CacheReady
	CacheFailed
)

func (s CacheState) String() string {
	switch s {
	case CacheResolving:
		return "resolving"
	case CacheReady:
		return "ready"
	case CacheFailed:
		return "failed"
	default:
		return "empty"
	}
}

type resolveTask struct {
	cancel context.CancelFunc
}

// LookaheadCache holds at most one resolution: the track that plays next.
// Every entry is tagged with the generation it was primed under, and only a
// matching Take may consume it.
type LookaheadCache struct {
	resolver Resolver
	parent   context.Context

	mu         sync.Mutex
	generation uint64
	state      CacheState
	ref        TrackRef
	track      *ResolvedTrack
	err        error
	task       *resolveTask
	closed     bool

	// changed is closed and replaced on every transition.
	changed chan struct{}
}

func NewLookaheadCache(ctx context.Context, resolver Resolver) *LookaheadCache {
	return &LookaheadCache{
		resolver: resolver,
		parent:   ctx,
		changed:  make(chan struct{}),
	}
}

func (c *LookaheadCache) signalLocked() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *LookaheadCache) resetLocked() {
	if c.task != nil {
		c.task.cancel()
		c.task = nil
	}
	c.state = CacheEmpty
	c.ref = TrackRef{}
	c.track = nil
	c.err = nil
}

// Prime starts resolving ref in the background. It returns false without
// doing anything when gen is stale or ref is already cached at gen.
func (c *LookaheadCache) Prime(ref TrackRef, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || gen != c.generation {
		return false
	}
	if c.state != CacheEmpty && c.ref.Seq == ref.Seq {
		return false
	}

	c.resetLocked()
	ctx, cancel := context.WithCancel(c.parent)
	task := &resolveTask{cancel: cancel}
	c.task = task
	c.state = CacheResolving
	c.ref = ref
	c.signalLocked()

	sys.LogVoiceDebug(sys.MsgVoiceResolveStarted, ref.URL, gen)
	go c.resolve(ctx, task, ref, gen)
	return true
}

func (c *LookaheadCache) resolve(ctx context.Context, task *resolveTask, ref TrackRef, gen uint64) {
	defer task.cancel()
	track, err := c.resolver.Resolve(ctx, ref)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.task != task || c.generation != gen {
		sys.LogVoiceDebug(sys.MsgVoiceResolveDiscarded, ref.URL, gen)
		return
	}
	c.task = nil
	if err != nil {
		c.state = CacheFailed
		c.err = NewResolutionError(KindUnknown, ref, err)
	} else {
		track.Ref = ref
		track.Generation = gen
		c.state = CacheReady
		c.track = &track
	}
	c.signalLocked()
}

// Take hands off the entry tagged gen, blocking until it is Ready or
// Failed. It returns ErrInvalidated once the generation moves past gen.
func (c *LookaheadCache) Take(ctx context.Context, gen uint64) (*ResolvedTrack, error) {
	for {
		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			return nil, ErrInvalidated
		}
		if c.closed {
			c.mu.Unlock()
			return nil, ErrRoomClosed
		}

		switch c.state {
		case CacheReady:
			track := c.track
			c.resetLocked()
			c.signalLocked()
			c.mu.Unlock()
			return track, nil
		case CacheFailed:
			err := c.err
			c.resetLocked()
			c.signalLocked()
			c.mu.Unlock()
			return nil, err
		}

		changed := c.changed
		c.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Invalidate drops any cached or in-flight result and bumps the generation.
func (c *LookaheadCache) Invalidate() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	c.generation++
	c.signalLocked()
	return c.generation
}

func (c *LookaheadCache) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// Holds reports whether the cache has an entry for the ref with this Seq.
func (c *LookaheadCache) Holds(seq uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != CacheEmpty && c.ref.Seq == seq
}

func (c *LookaheadCache) State() CacheState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close invalidates the cache and refuses further priming.
func (c *LookaheadCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.resetLocked()
	c.generation++
	c.signalLocked()
}
