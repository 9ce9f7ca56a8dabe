package proc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoom_PlaysInEnqueueOrder(t *testing.T) {
	h := newHarness(t)
	h.decoder.length("a", 2)
	h.decoder.length("b", 2)
	room, sink := h.room(t)

	pos, err := room.Enqueue(context.Background(), ref("a"), ref("b"))
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	var got []string
	for range 4 {
		got = append(got, readFrame(t, sink))
	}
	assert.Equal(t, []string{"a", "a", "b", "b"}, got)

	assert.Eventually(t, func() bool {
		s := room.Snapshot()
		return s.Phase == PhaseIdle && s.Current == nil
	}, waitTimeout, 5*time.Millisecond)
}

func TestRoom_SkipStreamsNext(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"), ref("c"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	skipped, err := room.Skip(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", skipped.URL)

	waitForTrack(t, sink, "b", "a")

	s := room.Snapshot()
	require.NotNil(t, s.Current)
	assert.Equal(t, "b", s.Current.URL)
	require.Len(t, s.Pending, 1)
	assert.Equal(t, "c", s.Pending[0].URL)
}

func TestRoom_EachSkipAdvancesOnce(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"), ref("c"), ref("d"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	for range 2 {
		_, err := room.Skip(ctx)
		require.NoError(t, err)
	}
	waitForTrack(t, sink, "c", "a", "b")

	s := room.Snapshot()
	require.Len(t, s.Pending, 1)
	assert.Equal(t, "d", s.Pending[0].URL)
}

func TestRoom_SkipWithNothingPlaying(t *testing.T) {
	h := newHarness(t)
	room, _ := h.room(t)

	_, err := room.Skip(context.Background())
	assert.ErrorIs(t, err, ErrNothingPlaying)
}

func TestRoom_SkipWhileResolvingDropsResolution(t *testing.T) {
	h := newHarness(t)
	release := h.resolver.block("a")
	defer release()
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return h.resolver.count("a") == 1 }, waitTimeout, 5*time.Millisecond)

	_, err = room.Skip(ctx)
	require.NoError(t, err)
	release()

	waitForTrack(t, sink, "b")
	assert.NotContains(t, h.decoder.openedTracks(), "a")
}

func TestRoom_PauseBurstActsOnce(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, room.Pause(ctx))
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusPaused, room.Snapshot().Status)

	drainFrames(sink, 100*time.Millisecond)
	select {
	case <-sink.frames:
		t.Fatal("frames kept flowing while paused")
	case <-time.After(150 * time.Millisecond):
	}

	require.NoError(t, room.Resume(ctx))
	assert.Equal(t, StatusPlaying, room.Snapshot().Status)
	waitForTrack(t, sink, "a")

	s := room.Snapshot()
	require.NotNil(t, s.Playing)
	assert.Equal(t, "a", s.Playing.Ref.URL, "pause keeps the stream")
	assert.Equal(t, []string{"a"}, h.decoder.openedTracks())
}

func TestRoom_PauseWithNothingPlaying(t *testing.T) {
	h := newHarness(t)
	room, _ := h.room(t)

	assert.ErrorIs(t, room.Pause(context.Background()), ErrNothingPlaying)
	assert.ErrorIs(t, room.Resume(context.Background()), ErrNothingPlaying)
}

func TestRoom_ShuffleThenClearGoesIdle(t *testing.T) {
	h := newHarness(t)
	release := h.resolver.block("b")
	defer release()
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	on, err := room.ToggleShuffle(ctx)
	require.NoError(t, err)
	assert.True(t, on)
	n, err := room.Clear(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = room.Skip(ctx)
	require.NoError(t, err)
	release()

	assert.Eventually(t, func() bool {
		s := room.Snapshot()
		return s.Phase == PhaseIdle && s.Current == nil
	}, waitTimeout, 5*time.Millisecond)

	for _, f := range drainFrames(sink, 100*time.Millisecond) {
		assert.Equal(t, "a", f)
	}
	assert.Equal(t, []string{"a"}, h.decoder.openedTracks())
	assert.Equal(t, CacheEmpty, room.cache.State())
}

func TestRoom_ShuffleToggleParity(t *testing.T) {
	h := newHarness(t)
	room, _ := h.room(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := room.ToggleShuffle(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.False(t, room.Snapshot().Shuffle)

	on, err := room.ToggleShuffle(ctx)
	require.NoError(t, err)
	assert.True(t, on)
}

func TestRoom_ShuffledEnqueueRefreshesLookahead(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room, sink := h.room(t)

	_, err := room.Enqueue(ctx, ref("a"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	on, err := room.ToggleShuffle(ctx)
	require.NoError(t, err)
	require.True(t, on)
	_, err = room.Enqueue(ctx, ref("b"))
	require.NoError(t, err)
	before := room.Snapshot().Generation

	_, err = room.Enqueue(ctx, ref("c"))
	require.NoError(t, err)
	assert.Greater(t, room.Snapshot().Generation, before)

	_, err = room.ToggleShuffle(ctx)
	require.NoError(t, err)
	before = room.Snapshot().Generation
	_, err = room.Enqueue(ctx, ref("d"))
	require.NoError(t, err)
	assert.Equal(t, before, room.Snapshot().Generation)
}

func TestRoom_FailedTrackAdvances(t *testing.T) {
	h := newHarness(t)
	h.resolver.failWith("a", NewResolutionError(KindNotFound, ref("a"), errBoom))
	h.decoder.length("b", 2)
	room, sink := h.room(t)

	_, err := room.Enqueue(context.Background(), ref("a"), ref("b"))
	require.NoError(t, err)

	assert.Equal(t, "b", readFrame(t, sink))
	assert.Equal(t, "b", readFrame(t, sink))

	assert.Eventually(t, func() bool { return room.Snapshot().Phase == PhaseIdle }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"a"}, h.notifier.failures())
	assert.Equal(t, 1, h.resolver.count("a"), "failed resolutions are not retried")
}

func TestRoom_LookaheadFailureReportedOnce(t *testing.T) {
	h := newHarness(t)
	h.resolver.failWith("b", errBoom)
	h.decoder.length("a", 3)
	h.decoder.length("c", 1)
	room, sink := h.room(t)

	_, err := room.Enqueue(context.Background(), ref("a"), ref("b"), ref("c"))
	require.NoError(t, err)

	waitForTrack(t, sink, "c", "a")
	assert.Eventually(t, func() bool { return room.Snapshot().Phase == PhaseIdle }, waitTimeout, 5*time.Millisecond)
	assert.Equal(t, []string{"b"}, h.notifier.failures())
}

func TestRoom_LoopReplaysTrack(t *testing.T) {
	h := newHarness(t)
	h.decoder.length("a", 1)
	h.decoder.length("b", 1)
	room, sink := h.room(t)
	ctx := context.Background()

	on, err := room.ToggleLoop(ctx)
	require.NoError(t, err)
	assert.True(t, on)

	_, err = room.Enqueue(ctx, ref("a"), ref("b"))
	require.NoError(t, err)
	for range 3 {
		assert.Equal(t, "a", readFrame(t, sink))
	}

	on, err = room.ToggleLoop(ctx)
	require.NoError(t, err)
	assert.False(t, on)
	waitForTrack(t, sink, "b", "a")
	assert.Equal(t, 1, h.resolver.count("a"))
}

func TestRoom_RemovePending(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"), ref("c"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	removed, err := room.Remove(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, "b", removed.URL)

	_, err = room.Remove(ctx, 3)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)

	_, err = room.Skip(ctx)
	require.NoError(t, err)
	waitForTrack(t, sink, "c", "a")
}

func TestRoom_TransportErrorTearsDown(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"), ref("b"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	sink.breakWith(errBoom)
	drainFrames(sink, 20*time.Millisecond)

	select {
	case <-room.Done():
	case <-time.After(waitTimeout):
		t.Fatal("room did not tear down")
	}

	var te *TransportError
	assert.ErrorAs(t, room.Reason(), &te)
	assert.Equal(t, 1, h.notifier.transportFailures())
	assert.True(t, sink.isClosed())
	assert.Equal(t, 0, h.registry.Len())

	_, err = room.Enqueue(ctx, ref("c"))
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoom_SessionEndedActsAsStop(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)

	_, err := room.Enqueue(context.Background(), ref("a"))
	require.NoError(t, err)
	waitForTrack(t, sink, "a")

	sink.end()

	select {
	case <-room.Done():
	case <-time.After(waitTimeout):
		t.Fatal("room ignored the ended session")
	}
	assert.ErrorIs(t, room.Reason(), ErrSessionEnded)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, StatusStopped, room.Snapshot().Status)
}

func TestRoom_StopIdleRoom(t *testing.T) {
	h := newHarness(t)
	room, sink := h.room(t)
	ctx := context.Background()

	require.NoError(t, room.Stop(ctx))
	require.NoError(t, room.Stop(ctx), "stopping twice is harmless")
	assert.True(t, sink.isClosed())
	assert.Equal(t, PhaseStopped, room.Snapshot().Phase)

	_, err := room.ToggleShuffle(ctx)
	assert.ErrorIs(t, err, ErrRoomClosed)
}

func TestRoom_StopWhileResolving(t *testing.T) {
	h := newHarness(t)
	defer h.resolver.block("a")()
	room, _ := h.room(t)
	ctx := context.Background()

	_, err := room.Enqueue(ctx, ref("a"))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return h.resolver.count("a") == 1 }, waitTimeout, 5*time.Millisecond)

	start := time.Now()
	require.NoError(t, room.Stop(ctx))
	assert.Less(t, time.Since(start), TeardownTimeout)
}
