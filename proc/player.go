package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/leeineian/siren/sys"
)

// play is the room's player loop. It exits when the room context ends or a
// transport error tears the room down.
func (r *Room) play() {
	defer r.wg.Done()

	for {
		ref, gen, ok := r.awaitNext()
		if !ok {
			return
		}

		track, err := r.cache.Take(r.ctx, gen)
		if err != nil {
			switch {
			case r.ctx.Err() != nil, errors.Is(err, ErrRoomClosed):
				return
			case errors.Is(err, ErrInvalidated):
				continue
			}
			r.failTrack(ref, err)
			continue
		}
		if track.Ref.Seq != ref.Seq {
			continue
		}

		playCtx, ok := r.beginStreaming(ref, track)
		if !ok {
			continue
		}
		r.announce(track)

		for {
			err := r.stream(playCtx, track)
			if r.ctx.Err() != nil {
				return
			}

			var te *TransportError
			if errors.As(err, &te) {
				sys.LogError(sys.MsgVoiceTransportFailed, r.ID, te.Err)
				r.notifier.TransportFailed(r.ID, ref.TextChannelID, te)
				r.close(te)
				return
			}
			if err != nil && playCtx.Err() == nil {
				r.failTrack(ref, NewResolutionError(KindUnknown, ref, err))
			}
			if err != nil || !r.shouldLoop(ref) {
				break
			}
		}
		r.finish(ref)
	}
}

// awaitNext returns the ref to play and the generation to take it at,
// blocking in Idle while the queue is empty.
func (r *Room) awaitNext() (TrackRef, uint64, bool) {
	for {
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return TrackRef{}, 0, false
		}

		ref, ok := r.queue.Current()
		if !ok {
			ref, ok = r.queue.PopNext()
		}
		if ok {
			r.phase = PhasePriming
			gen := r.cache.Generation()
			r.cache.Prime(ref, gen)
			r.mu.Unlock()
			return ref, gen, true
		}

		r.phase = PhaseIdle
		wake := r.wake
		r.mu.Unlock()

		select {
		case <-wake:
		case <-r.ctx.Done():
			return TrackRef{}, 0, false
		}
	}
}

// beginStreaming marks ref as playing unless it was skipped while priming.
func (r *Room) beginStreaming(ref TrackRef, track *ResolvedTrack) (context.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false
	}
	if cur, ok := r.queue.Current(); !ok || cur.Seq != ref.Seq {
		return nil, false
	}

	playCtx, cancel := context.WithCancel(r.ctx)
	r.playCancel = cancel
	r.playing = track
	r.startedAt = time.Now()
	r.phase = PhaseStreaming
	r.refreshLookaheadLocked()
	return playCtx, true
}

func (r *Room) announce(track *ResolvedTrack) {
	sys.LogVoice(sys.MsgVoiceNowPlaying, r.ID, track.Metadata.Title, track.Ref.URL)
	r.notifier.NowPlaying(r.ID, track)

	if r.history != nil {
		if err := r.history.RecordPlay(r.ctx, r.ID, r.SessionID, track); err != nil {
			sys.LogWarn(sys.MsgVoiceHistoryFail, track.Ref.URL, err)
		}
	}
}

// stream copies frames from the decoder to the sink until EOF, skip or error.
// A nil return means the track finished.
func (r *Room) stream(ctx context.Context, track *ResolvedTrack) error {
	src, err := r.decoder.Open(ctx, track)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer src.Close()

	for {
		if err := r.waitResumed(ctx); err != nil {
			return err
		}

		frame, err := src.ReadFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read frame: %w", err)
		}

		if err := r.sink.WriteFrame(ctx, frame); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &TransportError{Err: err}
		}
	}
}

// waitResumed blocks while the room is paused.
func (r *Room) waitResumed(ctx context.Context) error {
	r.mu.Lock()
	gate := r.resume
	r.mu.Unlock()

	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) shouldLoop(ref TrackRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.queue.Current()
	return r.loop && !r.closed && ok && cur.Seq == ref.Seq
}

// finish clears ref as current if a skip has not already done so.
func (r *Room) finish(ref TrackRef) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.playCancel != nil {
		r.playCancel()
		r.playCancel = nil
	}
	r.playing = nil
	if cur, ok := r.queue.Current(); ok && cur.Seq == ref.Seq {
		r.queue.RemoveCurrent()
	}
	if !r.closed {
		r.phase = PhaseIdle
	}
}

// failTrack reports a failed track once and drops it so the loop advances.
func (r *Room) failTrack(ref TrackRef, err error) {
	r.mu.Lock()
	cur, ok := r.queue.Current()
	current := ok && cur.Seq == ref.Seq
	if current {
		r.queue.RemoveCurrent()
	}
	r.mu.Unlock()

	if !current {
		return
	}
	sys.LogWarn(sys.MsgVoiceTrackFailed, ref.URL, r.ID, err)
	r.notifier.TrackFailed(r.ID, ref, err)
}
