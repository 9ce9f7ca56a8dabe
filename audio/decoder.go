package audio

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
)

// frameBuffer is how many encoded frames may queue ahead of the sink, about
// two seconds of audio.
const frameBuffer = 100

// Decoder opens resolved tracks through ffmpeg.
type Decoder struct {
	bitrate int
}

func NewDecoder(cfg *sys.Config) *Decoder {
	return &Decoder{bitrate: cfg.Bitrate}
}

// Open returns immediately; the input is opened and transcoded on a
// background goroutine so a cancelled ctx never waits on ffmpeg I/O.
func (d *Decoder) Open(ctx context.Context, track *proc.ResolvedTrack) (proc.FrameSource, error) {
	if track == nil || track.StreamURL == "" {
		return nil, errors.New("track has no stream")
	}
	url := track.StreamURL
	bitrate := d.bitrate

	return startStream(ctx, func(ctx context.Context, emit func([]byte) bool) error {
		t := newTranscoder(bitrate)
		defer t.close()

		if err := t.openInput(url); err != nil {
			return err
		}
		if err := t.setupDecoder(); err != nil {
			return err
		}
		if err := t.setupEncoder(); err != nil {
			return err
		}
		return t.run(ctx, emit)
	}), nil
}

// stream turns a push-style producer into a pull-style proc.FrameSource.
type stream struct {
	ctx    context.Context
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}

	once sync.Once
	err  error
}

func startStream(parent context.Context, produce func(ctx context.Context, emit func([]byte) bool) error) *stream {
	ctx, cancel := context.WithCancel(parent)
	s := &stream{
		ctx:    ctx,
		cancel: cancel,
		frames: make(chan []byte, frameBuffer),
		done:   make(chan struct{}),
	}

	sys.SafeGo(func() {
		defer close(s.done)
		err := produce(ctx, s.emit)
		if err != nil && ctx.Err() == nil {
			s.err = err
		}
	})
	return s
}

func (s *stream) emit(frame []byte) bool {
	select {
	case s.frames <- frame:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// ReadFrame returns queued frames first, then the producer's error or io.EOF.
func (s *stream) ReadFrame() ([]byte, error) {
	select {
	case f := <-s.frames:
		return f, nil
	case <-s.ctx.Done():
		return nil, s.ctx.Err()
	case <-s.done:
	}

	select {
	case f := <-s.frames:
		return f, nil
	default:
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, io.EOF
}

// Close stops the producer without waiting for it.
func (s *stream) Close() error {
	s.once.Do(s.cancel)
	return nil
}
