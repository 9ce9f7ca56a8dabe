package transport

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var (
	// OpusSilence is sent whenever no frame is ready so the connection
	// keeps its speaking state.
	OpusSilence = []byte{0xf8, 0xff, 0xfe}

	errSinkClosed = errors.New("voice sink closed")
)

const silenceAfter = 500 * time.Millisecond

// Sink hands frames to a single voice connection. WriteFrame blocks until
// the connection pulls the frame, which paces the player at 20ms per frame.
type Sink struct {
	frames chan []byte
	closed chan struct{}
	ended  chan struct{}

	closeOnce sync.Once
	endOnce   sync.Once

	idle    time.Duration
	release func(ctx context.Context)

	// statusMu orders status updates against release.
	statusMu  sync.Mutex
	setStatus func(status string)
}

func newSink(release func(ctx context.Context), setStatus func(status string)) *Sink {
	return &Sink{
		frames:    make(chan []byte),
		closed:    make(chan struct{}),
		ended:     make(chan struct{}),
		idle:      silenceAfter,
		release:   release,
		setStatus: setStatus,
	}
}

func (s *Sink) WriteFrame(ctx context.Context, frame []byte) error {
	select {
	case <-s.closed:
		return errSinkClosed
	default:
	}

	// An ended session takes no more frames; the room closes the sink.
	frames := s.frames
	select {
	case <-s.ended:
		frames = nil
	default:
	}

	select {
	case frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.closed:
		return errSinkClosed
	}
}

// Ended is closed when the voice session goes away without Close being
// called, e.g. the bot was disconnected from the channel.
func (s *Sink) Ended() <-chan struct{} { return s.ended }

func (s *Sink) markEnded() {
	s.endOnce.Do(func() { close(s.ended) })
}

func (s *Sink) Close(ctx context.Context) error {
	first := false
	s.closeOnce.Do(func() {
		first = true
		close(s.closed)
	})
	if first && s.release != nil {
		s.statusMu.Lock()
		s.release(ctx)
		s.statusMu.Unlock()
	}
	return nil
}

// SetStatus shows status on the voice channel. It does nothing once the sink
// is closed, so a late update cannot outlive the session.
func (s *Sink) SetStatus(status string) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	select {
	case <-s.closed:
		return
	default:
	}
	if s.setStatus != nil {
		s.setStatus(status)
	}
}

// provider returns the voice.OpusFrameProvider side of the sink.
func (s *Sink) provider() *frameProvider { return &frameProvider{sink: s} }

type frameProvider struct {
	sink *Sink
}

func (p *frameProvider) ProvideOpusFrame() ([]byte, error) {
	select {
	case f := <-p.sink.frames:
		return f, nil
	case <-p.sink.closed:
		return nil, io.EOF
	case <-time.After(p.sink.idle):
		return OpusSilence, nil
	}
}

func (p *frameProvider) Close() {}
