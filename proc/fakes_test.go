package proc

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 2 * time.Second

func ref(url string) TrackRef { return TrackRef{URL: url} }

// --- Resolver ---

type fakeResolver struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	gates map[string]chan struct{}
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{fail: map[string]error{}, gates: map[string]chan struct{}{}}
}

// block makes resolutions of url wait until the returned func is called.
func (f *fakeResolver) block(url string) func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates[url] = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeResolver) failWith(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = err
}

func (f *fakeResolver) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

func (f *fakeResolver) Resolve(ctx context.Context, r TrackRef) (ResolvedTrack, error) {
	f.mu.Lock()
	f.calls = append(f.calls, r.URL)
	gate := f.gates[r.URL]
	err := f.fail[r.URL]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ResolvedTrack{}, ctx.Err()
		}
	}
	if err != nil {
		return ResolvedTrack{}, err
	}
	return ResolvedTrack{
		StreamURL: "stream://" + r.URL,
		Metadata:  Metadata{Title: "title " + r.URL, Duration: time.Minute},
	}, nil
}

// --- Decoder ---

type fakeDecoder struct {
	mu      sync.Mutex
	lengths map[string]int
	opened  []string
}

func newFakeDecoder() *fakeDecoder {
	return &fakeDecoder{lengths: map[string]int{}}
}

// length sets how many frames url yields. Unset tracks never end.
func (d *fakeDecoder) length(url string, frames int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lengths[url] = frames
}

func (d *fakeDecoder) openedTracks() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.opened...)
}

func (d *fakeDecoder) Open(ctx context.Context, track *ResolvedTrack) (FrameSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.opened = append(d.opened, track.Ref.URL)
	n, ok := d.lengths[track.Ref.URL]
	if !ok {
		n = -1
	}
	return &fakeSource{ctx: ctx, label: track.Ref.URL, remaining: n}, nil
}

type fakeSource struct {
	ctx       context.Context
	label     string
	remaining int
}

func (s *fakeSource) ReadFrame() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.remaining == 0 {
		return nil, io.EOF
	}
	if s.remaining > 0 {
		s.remaining--
	}
	return []byte(s.label), nil
}

func (s *fakeSource) Close() error { return nil }

// --- Sink & Connector ---

type fakeSink struct {
	frames  chan []byte
	ended   chan struct{}
	endOnce sync.Once

	// hold, when set, keeps Close from returning until it is closed.
	hold <-chan struct{}

	mu       sync.Mutex
	err      error
	closed   bool
	released bool
}

func newFakeSink(hold <-chan struct{}) *fakeSink {
	return &fakeSink{frames: make(chan []byte, 1), ended: make(chan struct{}), hold: hold}
}

func (s *fakeSink) WriteFrame(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return err
	}
	select {
	case s.frames <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *fakeSink) Ended() <-chan struct{} { return s.ended }

func (s *fakeSink) Close(context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.hold != nil {
		<-s.hold
	}

	s.mu.Lock()
	s.released = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) breakWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *fakeSink) end() { s.endOnce.Do(func() { close(s.ended) }) }

type fakeConnector struct {
	mu      sync.Mutex
	sinks   []*fakeSink
	delay   time.Duration
	err     error
	hold    chan struct{}
	overlap bool
}

// holdReleases makes every later sink's Close block until the returned func
// is called.
func (c *fakeConnector) holdReleases() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hold = make(chan struct{})
	hold := c.hold
	var once sync.Once
	return func() { once.Do(func() { close(hold) }) }
}

// overlapped reports whether a connect ran while an earlier sink was still
// being released.
func (c *fakeConnector) overlapped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.overlap
}

func (c *fakeConnector) Connect(ctx context.Context, _, _ snowflake.ID) (Sink, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	for _, prev := range c.sinks {
		if prev.isClosed() && !prev.isReleased() {
			c.overlap = true
		}
	}
	s := newFakeSink(c.hold)
	c.sinks = append(c.sinks, s)
	return s, nil
}

func (c *fakeConnector) last() *fakeSink {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinks[len(c.sinks)-1]
}

func (c *fakeConnector) connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sinks)
}

// --- Notifier ---

type fakeNotifier struct {
	mu        sync.Mutex
	playing   []string
	failed    []string
	transport []error
}

func (n *fakeNotifier) NowPlaying(_ snowflake.ID, track *ResolvedTrack) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.playing = append(n.playing, track.Ref.URL)
}

func (n *fakeNotifier) TrackFailed(_ snowflake.ID, r TrackRef, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, r.URL)
}

func (n *fakeNotifier) TransportFailed(_ snowflake.ID, _ snowflake.ID, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transport = append(n.transport, err)
}

func (n *fakeNotifier) failures() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.failed...)
}

func (n *fakeNotifier) transportFailures() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.transport)
}

// --- Harness ---

type harness struct {
	registry  *Registry
	connector *fakeConnector
	resolver  *fakeResolver
	decoder   *fakeDecoder
	notifier  *fakeNotifier
}

const (
	testRoom    snowflake.ID = 100
	testChannel snowflake.ID = 200
)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		connector: &fakeConnector{},
		resolver:  newFakeResolver(),
		decoder:   newFakeDecoder(),
		notifier:  &fakeNotifier{},
	}
	h.registry = NewRegistry(context.Background(), Config{
		Connector: h.connector,
		Resolver:  h.resolver,
		Decoder:   h.decoder,
		Notifier:  h.notifier,
		Rand:      func() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) },
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		h.registry.Shutdown(ctx)
	})
	return h
}

func (h *harness) room(t *testing.T) (*Room, *fakeSink) {
	t.Helper()
	room, err := h.registry.GetOrCreate(context.Background(), testRoom, testChannel)
	require.NoError(t, err)
	return room, h.connector.last()
}

func readFrame(t *testing.T, s *fakeSink) string {
	t.Helper()
	select {
	case f := <-s.frames:
		return string(f)
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for a frame")
		return ""
	}
}

// waitForTrack reads frames until one of want arrives. Frames from tracks
// outside allowed fail the test.
func waitForTrack(t *testing.T, s *fakeSink, want string, allowed ...string) {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case f := <-s.frames:
			got := string(f)
			if got == want {
				return
			}
			require.Contains(t, allowed, got, "unexpected frame while waiting for %s", want)
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

// drainFrames reads until the sink has been quiet for quiet.
func drainFrames(s *fakeSink, quiet time.Duration) []string {
	var got []string
	for {
		select {
		case f := <-s.frames:
			got = append(got, string(f))
		case <-time.After(quiet):
			return got
		}
	}
}

var errBoom = errors.New("boom")
