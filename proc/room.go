package proc

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"
	"github.com/leeineian/siren/sys"
)

const (
	// TeardownTimeout bounds how long Stop waits for a room's goroutines.
	TeardownTimeout = 5 * time.Second

	commandBuffer = 64
)

var errTeardownTimeout = errors.New("room teardown timed out")

type roomConfig struct {
	decoder  Decoder
	notifier Notifier
	history  HistoryRecorder
	rng      *rand.Rand
	onClose  func(*Room)
}

// Room owns the queue, lookahead cache, player and sink of one guild. All
// commands pass through serve, which applies them in submission order.
type Room struct {
	ID        snowflake.ID
	ChannelID snowflake.ID
	SessionID string
	CreatedAt time.Time

	decoder  Decoder
	sink     Sink
	notifier Notifier
	history  HistoryRecorder
	onClose  func(*Room)

	ctx    context.Context
	cancel context.CancelFunc
	cmds   chan *command
	done   chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	queue      *TrackQueue
	cache      *LookaheadCache
	status     PlaybackStatus
	phase      PlayerPhase
	loop       bool
	nextSeq    uint64
	playing    *ResolvedTrack
	startedAt  time.Time
	playCancel context.CancelFunc
	wake       chan struct{}
	resume     chan struct{}
	closed     bool
	reason     error

	closeOnce sync.Once
}

func newRoom(parent context.Context, id, channelID snowflake.ID, sink Sink, resolver Resolver, cfg roomConfig) *Room {
	ctx, cancel := context.WithCancel(parent)

	notifier := cfg.notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	running := make(chan struct{})
	close(running)

	r := &Room{
		ID:        id,
		ChannelID: channelID,
		SessionID: uuid.NewString(),
		CreatedAt: time.Now(),
		decoder:   cfg.decoder,
		sink:      sink,
		notifier:  notifier,
		history:   cfg.history,
		onClose:   cfg.onClose,
		ctx:       ctx,
		cancel:    cancel,
		cmds:      make(chan *command, commandBuffer),
		done:      make(chan struct{}),
		queue:     NewTrackQueue(cfg.rng),
		cache:     NewLookaheadCache(ctx, resolver),
		status:    StatusPlaying,
		phase:     PhaseIdle,
		wake:      make(chan struct{}),
		resume:    running,
	}

	r.wg.Add(2)
	go r.serve()
	go r.play()
	return r
}

// serve is the room's single serialization point.
func (r *Room) serve() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			// No-op after an explicit close; tears down when the parent ends.
			r.close(r.ctx.Err())
			return
		case <-r.sink.Ended():
			sys.LogVoice(sys.MsgVoiceSessionEnded, r.ID)
			r.close(ErrSessionEnded)
			return
		case c := <-r.cmds:
			batch := []*command{c}
		drain:
			for {
				select {
				case c := <-r.cmds:
					batch = append(batch, c)
				default:
					break drain
				}
			}
			for _, g := range coalesce(batch) {
				r.run(g)
			}
		}
	}
}

// close tears the room down once. reason is nil for an explicit stop.
func (r *Room) close(reason error) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.reason = reason
		r.status = StatusStopped
		r.phase = PhaseStopped
		if r.playCancel != nil {
			r.playCancel()
			r.playCancel = nil
		}
		r.queue.Clear()
		r.queue.RemoveCurrent()
		r.playing = nil
		r.mu.Unlock()

		if r.onClose != nil {
			r.onClose(r)
		}
		r.cancel()
		r.cache.Close()

		ctx, cancel := context.WithTimeout(context.Background(), TeardownTimeout)
		_ = r.sink.Close(ctx)
		cancel()

		why := "stopped"
		if reason != nil {
			why = reason.Error()
		}
		sys.LogVoice(sys.MsgVoiceRoomClosed, r.ID, r.SessionID, why)

		go func() {
			r.wg.Wait()
			close(r.done)
		}()
	})
}

// Done is closed once every room goroutine has exited.
func (r *Room) Done() <-chan struct{} { return r.done }

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Reason is why the room closed: nil for an explicit stop.
func (r *Room) Reason() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reason
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RoomID:     r.ID,
		ChannelID:  r.ChannelID,
		SessionID:  r.SessionID,
		Pending:    r.queue.Pending(),
		Status:     r.status,
		Phase:      r.phase,
		Shuffle:    r.queue.Shuffle(),
		Loop:       r.loop,
		Generation: r.cache.Generation(),
	}
	if cur, ok := r.queue.Current(); ok {
		s.Current = &cur
	}
	if r.playing != nil {
		playing := *r.playing
		s.Playing = &playing
		s.StartedAt = r.startedAt
	}
	return s
}
