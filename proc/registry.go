package proc

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/siren/sys"
)

type Config struct {
	Connector Connector
	Resolver  Resolver
	Decoder   Decoder
	Notifier  Notifier
	History   HistoryRecorder

	// Rand builds each room's shuffle source. Nil means time-seeded.
	Rand func() *rand.Rand
}

// Registry maps guilds to their live rooms.
type Registry struct {
	cfg Config
	ctx context.Context

	mu      sync.Mutex
	rooms   map[snowflake.ID]*Room
	closing map[snowflake.ID]*Room
	pending map[snowflake.ID]chan struct{}
	closed  bool
}

func NewRegistry(ctx context.Context, cfg Config) *Registry {
	return &Registry{
		cfg:     cfg,
		ctx:     ctx,
		rooms:   make(map[snowflake.ID]*Room),
		closing: make(map[snowflake.ID]*Room),
		pending: make(map[snowflake.ID]chan struct{}),
	}
}

// GetOrCreate returns the live room for roomID, connecting a new one when
// there is none. Concurrent callers for the same room share one connect, and
// a room still tearing down is waited out before its guild reconnects.
func (g *Registry) GetOrCreate(ctx context.Context, roomID, channelID snowflake.ID) (*Room, error) {
	for {
		g.mu.Lock()
		if g.closed {
			g.mu.Unlock()
			return nil, ErrRoomClosed
		}
		if room, ok := g.rooms[roomID]; ok {
			g.mu.Unlock()
			return room, nil
		}
		if old, ok := g.closing[roomID]; ok {
			g.mu.Unlock()
			select {
			case <-old.Done():
				g.forgetClosing(old)
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		if wait, ok := g.pending[roomID]; ok {
			g.mu.Unlock()
			select {
			case <-wait:
				continue
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		done := make(chan struct{})
		g.pending[roomID] = done
		g.mu.Unlock()

		sink, err := g.cfg.Connector.Connect(ctx, roomID, channelID)

		g.mu.Lock()
		delete(g.pending, roomID)
		close(done)
		if err != nil {
			g.mu.Unlock()
			return nil, fmt.Errorf("connect room %s: %w", roomID, err)
		}
		if g.closed {
			g.mu.Unlock()
			_ = sink.Close(context.Background())
			return nil, ErrRoomClosed
		}

		var rng *rand.Rand
		if g.cfg.Rand != nil {
			rng = g.cfg.Rand()
		}
		room := newRoom(g.ctx, roomID, channelID, sink, g.cfg.Resolver, roomConfig{
			decoder:  g.cfg.Decoder,
			notifier: g.cfg.Notifier,
			history:  g.cfg.History,
			rng:      rng,
			onClose:  g.detach,
		})
		g.rooms[roomID] = room
		g.mu.Unlock()

		sys.LogVoice(sys.MsgVoiceRoomCreated, roomID, room.SessionID, channelID)
		return room, nil
	}
}

// detach forgets room if it is still the registered one for its ID. The room
// stays in closing until its sink is released.
func (g *Registry) detach(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[room.ID] != room {
		return
	}
	delete(g.rooms, room.ID)
	g.closing[room.ID] = room
	go func() {
		<-room.Done()
		g.forgetClosing(room)
	}()
}

func (g *Registry) forgetClosing(room *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing[room.ID] == room {
		delete(g.closing, room.ID)
	}
}

func (g *Registry) Get(roomID snowflake.ID) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	room, ok := g.rooms[roomID]
	return room, ok
}

// Remove stops the room for roomID.
func (g *Registry) Remove(ctx context.Context, roomID snowflake.ID) error {
	room, ok := g.Get(roomID)
	if !ok {
		return ErrNoRoom
	}
	return room.Stop(ctx)
}

// Snapshots returns a snapshot of every live room.
func (g *Registry) Snapshots() []Snapshot {
	g.mu.Lock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, room := range rooms {
		out = append(out, room.Snapshot())
	}
	return out
}

func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// Shutdown stops every room and refuses new ones.
func (g *Registry) Shutdown(ctx context.Context) {
	g.mu.Lock()
	g.closed = true
	rooms := make([]*Room, 0, len(g.rooms))
	for _, room := range g.rooms {
		rooms = append(rooms, room)
	}
	g.mu.Unlock()

	var wg sync.WaitGroup
	for _, room := range rooms {
		wg.Add(1)
		go func(room *Room) {
			defer wg.Done()
			if err := room.Stop(ctx); err != nil {
				sys.LogWarn(sys.MsgVoiceTeardownTimeout, room.ID, TeardownTimeout)
			}
		}(room)
	}
	wg.Wait()
}
