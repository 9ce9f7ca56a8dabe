package proc

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// --- Track Model ---

// TrackRef is a queued reference to a track. It is never mutated after the
// controller assigns its Seq.
type TrackRef struct {
	URL           string
	Title         string
	RequesterID   snowflake.ID
	RequesterName string
	TextChannelID snowflake.ID
	Seq           uint64
	EnqueuedAt    time.Time
}

// DisplayTitle falls back to the URL when no title hint is known.
func (r TrackRef) DisplayTitle() string {
	if r.Title != "" {
		return r.Title
	}
	return r.URL
}

type Metadata struct {
	Title       string
	Uploader    string
	UploaderURL string
	PageURL     string
	Thumbnail   string
	Duration    time.Duration
	Live        bool
}

// ResolvedTrack is a playable track. Generation is the cache generation the
// resolution was started under.
type ResolvedTrack struct {
	Ref        TrackRef
	StreamURL  string
	Metadata   Metadata
	Generation uint64
}

type PlaybackStatus int

const (
	StatusPlaying PlaybackStatus = iota
	StatusPaused
	StatusStopped
)

func (s PlaybackStatus) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "stopped"
	}
}

type PlayerPhase int

const (
	PhaseIdle PlayerPhase = iota
	PhasePriming
	PhaseStreaming
	PhaseStopped
)

func (p PlayerPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePriming:
		return "priming"
	case PhaseStreaming:
		return "streaming"
	default:
		return "stopped"
	}
}

// Snapshot is a read-only copy of a room's state.
type Snapshot struct {
	RoomID     snowflake.ID
	ChannelID  snowflake.ID
	SessionID  string
	Current    *TrackRef
	Playing    *ResolvedTrack
	StartedAt  time.Time
	Pending    []TrackRef
	Status     PlaybackStatus
	Phase      PlayerPhase
	Shuffle    bool
	Loop       bool
	Generation uint64
}

// --- Collaborators ---

// Resolver turns a reference into a playable track. Implementations must be
// safe for concurrent use and must return promptly once ctx is cancelled.
type Resolver interface {
	Resolve(ctx context.Context, ref TrackRef) (ResolvedTrack, error)
}

// FrameSource yields encoded audio frames until io.EOF.
type FrameSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Decoder opens a frame stream for a resolved track. Cancelling ctx must
// unblock any pending ReadFrame.
type Decoder interface {
	Open(ctx context.Context, track *ResolvedTrack) (FrameSource, error)
}

// Sink is a live audio session. Ended is closed when the session goes away
// without a call to Close (kick, disconnect).
type Sink interface {
	WriteFrame(ctx context.Context, frame []byte) error
	Ended() <-chan struct{}
	Close(ctx context.Context) error
}

// Connector establishes the audio session for a room.
type Connector interface {
	Connect(ctx context.Context, roomID, channelID snowflake.ID) (Sink, error)
}

// Notifier receives user-facing playback reports.
type Notifier interface {
	NowPlaying(roomID snowflake.ID, track *ResolvedTrack)
	TrackFailed(roomID snowflake.ID, ref TrackRef, err error)
	TransportFailed(roomID snowflake.ID, channelID snowflake.ID, err error)
}

// HistoryRecorder persists plays. Errors are logged and never stop playback.
type HistoryRecorder interface {
	RecordPlay(ctx context.Context, roomID snowflake.ID, sessionID string, track *ResolvedTrack) error
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(snowflake.ID, *ResolvedTrack)           {}
func (nopNotifier) TrackFailed(snowflake.ID, TrackRef, error)         {}
func (nopNotifier) TransportFailed(snowflake.ID, snowflake.ID, error) {}
