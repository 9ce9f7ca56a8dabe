package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
)

const (
	joinAttempts = 5
	joinBackoff  = time.Second
)

// Connector joins Discord voice channels through the client's voice manager.
type Connector struct {
	client *bot.Client

	mu    sync.Mutex
	sinks map[snowflake.ID]*Sink
}

func NewConnector(client *bot.Client) *Connector {
	return &Connector{
		client: client,
		sinks:  make(map[snowflake.ID]*Sink),
	}
}

func (c *Connector) Connect(ctx context.Context, roomID, channelID snowflake.ID) (proc.Sink, error) {
	conn := c.client.VoiceManager.CreateConn(roomID)

	sys.LogVoice("Joining channel %s in guild %s", channelID, roomID)
	err := openWithRetry(ctx, joinAttempts, joinBackoff, func(ctx context.Context) error {
		return conn.Open(ctx, channelID, false, false)
	})
	if err != nil {
		sys.LogVoice(sys.MsgVoiceJoinFailed, roomID, joinAttempts, err)
		conn.Close(ctx)
		return nil, err
	}

	var s *Sink
	s = newSink(func(ctx context.Context) {
		c.forget(roomID, s)
		c.SetVoiceStatus(channelID, "")
		conn.SetOpusFrameProvider(nil)
		conn.SetSpeaking(ctx, 0)
		conn.Close(ctx)
	}, func(status string) {
		c.SetVoiceStatus(channelID, status)
	})
	conn.SetOpusFrameProvider(s.provider())
	conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone)

	c.track(roomID, s)
	return s, nil
}

// SessionEnded reports that the bot's voice session in the guild is gone.
func (c *Connector) SessionEnded(guildID snowflake.ID) {
	c.mu.Lock()
	s, ok := c.sinks[guildID]
	c.mu.Unlock()
	if ok {
		s.markEnded()
	}
}

// SetRoomStatus sets the voice status of the guild's live session, if any.
func (c *Connector) SetRoomStatus(guildID snowflake.ID, status string) {
	c.mu.Lock()
	s, ok := c.sinks[guildID]
	c.mu.Unlock()
	if ok {
		s.SetStatus(status)
	}
}

// SetVoiceStatus updates the channel's voice status line. An empty status
// clears it.
func (c *Connector) SetVoiceStatus(channelID snowflake.ID, status string) {
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	if err := c.client.Rest.Do(route.Compile(nil), map[string]string{"status": sys.Truncate(status, 128)}, nil); err != nil {
		sys.LogVoiceDebug("Failed to set voice status in %s: %v", channelID, err)
	}
}

func (c *Connector) track(guildID snowflake.ID, s *Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.sinks[guildID]; ok && old != s {
		old.markEnded()
	}
	c.sinks[guildID] = s
}

func (c *Connector) forget(guildID snowflake.ID, s *Sink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sinks[guildID] == s {
		delete(c.sinks, guildID)
	}
}

// openWithRetry doubles the wait after every failed attempt.
func openWithRetry(ctx context.Context, attempts int, backoff time.Duration, open func(ctx context.Context) error) error {
	var lastErr error
	for i := range attempts {
		if i > 0 {
			wait := backoff << uint(i-1)
			sys.LogVoice(sys.MsgVoiceJoinRetry, wait, i+1, attempts)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if lastErr = open(ctx); lastErr == nil {
			return nil
		}
	}
	return lastErr
}
