package home

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/siren/audio"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/source"
	"github.com/leeineian/siren/sys"
	"github.com/leeineian/siren/transport"
)

const (
	searchSweepInterval = 10 * time.Minute
	commandTimeout      = 30 * time.Second
)

// musicService is everything the /music handlers need once the client is up.
type musicService struct {
	client    *bot.Client
	cfg       *sys.Config
	registry  *proc.Registry
	connector *transport.Connector
	searcher  *source.Searcher

	presenceMu   sync.Mutex
	lastPresence string
}

var (
	music     atomic.Pointer[musicService]
	musicOnce sync.Once
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "music",
		Description: "Music playback",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "play",
				Description: "Queue a song, playlist, or search",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "query",
						Description:  "A URL or something to search for",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "skip",
				Description: "Skip the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "pause",
				Description: "Pause playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "resume",
				Description: "Resume playback",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shuffle",
				Description: "Toggle shuffle",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "loop",
				Description: "Toggle looping the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Clear the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "remove",
				Description: "Remove a queued song",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "position",
						Description: "Position in /music queue",
						Required:    true,
						MinValue:    ptr(1),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "queue",
				Description: "Show the queue",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "current",
				Description: "Show the current song",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "join",
				Description: "Join your voice channel",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "leave",
				Description: "Stop playback and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "stop",
				Description: "Stop playback and leave",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "history",
				Description: "Show recently played songs",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil {
			return
		}
		svc := music.Load()
		if svc == nil || event.GuildID() == nil {
			replyError(event, errNotReady)
			return
		}

		switch *data.SubCommandName {
		case "play":
			handleMusicPlay(svc, event, data)
		case "skip":
			handleMusicSkip(svc, event)
		case "pause":
			handleMusicPause(svc, event, true)
		case "resume":
			handleMusicPause(svc, event, false)
		case "shuffle":
			handleMusicShuffle(svc, event)
		case "loop":
			handleMusicLoop(svc, event)
		case "clear":
			handleMusicClear(svc, event)
		case "remove":
			handleMusicRemove(svc, event, data)
		case "queue":
			handleMusicQueue(svc, event)
		case "current":
			handleMusicCurrent(svc, event)
		case "join":
			handleMusicJoin(svc, event)
		case "leave", "stop":
			handleMusicStop(svc, event)
		case "history":
			handleMusicHistory(svc, event)
		}
	})

	sys.RegisterAutocompleteHandler("music", handleMusicAutocomplete)
	sys.RegisterVoiceStateUpdateHandler(handleBotVoiceState)

	sys.OnClientReady(func(ctx context.Context, client *bot.Client) {
		musicOnce.Do(func() {
			svc := newMusicService(ctx, client, sys.GlobalConfig)
			music.Store(svc)
			sys.RegisterDaemon(sys.LogVoice, func(ctx context.Context) (bool, func(), func()) {
				run := func() {
					sys.SafeGo(func() { svc.rotatePresence(ctx) })
					svc.sweepSearches(ctx)
				}
				return true, run, svc.shutdown
			})
		})
	})
}

func newMusicService(ctx context.Context, client *bot.Client, cfg *sys.Config) *musicService {
	svc := &musicService{
		client:    client,
		cfg:       cfg,
		connector: transport.NewConnector(client),
		searcher:  source.NewSearcher(cfg),
	}
	svc.registry = proc.NewRegistry(ctx, proc.Config{
		Connector: svc.connector,
		Resolver:  source.NewResolver(cfg),
		Decoder:   audio.NewDecoder(cfg),
		Notifier:  &channelNotifier{client: client, connector: svc.connector},
		History:   historyRecorder{},
	})
	return svc
}

func (s *musicService) sweepSearches(ctx context.Context) {
	ticker := time.NewTicker(searchSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.searcher.Sweep(); n > 0 {
				sys.LogVoiceDebug("Swept %d expired searches", n)
			}
		}
	}
}

func (s *musicService) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), proc.TeardownTimeout)
	defer cancel()
	s.registry.Shutdown(ctx)
}

// room returns the guild's live room without creating one.
func (s *musicService) room(event *events.ApplicationCommandInteractionCreate) (*proc.Room, error) {
	room, ok := s.registry.Get(*event.GuildID())
	if !ok {
		return nil, proc.ErrNoRoom
	}
	return room, nil
}

// join returns the guild's room, connecting to the caller's voice channel
// when there is none.
func (s *musicService) join(ctx context.Context, event *events.ApplicationCommandInteractionCreate) (*proc.Room, error) {
	if room, ok := s.registry.Get(*event.GuildID()); ok {
		return room, nil
	}
	channelID, err := userVoiceChannel(event)
	if err != nil {
		return nil, err
	}
	return s.registry.GetOrCreate(ctx, *event.GuildID(), channelID)
}

func userVoiceChannel(event *events.ApplicationCommandInteractionCreate) (snowflake.ID, error) {
	state, ok := event.Client().Caches.VoiceState(*event.GuildID(), event.User().ID)
	if !ok || state.ChannelID == nil {
		return 0, errNotInVoice
	}
	return *state.ChannelID, nil
}

// handleBotVoiceState ends the room when the bot itself leaves voice.
func handleBotVoiceState(event *events.GuildVoiceStateUpdate) {
	svc := music.Load()
	if svc == nil || event.VoiceState.UserID != event.Client().ID() {
		return
	}
	if event.VoiceState.ChannelID == nil {
		sys.LogVoice("Bot disconnected by external event in guild %s", event.VoiceState.GuildID)
		svc.connector.SessionEnded(event.VoiceState.GuildID)
	}
}

// --- Replies ---

var (
	errNotReady   = errors.New("not ready")
	errNotInVoice = errors.New("not in voice")
)

// describeError maps playback errors to the message users see.
func describeError(err error) string {
	var re *proc.ResolutionError
	switch {
	case errors.Is(err, errNotInVoice):
		return "❌ Join a voice channel first."
	case errors.Is(err, errNotReady):
		return "⏳ Still starting up, try again in a moment."
	case errors.Is(err, proc.ErrNoRoom), errors.Is(err, proc.ErrRoomClosed):
		return "❌ Nothing is playing here."
	case errors.Is(err, proc.ErrNothingPlaying):
		return "❌ Nothing is playing right now."
	case errors.Is(err, proc.ErrIndexOutOfRange):
		return "❌ There is no song at that position."
	case errors.As(err, &re):
		return "❌ Could not play **" + sys.Truncate(re.Ref.DisplayTitle(), 80) + "**: " + re.Kind.String() + "."
	case errors.Is(err, context.DeadlineExceeded):
		return "⌛ That took too long, try again."
	}
	return "❌ Something went wrong: " + sys.Truncate(err.Error(), 150)
}

func reply(event *events.ApplicationCommandInteractionCreate, content string) {
	if err := event.CreateMessage(discord.NewMessageCreate().WithContent(content)); err != nil {
		sys.LogDebug("Failed to reply: %v", err)
	}
}

func replyError(event *events.ApplicationCommandInteractionCreate, err error) {
	err2 := event.CreateMessage(discord.NewMessageCreate().
		WithContent(describeError(err)).
		WithEphemeral(true))
	if err2 != nil {
		sys.LogDebug("Failed to reply: %v", err2)
	}
}

func updateReply(event *events.ApplicationCommandInteractionCreate, content string) {
	_, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), discord.NewMessageUpdate().
		WithContent(content))
	if err != nil {
		sys.LogDebug("Failed to update reply: %v", err)
	}
}

func commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(sys.AppContext, commandTimeout)
}

func ptr[T any](v T) *T { return &v }
