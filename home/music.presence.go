package home

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/gateway"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
)

func presenceInterval() time.Duration {
	return time.Duration(15+rand.IntN(46)) * time.Second
}

func (s *musicService) rotatePresence(ctx context.Context) {
	for {
		s.updatePresence(ctx)
		select {
		case <-time.After(presenceInterval()):
		case <-ctx.Done():
			return
		}
	}
}

func (s *musicService) updatePresence(ctx context.Context) {
	s.presenceMu.Lock()
	defer s.presenceMu.Unlock()

	visible, err := sys.GetBotConfig(ctx, configKeyStatus)
	if err != nil || visible == "false" {
		_ = s.client.SetPresence(ctx, gateway.WithOnlineStatus(discord.OnlineStatusOnline))
		return
	}

	text := pickPresence(presenceChoices(s.registry.Snapshots(), time.Since(sys.StartupTime)), s.lastPresence)
	s.lastPresence = text
	if err := s.client.SetPresence(ctx,
		gateway.WithOnlineStatus(discord.OnlineStatusOnline),
		gateway.WithListeningActivity(text),
	); err != nil {
		sys.LogVoiceDebug("Failed to update presence: %v", err)
	}
}

// presenceChoices lists the status lines worth showing for the current rooms.
func presenceChoices(rooms []proc.Snapshot, uptime time.Duration) []string {
	var out []string
	playing, queued := 0, 0
	for _, r := range rooms {
		if r.Playing != nil && r.Status == proc.StatusPlaying {
			playing++
		}
		queued += len(r.Pending)
	}
	if playing == 1 {
		for _, r := range rooms {
			if r.Playing != nil && r.Status == proc.StatusPlaying {
				out = append(out, sys.Truncate(displayTitle(r.Playing), 120))
			}
		}
	} else if playing > 1 {
		out = append(out, fmt.Sprintf("music in %d servers", playing))
	}
	if queued > 0 {
		out = append(out, fmt.Sprintf("%d queued %s", queued, plural(queued, "song", "songs")))
	}
	out = append(out, fmt.Sprintf("/music play · up %dh %dm", int(uptime.Hours()), int(uptime.Minutes())%60))
	return out
}

// pickPresence avoids repeating the last line when there is another choice.
func pickPresence(choices []string, last string) string {
	var fresh []string
	for _, c := range choices {
		if c != last {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return choices[0]
	}
	return fresh[rand.IntN(len(fresh))]
}
