package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/siren/sys"
)

func handleMusicClear(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	n, err := room.Clear(ctx)
	if err != nil {
		replyError(event, err)
		return
	}
	reply(event, fmt.Sprintf("🧹 Cleared %d queued %s.", n, plural(n, "song", "songs")))
}

// handleMusicRemove takes the 1-based position shown by /music queue.
func handleMusicRemove(svc *musicService, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	pos, _ := data.OptInt("position")

	ctx, cancel := commandContext()
	defer cancel()

	removed, err := room.Remove(ctx, pos-1)
	if err != nil {
		replyError(event, err)
		return
	}
	reply(event, "🗑️ Removed **"+sys.Truncate(removed.DisplayTitle(), 100)+"**")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
