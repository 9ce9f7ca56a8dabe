package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/siren/sys"
)

const historyPageSize = 10

func handleMusicHistory(_ *musicService, event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := commandContext()
	defer cancel()

	plays, err := sys.GetRecentPlays(ctx, *event.GuildID(), historyPageSize)
	if err != nil {
		sys.LogDatabase("Failed to load history for %s: %v", *event.GuildID(), err)
		replyError(event, err)
		return
	}

	container := sys.NewV2Container(sys.NewTextDisplay(formatHistory(plays, time.Now())))
	if err := sys.RespondInteractionV2(event.Client(), event.ApplicationCommandInteraction, container, false); err != nil {
		sys.LogDebug("Failed to send history: %v", err)
	}
}

func formatHistory(plays []sys.PlayRecord, now time.Time) string {
	var b strings.Builder
	b.WriteString("## 📜 Recently Played\n")
	if len(plays) == 0 {
		b.WriteString("-# Nothing has been played here yet.")
		return b.String()
	}
	for i, p := range plays {
		title := strings.NewReplacer("[", "(", "]", ")").Replace(sys.Truncate(p.Title, 80))
		fmt.Fprintf(&b, "`%d.` [%s](%s) `%s` %s\n", i+1, title, p.URL, sys.FormatTrackDuration(p.Duration), humanize.RelTime(p.PlayedAt, now, "ago", "from now"))
	}
	return strings.TrimSuffix(b.String(), "\n")
}
