package home

import (
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/siren/sys"
)

func handleMusicSkip(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	skipped, err := room.Skip(ctx)
	if err != nil {
		replyError(event, err)
		return
	}
	reply(event, "⏭️ Skipped **"+sys.Truncate(skipped.DisplayTitle(), 100)+"**")
}
