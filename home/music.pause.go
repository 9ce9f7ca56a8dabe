package home

import (
	"github.com/disgoorg/disgo/events"
)

func handleMusicPause(svc *musicService, event *events.ApplicationCommandInteractionCreate, pause bool) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	if pause {
		err = room.Pause(ctx)
	} else {
		err = room.Resume(ctx)
	}
	if err != nil {
		replyError(event, err)
		return
	}

	if pause {
		reply(event, "⏸️ Paused.")
	} else {
		reply(event, "▶️ Resumed.")
	}
}
