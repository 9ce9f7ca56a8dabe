package home

import (
	"github.com/disgoorg/disgo/events"
)

func handleMusicShuffle(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	on, err := room.ToggleShuffle(ctx)
	if err != nil {
		replyError(event, err)
		return
	}
	reply(event, "🔀 Shuffle is now **"+onOff(on)+"**.")
}

func handleMusicLoop(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	ctx, cancel := commandContext()
	defer cancel()

	on, err := room.ToggleLoop(ctx)
	if err != nil {
		replyError(event, err)
		return
	}
	reply(event, "🔁 Loop is now **"+onOff(on)+"**.")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
