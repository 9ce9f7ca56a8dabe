package home

import (
	"github.com/disgoorg/disgo/events"
)

func handleMusicJoin(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := commandContext()
	defer cancel()

	room, err := svc.join(ctx, event)
	if err != nil {
		updateReply(event, describeError(err))
		return
	}
	updateReply(event, "🔊 Connected to <#"+room.ChannelID.String()+">.")
}

func handleMusicStop(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := commandContext()
	defer cancel()

	if err := svc.registry.Remove(ctx, *event.GuildID()); err != nil {
		replyError(event, err)
		return
	}
	reply(event, "🛑 Stopped and disconnected.")
}
