package home

import (
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/siren/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "history",
		Description:              "Manage play history (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "clear",
				Description: "Delete this server's play history",
			},
		},
	}, func(event *events.ApplicationCommandInteractionCreate) {
		data := event.SlashCommandInteractionData()
		if data.SubCommandName == nil || event.GuildID() == nil {
			return
		}

		switch *data.SubCommandName {
		case "clear":
			handleHistoryClear(event)
		}
	})
}

func handleHistoryClear(event *events.ApplicationCommandInteractionCreate) {
	ctx, cancel := commandContext()
	defer cancel()

	n, err := sys.ClearPlayHistory(ctx, *event.GuildID())
	if err != nil {
		sys.LogDatabase("Failed to clear history for %s: %v", *event.GuildID(), err)
		replyError(event, err)
		return
	}

	err = event.CreateMessage(discord.NewMessageCreate().
		WithContent(fmt.Sprintf("🧹 Deleted %s history %s.", humanize.Comma(n), plural(int(n), "entry", "entries"))).
		WithEphemeral(true))
	if err != nil {
		sys.LogDebug("Failed to reply: %v", err)
	}
}
