package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/leeineian/siren/sys"
)

const configKeyStatus = "status_visible"

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "status",
		Description:              "Configure playback status visibility (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionBool{
				Name:        "visible",
				Description: "Show playback activity in the bot's status",
				Required:    true,
			},
		},
	}, handleStatus)
}

func handleStatus(event *events.ApplicationCommandInteractionCreate) {
	visible := event.SlashCommandInteractionData().Bool("visible")

	value, content := statusSetting(visible)
	if err := sys.SetBotConfig(sys.AppContext, configKeyStatus, value); err != nil {
		replyError(event, err)
		return
	}
	if svc := music.Load(); svc != nil {
		sys.SafeGo(func() { svc.updatePresence(sys.AppContext) })
	}

	err := event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		WithEphemeral(true))
	if err != nil {
		sys.LogDebug("Failed to reply: %v", err)
	}
}

func statusSetting(visible bool) (value, content string) {
	if visible {
		return "true", "✅ Playback activity is now shown in my status."
	}
	return "false", "✅ Playback activity is now hidden from my status."
}
