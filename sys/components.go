package sys

import (
	"encoding/json"
	"net/http"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// V2 Components
// ============================================================================

const (
	ComponentTypeSection     discord.ComponentType = 9
	ComponentTypeTextDisplay discord.ComponentType = 10
	ComponentTypeThumbnail   discord.ComponentType = 11
	ComponentTypeSeparator   discord.ComponentType = 14
	ComponentTypeContainer   discord.ComponentType = 17

	MessageFlagsIsComponentsV2 discord.MessageFlags = 1 << 15
)

type UnfurledMediaItem struct {
	URL string `json:"url"`
}

// Thumbnail displays a single image as a section accessory.
type Thumbnail struct {
	Media       UnfurledMediaItem `json:"media"`
	Description *string           `json:"description,omitempty"`
}

func (t Thumbnail) Type() discord.ComponentType { return ComponentTypeThumbnail }

func (t Thumbnail) MarshalJSON() ([]byte, error) {
	type thumbnail Thumbnail
	return marshalInline(thumbnail(t), t.Type())
}

// Separator renders a divider or vertical spacing.
type Separator struct {
	Divider bool `json:"divider,omitempty"`
	Spacing int  `json:"spacing,omitempty"`
}

func (s Separator) Type() discord.ComponentType { return ComponentTypeSeparator }

func (s Separator) MarshalJSON() ([]byte, error) {
	type separator Separator
	return marshalInline(separator(s), s.Type())
}

// TextDisplay is markdown text.
type TextDisplay struct {
	Content string `json:"content"`
}

func (t TextDisplay) Type() discord.ComponentType { return ComponentTypeTextDisplay }

func (t TextDisplay) MarshalJSON() ([]byte, error) {
	type textDisplay TextDisplay
	return marshalInline(textDisplay(t), t.Type())
}

// Section groups text displays with an optional accessory.
type Section struct {
	Components []any `json:"components"`
	Accessory  any   `json:"accessory,omitempty"`
}

func (s Section) Type() discord.ComponentType { return ComponentTypeSection }

func (s Section) MarshalJSON() ([]byte, error) {
	type section Section
	return marshalInline(section(s), s.Type())
}

// Container is the top-level V2 component.
type Container struct {
	Components  []any `json:"components"`
	AccentColor int   `json:"accent_color,omitempty"`
}

func (c Container) Type() discord.ComponentType { return ComponentTypeContainer }

func (c Container) MarshalJSON() ([]byte, error) {
	type container Container
	return marshalInline(container(c), c.Type())
}

// marshalInline flattens v's fields next to the "type" discriminator Discord expects on every component.
func marshalInline(v any, t discord.ComponentType) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	typ, _ := json.Marshal(t)
	fields["type"] = typ
	return json.Marshal(fields)
}

// Helper functions for building components

func NewV2Container(components ...any) Container {
	return Container{Components: components}
}

func NewTextDisplay(content string) TextDisplay {
	return TextDisplay{Content: content}
}

func NewThumbnail(url string) Thumbnail {
	return Thumbnail{Media: UnfurledMediaItem{URL: url}}
}

func NewSeparator(divider bool) Separator {
	return Separator{Divider: divider}
}

// NewSection creates a section with one text display and an optional accessory.
func NewSection(content string, accessory any) Section {
	s := Section{Components: []any{NewTextDisplay(content)}}
	if accessory != nil {
		s.Accessory = accessory
	}
	return s
}

// ============================================================================
// V2 Requests
// ============================================================================

type v2Payload struct {
	Components []any                `json:"components"`
	Flags      discord.MessageFlags `json:"flags"`
}

// RespondInteractionV2 responds to an interaction with ComponentsV2.
func RespondInteractionV2(client *bot.Client, interaction discord.Interaction, container Container, ephemeral bool) error {
	route := rest.NewEndpoint(http.MethodPost, "/interactions/{interaction.id}/{interaction.token}/callback")

	flags := MessageFlagsIsComponentsV2
	if ephemeral {
		flags |= discord.MessageFlagEphemeral
	}

	data := struct {
		Type discord.InteractionResponseType `json:"type"`
		Data v2Payload                       `json:"data"`
	}{
		Type: discord.InteractionResponseTypeCreateMessage,
		Data: v2Payload{Components: []any{container}, Flags: flags},
	}

	return client.Rest.Do(route.Compile(nil, interaction.ID().String(), interaction.Token()), data, nil)
}

// EditInteractionV2 edits the original (usually deferred) interaction response.
func EditInteractionV2(client *bot.Client, interaction discord.Interaction, container Container) error {
	route := rest.NewEndpoint(http.MethodPatch, "/webhooks/{application.id}/{interaction.token}/messages/@original")
	data := v2Payload{Components: []any{container}, Flags: MessageFlagsIsComponentsV2}
	return client.Rest.Do(route.Compile(nil, client.ApplicationID.String(), interaction.Token()), data, nil)
}

// SendMessageV2 sends a channel message using ComponentsV2.
func SendMessageV2(client *bot.Client, channelID snowflake.ID, container Container) (*discord.Message, error) {
	route := rest.NewEndpoint(http.MethodPost, "/channels/{channel.id}/messages")
	data := v2Payload{Components: []any{container}, Flags: MessageFlagsIsComponentsV2}

	var msg discord.Message
	if err := client.Rest.Do(route.Compile(nil, channelID.String()), data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
