package home

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
	"github.com/leeineian/siren/transport"
)

// channelNotifier posts playback reports to the text channel a track was
// requested from.
type channelNotifier struct {
	client    *bot.Client
	connector *transport.Connector
}

func (n *channelNotifier) NowPlaying(roomID snowflake.ID, track *proc.ResolvedTrack) {
	t := *track
	sys.SafeGo(func() {
		if n.connector != nil {
			n.connector.SetRoomStatus(roomID, "🎶 "+displayTitle(&t))
		}

		var accessory any
		if t.Metadata.Thumbnail != "" {
			accessory = sys.NewThumbnail(t.Metadata.Thumbnail)
		}
		n.post(t.Ref.TextChannelID, sys.NewV2Container(sys.NewSection(nowPlayingText(&t), accessory)))
	})
}

func (n *channelNotifier) TrackFailed(_ snowflake.ID, ref proc.TrackRef, err error) {
	msg := failureText(ref, err)
	sys.SafeGo(func() {
		n.post(ref.TextChannelID, sys.NewV2Container(sys.NewTextDisplay(msg)))
	})
}

func (n *channelNotifier) TransportFailed(_ snowflake.ID, channelID snowflake.ID, err error) {
	sys.SafeGo(func() {
		n.post(channelID, sys.NewV2Container(sys.NewTextDisplay("🔌 Lost the voice connection, playback stopped.\n-# "+sys.Truncate(err.Error(), 150))))
	})
}

func (n *channelNotifier) post(channelID snowflake.ID, container sys.Container) {
	if channelID == 0 {
		return
	}
	if _, err := sys.SendMessageV2(n.client, channelID, container); err != nil {
		sys.LogVoiceDebug("Failed to post to %s: %v", channelID, err)
	}
}

func displayTitle(t *proc.ResolvedTrack) string {
	if t.Metadata.Title != "" {
		return t.Metadata.Title
	}
	return t.Ref.DisplayTitle()
}

func nowPlayingText(t *proc.ResolvedTrack) string {
	title := sys.Truncate(displayTitle(t), 100)
	if t.Metadata.PageURL != "" {
		title = "[" + title + "](" + t.Metadata.PageURL + ")"
	}
	s := "### 🎶 Now Playing\n" + title + " `" + sys.FormatTrackDuration(t.Metadata.Duration) + "`"
	if t.Ref.RequesterID != 0 {
		s += fmt.Sprintf("\n-# Requested by <@%s>", t.Ref.RequesterID)
	}
	return s
}

func failureText(ref proc.TrackRef, err error) string {
	title := sys.Truncate(ref.DisplayTitle(), 100)
	var re *proc.ResolutionError
	if errors.As(err, &re) {
		return fmt.Sprintf("⚠️ Could not play **%s**: %s. Skipping.", title, re.Kind)
	}
	return fmt.Sprintf("⚠️ Playback of **%s** failed. Skipping.\n-# %s", title, sys.Truncate(err.Error(), 150))
}

// historyRecorder stores plays in the play_history table.
type historyRecorder struct{}

func (historyRecorder) RecordPlay(ctx context.Context, roomID snowflake.ID, sessionID string, t *proc.ResolvedTrack) error {
	if sys.DB == nil {
		return nil
	}
	return sys.AddPlayRecord(ctx, playRecord(roomID, sessionID, t))
}

func playRecord(roomID snowflake.ID, sessionID string, t *proc.ResolvedTrack) sys.PlayRecord {
	url := t.Metadata.PageURL
	if url == "" {
		url = t.Ref.URL
	}
	return sys.PlayRecord{
		GuildID:     roomID,
		SessionID:   sessionID,
		URL:         url,
		Title:       displayTitle(t),
		Uploader:    t.Metadata.Uploader,
		Duration:    t.Metadata.Duration,
		RequesterID: t.Ref.RequesterID,
	}
}
