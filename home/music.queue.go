package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/events"
	"github.com/dustin/go-humanize"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
)

const queuePageSize = 10

func handleMusicQueue(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	head, list := formatQueue(room.Snapshot(), time.Now())
	container := sys.NewV2Container(sys.NewTextDisplay(head), sys.NewSeparator(true), sys.NewTextDisplay(list))
	if err := sys.RespondInteractionV2(event.Client(), event.ApplicationCommandInteraction, container, false); err != nil {
		sys.LogDebug("Failed to send queue: %v", err)
	}
}

func handleMusicCurrent(svc *musicService, event *events.ApplicationCommandInteractionCreate) {
	room, err := svc.room(event)
	if err != nil {
		replyError(event, err)
		return
	}
	snap := room.Snapshot()
	if snap.Current == nil {
		replyError(event, proc.ErrNothingPlaying)
		return
	}

	var accessory any
	if snap.Playing != nil && snap.Playing.Metadata.Thumbnail != "" {
		accessory = sys.NewThumbnail(snap.Playing.Metadata.Thumbnail)
	}
	container := sys.NewV2Container(sys.NewSection(formatCurrent(snap, time.Now()), accessory))
	if err := sys.RespondInteractionV2(event.Client(), event.ApplicationCommandInteraction, container, false); err != nil {
		sys.LogDebug("Failed to send current track: %v", err)
	}
}

// formatQueue renders the playing track and the pending list separately.
func formatQueue(s proc.Snapshot, now time.Time) (head, list string) {
	head = "## 🎶 Queue"
	if s.Current != nil {
		head += "\n**Now:** " + trackLink(*s.Current, s.Playing)
	}

	var b strings.Builder
	if len(s.Pending) == 0 {
		b.WriteString("-# The queue is empty.\n")
	}
	for i, ref := range s.Pending {
		if i == queuePageSize {
			fmt.Fprintf(&b, "-# …and %d more\n", len(s.Pending)-queuePageSize)
			break
		}
		fmt.Fprintf(&b, "`%d.` %s, queued %s\n", i+1, trackLink(ref, nil), humanize.RelTime(ref.EnqueuedAt, now, "ago", "from now"))
	}

	fmt.Fprintf(&b, "-# Shuffle %s · Loop %s · %s", onOff(s.Shuffle), onOff(s.Loop), s.Status)
	return head, b.String()
}

func formatCurrent(s proc.Snapshot, now time.Time) string {
	var b strings.Builder
	b.WriteString("## 🎵 Now Playing\n")
	b.WriteString(trackLink(*s.Current, s.Playing))
	b.WriteString("\n")

	if s.Playing == nil {
		b.WriteString("-# Loading…")
		return b.String()
	}

	md := s.Playing.Metadata
	if md.Uploader != "" {
		if md.UploaderURL != "" {
			fmt.Fprintf(&b, "> **By:** [%s](%s)\n", md.Uploader, md.UploaderURL)
		} else {
			fmt.Fprintf(&b, "> **By:** %s\n", md.Uploader)
		}
	}

	elapsed := now.Sub(s.StartedAt)
	if md.Live || md.Duration <= 0 {
		fmt.Fprintf(&b, "> **Duration:** %s\n", sys.FormatTrackDuration(0))
	} else {
		fmt.Fprintf(&b, "> **Duration:** %s / %s\n", sys.FormatTrackDuration(min(elapsed, md.Duration)), sys.FormatTrackDuration(md.Duration))
	}
	if s.Current.RequesterID != 0 {
		fmt.Fprintf(&b, "> **Requested by:** <@%s>\n", s.Current.RequesterID)
	}
	fmt.Fprintf(&b, "-# Started %s · %s", humanize.RelTime(s.StartedAt, now, "ago", "from now"), s.Status)
	return b.String()
}

// trackLink prefers resolved metadata over the queue hint.
func trackLink(ref proc.TrackRef, playing *proc.ResolvedTrack) string {
	title, url := ref.DisplayTitle(), ref.URL
	if playing != nil && playing.Ref.Seq == ref.Seq {
		if playing.Metadata.Title != "" {
			title = playing.Metadata.Title
		}
		if playing.Metadata.PageURL != "" {
			url = playing.Metadata.PageURL
		}
	}
	title = strings.NewReplacer("[", "(", "]", ")").Replace(sys.Truncate(title, 80))
	if !strings.HasPrefix(url, "http") {
		return "**" + title + "**"
	}
	return "[" + title + "](" + url + ")"
}
