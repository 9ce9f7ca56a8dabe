package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/source"
	"github.com/leeineian/siren/sys"
)

func handleMusicPlay(svc *musicService, event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	query, _ := data.OptString("query")
	query = strings.TrimSpace(query)
	if query == "" {
		replyError(event, proc.NewResolutionError(proc.KindMalformed, proc.TrackRef{}, nil))
		return
	}

	// Instant Defer
	_ = event.DeferCreateMessage(false)

	ctx, cancel := commandContext()
	defer cancel()

	room, err := svc.join(ctx, event)
	if err != nil {
		updateReply(event, describeError(err))
		return
	}

	refs, err := svc.buildRefs(event, query)
	if err != nil {
		updateReply(event, describeError(err))
		return
	}
	if len(refs) == 0 {
		updateReply(event, "❌ That playlist is empty.")
		return
	}

	pos, err := room.Enqueue(ctx, refs...)
	if err != nil {
		updateReply(event, describeError(err))
		return
	}
	updateReply(event, enqueuedMessage(refs, pos))
}

// buildRefs turns a query into queue entries, expanding playlists.
func (s *musicService) buildRefs(event *events.ApplicationCommandInteractionCreate, query string) ([]proc.TrackRef, error) {
	base := proc.TrackRef{
		RequesterID:   event.User().ID,
		RequesterName: event.User().EffectiveName(),
		TextChannelID: event.Channel().ID(),
	}

	if source.IsPlaylist(query) {
		ctx, cancel := commandContext()
		defer cancel()
		entries, err := source.ExpandPlaylist(ctx, s.cfg.YoutubeProxy, query, s.cfg.PlaylistLimit)
		if err != nil {
			return nil, err
		}
		refs := make([]proc.TrackRef, len(entries))
		for i, e := range entries {
			refs[i] = base
			refs[i].URL = e.URL
			refs[i].Title = e.Title
		}
		return refs, nil
	}

	ref := base
	ref.URL = source.QueryRef(query)
	if ref.URL != query {
		ref.Title = query
	}
	return []proc.TrackRef{ref}, nil
}

// enqueuedMessage reports a 1-based position; position 1 means it plays next
// or now.
func enqueuedMessage(refs []proc.TrackRef, pos int) string {
	if len(refs) > 1 {
		return fmt.Sprintf("✅ Added **%d** songs to the queue, starting at position %d.", len(refs), pos)
	}
	title := sys.Truncate(refs[0].DisplayTitle(), 100)
	if strings.HasPrefix(refs[0].URL, "http") {
		title = "[" + title + "](" + refs[0].URL + ")"
	}
	if pos <= 1 {
		return "🎶 Up next: " + title
	}
	return fmt.Sprintf("✅ Added to queue at position %d: %s", pos, title)
}

func handleMusicAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	svc := music.Load()
	query := strings.TrimSpace(focused.String())
	if svc == nil || query == "" {
		_ = event.AutocompleteResult(nil)
		return
	}

	ctx, cancel := commandContext()
	defer cancel()
	start := time.Now()
	results := svc.searcher.Search(ctx, query)
	sys.LogVoiceDebug("Autocomplete for %q returned %d results in %v", query, len(results), time.Since(start))

	_ = event.AutocompleteResult(autocompleteChoices(results))
}

func autocompleteChoices(results []source.SearchResult) []discord.AutocompleteChoice {
	choices := make([]discord.AutocompleteChoice, 0, len(results))
	for _, r := range results {
		if len(r.URL) > 100 {
			continue
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  sys.Truncate(r.Title, 100),
			Value: r.URL,
		})
		if len(choices) == 25 {
			break
		}
	}
	return choices
}
