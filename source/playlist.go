package source

import (
	"context"
	"fmt"
	"strings"

	"github.com/leeineian/siren/proc"
)

const playlistPrint = "%(url)s\t%(title)s\t%(id)s"

// ExpandPlaylist lists up to limit entries of a playlist as unresolved refs
// carrying only URL and title hint. Requester fields are left to the caller.
func ExpandPlaylist(ctx context.Context, proxy, u string, limit int) ([]proc.TrackRef, error) {
	res, err := newYtdlp(proxy).
		FlatPlaylist().
		Print(playlistPrint).
		PlaylistItems(fmt.Sprintf("1-%d", limit)).
		Run(ctx, append(baseArgs(), "--yes-playlist", u)...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		return nil, fmt.Errorf("expand playlist: %w: %s", err, lastLine(stderr))
	}

	refs := parsePlaylist(res.Stdout, isYouTubeURL(u))
	if len(refs) > limit {
		refs = refs[:limit]
	}
	return refs, nil
}

func parsePlaylist(stdout string, youtube bool) []proc.TrackRef {
	var refs []proc.TrackRef
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}
		u := field(parts, 0)
		if id := field(parts, 2); youtube && id != "" {
			u = "https://www.youtube.com/watch?v=" + id
		}
		if u == "" {
			continue
		}
		refs = append(refs, proc.TrackRef{URL: u, Title: field(parts, 1)})
	}
	return refs
}

func isYouTubeURL(u string) bool {
	return strings.Contains(u, "youtube.com") || strings.Contains(u, "youtu.be")
}
