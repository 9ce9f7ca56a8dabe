package source

import (
	"testing"
	"time"

	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResolved(t *testing.T) {
	out := "https://cdn/audio.webm\tSong\tBand\thttps://yt/@band\thttps://yt/watch?v=x\t213.5\thttps://img/x.jpg\tFalse\n"

	track, err := parseResolved(out)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/audio.webm", track.StreamURL)
	assert.Equal(t, proc.Metadata{
		Title:       "Song",
		Uploader:    "Band",
		UploaderURL: "https://yt/@band",
		PageURL:     "https://yt/watch?v=x",
		Duration:    213500 * time.Millisecond,
		Thumbnail:   "https://img/x.jpg",
	}, track.Metadata)
}

func TestParseResolved_LiveAndMissingFields(t *testing.T) {
	out := "garbage line\nhttps://cdn/live.m3u8\tRadio\tNA\tNA\tNA\tNA\tNA\tTrue"

	track, err := parseResolved(out)
	require.NoError(t, err)
	assert.True(t, track.Metadata.Live)
	assert.Empty(t, track.Metadata.Uploader)
	assert.Zero(t, track.Metadata.Duration)
}

func TestParseResolved_NoFormat(t *testing.T) {
	_, err := parseResolved("NA\tTitle\tA\tB\tC\t1\tD\tFalse")
	assert.ErrorIs(t, err, errNoOutput)

	_, err = parseResolved("")
	assert.ErrorIs(t, err, errNoOutput)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		stderr string
		want   proc.ResolutionKind
	}{
		{"ERROR: [youtube] abc: Video unavailable", proc.KindNotFound},
		{"ERROR: [youtube] abc: Sign in to confirm your age", proc.KindRestricted},
		{"ERROR: This video is not available in your country", proc.KindRestricted},
		{"ERROR: Unsupported URL: https://example.com", proc.KindMalformed},
		{"ERROR: 'foo' is not a valid URL", proc.KindMalformed},
		{"ERROR: Unable to download webpage: timed out", proc.KindNetwork},
		{"ERROR: HTTP Error 503: Service Unavailable", proc.KindNetwork},
		{"ERROR: HTTP Error 404: Not Found", proc.KindNotFound},
		{"something else entirely", proc.KindUnknown},
		{"", proc.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.stderr, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.stderr))
		})
	}
}

func TestParsePlaylist(t *testing.T) {
	out := "https://www.youtube.com/watch?v=a\tFirst\ta\nhttps://x/2\tSecond\tNA\n\nbroken\n"

	refs := parsePlaylist(out, true)
	require.Len(t, refs, 2)
	assert.Equal(t, proc.TrackRef{URL: "https://www.youtube.com/watch?v=a", Title: "First"}, refs[0])
	assert.Equal(t, "https://x/2", refs[1].URL)

	refs = parsePlaylist("https://sc/track\tTrack\t123", false)
	require.Len(t, refs, 1)
	assert.Equal(t, "https://sc/track", refs[0].URL)
}

func TestIsPlaylist(t *testing.T) {
	tests := map[string]bool{
		"https://www.youtube.com/playlist?list=PL123":          true,
		"https://www.youtube.com/watch?v=abc&list=PL123":       false,
		"https://music.youtube.com/browse/VL?list=OLAK5uy_abc": true,
		"https://soundcloud.com/artist/sets/mix":               true,
		"https://www.youtube.com/watch?v=abc":                  false,
		"never gonna give you up":                              false,
		"https://bandcamp.com/album/some-record":               true,
	}
	for u, want := range tests {
		assert.Equal(t, want, IsPlaylist(u), u)
	}
}

func TestQueryRef(t *testing.T) {
	assert.Equal(t, "https://youtu.be/x", QueryRef(" https://youtu.be/x "))
	assert.Equal(t, "ytsearch1:lofi beats", QueryRef("lofi beats"))
	assert.Equal(t, "ytsearch5:lofi", QueryRef("ytsearch5:lofi"))
}

func TestParseSeconds(t *testing.T) {
	assert.Equal(t, 3*time.Minute, parseSeconds("180"))
	assert.Equal(t, 1500*time.Millisecond, parseSeconds("1.5"))
	assert.Zero(t, parseSeconds(""))
	assert.Zero(t, parseSeconds("-4"))
}

func TestSearcher_SplitPrefix(t *testing.T) {
	s := NewSearcher(&sys.Config{YoutubePrefix: "[YT]", YTMusicPrefix: "[YTM]"})

	q, ytFirst := s.splitPrefix("[yt] song")
	assert.Equal(t, "song", q)
	assert.True(t, ytFirst)

	q, ytFirst = s.splitPrefix("[YTM] song")
	assert.Equal(t, "song", q)
	assert.False(t, ytFirst)

	q, ytFirst = s.splitPrefix("plain")
	assert.Equal(t, "plain", q)
	assert.False(t, ytFirst)
}

func TestMergeResults(t *testing.T) {
	ytm := []SearchResult{{Title: "m1"}, {Title: "m2"}}
	yt := []SearchResult{{Title: "y1"}}

	assert.Equal(t, []SearchResult{{Title: "m1"}, {Title: "m2"}, {Title: "y1"}}, mergeResults(ytm, yt, false))
	assert.Equal(t, []SearchResult{{Title: "y1"}, {Title: "m1"}, {Title: "m2"}}, mergeResults(ytm, yt, true))

	many := make([]SearchResult, 40)
	assert.Len(t, mergeResults(many, nil, false), maxResults)
}

func TestSearcher_CacheHitAndSweep(t *testing.T) {
	s := NewSearcher(&sys.Config{})
	hit := []SearchResult{{Title: "cached", URL: "u"}}
	s.cache["q"] = cachedSearch{results: hit, expiresAt: time.Now().Add(time.Minute)}
	s.cache["old"] = cachedSearch{results: hit, expiresAt: time.Now().Add(-time.Minute)}

	assert.Equal(t, hit, s.Search(t.Context(), "q"))
	assert.Equal(t, 1, s.Sweep())
	assert.Len(t, s.cache, 1)
}
