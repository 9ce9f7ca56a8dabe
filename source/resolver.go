package source

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leeineian/siren/proc"
	"github.com/leeineian/siren/sys"
	"golang.org/x/time/rate"
)

const resolvePrint = "%(url)s\t%(title)s\t%(uploader)s\t%(uploader_url)s\t%(webpage_url)s\t%(duration)s\t%(thumbnail)s\t%(is_live)s"

var errNoOutput = errors.New("yt-dlp returned no playable format")

// Resolver resolves refs through yt-dlp. Process spawns are rate limited
// across every room.
type Resolver struct {
	proxy   string
	timeout time.Duration
	limiter *rate.Limiter
}

func NewResolver(cfg *sys.Config) *Resolver {
	return &Resolver{
		proxy:   cfg.YoutubeProxy,
		timeout: cfg.ResolveTimeout,
		limiter: rate.NewLimiter(rate.Limit(cfg.ResolveRate), cfg.ResolveBurst),
	}
}

func (r *Resolver) Resolve(ctx context.Context, ref proc.TrackRef) (proc.ResolvedTrack, error) {
	if strings.TrimSpace(ref.URL) == "" {
		return proc.ResolvedTrack{}, proc.NewResolutionError(proc.KindMalformed, ref, errors.New("empty reference"))
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return proc.ResolvedTrack{}, proc.NewResolutionError(proc.KindNetwork, ref, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := strings.Replace(ref.URL, "music.youtube.com", "www.youtube.com", 1)
	args := append(baseArgs(), "--no-playlist", "--skip-download", "-f", userFormat, u)

	start := time.Now()
	res, err := newYtdlp(r.proxy).
		Print(resolvePrint).
		Run(ctx, args...)
	if err != nil {
		stderr := ""
		if res != nil {
			stderr = res.Stderr
		}
		if ctx.Err() != nil {
			return proc.ResolvedTrack{}, proc.NewResolutionError(proc.KindNetwork, ref, ctx.Err())
		}
		return proc.ResolvedTrack{}, proc.NewResolutionError(classify(stderr), ref, fmt.Errorf("%w: %s", err, lastLine(stderr)))
	}

	track, err := parseResolved(res.Stdout)
	if err != nil {
		return proc.ResolvedTrack{}, proc.NewResolutionError(proc.KindNotFound, ref, err)
	}
	track.Ref = ref
	sys.LogResolver("Resolved %s in %v", track.Metadata.Title, time.Since(start).Round(time.Millisecond))
	return track, nil
}

// parseResolved reads the first complete line of resolvePrint output.
func parseResolved(stdout string) (proc.ResolvedTrack, error) {
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		parts := strings.Split(line, "\t")
		if len(parts) < 8 {
			continue
		}
		stream := field(parts, 0)
		if stream == "" {
			continue
		}
		return proc.ResolvedTrack{
			StreamURL: stream,
			Metadata: proc.Metadata{
				Title:       field(parts, 1),
				Uploader:    field(parts, 2),
				UploaderURL: field(parts, 3),
				PageURL:     field(parts, 4),
				Duration:    parseSeconds(field(parts, 5)),
				Thumbnail:   field(parts, 6),
				Live:        strings.EqualFold(field(parts, 7), "true"),
			},
		}, nil
	}
	return proc.ResolvedTrack{}, errNoOutput
}

var stderrKinds = []struct {
	needle string
	kind   proc.ResolutionKind
}{
	{"video unavailable", proc.KindNotFound},
	{"does not exist", proc.KindNotFound},
	{"no video results", proc.KindNotFound},
	{"http error 404", proc.KindNotFound},
	{"private video", proc.KindRestricted},
	{"sign in to confirm", proc.KindRestricted},
	{"not available in your country", proc.KindRestricted},
	{"members-only", proc.KindRestricted},
	{"drm", proc.KindRestricted},
	{"unsupported url", proc.KindMalformed},
	{"is not a valid url", proc.KindMalformed},
	{"timed out", proc.KindNetwork},
	{"unable to download", proc.KindNetwork},
	{"connection", proc.KindNetwork},
	{"http error", proc.KindNetwork},
}

// classify maps yt-dlp stderr to a resolution kind.
func classify(stderr string) proc.ResolutionKind {
	s := strings.ToLower(stderr)
	for _, k := range stderrKinds {
		if strings.Contains(s, k.needle) {
			return k.kind
		}
	}
	return proc.KindUnknown
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndex(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	return sys.Truncate(s, 200)
}
