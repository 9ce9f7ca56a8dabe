package source

import (
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"
)

var (
	jsArgs []string
	jsOnce sync.Once

	videoIDRegex = regexp.MustCompile(`(?:\?|&)v=([^&]+)`)
)

const userFormat = "bestaudio[ext=webm]/bestaudio[ext=m4a]/bestaudio/best"

func newYtdlp(proxy string) *ytdlp.Command {
	cmd := ytdlp.New().
		Quiet().
		NoWarnings().
		IgnoreConfig()
	if proxy != "" {
		cmd.Proxy(proxy)
	}
	return cmd
}

// baseArgs are shared by every yt-dlp invocation.
func baseArgs() []string {
	jsOnce.Do(func() {
		for _, rt := range []string{"node", "deno", "quickjs"} {
			if path, err := exec.LookPath(rt); err == nil {
				jsArgs = append(jsArgs, "--js-runtimes", rt+":"+path)
				break
			}
		}
	})

	args := append([]string(nil), jsArgs...)
	return append(args,
		"--no-check-certificates",
		"--extractor-args", "youtube:player_client=android,web",
		"--socket-timeout", "30",
		"--retries", "5",
	)
}

// field normalizes a yt-dlp print field, which is "NA" when missing.
func field(parts []string, i int) string {
	if i >= len(parts) {
		return ""
	}
	v := strings.TrimSpace(parts[i])
	if v == "NA" || v == "None" {
		return ""
	}
	return v
}

// parseSeconds reads yt-dlp's duration field, which may be fractional.
func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// IsPlaylist reports whether u names a playlist rather than a single video.
func IsPlaylist(u string) bool {
	if !isURL(u) {
		return false
	}
	if strings.Contains(u, "/playlist?") || strings.Contains(u, "/sets/") || strings.Contains(u, "/album/") {
		return true
	}
	return strings.Contains(u, "list=") && !videoIDRegex.MatchString(u)
}

// QueryRef turns user input into a yt-dlp reference: URLs pass through,
// anything else becomes a single-result search.
func QueryRef(q string) string {
	q = strings.TrimSpace(q)
	if isURL(q) || strings.HasPrefix(q, "ytsearch") {
		return q
	}
	return "ytsearch1:" + q
}
