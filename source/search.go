package source

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/leeineian/siren/sys"
	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
)

const (
	searchTimeout = 2300 * time.Millisecond
	searchTTL     = time.Hour
	maxResults    = 25
)

type SearchResult struct {
	Title string
	URL   string
}

type cachedSearch struct {
	results   []SearchResult
	expiresAt time.Time
}

// Searcher merges YouTube Music and YouTube results for autocomplete.
type Searcher struct {
	ytPrefix  string
	ytmPrefix string

	mu    sync.RWMutex
	cache map[string]cachedSearch
}

func NewSearcher(cfg *sys.Config) *Searcher {
	return &Searcher{
		ytPrefix:  cfg.YoutubePrefix,
		ytmPrefix: cfg.YTMusicPrefix,
		cache:     make(map[string]cachedSearch),
	}
}

// splitPrefix strips a source prefix and reports whether YouTube results
// should rank first.
func (s *Searcher) splitPrefix(q string) (string, bool) {
	upper := strings.ToUpper(q)
	switch {
	case s.ytPrefix != "" && strings.HasPrefix(upper, strings.ToUpper(s.ytPrefix)):
		return strings.TrimSpace(q[len(s.ytPrefix):]), true
	case s.ytmPrefix != "" && strings.HasPrefix(upper, strings.ToUpper(s.ytmPrefix)):
		return strings.TrimSpace(q[len(s.ytmPrefix):]), false
	}
	return q, false
}

func (s *Searcher) Search(ctx context.Context, q string) []SearchResult {
	s.mu.RLock()
	if item, ok := s.cache[q]; ok && time.Now().Before(item.expiresAt) {
		s.mu.RUnlock()
		return item.results
	}
	s.mu.RUnlock()

	query, youtubeFirst := s.splitPrefix(q)
	if query == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		ytm, yt []SearchResult
		seen    = make(map[string]bool)
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			return
		}
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			artist := ""
			if len(v.Artists) > 0 {
				artist = " - " + v.Artists[0].Name
			}
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, SearchResult{
					URL:   "https://music.youtube.com/watch?v=" + v.VideoID,
					Title: sys.TruncateWithPreserve(v.Title, 100, s.ytmPrefix+" ", artist),
				})
			}
			mu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		r, err := ytsearch.NewClient(nil).Search(ctx, query)
		if err != nil {
			return
		}
		for _, v := range r.Results {
			mu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, SearchResult{
					URL:   "https://www.youtube.com/watch?v=" + v.VideoID,
					Title: sys.TruncateWithPreserve(v.Title, 100, s.ytPrefix+" ", ""),
				})
			}
			mu.Unlock()
		}
	}()

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}

	mu.Lock()
	defer mu.Unlock()
	out := mergeResults(ytm, yt, youtubeFirst)

	if len(out) > 0 {
		s.mu.Lock()
		s.cache[q] = cachedSearch{results: out, expiresAt: time.Now().Add(searchTTL)}
		s.mu.Unlock()
	}
	return out
}

func mergeResults(ytm, yt []SearchResult, youtubeFirst bool) []SearchResult {
	first, second := ytm, yt
	if youtubeFirst {
		first, second = yt, ytm
	}
	out := make([]SearchResult, 0, len(first)+len(second))
	out = append(out, first...)
	out = append(out, second...)
	if len(out) > maxResults {
		out = out[:maxResults]
	}
	return out
}

// Sweep drops expired entries.
func (s *Searcher) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	now := time.Now()
	for k, v := range s.cache {
		if now.After(v.expiresAt) {
			delete(s.cache, k)
			n++
		}
	}
	return n
}
