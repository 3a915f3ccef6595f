package daemon

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// artworkLookup resolves album cover URLs through the iTunes Search
// API. Results are cached for the daemon's lifetime, including misses,
// so a library full of untagged albums does not hammer the API.
type artworkLookup struct {
	mu       sync.Mutex
	cache    map[string]string
	client   *http.Client
	endpoint string
}

func newArtworkLookup() *artworkLookup {
	return &artworkLookup{
		cache:    make(map[string]string),
		client:   &http.Client{Timeout: 3 * time.Second},
		endpoint: "https://itunes.apple.com/search",
	}
}

// Lookup returns a cover URL for the album, or "" when none is found.
// Covers are optional; Lookup never reports errors.
func (a *artworkLookup) Lookup(artist, album string) string {
	if artist == "" && album == "" {
		return ""
	}
	key := strings.ToLower(artist) + "|" + strings.ToLower(album)

	a.mu.Lock()
	cover, cached := a.cache[key]
	a.mu.Unlock()
	if cached {
		return cover
	}

	cover = a.search(artist, album)

	a.mu.Lock()
	a.cache[key] = cover
	a.mu.Unlock()
	return cover
}

func (a *artworkLookup) search(artist, album string) string {
	params := url.Values{}
	params.Set("term", strings.TrimSpace(artist+" "+album))
	params.Set("entity", "album")
	params.Set("limit", "1")

	resp, err := a.client.Get(a.endpoint + "?" + params.Encode())
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var body struct {
		Results []struct {
			ArtworkURL100 string `json:"artworkUrl100"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return ""
	}
	if len(body.Results) == 0 {
		return ""
	}

	// iTunes serves any resolution under the same path scheme.
	return strings.Replace(body.Results[0].ArtworkURL100, "100x100bb", "600x600bb", 1)
}
