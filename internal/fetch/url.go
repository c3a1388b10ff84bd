package fetch

import (
	"fmt"
	"net/url"
	"strings"
)

var youtubeHosts = map[string]bool{
	"youtube.com":       true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
	"youtu.be":          true,
}

// NormalizeURL turns user input into a canonical YouTube URL: a scheme is
// added to bare domains, a bare video id becomes a watch URL, and
// anything pointing off YouTube is rejected.
func NormalizeURL(value string) (string, error) {
	candidate := strings.TrimSpace(value)
	if candidate == "" {
		return "", fmt.Errorf("video URL is required")
	}

	if !strings.Contains(candidate, "://") {
		switch {
		case hasYoutubePrefix(candidate):
			candidate = "https://" + candidate
		case !strings.Contains(candidate, "/") && !strings.Contains(candidate, " "):
			candidate = "https://www.youtube.com/watch?v=" + candidate
		}
	}

	parsed, err := url.Parse(candidate)
	if err != nil {
		return "", fmt.Errorf("invalid video URL: %w", err)
	}
	host := strings.ToLower(parsed.Host)
	host = strings.TrimPrefix(host, "www.")
	if !youtubeHosts[host] {
		return "", fmt.Errorf("only YouTube links are supported")
	}
	return candidate, nil
}

func hasYoutubePrefix(s string) bool {
	for _, prefix := range []string{
		"youtube.com", "www.youtube.com", "m.youtube.com", "music.youtube.com", "youtu.be",
	} {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
