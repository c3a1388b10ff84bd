package fetch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const (
	maxSearchLimit = 25
	// maxResultSeconds filters out results too long to be theme music.
	maxResultSeconds = 15 * 60
)

// SearchResult is one candidate from a media search.
type SearchResult struct {
	ID       string
	Title    string
	Uploader string
	// Duration in seconds; zero when the source did not report one.
	Duration int
	URL      string
}

// Search runs a ytsearch query and returns up to limit results, filtered
// to plausibly theme-sized media.
func (f *Fetcher) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query is required")
	}
	if limit < 1 {
		limit = 1
	}
	if limit > maxSearchLimit {
		limit = maxSearchLimit
	}

	inv, ok := f.resolveInvocation()
	if !ok {
		return nil, errNotInstalled
	}

	stdout, stderr, err := f.runner.Run(ctx, commandTimeout, inv.Path,
		"--no-warnings",
		"--skip-download",
		"--flat-playlist",
		"--print", "%(id)s\t%(title)s\t%(uploader)s\t%(duration)s\t%(url)s",
		fmt.Sprintf("ytsearch%d:%s", limit, query),
	)
	if err != nil {
		return nil, commandError("search failed", stderr, stdout, err)
	}

	return parseSearchOutput(stdout), nil
}

// parseSearchOutput parses yt-dlp's tab-separated print lines. Malformed
// lines are skipped; results longer than the duration cap are dropped.
func parseSearchOutput(stdout string) []SearchResult {
	var results []SearchResult
	for _, raw := range strings.Split(stdout, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "\t")
		if len(parts) < 2 {
			continue
		}

		id := strings.TrimSpace(parts[0])
		if id == "" {
			continue
		}
		title := strings.TrimSpace(parts[1])
		if title == "" {
			title = id
		}

		var uploader string
		if len(parts) > 2 {
			uploader = strings.TrimSpace(parts[2])
		}

		var duration int
		if len(parts) > 3 {
			if raw := strings.TrimSpace(parts[3]); raw != "" {
				if v, err := strconv.ParseFloat(raw, 64); err == nil {
					duration = int(v)
				}
			}
		}
		if duration > maxResultSeconds {
			continue
		}

		var url string
		if len(parts) > 4 {
			url = strings.TrimSpace(parts[4])
		}
		if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
			url = "https://www.youtube.com/watch?v=" + id
		}

		results = append(results, SearchResult{
			ID:       id,
			Title:    title,
			Uploader: uploader,
			Duration: duration,
			URL:      url,
		})
	}
	return results
}

// PreviewStreamURL resolves a direct audio stream URL for in-place
// preview without downloading.
func (f *Fetcher) PreviewStreamURL(ctx context.Context, videoURL string) (string, error) {
	inv, ok := f.resolveInvocation()
	if !ok {
		return "", errNotInstalled
	}
	normalized, err := NormalizeURL(videoURL)
	if err != nil {
		return "", err
	}

	stdout, stderr, err := f.runner.Run(ctx, commandTimeout, inv.Path,
		"--no-warnings",
		"--no-playlist",
		"--get-url",
		"-f", "ba[ext=m4a]/bestaudio/best",
		normalized,
	)
	if err != nil {
		return "", commandError("failed to resolve preview stream", stderr, stdout, err)
	}

	for _, raw := range strings.Split(stdout, "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "http://") || strings.HasPrefix(line, "https://") {
			return line, nil
		}
	}
	return "", fmt.Errorf("yt-dlp did not return a playable preview stream URL")
}
