// Package steamstore resolves app display names from the storefront API,
// with a community-page scrape as fallback for apps the API will not
// answer for.
package steamstore

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	storeBaseURL     = "https://store.steampowered.com"
	communityBaseURL = "https://steamcommunity.com"
	requestTimeout   = 10 * time.Second
	userAgent        = "themedeckd/1.0 (+https://github.com/themedeck/themedeckd)"

	// ChunkSize bounds how many lookups one ResolveNames batch issues
	// before yielding, keeping request bursts polite.
	ChunkSize = 20
)

var (
	canonicalAppRe = regexp.MustCompile(`(?i)/app/(\d+)`)
	ogTitleRe      = regexp.MustCompile(`(?i)<meta[^>]+property=["']og:title["'][^>]+content=["']([^"']+)["']`)
	titleTagRe     = regexp.MustCompile(`(?is)<title>(.*?)</title>`)

	communityPrefixRe = regexp.MustCompile(`(?i)^\s*Steam Community\s*::\s*`)
	onSteamSuffixRe   = regexp.MustCompile(`(?i)\s+on\s+Steam\s*$`)
	communitySuffixRe = regexp.MustCompile(`(?i)\s*::\s*Steam Community\s*$`)
)

// Client is the HTTP client for storefront name resolution.
type Client struct {
	store     *resty.Client
	community *resty.Client
}

// NewClient creates a storefront client with sensible defaults.
func NewClient() *Client {
	return newClient(storeBaseURL, communityBaseURL)
}

func newClient(storeURL, communityURL string) *Client {
	return &Client{
		store: resty.New().
			SetBaseURL(storeURL).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", userAgent),
		community: resty.New().
			SetBaseURL(communityURL).
			SetTimeout(requestTimeout).
			SetHeader("User-Agent", userAgent).
			SetHeader("Accept-Language", "en-US,en;q=0.9"),
	}
}

// AppName resolves the display name for one app id. The storefront API is
// tried first; apps it will not answer for fall back to the community page
// scrape. An empty name with nil error means the app could not be resolved.
func (c *Client) AppName(appID int) (string, error) {
	if appID <= 0 {
		return "", nil
	}

	name, err := c.appDetailsName(appID)
	if err != nil {
		return "", err
	}
	if name != "" {
		return name, nil
	}
	return c.communityName(appID)
}

// ResolveNames resolves many app ids, processing them in chunks of
// ChunkSize. Lookup failures are logged and skipped; the result holds only
// the ids that resolved.
func (c *Client) ResolveNames(appIDs []int) map[int]string {
	resolved := make(map[int]string)
	for start := 0; start < len(appIDs); start += ChunkSize {
		end := start + ChunkSize
		if end > len(appIDs) {
			end = len(appIDs)
		}
		for _, id := range appIDs[start:end] {
			name, err := c.AppName(id)
			if err != nil {
				log.Debug().Err(err).Int("app_id", id).Msg("App name lookup failed")
				continue
			}
			if name != "" {
				resolved[id] = name
			}
		}
	}
	return resolved
}

func (c *Client) appDetailsName(appID int) (string, error) {
	resp, err := c.store.R().
		SetQueryParams(map[string]string{
			"appids":  strconv.Itoa(appID),
			"filters": "basic",
			"l":       "english",
		}).
		Get("/api/appdetails")
	if err != nil {
		return "", fmt.Errorf("failed to fetch app details for %d: %w", appID, err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("store api returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	var payload map[string]struct {
		Success bool `json:"success"`
		Data    struct {
			Name string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return "", fmt.Errorf("failed to parse app details response: %w", err)
	}

	entry, ok := payload[strconv.Itoa(appID)]
	if !ok || !entry.Success {
		return "", nil
	}
	return strings.TrimSpace(entry.Data.Name), nil
}

func (c *Client) communityName(appID int) (string, error) {
	resp, err := c.community.R().
		SetQueryParam("l", "english").
		Get(fmt.Sprintf("/app/%d/", appID))
	if err != nil {
		return "", fmt.Errorf("failed to fetch community page for %d: %w", appID, err)
	}
	// The community site rate-limits occasionally; skip quietly.
	if resp.StatusCode() == http.StatusTooManyRequests {
		return "", nil
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("community returned status %d: %s", resp.StatusCode(), resp.Status())
	}

	// Redirects normalize alias ids to the canonical app id; prefer the
	// API answer for that id when it differs.
	if canonical := canonicalAppID(finalURL(resp)); canonical > 0 && canonical != appID {
		name, err := c.appDetailsName(canonical)
		if err == nil && name != "" {
			return name, nil
		}
	}

	return nameFromCommunityPage(string(resp.Body())), nil
}

func finalURL(resp *resty.Response) string {
	raw := resp.RawResponse
	if raw == nil || raw.Request == nil || raw.Request.URL == nil {
		return ""
	}
	return raw.Request.URL.String()
}

func canonicalAppID(url string) int {
	match := canonicalAppRe.FindStringSubmatch(url)
	if match == nil {
		return 0
	}
	id, err := strconv.Atoi(match[1])
	if err != nil {
		return 0
	}
	return id
}

// nameFromCommunityPage extracts a display name from community page
// markup: og:title first, the title tag as fallback, with the site's
// decorations trimmed off.
func nameFromCommunityPage(body string) string {
	match := ogTitleRe.FindStringSubmatch(body)
	if match == nil {
		match = titleTagRe.FindStringSubmatch(body)
	}
	if match == nil {
		return ""
	}

	title := strings.TrimSpace(html.UnescapeString(match[1]))
	title = communityPrefixRe.ReplaceAllString(title, "")
	title = onSteamSuffixRe.ReplaceAllString(title, "")
	title = communitySuffixRe.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)

	switch strings.ToLower(title) {
	case "", "steam community", "error", "access denied":
		return ""
	}
	return title
}
