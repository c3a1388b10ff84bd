package steam

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	vdfSectionRe = regexp.MustCompile(`^"([^"]+)"$`)
	vdfAppKeyRe  = regexp.MustCompile(`^"(\d{1,7})"`)
)

// DefaultUserdataDirs are the locations Steam keeps per-user config under.
func DefaultUserdataDirs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".local", "share", "Steam", "userdata"),
		filepath.Join(home, ".steam", "steam", "userdata"),
	}
}

// InstalledAppIDs scans every user's localconfig.vdf under the given
// userdata directories and returns the sorted union of app ids found in
// the "apps" sections. Unreadable files are skipped.
func InstalledAppIDs(userdataDirs ...string) []int {
	seen := make(map[int]bool)
	for _, base := range userdataDirs {
		users, err := os.ReadDir(base)
		if err != nil {
			continue
		}
		for _, user := range users {
			if !user.IsDir() {
				continue
			}
			path := filepath.Join(base, user.Name(), "config", "localconfig.vdf")
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			for _, id := range appIDsFromLocalconfig(string(data)) {
				seen[id] = true
			}
			log.Debug().Str("path", path).Int("total", len(seen)).Msg("Scanned localconfig")
		}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// appIDsFromLocalconfig extracts app ids from the "apps" section of a
// localconfig.vdf document. Only that section is trusted: "apptickets"
// holds alias and internal ticket ids that can map to the same canonical
// app.
func appIDsFromLocalconfig(content string) []int {
	var ids []int
	var inSection bool
	var pending bool
	depth := 0

	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if !inSection {
			if m := vdfSectionRe.FindStringSubmatch(line); m != nil {
				pending = strings.EqualFold(m[1], "apps")
				continue
			}
			if pending && line == "{" {
				inSection = true
				pending = false
				depth = 1
				continue
			}
			pending = false
			continue
		}

		switch line {
		case "{":
			depth++
			continue
		case "}":
			depth--
			if depth <= 0 {
				inSection = false
				depth = 0
			}
			continue
		}

		if depth != 1 {
			continue
		}
		m := vdfAppKeyRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		id, err := strconv.Atoi(m[1])
		if err != nil || id <= 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}
