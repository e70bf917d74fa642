package mediaid

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/NikitaDmitryuk/tube-proxy/internal/utils"
)

const idLength = 11

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var watchHosts = map[string]bool{
	"youtube.com":       true,
	"www.youtube.com":   true,
	"m.youtube.com":     true,
	"music.youtube.com": true,
}

var pathPrefixes = []string{"shorts/", "embed/", "live/", "v/"}

// Parse validates raw and returns the bare media identifier.
// Accepted shapes are a bare 11 character token or a known host URL that embeds one.
func Parse(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if IsBare(raw) {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", invalid(raw)
	}

	host := strings.ToLower(u.Hostname())
	path := strings.Trim(u.Path, "/")

	var candidate string
	switch {
	case host == "youtu.be" || host == "www.youtu.be":
		candidate = firstSegment(path)
	case watchHosts[host]:
		if path == "watch" {
			candidate = u.Query().Get("v")
			break
		}
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(path, prefix) {
				candidate = firstSegment(strings.TrimPrefix(path, prefix))
				break
			}
		}
	}

	if !IsBare(candidate) {
		return "", invalid(raw)
	}
	return candidate, nil
}

// IsBare reports whether s is a bare media identifier.
func IsBare(s string) bool {
	return len(s) == idLength && idPattern.MatchString(s)
}

// WatchURL is the canonical page URL for a media identifier.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

func firstSegment(path string) string {
	if i := strings.IndexByte(path, '/'); i >= 0 {
		return path[:i]
	}
	return path
}

func invalid(raw string) error {
	return utils.WrapError(utils.ErrInvalidMediaID, "unrecognized media identifier", map[string]any{
		"value": raw,
	})
}
