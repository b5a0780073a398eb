package source

import (
	"net/url"
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9-]{1,39}$`)

var allowedHosts = map[string]bool{
	"github.com":     true,
	"www.github.com": true,
}

// ParseUsername resolves the GitHub login from either a raw username or a
// github.com profile URL. A non-empty username wins over the URL.
func ParseUsername(profileURL, username string) (string, error) {
	var candidate string
	if username = strings.TrimSpace(username); username != "" {
		candidate = strings.TrimLeft(username, "@")
	} else {
		var err error
		candidate, err = usernameFromURL(strings.TrimSpace(profileURL))
		if err != nil {
			return "", err
		}
	}

	if candidate == "" || !usernamePattern.MatchString(candidate) {
		return "", invalidInput("invalid GitHub username or URL")
	}
	return candidate, nil
}

func usernameFromURL(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	u, err := url.Parse(value)
	if err != nil || !allowedHosts[strings.ToLower(u.Host)] {
		return "", invalidInput("only github.com profile URLs are supported")
	}
	first, _, _ := strings.Cut(strings.Trim(u.Path, "/"), "/")
	return first, nil
}
