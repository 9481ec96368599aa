package identity

import (
	"fmt"
	"math/rand"
	"strings"
)

// Profile is the browser identity a session presents: user agent, viewport
// and accept-language. One profile is picked per persistent context and kept
// for its whole lifetime so cookies and fingerprint stay consistent.
type Profile struct {
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	Locale         string
	Timezone       string
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
}

var viewports = [][2]int{
	{1920, 1080},
	{1680, 1050},
	{1600, 900},
	{1440, 900},
	{1366, 768},
}

// NewProfile picks a random identity. The rand source is injectable so tests
// get deterministic profiles.
func NewProfile(rng *rand.Rand) Profile {
	vp := viewports[rng.Intn(len(viewports))]
	return Profile{
		UserAgent:      userAgents[rng.Intn(len(userAgents))],
		ViewportWidth:  vp[0],
		ViewportHeight: vp[1],
		Locale:         "en-US",
		Timezone:       "America/New_York",
	}
}

// StealthScript returns the init script injected into every page before any
// site script runs. It hides the usual automation tells.
func StealthScript() string {
	return `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3, 4, 5] });
Object.defineProperty(navigator, 'languages', { get: () => ['en-US', 'en'] });
window.chrome = window.chrome || { runtime: {} };
const origQuery = window.navigator.permissions.query;
window.navigator.permissions.query = (parameters) => (
  parameters.name === 'notifications'
    ? Promise.resolve({ state: Notification.permission })
    : origQuery(parameters)
);`
}

// ExtraHeaders returns the request headers sent alongside every navigation.
func (p Profile) ExtraHeaders() map[string]string {
	return map[string]string{
		"Accept-Language":    fmt.Sprintf("%s,en;q=0.9", p.Locale),
		"Sec-CH-UA-Platform": platformHint(p.UserAgent),
	}
}

func platformHint(ua string) string {
	switch {
	case strings.Contains(ua, "Macintosh"):
		return `"macOS"`
	case strings.Contains(ua, "Linux"):
		return `"Linux"`
	default:
		return `"Windows"`
	}
}
