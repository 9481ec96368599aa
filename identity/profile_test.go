package identity

import (
	"math/rand"
	"strings"
	"testing"
)

func TestNewProfile_Deterministic(t *testing.T) {
	a := NewProfile(rand.New(rand.NewSource(7)))
	b := NewProfile(rand.New(rand.NewSource(7)))

	if a != b {
		t.Fatalf("same seed produced different profiles: %+v vs %+v", a, b)
	}
	if a.UserAgent == "" {
		t.Fatalf("expected a user agent")
	}
	if a.ViewportWidth < 1280 || a.ViewportHeight < 700 {
		t.Fatalf("implausible viewport %dx%d", a.ViewportWidth, a.ViewportHeight)
	}
	if a.Locale != "en-US" {
		t.Fatalf("unexpected locale %s", a.Locale)
	}
}

func TestExtraHeaders_PlatformHint(t *testing.T) {
	cases := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36", `"macOS"`},
		{"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36", `"Linux"`},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", `"Windows"`},
	}
	for _, c := range cases {
		p := Profile{UserAgent: c.ua, Locale: "en-US"}
		headers := p.ExtraHeaders()
		if headers["Sec-CH-UA-Platform"] != c.want {
			t.Fatalf("platform hint for %q = %s, want %s", c.ua, headers["Sec-CH-UA-Platform"], c.want)
		}
		if headers["Accept-Language"] != "en-US,en;q=0.9" {
			t.Fatalf("unexpected accept-language %s", headers["Accept-Language"])
		}
	}
}

func TestStealthScript(t *testing.T) {
	script := StealthScript()
	for _, needle := range []string{"webdriver", "plugins", "languages", "window.chrome", "permissions.query"} {
		if !strings.Contains(script, needle) {
			t.Fatalf("stealth script missing %s", needle)
		}
	}
}
