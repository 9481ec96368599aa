package scraper

import (
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"price_tracker/config"
	"price_tracker/identity"
)

// Session owns one persistent browser context and its single active page.
// The profile directory keeps cookies and storage across tasks, which is what
// lets a cleared challenge stay cleared. A Session must never be shared
// between goroutines; each worker launches its own with its own profile dir.
type Session struct {
	cfg     config.BrowserConfig
	profile identity.Profile

	pw      *playwright.Playwright
	context playwright.BrowserContext
	page    playwright.Page
	rng     *rand.Rand
	mu      sync.Mutex
}

func NewSession(cfg config.BrowserConfig, userDataDir string, profile identity.Profile, rng *rand.Rand) (*Session, error) {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}

	context, err := pw.Chromium.LaunchPersistentContext(userDataDir, playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:  playwright.Bool(cfg.Headless),
		UserAgent: playwright.String(profile.UserAgent),
		Viewport: &playwright.Size{
			Width:  profile.ViewportWidth,
			Height: profile.ViewportHeight,
		},
		Locale:     playwright.String(profile.Locale),
		TimezoneId: playwright.String(profile.Timezone),
		Args: []string{
			"--disable-blink-features=AutomationControlled",
			"--disable-dev-shm-usage",
			"--no-sandbox",
		},
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	if err := context.AddInitScript(playwright.Script{
		Content: playwright.String(identity.StealthScript()),
	}); err != nil {
		log.Printf("Warning: init script injection failed: %v", err)
	}
	if err := context.SetExtraHTTPHeaders(profile.ExtraHeaders()); err != nil {
		log.Printf("Warning: extra headers not applied: %v", err)
	}

	return &Session{cfg: cfg, profile: profile, pw: pw, context: context, rng: rng}, nil
}

// Page returns the session's active page, creating it on first use.
func (s *Session) Page() (playwright.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil && !s.page.IsClosed() {
		return s.page, nil
	}

	if pages := s.context.Pages(); len(pages) > 0 {
		s.page = pages[0]
		return s.page, nil
	}

	page, err := s.context.NewPage()
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	s.page = page
	return page, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		s.page.Close()
		s.page = nil
	}
	if s.context != nil {
		s.context.Close()
	}
	if s.pw != nil {
		s.pw.Stop()
	}
}

// Navigate loads a URL, optionally with a referer.
func (s *Session) Navigate(url, referer string, timeout time.Duration) error {
	page, err := s.Page()
	if err != nil {
		return err
	}

	opts := playwright.PageGotoOptions{
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	}
	if referer != "" {
		opts.Referer = playwright.String(referer)
	}
	if _, err := page.Goto(url, opts); err != nil {
		return fmt.Errorf("goto %s: %w", url, err)
	}
	return nil
}

// HTML returns the current page content.
func (s *Session) HTML() (string, error) {
	page, err := s.Page()
	if err != nil {
		return "", err
	}
	return page.Content()
}

// Reload re-navigates the current page.
func (s *Session) Reload() error {
	page, err := s.Page()
	if err != nil {
		return err
	}
	_, err = page.Reload(playwright.PageReloadOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	return err
}

// CurrentURL reports where the page ended up after navigation.
func (s *Session) CurrentURL() (string, error) {
	page, err := s.Page()
	if err != nil {
		return "", err
	}
	return page.URL(), nil
}

// AcceptCookies clicks through the consent banner if one is showing.
func (s *Session) AcceptCookies() {
	page, err := s.Page()
	if err != nil {
		return
	}

	selectors := []string{
		"button:has-text('Accept all')",
		"button:has-text('Accept All')",
		"button:has-text('Accept')",
		"#gdpr-banner-accept",
		"#gdpr-banner-accept-button",
	}
	for _, selector := range selectors {
		btn := page.Locator(selector).First()
		if visible, _ := btn.IsVisible(); visible {
			if err := btn.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(2000)}); err == nil {
				log.Printf("Accepted cookie banner via %s", selector)
				page.WaitForTimeout(500)
			}
			return
		}
	}
}

// HumanDelay sleeps a random interval in [minMs, maxMs).
func (s *Session) HumanDelay(minMs, maxMs int) {
	delay := minMs
	if maxMs > minMs {
		delay += s.rng.Intn(maxMs - minMs)
	}
	time.Sleep(time.Duration(delay) * time.Millisecond)
}

// SimulateHumanBehavior wiggles the mouse and scrolls a little.
func (s *Session) SimulateHumanBehavior() {
	page, err := s.Page()
	if err != nil {
		return
	}

	page.Mouse().Move(float64(300+s.rng.Intn(400)), float64(200+s.rng.Intn(300)))
	page.WaitForTimeout(float64(200 + s.rng.Intn(300)))
	page.Mouse().Move(float64(400+s.rng.Intn(300)), float64(300+s.rng.Intn(200)))
	page.WaitForTimeout(float64(200 + s.rng.Intn(300)))
	page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, 100+s.rng.Intn(300)))
}

// HumanSettle performs small human-like nudges for a randomized duration in
// [min, max], checking the deadline between every micro-step.
func (s *Session) HumanSettle(min, max time.Duration, deadline *Deadline) {
	page, err := s.Page()
	if err != nil {
		return
	}

	start := time.Now()
	elapsed := func() time.Duration { return time.Since(start) }

	budget := min
	if max > min {
		budget += time.Duration(s.rng.Int63n(int64(max - min)))
	}

	for i := 0; i < 3; i++ {
		if elapsed() >= budget || (deadline != nil && deadline.Exceeded()) {
			break
		}

		page.Mouse().Move(float64(80+s.rng.Intn(820)), float64(200+s.rng.Intn(600)))
		if elapsed() >= budget || (deadline != nil && deadline.Exceeded()) {
			break
		}

		switch i {
		case 0:
			if s.rng.Float64() < 0.5 {
				page.Keyboard().Press("ArrowDown")
			}
		case 1:
			page.Evaluate(fmt.Sprintf(`window.scrollBy(0, %d)`, 200+s.rng.Intn(300)))
		}

		time.Sleep(100*time.Millisecond + time.Duration(s.rng.Intn(200))*time.Millisecond)
	}

	if remaining := min - elapsed(); remaining > 0 {
		time.Sleep(remaining)
	}
}
