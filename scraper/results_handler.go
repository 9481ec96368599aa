package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"price_tracker/config"
	"price_tracker/models"
)

var ErrBlocked = errors.New("results page served a bot challenge")

const resultsSelector = ".s-item, .s-card"

// ResultsFetcher drives the browser through search result pages. Page 1 goes
// through the real search UI (home page, type the term, press Enter) so the
// session picks up cookies the way a person would; later pages navigate
// directly.
type ResultsFetcher struct {
	session *Session
	site    *config.SiteConfig
	timeout time.Duration

	lastResultsURL string
	searched       bool
}

func NewResultsFetcher(session *Session, site *config.SiteConfig) *ResultsFetcher {
	return &ResultsFetcher{session: session, site: site, timeout: 30 * time.Second}
}

// LastResultsURL is the referer enrichment navigation should present.
func (f *ResultsFetcher) LastResultsURL() string {
	if f.lastResultsURL != "" {
		return f.lastResultsURL
	}
	return f.site.BaseURL
}

// FetchPage loads one results page and parses its cells.
func (f *ResultsFetcher) FetchPage(ctx context.Context, term string, pageNum int) ([]models.SummaryListing, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if pageNum == 1 && !f.searched {
		if err := f.searchViaUI(term); err != nil {
			log.Printf("Warning: UI search flow failed (%v), falling back to direct URL", err)
			if err := f.session.Navigate(f.searchURL(term, 1), f.site.BaseURL, f.timeout); err != nil {
				return nil, err
			}
		}
		f.searched = true
	} else {
		if f.site.RateLimitMS > 0 {
			time.Sleep(time.Duration(f.site.RateLimitMS) * time.Millisecond)
		}
		if err := f.session.Navigate(f.searchURL(term, pageNum), f.lastResultsURL, f.timeout); err != nil {
			return nil, err
		}
	}

	f.session.HumanDelay(1000, 2500)
	f.waitForResults()

	html, err := f.session.HTML()
	if err != nil {
		return nil, fmt.Errorf("read results page %d: %w", pageNum, err)
	}
	if IsBlockedHTMLWith(html, f.site.BlockMarkers) {
		return nil, ErrBlocked
	}

	if current, err := f.session.CurrentURL(); err == nil {
		f.lastResultsURL = current
	}

	listings, err := ParseResults(html)
	if err != nil {
		return nil, err
	}
	log.Printf("Page %d: parsed %d listings", pageNum, len(listings))
	return listings, nil
}

func (f *ResultsFetcher) searchViaUI(term string) error {
	home := f.site.Endpoints["home"]
	if home == "" {
		home = f.site.BaseURL
	}
	if err := f.session.Navigate(home, "", f.timeout); err != nil {
		return err
	}
	f.session.AcceptCookies()

	page, err := f.session.Page()
	if err != nil {
		return err
	}

	box := page.Locator("#gh-ac")
	if err := box.WaitFor(playwright.LocatorWaitForOptions{
		Timeout: playwright.Float(float64(f.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("search box not visible: %w", err)
	}
	if err := box.Fill(term); err != nil {
		return fmt.Errorf("fill search box: %w", err)
	}

	f.session.HumanDelay(300, 700)
	if err := page.Keyboard().Press("Enter"); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}

	if _, err := page.WaitForSelector(resultsSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(f.timeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("results not visible after search: %w", err)
	}
	return nil
}

func (f *ResultsFetcher) waitForResults() {
	page, err := f.session.Page()
	if err != nil {
		return
	}
	if _, err := page.WaitForSelector(resultsSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(float64(f.timeout.Milliseconds())),
	}); err != nil {
		log.Printf("Warning: results selector not found, parsing whatever loaded")
	}
}

func (f *ResultsFetcher) searchURL(term string, pageNum int) string {
	path := fmt.Sprintf(f.site.SearchPath, url.QueryEscape(term), pageNum)
	return strings.TrimSuffix(f.site.BaseURL, "/") + path
}
