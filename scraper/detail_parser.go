package scraper

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/models"
)

var (
	isoTimestampRegex = regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:Z|[+\-]\d{2}:\d{2})?`)
	usWordRegex       = regexp.MustCompile(`\bus\b`)
)

// Markers a listing page shows when the item is gone for good.
var removedMarkers = []string{
	"this listing was ended",
	"this listing has ended",
	"we looked everywhere",
	"this item is no longer available",
	"the item you selected is unavailable",
}

// IsRemovedHTML reports whether the detail page explicitly says the listing
// no longer exists.
func IsRemovedHTML(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	body := strings.ToLower(doc.Find("body").Text())
	for _, marker := range removedMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

var locationSelectors = []string{
	"div.ux-seller-section__itemLocation span.ux-textspans",
	"div.ux-seller-section__itemLocation",
	"div.d-item-location",
	"#itemLocation",
	`span[itemprop="availableAtOrFrom"]`,
}

// ParseDetail extracts the worker-owned fields from a listing detail page.
// ok is false when the page does not look like a listing page at all; the
// caller treats that as a retryable parse failure.
func ParseDetail(html string) (fields *models.DetailFields, ok bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}

	f := &models.DetailFields{}

	for _, sel := range locationSelectors {
		if text := strings.TrimSpace(doc.Find(sel).First().Text()); text != "" {
			f.SellerLocation = text
			break
		}
	}
	if f.SellerLocation == "" {
		doc.Find("span, div, li").EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i > 2000 {
				return false
			}
			text := strings.TrimSpace(s.Text())
			lower := strings.ToLower(text)
			if strings.HasPrefix(lower, "located in") {
				f.SellerLocation = strings.TrimSpace(strings.TrimPrefix(text, "Located in"))
				return false
			}
			if strings.Contains(lower, "item location") {
				if _, after, found := strings.Cut(text, ":"); found {
					f.SellerLocation = strings.TrimSpace(after)
				} else {
					f.SellerLocation = text
				}
				return false
			}
			return true
		})
	}
	f.Region = ClassifyRegion(f.SellerLocation)

	body := strings.ToLower(doc.Find("body").Text())
	f.HasBestOffer = strings.Contains(body, "best offer") || strings.Contains(body, "make offer")

	f.AuctionEndTime = detectAuctionEnd(doc, html)

	// A listing page always carries a title block. A page with neither a
	// title nor a location is probably an error page we failed to classify.
	hasTitle := doc.Find(".x-item-title__mainTitle, #itemTitle, h1.it-ttl").Length() > 0
	if !hasTitle && f.SellerLocation == "" {
		return nil, false
	}

	return f, true
}

// ClassifyRegion maps a seller location string to a coarse region.
func ClassifyRegion(location string) string {
	if location == "" {
		return ""
	}
	ll := strings.ToLower(location)

	// "us" needs a word boundary or it swallows Australia and Russia.
	if strings.Contains(ll, "united states") || strings.Contains(ll, "usa") ||
		strings.Contains(ll, "u.s.a") || usWordRegex.MatchString(ll) {
		return "USA"
	}

	europeTerms := []string{
		"united kingdom", "england", "scotland", "wales", "northern ireland", "ireland",
		"france", "germany", "italy", "spain", "portugal", "belgium", "netherlands",
		"luxembourg", "austria", "switzerland", "sweden", "norway", "denmark", "finland",
		"iceland", "poland", "czech", "slovakia", "hungary", "greece", "romania",
		"bulgaria", "croatia", "slovenia", "estonia", "latvia", "lithuania", "serbia",
		"bosnia", "montenegro", "albania", "north macedonia", "moldova", "ukraine",
	}
	for _, term := range europeTerms {
		if strings.Contains(ll, term) {
			return "Europe"
		}
	}

	asiaTerms := []string{"china", "hong kong", "taiwan", "japan", "korea", "singapore"}
	for _, term := range asiaTerms {
		if strings.Contains(ll, term) {
			return "Asia"
		}
	}
	return ""
}

// detectAuctionEnd tries the structured sources first, then falls back to a
// raw ISO timestamp anywhere in the document.
func detectAuctionEnd(doc *goquery.Document, html string) *time.Time {
	if t := auctionEndFromJSONLD(doc); t != nil {
		return t
	}

	attrCandidates := doc.Find("div#vi-cdown, [data-end-date], [data-endtime], [data-end_datetime]")
	var fromAttr string
	attrCandidates.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, attr := range []string{"data-end-date", "data-endtime", "data-end_datetime"} {
			if v, found := s.Attr(attr); found && v != "" {
				fromAttr = v
				return false
			}
		}
		return true
	})
	if t := parseISOTime(fromAttr); t != nil {
		return t
	}

	if v, found := doc.Find("time[datetime]").First().Attr("datetime"); found {
		if t := parseISOTime(v); t != nil {
			return t
		}
	}

	if m := isoTimestampRegex.FindString(html); m != "" {
		return parseISOTime(m)
	}
	return nil
}

func auctionEndFromJSONLD(doc *goquery.Document) *time.Time {
	endKeys := map[string]bool{
		"enddate":          true,
		"availabilityends": true,
		"pricevaliduntil":  true,
		"end_time":         true,
		"end":              true,
	}

	var result *time.Time
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if raw == "" || (raw[0] != '{' && raw[0] != '[') {
			return true
		}

		var data interface{}
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return true
		}

		var walk func(obj interface{})
		walk = func(obj interface{}) {
			if result != nil {
				return
			}
			switch v := obj.(type) {
			case map[string]interface{}:
				for key, val := range v {
					switch inner := val.(type) {
					case map[string]interface{}, []interface{}:
						walk(inner)
					case string:
						if endKeys[strings.ToLower(key)] {
							if t := parseISOTime(inner); t != nil {
								result = t
								return
							}
						}
					}
				}
			case []interface{}:
				for _, item := range v {
					walk(item)
				}
			}
		}
		walk(data)
		return result == nil
	})
	return result
}

func parseISOTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
