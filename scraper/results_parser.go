package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"price_tracker/models"
)

var (
	priceRegex  = regexp.MustCompile(`\d+\.?\d*`)
	itemIDRegex = regexp.MustCompile(`/itm/(\d+)`)
)

// ParseResults extracts summary listings from a search results page. Handles
// both the old .s-item layout and the newer .s-card layout; cells missing a
// title, item id or price are skipped.
func ParseResults(html string) ([]models.SummaryListing, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse results html: %w", err)
	}

	var listings []models.SummaryListing
	doc.Find(".s-item, .s-card").Each(func(_ int, item *goquery.Selection) {
		title := firstText(item,
			".s-card__title .su-styled-text",
			".s-card__title a .su-styled-text",
			".s-item__title",
		)
		if title == "" || title == "Shop on eBay" {
			return
		}

		rawURL := firstAttr(item, "href", "a[href*='/itm/']", ".s-item__link")
		externalID := ExternalIDFromURL(rawURL)
		if externalID == "" {
			return
		}

		priceText := firstText(item,
			".s-card__price .su-styled-text",
			".s-card__attribute-row .su-styled-text.s-card__price",
			".s-item__price",
		)
		price, ok := parsePrice(priceText)
		if !ok {
			return
		}

		conditionText := firstText(item,
			".s-card__subtitle .su-styled-text",
			".s-item__condition", ".s-item__subtitle", ".s-item__details",
		)

		location := firstText(item, ".s-item__location")
		if location == "" {
			item.Find(".s-card__attribute-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
				text := strings.TrimSpace(row.Text())
				if strings.HasPrefix(text, "Located in ") {
					location = strings.TrimPrefix(text, "Located in ")
					return false
				}
				return true
			})
		}
		location = strings.TrimPrefix(location, "Located in ")
		location = strings.TrimPrefix(location, "from ")

		shipping := firstText(item, ".s-item__shipping")
		if shipping == "" {
			item.Find(".s-card__attribute-row").EachWithBreak(func(_ int, row *goquery.Selection) bool {
				text := strings.TrimSpace(row.Text())
				lower := strings.ToLower(text)
				if strings.Contains(lower, "delivery") || strings.Contains(lower, "shipping") {
					shipping = text
					return false
				}
				return true
			})
		}

		brand, model := classifyBrandModel(title)

		listings = append(listings, models.SummaryListing{
			ExternalID:     externalID,
			Title:          title,
			URL:            CanonicalItemURL(externalID),
			Price:          price,
			Currency:       "USD",
			Condition:      normalizeCondition(conditionText),
			SellerLocation: location,
			ShippingInfo:   shipping,
			Brand:          brand,
			Model:          model,
			InstrumentType: classifyInstrumentType(title),
		})
	})

	return listings, nil
}

// CanonicalItemURL strips tracking parameters down to the bare item URL.
func CanonicalItemURL(externalID string) string {
	return "https://www.ebay.com/itm/" + externalID
}

// ExternalIDFromURL pulls the numeric item id out of any item URL form.
func ExternalIDFromURL(rawURL string) string {
	m := itemIDRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

func firstText(s *goquery.Selection, selectors ...string) string {
	for _, sel := range selectors {
		if text := strings.TrimSpace(s.Find(sel).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func firstAttr(s *goquery.Selection, attr string, selectors ...string) string {
	for _, sel := range selectors {
		if v, ok := s.Find(sel).First().Attr(attr); ok && v != "" {
			return v
		}
	}
	return ""
}

func parsePrice(text string) (float64, bool) {
	normalized := strings.ReplaceAll(text, ",", "")
	m := priceRegex.FindString(normalized)
	if m == "" {
		return 0, false
	}
	price, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return price, true
}

func normalizeCondition(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "used"), strings.Contains(lower, "pre-owned"):
		return "Used"
	case strings.Contains(lower, "open box"):
		return "Open box"
	case strings.Contains(lower, "for parts"), strings.Contains(lower, "not working"):
		return "For parts or not working"
	case strings.Contains(lower, "refurbished"):
		return "Certified - Refurbished"
	case strings.Contains(lower, "new"):
		return "New"
	default:
		return "Not Specified"
	}
}

var yamahaModelRegex = regexp.MustCompile(`(?i)Y[AT]S?[-\s]?(\d+)`)

// classifyBrandModel derives a saxophone brand/model pair from a listing
// title. The taxonomy is the vintage-horn market this tracker watches.
func classifyBrandModel(title string) (string, string) {
	tl := strings.ToLower(title)
	switch {
	case strings.Contains(tl, "selmer"):
		if strings.Contains(tl, "mark vi") {
			return "Selmer", "Mark VI"
		}
		return "Selmer", ""
	case strings.Contains(tl, "yamaha"):
		if m := yamahaModelRegex.FindStringSubmatch(title); m != nil {
			return "Yamaha", "YTS-" + m[1]
		}
		return "Yamaha", ""
	case strings.Contains(tl, "king"):
		return "King", kingModel(tl)
	case strings.Contains(tl, "eastern"):
		return "Eastern Music", ""
	case strings.Contains(tl, "ic/"), strings.Contains(tl, "precision"):
		return "IC/Precision", ""
	case strings.Contains(tl, "conn"):
		return "Conn", connModel(tl)
	case strings.Contains(tl, "sml"):
		return "SML", ""
	case strings.Contains(tl, "keilwerth"):
		return "Keilwerth", keilwerthModel(tl)
	case strings.Contains(tl, "couf"):
		return "Couf", coufModel(tl)
	case strings.Contains(tl, "buffet"):
		return "Buffet", buffetModel(tl)
	case strings.Contains(tl, "yanagisawa"):
		return "Yanagisawa", yanagisawaModel(tl)
	case strings.Contains(tl, "martin"):
		return "Martin", martinModel(tl)
	}
	return "", ""
}

func kingModel(tl string) string {
	switch {
	case strings.Contains(tl, "super 20"):
		if strings.Contains(tl, "silversonic") {
			return "Super 20 Silversonic"
		}
		return "Super 20"
	case strings.Contains(tl, "super 21"):
		return "Super 21"
	case strings.Contains(tl, "zephyr"):
		if strings.Contains(tl, "special") {
			return "Zephyr Special"
		}
		return "Zephyr"
	case strings.Contains(tl, "empire"):
		return "Empire"
	}
	return ""
}

func connModel(tl string) string {
	switch {
	case strings.Contains(tl, "6m"), strings.Contains(tl, "6 m"):
		return "6M"
	case strings.Contains(tl, "10m"), strings.Contains(tl, "10 m"):
		return "10M"
	case strings.Contains(tl, "new wonder"):
		return "New Wonder"
	case strings.Contains(tl, "director"):
		return "Director"
	case strings.Contains(tl, "lady face"):
		return "Lady Face"
	}
	return ""
}

func keilwerthModel(tl string) string {
	switch {
	case strings.Contains(tl, "sx90r"):
		return "SX90R"
	case strings.Contains(tl, "sx90"):
		return "SX90"
	case strings.Contains(tl, "shadow"):
		return "Shadow"
	}
	return ""
}

func coufModel(tl string) string {
	switch {
	case strings.Contains(tl, "superba"):
		return "Superba"
	case strings.Contains(tl, "studio"):
		return "Studio"
	}
	return ""
}

func buffetModel(tl string) string {
	switch {
	case strings.Contains(tl, "super dynaction"):
		return "Super Dynaction"
	case strings.Contains(tl, "dynaction"):
		return "Dynaction"
	case strings.Contains(tl, "s1"):
		return "S1"
	}
	return ""
}

func yanagisawaModel(tl string) string {
	switch {
	case strings.Contains(tl, "wo10"), strings.Contains(tl, "wo-10"):
		return "WO10"
	case strings.Contains(tl, "wo1"), strings.Contains(tl, "wo-1"):
		return "WO1"
	case strings.Contains(tl, "wo2"), strings.Contains(tl, "wo-2"):
		return "WO2"
	case strings.Contains(tl, "a991"):
		return "A991"
	case strings.Contains(tl, "t991"):
		return "T991"
	}
	return ""
}

func martinModel(tl string) string {
	switch {
	case strings.Contains(tl, "committee"):
		return "Committee"
	case strings.Contains(tl, "handcraft"):
		return "Handcraft"
	case strings.Contains(tl, "indiana"):
		return "Indiana"
	case strings.Contains(tl, "magna"):
		return "Magna"
	}
	return ""
}

func classifyInstrumentType(title string) string {
	tl := strings.ToLower(title)
	switch {
	case strings.Contains(tl, "tenor"):
		return "Tenor"
	case strings.Contains(tl, "alto"):
		return "Alto"
	case strings.Contains(tl, "soprano"):
		return "Soprano"
	case strings.Contains(tl, "baritone"):
		return "Baritone"
	}
	return ""
}
