package scraper

import (
	"testing"
	"time"
)

func TestParseDetail_Basic(t *testing.T) {
	html := loadFixture(t, "detail_basic.html")

	fields, ok := ParseDetail(html)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if fields.SellerLocation != "Portland, Oregon, United States" {
		t.Fatalf("unexpected location %q", fields.SellerLocation)
	}
	if fields.Region != "USA" {
		t.Fatalf("expected region USA, got %q", fields.Region)
	}
	if !fields.HasBestOffer {
		t.Fatalf("expected best offer")
	}
	if fields.AuctionEndTime == nil {
		t.Fatalf("expected auction end time")
	}
	want := time.Date(2026, 9, 5, 17, 0, 0, 0, time.UTC)
	if !fields.AuctionEndTime.Equal(want) {
		t.Fatalf("expected end time %s, got %s", want, fields.AuctionEndTime)
	}
}

func TestParseDetail_Ambiguous(t *testing.T) {
	html := loadFixture(t, "detail_ambiguous.html")

	if _, ok := ParseDetail(html); ok {
		t.Fatalf("expected parse to fail on a page with no title or location")
	}
}

func TestIsRemovedHTML(t *testing.T) {
	if !IsRemovedHTML(loadFixture(t, "detail_ended.html")) {
		t.Fatalf("expected ended page to be detected")
	}
	if IsRemovedHTML(loadFixture(t, "detail_basic.html")) {
		t.Fatalf("live listing flagged as removed")
	}
}

func TestClassifyRegion(t *testing.T) {
	cases := []struct {
		location string
		want     string
	}{
		{"Portland, Oregon, United States", "USA"},
		{"Dayton, Ohio, US", "USA"},
		{"Nauheim, Germany", "Europe"},
		{"London, United Kingdom", "Europe"},
		{"Nagoya, Japan", "Asia"},
		{"Sydney, Australia", ""},
		{"Moscow, Russia", ""},
		{"", ""},
	}
	for _, c := range cases {
		if got := ClassifyRegion(c.location); got != c.want {
			t.Fatalf("ClassifyRegion(%q) = %q, want %q", c.location, got, c.want)
		}
	}
}

func TestDetectAuctionEnd_DataAttribute(t *testing.T) {
	html := `<html><body>
		<h1 class="x-item-title__mainTitle">Conn 10M Tenor</h1>
		<div class="ux-seller-section__itemLocation"><span class="ux-textspans">Elkhart, Indiana, United States</span></div>
		<div id="vi-cdown" data-end-date="2026-09-01T20:15:00Z">2d 4h</div>
	</body></html>`

	fields, ok := ParseDetail(html)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if fields.AuctionEndTime == nil {
		t.Fatalf("expected auction end time from data attribute")
	}
	want := time.Date(2026, 9, 1, 20, 15, 0, 0, time.UTC)
	if !fields.AuctionEndTime.Equal(want) {
		t.Fatalf("expected end time %s, got %s", want, fields.AuctionEndTime)
	}
}

func TestParseDetail_LocationTextFallback(t *testing.T) {
	html := `<html><body>
		<h1 class="x-item-title__mainTitle">King Zephyr Tenor</h1>
		<ul><li>Item location: Cleveland, Ohio, United States</li></ul>
	</body></html>`

	fields, ok := ParseDetail(html)
	if !ok {
		t.Fatalf("expected parse to succeed")
	}
	if fields.SellerLocation != "Cleveland, Ohio, United States" {
		t.Fatalf("unexpected location %q", fields.SellerLocation)
	}
	if fields.Region != "USA" {
		t.Fatalf("expected region USA, got %q", fields.Region)
	}
}
