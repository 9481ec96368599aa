package models

import (
	"time"
)

// Search defines the scope of one recurring collection run.
// Created by an operator; the collector only touches scheduling metadata.
type Search struct {
	ID             int64      `json:"id" db:"id"`
	Term           string     `json:"term" db:"term"`
	Site           string     `json:"site" db:"site"` // ebay
	Active         bool       `json:"active" db:"active"`
	FrequencyHours int        `json:"frequency_hours" db:"frequency_hours"`
	LastRunAt      *time.Time `json:"last_run_at" db:"last_run_at"`
}

// Listing is one marketplace listing, identified by (site, external_id).
// Re-observing the same listing is an update, never a new row; rows are
// deactivated, not deleted.
type Listing struct {
	ID             int64      `json:"id" db:"id"`
	SearchID       int64      `json:"search_id" db:"search_id"`
	Site           string     `json:"site" db:"site"`
	ExternalID     string     `json:"external_id" db:"external_id"`
	Title          string     `json:"title" db:"title"`
	URL            string     `json:"url" db:"url"`
	Price          float64    `json:"price" db:"price"`
	Currency       string     `json:"currency" db:"currency"`
	Condition      string     `json:"condition" db:"condition"`
	SellerLocation string     `json:"seller_location" db:"seller_location"`
	Region         string     `json:"region" db:"region"`
	ShippingInfo   string     `json:"shipping_info" db:"shipping_info"`
	HasBestOffer   bool       `json:"has_best_offer" db:"has_best_offer"`
	AuctionEndTime *time.Time `json:"auction_end_time" db:"auction_end_time"`
	Brand          string     `json:"brand" db:"brand"`
	Model          string     `json:"model" db:"model"`
	InstrumentType string     `json:"instrument_type" db:"instrument_type"`
	FirstSeenAt    time.Time  `json:"first_seen_at" db:"first_seen_at"`
	LastSeenAt     time.Time  `json:"last_seen_at" db:"last_seen_at"`
	IsActive       bool       `json:"is_active" db:"is_active"`
	EndedAt        *time.Time `json:"ended_at" db:"ended_at"`
	ScrapedAt      time.Time  `json:"scraped_at" db:"scraped_at"`
}

// SummaryListing carries the fields the collector extracts from a single
// result-page cell. These are the only listing columns the collector writes.
type SummaryListing struct {
	ExternalID     string  `json:"external_id"`
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Price          float64 `json:"price"`
	Currency       string  `json:"currency"`
	Condition      string  `json:"condition"`
	SellerLocation string  `json:"seller_location"`
	ShippingInfo   string  `json:"shipping_info"`
	Brand          string  `json:"brand"`
	Model          string  `json:"model"`
	InstrumentType string  `json:"instrument_type"`
}

// DetailFields carries the fields the enrichment worker extracts from a
// listing detail page. These are the only listing columns the worker writes,
// besides last_seen_at and the deactivation pair.
type DetailFields struct {
	Condition      string     `json:"condition"`
	SellerLocation string     `json:"seller_location"`
	Region         string     `json:"region"`
	ShippingInfo   string     `json:"shipping_info"`
	HasBestOffer   bool       `json:"has_best_offer"`
	AuctionEndTime *time.Time `json:"auction_end_time"`
}

// EnrichmentTask is the wire message between the collector and the workers.
// attempt_count is mutated by the queue on every nack.
type EnrichmentTask struct {
	ListingID    int64  `json:"listing_id"`
	ExternalID   string `json:"external_id"`
	URL          string `json:"url"`
	SearchID     int64  `json:"search_id"`
	AttemptCount int    `json:"attempt_count"`
}

// Listing sites
const (
	SiteEbay = "ebay"
)
