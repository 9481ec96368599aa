package httputil

import (
	"crypto/tls"
	"net/http"
	"time"
)

// Clients bundles the two HTTP clients the daemon needs outside the browser.
type Clients struct {
	Check *http.Client // liveness probes against the marketplace, redirects surfaced
	API   *http.Client // direct, backs the S3 client
}

func NewClients() *Clients {
	// Probes stay on HTTP/1.1; the marketplace fingerprints h2 clients more
	// aggressively.
	transport := &http.Transport{
		ForceAttemptHTTP2: false,
		TLSNextProto:      make(map[string]func(string, *tls.Conn) http.RoundTripper),
	}

	check := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Check: check,
		API:   &http.Client{Timeout: 30 * time.Second},
	}
}
