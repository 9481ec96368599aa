package scraper

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

var unsafeFilenameRegex = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Snapshotter writes page captures (full-page screenshot plus HTML dump) to a
// local directory. Every method is best-effort: snapshot trouble must never
// fail the task that triggered it.
type Snapshotter struct {
	dir string
}

func NewSnapshotter(dir string) *Snapshotter {
	return &Snapshotter{dir: dir}
}

// Save captures the session's current page. Returns the paths of whatever was
// written; either may be empty.
func (s *Snapshotter) Save(session *Session, label string) (pngPath, htmlPath string) {
	if s == nil || s.dir == "" {
		return "", ""
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		log.Printf("Warning: snapshot dir %s: %v", s.dir, err)
		return "", ""
	}

	base := filepath.Join(s.dir, fmt.Sprintf("%s_%s",
		time.Now().Format("20060102_150405"), SanitizeFilename(label)))

	page, err := session.Page()
	if err != nil {
		return "", ""
	}

	pngPath = base + ".png"
	if _, err := page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(pngPath),
		FullPage: playwright.Bool(true),
		Timeout:  playwright.Float(10000),
	}); err != nil {
		log.Printf("Warning: screenshot failed: %v", err)
		pngPath = ""
	}

	htmlPath = base + ".html"
	content, err := page.Content()
	if err != nil {
		log.Printf("Warning: html capture failed: %v", err)
		return pngPath, ""
	}
	if err := os.WriteFile(htmlPath, []byte(content), 0644); err != nil {
		log.Printf("Warning: html snapshot write failed: %v", err)
		return pngPath, ""
	}

	return pngPath, htmlPath
}

// SanitizeFilename strips anything unsafe for a filename and caps length.
func SanitizeFilename(text string) string {
	text = unsafeFilenameRegex.ReplaceAllString(text, "_")
	if len(text) > 100 {
		text = text[:100]
	}
	return strings.Trim(text, "_")
}
