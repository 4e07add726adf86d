package producer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/entrhq/translator/pkg/browser"
)

// Fetcher returns the rendered HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// BrowserFetcher renders pages in a headless browser so script-built
// content is included.
type BrowserFetcher struct {
	Manager *browser.SessionManager

	// WaitUntil is the navigation load state, "networkidle" by default.
	WaitUntil string
}

const fetchSession = "source"

// Fetch opens url in a fresh session and returns the page HTML.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := f.Manager.Initialize(); err != nil {
		return "", err
	}
	s, err := f.Manager.StartSession(fetchSession, browser.SessionOptions{Headless: true})
	if err != nil {
		return "", err
	}
	defer f.Manager.CloseSession(fetchSession)

	waitUntil := f.WaitUntil
	if waitUntil == "" {
		waitUntil = "networkidle"
	}
	if err := s.Navigate(url, browser.NavigateOptions{WaitUntil: waitUntil}); err != nil {
		return "", err
	}
	return s.Content()
}

// FileFetcher reads saved HTML from disk. The url passed to Fetch is a path.
type FileFetcher struct{}

// Fetch reads the file at path.
func (FileFetcher) Fetch(_ context.Context, path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("producer: read %s: %w", path, err)
	}
	return string(raw), nil
}

// CreateFrom fetches source with f and creates a Task for originURL.
func (p *Producer) CreateFrom(ctx context.Context, f Fetcher, source, originURL string) (*Summary, error) {
	doc, err := f.Fetch(ctx, source)
	if err != nil {
		return nil, err
	}
	_, sum, err := p.Create(ctx, originURL, strings.NewReader(doc))
	if err != nil {
		return nil, err
	}
	return &sum, nil
}
