package search

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// BrowserBackend searches through a headless Chrome instance driven over the
// DevTools protocol. Useful behind networks where the plain HTML endpoint is
// blocked, and for JS-rendered result pages. The browser is launched lazily
// on first use and reused.
type BrowserBackend struct {
	mu         sync.Mutex
	controlURL string
	browser    *rod.Browser
}

// NewBrowserBackend creates the backend. controlURL may be empty, in which
// case a headless Chrome is launched on first search.
func NewBrowserBackend(controlURL string) *BrowserBackend {
	return &BrowserBackend{controlURL: controlURL}
}

// Name returns the backend identifier.
func (b *BrowserBackend) Name() string { return "browser" }

func (b *BrowserBackend) connect(ctx context.Context) (*rod.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.browser != nil {
		if _, err := b.browser.Version(); err == nil {
			return b.browser, nil
		}
		_ = b.browser.Close()
		b.browser = nil
	}

	controlURL := b.controlURL
	if controlURL == "" {
		u, err := launcher.New().Headless(true).Launch()
		if err != nil {
			return nil, fmt.Errorf("failed to launch chrome: %w", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("failed to connect to chrome: %w", err)
	}
	b.browser = browser
	return browser, nil
}

// Search navigates a DuckDuckGo results page and scrapes the rendered DOM.
func (b *BrowserBackend) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	browser, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	searchURL := fmt.Sprintf("https://duckduckgo.com/?q=%s", url.QueryEscape(query))
	page, err := browser.Page(proto.TargetCreateTarget{URL: searchURL})
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	defer page.Close()

	page = page.Context(ctx)
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("page load failed: %w", err)
	}

	elements, err := page.Elements("article[data-testid=result]")
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}

	var results []Result
	for _, el := range elements {
		if len(results) >= maxResults {
			break
		}
		r := Result{}
		if link, err := el.Element("a[data-testid=result-title-a]"); err == nil {
			if title, err := link.Text(); err == nil {
				r.Title = strings.TrimSpace(title)
			}
			if href, err := link.Attribute("href"); err == nil && href != nil {
				r.URL = *href
			}
		}
		if snippet, err := el.Element("div[data-result=snippet]"); err == nil {
			if text, err := snippet.Text(); err == nil {
				r.Snippet = strings.TrimSpace(text)
			}
		}
		if r.Title != "" && r.URL != "" {
			results = append(results, r)
		}
	}
	return results, nil
}

// Close shuts down the launched browser, if any.
func (b *BrowserBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.browser == nil {
		return nil
	}
	err := b.browser.Close()
	b.browser = nil
	return err
}
