package integration

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/abelzeko/river-alert/internal/entities"
	"github.com/rs/zerolog/log"
)

// Browser is a headless browser session. Close must release the browser
// process and is always called by the strategy that opened it.
type Browser interface {
	// Render navigates to url, waits up to wait for waitSelector to be
	// present and returns the rendered document HTML.
	Render(url, waitSelector string, wait time.Duration) (string, error)
	Close() error
}

// BrowserFactory opens a browser session bound to ctx
type BrowserFactory func(ctx context.Context, userAgent string) (Browser, error)

// RenderedHTML reads the station row from a page whose table is built by JavaScript
type RenderedHTML struct {
	name       string
	cfg        StrategyConfig
	timeout    time.Duration
	wait       time.Duration
	newBrowser BrowserFactory
}

// NewRenderedHTML creates a rendered HTML strategy
func NewRenderedHTML(name string, cfg StrategyConfig, newBrowser BrowserFactory) *RenderedHTML {
	timeout := timeoutOr(cfg.Timeout, 60*time.Second)
	wait := timeoutOr(cfg.WaitTimeout, 20*time.Second)
	if wait > timeout {
		wait = timeout
	}
	return &RenderedHTML{
		name:       name,
		cfg:        cfg,
		timeout:    timeout,
		wait:       wait,
		newBrowser: newBrowser,
	}
}

func (r *RenderedHTML) Name() string                { return r.name }
func (r *RenderedHTML) Kind() entities.StrategyKind { return entities.KindRenderedHTML }

// Fetch opens a browser session, renders the page and parses the station row.
// The session is closed on every return path.
func (r *RenderedHTML) Fetch(ctx context.Context) (entities.RawReading, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	browser, err := r.newBrowser(ctx, r.cfg.UserAgent)
	if err != nil {
		return entities.RawReading{}, fetchErr(r.name, "failed to start browser: %v", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Warn().Err(err).Str("strategy", r.name).Msg("Failed to close browser session")
		}
	}()

	log.Debug().Str("url", r.cfg.URL).Dur("wait", r.wait).Msg("Rendering page in headless browser")
	html, err := browser.Render(r.cfg.URL, r.cfg.WaitSelector, r.wait)
	if err != nil {
		return entities.RawReading{}, fetchErr(r.name, "failed to render %s: %v", r.cfg.URL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return entities.RawReading{}, fetchErr(r.name, "failed to parse rendered page: %v", err)
	}
	raw, err := parseStationRow(doc, r.cfg.Table)
	if err != nil {
		return entities.RawReading{}, &FetchError{Strategy: r.name, Err: err}
	}
	if err := checkRaw(r.name, raw); err != nil {
		return entities.RawReading{}, err
	}
	return raw, nil
}
