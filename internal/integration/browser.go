package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// pageLoadTimeout bounds navigation separately from the DOM wait
var pageLoadTimeout = 30 * time.Second

// chromeBrowser is a headless Chrome session driven through chromedp
type chromeBrowser struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChromeBrowser launches headless Chrome bound to ctx. The process is
// terminated by Close or when ctx ends.
func NewChromeBrowser(ctx context.Context, userAgent string) (Browser, error) {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so launch errors surface here
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, err
	}
	return &chromeBrowser{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}, nil
}

func (b *chromeBrowser) Render(url, waitSelector string, wait time.Duration) (string, error) {
	navCtx, cancelNav := context.WithTimeout(b.ctx, pageLoadTimeout)
	defer cancelNav()
	if err := chromedp.Run(navCtx, chromedp.Navigate(url)); err != nil {
		return "", fmt.Errorf("page load: %w", err)
	}

	waitCtx, cancel := context.WithTimeout(b.ctx, wait)
	defer cancel()
	var html string
	err := chromedp.Run(waitCtx,
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return "", err
	}
	return html, nil
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.ctx)
	b.cancelTab()
	b.cancelAlloc()
	return err
}
