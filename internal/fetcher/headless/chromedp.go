// Package headless fetches pages through headless Chrome so script-rendered
// listings are visible to the extractors.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ExtraHeaders      http.Header
}

// Fetcher implements fetcher.Fetcher using chromedp.
type Fetcher struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless fetcher backed by chromedp.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 45 * time.Second
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Fetcher{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	f.allocCancel()
}

// Fetch navigates with a headless browser and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.acquire(ctx); err != nil {
		return "", err
	}
	defer f.release()

	taskCtx, taskCancel := chromedp.NewContext(f.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, f.cfg.NavigationTimeout)
	defer cancel()

	var html string
	actions := []chromedp.Action{
		f.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500 * time.Millisecond),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, nil
}

func (f *Fetcher) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(f.cfg.ExtraHeaders) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(f.cfg.ExtraHeaders)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.limiter == nil {
		return nil
	}
	select {
	case f.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.limiter == nil {
		return
	}
	select {
	case <-f.limiter:
	default:
	}
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
