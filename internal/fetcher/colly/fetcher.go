// Package collyfetcher implements fetcher.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is slept before each request. The careers site rate-limits
	// aggressive clients.
	Delay time.Duration
}

// Fetcher retrieves pages with a Colly collector dressed up with browser
// headers. The target site serves a degraded page to clients it does not
// recognize as browsers.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.IgnoreRobotsTxt = true
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET and returns the body as a string. A non-2xx
// status is an error.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cfg.Delay > 0 {
		select {
		case <-time.After(f.cfg.Delay):
		case <-ctx.Done():
			return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
		}
	}

	var (
		body     []byte
		status   int
		fetchErr error
	)

	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	collector.OnRequest(func(r *colly.Request) {
		setBrowserHeaders(r)
	})
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return "", fmt.Errorf("visit %s: %w", url, err)
		}
	}
	if fetchErr != nil {
		return "", fmt.Errorf("fetch %s: %w", url, fetchErr)
	}
	if status < 200 || status > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %d", url, status)
	}
	return string(body), nil
}

// setBrowserHeaders mirrors the header set a desktop Chrome sends. Without
// these the site returns a shell page with no listings.
func setBrowserHeaders(r *colly.Request) {
	r.Headers.Set("Accept",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	r.Headers.Set("Accept-Language", "es-CL,es;q=0.9,en;q=0.8")
	r.Headers.Set("Accept-Encoding", "gzip, deflate")
	r.Headers.Set("Connection", "keep-alive")
	r.Headers.Set("Upgrade-Insecure-Requests", "1")
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
