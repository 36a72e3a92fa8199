package fetcher

import (
	"context"

	"go.uber.org/zap"
)

// Detector flags static HTML that needs script execution to show content.
type Detector interface {
	ShouldPromote(html string) bool
}

// Promoting fetches statically first and re-fetches through the headless
// fetcher when the detector flags the body as a client-rendered shell. A
// failed headless re-fetch falls back to the static body.
type Promoting struct {
	Static   Fetcher
	Headless Fetcher
	Detector Detector
	Logger   *zap.Logger
}

// NewPromoting wires a promoting fetcher. Headless and detector may be nil,
// in which case it behaves exactly like the static fetcher.
func NewPromoting(static, headless Fetcher, det Detector, logger *zap.Logger) *Promoting {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Promoting{Static: static, Headless: headless, Detector: det, Logger: logger}
}

// Fetch implements Fetcher.
func (p *Promoting) Fetch(ctx context.Context, url string) (string, error) {
	body, err := p.Static.Fetch(ctx, url)
	if err != nil {
		return "", err
	}
	if p.Headless == nil || p.Detector == nil || !p.Detector.ShouldPromote(body) {
		return body, nil
	}

	p.Logger.Debug("promoting fetch to headless", zap.String("url", url))
	rendered, herr := p.Headless.Fetch(ctx, url)
	if herr != nil {
		p.Logger.Warn("headless fetch failed, using static body",
			zap.String("url", url), zap.Error(herr))
		return body, nil
	}
	return rendered, nil
}
