// Package provider defines how agent code fetches page context and
// screenshots without caring about the transport underneath.
package provider

import (
	"context"
	"errors"

	"github.com/contextbridge/backend/internal/types"
)

var (
	// ErrNoBaseURL is returned when a provider needs a base URL and none
	// was configured.
	ErrNoBaseURL = errors.New("base_url is required")
	// ErrNoURL is returned when no URL was supplied and no last known URL
	// exists yet.
	ErrNoURL = errors.New("no URL provided and no last known URL")
	// ErrScreenshotDenied is returned when the whitelist rejects a capture.
	ErrScreenshotDenied = errors.New("screenshots not allowed for URL")
)

// ContextProvider fetches page context and screenshots. A zero url means
// "the last page this provider saw".
type ContextProvider interface {
	CurrentContext(ctx context.Context, url string) (*types.PageContext, error)
	Screenshot(ctx context.Context, url string, opts *types.ScreenshotOptions) (string, error)
	ScreenshotAllowed(url string) bool
	Close() error
}

// WithScreenshot fetches context and screenshot together. A screenshot
// failure degrades to a context-only response rather than failing the call.
func WithScreenshot(ctx context.Context, p ContextProvider, url string, opts *types.ScreenshotOptions) (*types.ContextResponse, error) {
	pageCtx, err := p.CurrentContext(ctx, url)
	if err != nil {
		return nil, err
	}

	resp := &types.ContextResponse{Context: *pageCtx}
	if shot, err := p.Screenshot(ctx, url, opts); err == nil {
		resp.Screenshot = shot
	}
	return resp, nil
}
