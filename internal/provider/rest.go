package provider

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/contextbridge/backend/internal/infrastructure/config"
	"github.com/contextbridge/backend/internal/infrastructure/resilience"
	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/types"
	"github.com/contextbridge/backend/internal/whitelist"
)

// REST fetches context over HTTP from a frontend bridge endpoint.
type REST struct {
	cfg     config.BridgeConfig
	client  *resty.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	matcher *whitelist.Matcher
	log     *logging.Logger

	mu        sync.RWMutex
	lastKnown string
}

// NewREST creates a REST provider. Requests retry transient failures,
// respect a client-side rate limit and trip a circuit breaker when the
// frontend keeps failing.
func NewREST(cfg config.BridgeConfig, log *logging.Logger) *REST {
	if log == nil {
		log = logging.NewNop()
	}
	log = log.WithComponent("provider.rest")

	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil

	client := resty.NewWithClient(retryClient.StandardClient()).
		SetTimeout(cfg.Timeout).
		SetHeader("User-Agent", "ContextBridge/1.0")
	for k, v := range cfg.AuthHeaders {
		client.SetHeader(k, v)
	}

	breaker := resilience.New("bridge-frontend", resilience.Settings{
		Timeout: 30 * time.Second,
		OnStateChange: func(name string, from, to resilience.State) {
			log.Warn("circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &REST{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(10), 10),
		breaker: breaker,
		matcher: whitelist.New(cfg.WhitelistedPages, log),
		log:     log,
	}
}

// CurrentContext fetches the current page context, optionally for a
// specific URL. The response URL becomes the new last known URL.
func (r *REST) CurrentContext(ctx context.Context, pageURL string) (*types.PageContext, error) {
	if r.cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		var pageCtx types.PageContext
		req := r.client.R().SetContext(ctx).SetResult(&pageCtx)
		if pageURL != "" {
			req.SetQueryParam("url", pageURL)
		}
		resp, err := req.Get(r.endpoint("/current-context"))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch context: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("failed to fetch context: status %d", resp.StatusCode())
		}
		return &pageCtx, nil
	})
	if err != nil {
		return nil, err
	}

	pageCtx := result.(*types.PageContext)
	r.mu.Lock()
	if pageURL != "" {
		r.lastKnown = pageURL
	}
	if pageCtx.URL != "" {
		r.lastKnown = pageCtx.URL
	}
	r.mu.Unlock()

	return pageCtx, nil
}

// Screenshot fetches a base64 screenshot for a URL, defaulting to the
// last known URL when none is given.
func (r *REST) Screenshot(ctx context.Context, pageURL string, opts *types.ScreenshotOptions) (string, error) {
	if r.cfg.BaseURL == "" {
		return "", ErrNoBaseURL
	}

	target := pageURL
	if target == "" {
		r.mu.RLock()
		target = r.lastKnown
		r.mu.RUnlock()
	}
	if target == "" {
		return "", ErrNoURL
	}
	if !r.ScreenshotAllowed(target) {
		return "", fmt.Errorf("%w: %s", ErrScreenshotDenied, target)
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", err
	}

	merged := r.cfg.ScreenshotOptions().Merge(types.DefaultScreenshotOptions())
	if opts != nil {
		merged = opts.Merge(merged)
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		var body struct {
			Screenshot string `json:"screenshot"`
		}
		resp, err := r.client.R().
			SetContext(ctx).
			SetBody(map[string]interface{}{"url": target, "options": merged}).
			SetResult(&body).
			Post(r.endpoint("/screenshot"))
		if err != nil {
			return nil, fmt.Errorf("failed to capture screenshot: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("failed to capture screenshot: status %d", resp.StatusCode())
		}
		if body.Screenshot == "" {
			return nil, fmt.Errorf("no screenshot data in response")
		}
		return body.Screenshot, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// ScreenshotAllowed checks the enable flag and the page whitelist.
func (r *REST) ScreenshotAllowed(rawURL string) bool {
	if !r.cfg.EnableScreenshots {
		return false
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	hash := u.Fragment
	if hash != "" {
		hash = "#" + hash
	}
	return r.matcher.Allowed(rawURL, u.Path, hash)
}

// LastKnownURL returns the URL of the most recently seen context.
func (r *REST) LastKnownURL() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastKnown
}

// Close releases the underlying transport.
func (r *REST) Close() error {
	r.client.GetClient().CloseIdleConnections()
	return nil
}

func (r *REST) endpoint(path string) string {
	base, err := url.Parse(r.cfg.BaseURL)
	if err != nil {
		return r.cfg.BaseURL + path
	}
	ref, err := url.Parse(path)
	if err != nil {
		return r.cfg.BaseURL + path
	}
	return base.ResolveReference(ref).String()
}
