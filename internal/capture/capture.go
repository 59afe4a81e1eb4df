// Package capture implements the screenshot service: the whitelist gate,
// payload validation, and a compressed in-memory store of the latest
// capture per URL. Rendering itself happens in the frontend; the backend
// only ever sees base64 image data.
package capture

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/contextbridge/backend/internal/logging"
	"github.com/contextbridge/backend/internal/types"
	"github.com/contextbridge/backend/internal/whitelist"
)

// DefaultKey stores the most recent capture regardless of URL.
const DefaultKey = "default"

var (
	// ErrDisabled is returned when screenshots are globally disabled.
	ErrDisabled = errors.New("screenshots disabled")
	// ErrNotAllowed is returned when the page is not whitelisted.
	ErrNotAllowed = errors.New("screenshots not allowed for this page")
	// ErrNotFound is returned when no capture exists for a URL.
	ErrNotFound = errors.New("no screenshot found")
)

// Config gates and shapes captures.
type Config struct {
	Enabled  bool
	Defaults types.ScreenshotOptions
}

// Service validates, gates and stores screenshots.
type Service struct {
	cfg     Config
	matcher *whitelist.Matcher
	log     *logging.Logger

	mu    sync.RWMutex
	store map[string]entry
}

type entry struct {
	compressed []byte
	mime       string
	timestamp  int64
}

// New creates a capture service. The matcher is the canonical whitelist
// matcher; both transports consult the same one.
func New(cfg Config, matcher *whitelist.Matcher, log *logging.Logger) *Service {
	if log == nil {
		log = logging.NewNop()
	}
	if cfg.Defaults.Format == "" {
		cfg.Defaults = types.DefaultScreenshotOptions()
	}
	return &Service{
		cfg:     cfg,
		matcher: matcher,
		log:     log.WithComponent("capture"),
		store:   make(map[string]entry),
	}
}

// Allowed reports whether capture is permitted for rawURL: the global
// enable flag must be set and the page must match the whitelist.
func (s *Service) Allowed(rawURL string) bool {
	if !s.cfg.Enabled {
		return false
	}
	path, hash := splitURL(rawURL)
	return s.matcher.Allowed(rawURL, path, hash)
}

// Options merges caller overrides over the configured defaults.
func (s *Service) Options(overrides types.ScreenshotOptions) types.ScreenshotOptions {
	return overrides.Merge(s.cfg.Defaults)
}

// Store validates and saves a base64 screenshot for a URL. The payload
// must decode and sniff as an image; it is stored compressed under both
// the URL and the default key.
func (s *Service) Store(rawURL, base64Data string) error {
	if !s.cfg.Enabled {
		return ErrDisabled
	}
	if !s.Allowed(rawURL) {
		return fmt.Errorf("%w: %s", ErrNotAllowed, rawURL)
	}
	if base64Data == "" {
		return errors.New("screenshot data required")
	}

	raw, err := base64.StdEncoding.DecodeString(stripDataURL(base64Data))
	if err != nil {
		return fmt.Errorf("invalid base64 screenshot payload: %w", err)
	}
	mtype := mimetype.Detect(raw)
	if !strings.HasPrefix(mtype.String(), "image/") {
		return fmt.Errorf("screenshot payload is not an image: %s", mtype.String())
	}

	compressed, err := compress([]byte(base64Data))
	if err != nil {
		return fmt.Errorf("failed to compress screenshot: %w", err)
	}

	e := entry{compressed: compressed, mime: mtype.String(), timestamp: types.NowMillis()}
	s.mu.Lock()
	s.store[rawURL] = e
	s.store[DefaultKey] = e
	s.mu.Unlock()

	s.log.Info("screenshot stored",
		zap.String("url", rawURL),
		zap.String("mime", e.mime),
		zap.Int("compressed_bytes", len(compressed)))
	return nil
}

// Latest returns the stored base64 payload for url, falling back to the
// most recent capture when the URL has none.
func (s *Service) Latest(rawURL string) (string, error) {
	s.mu.RLock()
	e, ok := s.store[rawURL]
	if !ok {
		e, ok = s.store[DefaultKey]
	}
	s.mu.RUnlock()

	if !ok {
		return "", ErrNotFound
	}
	data, err := decompress(e.compressed)
	if err != nil {
		return "", fmt.Errorf("failed to decompress screenshot: %w", err)
	}
	return string(data), nil
}

// splitURL extracts path and fragment for the matcher; unparseable URLs
// contribute empty components and match only URL-form patterns.
func splitURL(rawURL string) (path, hash string) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", ""
	}
	hash = u.Fragment
	if hash != "" {
		hash = "#" + hash
	}
	return u.Path, hash
}

// stripDataURL drops a data: URL prefix when present.
func stripDataURL(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+len(";base64,"):]
	}
	return s
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
