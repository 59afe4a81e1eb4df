package types

// Clip restricts a capture to a rectangle of the page.
type Clip struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ScreenshotOptions control how the frontend renders the page to an image.
// The backend treats the resulting base64 payload opaquely.
type ScreenshotOptions struct {
	Format   string  `json:"format"`
	Quality  float64 `json:"quality"`
	Scale    float64 `json:"scale,omitempty"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	FullPage bool    `json:"fullPage"`
	Clip     *Clip   `json:"clip,omitempty"`
}

// DefaultScreenshotOptions returns the capture defaults used when the
// caller supplies none.
func DefaultScreenshotOptions() ScreenshotOptions {
	return ScreenshotOptions{
		Format:  "png",
		Quality: 0.8,
		Scale:   1.0,
	}
}

// Merge fills zero-valued fields from defaults.
func (o ScreenshotOptions) Merge(defaults ScreenshotOptions) ScreenshotOptions {
	if o.Format == "" {
		o.Format = defaults.Format
	}
	if o.Quality == 0 {
		o.Quality = defaults.Quality
	}
	if o.Scale == 0 {
		o.Scale = defaults.Scale
	}
	return o
}
