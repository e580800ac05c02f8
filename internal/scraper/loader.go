package scraper

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

const (
	defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36"
	acceptEncoding   = "gzip"
	maxBodyBytes     = 8 << 20
)

// PageLoader returns the body of the page at rawURL.
type PageLoader interface {
	Load(ctx context.Context, rawURL string) ([]byte, error)
}

// StatusError is a non-200 response from the board.
type StatusError struct {
	URL    string
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %s", e.Status)
}

// TransientError marks a failure worth retrying.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// HTTPLoader fetches pages over plain HTTP.
type HTTPLoader struct {
	HTTPClient *http.Client
	UserAgent  string
	logger     *zap.Logger
}

func NewHTTPLoader(timeout time.Duration, userAgent string, logger *zap.Logger) *HTTPLoader {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPLoader{
		HTTPClient: &http.Client{Timeout: timeout},
		UserAgent:  userAgent,
		logger:     logger,
	}
}

func (l *HTTPLoader) Load(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	l.setHeaders(req)

	l.logger.Debug("make request", zap.String("url", rawURL))
	resp, err := l.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &StatusError{URL: rawURL, Code: resp.StatusCode, Status: resp.Status}
	}

	var body io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		body = gz
	}

	return io.ReadAll(io.LimitReader(body, maxBodyBytes))
}

func (l *HTTPLoader) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", l.UserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", acceptEncoding)
}

// BrowserLoader renders pages in headless Chrome. Requires Chrome or Chromium on the host.
type BrowserLoader struct {
	Timeout time.Duration
	// Settle is how long to let client-side rendering finish after the body is ready.
	Settle time.Duration
}

func (b *BrowserLoader) Load(ctx context.Context, rawURL string) ([]byte, error) {
	allocCtx, cancel := chromedp.NewExecAllocator(ctx,
		append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.Flag("headless", true),
			chromedp.Flag("disable-gpu", true),
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)...,
	)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	browserCtx, cancel = context.WithTimeout(browserCtx, timeout)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body"),
		chromedp.Sleep(b.Settle),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: fmt.Errorf("browser rendering failed: %w", err)}
	}

	return []byte(html), nil
}

// isTransient reports whether a load error may succeed on retry: network
// failures, timeouts, 408, 429 and 5xx responses.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusRequestTimeout ||
			statusErr.Code == http.StatusTooManyRequests ||
			statusErr.Code >= http.StatusInternalServerError
	}

	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	return errors.Is(err, io.ErrUnexpectedEOF)
}
