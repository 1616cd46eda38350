package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/couchcryptid/outbreak-data-etl/internal/domain"
	"github.com/dustin/go-humanize"
)

const (
	userAgent    = "WHO-Signal-Intelligence-Dashboard/1.0"
	acceptHeader = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet, application/vnd.ms-excel, application/octet-stream"

	// maxBodyBytes bounds a single download.
	maxBodyBytes = 64 << 20
)

// Client downloads the outbreak workbook over HTTP.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a fetcher whose requests are bounded by timeout.
func NewClient(timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Fetch rewrites rawURL to a direct download and returns the response body.
// Failures are returned as *domain.FetchError.
func (c *Client) Fetch(ctx context.Context, rawURL string) (domain.Download, error) {
	target := RewriteURL(rawURL)
	if target != rawURL {
		c.logger.Debug("rewrote source url", "from", rawURL, "to", target)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return domain.Download{}, &domain.FetchError{Kind: domain.FetchNetwork, URL: target, Err: fmt.Errorf("create request: %w", err)}
	}
	setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Download{}, classify(target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)) //nolint:errcheck // draining for connection reuse
		return domain.Download{}, &domain.FetchError{Kind: domain.FetchHTTPStatus, URL: target, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return domain.Download{}, classify(target, fmt.Errorf("read body: %w", err))
	}
	if len(body) > maxBodyBytes {
		return domain.Download{}, &domain.FetchError{
			Kind: domain.FetchNetwork,
			URL:  target,
			Err:  fmt.Errorf("response exceeds %s", humanize.IBytes(maxBodyBytes)),
		}
	}

	p := domain.Download{
		URL:         target,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
		Duration:    time.Since(start),
	}
	c.logger.Info("fetched source workbook",
		"url", target,
		"size", humanize.Bytes(uint64(len(body))),
		"content_type", p.ContentType,
		"duration", p.Duration,
	)
	return p, nil
}

func setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Cache-Control", "no-cache, no-store")
	req.Header.Set("Pragma", "no-cache")
}

func classify(url string, err error) *domain.FetchError {
	kind := domain.FetchNetwork
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		kind = domain.FetchTimeout
	}
	return &domain.FetchError{Kind: kind, URL: url, Err: err}
}
