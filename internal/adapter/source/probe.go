package source

import (
	"context"
	"net/http"
	"time"
)

// Probe outcomes.
const (
	Online  = "online"
	Offline = "offline"
	Error   = "error"
)

const probeTimeout = 5 * time.Second

// ProbeResult describes the reachability of the source URL.
type ProbeResult struct {
	URL        string    `json:"url"`
	Status     string    `json:"status"`
	StatusCode int       `json:"statusCode,omitempty"`
	LatencyMS  int64     `json:"latencyMs"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checkedAt"`
}

// Probe issues a HEAD request against the rewritten source URL. A 2xx answer is
// online and any other answer is offline. A request that could not be built or
// got no answer within five seconds is error.
func (c *Client) Probe(ctx context.Context, rawURL string) ProbeResult {
	target := RewriteURL(rawURL)
	result := ProbeResult{URL: target, CheckedAt: time.Now().UTC()}

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		result.Status = Error
		result.Error = err.Error()
		return result
	}
	setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	result.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		result.Status = Error
		result.Error = err.Error()
		c.logger.Warn("source probe failed", "url", target, "error", err)
		return result
	}
	resp.Body.Close()

	result.StatusCode = resp.StatusCode
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		result.Status = Online
	} else {
		result.Status = Offline
		result.Error = resp.Status
	}
	return result
}
