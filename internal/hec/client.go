package hec

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sortie/internal/core"
)

const (
	// DefaultTimeout bounds one POST including the response body read.
	DefaultTimeout = 10 * time.Second
	// maxAckBodySize limits the response body read for the acknowledgement.
	maxAckBodySize = 64 * 1024
)

// Response is what the collector answered.
type Response struct {
	StatusCode int
	Ack        Ack
	BytesSent  int64
	Latency    time.Duration
}

// Client posts encoded events. It never retries.
type Client struct {
	http    *http.Client
	timeout time.Duration
	debug   *DebugLogger
}

// NewClient wraps httpClient. A nil httpClient uses a dedicated client
// with pooled keep-alive connections.
func NewClient(httpClient *http.Client, timeout time.Duration, debug *DebugLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{http: httpClient, timeout: timeout, debug: debug}
}

// Endpoint joins a destination base URL and an ingestion subpath. Base URLs
// already pointing at /event or /raw are trimmed back to the collector root.
func Endpoint(base, subpath string) string {
	base = strings.TrimRight(base, "/")
	for _, p := range []string{"/event", "/raw"} {
		if strings.HasSuffix(base, p) {
			base = strings.TrimSuffix(base, p)
			break
		}
	}
	return base + subpath
}

// Send posts req once. A non-2xx answer returns *core.RejectedError together
// with the response. Network errors and timeouts are returned as is.
func (c *Client) Send(ctx context.Context, creds core.Credentials, label string, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	target := Endpoint(creds.BaseURL, req.Subpath)
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(req.Body))
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", req.ContentType)
	httpReq.Header.Set("Authorization", creds.AuthorizationHeader())

	c.debug.LogRequest(label, httpReq)

	resp, err := c.http.Do(httpReq)
	latency := time.Since(start)
	out := Response{BytesSent: int64(len(req.Body)), Latency: latency}
	if err != nil {
		c.debug.LogError(label, err.Error(), latency)
		return out, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxAckBodySize))
	_, _ = io.Copy(io.Discard, resp.Body) // drain errors are ignorable

	out.StatusCode = resp.StatusCode
	out.Ack = ParseAck(body)
	out.Latency = time.Since(start)
	c.debug.LogResponse(label, resp, out.Ack, body, out.Latency)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &core.RejectedError{StatusCode: resp.StatusCode, Status: rejectStatus(resp, out.Ack)}
	}
	return out, nil
}

func rejectStatus(resp *http.Response, ack Ack) string {
	if ack.Parsed && ack.Text != "" {
		return fmt.Sprintf("%s (%s, code %d)", resp.Status, ack.Text, ack.Code)
	}
	return resp.Status
}
