// Package client provides the upstream HTTP client for the Tuiter API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"tuiter-bff/internal/config"
	"tuiter-bff/internal/metrics"
	"tuiter-bff/internal/model"
)

// ErrResponseTooLarge is returned when the upstream body exceeds upstream.response_max_bytes.
var ErrResponseTooLarge = errors.New("upstream response body too large")

// TuiterClient sends requests to the upstream Tuiter API.
type TuiterClient struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
	maxBody    int64
}

// NewTuiterClient creates a TuiterClient with connection pooling and timeouts.
// The metrics parameter is optional; pass nil to disable upstream metrics recording.
func NewTuiterClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *TuiterClient {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	maxBody := cfg.Upstream.ResponseMaxBytes
	if maxBody <= 0 {
		maxBody = 10 * 1024 * 1024
	}

	return &TuiterClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		logger:  logger.With("component", "tuiter_client"),
		metrics: m,
		maxBody: maxBody,
	}
}

// Do performs the outbound call described by fr and reads the full response body.
// The context controls the lifetime of the upstream request: when it is
// canceled (e.g. the client disconnects), the upstream request is canceled too.
func (c *TuiterClient) Do(ctx context.Context, fr *model.ForwardRequest) (*model.ForwardResponse, error) {
	var body io.Reader = http.NoBody
	if fr.Body != nil {
		body = bytes.NewReader(fr.Body)
	}

	req, err := http.NewRequestWithContext(ctx, fr.Method, fr.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = fr.Header

	c.logger.Debug("upstream request",
		"route", fr.Route,
		"method", req.Method,
		"path", req.URL.Path,
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(fr.Route, start, 0)
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	c.observe(fr.Route, start, resp.StatusCode)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrResponseTooLarge, c.maxBody)
	}

	return &model.ForwardResponse{
		StatusCode: resp.StatusCode,
		Body:       data,
	}, nil
}

// observe records upstream latency, and the response status when one arrived.
func (c *TuiterClient) observe(route string, start time.Time, status int) {
	if c.metrics == nil {
		return
	}
	c.metrics.UpstreamDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	if status != 0 {
		c.metrics.UpstreamResponses.WithLabelValues(route, strconv.Itoa(status)).Inc()
	}
}
