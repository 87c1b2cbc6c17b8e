package wbsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

// wbClient issues one logical WB API request with bounded retry/backoff.
// Retried classes: HTTP 429, 5xx and transport-level failures. Other 4xx
// fail immediately without consuming retry budget.
type wbClient struct {
	apiKey string
	http   *http.Client
	logger *logrus.Logger
	sleep  func(time.Duration)
}

type apiRequest struct {
	method string
	url    string
	query  url.Values
	body   []byte

	// retries overrides the per-request budget; capDelay of 0 means
	// uncapped exponential backoff (report-job operations).
	retries  int
	capDelay time.Duration
}

func newWBClient(cfg Config, logger *logrus.Logger) *wbClient {
	return &wbClient{
		apiKey: cfg.APIKey,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
		sleep:  time.Sleep,
	}
}

func backoffDelay(attempt int, capDelay time.Duration) time.Duration {
	delay := time.Duration(1<<uint(attempt)) * time.Second
	if capDelay > 0 && delay > capDelay {
		return capDelay
	}
	return delay
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// do runs the request, returning the response body of the first 2xx answer.
// Exhausting the budget returns RetryExhaustedError, which is fatal for the
// calling operation.
func (c *wbClient) do(ctx context.Context, req apiRequest) ([]byte, error) {
	if req.retries <= 0 {
		req.retries = 1
	}

	var lastErr error
	for attempt := 1; attempt <= req.retries; attempt++ {
		body, err := c.doOnce(ctx, req)
		if err == nil {
			return body, nil
		}

		var statusErr *httpStatusError
		if errors.As(err, &statusErr) && !retryableStatus(statusErr.StatusCode) {
			// Non-retryable 4xx: fail immediately without burning budget.
			return nil, err
		}

		lastErr = err
		if attempt == req.retries {
			break
		}

		delay := backoffDelay(attempt, req.capDelay)
		c.logger.WithFields(logrus.Fields{
			"url":     req.url,
			"attempt": attempt,
			"retries": req.retries,
			"delay":   delay.String(),
		}).Warnf("wb api request failed: %v; retrying", err)
		c.sleep(delay)
	}

	return nil, &RetryExhaustedError{Attempts: req.retries, LastErr: lastErr}
}

func (c *wbClient) doOnce(ctx context.Context, req apiRequest) ([]byte, error) {
	endpoint := req.url
	if len(req.query) > 0 {
		endpoint = endpoint + "?" + req.query.Encode()
	}

	var reader io.Reader
	if len(req.body) > 0 {
		reader = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, reader)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")
	if len(req.body) > 0 {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
