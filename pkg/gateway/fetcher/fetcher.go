// Package fetcher retrieves finished call recordings, tolerating the
// gateway's upload-processing delay.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/voicebridge/voicebridge/pkg/core"
)

// errNotReady marks the "uploaded but not yet available" condition, the
// only condition the fetcher retries.
var errNotReady = errors.New("recording not yet available")

type Options struct {
	// Retries is the number of additional attempts after the first.
	Retries uint64
	// Delay is the fixed wait between attempts.
	Delay time.Duration
	// AttemptTimeout bounds a single HTTP attempt.
	AttemptTimeout time.Duration
	// Username/Password enable basic auth on recording URLs that require
	// gateway credentials.
	Username string
	Password string

	HTTPClient *http.Client
}

type Fetcher struct {
	opts Options
}

func New(opts Options) *Fetcher {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Delay <= 0 {
		opts.Delay = 2 * time.Second
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	return &Fetcher{opts: opts}
}

// Fetch downloads the recording at uri. While the resource is still
// settling (404, 425, or an empty 200 body) it retries on a fixed delay up
// to the configured bound; any other failure is fatal on first sight.
func (f *Fetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	var body []byte

	backoff := retry.WithMaxRetries(f.opts.Retries, retry.NewConstant(f.opts.Delay))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		data, err := f.attempt(ctx, uri)
		if err != nil {
			if errors.Is(err, errNotReady) {
				return retry.RetryableError(err)
			}
			return err
		}
		body = data
		return nil
	})
	if err != nil {
		if errors.Is(err, errNotReady) {
			return nil, core.NewRecordingUnavailableError("recording unavailable", err)
		}
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) attempt(ctx context.Context, uri string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.AttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", uri, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.opts.Username != "" {
		req.SetBasicAuth(f.opts.Username, f.opts.Password)
	}

	resp, err := f.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch recording: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusTooEarly:
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, errNotReady)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch recording: status %d: %s", resp.StatusCode, string(msg))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read recording body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body: %w", errNotReady)
	}
	return data, nil
}
