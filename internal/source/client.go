package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"callpipe/internal/config"
	"callpipe/internal/services"
)

// Client is the upstream call API as the ingest stage consumes it.
type Client interface {
	// ListCalls pages through completed calls. since is an ISO timestamp
	// filter, empty for all; limit <= 0 means unbounded.
	ListCalls(ctx context.Context, since string, limit int) ([]CallTask, error)
	// ListRecordings fetches the recordings attached to one call.
	ListRecordings(ctx context.Context, callGUID string) ([]RecordingRef, error)
	// DownloadRecording streams one recording into destPath and returns the
	// byte count. The write goes through a temp file and a rename so a
	// failed download never leaves a plausible-looking artifact behind.
	DownloadRecording(ctx context.Context, sourceID, destPath string) (int64, error)
}

// HTTPClient talks to the real call API with bearer auth and retried
// requests.
type HTTPClient struct {
	baseURL    string
	token      string
	pageSize   int
	tempSuffix string
	httpClient *http.Client
	maxRetries uint64
}

// NewHTTPClient builds a client from the source configuration.
func NewHTTPClient(cfg *config.Config) *HTTPClient {
	return &HTTPClient{
		baseURL:    cfg.Source.APIBaseURL,
		token:      cfg.Source.Token,
		pageSize:   cfg.Source.PageSize,
		tempSuffix: cfg.Download.TempSuffix,
		httpClient: &http.Client{Timeout: time.Duration(cfg.Source.TimeoutSeconds) * time.Second},
		maxRetries: 3,
	}
}

type listEnvelope[T any] struct {
	Data []T `json:"data"`
}

// ListCalls pages through /calls until an empty page or the limit.
func (c *HTTPClient) ListCalls(ctx context.Context, since string, limit int) ([]CallTask, error) {
	var calls []CallTask
	for page := 0; ; page++ {
		params := url.Values{}
		params.Set("page", strconv.Itoa(page))
		params.Set("size", strconv.Itoa(c.pageSize))
		if since != "" {
			params.Set("since", since)
		}

		var envelope listEnvelope[CallTask]
		if err := c.getJSON(ctx, "/calls?"+params.Encode(), &envelope); err != nil {
			return nil, services.Wrap(services.ErrTransient, "ingest", "list_calls",
				fmt.Sprintf("page %d", page), err)
		}
		if len(envelope.Data) == 0 {
			return calls, nil
		}
		for _, call := range envelope.Data {
			calls = append(calls, call)
			if limit > 0 && len(calls) >= limit {
				return calls, nil
			}
		}
	}
}

// ListRecordings fetches /calls/{guid}/recordings.
func (c *HTTPClient) ListRecordings(ctx context.Context, callGUID string) ([]RecordingRef, error) {
	var envelope listEnvelope[RecordingRef]
	if err := c.getJSON(ctx, "/calls/"+url.PathEscape(callGUID)+"/recordings", &envelope); err != nil {
		return nil, services.Wrap(services.ErrTransient, "ingest", "list_recordings", callGUID, err)
	}
	return envelope.Data, nil
}

// DownloadRecording streams /recordings/{id}/download to destPath.
func (c *HTTPClient) DownloadRecording(ctx context.Context, sourceID, destPath string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, fmt.Errorf("create download dir: %w", err)
	}
	tempPath := destPath + c.tempSuffix

	var written int64
	operation := func() error {
		resp, err := c.do(ctx, "/recordings/"+url.PathEscape(sourceID)+"/download")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if retryable, err := checkStatus(resp); err != nil {
			if !retryable {
				return backoff.Permanent(err)
			}
			return err
		}

		file, err := os.Create(tempPath)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create temp file: %w", err))
		}
		written, err = io.Copy(file, resp.Body)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("stream recording: %w", err)
		}
		return nil
	}

	if err := backoff.Retry(operation, c.backoff(ctx)); err != nil {
		_ = os.Remove(tempPath)
		return 0, services.Wrap(services.ErrTransient, "ingest", "download", sourceID, err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		_ = os.Remove(tempPath)
		return 0, fmt.Errorf("finalize download: %w", err)
	}
	return written, nil
}

func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	operation := func() error {
		resp, err := c.do(ctx, path)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if retryable, err := checkStatus(resp); err != nil {
			if !retryable {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	return backoff.Retry(operation, c.backoff(ctx))
}

func (c *HTTPClient) do(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *HTTPClient) backoff(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 10 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, c.maxRetries), ctx)
}

// checkStatus maps an HTTP status to (retryable, error). Rate limits and
// server errors retry; everything else 4xx is final.
func checkStatus(resp *http.Response) (bool, error) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err := fmt.Errorf("unexpected status %s", resp.Status)
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return true, err
	case resp.StatusCode >= 500:
		return true, err
	default:
		return false, err
	}
}
