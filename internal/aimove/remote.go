package aimove

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// Remote calls an HTTP move service: POST {base}/move {"fen","difficulty"} -> {"move"}.
type Remote struct {
	baseURL string
	http    *fasthttp.Client
	headers map[string]string

	defaultTimeout time.Duration
	retryMax       int
}

type RemoteOption func(*Remote)

func WithRemoteTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) { r.defaultTimeout = d }
}

func WithRemoteRetry(max int) RemoteOption {
	return func(r *Remote) { r.retryMax = max }
}

func WithRemoteHeader(k, v string) RemoteOption {
	return func(r *Remote) {
		if strings.TrimSpace(k) != "" && strings.TrimSpace(v) != "" {
			r.headers[k] = v
		}
	}
}

func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 16},
		headers:        map[string]string{},
		defaultTimeout: 10 * time.Second,
		retryMax:       2,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) SuggestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	var out MoveResponse
	if err := r.doJSON(ctx, fasthttp.MethodPost, "/move", req, &out); err != nil {
		return MoveResponse{}, err
	}
	if strings.TrimSpace(out.Move) == "" {
		return MoveResponse{}, fmt.Errorf("%w: empty move", ErrMalformed)
	}
	return out, nil
}

func (r *Remote) doJSON(ctx context.Context, method, path string, in, out any) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(r.baseURL + path)
	req.Header.SetContentType("application/json")
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		req.SetBody(payload)
	}

	attempts := max(r.retryMax, 1)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		err := r.http.DoDeadline(req, resp, r.computeDeadline(ctx))
		if err != nil {
			lastErr = fmt.Errorf("%w: request failed: %w", ErrUnavailable, err)
		} else {
			status := resp.StatusCode()
			switch {
			case status == http.StatusTooManyRequests:
				return fmt.Errorf("%w: status=%d", ErrRateLimited, status)
			case status < 200 || status >= 300:
				lastErr = fmt.Errorf("%w: status=%d body=%s", ErrUnavailable, status, truncate(string(resp.Body()), 256))
				if !shouldRetryStatus(status) {
					return lastErr
				}
			default:
				if out != nil {
					if err := json.Unmarshal(resp.Body(), out); err != nil {
						return fmt.Errorf("%w: decode response: %w", ErrMalformed, err)
					}
				}
				return nil
			}
		}
		if attempt < attempts {
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
		}
	}
	if lastErr == nil {
		lastErr = errors.New("unknown error")
	}
	return lastErr
}

func (r *Remote) computeDeadline(ctx context.Context) time.Time {
	clientDL := time.Now().Add(r.defaultTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(clientDL) {
		return dl
	}
	return clientDL
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	attempt = min(max(attempt, 1), 6)
	return time.Duration(1<<uint(attempt-1)) * 100 * time.Millisecond
}

func shouldRetryStatus(code int) bool {
	switch code {
	case 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
