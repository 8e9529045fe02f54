// Package transport implements a thin, retry-aware wrapper around an
// injected transport seam. The seam is net/http-shaped on purpose,
// matching the way every provider SDK in the pack plugs in (openai-go's
// option.WithHTTPClient, anthropic-sdk-go's option.WithHTTPClient), so a
// caller can hand this package a real *http.Client or a test double
// without an adapter layer.
package transport

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sidedotdev/inferencecore/internal/corelog"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/retrypolicy"
	"github.com/sidedotdev/inferencecore/sdkerr"
)

// HTTPTransport is the injected capability. *http.Client satisfies it.
type HTTPTransport interface {
	Do(req *http.Request) (*http.Response, error)
}

// ErrorMapper decodes a non-2xx response body into an SdkError, e.g.
// extracting a provider's {"error": {...}} envelope. The response body has
// already been read into raw; implementations must not attempt to read
// resp.Body again. status is resp.StatusCode, passed separately since
// resp.Body may already be drained by the time a mapper inspects it.
type ErrorMapper func(status int, raw []byte) *sdkerr.SdkError

// RequestFactory builds a fresh *http.Request for one attempt. It is
// invoked once per attempt (not reused across attempts) because an
// http.Request's body reader is consumed by the first attempt that sends
// it; retrying the underlying operation is safe, reusing a drained body
// is not.
type RequestFactory func(ctx context.Context) (*http.Request, error)

// mergeHeaders layers config defaults, then extra headers, then per-request
// options — options wins on conflict.
func mergeHeaders(cfg request.ClientConfig, opts *request.RequestOptions) map[string]string {
	merged := make(map[string]string, len(cfg.Headers)+len(cfg.ExtraHeaders))
	for k, v := range cfg.Headers {
		merged[k] = v
	}
	for k, v := range cfg.ExtraHeaders {
		merged[k] = v
	}
	if opts != nil {
		for k, v := range opts.ExtraHeaders() {
			merged[k] = v
		}
	}
	return merged
}

// resolvePolicies layers options over config (options wins).
func resolvePolicies(cfg request.ClientConfig, opts *request.RequestOptions) (retrypolicy.RetryPolicy, retrypolicy.TimeoutPolicy) {
	rp := cfg.RetryPolicy
	tp := retrypolicy.TimeoutPolicy{PerAttempt: durPtr(cfg.Timeout)}

	if opts == nil {
		return rp, tp
	}
	if n := opts.MaxRetries(); n != nil {
		rp.MaxRetries = *n
	}
	if d := opts.Timeout(); d != nil {
		tp.PerAttempt = d
	}
	if d := opts.OverallTimeout(); d != nil {
		tp.Overall = d
	}
	return rp, tp
}

func durPtr(d time.Duration) *time.Duration {
	if d <= 0 {
		return nil
	}
	return &d
}

// retriableTransportErr wraps the failure of one attempt (a transport error
// such as DNS, connection refused or per-attempt timeout, or a mapped
// non-2xx response) so it satisfies retrypolicy.Retriable.
type retriableTransportErr struct{ err *sdkerr.SdkError }

func (r retriableTransportErr) Retriable() bool { return r.err.Retriable() }

// SendWithRetry is the C7 dispatch helper: it executes newRequest via
// transport, retrying per the merged retry/timeout policy, and maps
// non-2xx responses through mapErr into an ApiError.
func SendWithRetry(
	ctx context.Context,
	t HTTPTransport,
	cfg request.ClientConfig,
	opts *request.RequestOptions,
	newRequest RequestFactory,
	mapErr ErrorMapper,
) (*http.Response, []byte, error) {
	headers := mergeHeaders(cfg, opts)
	rp, tp := resolvePolicies(cfg, opts)
	logger := corelog.WithDriver("transport")
	correlationID := uuid.NewString()

	start := time.Now()
	attempt := 1

	for {
		req, err := newRequest(ctx)
		if err != nil {
			return nil, nil, sdkerr.Wrap(sdkerr.KindSerialization, "failed to build request", err)
		}
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		req.Header.Set("X-Correlation-Id", correlationID)

		attemptCtx := ctx
		var cancel context.CancelFunc
		if tp.PerAttempt != nil {
			attemptCtx, cancel = context.WithTimeout(ctx, *tp.PerAttempt)
		}

		resp, doErr := t.Do(req.WithContext(attemptCtx))

		var lastErr *sdkerr.SdkError
		var body []byte

		if doErr != nil {
			if cancel != nil {
				cancel()
			}
			if ctx.Err() != nil {
				return nil, nil, sdkerr.New(sdkerr.KindCanceled, "request canceled")
			}
			lastErr = sdkerr.Wrap(sdkerr.KindHTTP, "transport error", doErr)
		} else {
			body, err = io.ReadAll(resp.Body)
			resp.Body.Close()
			if cancel != nil {
				cancel()
			}
			if err != nil {
				lastErr = sdkerr.Wrap(sdkerr.KindHTTP, "failed to read response body", err)
			} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				if mapErr != nil {
					lastErr = mapErr(resp.StatusCode, body)
				}
				if lastErr == nil {
					lastErr = sdkerr.NewAPIError(resp.StatusCode, "request failed", "")
				}
			} else {
				return resp, body, nil
			}
		}

		outcome, wait := retrypolicy.Decide(rp, tp, attempt, time.Since(start), retriableTransportErr{lastErr})
		corelog.LogRetryDecision(logger, correlationID, attempt, outcomeLabel(outcome), wait)

		switch outcome {
		case retrypolicy.OutcomeRetry:
			sleep(ctx, wait)
			attempt++
			continue
		case retrypolicy.OutcomeExhausted:
			return nil, nil, sdkerr.NewRetryExhausted(attempt, lastErr)
		case retrypolicy.OutcomeAbandonTimeout:
			return nil, nil, sdkerr.New(sdkerr.KindTimeout, "overall timeout exceeded")
		default: // OutcomeSurface
			return nil, nil, lastErr
		}
	}
}

func outcomeLabel(o retrypolicy.Outcome) string {
	switch o {
	case retrypolicy.OutcomeRetry:
		return "retry"
	case retrypolicy.OutcomeExhausted:
		return "exhausted"
	case retrypolicy.OutcomeAbandonTimeout:
		return "abandon_timeout"
	default:
		return "surface"
	}
}

func sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}
