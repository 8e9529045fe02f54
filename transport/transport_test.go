package transport

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/sidedotdev/inferencecore/internal/mocktransport"
	"github.com/sidedotdev/inferencecore/request"
	"github.com/sidedotdev/inferencecore/retrypolicy"
	"github.com/sidedotdev/inferencecore/sdkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() request.ClientConfig {
	cfg := request.NewClientConfig("sk-test", func(key string) (string, string) {
		return "Authorization", "Bearer " + key
	})
	cfg.RetryPolicy.InitialBackoff = time.Millisecond
	cfg.RetryPolicy.MaxBackoff = 2 * time.Millisecond
	cfg.Timeout = time.Second
	return cfg
}

func newReq(t *testing.T) RequestFactory {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequest(http.MethodPost, "http://example.invalid/v1/chat", nil)
	}
}

func echoMapper(status int, raw []byte) *sdkerr.SdkError {
	return sdkerr.NewAPIError(status, string(raw), "")
}

func TestSendWithRetry_SucceedsFirstTry(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Status: 200, Body: `{"ok":true}`})
	cfg := testConfig()

	resp, body, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, `{"ok":true}`, string(body))
	assert.Equal(t, 1, tr.CallCount())
}

func TestSendWithRetry_RetriesOn500ThenSucceeds(t *testing.T) {
	tr := mocktransport.New(
		mocktransport.Response{Status: 500, Body: "boom"},
		mocktransport.Response{Status: 200, Body: "ok"},
	)
	cfg := testConfig()

	resp, body, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 2, tr.CallCount())
}

func TestSendWithRetry_NonRetriable4xxSurfacesImmediately(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Status: 400, Body: "bad request"})
	cfg := testConfig()

	_, _, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.Error(t, err)
	assert.Equal(t, 1, tr.CallCount())

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindAPI, sdkErr.Kind)
	assert.Equal(t, 400, sdkErr.Status)
}

func TestSendWithRetry_ExhaustsAndWrapsRetryExhausted(t *testing.T) {
	tr := mocktransport.New(
		mocktransport.Response{Status: 503, Body: "1"},
		mocktransport.Response{Status: 503, Body: "2"},
		mocktransport.Response{Status: 503, Body: "3"},
		mocktransport.Response{Status: 503, Body: "4"},
	)
	cfg := testConfig()
	cfg.RetryPolicy.MaxRetries = 3

	_, _, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.Error(t, err)
	assert.Equal(t, 4, tr.CallCount())

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindRetryExhausted, sdkErr.Kind)
	assert.Equal(t, 4, sdkErr.Attempts)
}

func TestSendWithRetry_MaxRetriesZeroSurfacesRawError(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Status: 503, Body: "down"})
	cfg := testConfig()
	cfg.RetryPolicy.MaxRetries = 0

	_, _, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.Error(t, err)
	assert.Equal(t, 1, tr.CallCount())

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindAPI, sdkErr.Kind)
}

func TestSendWithRetry_OptionsOverrideMaxRetries(t *testing.T) {
	tr := mocktransport.New(
		mocktransport.Response{Status: 503, Body: "1"},
		mocktransport.Response{Status: 200, Body: "ok"},
	)
	cfg := testConfig()
	cfg.RetryPolicy.MaxRetries = 0

	opts := request.NewRequestOptions().WithRetries(3)
	resp, _, err := SendWithRetry(context.Background(), tr, cfg, opts, newReq(t), echoMapper)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestSendWithRetry_HeaderMergeOptionsWin(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Status: 200, Body: "ok"})
	cfg := testConfig()
	cfg.ExtraHeaders = map[string]string{"X-Trace": "from-config"}

	opts := request.NewRequestOptions().WithHeaders(map[string]string{"X-Trace": "from-options"})
	_, _, err := SendWithRetry(context.Background(), tr, cfg, opts, newReq(t), echoMapper)
	require.NoError(t, err)

	require.Len(t, tr.Requests, 1)
	assert.Equal(t, "from-options", tr.Requests[0].Header.Get("X-Trace"))
	assert.Equal(t, "Bearer sk-test", tr.Requests[0].Header.Get("Authorization"))
}

func TestSendWithRetry_SetsCorrelationIDHeader(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Status: 200, Body: "ok"})
	cfg := testConfig()

	_, _, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.NoError(t, err)

	require.Len(t, tr.Requests, 1)
	assert.NotEmpty(t, tr.Requests[0].Header.Get("X-Correlation-Id"))
}

func TestSendWithRetry_TransportErrorWrapsAsHTTPError(t *testing.T) {
	tr := mocktransport.New(mocktransport.Response{Err: assertErr{"connection refused"}})
	cfg := testConfig()
	cfg.RetryPolicy.MaxRetries = 0

	_, _, err := SendWithRetry(context.Background(), tr, cfg, nil, newReq(t), echoMapper)
	require.Error(t, err)

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindHTTP, sdkErr.Kind)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestSendWithRetry_OverallTimeoutAbandons(t *testing.T) {
	tr := mocktransport.New(
		mocktransport.Response{Status: 503, Body: "1"},
		mocktransport.Response{Status: 503, Body: "2"},
		mocktransport.Response{Status: 503, Body: "3"},
	)
	cfg := testConfig()
	cfg.RetryPolicy.MaxRetries = 5
	cfg.RetryPolicy.InitialBackoff = time.Hour
	cfg.RetryPolicy.Jitter = false

	opts := request.NewRequestOptions().WithOverallTimeout(time.Millisecond)
	_, _, err := SendWithRetry(context.Background(), tr, cfg, opts, newReq(t), echoMapper)
	require.Error(t, err)

	var sdkErr *sdkerr.SdkError
	require.ErrorAs(t, err, &sdkErr)
	assert.Equal(t, sdkerr.KindTimeout, sdkErr.Kind)
}

var _ retrypolicy.Retriable = retriableTransportErr{}
