// Package mocktransport is a test-only fake HTTPTransport, used in place of
// a real *http.Client so transport and provider adapter tests never touch
// the network. Modeled on llm2/chat_history.go's BlockIdGenerator for
// giving each canned response a distinguishable request id via ksuid.
package mocktransport

import (
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"
)

// Response is one canned reply. Status defaults to 200 if zero.
type Response struct {
	Status  int
	Body    string
	Headers map[string]string
	Err     error // if set, Do returns this error instead of a response
}

// Transport replays a fixed queue of Responses in order, recording every
// request it saw for assertions. Safe for concurrent use.
type Transport struct {
	mu        sync.Mutex
	queue     []Response
	nextIdx   int
	Requests  []*http.Request
	RequestIDs []string
}

func New(responses ...Response) *Transport {
	return &Transport{queue: responses}
}

// Enqueue appends additional responses, useful for building up a retry
// scenario incrementally.
func (t *Transport) Enqueue(r Response) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queue = append(t.queue, r)
}

func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	if t.nextIdx >= len(t.queue) {
		t.mu.Unlock()
		panic("mocktransport: ran out of canned responses")
	}
	resp := t.queue[t.nextIdx]
	t.nextIdx++
	id := ksuid.New().String()
	t.Requests = append(t.Requests, req)
	t.RequestIDs = append(t.RequestIDs, id)
	t.mu.Unlock()

	if resp.Err != nil {
		return nil, resp.Err
	}

	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}

	header := make(http.Header, len(resp.Headers))
	for k, v := range resp.Headers {
		header.Set(k, v)
	}
	header.Set("X-Mock-Request-Id", id)

	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Header:     header,
		Body:       io.NopCloser(strings.NewReader(resp.Body)),
	}, nil
}

// CallCount returns how many requests have been dispatched so far.
func (t *Transport) CallCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.Requests)
}
