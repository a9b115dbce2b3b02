package collector

import (
	"context"
	"errors"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpproxy"
)

const defaultHTTPTimeout = 30 * time.Second

// httpClient wraps fasthttp with context deadlines.
type httpClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

func newHTTPClient(proxyURL string, timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	c := &fasthttp.Client{
		Name:         "Mozilla/5.0",
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	if proxyURL != "" {
		c.Dial = fasthttpproxy.FasthttpHTTPDialerTimeout(proxyURL, timeout)
	}
	return &httpClient{client: c, timeout: timeout}
}

type httpResult struct {
	Status     int
	Body       []byte
	RetryAfter string
}

// get issues a GET request. headers are set verbatim. The request deadline is
// the earlier of the context deadline and the client timeout.
func (h *httpClient) get(ctx context.Context, uri string, headers map[string]string) (*httpResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(uri)
	req.Header.SetMethod(fasthttp.MethodGet)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	deadline := time.Now().Add(h.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := h.client.DoDeadline(req, resp, deadline); err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	// resp is released on return; copy what we keep
	return &httpResult{
		Status:     resp.StatusCode(),
		Body:       append([]byte(nil), resp.Body()...),
		RetryAfter: string(resp.Header.Peek("Retry-After")),
	}, nil
}
