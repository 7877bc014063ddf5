package fiware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	headerService     = "Fiware-Service"
	headerServicePath = "Fiware-ServicePath"
	headerTotalCount  = "Fiware-Total-Count"

	// DefaultTimeout applies when Options.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	// DefaultPageSize is the IoT Agent and Orion maximum page size.
	DefaultPageSize = 1000
)

// Tenant identifies the FIWARE service and service path every request is
// scoped to.
type Tenant struct {
	Service     string
	ServicePath string
}

// Options are shared by the IoT Agent and Orion clients.
type Options struct {
	Tenant     Tenant
	Timeout    time.Duration
	PageSize   int
	HTTPClient *http.Client
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{}
	}
	return o
}

// transport is the JSON-over-HTTP plumbing shared by the clients.
type transport struct {
	baseURL    string
	tenant     Tenant
	timeout    time.Duration
	httpClient *http.Client
}

func newTransport(baseURL string, opts Options) transport {
	return transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tenant:     opts.Tenant,
		timeout:    opts.Timeout,
		httpClient: opts.HTTPClient,
	}
}

func (t transport) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding %s %s body: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	target := t.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if t.tenant.Service != "" {
		req.Header.Set(headerService, t.tenant.Service)
	}
	if t.tenant.ServicePath != "" {
		req.Header.Set(headerServicePath, t.tenant.ServicePath)
	}
	return req, nil
}

// do performs one call under the transport timeout. A 2xx body is decoded
// into out when out is non-nil. The response headers are returned so list
// calls can read pagination totals.
func (t transport) do(ctx context.Context, method, path string, query url.Values, body, out any) (http.Header, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := t.newRequest(ctx, method, path, query, body)
	if err != nil {
		return nil, err
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fiware: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("fiware: reading %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.Header, &StatusError{
			Method: method,
			Path:   path,
			Status: resp.StatusCode,
			Body:   truncate(bytes.TrimSpace(payload)),
		}
	}

	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			return resp.Header, fmt.Errorf("%w: %s %s: %w", ErrDecode, method, path, err)
		}
	}
	return resp.Header, nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	q.Set("offset", fmt.Sprint(offset))
	return q
}

// morePages decides whether a paginated list needs another request. total
// is the component-reported total, or -1 when it did not report one.
func morePages(fetched, pageLen, limit, total int) bool {
	if pageLen == 0 || pageLen < limit {
		return false
	}
	if total >= 0 && fetched >= total {
		return false
	}
	return true
}
