package gateway

import (
	"context"
	"net"
	"net/http"
	"strings"
)

// forwardedHeaders are copied from the client request to the upstream.
// Authorization carries the customer or admin bearer token.
var forwardedHeaders = []string{"Content-Type", "Authorization", "Accept"}

type ServiceProxy struct {
	baseURL string
	client  *http.Client
}

func NewServiceProxy(baseURL string, client *http.Client) *ServiceProxy {
	return &ServiceProxy{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  client,
	}
}

// ForwardRequest sends r to path on the upstream service, keeping its query
// string and streaming its body. Upload bodies are not buffered, so the
// upstream sees the original Content-Length.
func (p *ServiceProxy) ForwardRequest(ctx context.Context, r *http.Request, path string) (*http.Response, error) {
	target := p.baseURL + path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target, r.Body)
	if err != nil {
		return nil, err
	}
	req.ContentLength = r.ContentLength

	for _, name := range forwardedHeaders {
		if value := r.Header.Get(name); value != "" {
			req.Header.Set(name, value)
		}
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			host = prior + ", " + host
		}
		req.Header.Set("X-Forwarded-For", host)
	}
	req.Header.Set("X-Forwarded-Host", r.Host)

	return p.client.Do(req)
}
