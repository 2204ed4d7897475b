package httputil

import (
	"net"
	"net/http"
	"time"
)

// NewTransport returns the pooled transport shared by every backend client.
// One transport serves all visitors so connections to the API are reused.
func NewTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
}

// NewClient creates an HTTP client with its own pooled transport.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: NewTransport(),
	}
}

// NewClientWithJar creates a client over a shared transport with a private cookie jar.
func NewClientWithJar(timeout time.Duration, transport http.RoundTripper, jar http.CookieJar) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		Jar:       jar,
	}
}
