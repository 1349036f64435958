// Package http builds the outbound HTTP clients used for peer sync, approval
// pulls and link checks.
package http

import (
	"net/http"
	"time"
)

const (
	DefaultTimeout             = 30 * time.Second
	DefaultMaxIdleConns        = 100
	DefaultMaxIdleConnsPerHost = 10
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second

	// DefaultMaxRedirects bounds redirect chains followed by NewClient.
	DefaultMaxRedirects = 10
)

// ClientConfig configures an HTTP client.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConnsPerHost int
	// CheckRedirect is installed on the client as-is when set.
	CheckRedirect func(req *http.Request, via []*http.Request) error
}

// NewClient returns an *http.Client with a tuned transport and a bounded timeout.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	perHost := cfg.MaxIdleConnsPerHost
	if perHost <= 0 {
		perHost = DefaultMaxIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        DefaultMaxIdleConns,
		MaxIdleConnsPerHost: perHost,
		IdleConnTimeout:     DefaultIdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
	}

	return &http.Client{
		Timeout:       timeout,
		Transport:     transport,
		CheckRedirect: cfg.CheckRedirect,
	}
}
