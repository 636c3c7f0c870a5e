// Package httputil builds pooled HTTP clients for the outbound APIs.
package httputil

import (
	"net"
	"net/http"
	"time"
)

// =============================================================================
// Pooled HTTP Client
// =============================================================================

// ClientConfig holds HTTP client configuration.
type ClientConfig struct {
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	IdleConnTimeout     time.Duration

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	// ResponseTimeout bounds the whole request, body included. Zero means
	// callers rely on their context deadline alone.
	ResponseTimeout time.Duration

	KeepAliveInterval time.Duration
}

// DefaultClientConfig returns general purpose defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     100,
		IdleConnTimeout:     90 * time.Second,
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		ResponseTimeout:     30 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// GmailClientConfig sizes the pool for parallel messages.get calls.
// Per-call deadlines come from the adapter's context, so there is no
// client-wide timeout.
func GmailClientConfig(concurrency int) ClientConfig {
	cfg := DefaultClientConfig()
	if concurrency > cfg.MaxIdleConnsPerHost {
		cfg.MaxIdleConnsPerHost = concurrency
	}
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 0
	return cfg
}

// OpenAIClientConfig allows long completions with moderate concurrency.
func OpenAIClientConfig(workers int) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.MaxIdleConns = 30
	if workers > cfg.MaxIdleConnsPerHost {
		cfg.MaxIdleConnsPerHost = workers
	}
	cfg.MaxConnsPerHost = 30
	cfg.IdleConnTimeout = 120 * time.Second
	cfg.ResponseTimeout = 120 * time.Second
	return cfg
}

// NewClient creates an HTTP client with a tuned, pooled transport.
func NewClient(cfg ClientConfig) *http.Client {
	dialer := &net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: cfg.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ResponseTimeout,
	}
}
