package utils

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

type HTTPClientConfig struct {
	Timeout       time.Duration
	KATimeout     time.Duration
	ProxyURL      string
	ProxyUsername string
	ProxyPassword string
	UserAgent     string
	Headers       map[string]string
	MaxRetries    int           // 0 means MaxTransientRetries
	RetryDelay    time.Duration // 0 means RetryBaseDelay
}

// HTTPDoer is the request surface the download workers depend on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// HTTPClient wraps http.Client with default headers and automatic retry of
// transient status codes (403, 429, 5xx) using capped exponential backoff.
// Retries apply to obtaining a response, never to a body already being
// streamed.
type HTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = DefaultKATimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = MaxTransientRetries
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = RetryBaseDelay
	}
	if cfg.Headers == nil {
		cfg.Headers = make(map[string]string)
	}
	transport := &http.Transport{
		IdleConnTimeout:     cfg.KATimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		DisableCompression:  true,
		MaxConnsPerHost:     0,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		config: cfg,
	}
}

func (c *HTTPClient) SetHeader(key, value string) {
	c.config.Headers[key] = value
}

func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", "hyperfetch")
	}
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}
	var lastErr error
	delay := c.config.RetryDelay
	for attempt := 0; attempt < c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay = min(delay*2, RetryMaxDelay)
		}
		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			log.Debug().Str("op", "utils/http-client").Err(err).Msgf("Request attempt %d failed", attempt+1)
			if req.GetBody == nil && req.Body != nil {
				return nil, err // non-replayable body, cannot retry
			}
			continue
		}
		if TransientStatusCodes[resp.StatusCode] {
			lastErr = fmt.Errorf("transient status code: %d", resp.StatusCode)
			log.Debug().Str("op", "utils/http-client").Msgf("Got status %d on attempt %d, retrying", resp.StatusCode, attempt+1)
			resp.Body.Close()
			continue
		}
		return resp, nil
	}
	return nil, fmt.Errorf("request failed after %d attempts: %w", c.config.MaxRetries, lastErr)
}
