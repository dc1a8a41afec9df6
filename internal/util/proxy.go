package util

import (
	"net/http"
	"net/url"

	"golang.org/x/net/http/httpproxy"

	"github.com/ppiankov/prospector/internal/model"
)

// NewProxyFunc creates a proxy function from configuration.
// Without explicit proxy URLs it falls back to the environment.
func NewProxyFunc(cfg model.HTTPConfig) func(*http.Request) (*url.URL, error) {
	if cfg.HTTPProxy == "" && cfg.HTTPSProxy == "" {
		return http.ProxyFromEnvironment
	}

	pc := &httpproxy.Config{
		HTTPProxy:  cfg.HTTPProxy,
		HTTPSProxy: cfg.HTTPSProxy,
		NoProxy:    cfg.NoProxy,
	}
	if pc.HTTPSProxy == "" {
		pc.HTTPSProxy = cfg.HTTPProxy
	}
	proxy := pc.ProxyFunc()
	return func(req *http.Request) (*url.URL, error) {
		return proxy(req.URL)
	}
}

// NewTransport returns an HTTP transport that honours the proxy settings
func NewTransport(cfg model.HTTPConfig) *http.Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = NewProxyFunc(cfg)
	return t
}
