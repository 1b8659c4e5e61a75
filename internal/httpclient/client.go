package httpclient

import (
	"net"
	"net/http"
	"time"
)

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger Logger
}

// Logger is the minimal logging surface this package needs.
type Logger interface {
	Debug(format string, args ...any)
	Warn(format string, args ...any)
}

// Transport returns a RoundTripper with pooled connections and sane dial
// timeouts. Pass nil to start from the package defaults.
func Transport(base *http.Transport) http.RoundTripper {
	if base == nil {
		base = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
		}
	}
	return base
}

// New builds an HTTP client with the shared transport and an overall timeout.
// A zero timeout leaves per-request deadlines to the caller's context, which
// long-poll transports rely on.
func New(timeout time.Duration, logger Logger) *http.Client {
	var rt http.RoundTripper = Transport(nil)
	if logger != nil {
		rt = &loggingRoundTripper{base: rt, logger: logger}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	elapsed := time.Since(start)
	if err != nil {
		t.logger.Warn("http %s %s failed after %v: %v", req.Method, req.URL.Host, elapsed, err)
		return nil, err
	}
	t.logger.Debug("http %s %s -> %d in %v", req.Method, req.URL.Host, resp.StatusCode, elapsed)
	return resp, nil
}
