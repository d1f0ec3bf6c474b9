// Package gatewayhttp is the outbound transport shared by the payment gateway
// clients: bounded wait, a circuit breaker per gateway, and call metrics.
package gatewayhttp

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/ariefcatur/marketplace-checkout/internal/apperr"
	"github.com/ariefcatur/marketplace-checkout/internal/logging"
	"github.com/ariefcatur/marketplace-checkout/internal/metrics"
)

const maxBody = 1 << 20

type Response struct {
	Status int
	Body   []byte
}

// errUpstream marks 5xx answers so the breaker counts them as failures while
// the caller still gets the response.
var errUpstream = errors.New("gateway answered with a server error")

type Client struct {
	name    string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[Response]
	metrics *metrics.GatewayMetrics
	log     *zap.Logger
}

type Options struct {
	Timeout   time.Duration
	Metrics   *metrics.GatewayMetrics
	Logger    *zap.Logger
	Transport http.RoundTripper
}

func New(name string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	log := logging.OrNop(opts.Logger).With(zap.String("gateway", name))
	cb := gobreaker.NewCircuitBreaker[Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("gateway circuit state changed", zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})
	return &Client{
		name:    name,
		http:    &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		cb:      cb,
		metrics: opts.Metrics,
		log:     log,
	}
}

// Do sends req and returns the gateway's answer whatever its status. Only a
// transport failure or an open circuit yields an error, always a GatewayError.
func (c *Client) Do(op string, req *http.Request) (Response, error) {
	start := time.Now()
	resp, err := c.cb.Execute(func() (Response, error) {
		res, err := c.http.Do(req)
		if err != nil {
			return Response{}, err
		}
		defer res.Body.Close()
		body, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
		if err != nil {
			return Response{}, fmt.Errorf("read body: %w", err)
		}
		out := Response{Status: res.StatusCode, Body: body}
		if res.StatusCode >= 500 {
			return out, errUpstream
		}
		return out, nil
	})
	ms := float64(time.Since(start).Milliseconds())

	switch {
	case err == nil:
		c.metrics.Observe(c.name, op, outcome(resp.Status), ms)
		return resp, nil
	case errors.Is(err, errUpstream):
		c.metrics.Observe(c.name, op, outcome(resp.Status), ms)
		return resp, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		c.metrics.Observe(c.name, op, "circuit_open", ms)
		return Response{}, apperr.Gateway(http.StatusServiceUnavailable, c.name+" temporarily unavailable", nil, err)
	default:
		c.metrics.Observe(c.name, op, "transport_error", ms)
		c.log.Error("gateway call failed", zap.String("op", op), zap.Error(err))
		return Response{}, apperr.Gateway(0, c.name+" request failed", nil, err)
	}
}

func outcome(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "ok"
	case status >= 500:
		return "server_error"
	default:
		return "client_error"
	}
}
