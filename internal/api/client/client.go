// Package client talks to a running kernel's monitor server.
package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/exokernel/internal/abi"
	apihttp "github.com/GriffinCanCode/AgentOS/exokernel/internal/api/http"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/logging"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/AgentOS/exokernel/internal/kernel"
)

// APIError is a response the monitor answered with an error status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("monitor: %d %s", e.Status, e.Message)
}

// Health is the monitor's liveness report.
type Health struct {
	Status string `json:"status"`
	BootID string `json:"boot_id"`
	Seq    uint64 `json:"seq"`
	Halted bool   `json:"halted"`
}

// Clocks is every clock reading.
type Clocks struct {
	Clocks     []kernel.ClockSnapshot `json:"clocks"`
	Resolution string                 `json:"resolution"`
	Wallclock  string                 `json:"wallclock"`
	Uptime     string                 `json:"uptime"`
}

// EnvList is one listing of the environment table.
type EnvList struct {
	Seq     uint64               `json:"seq"`
	Current string               `json:"current"`
	Envs    []kernel.EnvSnapshot `json:"envs"`
}

type errorBody struct {
	Error string `json:"error"`
}

// Client is a monitor client. Requests are retried by the transport on
// connection errors and 5xx answers; a breaker stops calling a monitor
// that keeps failing.
type Client struct {
	resty   *resty.Client
	breaker *resilience.Breaker
	log     *logging.Logger
}

type options struct {
	timeout   time.Duration
	retries   int
	minWait   time.Duration
	maxWait   time.Duration
	breaker   resilience.Settings
	log       *logging.Logger
	userAgent string
}

// Option configures a Client.
type Option func(*options)

// WithTimeout bounds each request, retries included.
func WithTimeout(d time.Duration) Option { return func(o *options) { o.timeout = d } }

// WithRetry sets the transport retry policy.
func WithRetry(max int, minWait, maxWait time.Duration) Option {
	return func(o *options) { o.retries, o.minWait, o.maxWait = max, minWait, maxWait }
}

// WithBreaker sets the breaker settings.
func WithBreaker(s resilience.Settings) Option { return func(o *options) { o.breaker = s } }

// WithLogger logs breaker transitions to l.
func WithLogger(l *logging.Logger) Option { return func(o *options) { o.log = l } }

// New creates a client for the monitor at baseURL.
func New(baseURL string, opts ...Option) *Client {
	o := options{
		timeout:   10 * time.Second,
		retries:   3,
		minWait:   200 * time.Millisecond,
		maxWait:   2 * time.Second,
		userAgent: "kstat/1.0",
		breaker: resilience.Settings{
			Cooldown: 5 * time.Second,
			Trip:     func(c resilience.Counts) bool { return c.ConsecutiveFailures >= 3 },
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logging.NewNop()
	}
	log := o.log.Named("client")

	retry := retryablehttp.NewClient()
	retry.RetryMax = o.retries
	retry.RetryWaitMin = o.minWait
	retry.RetryWaitMax = o.maxWait
	retry.Logger = nil

	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	r := resty.NewWithClient(retry.StandardClient()).
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(o.timeout).
		SetHeader("User-Agent", o.userAgent).
		SetHeader("Accept", "application/json")

	settings := o.breaker
	settings.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("monitor circuit changed",
			zap.String("breaker", name), zap.Stringer("from", from), zap.Stringer("to", to))
	}

	return &Client{
		resty:   r,
		breaker: resilience.New("monitor", settings),
		log:     log,
	}
}

// BreakerState is the state of the client's circuit.
func (c *Client) BreakerState() resilience.State { return c.breaker.State() }

// get performs one GET. Transport errors and 5xx answers count against
// the breaker; 4xx answers are returned as *APIError without tripping it.
func (c *Client) get(ctx context.Context, path string, query map[string]string, result any) (*resty.Response, error) {
	var eb errorBody
	resp, err := resilience.Do(c.breaker, func() (*resty.Response, error) {
		req := c.resty.R().SetContext(ctx).SetQueryParams(query).SetError(&eb)
		if result != nil {
			req.SetResult(result)
		}
		resp, err := req.Get(path)
		if err != nil {
			return nil, fmt.Errorf("monitor GET %s: %w", path, err)
		}
		if resp.StatusCode() >= http.StatusInternalServerError {
			return resp, apiError(resp, eb)
		}
		return resp, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return resp, apiError(resp, eb)
	}
	return resp, nil
}

func apiError(resp *resty.Response, eb errorBody) *APIError {
	msg := eb.Error
	if msg == "" {
		msg = strings.TrimSpace(string(resp.Body()))
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}

// Health fetches the liveness report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if _, err := c.get(ctx, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Envs lists environments, all of them when status is "".
func (c *Client) Envs(ctx context.Context, status string) (*EnvList, error) {
	var q map[string]string
	if status != "" {
		q = map[string]string{"status": status}
	}
	var l EnvList
	if _, err := c.get(ctx, "/envs", q, &l); err != nil {
		return nil, err
	}
	for i := range l.Envs {
		l.Envs[i].ID = parseEnvID(l.Envs[i].EnvID)
	}
	return &l, nil
}

// Env fetches one environment.
func (c *Client) Env(ctx context.Context, id abi.EnvID) (*kernel.EnvSnapshot, error) {
	var body struct {
		Env kernel.EnvSnapshot `json:"env"`
	}
	if _, err := c.get(ctx, "/envs/"+id.String(), nil, &body); err != nil {
		return nil, err
	}
	body.Env.ID = parseEnvID(body.Env.EnvID)
	return &body.Env, nil
}

func parseEnvID(s string) abi.EnvID {
	var v uint32
	_, _ = fmt.Sscanf(s, "%x", &v)
	return abi.EnvID(v)
}

// Clocks fetches every clock reading.
func (c *Client) Clocks(ctx context.Context) (*Clocks, error) {
	var cl Clocks
	if _, err := c.get(ctx, "/clocks", nil, &cl); err != nil {
		return nil, err
	}
	return &cl, nil
}

// Metrics fetches the aggregated metrics document.
func (c *Client) Metrics(ctx context.Context) (*apihttp.MetricsSnapshot, error) {
	var m apihttp.MetricsSnapshot
	if _, err := c.get(ctx, "/metrics/json", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Command runs a kernel monitor command and returns its output.
func (c *Client) Command(ctx context.Context, name string, args ...string) (string, error) {
	var q map[string]string
	if len(args) > 0 {
		q = map[string]string{"args": strings.Join(args, " ")}
	}
	resp, err := c.get(ctx, "/monitor/"+name, q, nil)
	if err != nil {
		return "", err
	}
	return string(resp.Body()), nil
}

// Tail fetches the recent console output.
func (c *Client) Tail(ctx context.Context) ([]byte, error) {
	resp, err := c.get(ctx, "/console/tail", nil, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
