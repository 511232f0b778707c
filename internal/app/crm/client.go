package crm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/groupsync/internal/app/system/metrics"
	"github.com/dalemusser/groupsync/internal/app/system/validation"
	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Config configures the HTTP client.
type Config struct {
	BaseURL string // REST endpoint, e.g. https://crm.example.org/civicrm/ajax/rest
	APIKey  string
	SiteKey string

	Timeout   time.Duration // per request; default 15s
	RateLimit float64       // requests per second; 0 disables limiting
	Burst     int

	// OAuth, when set, authenticates requests with client credentials instead
	// of relying only on the api/site keys.
	OAuth *clientcredentials.Config

	// HTTPClient overrides the transport (tests). OAuth is ignored when set.
	HTTPClient *http.Client

	// Recorder is told about every group contact write.
	Recorder WriteRecorder
}

// WriteRecorder observes group contact writes made by this service so that the
// webhook intake can recognise their echoes.
type WriteRecorder interface {
	RecordGroupContacts(groupID int64, status Status, contactIDs []int64)
}

// Client implements API over the CRM's REST envelope.
type Client struct {
	base     string
	apiKey   string
	siteKey  string
	http     *http.Client
	limiter  *rate.Limiter
	cb       *gobreaker.CircuitBreaker[[]byte]
	recorder WriteRecorder
	log      *zap.Logger
}

var _ API = (*Client)(nil)

// NewClient builds a Client.
func NewClient(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("%w: base url required", ErrValidation)
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrValidation, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	hc := cfg.HTTPClient
	if hc == nil {
		if cfg.OAuth != nil {
			hc = cfg.OAuth.Client(ctx)
			hc.Timeout = timeout
		} else {
			hc = &http.Client{Timeout: timeout}
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Client{
		base:     cfg.BaseURL,
		apiKey:   cfg.APIKey,
		siteKey:  cfg.SiteKey,
		http:     hc,
		limiter:  limiter,
		cb:       newBreaker("crm-api", logger),
		recorder: cfg.Recorder,
		log:      logger,
	}, nil
}

// envelope is the uniform response shape.
type envelope struct {
	IsError      int             `json:"is_error"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ErrorCode    string          `json:"error_code,omitempty"`
	Count        int             `json:"count"`
	ID           int64           `json:"id,omitempty"`
	Values       json.RawMessage `json:"values"`
}

// call validates params, sends one request and decodes values into out.
// out may be nil for delete-style actions.
func (c *Client) call(ctx context.Context, entity, action string, params any, out any) error {
	if params != nil {
		if _, isMap := params.(map[string]any); !isMap {
			if err := validation.Struct(params); err != nil {
				c.log.Warn("crm params rejected",
					zap.String("entity", entity),
					zap.String("action", action),
					zap.Error(err))
				metrics.CRMRequests.WithLabelValues(entity, action, "invalid").Inc()
				return fmt.Errorf("%w: %s.%s: %v", ErrValidation, entity, action, err)
			}
		}
	}

	payload, err := encodeParams(params)
	if err != nil {
		return fmt.Errorf("crm %s.%s: encode params: %w", entity, action, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("crm %s.%s: rate limit: %w", entity, action, err)
		}
	}

	start := time.Now()
	body, err := c.cb.Execute(func() ([]byte, error) {
		return c.post(ctx, entity, action, payload)
	})
	metrics.CRMRequestDuration.WithLabelValues(entity, action).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CRMRequests.WithLabelValues(entity, action, breakerResult(err)).Inc()
		c.log.Error("crm request failed",
			zap.String("entity", entity),
			zap.String("action", action),
			zap.ByteString("params", payload),
			zap.Error(err),
			zap.Stack("stack"))
		return err
	}
	metrics.CRMRequests.WithLabelValues(entity, action, metrics.ResultOK).Inc()

	if out == nil {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("crm %s.%s: decode: %w", entity, action, err)
	}
	if len(env.Values) == 0 || string(env.Values) == "null" {
		return nil
	}
	if err := json.Unmarshal(env.Values, out); err != nil {
		return fmt.Errorf("crm %s.%s: decode values: %w", entity, action, err)
	}
	return nil
}

// post sends the form and returns the raw body. Error envelopes are returned
// as ErrAPI; the breaker does not count them as failures.
func (c *Client) post(ctx context.Context, entity, action string, payload []byte) ([]byte, error) {
	form := url.Values{}
	form.Set("entity", entity)
	form.Set("action", action)
	form.Set("json", string(payload))
	if c.apiKey != "" {
		form.Set("api_key", c.apiKey)
	}
	if c.siteKey != "" {
		form.Set("key", c.siteKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("crm %s.%s: %w", entity, action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("crm %s.%s: read body: %w", entity, action, err)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("crm %s.%s: http %d: %s", entity, action, resp.StatusCode, snippet(body))
	}

	var head struct {
		IsError      int    `json:"is_error"`
		ErrorMessage string `json:"error_message"`
	}
	if err := json.Unmarshal(body, &head); err != nil {
		return nil, fmt.Errorf("crm %s.%s: decode envelope: %w", entity, action, err)
	}
	if head.IsError != 0 {
		return nil, fmt.Errorf("%w: %s.%s: %s", ErrAPI, entity, action, head.ErrorMessage)
	}
	return body, nil
}

func encodeParams(params any) ([]byte, error) {
	if params == nil {
		return []byte(`{"sequential":1}`), nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	m["sequential"] = 1
	return json.Marshal(m)
}

func snippet(b []byte) string {
	b = bytes.TrimSpace(b)
	if len(b) > 256 {
		b = b[:256]
	}
	return string(b)
}
