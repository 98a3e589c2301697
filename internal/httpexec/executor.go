package httpexec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/rs/zerolog"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gqlclient/internal/config"
	"gqlclient/internal/flatten"
)

// RetryDelay is the base delay between attempts of a transient failure
const RetryDelay = 200 * time.Millisecond

// ErrNoQueryEndpoint is returned when the environment has no HTTP url
var ErrNoQueryEndpoint = errors.New("environment has no query url")

// ResponseError is returned when the server answers with a non-200 status
type ResponseError struct {
	StatusCode int
	Query      string
	Variables  map[string]any
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("query failed to run by returning code of %d", e.StatusCode)
}

// Response is a decoded GraphQL response
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`

	// Raw holds the whole response body
	Raw json.RawMessage `json:"-"`
}

type request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Executor runs queries and mutations over HTTP against the current environment
type Executor struct {
	store       *config.Store
	client      *http.Client
	ipv4Client  *http.Client
	maxAttempts int
	logger      zerolog.Logger
}

// New creates an executor reading endpoints from the store
func New(store *config.Store, cfg *config.Config, logger zerolog.Logger) *Executor {
	attempts := config.DefaultRetryMaxAttempts
	if cfg != nil && cfg.RetryMaxAttempts > 0 {
		attempts = cfg.RetryMaxAttempts
	}
	return &Executor{
		store:       store,
		client:      &http.Client{Transport: newTransport(false)},
		ipv4Client:  &http.Client{Transport: newTransport(true)},
		maxAttempts: attempts,
		logger:      logger.With().Str("component", "httpexec").Logger(),
	}
}

func newTransport(ipv4Only bool) *http.Transport {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}
	if ipv4Only {
		transport.DialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp4", addr)
		}
	}
	return transport
}

// Execute posts the document and returns the decoded response.
// Network failures and 5xx answers are retried up to the configured attempts.
func (e *Executor) Execute(ctx context.Context, query string, variables map[string]any) (*Response, error) {
	env, err := e.store.Current()
	if err != nil {
		return nil, err
	}
	if env.URL == "" {
		return nil, ErrNoQueryEndpoint
	}

	body, err := json.Marshal(request{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	client := e.client
	if env.IPv4Only {
		client = e.ipv4Client
	}

	return retry.DoWithData(
		func() (*Response, error) {
			return e.post(ctx, client, &env, body, query, variables)
		},
		retry.Attempts(uint(e.maxAttempts)),
		retry.Delay(RetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.Context(ctx),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Warn().Err(err).Uint("attempt", n+1).Str("url", env.URL).Msg("retrying request")
		}),
	)
}

func (e *Executor) post(ctx context.Context, client *http.Client, env *config.Environment, body []byte, query string, variables map[string]any) (*Response, error) {
	if timeout := env.GetPostTimeoutDuration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, env.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range env.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ResponseError{
			StatusCode: resp.StatusCode,
			Query:      query,
			Variables:  variables,
			Body:       string(respBody),
		}
	}

	var out Response
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	out.Raw = respBody
	return &out, nil
}

func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Query runs a query and returns its data, flattened unless disabled
func (e *Executor) Query(ctx context.Context, query string, variables map[string]any, opts ...Option) (json.RawMessage, gqlerror.List) {
	o := applyOptions(opts)

	resp, err := e.Execute(ctx, query, variables)
	if err != nil {
		return nil, gqlerror.List{transportError(err)}
	}

	if !o.flatten {
		return resp.Raw, resp.Errors
	}
	return flatten.Raw(resp.Data, o.singleChild), resp.Errors
}

// QueryOne runs a query whose result collapses to a single item
func (e *Executor) QueryOne(ctx context.Context, query string, variables map[string]any) (json.RawMessage, gqlerror.List) {
	return e.Query(ctx, query, variables, WithSingleChild())
}

// Mutate runs a mutation. Data is returned only when there are no errors.
// Flattened results carrying a messages list contribute those messages as errors.
func (e *Executor) Mutate(ctx context.Context, mutation string, variables map[string]any, opts ...Option) (json.RawMessage, gqlerror.List) {
	o := applyOptions(opts)

	var errs gqlerror.List
	resp, err := e.Execute(ctx, mutation, variables)
	if err != nil {
		errs = append(errs, transportError(err))
	} else {
		errs = append(errs, resp.Errors...)
	}

	var data json.RawMessage
	if len(errs) == 0 && resp != nil {
		data = resp.Data
	}
	if !o.flatten {
		return data, errs
	}

	data = flatten.Raw(data, false)
	errs = append(errs, Messages(data)...)
	return data, errs
}

// Messages extracts the messages list of a mutation result as errors
func Messages(data json.RawMessage) gqlerror.List {
	if len(data) == 0 {
		return nil
	}
	var result struct {
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}

	errs := make(gqlerror.List, 0, len(result.Messages))
	for _, raw := range result.Messages {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			errs = append(errs, &gqlerror.Error{Message: string(raw)})
			continue
		}
		msg, _ := fields["message"].(string)
		delete(fields, "message")
		gqlErr := &gqlerror.Error{Message: msg}
		if len(fields) > 0 {
			gqlErr.Extensions = fields
		}
		errs = append(errs, gqlErr)
	}
	return errs
}

func transportError(err error) *gqlerror.Error {
	return &gqlerror.Error{Err: err, Message: err.Error()}
}
