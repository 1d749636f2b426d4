package invoker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// OutcomeKind classifies the result of a remote invocation. Every call
// produces exactly one of these; the invoker itself never retries.
type OutcomeKind string

const (
	// OutcomeSuccess means a 2xx response with a parseable service envelope
	OutcomeSuccess OutcomeKind = "success"
	// OutcomeHTTPError means a non-2xx status; StatusCode and Body are set
	OutcomeHTTPError OutcomeKind = "http_error"
	// OutcomeDecodeError means a 2xx response whose body was not the expected shape
	OutcomeDecodeError OutcomeKind = "decode_error"
	// OutcomeNetworkError means no response arrived within the timeout
	OutcomeNetworkError OutcomeKind = "network_error"
)

// Response is the standard envelope returned by the remote action services.
type Response struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data"`
	Error   *string                `json:"error"`
}

// Outcome is the classified result of a single invocation.
type Outcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       []byte    // raw body, set for http errors
	Response   *Response // set only for OutcomeSuccess
	Err        error     // underlying error for network/decode outcomes
}

// OK reports whether the call succeeded at both the transport and service level.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess && o.Response != nil && o.Response.Success
}

// ServiceError returns the service-level error message for a parsed but
// unsuccessful response.
func (o Outcome) ServiceError() string {
	if o.Response != nil && o.Response.Error != nil {
		return *o.Response.Error
	}
	return "unknown error"
}

// Request describes one remote action invocation.
type Request struct {
	Target  string
	Method  string
	Payload interface{}
	Headers map[string]string
	Timeout time.Duration
}

// Client performs bounded-timeout calls to remote action services.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// New creates a new invoker client
func New(log zerolog.Logger) *Client {
	return &Client{
		// Per-request deadlines come from Request.Timeout; the client-level
		// timeout is only a hard upper bound
		httpClient: &http.Client{Timeout: 30 * time.Minute},
		log:        log.With().Str("component", "invoker").Logger(),
	}
}

// Invoke performs the call and classifies the outcome. It never retries;
// the caller's next scheduled tick is the retry unit.
func (c *Client) Invoke(req Request) Outcome {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	var body io.Reader
	if req.Payload != nil {
		jsonData, err := json.Marshal(req.Payload)
		if err != nil {
			return Outcome{Kind: OutcomeDecodeError, Err: fmt.Errorf("failed to marshal payload: %w", err)}
		}
		body = bytes.NewReader(jsonData)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, method, req.Target, body)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	c.log.Debug().
		Str("target", req.Target).
		Str("method", method).
		Dur("timeout", timeout).
		Msg("Invoking remote action")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Outcome{Kind: OutcomeNetworkError, StatusCode: httpResp.StatusCode, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return Outcome{
			Kind:       OutcomeHTTPError,
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
		}
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return Outcome{
			Kind:       OutcomeDecodeError,
			StatusCode: httpResp.StatusCode,
			Body:       respBody,
			Err:        fmt.Errorf("failed to parse response: %w", err),
		}
	}

	return Outcome{
		Kind:       OutcomeSuccess,
		StatusCode: httpResp.StatusCode,
		Response:   &resp,
	}
}
