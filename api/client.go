// Package api is the client for the source HTTP API: it exchanges
// credentials for a bearer token and pages through collections.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"

	"github.com/helix-tools/etl-go/types"
)

// DefaultUserAgent is sent with every request unless overridden.
const DefaultUserAgent = "helix-etl-go"

var tracer = otel.Tracer("github.com/helix-tools/etl-go/api")

// Client wraps a resty client for the source API.
type Client struct {
	http *resty.Client

	maxPages           int
	detectCursorCycles bool
}

// ClientOptions configures a Client. The zero value is a client with no
// timeout and unbounded pagination.
type ClientOptions struct {
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration

	// UserAgent defaults to DefaultUserAgent.
	UserAgent string

	// HTTPClient replaces the underlying transport client.
	HTTPClient *http.Client

	// MaxPages aborts a fetch after this many pages. Zero means unbounded.
	MaxPages int

	// DetectCursorCycles aborts a fetch when the server repeats a cursor.
	DetectCursorCycles bool
}

// APIError represents an error response from the API.
type APIError struct {
	StatusCode int
	Body       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Message)
	}

	return fmt.Sprintf("API error %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized reports whether the API answered 401.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// IsNotFound reports whether the API answered 404.
func (e *APIError) IsNotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// NewClient creates a new API client.
func NewClient(opts ClientOptions) *Client {
	var client *resty.Client
	if opts.HTTPClient != nil {
		client = resty.NewWithClient(opts.HTTPClient)
	} else {
		client = resty.New()
	}

	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	client.SetHeader("User-Agent", userAgent)
	client.SetHeader("Accept", "application/json")

	instrumentClient(client)

	return &Client{
		http:               client,
		maxPages:           opts.MaxPages,
		detectCursorCycles: opts.DetectCursorCycles,
	}
}

// newAPIError builds an APIError from a non-2xx response, extracting a
// message from common JSON error shapes when present.
func newAPIError(res *resty.Response) *APIError {
	body := res.Body()
	apiErr := &APIError{
		StatusCode: res.StatusCode(),
		Body:       string(body),
	}

	var errResp struct {
		Error   string          `json:"error"`
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}

	if json.Unmarshal(body, &errResp) == nil {
		switch {
		case errResp.Error != "":
			apiErr.Message = errResp.Error
		case errResp.Message != "":
			apiErr.Message = errResp.Message
		case len(errResp.Detail) > 0:
			apiErr.Message = types.FormatValue(errResp.Detail)
		}
	}

	return apiErr
}

// IsNotFoundError checks if an error is, or wraps, a 404 Not Found error.
func IsNotFoundError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsNotFound()
	}

	return false
}

// IsUnauthorizedError checks if an error is, or wraps, a 401 Unauthorized error.
func IsUnauthorizedError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsUnauthorized()
	}

	return false
}
