package httpclient

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/getmentor/confluence-alert-action/pkg/errors"
	"github.com/getmentor/confluence-alert-action/pkg/logger"
	"github.com/getmentor/confluence-alert-action/pkg/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// DefaultTimeout bounds every request made by the standard client
const DefaultTimeout = 30 * time.Second

// Client defines an interface for making HTTP requests
// This allows for easy mocking and testing of HTTP calls
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// StandardHTTPClient wraps the standard http.Client
type StandardHTTPClient struct {
	client *http.Client
}

// NewStandardClient creates a new HTTP client with a fixed timeout and an
// instrumented transport. A non-positive timeout selects DefaultTimeout.
func NewStandardClient(timeout time.Duration) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &StandardHTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Do executes an HTTP request
func (c *StandardHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// RequestOptions carries optional credentials and extra headers for a request
type RequestOptions struct {
	User    string
	Token   string
	Headers map[string]string
}

// JSONClient issues single-attempt requests with Basic auth and JSON bodies
type JSONClient struct {
	client  Client
	service string
}

// NewJSONClient creates a JSONClient. service labels log lines.
func NewJSONClient(client Client, service string) *JSONClient {
	return &JSONClient{
		client:  client,
		service: service,
	}
}

// BasicAuth returns the value of an Authorization header for user and token
func BasicAuth(user, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+token))
}

// Request sends one request and returns the decoded JSON value for JSON
// responses or the raw text otherwise. Non-2xx responses and transport
// failures are returned as *errors.RequestError.
func (c *JSONClient) Request(ctx context.Context, method, url string, body any, opts RequestOptions) (any, error) {
	data, contentType, err := c.do(ctx, method, url, body, opts)
	if err != nil {
		return nil, err
	}

	if !isJSON(contentType) {
		return string(data), nil
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w: %w", url, err, apperrors.ErrRequest)
	}
	return decoded, nil
}

// RequestInto sends one request and unmarshals the JSON response into out
func (c *JSONClient) RequestInto(ctx context.Context, method, url string, body any, opts RequestOptions, out any) error {
	data, _, err := c.do(ctx, method, url, body, opts)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w: %w", url, err, apperrors.ErrRequest)
	}
	return nil
}

func (c *JSONClient) do(ctx context.Context, method, url string, body any, opts RequestOptions) ([]byte, string, error) {
	reader, isJSONBody, err := encodeBody(body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, "", &apperrors.RequestError{Method: method, URL: url, Cause: err}
	}

	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}
	if opts.User != "" && opts.Token != "" {
		req.Header.Set("Authorization", BasicAuth(opts.User, opts.Token))
	}
	if isJSONBody {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.record(method, url, 0, start, err)
		return nil, "", &apperrors.RequestError{Method: method, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.record(method, url, resp.StatusCode, start, err)
		return nil, "", &apperrors.RequestError{Method: method, URL: url, Cause: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reqErr := &apperrors.RequestError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       strings.ToValidUTF8(string(data), ""),
		}
		c.record(method, url, resp.StatusCode, start, reqErr)
		return nil, "", reqErr
	}

	c.record(method, url, resp.StatusCode, start, nil)
	return data, resp.Header.Get("Content-Type"), nil
}

func (c *JSONClient) record(method, url string, statusCode int, start time.Time, err error) {
	duration := metrics.MeasureDuration(start)
	status := metrics.StatusCodeLabel(statusCode)
	metrics.HTTPClientRequestDuration.WithLabelValues(method, status).Observe(duration)
	metrics.HTTPClientRequestTotal.WithLabelValues(method, status).Inc()

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("url", url),
		zap.Int("status_code", statusCode),
	}
	if err != nil {
		logger.LogAPICall(c.service, method, "error", duration, append(fields, zap.Error(err))...)
		return
	}
	logger.LogAPICall(c.service, method, "success", duration, fields...)
}

// encodeBody turns a request body into a reader. Structured values are
// marshalled to JSON; raw bodies are passed through untouched.
func encodeBody(body any) (io.Reader, bool, error) {
	switch b := body.(type) {
	case nil:
		return nil, false, nil
	case io.Reader:
		return b, false, nil
	case []byte:
		return bytes.NewReader(b), false, nil
	case string:
		return strings.NewReader(b), false, nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, false, err
		}
		return bytes.NewReader(data), true, nil
	}
}

func isJSON(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(contentType)), "application/json")
}
