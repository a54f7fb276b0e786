// Package computeapi implements the service.Compute interface over the
// compute service's JSON HTTP API.
package computeapi

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"sheetrow/internal/service"
)

const (
	// APITimeout is the timeout for a single API call.
	APITimeout = 30 * time.Second

	// DefaultRequestsPerSecond limits calls made by one process.
	DefaultRequestsPerSecond = 5

	// DefaultMaxBodyBytes caps how much of a response is read.
	DefaultMaxBodyBytes = 64 << 20
)

// ErrResponseTooLarge is returned for a successful response whose body is
// longer than the client reads. The payload is never handed on cut short.
var ErrResponseTooLarge = errors.New("response body exceeds the size limit")

// Client implements service.Compute.
type Client struct {
	baseURL   *url.URL
	apiKey    string
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
	maxBody   int64
	newKey    func() string
}

// Option configures a Client.
type Option func(*Client)

// WithRateLimit caps outgoing requests per second. Zero or less keeps the default.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithMaxBodyBytes caps the response size. Zero or less keeps the default.
func WithMaxBodyBytes(n int64) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxBody = n
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a client for the API at baseURL authenticating with apiKey.
func New(baseURL, apiKey string, opts ...Option) (*Client, error) {
	return NewWithHTTPClient(http.DefaultClient, baseURL, apiKey, opts...)
}

// NewWithHTTPClient creates a client with a custom HTTP client (for testing).
func NewWithHTTPClient(httpClient *http.Client, baseURL, apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("api key is required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	c := &Client{
		baseURL:   u,
		apiKey:    apiKey,
		http:      httpClient,
		limiter:   rate.NewLimiter(DefaultRequestsPerSecond, 1),
		userAgent: "sheetrow",
		maxBody:   DefaultMaxBodyBytes,
		newKey:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type submitBody struct {
	Operation      string         `json:"operation"`
	Instruction    string         `json:"instruction"`
	Input          any            `json:"input"`
	ResponseSchema any            `json:"response_schema,omitempty"`
	SessionID      string         `json:"session_id,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
}

type submitReply struct {
	TaskID    string `json:"task_id"`
	SessionID string `json:"session_id"`
}

type statusReply struct {
	TaskID     string          `json:"task_id"`
	Status     string          `json:"status"`
	Operation  string          `json:"operation"`
	ArtifactID string          `json:"artifact_id"`
	Error      json.RawMessage `json:"error"`
}

// Submit implements service.Compute. Each call carries a fresh
// Idempotency-Key so a retried request cannot start a second task.
func (c *Client) Submit(ctx context.Context, req service.SubmitRequest) (service.SubmitResponse, error) {
	body := submitBody{
		Operation:      req.Operation,
		Instruction:    req.Instruction,
		Input:          req.Input,
		ResponseSchema: req.ResponseSchema,
		SessionID:      req.SessionID,
		Options:        req.Options,
	}
	var reply submitReply
	header := http.Header{"Idempotency-Key": []string{c.newKey()}}
	if err := c.do(ctx, http.MethodPost, "/tasks", nil, header, body, &reply); err != nil {
		return service.SubmitResponse{}, err
	}
	if reply.TaskID == "" {
		return service.SubmitResponse{}, errors.New("submit response carried no task id")
	}
	return service.SubmitResponse{TaskID: reply.TaskID, SessionID: reply.SessionID}, nil
}

// Status implements service.Compute.
func (c *Client) Status(ctx context.Context, taskID string) (service.Task, error) {
	var reply statusReply
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID), nil, nil, nil, &reply); err != nil {
		return service.Task{}, err
	}
	id := reply.TaskID
	if id == "" {
		id = taskID
	}
	return service.Task{
		ID:           id,
		Status:       service.ParseStatus(reply.Status),
		Operation:    reply.Operation,
		ResultHandle: reply.ArtifactID,
		ErrorDetail:  errorText(reply.Error),
	}, nil
}

// Result implements service.Compute. The payload is returned undecoded.
func (c *Client) Result(ctx context.Context, taskID, handle string) (json.RawMessage, error) {
	var q url.Values
	if handle != "" {
		q = url.Values{"artifact_id": []string{handle}}
	}
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(taskID)+"/result", q, nil, nil, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, header http.Header, in, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqCtx, cancel := context.WithTimeout(ctx, APITimeout)
	defer cancel()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), body)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return wrapError(ctx, err)
	}
	defer resp.Body.Close()

	// One byte past the cap tells a complete body from a cut one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return wrapError(ctx, err)
	}
	oversized := int64(len(data)) > c.maxBody
	if oversized {
		data = data[:c.maxBody]
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data)
	}
	if oversized {
		return fmt.Errorf("%s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, c.maxBody)
	}
	if raw, ok := out.(*json.RawMessage); ok {
		*raw = data
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// wrapError separates cancellation by the caller, which must stay
// recognizable, from a single request running out of time.
func wrapError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.New("compute request timed out")
	}
	return fmt.Errorf("compute request: %w", err)
}

// statusError maps a non-2xx response to the service error types.
func statusError(code int, body []byte) error {
	msg := errorMessage(body)
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		if msg == "" {
			msg = "API key rejected (run: sheetrow key <api-key>)"
		}
		return &service.AuthError{StatusCode: code, Message: msg}
	case http.StatusNotFound:
		if msg == "" {
			return service.ErrNotFound
		}
		return fmt.Errorf("%s: %w", msg, service.ErrNotFound)
	default:
		return &service.APIError{StatusCode: code, Message: msg}
	}
}

// errorMessage pulls a human-readable message out of an error body.
func errorMessage(body []byte) string {
	var e struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
		Detail  string          `json:"detail"`
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return strings.TrimSpace(string(bytes.ToValidUTF8(truncate(body, 200), nil)))
	}
	if msg, ok := errorField(e.Error); ok && msg != "" {
		return msg
	}
	if e.Message != "" {
		return e.Message
	}
	return e.Detail
}

// errorText reads an "error" field of a task. Shapes errorField does not
// know are kept as their JSON text.
func errorText(raw json.RawMessage) string {
	if msg, ok := errorField(raw); ok {
		return msg
	}
	return string(truncate(bytes.TrimSpace(raw), 200))
}

// errorField reads an "error" value that is a string or an object with a
// message or detail. An absent or null value reads as "".
func errorField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", true
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s, true
	}
	var nested struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(raw, &nested) == nil && (nested.Message != "" || nested.Detail != "") {
		return cmp.Or(nested.Message, nested.Detail), true
	}
	return "", false
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
