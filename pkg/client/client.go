// Package client sends commands to a component's command server and reads
// the daemon's control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tmt-csw/gocsw/pkg/command"
	"github.com/tmt-csw/gocsw/pkg/protocol"
)

// ErrNotFound is returned when the server does not know the runId or
// component.
var ErrNotFound = errors.New("client: not found")

// StatusError is returned for any other non-200 reply.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned HTTP %d", e.Code)
	}
	return fmt.Sprintf("server returned HTTP %d: %s", e.Code, e.Message)
}

// Client talks to one component's command server.
type Client struct {
	baseURL       string
	componentType string
	componentName string
	http          *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a Client for the component at baseURL, e.g.
// New("http://127.0.0.1:8082", "Assembly", "pycswTest").
func New(baseURL, componentType, componentName string, opts ...Option) *Client {
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		componentType: componentType,
		componentName: componentName,
		http:          http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers cmd with the given verb and returns the immediate response.
func (c *Client) Send(ctx context.Context, verb command.Verb, cmd command.ControlCommand) (command.Response, error) {
	body, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	url := c.baseURL + protocol.CommandPath(c.componentType, c.componentName, string(verb))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) Submit(ctx context.Context, cmd command.ControlCommand) (command.Response, error) {
	return c.Send(ctx, command.Submit, cmd)
}

func (c *Client) Oneway(ctx context.Context, cmd command.ControlCommand) (command.Response, error) {
	return c.Send(ctx, command.Oneway, cmd)
}

func (c *Client) Validate(ctx context.Context, cmd command.ControlCommand) (command.Response, error) {
	return c.Send(ctx, command.Validate, cmd)
}

// QueryFinal waits for the final response of a submitted command. Bound the
// wait with ctx.
func (c *Client) QueryFinal(ctx context.Context, runID string) (command.Response, error) {
	url := c.baseURL + protocol.QueryFinalPath(c.componentType, c.componentName, runID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

// SubmitAndWait submits cmd and, if it was Started, waits for the final
// response.
func (c *Client) SubmitAndWait(ctx context.Context, cmd command.ControlCommand) (command.Response, error) {
	resp, err := c.Submit(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if _, started := resp.(command.Started); !started {
		return resp, nil
	}
	return c.QueryFinal(ctx, cmd.RunID)
}

func (c *Client) do(req *http.Request) (command.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp.StatusCode, data)
	}
	return command.UnmarshalResponse(data)
}

func statusError(code int, body []byte) error {
	var e protocol.ErrorResponse
	_ = json.Unmarshal(body, &e)
	if code == http.StatusNotFound {
		if e.Error == "" {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %s", ErrNotFound, e.Error)
	}
	return &StatusError{Code: code, Message: e.Error}
}
