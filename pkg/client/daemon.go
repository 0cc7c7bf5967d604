package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/tmt-csw/gocsw/pkg/protocol"
)

// DaemonAPI reads the cswd control API. Implemented by DaemonClient; tests
// can provide a mock.
type DaemonAPI interface {
	GetStatus(ctx context.Context) (*protocol.StatusResponse, error)
	GetCommands(ctx context.Context) (*protocol.CommandsResponse, error)
	GetEventKeys(ctx context.Context) (*protocol.EventKeysResponse, error)
	GetComponents(ctx context.Context) (*protocol.ComponentsResponse, error)
}

// DaemonClient talks to cswd over its Unix socket.
type DaemonClient struct {
	socketPath string
	client     *http.Client
}

// NewDaemonClient creates a DaemonClient connected to socketPath.
func NewDaemonClient(socketPath string) *DaemonClient {
	return &DaemonClient{
		socketPath: socketPath,
		client: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					return (&net.Dialer{}).DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
}

func (c *DaemonClient) GetStatus(ctx context.Context) (*protocol.StatusResponse, error) {
	var resp protocol.StatusResponse
	if err := c.getJSON(ctx, "/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DaemonClient) GetCommands(ctx context.Context) (*protocol.CommandsResponse, error) {
	var resp protocol.CommandsResponse
	if err := c.getJSON(ctx, "/api/v1/commands", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DaemonClient) GetEventKeys(ctx context.Context) (*protocol.EventKeysResponse, error) {
	var resp protocol.EventKeysResponse
	if err := c.getJSON(ctx, "/api/v1/events", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DaemonClient) GetComponents(ctx context.Context) (*protocol.ComponentsResponse, error) {
	var resp protocol.ComponentsResponse
	if err := c.getJSON(ctx, "/api/v1/components", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *DaemonClient) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://cswd"+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("cannot connect to cswd at %s: %w", c.socketPath, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}
