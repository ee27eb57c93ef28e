// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net"
	"time"

	"github.com/arcana-engine/treasury/lib/codec"
)

// dialTimeout covers only the connect phase.
const dialTimeout = 5 * time.Second

// maxResponseSize bounds one response. Fetch responses carry whole
// artifacts.
const maxResponseSize = 256 << 20

// ServiceError is returned by Call when the server responds with
// ok=false.
type ServiceError struct {
	Action  string
	Message string
}

func (e *ServiceError) Error() string {
	return e.Action + ": " + e.Message
}

// Client sends requests to a service socket, one connection per call.
type Client struct {
	socketPath string
}

// NewClient returns a client for the socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// SocketPath returns the socket the client dials.
func (c *Client) SocketPath() string { return c.socketPath }

// Call sends action with fields and decodes the response data into
// result. fields must not contain "action". A nil result discards the
// data.
//
// The response wait is bounded by ctx only; stores take as long as
// their imports.
func (c *Client) Call(ctx context.Context, action string, fields map[string]any, result any) error {
	request := make(map[string]any, len(fields)+1)
	maps.Copy(request, fields)
	request["action"] = action

	response, err := c.send(ctx, request)
	if err != nil {
		return fmt.Errorf("treasury service at %s: %s: %w", c.socketPath, action, err)
	}
	if !response.OK {
		return &ServiceError{Action: action, Message: response.Error}
	}

	if result != nil && len(response.Data) > 0 {
		if err := codec.Unmarshal(response.Data, result); err != nil {
			return fmt.Errorf("%s: malformed response data: %w", action, err)
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, request any) (*Response, error) {
	conn, err := (&net.Dialer{Timeout: dialTimeout}).DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	// Half-close so the server sees the end of the request.
	conn.(*net.UnixConn).CloseWrite()

	response := new(Response)
	err = codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(response)
	switch {
	case err == nil:
		return response, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("awaiting response: %w", err)
	}
}
