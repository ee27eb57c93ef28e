// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"context"

	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/service"
)

// Client calls a treasury service.
type Client struct {
	conn *service.Client
}

// NewClient returns a client for the service listening on socketPath.
func NewClient(socketPath string) *Client {
	return &Client{conn: service.NewClient(socketPath)}
}

// Store imports source into target and returns the asset id.
func (c *Client) Store(ctx context.Context, source, format, target string) (assetid.ID, error) {
	fields := map[string]any{"source": source, "target": target}
	if format != "" {
		fields["format"] = format
	}
	var response StoreResponse
	if err := c.conn.Call(ctx, ActionStore, fields, &response); err != nil {
		return 0, err
	}
	return response.ID, nil
}

// Find returns the id of (source, target), storing it on a miss.
func (c *Client) Find(ctx context.Context, source, target string) (assetid.ID, bool, error) {
	var response FindResponse
	err := c.conn.Call(ctx, ActionFind, map[string]any{"source": source, "target": target}, &response)
	if err != nil {
		return 0, false, err
	}
	return response.ID, response.Found, nil
}

// Fetch returns the artifact bytes of id.
func (c *Client) Fetch(ctx context.Context, id assetid.ID) ([]byte, error) {
	var response FetchResponse
	if err := c.conn.Call(ctx, ActionFetch, map[string]any{"id": id}, &response); err != nil {
		return nil, err
	}
	return response.Data, nil
}

// FetchPath returns the artifact file path of id on the service's
// filesystem.
func (c *Client) FetchPath(ctx context.Context, id assetid.ID) (string, error) {
	var response FetchResponse
	if err := c.conn.Call(ctx, ActionFetch, map[string]any{"id": id, "path_only": true}, &response); err != nil {
		return "", err
	}
	return response.Path, nil
}

// Info returns the index entry of id.
func (c *Client) Info(ctx context.Context, id assetid.ID) (InfoResponse, error) {
	var response InfoResponse
	err := c.conn.Call(ctx, ActionInfo, map[string]any{"id": id}, &response)
	return response, err
}

// Importers lists the service's importers.
func (c *Client) Importers(ctx context.Context) (ImportersResponse, error) {
	var response ImportersResponse
	err := c.conn.Call(ctx, ActionImporters, nil, &response)
	return response, err
}

// Status reports service state.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var response StatusResponse
	err := c.conn.Call(ctx, ActionStatus, nil, &response)
	return response, err
}
