// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/arcana-engine/treasury/lib/clock"
	"github.com/arcana-engine/treasury/lib/codec"
	"github.com/arcana-engine/treasury/lib/protocol"
	"github.com/arcana-engine/treasury/lib/service"
	"github.com/arcana-engine/treasury/lib/source"
	"github.com/arcana-engine/treasury/lib/treasury"
	"github.com/arcana-engine/treasury/lib/version"
)

// treasuryService adapts one open instance to the socket actions.
type treasuryService struct {
	treasury  *treasury.Treasury
	clock     clock.Clock
	startedAt time.Time
	logger    *slog.Logger
}

func newTreasuryService(instance *treasury.Treasury, clk clock.Clock, logger *slog.Logger) *treasuryService {
	return &treasuryService{
		treasury:  instance,
		clock:     clk,
		startedAt: clk.Now(),
		logger:    logger,
	}
}

func (ts *treasuryService) register(server *service.SocketServer) {
	server.Handle(protocol.ActionStore, ts.handleStore)
	server.Handle(protocol.ActionFind, ts.handleFind)
	server.Handle(protocol.ActionFetch, ts.handleFetch)
	server.Handle(protocol.ActionInfo, ts.handleInfo)
	server.Handle(protocol.ActionImporters, ts.handleImporters)
	server.Handle(protocol.ActionStatus, ts.handleStatus)
}

// decodeRequest unmarshals raw into request. The "action" field is
// ignored by the request structs.
func decodeRequest(raw []byte, request any) error {
	if err := codec.Unmarshal(raw, request); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

// requireAbsolute rejects relative local sources. They would resolve
// against the service's base directory, not the caller's.
func requireAbsolute(raw string) error {
	if raw == "" {
		return errors.New("missing required field: source")
	}
	if source.IsURL(raw) || filepath.IsAbs(raw) {
		return nil
	}
	return fmt.Errorf("source %q must be an absolute path or URL", raw)
}

func (ts *treasuryService) handleStore(ctx context.Context, raw []byte) (any, error) {
	var request protocol.StoreRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if err := requireAbsolute(request.Source); err != nil {
		return nil, err
	}
	if request.Target == "" {
		return nil, errors.New("missing required field: target")
	}

	id, err := ts.treasury.Store(ctx, request.Source, request.Format, request.Target)
	if err != nil {
		return nil, err
	}
	return protocol.StoreResponse{ID: id}, nil
}

func (ts *treasuryService) handleFind(ctx context.Context, raw []byte) (any, error) {
	var request protocol.FindRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if err := requireAbsolute(request.Source); err != nil {
		return nil, err
	}
	if request.Target == "" {
		return nil, errors.New("missing required field: target")
	}

	id, found, err := ts.treasury.Find(ctx, request.Source, request.Target)
	if err != nil {
		return nil, err
	}
	return protocol.FindResponse{Found: found, ID: id}, nil
}

func (ts *treasuryService) handleFetch(ctx context.Context, raw []byte) (any, error) {
	var request protocol.AssetRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.ID.IsZero() {
		return nil, errors.New("missing required field: id")
	}

	if request.PathOnly {
		path, err := ts.treasury.FetchPath(request.ID)
		if err != nil {
			return nil, err
		}
		return protocol.FetchResponse{Path: path}, nil
	}
	data, err := ts.treasury.Fetch(request.ID)
	if err != nil {
		return nil, err
	}
	return protocol.FetchResponse{Data: data}, nil
}

func (ts *treasuryService) handleInfo(ctx context.Context, raw []byte) (any, error) {
	var request protocol.AssetRequest
	if err := decodeRequest(raw, &request); err != nil {
		return nil, err
	}
	if request.ID.IsZero() {
		return nil, errors.New("missing required field: id")
	}
	return ts.treasury.Info(request.ID)
}

func (ts *treasuryService) handleImporters(ctx context.Context, raw []byte) (any, error) {
	return protocol.NewImportersResponse(ts.treasury.Importers()), nil
}

func (ts *treasuryService) handleStatus(ctx context.Context, raw []byte) (any, error) {
	descriptors, _ := ts.treasury.Importers()
	return protocol.StatusResponse{
		BaseDir:       ts.treasury.BaseDir(),
		Assets:        len(ts.treasury.Assets()),
		Importers:     len(descriptors),
		UptimeSeconds: int64(ts.clock.Now().Sub(ts.startedAt) / time.Second),
		Version:       version.Info(),
	}, nil
}
