// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/arcana-engine/treasury/cmd/treasury/cli"
	"github.com/arcana-engine/treasury/lib/assetid"
	"github.com/arcana-engine/treasury/lib/assetindex"
	"github.com/arcana-engine/treasury/lib/builtin"
	"github.com/arcana-engine/treasury/lib/protocol"
	"github.com/arcana-engine/treasury/lib/service"
	"github.com/arcana-engine/treasury/lib/source"
	"github.com/arcana-engine/treasury/lib/treasury"
)

// backend is what the commands need from a treasury, in-process or
// behind a service socket.
type backend interface {
	Store(ctx context.Context, source, format, target string) (assetid.ID, error)
	Find(ctx context.Context, source, target string) (assetid.ID, bool, error)
	Fetch(ctx context.Context, id assetid.ID) ([]byte, error)
	FetchPath(ctx context.Context, id assetid.ID) (string, error)
	Info(ctx context.Context, id assetid.ID) (assetindex.Entry, error)
	Importers(ctx context.Context) (protocol.ImportersResponse, error)
	Close() error
}

// connectionParams select the treasury a command works on.
type connectionParams struct {
	Base     string `flag:"base" desc:"directory to search upward for Treasury.yaml (default: working directory)"`
	Socket   string `flag:"socket" desc:"talk to the treasury-service listening on this socket"`
	LogLevel string `flag:"log-level" default:"warn" desc:"log level for in-process commands: debug, info, warn, error"`
}

func (p *connectionParams) open(ctx context.Context) (backend, error) {
	if p.Socket == "" {
		if env := os.Getenv("TREASURY_SOCKET"); env != "" {
			p.Socket = env
		}
	}
	if p.Socket != "" {
		return remote{protocol.NewClient(p.Socket)}, nil
	}

	level, err := service.ParseLevel(p.LogLevel)
	if err != nil {
		return nil, err
	}
	base := p.Base
	if base == "" {
		if base, err = os.Getwd(); err != nil {
			return nil, err
		}
	}
	instance, err := treasury.FindFrom(ctx, base, treasury.Options{
		Logger:    cli.NewCommandLogger(level),
		Importers: builtin.Importers(),
	})
	if err != nil {
		return nil, err
	}
	return local{instance}, nil
}

// absoluteSource resolves a relative path against the working
// directory. URLs and absolute paths pass through.
func absoluteSource(raw string) (string, error) {
	if source.IsURL(raw) || filepath.IsAbs(raw) {
		return raw, nil
	}
	return filepath.Abs(raw)
}

type local struct {
	*treasury.Treasury
}

func (l local) Fetch(_ context.Context, id assetid.ID) ([]byte, error) {
	return l.Treasury.Fetch(id)
}

func (l local) FetchPath(_ context.Context, id assetid.ID) (string, error) {
	return l.Treasury.FetchPath(id)
}

func (l local) Info(_ context.Context, id assetid.ID) (assetindex.Entry, error) {
	return l.Treasury.Info(id)
}

func (l local) Importers(context.Context) (protocol.ImportersResponse, error) {
	return protocol.NewImportersResponse(l.Treasury.Importers()), nil
}

type remote struct {
	*protocol.Client
}

func (remote) Close() error { return nil }
