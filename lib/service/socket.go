// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arcana-engine/treasury/lib/codec"
)

// ActionFunc processes one request. raw is the full CBOR request,
// including the "action" field; handlers decode their own fields from
// it.
//
// A nil result produces {ok: true}. A non-nil result is CBOR-encoded
// into the response's "data" field.
type ActionFunc func(ctx context.Context, raw []byte) (any, error)

// Response is the envelope of every response.
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "treasury",
		Subsystem: "service",
		Name:      "requests_total",
		Help:      "Socket requests by action and result.",
	}, []string{"action", "result"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "treasury",
		Subsystem: "service",
		Name:      "request_duration_seconds",
		Help:      "Handler time per action.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"action"})
)

// SocketServer serves the request-response protocol on a Unix socket.
// Register actions with Handle before calling Serve; unknown actions
// receive an error response.
type SocketServer struct {
	socketPath string
	handlers   map[string]ActionFunc
	logger     *slog.Logger

	// activeConnections lets Serve drain in-flight handlers before
	// returning.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, logger *slog.Logger) *SocketServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SocketServer{
		socketPath: socketPath,
		handlers:   make(map[string]ActionFunc),
		logger:     logger,
	}
}

// Handle registers handler for action. Panics on a duplicate action.
func (s *SocketServer) Handle(action string, handler ActionFunc) {
	if _, exists := s.handlers[action]; exists {
		panic("service: action " + strconv.Quote(action) + " registered twice")
	}
	s.handlers[action] = handler
}

// Serve accepts connections until ctx is cancelled, then stops
// accepting and waits for active handlers.
//
// A stale socket file at the path is removed before listening; the
// socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("clearing %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("treasury service socket: %w", err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	s.logger.Info("serving", "socket", s.socketPath, "actions", len(s.handlers))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept", "error", err)
			continue
		}

		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

const (
	// readTimeout bounds reading the request after connect.
	readTimeout = 30 * time.Second

	// writeTimeout bounds writing the response. Handler time is not
	// covered: a store may import for as long as the importer needs.
	writeTimeout = 30 * time.Second

	// maxRequestSize bounds one request. Requests carry locators, which
	// may be inline data: URLs.
	maxRequestSize = 16 << 20
)

func (s *SocketServer) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	var raw codec.RawMessage
	if err := codec.NewDecoder(io.LimitReader(conn, maxRequestSize)).Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return
		}
		s.write(conn, failure("invalid request: %v", err))
		return
	}
	conn.SetReadDeadline(time.Time{})

	s.write(conn, s.dispatch(ctx, raw))
}

// dispatch routes one decoded request to its handler and builds the
// response envelope.
func (s *SocketServer) dispatch(ctx context.Context, raw []byte) Response {
	var header struct {
		Action string `cbor:"action"`
	}
	if err := codec.Unmarshal(raw, &header); err != nil {
		return failure("invalid request: %v", err)
	}
	if header.Action == "" {
		return failure("missing required field: action")
	}
	handler, ok := s.handlers[header.Action]
	if !ok {
		requestsTotal.WithLabelValues("unknown", "error").Inc()
		return failure("unknown action %q", header.Action)
	}

	start := time.Now()
	result, err := handler(ctx, raw)
	requestDuration.WithLabelValues(header.Action).Observe(time.Since(start).Seconds())
	if err != nil {
		requestsTotal.WithLabelValues(header.Action, "error").Inc()
		s.logger.Debug("action failed", "action", header.Action, "error", err)
		return Response{Error: err.Error()}
	}
	requestsTotal.WithLabelValues(header.Action, "ok").Inc()

	response := Response{OK: true}
	if result != nil {
		data, err := codec.Marshal(result)
		if err != nil {
			return failure("internal: marshaling %s response: %v", header.Action, err)
		}
		response.Data = data
	}
	return response
}

func failure(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// write sends response. A failed write is only logged; the connection
// closes either way.
func (s *SocketServer) write(conn net.Conn, response Response) {
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := codec.NewEncoder(conn).Encode(response); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
