// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the socket transport of the treasury
// service.
//
// The protocol is one CBOR request and one CBOR response per Unix
// socket connection. Requests are maps carrying an "action" field plus
// action-specific fields; responses use the [Response] envelope
// {ok, error, data}. CBOR is self-delimiting, so no framing is needed.
//
//   - [SocketServer] dispatches requests to registered [ActionFunc]s,
//     applies connection deadlines, and drains in-flight handlers on
//     shutdown.
//   - [Client] sends one request per connection and returns a
//     [*ServiceError] for ok=false responses.
//   - [NewLogger] builds the JSON logger services write to stderr.
//
// Access control is the socket file's permissions: whoever can connect
// may use every action.
package service
