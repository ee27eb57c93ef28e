// Copyright 2026 The Treasury Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the actions of the treasury service socket
// and a typed [Client] for them.
//
// Each action is one CBOR request map ({"action": ..., fields...}) and
// one [service.Response]. Sources are sent as absolute paths or URLs;
// the service resolves relative sources against its own base
// directory, which is rarely what a remote caller means.
package protocol
